package nginx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"proxyman/internal/command"
	"proxyman/internal/config"
	"proxyman/internal/model"

	"github.com/sirupsen/logrus"
)

// Sync keeps the on-disk vhost tree in step with proxy host rows.
// Authored files live in the available directory; a host is served only
// while a symlink to its file exists in the enabled directory.
type Sync struct {
	cfg      config.NginxConfig
	renderer *Renderer
	runner   command.Runner
	logger   *logrus.Entry
}

// NewSync creates a config synchronizer.
func NewSync(cfg config.NginxConfig, renderer *Renderer, runner command.Runner) *Sync {
	return &Sync{
		cfg:      cfg,
		renderer: renderer,
		runner:   runner,
		logger:   logrus.WithField("component", "nginx"),
	}
}

// Apply renders the host's vhost file and reconciles its enablement
// symlink with the host status. The file write is skipped when the
// on-disk content already matches the rendered output.
func (s *Sync) Apply(ctx context.Context, host *model.ProxyHost) error {
	content, err := s.renderer.Render(host)
	if err != nil {
		return err
	}

	availablePath := s.availablePath(host.Domain)
	if err := os.MkdirAll(s.cfg.AvailableDir, 0o755); err != nil {
		return fmt.Errorf("create available dir: %w", err)
	}

	changed := true
	if existing, err := os.ReadFile(availablePath); err == nil {
		changed = ContentHash(string(existing)) != ContentHash(content)
	}
	if changed {
		if err := os.WriteFile(availablePath, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write vhost %s: %w", host.Domain, err)
		}
	}

	enabled := host.Status == model.ProxyHostStatusActive
	linkChanged, err := s.setEnabled(host.Domain, enabled)
	if err != nil {
		return err
	}

	if !changed && !linkChanged {
		return nil
	}
	s.logger.WithFields(logrus.Fields{
		"domain":  host.Domain,
		"enabled": enabled,
	}).Info("vhost synchronized")
	return s.Reload(ctx)
}

// Disable removes the enablement symlink but keeps the authored file,
// so the host can be re-enabled without re-rendering.
func (s *Sync) Disable(ctx context.Context, domain string) error {
	changed, err := s.setEnabled(domain, false)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return s.Reload(ctx)
}

// Remove deletes both the symlink and the authored file. Absent paths
// are not an error so removal is idempotent.
func (s *Sync) Remove(ctx context.Context, domain string) error {
	changed := false
	linkChanged, err := s.setEnabled(domain, false)
	if err != nil {
		return err
	}
	changed = changed || linkChanged

	if err := os.Remove(s.availablePath(domain)); err == nil {
		changed = true
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("remove vhost %s: %w", domain, err)
	}

	if !changed {
		return nil
	}
	return s.Reload(ctx)
}

// Reload validates the full configuration and reloads the server.
// The reload is never attempted when validation fails, so a broken
// vhost file cannot take the proxy down.
func (s *Sync) Reload(ctx context.Context) error {
	check, err := s.runner.Run(ctx, s.cfg.Bin, "-t")
	if err != nil {
		return fmt.Errorf("nginx -t: %w", err)
	}
	if check.ExitCode != 0 {
		return fmt.Errorf("nginx config validation failed: %s", strings.TrimSpace(check.Stderr))
	}

	reload, err := s.runner.Run(ctx, s.cfg.Bin, "-s", "reload")
	if err != nil {
		return fmt.Errorf("nginx -s reload: %w", err)
	}
	if reload.ExitCode != 0 {
		return fmt.Errorf("nginx reload failed: %s", strings.TrimSpace(reload.Stderr))
	}
	return nil
}

// Reloader adapts Sync for callers that reload without a context.
type Reloader struct {
	Sync *Sync
}

// Reload validates and reloads the server configuration.
func (r Reloader) Reload() error {
	return r.Sync.Reload(context.Background())
}

// setEnabled reconciles the enablement symlink for a domain and
// reports whether anything changed on disk.
func (s *Sync) setEnabled(domain string, enabled bool) (bool, error) {
	enabledPath := s.enabledPath(domain)

	if !enabled {
		if err := os.Remove(enabledPath); err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}
			return false, fmt.Errorf("remove symlink %s: %w", domain, err)
		}
		return true, nil
	}

	target := s.availablePath(domain)
	if current, err := os.Readlink(enabledPath); err == nil && current == target {
		return false, nil
	}
	if err := os.MkdirAll(s.cfg.EnabledDir, 0o755); err != nil {
		return false, fmt.Errorf("create enabled dir: %w", err)
	}
	_ = os.Remove(enabledPath)
	if err := os.Symlink(target, enabledPath); err != nil {
		return false, fmt.Errorf("enable vhost %s: %w", domain, err)
	}
	return true, nil
}

func (s *Sync) availablePath(domain string) string {
	return filepath.Join(s.cfg.AvailableDir, domain+".conf")
}

func (s *Sync) enabledPath(domain string) string {
	return filepath.Join(s.cfg.EnabledDir, domain+".conf")
}
