package nginx

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"proxyman/internal/command"
	"proxyman/internal/config"
	"proxyman/internal/model"
)

// scriptedRunner returns a fixed result per verb (-t or -s) and records
// every invocation.
type scriptedRunner struct {
	checkExit  int
	reloadExit int
	calls      [][]string
}

func (r *scriptedRunner) Run(_ context.Context, name string, args ...string) (command.CmdResult, error) {
	call := append([]string{name}, args...)
	r.calls = append(r.calls, call)
	if len(args) > 0 && args[0] == "-t" {
		return command.CmdResult{ExitCode: r.checkExit, Stderr: "test failed"}, nil
	}
	return command.CmdResult{ExitCode: r.reloadExit, Stderr: "reload failed"}, nil
}

func (r *scriptedRunner) reloads() int {
	n := 0
	for _, c := range r.calls {
		if len(c) > 1 && c[1] == "-s" {
			n++
		}
	}
	return n
}

func newTestSync(t *testing.T, runner command.Runner) (*Sync, config.NginxConfig) {
	t.Helper()
	cfg := config.NginxConfig{
		AvailableDir: filepath.Join(t.TempDir(), "sites-available"),
		EnabledDir:   filepath.Join(t.TempDir(), "sites-enabled"),
		Bin:          "nginx",
	}
	return NewSync(cfg, NewRenderer("/etc/letsencrypt"), runner), cfg
}

func TestApplyActiveHost(t *testing.T) {
	runner := &scriptedRunner{}
	s, cfg := newTestSync(t, runner)
	host := testHost(false)

	if err := s.Apply(context.Background(), host); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if _, err := os.Stat(filepath.Join(cfg.AvailableDir, "app.example.com.conf")); err != nil {
		t.Errorf("available file missing: %v", err)
	}
	target, err := os.Readlink(filepath.Join(cfg.EnabledDir, "app.example.com.conf"))
	if err != nil {
		t.Fatalf("enabled symlink missing: %v", err)
	}
	if target != filepath.Join(cfg.AvailableDir, "app.example.com.conf") {
		t.Errorf("symlink target = %s", target)
	}
	if runner.reloads() != 1 {
		t.Errorf("reloads = %d, want 1", runner.reloads())
	}
	if len(runner.calls) < 2 || runner.calls[0][1] != "-t" {
		t.Errorf("validation must run before reload, calls: %v", runner.calls)
	}
}

func TestApplyUnchangedSkipsReload(t *testing.T) {
	runner := &scriptedRunner{}
	s, _ := newTestSync(t, runner)
	host := testHost(false)

	if err := s.Apply(context.Background(), host); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	if err := s.Apply(context.Background(), host); err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if runner.reloads() != 1 {
		t.Errorf("reloads = %d, want 1 (unchanged apply must not reload)", runner.reloads())
	}
}

func TestApplyInactiveRemovesSymlink(t *testing.T) {
	runner := &scriptedRunner{}
	s, cfg := newTestSync(t, runner)
	host := testHost(false)

	if err := s.Apply(context.Background(), host); err != nil {
		t.Fatalf("Apply active: %v", err)
	}
	host.Status = model.ProxyHostStatusInactive
	if err := s.Apply(context.Background(), host); err != nil {
		t.Fatalf("Apply inactive: %v", err)
	}

	if _, err := os.Lstat(filepath.Join(cfg.EnabledDir, "app.example.com.conf")); !os.IsNotExist(err) {
		t.Error("symlink should be removed for inactive host")
	}
	if _, err := os.Stat(filepath.Join(cfg.AvailableDir, "app.example.com.conf")); err != nil {
		t.Errorf("available file should survive disable: %v", err)
	}
}

func TestValidationFailureBlocksReload(t *testing.T) {
	runner := &scriptedRunner{checkExit: 1}
	s, _ := newTestSync(t, runner)

	err := s.Apply(context.Background(), testHost(false))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if runner.reloads() != 0 {
		t.Errorf("reload must not run after failed validation, calls: %v", runner.calls)
	}
}

func TestRemoveIdempotent(t *testing.T) {
	runner := &scriptedRunner{}
	s, cfg := newTestSync(t, runner)
	host := testHost(false)

	if err := s.Apply(context.Background(), host); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := s.Remove(context.Background(), host.Domain); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.AvailableDir, "app.example.com.conf")); !os.IsNotExist(err) {
		t.Error("available file should be deleted")
	}

	before := len(runner.calls)
	if err := s.Remove(context.Background(), host.Domain); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if len(runner.calls) != before {
		t.Error("removing an absent vhost must not reload")
	}
}
