package challenge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Reloader signals the reverse proxy to pick up challenge routing changes.
type Reloader interface {
	Reload() error
}

// Adapter temporarily exposes the HTTP-01 well-known path for a set of
// domains by dropping per-domain vhost snippets into the challenge
// directory, then removes them again. Both directions end with a live
// reload so the routing actually takes effect.
type Adapter struct {
	challengeDir string
	webrootDir   string
	reloader     Reloader
	logger       *logrus.Entry
}

// NewAdapter creates a new challenge adapter
func NewAdapter(challengeDir, webrootDir string, reloader Reloader, logger *logrus.Entry) *Adapter {
	return &Adapter{
		challengeDir: challengeDir,
		webrootDir:   webrootDir,
		reloader:     reloader,
		logger:       logger.WithField("component", "challenge-adapter"),
	}
}

const snippetFormat = `# ACME HTTP-01 challenge routing for %[1]s
server {
    listen 80;
    server_name %[1]s;

    location /.well-known/acme-challenge/ {
        root %[2]s;
        default_type text/plain;
    }

    location / {
        return 404;
    }
}
`

// SetUp writes a challenge snippet for every domain and reloads. A
// failure leaves whatever was written in place; TearDown cleans it up.
func (a *Adapter) SetUp(ctx context.Context, domains []string) error {
	if err := os.MkdirAll(a.challengeDir, 0755); err != nil {
		return fmt.Errorf("failed to create challenge dir: %w", err)
	}

	for _, domain := range domains {
		if err := ctx.Err(); err != nil {
			return err
		}
		content := fmt.Sprintf(snippetFormat, domain, a.webrootDir)
		if err := os.WriteFile(a.snippetPath(domain), []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to write challenge snippet for %s: %w", domain, err)
		}
	}

	if err := a.reloader.Reload(); err != nil {
		return fmt.Errorf("failed to activate challenge routing: %w", err)
	}

	a.logger.Infof("challenge routing up for %d domain(s)", len(domains))
	return nil
}

// TearDown removes the snippets and reloads. Already-absent snippets are
// success, not error, so teardown can run unconditionally.
func (a *Adapter) TearDown(ctx context.Context, domains []string) error {
	removed := 0
	for _, domain := range domains {
		err := os.Remove(a.snippetPath(domain))
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove challenge snippet for %s: %w", domain, err)
		}
		if err == nil {
			removed++
		}
	}

	if removed == 0 {
		return nil
	}

	if err := a.reloader.Reload(); err != nil {
		return fmt.Errorf("failed to deactivate challenge routing: %w", err)
	}

	a.logger.Infof("challenge routing down, removed %d snippet(s)", removed)
	return nil
}

func (a *Adapter) snippetPath(domain string) string {
	return filepath.Join(a.challengeDir, domain+".conf")
}
