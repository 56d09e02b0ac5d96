package acme

import (
	"context"
	"fmt"
	"strings"
	"time"

	"proxyman/internal/command"
	"proxyman/internal/model"

	"github.com/sirupsen/logrus"
)

// CertificateInfo is the typed result of an issuance or renewal attempt.
// Failures are carried in the result instead of propagating: the caller
// persists the outcome either way.
type CertificateInfo struct {
	Status    string // model.CertificateStatusValid or Failed
	Errored   bool   // the attempt raised an exception rather than a clean CA negative
	ExpiresAt time.Time
	NotBefore time.Time
	Issuer    string
	Domains   []string // deduplicated set actually requested, primary first
	Detail    string   // failure detail
	Warnings  []string // non-fatal follow-up failures (e.g. reload)
}

// ChallengeAdapter stands temporary HTTP-01 routing up and down around an
// issuance attempt.
type ChallengeAdapter interface {
	SetUp(ctx context.Context, domains []string) error
	TearDown(ctx context.Context, domains []string) error
}

// Reloader signals the reverse proxy to pick up changed certificate
// material after a renewal.
type Reloader interface {
	Reload() error
}

// ClientConfig holds the external ACME client invocation settings
type ClientConfig struct {
	Bin        string // certbot-compatible binary
	CertDir    string // issued material root
	WebrootDir string // HTTP-01 webroot
	Email      string // default contact email, empty registers without one
}

// Client translates issuance/renewal/revocation intents into external ACME
// client invocations and interprets the results. It owns no persistent
// state; the certificate store does.
type Client struct {
	cfg       ClientConfig
	runner    command.Runner
	challenge ChallengeAdapter
	reloader  Reloader
	logger    *logrus.Entry
}

// NewClient creates a new certificate authority client
func NewClient(cfg ClientConfig, runner command.Runner, challenge ChallengeAdapter, reloader Reloader, logger *logrus.Entry) *Client {
	return &Client{
		cfg:       cfg,
		runner:    runner,
		challenge: challenge,
		reloader:  reloader,
		logger:    logger.WithField("component", "acme-client"),
	}
}

// Obtain requests a single certificate covering the primary domain and all
// SANs in one external invocation. Challenge routing is stood up for every
// domain and torn down on every path, including when the invocation fails.
func (c *Client) Obtain(ctx context.Context, primaryDomain string, sanList []string, email string) CertificateInfo {
	domains := DedupeDomains(primaryDomain, sanList)

	// Teardown is deferred before setup so partial setup is also cleaned.
	defer func() {
		if err := c.challenge.TearDown(ctx, domains); err != nil {
			c.logger.Warnf("challenge teardown for %s failed: %v", primaryDomain, err)
		}
	}()

	if err := c.challenge.SetUp(ctx, domains); err != nil {
		return failedInfo(domains, true, fmt.Sprintf("challenge setup failed: %v", err))
	}

	args := []string{
		"certonly",
		"--webroot", "-w", c.cfg.WebrootDir,
		"--non-interactive",
		"--agree-tos",
	}
	for _, d := range domains {
		args = append(args, "-d", d)
	}
	if email == "" {
		email = c.cfg.Email
	}
	if email != "" {
		args = append(args, "--email", email)
	} else {
		args = append(args, "--register-unsafely-without-email")
	}

	result, err := c.runner.Run(ctx, c.cfg.Bin, args...)
	if err != nil {
		return failedInfo(domains, true, fmt.Sprintf("issuance command failed to run: %v", err))
	}
	if result.ExitCode != 0 {
		return failedInfo(domains, false, commandDetail("issuance", result))
	}

	return c.inspect(primaryDomain, domains)
}

// Renew invokes the external renewal verb for an existing certificate
// identified by its primary domain. Challenge routing is not stood up: the
// external client keeps its own renewal bookkeeping for already-issued
// names. A reverse-proxy reload is triggered when the result is valid so
// the new material is served.
func (c *Client) Renew(ctx context.Context, primaryDomain string) CertificateInfo {
	args := []string{
		"renew",
		"--cert-name", primaryDomain,
		"--webroot", "-w", c.cfg.WebrootDir,
		"--non-interactive",
	}

	result, err := c.runner.Run(ctx, c.cfg.Bin, args...)
	if err != nil {
		return failedInfo([]string{primaryDomain}, true, fmt.Sprintf("renewal command failed to run: %v", err))
	}
	if result.ExitCode != 0 {
		return failedInfo([]string{primaryDomain}, false, commandDetail("renewal", result))
	}

	info := c.inspect(primaryDomain, nil)
	if info.Status == model.CertificateStatusValid {
		if err := c.reloader.Reload(); err != nil {
			c.logger.Warnf("reload after renewal of %s failed: %v", primaryDomain, err)
			info.Warnings = append(info.Warnings, fmt.Sprintf("reverse proxy reload failed: %v", err))
		}
	}
	return info
}

// Revoke invokes the external revocation verb. Missing material on disk is
// a no-op, not an error.
func (c *Client) Revoke(ctx context.Context, primaryDomain string) error {
	if !MaterialExists(c.cfg.CertDir, primaryDomain) {
		c.logger.Infof("no material on disk for %s, revoke is a no-op", primaryDomain)
		return nil
	}

	result, err := c.runner.Run(ctx, c.cfg.Bin,
		"revoke",
		"--cert-path", certPath(c.cfg.CertDir, primaryDomain),
		"--non-interactive",
	)
	if err != nil {
		return fmt.Errorf("revocation command failed to run: %w", err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("revocation failed: %s", commandDetail("revocation", result))
	}
	return nil
}

// inspect reads the issued material and confirms it is live before
// reporting success. Expiry always comes from the material itself.
func (c *Client) inspect(primaryDomain string, requested []string) CertificateInfo {
	mat, err := ReadMaterial(c.cfg.CertDir, primaryDomain)
	if err != nil {
		return failedInfo(requested, true, fmt.Sprintf("issued material unreadable: %v", err))
	}

	now := time.Now()
	if now.After(mat.NotAfter) {
		return failedInfo(requested, false,
			fmt.Sprintf("issued material already expired at %s", mat.NotAfter.UTC().Format(time.RFC3339)))
	}

	domains := requested
	if len(domains) == 0 {
		domains = mat.DNSNames
	}

	return CertificateInfo{
		Status:    model.CertificateStatusValid,
		ExpiresAt: mat.NotAfter,
		NotBefore: mat.NotBefore,
		Issuer:    mat.Issuer,
		Domains:   domains,
	}
}

// DedupeDomains returns the primary domain followed by the SANs with
// case-sensitive exact duplicates removed, order preserved.
func DedupeDomains(primaryDomain string, sanList []string) []string {
	domains := make([]string, 0, len(sanList)+1)
	seen := map[string]bool{}
	for _, d := range append([]string{primaryDomain}, sanList...) {
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		domains = append(domains, d)
	}
	return domains
}

func failedInfo(domains []string, errored bool, detail string) CertificateInfo {
	return CertificateInfo{
		Status:  model.CertificateStatusFailed,
		Errored: errored,
		Domains: domains,
		Detail:  detail,
	}
}

// commandDetail condenses a failed command result into a loggable line.
func commandDetail(verb string, result command.CmdResult) string {
	out := strings.TrimSpace(result.Stderr)
	if out == "" {
		out = strings.TrimSpace(result.Stdout)
	}
	return fmt.Sprintf("%s exited with code %d: %s", verb, result.ExitCode, out)
}
