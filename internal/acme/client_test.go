package acme

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"proxyman/internal/command"
	"proxyman/internal/model"

	"github.com/sirupsen/logrus"
)

// fakeRunner replays a scripted result
type fakeRunner struct {
	result  command.CmdResult
	err     error
	gotName string
	gotArgs []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (command.CmdResult, error) {
	f.gotName = name
	f.gotArgs = args
	return f.result, f.err
}

// fakeChallenge counts setup/teardown calls
type fakeChallenge struct {
	setupCalls    int
	teardownCalls int
	setupErr      error
}

func (f *fakeChallenge) SetUp(_ context.Context, _ []string) error {
	f.setupCalls++
	return f.setupErr
}

func (f *fakeChallenge) TearDown(_ context.Context, _ []string) error {
	f.teardownCalls++
	return nil
}

type fakeReloader struct {
	calls int
	err   error
}

func (f *fakeReloader) Reload() error {
	f.calls++
	return f.err
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

// writeTestMaterial generates a self-signed certificate under
// certDir/live/<domain>/ the way the external client lays material out.
func writeTestMaterial(t *testing.T, certDir, domain string, notAfter time.Time, dnsNames []string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: domain},
		Issuer:       pkix.Name{CommonName: "Test CA"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
		DNSNames:     dnsNames,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}

	dir := filepath.Join(certDir, "live", domain)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create material dir: %v", err)
	}

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	for _, name := range []string{"fullchain.pem", "cert.pem"} {
		if err := os.WriteFile(filepath.Join(dir, name), pemBytes, 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
}

func newTestClient(certDir string, runner command.Runner, challenge ChallengeAdapter, reloader Reloader) *Client {
	return NewClient(ClientConfig{
		Bin:        "certbot",
		CertDir:    certDir,
		WebrootDir: "/var/www/acme",
	}, runner, challenge, reloader, testLogger())
}

func TestDedupeDomains(t *testing.T) {
	tests := []struct {
		name    string
		primary string
		sans    []string
		want    []string
	}{
		{
			name:    "primary first, duplicates removed",
			primary: "app.example.com",
			sans:    []string{"www.example.com", "app.example.com", "www.example.com"},
			want:    []string{"app.example.com", "www.example.com"},
		},
		{
			name:    "case-sensitive exact match keeps distinct casings",
			primary: "app.example.com",
			sans:    []string{"App.Example.Com"},
			want:    []string{"app.example.com", "App.Example.Com"},
		},
		{
			name:    "empty entries dropped",
			primary: "app.example.com",
			sans:    []string{"", "api.example.com"},
			want:    []string{"app.example.com", "api.example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DedupeDomains(tt.primary, tt.sans)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DedupeDomains() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestObtain_Success(t *testing.T) {
	certDir := t.TempDir()
	expiry := time.Now().Add(90 * 24 * time.Hour)
	writeTestMaterial(t, certDir, "app.example.com", expiry, []string{"app.example.com", "www.example.com"})

	runner := &fakeRunner{result: command.CmdResult{ExitCode: 0}}
	challenge := &fakeChallenge{}
	client := newTestClient(certDir, runner, challenge, &fakeReloader{})

	info := client.Obtain(context.Background(), "app.example.com", []string{"www.example.com"}, "ops@example.com")

	if info.Status != model.CertificateStatusValid {
		t.Fatalf("status = %s, want valid (detail: %s)", info.Status, info.Detail)
	}
	if info.ExpiresAt.Unix() != expiry.Unix() {
		t.Errorf("expiry not taken from material: got %v, want %v", info.ExpiresAt, expiry)
	}
	if challenge.setupCalls != 1 || challenge.teardownCalls != 1 {
		t.Errorf("challenge setup/teardown = %d/%d, want 1/1", challenge.setupCalls, challenge.teardownCalls)
	}
	if runner.gotName != "certbot" {
		t.Errorf("invoked %s, want certbot", runner.gotName)
	}

	// a single invocation must cover all domains
	dFlags := 0
	for _, a := range runner.gotArgs {
		if a == "-d" {
			dFlags++
		}
	}
	if dFlags != 2 {
		t.Errorf("expected 2 -d flags in one invocation, got %d (args: %v)", dFlags, runner.gotArgs)
	}
}

func TestObtain_CommandExceptionStillTearsDown(t *testing.T) {
	runner := &fakeRunner{err: errors.New("executable file not found")}
	challenge := &fakeChallenge{}
	client := newTestClient(t.TempDir(), runner, challenge, &fakeReloader{})

	info := client.Obtain(context.Background(), "app.example.com", nil, "")

	if info.Status != model.CertificateStatusFailed {
		t.Fatalf("status = %s, want failed", info.Status)
	}
	if !info.Errored {
		t.Error("a command exception should be classified as errored")
	}
	if challenge.teardownCalls != 1 {
		t.Errorf("teardown called %d times, want exactly 1", challenge.teardownCalls)
	}
}

func TestObtain_NonZeroExitIsCleanFailure(t *testing.T) {
	runner := &fakeRunner{result: command.CmdResult{ExitCode: 1, Stderr: "rate limited"}}
	challenge := &fakeChallenge{}
	client := newTestClient(t.TempDir(), runner, challenge, &fakeReloader{})

	info := client.Obtain(context.Background(), "app.example.com", nil, "")

	if info.Status != model.CertificateStatusFailed {
		t.Fatalf("status = %s, want failed", info.Status)
	}
	if info.Errored {
		t.Error("a clean CA negative must not be classified as errored")
	}
	if challenge.teardownCalls != 1 {
		t.Errorf("teardown called %d times, want exactly 1", challenge.teardownCalls)
	}
}

func TestObtain_SetupFailureTearsDown(t *testing.T) {
	runner := &fakeRunner{result: command.CmdResult{ExitCode: 0}}
	challenge := &fakeChallenge{setupErr: errors.New("reload failed")}
	client := newTestClient(t.TempDir(), runner, challenge, &fakeReloader{})

	info := client.Obtain(context.Background(), "app.example.com", nil, "")

	if info.Status != model.CertificateStatusFailed {
		t.Fatalf("status = %s, want failed", info.Status)
	}
	if challenge.teardownCalls != 1 {
		t.Errorf("teardown called %d times, want exactly 1", challenge.teardownCalls)
	}
	if runner.gotName != "" {
		t.Error("issuance must not be invoked when challenge setup fails")
	}
}

func TestObtain_WithoutEmailRegistersUnsafely(t *testing.T) {
	runner := &fakeRunner{result: command.CmdResult{ExitCode: 1}}
	client := newTestClient(t.TempDir(), runner, &fakeChallenge{}, &fakeReloader{})

	client.Obtain(context.Background(), "app.example.com", nil, "")

	found := false
	for _, a := range runner.gotArgs {
		if a == "--register-unsafely-without-email" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected --register-unsafely-without-email in args %v", runner.gotArgs)
	}
}

func TestRenew_SuccessTriggersReload(t *testing.T) {
	certDir := t.TempDir()
	writeTestMaterial(t, certDir, "app.example.com", time.Now().Add(90*24*time.Hour), []string{"app.example.com"})

	runner := &fakeRunner{result: command.CmdResult{ExitCode: 0}}
	reloader := &fakeReloader{}
	client := newTestClient(certDir, runner, &fakeChallenge{}, reloader)

	info := client.Renew(context.Background(), "app.example.com")

	if info.Status != model.CertificateStatusValid {
		t.Fatalf("status = %s, want valid (detail: %s)", info.Status, info.Detail)
	}
	if reloader.calls != 1 {
		t.Errorf("reload called %d times, want 1", reloader.calls)
	}
}

func TestRenew_ReloadFailureIsWarningNotFailure(t *testing.T) {
	certDir := t.TempDir()
	writeTestMaterial(t, certDir, "app.example.com", time.Now().Add(90*24*time.Hour), []string{"app.example.com"})

	runner := &fakeRunner{result: command.CmdResult{ExitCode: 0}}
	reloader := &fakeReloader{err: errors.New("nginx: command not found")}
	client := newTestClient(certDir, runner, &fakeChallenge{}, reloader)

	info := client.Renew(context.Background(), "app.example.com")

	if info.Status != model.CertificateStatusValid {
		t.Fatalf("status = %s, want valid", info.Status)
	}
	if len(info.Warnings) != 1 {
		t.Errorf("warnings = %v, want one reload warning", info.Warnings)
	}
}

func TestRenew_ExpiredMaterialIsFailure(t *testing.T) {
	certDir := t.TempDir()
	writeTestMaterial(t, certDir, "app.example.com", time.Now().Add(-time.Hour), []string{"app.example.com"})

	runner := &fakeRunner{result: command.CmdResult{ExitCode: 0}}
	client := newTestClient(certDir, runner, &fakeChallenge{}, &fakeReloader{})

	info := client.Renew(context.Background(), "app.example.com")

	if info.Status != model.CertificateStatusFailed {
		t.Fatalf("status = %s, want failed for expired material", info.Status)
	}
}

func TestRevoke_MissingMaterialIsNoop(t *testing.T) {
	runner := &fakeRunner{result: command.CmdResult{ExitCode: 1}}
	client := newTestClient(t.TempDir(), runner, &fakeChallenge{}, &fakeReloader{})

	if err := client.Revoke(context.Background(), "gone.example.com"); err != nil {
		t.Fatalf("revoke without material should be a no-op, got %v", err)
	}
	if runner.gotName != "" {
		t.Error("revocation must not be invoked when no material exists")
	}
}

func TestRevoke_NonZeroExitIsError(t *testing.T) {
	certDir := t.TempDir()
	writeTestMaterial(t, certDir, "app.example.com", time.Now().Add(time.Hour), []string{"app.example.com"})

	runner := &fakeRunner{result: command.CmdResult{ExitCode: 1, Stderr: "unauthorized"}}
	client := newTestClient(certDir, runner, &fakeChallenge{}, &fakeReloader{})

	if err := client.Revoke(context.Background(), "app.example.com"); err == nil {
		t.Error("expected an error for a failed revocation")
	}
}
