package challenge

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

type countingReloader struct {
	calls int
}

func (r *countingReloader) Reload() error {
	r.calls++
	return nil
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func TestSetUpAndTearDown(t *testing.T) {
	dir := t.TempDir()
	reloader := &countingReloader{}
	adapter := NewAdapter(dir, "/var/www/acme", reloader, testLogger())

	domains := []string{"app.example.com", "www.example.com"}
	if err := adapter.SetUp(context.Background(), domains); err != nil {
		t.Fatalf("SetUp() failed: %v", err)
	}

	for _, d := range domains {
		path := filepath.Join(dir, d+".conf")
		raw, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("snippet for %s not written: %v", d, err)
		}
		if !strings.Contains(string(raw), "/.well-known/acme-challenge/") {
			t.Errorf("snippet for %s missing well-known location", d)
		}
		if !strings.Contains(string(raw), "server_name "+d+";") {
			t.Errorf("snippet for %s missing server_name", d)
		}
	}
	if reloader.calls != 1 {
		t.Errorf("reload called %d times after setup, want 1", reloader.calls)
	}

	if err := adapter.TearDown(context.Background(), domains); err != nil {
		t.Fatalf("TearDown() failed: %v", err)
	}

	for _, d := range domains {
		if _, err := os.Stat(filepath.Join(dir, d+".conf")); !os.IsNotExist(err) {
			t.Errorf("snippet for %s still present after teardown", d)
		}
	}
	if reloader.calls != 2 {
		t.Errorf("reload called %d times after teardown, want 2", reloader.calls)
	}
}

func TestTearDown_AlreadyAbsentIsSuccess(t *testing.T) {
	reloader := &countingReloader{}
	adapter := NewAdapter(t.TempDir(), "/var/www/acme", reloader, testLogger())

	if err := adapter.TearDown(context.Background(), []string{"never.example.com"}); err != nil {
		t.Fatalf("TearDown() on absent snippets should succeed, got %v", err)
	}
	if reloader.calls != 0 {
		t.Errorf("no reload expected when nothing was removed, got %d", reloader.calls)
	}
}
