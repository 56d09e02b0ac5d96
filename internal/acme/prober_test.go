package acme

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestProbe_NotFoundResponseIsReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	prober := NewProber(4 * time.Second)
	result := prober.Probe(context.Background(), strings.TrimPrefix(srv.URL, "http://"))

	if !result.Reachable {
		t.Fatalf("expected reachable, got error %q", result.Error)
	}
	if result.StatusCode != http.StatusNotFound {
		t.Errorf("statusCode = %d, want 404", result.StatusCode)
	}
}

func TestProbe_RedirectIsNotFollowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://unreachable.invalid/", http.StatusMovedPermanently)
	}))
	defer srv.Close()

	prober := NewProber(4 * time.Second)
	result := prober.Probe(context.Background(), strings.TrimPrefix(srv.URL, "http://"))

	if !result.Reachable {
		t.Fatalf("expected reachable, got error %q", result.Error)
	}
	if result.StatusCode != http.StatusMovedPermanently {
		t.Errorf("statusCode = %d, want 301", result.StatusCode)
	}
}

func TestProbe_ConnectionRefused(t *testing.T) {
	// Grab a port that nothing listens on.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	prober := NewProber(2 * time.Second)
	result := prober.Probe(context.Background(), addr)

	if result.Reachable {
		t.Fatal("expected unreachable for a closed port")
	}
	if result.Error == "" {
		t.Error("expected a classified error")
	}
	if strings.Contains(result.Error, "timeout") {
		t.Errorf("connection refusal misclassified as timeout: %q", result.Error)
	}
}

func TestProbe_TimeoutClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	prober := NewProber(50 * time.Millisecond)
	result := prober.Probe(context.Background(), strings.TrimPrefix(srv.URL, "http://"))

	if result.Reachable {
		t.Fatal("expected unreachable on timeout")
	}
	if result.Error != "timeout" {
		t.Errorf("error = %q, want %q", result.Error, "timeout")
	}
}
