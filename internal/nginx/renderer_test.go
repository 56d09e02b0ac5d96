package nginx

import (
	"strings"
	"testing"

	"proxyman/internal/model"
)

func testHost(tls bool) *model.ProxyHost {
	h := &model.ProxyHost{
		Domain:      "app.example.com",
		ForwardHost: "10.0.0.5",
		ForwardPort: 8080,
		TLSEnabled:  tls,
		Status:      model.ProxyHostStatusActive,
	}
	h.ID = 7
	return h
}

func TestRenderHTTP(t *testing.T) {
	r := NewRenderer("/etc/letsencrypt")
	content, err := r.Render(testHost(false))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{
		"listen 80;",
		"server_name app.example.com;",
		"proxy_pass http://10.0.0.5:8080;",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("missing %q in:\n%s", want, content)
		}
	}
	if strings.Contains(content, "443") {
		t.Errorf("plain host must not listen on 443:\n%s", content)
	}
}

func TestRenderHTTPS(t *testing.T) {
	r := NewRenderer("/etc/letsencrypt")
	content, err := r.Render(testHost(true))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{
		"listen 443 ssl;",
		"return 301 https://$host$request_uri;",
		"ssl_certificate /etc/letsencrypt/live/app.example.com/fullchain.pem;",
		"ssl_certificate_key /etc/letsencrypt/live/app.example.com/privkey.pem;",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("missing %q in:\n%s", want, content)
		}
	}
}

func TestRenderDeterministic(t *testing.T) {
	r := NewRenderer("/etc/letsencrypt")
	first, err := r.Render(testHost(true))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	second, err := r.Render(testHost(true))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if first != second {
		t.Error("renders of the same host differ")
	}
	if ContentHash(first) != ContentHash(second) {
		t.Error("content hashes differ for identical content")
	}
}

func TestRenderInvalidHost(t *testing.T) {
	r := NewRenderer("/etc/letsencrypt")

	tests := []struct {
		name   string
		mutate func(*model.ProxyHost)
	}{
		{"empty domain", func(h *model.ProxyHost) { h.Domain = "" }},
		{"empty forward host", func(h *model.ProxyHost) { h.ForwardHost = "" }},
		{"zero port", func(h *model.ProxyHost) { h.ForwardPort = 0 }},
		{"port out of range", func(h *model.ProxyHost) { h.ForwardPort = 70000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testHost(false)
			tt.mutate(h)
			if _, err := r.Render(h); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
