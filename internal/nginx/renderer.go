package nginx

import (
	"crypto/sha256"
	"fmt"
	"path/filepath"
	"strings"

	"proxyman/internal/model"
)

// Renderer produces vhost configuration for a proxy host. Output is a
// pure function of the host row and the certificate directory, so
// re-rendering an unchanged host yields byte-identical content.
type Renderer struct {
	certDir string
}

// NewRenderer creates a vhost renderer. certDir is the issued material
// root, live/<domain>/fullchain.pem and privkey.pem.
func NewRenderer(certDir string) *Renderer {
	return &Renderer{certDir: certDir}
}

// Render generates the vhost configuration for a proxy host. A host
// with TLS enabled gets an HTTPS server plus an HTTP redirect server;
// otherwise a plain HTTP server is emitted.
func (r *Renderer) Render(host *model.ProxyHost) (string, error) {
	if host.Domain == "" {
		return "", fmt.Errorf("proxy host %d has no domain", host.ID)
	}
	if host.ForwardHost == "" || host.ForwardPort <= 0 || host.ForwardPort > 65535 {
		return "", fmt.Errorf("proxy host %d has invalid forward target %s:%d",
			host.ID, host.ForwardHost, host.ForwardPort)
	}

	if host.TLSEnabled {
		return r.renderHTTPS(host), nil
	}
	return r.renderHTTP(host), nil
}

// ContentHash returns the sha256 hex digest of rendered content, used
// to skip rewrites when the on-disk file is already current.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", sum)
}

func (r *Renderer) renderHTTP(host *model.ProxyHost) string {
	var sb strings.Builder
	sb.WriteString("server {\n")
	sb.WriteString("    listen 80;\n")
	sb.WriteString(fmt.Sprintf("    server_name %s;\n", host.Domain))
	sb.WriteString("\n")
	r.writeProxyLocation(&sb, host)
	sb.WriteString("}\n")
	return sb.String()
}

func (r *Renderer) renderHTTPS(host *model.ProxyHost) string {
	liveDir := filepath.Join(r.certDir, "live", host.Domain)

	var sb strings.Builder
	sb.WriteString("server {\n")
	sb.WriteString("    listen 80;\n")
	sb.WriteString(fmt.Sprintf("    server_name %s;\n", host.Domain))
	sb.WriteString("    return 301 https://$host$request_uri;\n")
	sb.WriteString("}\n")
	sb.WriteString("\n")
	sb.WriteString("server {\n")
	sb.WriteString("    listen 443 ssl;\n")
	sb.WriteString(fmt.Sprintf("    server_name %s;\n", host.Domain))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("    ssl_certificate %s;\n", filepath.Join(liveDir, "fullchain.pem")))
	sb.WriteString(fmt.Sprintf("    ssl_certificate_key %s;\n", filepath.Join(liveDir, "privkey.pem")))
	sb.WriteString("    ssl_protocols TLSv1.2 TLSv1.3;\n")
	sb.WriteString("\n")
	r.writeProxyLocation(&sb, host)
	sb.WriteString("}\n")
	return sb.String()
}

func (r *Renderer) writeProxyLocation(sb *strings.Builder, host *model.ProxyHost) {
	sb.WriteString("    location / {\n")
	sb.WriteString(fmt.Sprintf("        proxy_pass http://%s:%d;\n", host.ForwardHost, host.ForwardPort))
	sb.WriteString("        proxy_set_header Host $host;\n")
	sb.WriteString("        proxy_set_header X-Real-IP $remote_addr;\n")
	sb.WriteString("        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;\n")
	sb.WriteString("        proxy_set_header X-Forwarded-Proto $scheme;\n")
	sb.WriteString("    }\n")
}
