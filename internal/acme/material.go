package acme

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"
)

// Material holds the authoritative fields read from issued certificate
// material on disk. Expiry is never computed client-side once material
// exists.
type Material struct {
	Issuer    string
	NotBefore time.Time
	NotAfter  time.Time
	DNSNames  []string
}

// materialPath returns the predictable per-domain path of issued material.
func materialPath(certDir, primaryDomain string) string {
	return filepath.Join(certDir, "live", primaryDomain, "fullchain.pem")
}

// certPath returns the leaf certificate path used for revocation.
func certPath(certDir, primaryDomain string) string {
	return filepath.Join(certDir, "live", primaryDomain, "cert.pem")
}

// MaterialExists reports whether issued material is present for a domain.
func MaterialExists(certDir, primaryDomain string) bool {
	_, err := os.Stat(materialPath(certDir, primaryDomain))
	return err == nil
}

// ReadMaterial reads and parses the issued certificate for a primary
// domain, returning its authoritative timestamps and covered names.
func ReadMaterial(certDir, primaryDomain string) (*Material, error) {
	raw, err := os.ReadFile(materialPath(certDir, primaryDomain))
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate material: %w", err)
	}

	cert, err := certcrypto.ParsePEMCertificate(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate material: %w", err)
	}

	return &Material{
		Issuer:    cert.Issuer.CommonName,
		NotBefore: cert.NotBefore,
		NotAfter:  cert.NotAfter,
		DNSNames:  cert.DNSNames,
	}, nil
}
