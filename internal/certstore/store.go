package certstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"proxyman/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Provisional certificate lifetime used until the real expiry is read from
// the issued material.
const provisionalLifetimeDays = 90

// Sentinel errors mapped to the API error taxonomy by callers.
var (
	// ErrActiveCertificateExists is returned when a pending or valid row
	// already exists for the proxy host and has not been superseded.
	ErrActiveCertificateExists = errors.New("an active certificate already exists for this proxy host")

	// ErrTerminalStatus is returned on an attempt to transition a row out
	// of expired, failed or revoked.
	ErrTerminalStatus = errors.New("certificate is in a terminal status")
)

// Store is the database-backed record of certificate lifecycle state.
// All other components read and write certificate state through it.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new certificate store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Outcome carries the result of a CA attempt into Finalize.
type Outcome struct {
	Status    string    // model.CertificateStatusValid or Failed
	ExpiresAt time.Time // authoritative expiry, required when valid
	NotBefore time.Time
	Issuer    string
	Domains   []string // full SAN replacement set, primary first
	Detail    string   // failure detail when failed
}

// RecordIssuanceAttempt inserts a pending row for the proxy host with a
// provisional expiry, recording the requested SAN set so a failed attempt
// still shows what was asked for. The pending/valid uniqueness invariant
// is enforced by locking the owning proxy host row before the count:
// under REPEATABLE READ a plain count-then-insert lets two racing
// requests both observe zero and both insert, so racing attempts for the
// same proxy must serialize on the host row.
func (s *Store) RecordIssuanceAttempt(proxyHostID int, primaryDomain string, sanList []string) (int, error) {
	var certID int

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var host model.ProxyHost
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&host, proxyHostID).Error; err != nil {
			return err
		}

		var active int64
		if err := tx.Model(&model.Certificate{}).
			Where("proxy_host_id = ?", proxyHostID).
			Where("status IN (?, ?)", model.CertificateStatusPending, model.CertificateStatusValid).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return ErrActiveCertificateExists
		}

		cert := &model.Certificate{
			ProxyHostID: proxyHostID,
			Domain:      primaryDomain,
			Status:      model.CertificateStatusPending,
			ExpiresAt:   time.Now().UTC().AddDate(0, 0, provisionalLifetimeDays),
		}
		if err := tx.Create(cert).Error; err != nil {
			return err
		}
		certID = cert.ID
		return replaceSANs(tx, certID, primaryDomain, sanList)
	})
	if err != nil {
		return 0, err
	}

	return certID, nil
}

// Finalize resolves a pending row to valid or failed. On valid it records
// the authoritative expiry from the issued material, replaces the SAN set
// and flips the owning proxy host's TLS flag.
func (s *Store) Finalize(certID int, outcome Outcome) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var cert model.Certificate
		if err := tx.First(&cert, certID).Error; err != nil {
			return err
		}
		if model.IsTerminalCertificateStatus(cert.Status) {
			return fmt.Errorf("finalize certificate %d: %w", certID, ErrTerminalStatus)
		}

		switch outcome.Status {
		case model.CertificateStatusValid:
			meta, _ := json.Marshal(map[string]string{
				"issuer":     outcome.Issuer,
				"not_before": outcome.NotBefore.UTC().Format(time.RFC3339),
			})
			if err := tx.Model(&cert).Updates(map[string]interface{}{
				"status":     model.CertificateStatusValid,
				"expires_at": outcome.ExpiresAt,
				"last_error": nil,
				"meta":       meta,
			}).Error; err != nil {
				return err
			}

			if err := replaceSANs(tx, certID, cert.Domain, outcome.Domains); err != nil {
				return err
			}

			return tx.Model(&model.ProxyHost{}).
				Where("id = ?", cert.ProxyHostID).
				Update("tls_enabled", true).Error

		case model.CertificateStatusFailed:
			detail := outcome.Detail
			if len(detail) > 500 {
				detail = detail[:500]
			}
			return tx.Model(&cert).Updates(map[string]interface{}{
				"status":     model.CertificateStatusFailed,
				"last_error": detail,
			}).Error

		default:
			return fmt.Errorf("finalize certificate %d: unsupported outcome %q", certID, outcome.Status)
		}
	})
}

// replaceSANs deletes the existing SAN rows for a certificate and inserts
// the new set (replace-all semantics). The primary domain is always the
// first row.
func replaceSANs(tx *gorm.DB, certID int, primaryDomain string, domains []string) error {
	if err := tx.Where("certificate_id = ?", certID).
		Delete(&model.CertificateDomain{}).Error; err != nil {
		return err
	}

	rows := make([]model.CertificateDomain, 0, len(domains)+1)
	seen := map[string]bool{}
	for i, d := range append([]string{primaryDomain}, domains...) {
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		rows = append(rows, model.CertificateDomain{
			CertificateID: certID,
			Domain:        d,
			IsPrimary:     i == 0,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.Create(&rows).Error
}

// Supersede transitions the most recent pending/valid row for a proxy host
// to expired and returns its id. Idempotent: returns nil when no active
// row exists.
func (s *Store) Supersede(proxyHostID int) (*int, error) {
	var previousID *int

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var cert model.Certificate
		err := tx.Where("proxy_host_id = ?", proxyHostID).
			Where("status IN (?, ?)", model.CertificateStatusPending, model.CertificateStatusValid).
			Order("created_at DESC, id DESC").
			First(&cert).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		// Re-check the status in the update itself: a revoke committing
		// in between must not be pulled back to expired.
		result := tx.Model(&model.Certificate{}).
			Where("id = ? AND status IN (?, ?)",
				cert.ID, model.CertificateStatusPending, model.CertificateStatusValid).
			Update("status", model.CertificateStatusExpired)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		previousID = &cert.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	return previousID, nil
}

// FindExpiringSoon returns valid certificates whose expiry falls within the
// horizon and has not already passed. Already-expired rows are handled
// by ExpireOverdue.
func (s *Store) FindExpiringSoon(horizonDays int) ([]model.Certificate, error) {
	now := time.Now().UTC()
	threshold := now.AddDate(0, 0, horizonDays)

	var certs []model.Certificate
	err := s.db.Where("status = ?", model.CertificateStatusValid).
		Where("expires_at > ?", now).
		Where("expires_at <= ?", threshold).
		Order("expires_at ASC").
		Find(&certs).Error
	return certs, err
}

// ExpireOverdue flips valid rows whose expiry has passed to expired and
// returns how many rows changed. Expired is terminal; the row stays for
// audit and a renewal inserts a fresh one.
func (s *Store) ExpireOverdue() (int64, error) {
	result := s.db.Model(&model.Certificate{}).
		Where("status = ?", model.CertificateStatusValid).
		Where("expires_at <= ?", time.Now().UTC()).
		Update("status", model.CertificateStatusExpired)
	return result.RowsAffected, result.Error
}

// Revoke transitions a certificate to revoked. Only a valid row may be
// revoked; the guard runs on the row so a racing transition loses.
func (s *Store) Revoke(certID int) error {
	result := s.db.Model(&model.Certificate{}).
		Where("id = ? AND status = ?", certID, model.CertificateStatusValid).
		Update("status", model.CertificateStatusRevoked)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("revoke certificate %d: %w", certID, ErrTerminalStatus)
	}
	return nil
}

// CurrentForProxy returns the most recently created certificate row for a
// proxy host, or nil when none exists. Historical rows are never reused.
func (s *Store) CurrentForProxy(proxyHostID int) (*model.Certificate, error) {
	var cert model.Certificate
	err := s.db.Where("proxy_host_id = ?", proxyHostID).
		Order("created_at DESC, id DESC").
		First(&cert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

// GetCertificate returns a certificate by id, nil when not found.
func (s *Store) GetCertificate(certID int) (*model.Certificate, error) {
	var cert model.Certificate
	err := s.db.First(&cert, certID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

// GetProxyHost returns a proxy host by id, nil when not found.
func (s *Store) GetProxyHost(proxyHostID int) (*model.ProxyHost, error) {
	var host model.ProxyHost
	err := s.db.First(&host, proxyHostID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &host, nil
}

// SetProxyTLS updates the TLS flag on a proxy host row.
func (s *Store) SetProxyTLS(proxyHostID int, enabled bool) error {
	return s.db.Model(&model.ProxyHost{}).
		Where("id = ?", proxyHostID).
		Update("tls_enabled", enabled).Error
}

// SANsFor returns the SAN set for a certificate, primary first.
func (s *Store) SANsFor(certID int) ([]string, error) {
	var rows []model.CertificateDomain
	if err := s.db.Where("certificate_id = ?", certID).
		Order("is_primary DESC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	domains := make([]string, len(rows))
	for i, r := range rows {
		domains[i] = r.Domain
	}
	return domains, nil
}

// DeleteCertificate removes a certificate row and its SAN children.
func (s *Store) DeleteCertificate(certID int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("certificate_id = ?", certID).
			Delete(&model.CertificateDomain{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Certificate{}, certID).Error
	})
}

// DeleteForProxy removes all certificate rows for a proxy host (cascade on
// proxy host deletion).
func (s *Store) DeleteForProxy(proxyHostID int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var ids []int
		if err := tx.Model(&model.Certificate{}).
			Where("proxy_host_id = ?", proxyHostID).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("certificate_id IN ?", ids).
			Delete(&model.CertificateDomain{}).Error; err != nil {
			return err
		}
		return tx.Where("proxy_host_id = ?", proxyHostID).
			Delete(&model.Certificate{}).Error
	})
}

// AppendRenewalLog appends an audit row for a renewal attempt.
func (s *Store) AppendRenewalLog(domain, outcome, detail string) error {
	if len(detail) > 500 {
		detail = detail[:500]
	}
	return s.db.Create(&model.RenewalLog{
		Domain:  domain,
		Outcome: outcome,
		Detail:  detail,
	}).Error
}

// RecentRenewalsByStatus returns renewal log counts per outcome since the
// given time.
func (s *Store) RecentRenewalsByStatus(since time.Time) (map[string]int64, error) {
	type row struct {
		Outcome string
		N       int64
	}
	var rows []row
	err := s.db.Model(&model.RenewalLog{}).
		Select("outcome, COUNT(*) AS n").
		Where("created_at >= ?", since).
		Group("outcome").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Outcome] = r.N
	}
	return counts, nil
}
