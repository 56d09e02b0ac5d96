package certsvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"proxyman/internal/acme"
	"proxyman/internal/cache"
	"proxyman/internal/certstore"
	"proxyman/internal/domainutil"
	"proxyman/internal/httpx"
	"proxyman/internal/model"

	"github.com/sirupsen/logrus"
)

// Store is the persistence surface the service needs. *certstore.Store
// satisfies it; tests substitute a fake.
type Store interface {
	RecordIssuanceAttempt(proxyHostID int, primaryDomain string, sanList []string) (int, error)
	Finalize(certID int, outcome certstore.Outcome) error
	Supersede(proxyHostID int) (*int, error)
	FindExpiringSoon(horizonDays int) ([]model.Certificate, error)
	ExpireOverdue() (int64, error)
	Revoke(certID int) error
	CurrentForProxy(proxyHostID int) (*model.Certificate, error)
	GetCertificate(certID int) (*model.Certificate, error)
	GetProxyHost(proxyHostID int) (*model.ProxyHost, error)
	SetProxyTLS(proxyHostID int, enabled bool) error
	SANsFor(certID int) ([]string, error)
	DeleteCertificate(certID int) error
	AppendRenewalLog(domain, outcome, detail string) error
	RecentRenewalsByStatus(since time.Time) (map[string]int64, error)
}

// Authority performs the actual certificate operations against the CA.
type Authority interface {
	Obtain(ctx context.Context, primaryDomain string, sanList []string, email string) acme.CertificateInfo
	Renew(ctx context.Context, primaryDomain string) acme.CertificateInfo
	Revoke(ctx context.Context, primaryDomain string) error
}

// Prober checks that a domain answers plain HTTP before an issuance
// attempt is recorded. A nil Prober disables the preflight.
type Prober interface {
	Probe(ctx context.Context, domain string) acme.ProbeResult
}

// ConfigSync re-renders and reloads the vhost for a proxy host after a
// certificate state change. Sync failures surface as warnings, never as
// operation errors.
type ConfigSync interface {
	Apply(ctx context.Context, host *model.ProxyHost) error
}

// Events receives lifecycle notifications for connected clients. A nil
// Events drops them.
type Events interface {
	Publish(event string, data interface{})
}

// Service owns the certificate lifecycle: issuance, renewal, revocation
// and the bookkeeping around them. All state transitions go through the
// store so its invariants hold regardless of caller.
type Service struct {
	store           Store
	authority       Authority
	prober          Prober
	configSync      ConfigSync
	events          Events
	renewBeforeDays int
	logger          *logrus.Entry
}

// NewService creates the certificate lifecycle service.
func NewService(store Store, authority Authority, prober Prober, configSync ConfigSync, events Events, renewBeforeDays int) *Service {
	return &Service{
		store:           store,
		authority:       authority,
		prober:          prober,
		configSync:      configSync,
		events:          events,
		renewBeforeDays: renewBeforeDays,
		logger:          logrus.WithField("component", "certsvc"),
	}
}

// SSLStatus describes the certificate situation of one proxy host.
type SSLStatus struct {
	HasCertificate  bool       `json:"hasCertificate"`
	CertificateID   int        `json:"certificateId,omitempty"`
	Status          string     `json:"status,omitempty"`
	Domain          string     `json:"domain,omitempty"`
	Domains         []string   `json:"domains,omitempty"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
	DaysUntilExpiry int        `json:"daysUntilExpiry,omitempty"`
	IsExpired       bool       `json:"isExpired"`
	NeedsRenewal    bool       `json:"needsRenewal"`
	LastError       *string    `json:"lastError,omitempty"`
}

// RenewalStats summarizes recent renewal activity.
type RenewalStats struct {
	WindowDays   int   `json:"windowDays"`
	Success      int64 `json:"success"`
	Failed       int64 `json:"failed"`
	Errored      int64 `json:"errored"`
	ExpiringSoon int   `json:"expiringSoon"`
	// ExpiringByApex groups the expiring certificates by registrable
	// domain, so a pile of subdomain certificates under one zone reads
	// as one problem, not many.
	ExpiringByApex map[string]int `json:"expiringByApex,omitempty"`
}

const (
	renewalStatsKey    = "proxyman:renewal_stats"
	renewalStatsTTL    = 5 * time.Minute
	renewalStatsWindow = 7 // days
)

// RequestCertificate runs a full issuance for a proxy host: reachability
// preflight, pending row, external CA invocation, finalization, and vhost
// sync. A clean CA refusal finalizes the row as failed and is NOT an
// error; the caller reads the outcome off the returned row.
func (s *Service) RequestCertificate(ctx context.Context, proxyHostID int, sanList []string, email string) (*model.Certificate, []string, error) {
	host, err := s.store.GetProxyHost(proxyHostID)
	if err != nil {
		return nil, nil, httpx.ErrDatabaseError("failed to load proxy host", err)
	}
	if host == nil {
		return nil, nil, httpx.ErrNotFound("proxy host not found")
	}

	if s.prober != nil {
		probe := s.prober.Probe(ctx, host.Domain)
		if !probe.Reachable {
			return nil, nil, httpx.ErrValidation(fmt.Sprintf(
				"domain %s is not reachable over HTTP: %s", host.Domain, probe.Error))
		}
	}

	certID, err := s.store.RecordIssuanceAttempt(host.ID, host.Domain, sanList)
	if err != nil {
		if errors.Is(err, certstore.ErrActiveCertificateExists) {
			return nil, nil, httpx.ErrConflict(err.Error())
		}
		return nil, nil, httpx.ErrDatabaseError("failed to record issuance attempt", err)
	}

	info := s.authority.Obtain(ctx, host.Domain, sanList, email)
	warnings, err := s.finalizeAttempt(ctx, certID, host, info)
	if err != nil {
		return nil, warnings, err
	}

	cert, err := s.store.GetCertificate(certID)
	if err != nil || cert == nil {
		return nil, warnings, httpx.ErrDatabaseError("failed to reload certificate", err)
	}
	s.publish(eventFor(info.Status, "issued"), certEvent(cert))
	return cert, warnings, nil
}

// RenewCertificate supersedes a valid certificate and runs a fresh
// issuance attempt for the same domain set. Outside the renewal horizon
// the request is refused unless force is set. The outcome is appended to
// the renewal log either way.
func (s *Service) RenewCertificate(ctx context.Context, certID int, force bool) (*model.Certificate, []string, error) {
	cert, err := s.store.GetCertificate(certID)
	if err != nil {
		return nil, nil, httpx.ErrDatabaseError("failed to load certificate", err)
	}
	if cert == nil {
		return nil, nil, httpx.ErrNotFound("certificate not found")
	}
	if cert.Status != model.CertificateStatusValid {
		return nil, nil, httpx.ErrValidation(fmt.Sprintf(
			"only a valid certificate can be renewed, current status is %s", cert.Status))
	}

	now := time.Now().UTC()
	if !force && !cert.NeedsRenewal(now, s.renewBeforeDays) {
		return nil, nil, httpx.ErrValidation(fmt.Sprintf(
			"certificate has %d days remaining, renewal is allowed within %d days of expiry",
			cert.DaysUntilExpiry(now), s.renewBeforeDays))
	}

	host, err := s.store.GetProxyHost(cert.ProxyHostID)
	if err != nil {
		s.logRenewalError(cert.Domain, fmt.Sprintf("failed to load proxy host: %v", err))
		return nil, nil, httpx.ErrDatabaseError("failed to load proxy host", err)
	}
	if host == nil {
		s.logRenewalError(cert.Domain, "proxy host not found")
		return nil, nil, httpx.ErrNotFound("proxy host not found")
	}

	sans, err := s.store.SANsFor(cert.ID)
	if err != nil {
		s.logRenewalError(cert.Domain, fmt.Sprintf("failed to load certificate domains: %v", err))
		return nil, nil, httpx.ErrDatabaseError("failed to load certificate domains", err)
	}
	extras := sansWithoutPrimary(sans, cert.Domain)

	if _, err := s.store.Supersede(host.ID); err != nil {
		s.logRenewalError(cert.Domain, fmt.Sprintf("failed to supersede certificate: %v", err))
		return nil, nil, httpx.ErrDatabaseError("failed to supersede certificate", err)
	}
	newID, err := s.store.RecordIssuanceAttempt(host.ID, cert.Domain, extras)
	if err != nil {
		s.logRenewalError(cert.Domain, fmt.Sprintf("failed to record renewal attempt: %v", err))
		return nil, nil, httpx.ErrDatabaseError("failed to record renewal attempt", err)
	}

	info := s.authority.Renew(ctx, cert.Domain)
	warnings, err := s.finalizeAttempt(ctx, newID, host, info)
	s.appendRenewalLog(cert.Domain, info)
	if err != nil {
		return nil, warnings, err
	}

	renewed, err := s.store.GetCertificate(newID)
	if err != nil || renewed == nil {
		return nil, warnings, httpx.ErrDatabaseError("failed to reload certificate", err)
	}
	s.publish(eventFor(info.Status, "renewed"), certEvent(renewed))
	return renewed, warnings, nil
}

// RevokeCertificate revokes a valid certificate at the CA, marks the row
// revoked, and reverts the host to plain HTTP.
func (s *Service) RevokeCertificate(ctx context.Context, certID int) ([]string, error) {
	cert, err := s.store.GetCertificate(certID)
	if err != nil {
		return nil, httpx.ErrDatabaseError("failed to load certificate", err)
	}
	if cert == nil {
		return nil, httpx.ErrNotFound("certificate not found")
	}
	if cert.Status != model.CertificateStatusValid {
		return nil, httpx.ErrValidation(fmt.Sprintf(
			"only a valid certificate can be revoked, current status is %s", cert.Status))
	}

	if err := s.authority.Revoke(ctx, cert.Domain); err != nil {
		return nil, httpx.ErrExternalError("certificate authority revocation failed", err)
	}
	if err := s.store.Revoke(certID); err != nil {
		if errors.Is(err, certstore.ErrTerminalStatus) {
			return nil, httpx.ErrConflict(err.Error())
		}
		return nil, httpx.ErrDatabaseError("failed to mark certificate revoked", err)
	}

	var warnings []string
	if err := s.store.SetProxyTLS(cert.ProxyHostID, false); err != nil {
		warnings = append(warnings, fmt.Sprintf("failed to disable TLS on proxy host: %v", err))
	}
	if s.configSync != nil {
		if host, err := s.store.GetProxyHost(cert.ProxyHostID); err == nil && host != nil {
			host.TLSEnabled = false
			if err := s.configSync.Apply(ctx, host); err != nil {
				warnings = append(warnings, fmt.Sprintf("vhost sync failed: %v", err))
			}
		}
	}

	revoked, _ := s.store.GetCertificate(certID)
	if revoked != nil {
		s.publish("certificate.revoked", certEvent(revoked))
	}
	return warnings, nil
}

// DeleteCertificate removes a terminal row and its SAN set. Pending and
// valid rows are protected; revoke or let them run to completion first.
func (s *Service) DeleteCertificate(ctx context.Context, certID int) error {
	cert, err := s.store.GetCertificate(certID)
	if err != nil {
		return httpx.ErrDatabaseError("failed to load certificate", err)
	}
	if cert == nil {
		return httpx.ErrNotFound("certificate not found")
	}
	if !model.IsTerminalCertificateStatus(cert.Status) {
		return httpx.ErrConflict(fmt.Sprintf(
			"a %s certificate cannot be deleted, only expired, failed or revoked rows can", cert.Status))
	}
	// Best-effort CA revoke before the rows go away; the client treats
	// missing material on disk as a no-op and a refusal only means the
	// CA no longer cares about this certificate either.
	if cert.Status != model.CertificateStatusRevoked {
		if err := s.authority.Revoke(ctx, cert.Domain); err != nil {
			s.logger.WithError(err).WithField("domain", cert.Domain).
				Warn("best-effort revocation on delete failed")
		}
	}
	if err := s.store.DeleteCertificate(certID); err != nil {
		return httpx.ErrDatabaseError("failed to delete certificate", err)
	}
	s.publish("certificate.deleted", certEvent(cert))
	return nil
}

// GetSSLStatus reports the current certificate situation of a proxy host.
func (s *Service) GetSSLStatus(proxyHostID int) (*SSLStatus, error) {
	host, err := s.store.GetProxyHost(proxyHostID)
	if err != nil {
		return nil, httpx.ErrDatabaseError("failed to load proxy host", err)
	}
	if host == nil {
		return nil, httpx.ErrNotFound("proxy host not found")
	}

	cert, err := s.store.CurrentForProxy(proxyHostID)
	if err != nil {
		return nil, httpx.ErrDatabaseError("failed to load certificate", err)
	}
	if cert == nil {
		return &SSLStatus{HasCertificate: false}, nil
	}

	domains, err := s.store.SANsFor(cert.ID)
	if err != nil {
		return nil, httpx.ErrDatabaseError("failed to load certificate domains", err)
	}

	now := time.Now().UTC()
	expiresAt := cert.ExpiresAt
	return &SSLStatus{
		HasCertificate:  true,
		CertificateID:   cert.ID,
		Status:          cert.Status,
		Domain:          cert.Domain,
		Domains:         domains,
		ExpiresAt:       &expiresAt,
		DaysUntilExpiry: cert.DaysUntilExpiry(now),
		IsExpired:       cert.Status == model.CertificateStatusExpired || !expiresAt.After(now),
		NeedsRenewal:    cert.Status == model.CertificateStatusValid && cert.NeedsRenewal(now, s.renewBeforeDays),
		LastError:       cert.LastError,
	}, nil
}

// ListExpiringSoon returns valid certificates expiring within horizonDays.
// A non-positive horizon falls back to the configured renewal horizon.
func (s *Service) ListExpiringSoon(horizonDays int) ([]model.Certificate, error) {
	if horizonDays <= 0 {
		horizonDays = s.renewBeforeDays
	}
	certs, err := s.store.FindExpiringSoon(horizonDays)
	if err != nil {
		return nil, httpx.ErrDatabaseError("failed to query expiring certificates", err)
	}
	return certs, nil
}

// ExpireOverdue marks valid rows past their expiry as expired. The
// scheduler runs this ahead of each renewal sweep.
func (s *Service) ExpireOverdue() (int64, error) {
	n, err := s.store.ExpireOverdue()
	if err != nil {
		return 0, httpx.ErrDatabaseError("failed to expire overdue certificates", err)
	}
	if n > 0 {
		s.logger.WithField("count", n).Warn("certificates moved to expired")
		s.publish("certificate.expired", map[string]interface{}{"count": n})
	}
	return n, nil
}

// GetRenewalStats returns recent renewal counts, cached briefly so the
// dashboard can poll without hammering the log table.
func (s *Service) GetRenewalStats(ctx context.Context) (*RenewalStats, error) {
	var stats RenewalStats
	if cache.GetJSON(ctx, renewalStatsKey, &stats) {
		return &stats, nil
	}

	since := time.Now().UTC().AddDate(0, 0, -renewalStatsWindow)
	counts, err := s.store.RecentRenewalsByStatus(since)
	if err != nil {
		return nil, httpx.ErrDatabaseError("failed to query renewal log", err)
	}
	expiring, err := s.store.FindExpiringSoon(s.renewBeforeDays)
	if err != nil {
		return nil, httpx.ErrDatabaseError("failed to query expiring certificates", err)
	}

	stats = RenewalStats{
		WindowDays:   renewalStatsWindow,
		Success:      counts[model.RenewalOutcomeSuccess],
		Failed:       counts[model.RenewalOutcomeFailed],
		Errored:      counts[model.RenewalOutcomeError],
		ExpiringSoon: len(expiring),
	}
	if len(expiring) > 0 {
		stats.ExpiringByApex = make(map[string]int, len(expiring))
		for i := range expiring {
			apex, err := domainutil.EffectiveApex(expiring[i].Domain)
			if err != nil {
				apex = expiring[i].Domain
			}
			stats.ExpiringByApex[apex]++
		}
	}
	cache.SetJSON(ctx, renewalStatsKey, stats, renewalStatsTTL)
	return &stats, nil
}

// RenewBeforeDays exposes the configured renewal horizon.
func (s *Service) RenewBeforeDays() int {
	return s.renewBeforeDays
}

// finalizeAttempt persists the CA outcome and, for a freshly valid
// certificate, re-renders the host's vhost with TLS on. Vhost sync
// failures become warnings.
func (s *Service) finalizeAttempt(ctx context.Context, certID int, host *model.ProxyHost, info acme.CertificateInfo) ([]string, error) {
	outcome := certstore.Outcome{
		Status:    info.Status,
		ExpiresAt: info.ExpiresAt,
		NotBefore: info.NotBefore,
		Issuer:    info.Issuer,
		Domains:   info.Domains,
		Detail:    info.Detail,
	}
	if err := s.store.Finalize(certID, outcome); err != nil {
		return info.Warnings, httpx.ErrDatabaseError("failed to finalize certificate", err)
	}

	warnings := append([]string(nil), info.Warnings...)
	if info.Status == model.CertificateStatusValid && s.configSync != nil {
		host.TLSEnabled = true
		if err := s.configSync.Apply(ctx, host); err != nil {
			warnings = append(warnings, fmt.Sprintf("vhost sync failed: %v", err))
		}
	}
	return warnings, nil
}

// appendRenewalLog maps a CA result onto the three log outcomes: valid
// means success, a clean CA refusal means failed, an exception means
// error.
func (s *Service) appendRenewalLog(domain string, info acme.CertificateInfo) {
	outcome := model.RenewalOutcomeSuccess
	if info.Status != model.CertificateStatusValid {
		outcome = model.RenewalOutcomeFailed
		if info.Errored {
			outcome = model.RenewalOutcomeError
		}
	}
	if err := s.store.AppendRenewalLog(domain, outcome, info.Detail); err != nil {
		s.logger.WithError(err).WithField("domain", domain).Error("failed to append renewal log")
	}
}

// logRenewalError records a renewal attempt that broke before the CA was
// ever invoked, so the audit trail covers every candidate, not just the
// ones that reached the CA.
func (s *Service) logRenewalError(domain, detail string) {
	if err := s.store.AppendRenewalLog(domain, model.RenewalOutcomeError, detail); err != nil {
		s.logger.WithError(err).WithField("domain", domain).Error("failed to append renewal log")
	}
}

func (s *Service) publish(event string, data interface{}) {
	if s.events == nil {
		return
	}
	s.events.Publish(event, data)
}

func eventFor(status, verb string) string {
	if status == model.CertificateStatusValid {
		return "certificate." + verb
	}
	return "certificate.failed"
}

func certEvent(cert *model.Certificate) map[string]interface{} {
	return map[string]interface{}{
		"certificateId": cert.ID,
		"proxyHostId":   cert.ProxyHostID,
		"domain":        cert.Domain,
		"status":        cert.Status,
		"expiresAt":     cert.ExpiresAt,
	}
}

func sansWithoutPrimary(domains []string, primary string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		if d == primary {
			continue
		}
		out = append(out, d)
	}
	return out
}
