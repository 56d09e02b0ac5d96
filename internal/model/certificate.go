package model

import (
	"time"

	"gorm.io/datatypes"
)

// Certificate represents one issuance lineage for a proxy host.
// Rows are never reused: a renewal supersedes the old row and inserts a
// fresh pending one, so historical rows stay around for audit.
type Certificate struct {
	ID          int            `gorm:"primaryKey;autoIncrement" json:"id"`
	ProxyHostID int            `gorm:"not null;index" json:"proxyHostId"`
	Domain      string         `gorm:"type:varchar(255);not null;index" json:"domain"`
	Status      string         `gorm:"type:varchar(20);not null;default:pending" json:"status"` // pending|valid|expired|failed|revoked
	ExpiresAt   time.Time      `gorm:"not null" json:"expiresAt"`
	LastError   *string        `gorm:"type:varchar(500)" json:"lastError"`
	Meta        datatypes.JSON `gorm:"type:json" json:"meta"` // issuer, not_before
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`

	Domains []CertificateDomain `gorm:"foreignKey:CertificateID" json:"domains,omitempty"`
}

// TableName specifies the table name for Certificate
func (Certificate) TableName() string {
	return "certificates"
}

// Certificate status constants
const (
	CertificateStatusPending = "pending"
	CertificateStatusValid   = "valid"
	CertificateStatusExpired = "expired"
	CertificateStatusFailed  = "failed"
	CertificateStatusRevoked = "revoked"
)

// IsTerminalCertificateStatus reports whether a certificate may no longer
// leave its status.
func IsTerminalCertificateStatus(status string) bool {
	switch status {
	case CertificateStatusExpired, CertificateStatusFailed, CertificateStatusRevoked:
		return true
	}
	return false
}

// DaysUntilExpiry returns whole days remaining until the certificate expires,
// negative when already past expiry.
func (c *Certificate) DaysUntilExpiry(now time.Time) int {
	return int(c.ExpiresAt.Sub(now).Hours() / 24)
}

// NeedsRenewal reports whether the certificate is inside the renewal horizon.
func (c *Certificate) NeedsRenewal(now time.Time, horizonDays int) bool {
	return c.DaysUntilExpiry(now) <= horizonDays
}
