package model

import "time"

// CertificateDomain represents a domain covered by a certificate (SAN).
// The unique index enforces set semantics per certificate.
type CertificateDomain struct {
	ID            int       `gorm:"primaryKey;autoIncrement" json:"id"`
	CertificateID int       `gorm:"not null;uniqueIndex:uk_cert_domain" json:"certificateId"`
	Domain        string    `gorm:"type:varchar(255);not null;uniqueIndex:uk_cert_domain" json:"domain"`
	IsPrimary     bool      `gorm:"not null;default:false" json:"isPrimary"`
	CreatedAt     time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
}

// TableName specifies the table name for CertificateDomain
func (CertificateDomain) TableName() string {
	return "certificate_domains"
}
