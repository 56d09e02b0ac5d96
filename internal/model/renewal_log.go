package model

import "time"

// RenewalLog is an append-only audit record of a renewal attempt.
// Domain is a weak reference: the row outlives both the certificate and
// the proxy host it was attempted for.
type RenewalLog struct {
	ID        int       `gorm:"primaryKey;autoIncrement" json:"id"`
	Domain    string    `gorm:"type:varchar(255);not null;index" json:"domain"`
	Outcome   string    `gorm:"type:varchar(20);not null" json:"outcome"` // success|failed|error
	Detail    string    `gorm:"type:varchar(500)" json:"detail"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
}

// TableName specifies the table name for RenewalLog
func (RenewalLog) TableName() string {
	return "renewal_logs"
}

// Renewal outcome constants. "failed" is a clean negative result from the
// CA, "error" is an exception raised during the attempt itself.
const (
	RenewalOutcomeSuccess = "success"
	RenewalOutcomeFailed  = "failed"
	RenewalOutcomeError   = "error"
)
