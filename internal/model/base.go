package model

import (
	"time"
)

// BaseModel carries the id and timestamps every table shares. Certificate
// defines its own id because its rows are append-only lifecycle records.
type BaseModel struct {
	ID        int       `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
