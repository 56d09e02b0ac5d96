package model

// ProxyHost represents one domain-to-backend mapping served by nginx
type ProxyHost struct {
	BaseModel
	Domain      string `gorm:"type:varchar(255);uniqueIndex:uk_proxy_hosts_domain;not null" json:"domain"`
	ForwardHost string `gorm:"type:varchar(255);not null" json:"forwardHost"`
	ForwardPort int    `gorm:"not null" json:"forwardPort"`
	TLSEnabled  bool   `gorm:"not null;default:false" json:"tlsEnabled"`
	Status      string `gorm:"type:enum('active','inactive','error');default:'active'" json:"status"`
	OwnerUserID int    `gorm:"not null;index" json:"ownerUserId"`

	Certificates []Certificate `gorm:"foreignKey:ProxyHostID" json:"certificates,omitempty"`
}

// TableName specifies the table name for ProxyHost
func (ProxyHost) TableName() string {
	return "proxy_hosts"
}

// ProxyHost status constants
const (
	ProxyHostStatusActive   = "active"
	ProxyHostStatusInactive = "inactive"
	ProxyHostStatusError    = "error"
)
