package certificates

// ListRequest represents list certificates request
type ListRequest struct {
	Page        int    `form:"page"`
	PageSize    int    `form:"pageSize"`
	ProxyHostID *int   `form:"proxyHostId"`
	Status      string `form:"status"`
}

// ListResponse represents list certificates response
type ListResponse struct {
	Items    []CertificateItemDTO `json:"items"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"pageSize"`
}

// CertificateItemDTO represents one certificate in responses
type CertificateItemDTO struct {
	ID              int      `json:"id"`
	ProxyHostID     int      `json:"proxyHostId"`
	Domain          string   `json:"domain"`
	Domains         []string `json:"domains,omitempty"`
	Status          string   `json:"status"`
	ExpiresAt       string   `json:"expiresAt"`
	DaysUntilExpiry int      `json:"daysUntilExpiry"`
	LastError       *string  `json:"lastError,omitempty"`
	CreatedAt       string   `json:"createdAt"`
}

// RequestCertificateRequest represents a certificate issuance request
type RequestCertificateRequest struct {
	ProxyHostID int      `json:"proxyHostId" binding:"required"`
	SANs        []string `json:"sans"`
	Email       string   `json:"email"`
}

// RenewRequest represents a certificate renewal request
type RenewRequest struct {
	ID    int  `json:"id" binding:"required"`
	Force bool `json:"force"`
}

// RevokeRequest represents a certificate revocation request
type RevokeRequest struct {
	ID int `json:"id" binding:"required"`
}

// DeleteRequest represents a certificate deletion request
type DeleteRequest struct {
	ID int `json:"id" binding:"required"`
}
