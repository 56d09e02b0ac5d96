package proxyhosts

// ListRequest represents list proxy hosts request
type ListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
	Domain   string `form:"domain"`
	Status   string `form:"status"`
}

// ListResponse represents list proxy hosts response
type ListResponse struct {
	Items    []ProxyHostItemDTO `json:"items"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"pageSize"`
}

// ProxyHostItemDTO represents one proxy host in list responses
type ProxyHostItemDTO struct {
	ID          int    `json:"id"`
	Domain      string `json:"domain"`
	ForwardHost string `json:"forwardHost"`
	ForwardPort int    `json:"forwardPort"`
	TLSEnabled  bool   `json:"tlsEnabled"`
	Status      string `json:"status"`
	OwnerUserID int    `json:"ownerUserId"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

// CreateRequest represents create proxy host request
type CreateRequest struct {
	Domain      string `json:"domain" binding:"required"`
	ForwardHost string `json:"forwardHost" binding:"required"`
	ForwardPort int    `json:"forwardPort" binding:"required"`
}

// UpdateRequest represents update proxy host request
type UpdateRequest struct {
	ID          int     `json:"id" binding:"required"`
	ForwardHost *string `json:"forwardHost"`
	ForwardPort *int    `json:"forwardPort"`
	Status      *string `json:"status"`
}

// DeleteRequest represents delete proxy host request
type DeleteRequest struct {
	ID int `json:"id" binding:"required"`
}
