package proxyhosts

import (
	"context"
	"fmt"
	"time"

	"proxyman/internal/domainutil"
	"proxyman/internal/httpx"
	"proxyman/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ConfigSync reconciles the on-disk vhost tree after proxy host changes.
// Failures are reported to the caller as warnings, never as errors.
type ConfigSync interface {
	Apply(ctx context.Context, host *model.ProxyHost) error
	Remove(ctx context.Context, domain string) error
}

// CertStore is the certificate cleanup surface used on host deletion.
type CertStore interface {
	DeleteForProxy(proxyHostID int) error
}

// Handler handles proxy hosts API
type Handler struct {
	db    *gorm.DB
	sync  ConfigSync
	certs CertStore
}

// NewHandler creates a new proxy hosts handler
func NewHandler(db *gorm.DB, sync ConfigSync, certs CertStore) *Handler {
	return &Handler{db: db, sync: sync, certs: certs}
}

// List handles GET /api/v1/proxy-hosts
func (h *Handler) List(c *gin.Context) {
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 {
		req.PageSize = 15
	}

	query := h.db.Model(&model.ProxyHost{})
	if req.Domain != "" {
		query = query.Where("domain LIKE ?", "%"+req.Domain+"%")
	}
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to count proxy hosts", err))
		return
	}

	var hosts []model.ProxyHost
	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("id DESC").Find(&hosts).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to fetch proxy hosts", err))
		return
	}

	items := make([]ProxyHostItemDTO, len(hosts))
	for i, host := range hosts {
		items[i] = toItemDTO(&host)
	}

	httpx.OK(c, ListResponse{
		Items:    items,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
}

// Get handles GET /api/v1/proxy-hosts/:id
func (h *Handler) Get(c *gin.Context) {
	var uri struct {
		ID int `uri:"id" binding:"required,min=1"`
	}
	if err := c.ShouldBindUri(&uri); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	var host model.ProxyHost
	if err := h.db.First(&host, uri.ID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			httpx.FailErr(c, httpx.ErrNotFound("proxy host not found"))
			return
		}
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to fetch proxy host", err))
		return
	}

	httpx.OK(c, toItemDTO(&host))
}

// Create handles POST /api/v1/proxy-hosts/create
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	domain, err := domainutil.Normalize(req.Domain)
	if err != nil {
		httpx.FailErr(c, httpx.ErrValidation(err.Error()))
		return
	}
	if req.ForwardPort < 1 || req.ForwardPort > 65535 {
		httpx.FailErr(c, httpx.ErrValidation("forwardPort must be between 1 and 65535"))
		return
	}

	var count int64
	if err := h.db.Model(&model.ProxyHost{}).Where("domain = ?", domain).Count(&count).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to check domain uniqueness", err))
		return
	}
	if count > 0 {
		httpx.FailErr(c, httpx.ErrConflict("a proxy host for this domain already exists"))
		return
	}

	host := model.ProxyHost{
		Domain:      domain,
		ForwardHost: req.ForwardHost,
		ForwardPort: req.ForwardPort,
		Status:      model.ProxyHostStatusActive,
		OwnerUserID: c.GetInt("uid"),
	}
	if err := h.db.Create(&host).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to create proxy host", err))
		return
	}

	warnings := h.applyConfig(c, &host)
	httpx.OKWarn(c, toItemDTO(&host), warnings)
}

// Update handles POST /api/v1/proxy-hosts/update
func (h *Handler) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	var host model.ProxyHost
	if err := h.db.First(&host, req.ID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			httpx.FailErr(c, httpx.ErrNotFound("proxy host not found"))
			return
		}
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to find proxy host", err))
		return
	}

	updates := map[string]interface{}{}
	if req.ForwardHost != nil {
		if *req.ForwardHost == "" {
			httpx.FailErr(c, httpx.ErrValidation("forwardHost must not be empty"))
			return
		}
		updates["forward_host"] = *req.ForwardHost
		host.ForwardHost = *req.ForwardHost
	}
	if req.ForwardPort != nil {
		if *req.ForwardPort < 1 || *req.ForwardPort > 65535 {
			httpx.FailErr(c, httpx.ErrValidation("forwardPort must be between 1 and 65535"))
			return
		}
		updates["forward_port"] = *req.ForwardPort
		host.ForwardPort = *req.ForwardPort
	}
	if req.Status != nil {
		switch *req.Status {
		case model.ProxyHostStatusActive, model.ProxyHostStatusInactive:
		default:
			httpx.FailErr(c, httpx.ErrValidation("status must be active or inactive"))
			return
		}
		updates["status"] = *req.Status
		host.Status = *req.Status
	}
	if len(updates) == 0 {
		httpx.FailErr(c, httpx.ErrParamInvalid("no fields to update"))
		return
	}

	if err := h.db.Model(&model.ProxyHost{}).Where("id = ?", host.ID).Updates(updates).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to update proxy host", err))
		return
	}

	warnings := h.applyConfig(c, &host)
	httpx.OKWarn(c, toItemDTO(&host), warnings)
}

// Delete handles POST /api/v1/proxy-hosts/delete. Certificate rows for
// the host are removed with it, and its vhost files are cleaned up.
func (h *Handler) Delete(c *gin.Context) {
	var req DeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	var host model.ProxyHost
	if err := h.db.First(&host, req.ID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			httpx.FailErr(c, httpx.ErrNotFound("proxy host not found"))
			return
		}
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to find proxy host", err))
		return
	}

	if err := h.certs.DeleteForProxy(host.ID); err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to delete certificates", err))
		return
	}
	if err := h.db.Delete(&model.ProxyHost{}, host.ID).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to delete proxy host", err))
		return
	}

	var warnings []string
	if h.sync != nil {
		if err := h.sync.Remove(c.Request.Context(), host.Domain); err != nil {
			warnings = append(warnings, fmt.Sprintf("vhost cleanup failed: %v", err))
		}
	}
	httpx.OKWarn(c, gin.H{"id": host.ID}, warnings)
}

// applyConfig pushes the host's vhost to disk; a failure degrades to a
// warning so the database stays the source of truth.
func (h *Handler) applyConfig(c *gin.Context, host *model.ProxyHost) []string {
	if h.sync == nil {
		return nil
	}
	if err := h.sync.Apply(c.Request.Context(), host); err != nil {
		return []string{fmt.Sprintf("vhost sync failed: %v", err)}
	}
	return nil
}

func toItemDTO(host *model.ProxyHost) ProxyHostItemDTO {
	return ProxyHostItemDTO{
		ID:          host.ID,
		Domain:      host.Domain,
		ForwardHost: host.ForwardHost,
		ForwardPort: host.ForwardPort,
		TLSEnabled:  host.TLSEnabled,
		Status:      host.Status,
		OwnerUserID: host.OwnerUserID,
		CreatedAt:   host.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   host.UpdatedAt.Format(time.RFC3339),
	}
}
