package certificates

import (
	"strconv"
	"time"

	"proxyman/internal/certsvc"
	"proxyman/internal/domainutil"
	"proxyman/internal/httpx"
	"proxyman/internal/model"
	"proxyman/internal/scheduler"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler handles certificates API
type Handler struct {
	db    *gorm.DB
	svc   *certsvc.Service
	sched *scheduler.Scheduler
}

// NewHandler creates a new certificates handler
func NewHandler(db *gorm.DB, svc *certsvc.Service, sched *scheduler.Scheduler) *Handler {
	return &Handler{db: db, svc: svc, sched: sched}
}

// List handles GET /api/v1/certificates
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

	query := h.db.Model(&model.Certificate{})
	if req.ProxyHostID != nil {
		query = query.Where("proxy_host_id = ?", *req.ProxyHostID)
	}
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to count certificates", err))
		return
	}

	var certs []model.Certificate
	offset := (req.Page - 1) * req.PageSize
	if err := query.Preload("Domains").Offset(offset).Limit(req.PageSize).
		Order("id DESC").Find(&certs).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to fetch certificates", err))
		return
	}

	items := make([]CertificateItemDTO, len(certs))
	for i := range certs {
		items[i] = toItemDTO(&certs[i])
	}

	httpx.OK(c, ListResponse{
		Items:    items,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
}

// Request handles POST /api/v1/certificates/request. The operation runs
// the full issuance synchronously; a clean CA refusal comes back as a
// failed certificate row, not as an API error.
func (h *Handler) Request(c *gin.Context) {
	var req RequestCertificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	sans := req.SANs
	if len(sans) > 0 {
		normalized, err := domainutil.NormalizeSet(sans)
		if err != nil {
			httpx.FailErr(c, httpx.ErrValidation(err.Error()))
			return
		}
		sans = normalized
	}

	cert, warnings, err := h.svc.RequestCertificate(c.Request.Context(), req.ProxyHostID, sans, req.Email)
	if err != nil {
		failErr(c, err)
		return
	}
	httpx.OKWarn(c, toItemDTO(cert), warnings)
}

// Renew handles POST /api/v1/certificates/renew
func (h *Handler) Renew(c *gin.Context) {
	var req RenewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	cert, warnings, err := h.svc.RenewCertificate(c.Request.Context(), req.ID, req.Force)
	if err != nil {
		failErr(c, err)
		return
	}
	httpx.OKWarn(c, toItemDTO(cert), warnings)
}

// Revoke handles POST /api/v1/certificates/revoke
func (h *Handler) Revoke(c *gin.Context) {
	var req RevokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	warnings, err := h.svc.RevokeCertificate(c.Request.Context(), req.ID)
	if err != nil {
		failErr(c, err)
		return
	}
	httpx.OKWarn(c, gin.H{"id": req.ID}, warnings)
}

// Delete handles POST /api/v1/certificates/delete
func (h *Handler) Delete(c *gin.Context) {
	var req DeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	if err := h.svc.DeleteCertificate(c.Request.Context(), req.ID); err != nil {
		failErr(c, err)
		return
	}
	httpx.OK(c, gin.H{"id": req.ID})
}

// SSLStatus handles GET /api/v1/proxy-hosts/:id/ssl-status
func (h *Handler) SSLStatus(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid proxy host id"))
		return
	}

	status, err := h.svc.GetSSLStatus(id)
	if err != nil {
		failErr(c, err)
		return
	}
	httpx.OK(c, status)
}

// Expiring handles GET /api/v1/certificates/expiring
func (h *Handler) Expiring(c *gin.Context) {
	horizon := h.svc.RenewBeforeDays()
	if raw := c.Query("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days < 1 {
			httpx.FailErr(c, httpx.ErrParamInvalid("days must be a positive integer"))
			return
		}
		horizon = days
	}

	certs, err := h.svc.ListExpiringSoon(horizon)
	if err != nil {
		failErr(c, err)
		return
	}

	items := make([]CertificateItemDTO, len(certs))
	for i := range certs {
		items[i] = toItemDTO(&certs[i])
	}
	httpx.OK(c, gin.H{
		"items":       items,
		"total":       len(items),
		"horizonDays": horizon,
	})
}

// RenewalStats handles GET /api/v1/certificates/renewal-stats
func (h *Handler) RenewalStats(c *gin.Context) {
	stats, err := h.svc.GetRenewalStats(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	httpx.OK(c, gin.H{
		"stats":            stats,
		"schedulerRunning": h.sched != nil && h.sched.Running(),
	})
}

// ForceRenewalCheck handles POST /api/v1/certificates/force-renewal-check.
// It runs one scheduler sweep immediately and returns its summary.
func (h *Handler) ForceRenewalCheck(c *gin.Context) {
	if h.sched == nil {
		httpx.FailErr(c, httpx.ErrValidation("scheduler is not configured"))
		return
	}
	result := h.sched.Sweep(c.Request.Context())
	httpx.OK(c, result)
}

// failErr forwards service errors, falling back to an internal error for
// anything untyped.
func failErr(c *gin.Context, err error) {
	if appErr, ok := err.(*httpx.AppError); ok {
		httpx.FailErr(c, appErr)
		return
	}
	httpx.FailErr(c, httpx.ErrInternalError("internal error", err))
}

func toItemDTO(cert *model.Certificate) CertificateItemDTO {
	var domains []string
	for _, d := range cert.Domains {
		domains = append(domains, d.Domain)
	}
	return CertificateItemDTO{
		ID:              cert.ID,
		ProxyHostID:     cert.ProxyHostID,
		Domain:          cert.Domain,
		Domains:         domains,
		Status:          cert.Status,
		ExpiresAt:       cert.ExpiresAt.UTC().Format(time.RFC3339),
		DaysUntilExpiry: cert.DaysUntilExpiry(time.Now().UTC()),
		LastError:       cert.LastError,
		CreatedAt:       cert.CreatedAt.UTC().Format(time.RFC3339),
	}
}
