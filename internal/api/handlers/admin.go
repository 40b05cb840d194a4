package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/adamscao/licenseserver/internal/auth"
	"github.com/adamscao/licenseserver/internal/db/repository"
	"github.com/adamscao/licenseserver/internal/metrics"
	"github.com/adamscao/licenseserver/internal/models"
	"github.com/adamscao/licenseserver/internal/policy"
	"github.com/adamscao/licenseserver/internal/service"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// AdminHandler handles administrative operations
type AdminHandler struct {
	service     *service.Service
	userRepo    *repository.UserRepository
	productRepo *repository.ProductRepository
	licenseRepo *repository.LicenseRepository
	logRepo     *repository.LicenseLogRepository
	auditRepo   *repository.AuditRepository
	validator   *policy.Validator
	metrics     *metrics.Metrics
	audit       auditLogger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(
	svc *service.Service,
	userRepo *repository.UserRepository,
	productRepo *repository.ProductRepository,
	licenseRepo *repository.LicenseRepository,
	logRepo *repository.LicenseLogRepository,
	auditRepo *repository.AuditRepository,
	validator *policy.Validator,
	m *metrics.Metrics,
) *AdminHandler {
	return &AdminHandler{
		service:     svc,
		userRepo:    userRepo,
		productRepo: productRepo,
		licenseRepo: licenseRepo,
		logRepo:     logRepo,
		auditRepo:   auditRepo,
		validator:   validator,
		metrics:     m,
		audit:       auditLogger{repo: auditRepo},
	}
}

// CreateUserRequest represents a user creation request
type CreateUserRequest struct {
	Username    string `json:"username" binding:"required"`
	Password    string `json:"password" binding:"required"`
	Email       string `json:"email"`
	Enabled     *bool  `json:"enabled"`
	MaxLicenses int    `json:"max_licenses"`
	EnableTOTP  bool   `json:"enable_totp"`
}

// CreateUserResponse represents a user creation response
type CreateUserResponse struct {
	Status     string `json:"status"`
	UserID     int64  `json:"user_id"`
	TOTPSecret string `json:"totp_secret,omitempty"`
	TOTPQRUrl  string `json:"totp_qr_url,omitempty"`
}

// CreateUser creates a new user
// POST /api/v1/admin/users
func (h *AdminHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBindError(c, err)
		return
	}

	ctx := c.Request.Context()

	// Hash password
	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_password", err.Error())
		return
	}

	// Set defaults
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	var secret, qrURL string
	if req.EnableTOTP {
		secret, err = auth.GenerateTOTPSecret(req.Username)
		if err != nil {
			log.WithError(err).Error("Failed to generate TOTP secret")
			RespondError(c, http.StatusInternalServerError, "internal_error", "Failed to generate TOTP secret")
			return
		}
		qrURL = auth.GenerateQRCodeURL(secret, req.Username, "")
	}

	user := &models.User{
		Username:     req.Username,
		PasswordHash: passwordHash,
		TOTPSecret:   secret,
		Email:        req.Email,
		Enabled:      enabled,
		MaxLicenses:  req.MaxLicenses,
	}

	if err := h.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			RespondError(c, http.StatusConflict, "user_exists", "User already exists")
			return
		}
		log.WithError(err).Error("Failed to create user")
		RespondError(c, http.StatusInternalServerError, "database_error", "Failed to create user")
		return
	}

	h.audit.success(ctx, models.ActionAdminCreateUser, req.Username, GetClientIP(c), c.GetHeader("User-Agent"), nil)

	RespondSuccess(c, CreateUserResponse{
		Status:     "ok",
		UserID:     user.ID,
		TOTPSecret: secret,
		TOTPQRUrl:  qrURL,
	})
}

// ListUsers lists all users
// GET /api/v1/admin/users
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.userRepo.List(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("Failed to list users")
		RespondError(c, http.StatusInternalServerError, "database_error", "Failed to list users")
		return
	}
	RespondSuccess(c, gin.H{"users": users})
}

// CreateProductRequest represents a product creation request
type CreateProductRequest struct {
	Name        string `json:"name" binding:"required"`
	ProductCode string `json:"product_code" binding:"required"`
	Description string `json:"description"`
}

// CreateProduct registers a licensable product
// POST /api/v1/admin/products
func (h *AdminHandler) CreateProduct(c *gin.Context) {
	var req CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBindError(c, err)
		return
	}

	ctx := c.Request.Context()
	product := &models.Product{
		Name:        strings.TrimSpace(req.Name),
		ProductCode: strings.TrimSpace(req.ProductCode),
		Description: req.Description,
	}

	if err := h.productRepo.Create(ctx, product); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			RespondError(c, http.StatusConflict, "product_exists", "Product already exists")
			return
		}
		log.WithError(err).Error("Failed to create product")
		RespondError(c, http.StatusInternalServerError, "database_error", "Failed to create product")
		return
	}

	h.audit.success(ctx, models.ActionAdminCreateProduct, "", GetClientIP(c), c.GetHeader("User-Agent"), map[string]string{
		"product_code": product.ProductCode,
	})

	RespondSuccess(c, product)
}

// ListProducts lists all products
// GET /api/v1/admin/products
func (h *AdminHandler) ListProducts(c *gin.Context) {
	products, err := h.productRepo.List(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("Failed to list products")
		RespondError(c, http.StatusInternalServerError, "database_error", "Failed to list products")
		return
	}
	RespondSuccess(c, gin.H{"products": products})
}

// ListLicenses lists license summaries, filtered by ?username=, ?product=
// and ?active=true
// GET /api/v1/admin/licenses
func (h *AdminHandler) ListLicenses(c *gin.Context) {
	stored, err := h.licenseRepo.List(c.Request.Context(), repository.ListFilter{
		Username:    c.Query("username"),
		ProductCode: c.Query("product"),
		OnlyActive:  c.Query("active") == "true",
		Limit:       queryLimit(c),
	})
	if err != nil {
		log.WithError(err).Error("Failed to list licenses")
		RespondError(c, http.StatusInternalServerError, "database_error", "Failed to list licenses")
		return
	}

	now := time.Now()
	summaries := make([]*models.LicenseSummary, 0, len(stored))
	for _, s := range stored {
		summaries = append(summaries, service.Summarize(s, now))
	}
	RespondSuccess(c, gin.H{"licenses": summaries})
}

// RevokeLicense revokes a license
// POST /api/v1/admin/licenses/:key/revoke
func (h *AdminHandler) RevokeLicense(c *gin.Context) {
	ctx := c.Request.Context()
	key := c.Param("key")

	if err := h.service.Revoke(ctx, key); err != nil {
		h.respondLicenseError(c, err, "Failed to revoke license")
		return
	}
	h.metrics.RevocationsTotal.Inc()

	h.audit.success(ctx, models.ActionLicenseRevoke, "", GetClientIP(c), c.GetHeader("User-Agent"), map[string]string{
		"license_key": key,
	})

	RespondSuccess(c, gin.H{"status": "revoked", "license_key": key})
}

// RenewRequest represents a license renewal request
type RenewRequest struct {
	Days int `json:"days"`
}

// RenewLicense extends a license and re-signs it
// POST /api/v1/admin/licenses/:key/renew
func (h *AdminHandler) RenewLicense(c *gin.Context) {
	var req RenewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBindError(c, err)
		return
	}

	days, err := h.validator.AdjustDuration(req.Days)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_duration", err.Error())
		return
	}

	ctx := c.Request.Context()
	key := c.Param("key")

	renewed, err := h.service.Renew(ctx, key, days)
	if err != nil {
		h.respondLicenseError(c, err, "Failed to renew license")
		return
	}

	h.audit.success(ctx, models.ActionLicenseRenew, renewed.Username, GetClientIP(c), c.GetHeader("User-Agent"), map[string]interface{}{
		"license_key": key,
		"days":        days,
		"expiry_date": renewed.ExpiryDate.String(),
	})

	RespondSuccess(c, renewed)
}

// GetLicenseLogs lists verification attempts for a license
// GET /api/v1/admin/licenses/:key/logs
func (h *AdminHandler) GetLicenseLogs(c *gin.Context) {
	logs, err := h.logRepo.ListByKey(c.Request.Context(), c.Param("key"), queryLimit(c))
	if err != nil {
		log.WithError(err).Error("Failed to list license logs")
		RespondError(c, http.StatusInternalServerError, "database_error", "Failed to list license logs")
		return
	}
	RespondSuccess(c, gin.H{"logs": logs})
}

// ListAuditLogs lists administrative audit entries, filtered by ?username=
// and ?action=
// GET /api/v1/admin/audit
func (h *AdminHandler) ListAuditLogs(c *gin.Context) {
	entries, err := h.auditRepo.List(c.Request.Context(), c.Query("username"), c.Query("action"), queryLimit(c))
	if err != nil {
		log.WithError(err).Error("Failed to list audit logs")
		RespondError(c, http.StatusInternalServerError, "database_error", "Failed to list audit logs")
		return
	}
	RespondSuccess(c, gin.H{"entries": entries})
}

func (h *AdminHandler) respondLicenseError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		RespondError(c, http.StatusNotFound, "license_not_found", "License not found")
	case errors.Is(err, repository.ErrRevoked):
		RespondError(c, http.StatusConflict, "license_revoked", err.Error())
	case errors.Is(err, service.ErrInvalidDuration):
		RespondError(c, http.StatusBadRequest, "invalid_duration", err.Error())
	default:
		log.WithError(err).Error(message)
		RespondError(c, http.StatusInternalServerError, "internal_error", message)
	}
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
