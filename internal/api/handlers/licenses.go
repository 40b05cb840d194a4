package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/adamscao/licenseserver/internal/auth"
	"github.com/adamscao/licenseserver/internal/config"
	"github.com/adamscao/licenseserver/internal/db/repository"
	"github.com/adamscao/licenseserver/internal/license"
	"github.com/adamscao/licenseserver/internal/metrics"
	"github.com/adamscao/licenseserver/internal/models"
	"github.com/adamscao/licenseserver/internal/policy"
	"github.com/adamscao/licenseserver/internal/service"
	"github.com/adamscao/licenseserver/internal/verify"
)

// LicenseHandler handles license generation, verification and lookup
type LicenseHandler struct {
	config      *config.Config
	service     *service.Service
	userRepo    *repository.UserRepository
	productRepo *repository.ProductRepository
	validator   *policy.Validator
	metrics     *metrics.Metrics
	audit       auditLogger
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(
	cfg *config.Config,
	svc *service.Service,
	userRepo *repository.UserRepository,
	productRepo *repository.ProductRepository,
	auditRepo *repository.AuditRepository,
	validator *policy.Validator,
	m *metrics.Metrics,
) *LicenseHandler {
	return &LicenseHandler{
		config:      cfg,
		service:     svc,
		userRepo:    userRepo,
		productRepo: productRepo,
		validator:   validator,
		metrics:     m,
		audit:       auditLogger{repo: auditRepo},
	}
}

// GenerateRequest represents a license generation request
type GenerateRequest struct {
	Username            string `json:"username" binding:"required"`
	Password            string `json:"password" binding:"required"`
	TOTP                string `json:"totp"`
	ProductID           string `json:"product_id" binding:"required"`
	CustomerName        string `json:"customer_name"`
	LicenseType         string `json:"license_type"`
	DurationDays        int    `json:"duration_days"`
	HardwareFingerprint string `json:"hardware_fingerprint" binding:"required"`
}

// GenerateLicense authenticates the user and issues a license bound to the
// presented hardware fingerprint
// POST /api/v1/licenses
func (h *LicenseHandler) GenerateLicense(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBindError(c, err)
		return
	}

	ctx := c.Request.Context()
	clientIP := GetClientIP(c)
	userAgent := c.GetHeader("User-Agent")

	// Get user
	user, err := h.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.WithError(err).Error("Failed to look up user")
			RespondError(c, http.StatusInternalServerError, "database_error", "Failed to look up user")
			return
		}
		h.audit.failure(ctx, models.ActionAuthFailed, req.Username, clientIP, userAgent, "User not found")
		RespondError(c, http.StatusUnauthorized, "invalid_credentials", "Invalid username or password")
		return
	}

	// Verify password
	validPassword, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !validPassword {
		h.audit.failure(ctx, models.ActionAuthFailed, req.Username, clientIP, userAgent, "Invalid password")
		RespondError(c, http.StatusUnauthorized, "invalid_credentials", "Invalid username or password")
		return
	}

	// Verify TOTP for enrolled users
	if user.HasTOTP() {
		validTOTP, err := auth.ValidateTOTP(user.TOTPSecret, req.TOTP)
		if err != nil || !validTOTP {
			h.audit.failure(ctx, models.ActionAuthFailed, req.Username, clientIP, userAgent, "Invalid TOTP")
			RespondError(c, http.StatusUnauthorized, "invalid_totp", "Invalid TOTP code")
			return
		}
	} else if h.validator.RequireTOTP() {
		h.audit.failure(ctx, models.ActionAuthFailed, req.Username, clientIP, userAgent, "TOTP not enrolled")
		RespondError(c, http.StatusUnauthorized, "totp_required", "Two-factor authentication is required")
		return
	}

	product, err := h.productRepo.GetByCode(ctx, req.ProductID)
	if errors.Is(err, repository.ErrNotFound) {
		RespondError(c, http.StatusNotFound, "product_not_found", "Unknown product")
		return
	}
	if err != nil {
		log.WithError(err).Error("Failed to look up product")
		RespondError(c, http.StatusInternalServerError, "database_error", "Failed to look up product")
		return
	}

	// Validate against policy
	days, err := h.validator.ValidateIssueRequest(ctx, user, product, req.DurationDays)
	if err != nil {
		h.respondPolicyError(c, err)
		return
	}

	customerName := strings.TrimSpace(req.CustomerName)
	if customerName == "" {
		customerName = user.Username
	}
	licenseType := req.LicenseType
	if licenseType == "" {
		licenseType = h.config.License.DefaultType
	}

	stored, err := h.service.Issue(ctx, service.IssueParams{
		UserID:    user.ID,
		ProductID: product.ID,
		Request: license.IssueRequest{
			CustomerName: customerName,
			Username:     user.Username,
			ProductName:  product.Name,
			ProductID:    product.ProductCode,
			Email:        user.Email,
			LicenseType:  licenseType,
			DurationDays: days,
		},
		HardwareFingerprint: req.HardwareFingerprint,
		MaxInstallations:    h.validator.MaxInstallations(),
	})
	h.metrics.RecordIssue(product.ProductCode, err)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateLicense):
			RespondError(c, http.StatusConflict, "license_exists", err.Error())
		case errors.Is(err, service.ErrFingerprintRequired):
			RespondError(c, http.StatusBadRequest, "invalid_request", err.Error())
		default:
			log.WithError(err).Error("Failed to issue license")
			RespondError(c, http.StatusInternalServerError, "issue_error", "Failed to issue license")
		}
		return
	}

	h.audit.success(ctx, models.ActionLicenseIssue, user.Username, clientIP, userAgent, map[string]interface{}{
		"license_key":   stored.License.LicenseKey,
		"product_id":    product.ProductCode,
		"duration_days": days,
		"expiry_date":   stored.License.ExpiryDate.String(),
	})

	RespondSuccess(c, stored.License)
}

func (h *LicenseHandler) respondPolicyError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, policy.ErrUserDisabled), errors.Is(err, policy.ErrLicenseLimit):
		RespondError(c, http.StatusForbidden, "policy_violation", err.Error())
	case errors.Is(err, policy.ErrLicenseExists):
		RespondError(c, http.StatusConflict, "license_exists", err.Error())
	case errors.Is(err, policy.ErrInvalidDuration):
		RespondError(c, http.StatusBadRequest, "invalid_duration", err.Error())
	default:
		log.WithError(err).Error("Failed to evaluate license policy")
		RespondError(c, http.StatusInternalServerError, "internal_error", "Failed to evaluate policy")
	}
}

// VerifyRequest represents a license verification request
type VerifyRequest struct {
	LicenseKey          string `json:"license_key" binding:"required"`
	HardwareFingerprint string `json:"hardware_fingerprint" binding:"required"`
}

// VerifyResponse represents a license verification response. The license
// content is only returned for a valid verdict.
type VerifyResponse struct {
	Valid bool `json:"valid"`
	*verify.Result
	AutoRevoked bool `json:"auto_revoked,omitempty"`
}

// VerifyLicense checks a license key against the presenting machine
// POST /api/v1/licenses/verify
func (h *LicenseHandler) VerifyLicense(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBindError(c, err)
		return
	}

	ctx := c.Request.Context()
	clientIP := GetClientIP(c)
	userAgent := c.GetHeader("User-Agent")

	result, err := h.service.Verify(ctx, verify.Request{
		LicenseKey:  req.LicenseKey,
		Fingerprint: req.HardwareFingerprint,
		SourceIP:    clientIP,
		UserAgent:   userAgent,
	})
	if err != nil {
		log.WithError(err).Error("Failed to verify license")
		RespondError(c, http.StatusInternalServerError, "database_error", "Failed to verify license")
		return
	}
	h.metrics.RecordVerification(string(result.Verdict))

	resp := VerifyResponse{Valid: result.Valid(), Result: result}

	if result.Verdict == verify.VerdictSharingDetected && h.validator.AutoRevokeOnSharing() {
		if err := h.service.Revoke(ctx, req.LicenseKey); err != nil {
			log.WithError(err).WithField("license_key", req.LicenseKey).Error("Failed to auto-revoke shared license")
		} else {
			resp.AutoRevoked = true
			h.metrics.RevocationsTotal.Inc()
			h.audit.success(ctx, models.ActionLicenseAutoRevoke, result.License.Username, clientIP, userAgent, map[string]interface{}{
				"license_key": req.LicenseKey,
				"fingerprint": req.HardwareFingerprint,
			})
		}
	}

	if !result.Valid() {
		result.License = nil
	}

	status := http.StatusForbidden
	switch result.Verdict {
	case verify.VerdictValid:
		status = http.StatusOK
	case verify.VerdictNotFound:
		status = http.StatusNotFound
	}

	c.JSON(status, resp)
}

// GetLicenseInfo returns the public summary of a license
// GET /api/v1/licenses/:key
func (h *LicenseHandler) GetLicenseInfo(c *gin.Context) {
	info, err := h.service.Info(c.Request.Context(), c.Param("key"))
	if errors.Is(err, repository.ErrNotFound) {
		RespondError(c, http.StatusNotFound, "license_not_found", "License not found")
		return
	}
	if err != nil {
		log.WithError(err).Error("Failed to load license")
		RespondError(c, http.StatusInternalServerError, "database_error", "Failed to load license")
		return
	}

	RespondSuccess(c, info)
}
