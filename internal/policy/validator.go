package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/adamscao/licenseserver/internal/config"
	"github.com/adamscao/licenseserver/internal/models"
)

var (
	// ErrUserDisabled is returned for requests by disabled accounts
	ErrUserDisabled = errors.New("user account is disabled")

	// ErrLicenseExists is returned when the user already holds a live
	// license for the product
	ErrLicenseExists = errors.New("license already exists for this user and product")

	// ErrLicenseLimit is returned when the user reached their license quota
	ErrLicenseLimit = errors.New("license limit reached")

	// ErrInvalidDuration is returned for a negative requested duration
	ErrInvalidDuration = errors.New("requested duration must not be negative")
)

// LicenseCounter answers the ownership questions the policy needs
type LicenseCounter interface {
	HasActiveLicense(ctx context.Context, userID, productID int64) (bool, error)
	CountActiveByUser(ctx context.Context, userID int64) (int, error)
}

// Validator validates license issuance requests against policy
type Validator struct {
	config   *config.Config
	licenses LicenseCounter
}

// NewValidator creates a new policy validator
func NewValidator(cfg *config.Config, licenses LicenseCounter) *Validator {
	return &Validator{
		config:   cfg,
		licenses: licenses,
	}
}

// ValidateIssueRequest checks that user may receive a license for product
// and returns the validity in days to grant
func (v *Validator) ValidateIssueRequest(ctx context.Context, user *models.User, product *models.Product, requestedDays int) (int, error) {
	if !user.Enabled {
		return 0, ErrUserDisabled
	}

	exists, err := v.licenses.HasActiveLicense(ctx, user.ID, product.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to check existing license: %w", err)
	}
	if exists {
		return 0, ErrLicenseExists
	}

	maxLicenses := user.MaxLicenses
	if maxLicenses <= 0 {
		maxLicenses = v.config.Policy.MaxLicensesPerUser
	}
	if maxLicenses > 0 {
		count, err := v.licenses.CountActiveByUser(ctx, user.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to check license limit: %w", err)
		}
		if count >= maxLicenses {
			return 0, fmt.Errorf("%w (%d/%d)", ErrLicenseLimit, count, maxLicenses)
		}
	}

	return v.AdjustDuration(requestedDays)
}

// AdjustDuration applies the default and maximum validity to a requested
// number of days
func (v *Validator) AdjustDuration(requestedDays int) (int, error) {
	if requestedDays < 0 {
		return 0, ErrInvalidDuration
	}

	if requestedDays == 0 {
		return v.config.DefaultDurationDays(), nil
	}

	if maxDays := v.config.MaxDurationDays(); requestedDays > maxDays {
		return maxDays, nil
	}

	return requestedDays, nil
}

// MaxInstallations returns the installation count bound into new licenses
func (v *Validator) MaxInstallations() int {
	return v.config.Policy.MaxInstallations
}

// AutoRevokeOnSharing reports whether a sharing verdict revokes the license
func (v *Validator) AutoRevokeOnSharing() bool {
	return v.config.Policy.AutoRevokeOnSharing
}

// RequireTOTP reports whether license requests need a second factor even
// from users who never enrolled one
func (v *Validator) RequireTOTP() bool {
	return v.config.Policy.RequireTOTP
}
