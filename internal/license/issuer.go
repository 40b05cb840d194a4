package license

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultDurationDays is the validity window used when none is requested
	DefaultDurationDays = 30

	// DefaultLicenseType labels licenses issued without an explicit type
	DefaultLicenseType = "Subscription - Monthly"
)

// IssueRequest describes the license to compose
type IssueRequest struct {
	CustomerName string
	Username     string
	ProductName  string
	ProductID    string
	Email        string
	LicenseType  string
	DurationDays int
}

// Issuer composes unsigned license records. It does not check the
// one-license-per-user-per-product rule; callers must do that against their
// store before calling Issue.
type Issuer struct {
	keys *KeyGenerator
	now  func() time.Time
}

// NewIssuer creates an issuer drawing keys from keys
func NewIssuer(keys *KeyGenerator) *Issuer {
	return &Issuer{
		keys: keys,
		now:  time.Now,
	}
}

// WithClock returns a copy of the issuer that reads time from now. The key
// generator shares the same clock so the key timestamp matches issued_at.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	return &Issuer{
		keys: i.keys.WithClock(now),
		now:  now,
	}
}

// Issue builds a new Active record valid from today for the requested number
// of days. existingKeys is the caller's snapshot of keys already in use.
func (i *Issuer) Issue(req IssueRequest, existingKeys map[string]struct{}) (Record, error) {
	if strings.TrimSpace(req.Username) == "" {
		return Record{}, fmt.Errorf("username is required")
	}
	if strings.TrimSpace(req.ProductID) == "" {
		return Record{}, fmt.Errorf("product id is required")
	}

	duration := req.DurationDays
	if duration == 0 {
		duration = DefaultDurationDays
	}
	if duration < 0 {
		return Record{}, fmt.Errorf("duration must be positive, got %d days", duration)
	}

	licenseType := req.LicenseType
	if licenseType == "" {
		licenseType = DefaultLicenseType
	}

	email := req.Email
	if email == "" {
		email = req.Username + "@example.com"
	}

	key, err := i.keys.GenerateUniqueKey(req.ProductID, existingKeys)
	if err != nil {
		return Record{}, err
	}

	now := i.now()
	start := NewDate(now)

	return Record{
		CustomerName: req.CustomerName,
		Username:     req.Username,
		ProductName:  req.ProductName,
		ProductID:    req.ProductID,
		LicenseKey:   key,
		LicenseType:  licenseType,
		Status:       StatusActive,
		StartDate:    start,
		ExpiryDate:   start.AddDays(duration),
		Email:        email,
		IssuedAt:     NewTimestamp(now),
	}, nil
}
