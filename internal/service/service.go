// Package service ties issuance, signing, storage and verification of
// licenses together.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/adamscao/licenseserver/internal/db/repository"
	"github.com/adamscao/licenseserver/internal/license"
	"github.com/adamscao/licenseserver/internal/models"
	"github.com/adamscao/licenseserver/internal/verify"
)

// maxIssueAttempts bounds retries when a concurrent issuance took the key
// generated for this one
const maxIssueAttempts = 3

var (
	// ErrFingerprintRequired is returned when issuing without a machine
	// fingerprint to bind to
	ErrFingerprintRequired = errors.New("hardware fingerprint is required")

	// ErrInvalidDuration is returned for a non-positive renewal period
	ErrInvalidDuration = errors.New("duration must be positive")
)

// Store persists licenses and their bindings
type Store interface {
	verify.Store
	InsertLicense(ctx context.Context, rec license.SignedRecord, b verify.Binding) (int64, error)
	ListExistingKeys(ctx context.Context) (map[string]struct{}, error)
	MarkRevoked(ctx context.Context, key string) error
	Renew(ctx context.Context, rec license.SignedRecord, validTill time.Time) error
}

// RecordSigner signs license records
type RecordSigner interface {
	SignRecord(rec license.Record) (license.SignedRecord, error)
}

// Service implements the license lifecycle
type Service struct {
	store  Store
	issuer *license.Issuer
	signer RecordSigner
	engine *verify.Engine
	now    func() time.Time
}

// New creates a license service
func New(store Store, audit verify.AuditSink, issuer *license.Issuer, signer RecordSigner, verifier verify.SignatureVerifier) *Service {
	return &Service{
		store:  store,
		issuer: issuer,
		signer: signer,
		engine: verify.NewEngine(store, verifier, audit),
		now:    time.Now,
	}
}

// WithClock replaces the time source of the service and everything it drives
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.issuer = s.issuer.WithClock(now)
	s.engine = s.engine.WithClock(now)
	return s
}

// IssueParams describes a license to issue and the machine it binds to
type IssueParams struct {
	UserID              int64
	ProductID           int64
	Request             license.IssueRequest
	HardwareFingerprint string
	MaxInstallations    int
}

// Issue composes, signs and stores a new license. A key collision with a
// concurrent issuance is retried with a fresh key; a second live license for
// the same user and product fails with repository.ErrDuplicateLicense.
func (s *Service) Issue(ctx context.Context, p IssueParams) (*verify.StoredLicense, error) {
	if strings.TrimSpace(p.HardwareFingerprint) == "" {
		return nil, ErrFingerprintRequired
	}

	maxInstallations := p.MaxInstallations
	if maxInstallations <= 0 {
		maxInstallations = 1
	}

	for attempt := 1; ; attempt++ {
		existing, err := s.store.ListExistingKeys(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load existing keys: %w", err)
		}

		rec, err := s.issuer.Issue(p.Request, existing)
		if err != nil {
			return nil, err
		}

		signed, err := s.signer.SignRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to sign license: %w", err)
		}

		binding := verify.Binding{
			UserID:               p.UserID,
			ProductID:            p.ProductID,
			HardwareFingerprint:  p.HardwareFingerprint,
			MaxInstallations:     maxInstallations,
			CurrentInstallations: 1,
			ValidTill:            rec.ExpiryDate.Time(),
		}

		id, err := s.store.InsertLicense(ctx, signed, binding)
		if errors.Is(err, repository.ErrDuplicateKey) && attempt < maxIssueAttempts {
			log.WithField("license_key", rec.LicenseKey).Warn("License key collided, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}

		log.WithFields(log.Fields{
			"license_key": rec.LicenseKey,
			"username":    rec.Username,
			"product":     rec.ProductID,
			"expiry_date": rec.ExpiryDate.String(),
		}).Info("License issued")

		return &verify.StoredLicense{ID: id, License: signed, Binding: binding}, nil
	}
}

// Verify runs the verification engine
func (s *Service) Verify(ctx context.Context, req verify.Request) (*verify.Result, error) {
	return s.engine.Verify(ctx, req)
}

// Revoke marks a license revoked. Revoking twice is not an error.
func (s *Service) Revoke(ctx context.Context, key string) error {
	if err := s.store.MarkRevoked(ctx, key); err != nil {
		return err
	}
	log.WithField("license_key", key).Info("License revoked")
	return nil
}

// Renew extends a live license by days, counted from its current expiry or
// from today when it has already lapsed, and signs the new content.
func (s *Service) Renew(ctx context.Context, key string, days int) (*license.SignedRecord, error) {
	if days <= 0 {
		return nil, ErrInvalidDuration
	}

	stored, err := s.store.FindLicenseByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if stored.Binding.IsRevoked {
		return nil, repository.ErrRevoked
	}

	now := s.now()
	today := license.NewDate(now)

	rec := stored.License.Record
	base := rec.ExpiryDate
	if today.After(base) {
		base = today
	}
	rec.ExpiryDate = base.AddDays(days)
	rec.Status = license.StatusActive
	rec.IssuedAt = license.NewTimestamp(now)

	signed, err := s.signer.SignRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to sign license: %w", err)
	}

	if err := s.store.Renew(ctx, signed, rec.ExpiryDate.Time()); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"license_key": key,
		"expiry_date": rec.ExpiryDate.String(),
	}).Info("License renewed")

	return &signed, nil
}

// Info returns the public summary of a license
func (s *Service) Info(ctx context.Context, key string) (*models.LicenseSummary, error) {
	stored, err := s.store.FindLicenseByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	return Summarize(stored, s.now()), nil
}

// Summarize builds the public view of a stored license. It is Active only
// while unrevoked, within its validity and issued as Active.
func Summarize(stored *verify.StoredLicense, now time.Time) *models.LicenseSummary {
	rec := stored.License
	status := models.SummaryInactive
	if !stored.Binding.IsRevoked && !now.After(stored.ValidTill()) && rec.Status == license.StatusActive {
		status = models.SummaryActive
	}

	return &models.LicenseSummary{
		ID:           stored.ID,
		LicenseKey:   rec.LicenseKey,
		CustomerName: rec.CustomerName,
		Username:     rec.Username,
		ProductName:  rec.ProductName,
		ProductCode:  rec.ProductID,
		LicenseType:  rec.LicenseType,
		ExpiryDate:   rec.ExpiryDate.String(),
		ValidTill:    stored.ValidTill(),
		IssuedAt:     rec.IssuedAt.String(),
		IsRevoked:    stored.Binding.IsRevoked,
		Status:       status,
	}
}
