// Package verify decides whether a presented license key is usable on the
// presenting machine.
package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/adamscao/licenseserver/internal/license"
)

// Store looks up issued licenses. FindLicenseByKey returns an error matching
// ErrNotFound when the key is unknown.
type Store interface {
	FindLicenseByKey(ctx context.Context, key string) (*StoredLicense, error)
}

// SignatureVerifier checks a record against its signature
type SignatureVerifier interface {
	Verify(rec license.Record, signature string) (bool, error)
}

// Event is the audit entry written for every verification
type Event struct {
	LicenseID   int64
	LicenseKey  string
	Verdict     Verdict
	SourceIP    string
	UserAgent   string
	Fingerprint string
	Note        string
	Timestamp   time.Time
}

// AuditSink persists verification events
type AuditSink interface {
	RecordEvent(ctx context.Context, ev Event) error
}

// Request is a verification attempt by a client
type Request struct {
	LicenseKey  string
	Fingerprint string
	SourceIP    string
	UserAgent   string
}

// Engine runs the verification state machine
type Engine struct {
	store    Store
	verifier SignatureVerifier
	audit    AuditSink
	now      func() time.Time
}

// NewEngine creates a verification engine
func NewEngine(store Store, verifier SignatureVerifier, audit AuditSink) *Engine {
	return &Engine{
		store:    store,
		verifier: verifier,
		audit:    audit,
		now:      time.Now,
	}
}

// WithClock returns a copy of the engine that reads time from now
func (e *Engine) WithClock(now func() time.Time) *Engine {
	cp := *e
	cp.now = now
	return &cp
}

// Verify classifies the request. The first matching verdict wins, in the
// order NotFound, Revoked, Expired, InvalidSignature, SharingDetected, Valid.
// An error is returned only when the store lookup fails; every other call
// records exactly one audit event.
func (e *Engine) Verify(ctx context.Context, req Request) (*Result, error) {
	now := e.now().UTC()

	stored, err := e.store.FindLicenseByKey(ctx, req.LicenseKey)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to look up license: %w", err)
	}

	var result *Result
	if stored == nil {
		result = &Result{Verdict: VerdictNotFound, Reason: "license key not found"}
	} else {
		result = e.classify(stored, req.Fingerprint, now)
		result.License = &stored.License
		result.Binding = &stored.Binding
	}
	result.CheckedAt = now

	e.record(ctx, req, stored, result)

	return result, nil
}

func (e *Engine) classify(stored *StoredLicense, fingerprint string, now time.Time) *Result {
	if stored.Binding.IsRevoked {
		return &Result{Verdict: VerdictRevoked, Reason: "license has been revoked"}
	}

	if now.After(stored.ValidTill()) {
		return &Result{
			Verdict: VerdictExpired,
			Reason:  fmt.Sprintf("license expired on %s", stored.License.ExpiryDate),
		}
	}

	if reason, ok := checkSignature(e.verifier, stored.License); !ok {
		return &Result{Verdict: VerdictInvalidSignature, Reason: reason}
	}

	if stored.Binding.HardwareFingerprint != fingerprint {
		return &Result{Verdict: VerdictSharingDetected, Reason: "hardware fingerprint does not match the bound machine"}
	}

	return &Result{Verdict: VerdictValid, Reason: "license is valid"}
}

// checkSignature reports whether the record's signature holds. A missing or
// malformed signature counts as invalid rather than as an error.
func checkSignature(verifier SignatureVerifier, rec license.SignedRecord) (string, bool) {
	if !rec.IsSigned() {
		return "license is not signed", false
	}

	ok, err := verifier.Verify(rec.Record, rec.Signature)
	if err != nil {
		return fmt.Sprintf("signature could not be checked: %v", err), false
	}
	if !ok {
		return "signature does not match license content", false
	}
	return "", true
}

func (e *Engine) record(ctx context.Context, req Request, stored *StoredLicense, result *Result) {
	if e.audit == nil {
		return
	}

	ev := Event{
		LicenseKey:  req.LicenseKey,
		Verdict:     result.Verdict,
		SourceIP:    req.SourceIP,
		UserAgent:   req.UserAgent,
		Fingerprint: req.Fingerprint,
		Note:        result.Reason,
		Timestamp:   result.CheckedAt,
	}
	if stored != nil {
		ev.LicenseID = stored.ID
	}

	if err := e.audit.RecordEvent(ctx, ev); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"license_key": req.LicenseKey,
			"verdict":     result.Verdict,
		}).Warn("Failed to record verification event")
	}
}
