package verify

import (
	"errors"
	"time"

	"github.com/adamscao/licenseserver/internal/license"
)

// Verdict is the single outcome of a license check
type Verdict string

// Verdicts, listed in the order they are checked
const (
	VerdictNotFound         Verdict = "NotFound"
	VerdictRevoked          Verdict = "Revoked"
	VerdictExpired          Verdict = "Expired"
	VerdictInvalidSignature Verdict = "InvalidSignature"
	VerdictSharingDetected  Verdict = "SharingDetected"
	VerdictValid            Verdict = "Valid"
)

// ErrNotFound is returned by a Store when no license has the requested key
var ErrNotFound = errors.New("not found")

// Binding ties an issued license to one machine and tracks its server-side
// lifecycle. Verification only reads it.
type Binding struct {
	UserID               int64     `json:"user_id"`
	ProductID            int64     `json:"product_id"`
	HardwareFingerprint  string    `json:"hardware_fingerprint"`
	MaxInstallations     int       `json:"max_installations"`
	CurrentInstallations int       `json:"current_installations"`
	IsRevoked            bool      `json:"is_revoked"`
	ValidTill            time.Time `json:"valid_till"`
}

// StoredLicense is a signed record together with its binding, as read from
// the store
type StoredLicense struct {
	ID      int64                `json:"id"`
	License license.SignedRecord `json:"license"`
	Binding Binding              `json:"binding"`
}

// ValidTill returns the instant after which the license is expired. The
// binding's value wins; a binding without one falls back to midnight UTC of
// the record's expiry date.
func (s *StoredLicense) ValidTill() time.Time {
	if !s.Binding.ValidTill.IsZero() {
		return s.Binding.ValidTill
	}
	return s.License.ExpiryDate.Time()
}

// Result is the outcome of one verification
type Result struct {
	Verdict   Verdict               `json:"verdict"`
	Reason    string                `json:"reason"`
	License   *license.SignedRecord `json:"license,omitempty"`
	Binding   *Binding              `json:"-"`
	CheckedAt time.Time             `json:"checked_at"`
}

// Valid reports whether the verdict is Valid
func (r *Result) Valid() bool {
	return r.Verdict == VerdictValid
}
