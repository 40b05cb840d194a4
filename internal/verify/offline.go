package verify

import (
	"fmt"
	"time"

	"github.com/adamscao/licenseserver/internal/license"
)

// CheckOffline validates a license file without contacting the server. The
// checks run in the order Expired, InvalidSignature, then Revoked for any
// status other than Active. Machine binding is not checked offline.
func CheckOffline(verifier SignatureVerifier, rec license.SignedRecord, now time.Time) *Result {
	result := checkOffline(verifier, rec, now.UTC())
	result.License = &rec
	result.CheckedAt = now.UTC()
	return result
}

func checkOffline(verifier SignatureVerifier, rec license.SignedRecord, now time.Time) *Result {
	if rec.IsExpiredAt(now) {
		return &Result{
			Verdict: VerdictExpired,
			Reason:  fmt.Sprintf("license expired on %s", rec.ExpiryDate),
		}
	}

	if reason, ok := checkSignature(verifier, rec); !ok {
		return &Result{Verdict: VerdictInvalidSignature, Reason: reason}
	}

	if rec.Status != license.StatusActive {
		return &Result{
			Verdict: VerdictRevoked,
			Reason:  fmt.Sprintf("license status is %s", rec.Status),
		}
	}

	return &Result{Verdict: VerdictValid, Reason: "license is valid"}
}
