package verify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/adamscao/licenseserver/internal/license"
	"github.com/adamscao/licenseserver/internal/signing"
)

func TestCheckOffline(t *testing.T) {
	issued := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	verifier := signing.NewVerifier(&privateKey(t).PublicKey)
	signer := signing.NewSigner(privateKey(t))

	tests := []struct {
		name   string
		mutate func(r *license.SignedRecord)
		now    time.Time
		want   Verdict
	}{
		{name: "valid", now: issued.Add(time.Hour), want: VerdictValid},
		{name: "expired", now: issued.AddDate(1, 0, 0), want: VerdictExpired},
		{
			name:   "tampered",
			mutate: func(r *license.SignedRecord) { r.Username = "bob" },
			now:    issued.Add(time.Hour),
			want:   VerdictInvalidSignature,
		},
		{
			name: "suspended and re-signed",
			mutate: func(r *license.SignedRecord) {
				r.Status = license.StatusSuspended
				signed, err := signer.SignRecord(r.Record)
				if err != nil {
					t.Fatal(err)
				}
				*r = signed
			},
			now:  issued.Add(time.Hour),
			want: VerdictRevoked,
		},
		{
			name:   "suspended without re-signing",
			mutate: func(r *license.SignedRecord) { r.Status = license.StatusSuspended },
			now:    issued.Add(time.Hour),
			want:   VerdictInvalidSignature,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := issueStored(t, issued, 30).License
			if tt.mutate != nil {
				tt.mutate(&rec)
			}

			res := CheckOffline(verifier, rec, tt.now)
			assert.Equal(t, tt.want, res.Verdict)
			assert.Equal(t, rec.LicenseKey, res.License.LicenseKey)
			assert.Nil(t, res.Binding)
		})
	}
}
