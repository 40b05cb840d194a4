package verify

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamscao/licenseserver/internal/license"
	"github.com/adamscao/licenseserver/internal/signing"
)

const boundFingerprint = "MAC:AA:BB:CC:DD:EE:FF|UUID:1234"

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func privateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	return testKey
}

type memStore struct {
	licenses map[string]*StoredLicense
	err      error
}

func (m *memStore) FindLicenseByKey(_ context.Context, key string) (*StoredLicense, error) {
	if m.err != nil {
		return nil, m.err
	}
	l, ok := m.licenses[key]
	if !ok {
		return nil, ErrNotFound
	}
	return l, nil
}

type recordingSink struct {
	events []Event
	err    error
}

func (r *recordingSink) RecordEvent(_ context.Context, ev Event) error {
	r.events = append(r.events, ev)
	return r.err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// issueStored builds a signed license issued at issuedAt for duration days
// and bound to boundFingerprint.
func issueStored(t *testing.T, issuedAt time.Time, days int) *StoredLicense {
	t.Helper()

	issuer := license.NewIssuer(license.NewKeyGenerator("OSPL")).WithClock(fixedClock(issuedAt))
	rec, err := issuer.Issue(license.IssueRequest{
		CustomerName: "Acme",
		Username:     "alice",
		ProductName:  "Zayona Pro",
		ProductID:    "ZAYONA-PRO-9988",
		DurationDays: days,
	}, nil)
	require.NoError(t, err)

	signed, err := signing.NewSigner(privateKey(t)).SignRecord(rec)
	require.NoError(t, err)

	return &StoredLicense{
		ID:      7,
		License: signed,
		Binding: Binding{
			HardwareFingerprint: boundFingerprint,
			MaxInstallations:    1,
			ValidTill:           signed.ExpiryDate.Time(),
		},
	}
}

func newEngine(t *testing.T, stored *StoredLicense, sink AuditSink, now time.Time) *Engine {
	t.Helper()
	store := &memStore{licenses: map[string]*StoredLicense{}}
	if stored != nil {
		store.licenses[stored.License.LicenseKey] = stored
	}
	verifier := signing.NewVerifier(&privateKey(t).PublicKey)
	return NewEngine(store, verifier, sink).WithClock(fixedClock(now))
}

func TestVerifyVerdicts(t *testing.T) {
	issued := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	during := issued.Add(24 * time.Hour)
	after := issued.AddDate(0, 0, 31)

	tests := []struct {
		name        string
		mutate      func(s *StoredLicense)
		key         string
		fingerprint string
		now         time.Time
		want        Verdict
	}{
		{
			name:        "valid",
			fingerprint: boundFingerprint,
			now:         during,
			want:        VerdictValid,
		},
		{
			name:        "unknown key",
			key:         "OSPL-PRO-20250301-100000-ABC12",
			fingerprint: boundFingerprint,
			now:         during,
			want:        VerdictNotFound,
		},
		{
			name:        "revoked beats expired",
			mutate:      func(s *StoredLicense) { s.Binding.IsRevoked = true },
			fingerprint: "MAC:00:11:22:33:44:55",
			now:         after,
			want:        VerdictRevoked,
		},
		{
			name:        "expired beats sharing",
			fingerprint: "MAC:00:11:22:33:44:55",
			now:         after,
			want:        VerdictExpired,
		},
		{
			name: "expired beats bad signature",
			mutate: func(s *StoredLicense) {
				s.License.Signature = "not base64!"
			},
			fingerprint: boundFingerprint,
			now:         after,
			want:        VerdictExpired,
		},
		{
			name: "tampered expiry date",
			mutate: func(s *StoredLicense) {
				s.License.ExpiryDate = s.License.ExpiryDate.AddDays(365)
			},
			fingerprint: boundFingerprint,
			now:         during,
			want:        VerdictInvalidSignature,
		},
		{
			name:        "unsigned",
			mutate:      func(s *StoredLicense) { s.License.Signature = "" },
			fingerprint: boundFingerprint,
			now:         during,
			want:        VerdictInvalidSignature,
		},
		{
			name:        "malformed signature",
			mutate:      func(s *StoredLicense) { s.License.Signature = "%%%" },
			fingerprint: boundFingerprint,
			now:         during,
			want:        VerdictInvalidSignature,
		},
		{
			name:        "bad signature beats sharing",
			mutate:      func(s *StoredLicense) { s.License.CustomerName = "Mallory" },
			fingerprint: "MAC:00:11:22:33:44:55",
			now:         during,
			want:        VerdictInvalidSignature,
		},
		{
			name:        "fingerprint mismatch",
			fingerprint: "MAC:00:11:22:33:44:55",
			now:         during,
			want:        VerdictSharingDetected,
		},
		{
			name:        "valid on last day",
			fingerprint: boundFingerprint,
			now:         time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
			want:        VerdictValid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stored := issueStored(t, issued, 30)
			if tt.mutate != nil {
				tt.mutate(stored)
			}
			key := stored.License.LicenseKey
			if tt.key != "" {
				key = tt.key
			}

			sink := &recordingSink{}
			res, err := newEngine(t, stored, sink, tt.now).Verify(context.Background(), Request{
				LicenseKey:  key,
				Fingerprint: tt.fingerprint,
				SourceIP:    "10.0.0.1",
				UserAgent:   "test",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Verdict)
			assert.NotEmpty(t, res.Reason)

			require.Len(t, sink.events, 1)
			ev := sink.events[0]
			assert.Equal(t, tt.want, ev.Verdict)
			assert.Equal(t, key, ev.LicenseKey)
			assert.Equal(t, "10.0.0.1", ev.SourceIP)
			assert.Equal(t, tt.fingerprint, ev.Fingerprint)
			if tt.want == VerdictNotFound {
				assert.Zero(t, ev.LicenseID)
				assert.Nil(t, res.License)
			} else {
				assert.Equal(t, int64(7), ev.LicenseID)
				assert.NotNil(t, res.License)
			}
		})
	}
}

func TestVerifyExpiredIn2020(t *testing.T) {
	stored := issueStored(t, time.Date(2019, 12, 1, 0, 0, 0, 0, time.UTC), 31)
	require.Equal(t, "2020-01-01", stored.License.ExpiryDate.String())

	res, err := newEngine(t, stored, nil, time.Now()).Verify(context.Background(), Request{
		LicenseKey:  stored.License.LicenseKey,
		Fingerprint: boundFingerprint,
	})
	require.NoError(t, err)
	assert.Equal(t, VerdictExpired, res.Verdict)
}

func TestVerifyUsesBindingValidTill(t *testing.T) {
	issued := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	stored := issueStored(t, issued, 30)
	stored.Binding.ValidTill = issued.Add(48 * time.Hour)

	res, err := newEngine(t, stored, nil, issued.Add(72*time.Hour)).Verify(context.Background(), Request{
		LicenseKey:  stored.License.LicenseKey,
		Fingerprint: boundFingerprint,
	})
	require.NoError(t, err)
	assert.Equal(t, VerdictExpired, res.Verdict)
}

func TestVerifyAuditFailureDoesNotChangeVerdict(t *testing.T) {
	issued := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	stored := issueStored(t, issued, 30)
	sink := &recordingSink{err: errors.New("disk full")}

	res, err := newEngine(t, stored, sink, issued.Add(time.Hour)).Verify(context.Background(), Request{
		LicenseKey:  stored.License.LicenseKey,
		Fingerprint: boundFingerprint,
	})
	require.NoError(t, err)
	assert.Equal(t, VerdictValid, res.Verdict)
	assert.Len(t, sink.events, 1)
}

func TestVerifyStoreFailure(t *testing.T) {
	sink := &recordingSink{}
	store := &memStore{err: errors.New("database is locked")}
	engine := NewEngine(store, signing.NewVerifier(&privateKey(t).PublicKey), sink)

	res, err := engine.Verify(context.Background(), Request{LicenseKey: "OSPL-PRO-20250301-100000-ABC12"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "database is locked")
	assert.Empty(t, sink.events)
}

func TestVerifyDoesNotMutateBinding(t *testing.T) {
	issued := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	stored := issueStored(t, issued, 30)
	before := stored.Binding

	_, err := newEngine(t, stored, nil, issued.Add(time.Hour)).Verify(context.Background(), Request{
		LicenseKey:  stored.License.LicenseKey,
		Fingerprint: "MAC:00:11:22:33:44:55",
	})
	require.NoError(t, err)
	assert.Equal(t, before, stored.Binding)
}

func TestWithClockLeavesEngineUnchanged(t *testing.T) {
	issued := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	stored := issueStored(t, issued, 30)

	base := newEngine(t, stored, &recordingSink{}, issued.Add(time.Hour))
	later := base.WithClock(fixedClock(issued.AddDate(0, 0, 31)))
	require.NotSame(t, base, later)

	req := Request{LicenseKey: stored.License.LicenseKey, Fingerprint: boundFingerprint}

	result, err := later.Verify(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, VerdictExpired, result.Verdict)

	result, err = base.Verify(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, VerdictValid, result.Verdict)
}
