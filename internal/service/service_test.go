package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamscao/licenseserver/internal/db"
	"github.com/adamscao/licenseserver/internal/db/repository"
	"github.com/adamscao/licenseserver/internal/license"
	"github.com/adamscao/licenseserver/internal/models"
	"github.com/adamscao/licenseserver/internal/signing"
	"github.com/adamscao/licenseserver/internal/verify"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func privateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = key
	})
	return testKey
}

type fixture struct {
	svc      *Service
	licenses *repository.LicenseRepository
	logs     *repository.LicenseLogRepository
	user     *models.User
	product  *models.Product
	now      time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "licenses.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.RunMigrations(database))

	ctx := context.Background()
	users := repository.NewUserRepository(database.DB)
	products := repository.NewProductRepository(database.DB)

	f := &fixture{
		licenses: repository.NewLicenseRepository(database.DB),
		logs:     repository.NewLicenseLogRepository(database.DB),
		user:     &models.User{Username: "alice", PasswordHash: "hash", Enabled: true},
		product:  &models.Product{Name: "Zayona Pro", ProductCode: "ZAYONA-PRO-9988"},
		now:      time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC),
	}
	require.NoError(t, users.Create(ctx, f.user))
	require.NoError(t, products.Create(ctx, f.product))

	key := privateKey(t)
	f.svc = f.newService(f.licenses, key)
	return f
}

func (f *fixture) newService(store Store, key *rsa.PrivateKey) *Service {
	return New(store, f.logs,
		license.NewIssuer(license.NewKeyGenerator("OSPL")),
		signing.NewSigner(key),
		signing.NewVerifier(&key.PublicKey),
	).WithClock(func() time.Time { return f.now })
}

func (f *fixture) params() IssueParams {
	return IssueParams{
		UserID:    f.user.ID,
		ProductID: f.product.ID,
		Request: license.IssueRequest{
			CustomerName: "Acme Corp",
			Username:     f.user.Username,
			ProductName:  f.product.Name,
			ProductID:    f.product.ProductCode,
			DurationDays: 30,
		},
		HardwareFingerprint: "MAC:AA:BB:CC:DD:EE:FF",
	}
}

func TestIssueAndVerify(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	stored, err := f.svc.Issue(ctx, f.params())
	require.NoError(t, err)
	assert.NotZero(t, stored.ID)
	assert.True(t, stored.License.IsSigned())
	assert.Equal(t, "2025-04-09", stored.License.ExpiryDate.String())
	assert.Equal(t, 1, stored.Binding.MaxInstallations)

	key := stored.License.LicenseKey
	result, err := f.svc.Verify(ctx, verify.Request{LicenseKey: key, Fingerprint: "MAC:AA:BB:CC:DD:EE:FF"})
	require.NoError(t, err)
	assert.Equal(t, verify.VerdictValid, result.Verdict)

	result, err = f.svc.Verify(ctx, verify.Request{LicenseKey: key, Fingerprint: "MAC:00:11:22:33:44:55"})
	require.NoError(t, err)
	assert.Equal(t, verify.VerdictSharingDetected, result.Verdict)

	logs, err := f.logs.ListByKey(ctx, key, 10)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestIssueRequiresFingerprint(t *testing.T) {
	f := setup(t)
	p := f.params()
	p.HardwareFingerprint = "  "

	_, err := f.svc.Issue(context.Background(), p)
	assert.ErrorIs(t, err, ErrFingerprintRequired)
}

func TestIssueSecondLiveLicenseFails(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Issue(ctx, f.params())
	require.NoError(t, err)

	_, err = f.svc.Issue(ctx, f.params())
	assert.ErrorIs(t, err, repository.ErrDuplicateLicense)
}

type collidingStore struct {
	Store
	failures int
	attempts int
}

func (s *collidingStore) InsertLicense(ctx context.Context, rec license.SignedRecord, b verify.Binding) (int64, error) {
	s.attempts++
	if s.attempts <= s.failures {
		return 0, repository.ErrDuplicateKey
	}
	return s.Store.InsertLicense(ctx, rec, b)
}

func TestIssueRetriesKeyCollision(t *testing.T) {
	f := setup(t)

	store := &collidingStore{Store: f.licenses, failures: 1}
	svc := f.newService(store, privateKey(t))

	stored, err := svc.Issue(context.Background(), f.params())
	require.NoError(t, err)
	assert.Equal(t, 2, store.attempts)
	assert.NotEmpty(t, stored.License.LicenseKey)
}

func TestIssueGivesUpAfterRepeatedCollisions(t *testing.T) {
	f := setup(t)

	store := &collidingStore{Store: f.licenses, failures: maxIssueAttempts}
	svc := f.newService(store, privateKey(t))

	_, err := svc.Issue(context.Background(), f.params())
	assert.ErrorIs(t, err, repository.ErrDuplicateKey)
	assert.Equal(t, maxIssueAttempts, store.attempts)
}

func TestRevoke(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	stored, err := f.svc.Issue(ctx, f.params())
	require.NoError(t, err)
	key := stored.License.LicenseKey

	require.NoError(t, f.svc.Revoke(ctx, key))
	require.NoError(t, f.svc.Revoke(ctx, key))

	result, err := f.svc.Verify(ctx, verify.Request{LicenseKey: key, Fingerprint: "MAC:AA:BB:CC:DD:EE:FF"})
	require.NoError(t, err)
	assert.Equal(t, verify.VerdictRevoked, result.Verdict)

	assert.ErrorIs(t, f.svc.Revoke(ctx, "OSPL-XXX-20250310-ABCDEF"), repository.ErrNotFound)

	// a revoked license frees the slot for a new one
	_, err = f.svc.Issue(ctx, f.params())
	require.NoError(t, err)
}

func TestRenew(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	stored, err := f.svc.Issue(ctx, f.params())
	require.NoError(t, err)
	key := stored.License.LicenseKey

	renewed, err := f.svc.Renew(ctx, key, 60)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-08", renewed.ExpiryDate.String())
	assert.NotEqual(t, stored.License.Signature, renewed.Signature)

	// lapsed licenses are extended from today
	f.now = time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	expired, err := f.svc.Verify(ctx, verify.Request{LicenseKey: key, Fingerprint: "MAC:AA:BB:CC:DD:EE:FF"})
	require.NoError(t, err)
	assert.Equal(t, verify.VerdictExpired, expired.Verdict)

	renewed, err = f.svc.Renew(ctx, key, 10)
	require.NoError(t, err)
	assert.Equal(t, "2025-12-11", renewed.ExpiryDate.String())
	assert.Equal(t, "2025-12-01T00:00:00Z", renewed.IssuedAt.String())

	result, err := f.svc.Verify(ctx, verify.Request{LicenseKey: key, Fingerprint: "MAC:AA:BB:CC:DD:EE:FF"})
	require.NoError(t, err)
	assert.Equal(t, verify.VerdictValid, result.Verdict)
}

func TestRenewRejects(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	stored, err := f.svc.Issue(ctx, f.params())
	require.NoError(t, err)
	key := stored.License.LicenseKey

	_, err = f.svc.Renew(ctx, key, 0)
	assert.ErrorIs(t, err, ErrInvalidDuration)

	_, err = f.svc.Renew(ctx, "OSPL-XXX-20250310-ABCDEF", 10)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, f.svc.Revoke(ctx, key))
	_, err = f.svc.Renew(ctx, key, 10)
	assert.ErrorIs(t, err, repository.ErrRevoked)
}

func TestInfo(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	stored, err := f.svc.Issue(ctx, f.params())
	require.NoError(t, err)
	key := stored.License.LicenseKey

	info, err := f.svc.Info(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, models.SummaryActive, info.Status)
	assert.Equal(t, "ZAYONA-PRO-9988", info.ProductCode)
	assert.Equal(t, "2025-04-09", info.ExpiryDate)

	f.now = time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
	info, err = f.svc.Info(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, models.SummaryInactive, info.Status)

	_, err = f.svc.Info(ctx, "missing")
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestSummarizeRevoked(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	stored := &verify.StoredLicense{
		License: license.SignedRecord{Record: license.Record{
			LicenseKey: "OSPL-PRO-20250101-ABCDEF",
			Status:     license.StatusActive,
			ExpiryDate: license.NewDate(now.AddDate(0, 1, 0)),
		}},
		Binding: verify.Binding{IsRevoked: true},
	}

	assert.Equal(t, models.SummaryInactive, Summarize(stored, now).Status)

	stored.Binding.IsRevoked = false
	assert.Equal(t, models.SummaryActive, Summarize(stored, now).Status)

	stored.License.Status = license.StatusSuspended
	assert.Equal(t, models.SummaryInactive, Summarize(stored, now).Status)
}
