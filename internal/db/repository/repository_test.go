package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamscao/licenseserver/internal/db"
	"github.com/adamscao/licenseserver/internal/license"
	"github.com/adamscao/licenseserver/internal/models"
	"github.com/adamscao/licenseserver/internal/verify"
)

type fixture struct {
	users    *UserRepository
	products *ProductRepository
	licenses *LicenseRepository
	logs     *LicenseLogRepository
	audit    *AuditRepository

	user    *models.User
	product *models.Product
}

func setup(t *testing.T) *fixture {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.RunMigrations(database))

	f := &fixture{
		users:    NewUserRepository(database.DB),
		products: NewProductRepository(database.DB),
		licenses: NewLicenseRepository(database.DB),
		logs:     NewLicenseLogRepository(database.DB),
		audit:    NewAuditRepository(database.DB),
	}

	ctx := context.Background()
	f.user = &models.User{Username: "alice", PasswordHash: "hash", Email: "alice@acme.test", Enabled: true}
	require.NoError(t, f.users.Create(ctx, f.user))
	f.product = &models.Product{Name: "Zayona Pro", ProductCode: "ZAYONA-PRO-9988"}
	require.NoError(t, f.products.Create(ctx, f.product))

	return f
}

func signedRecord(t *testing.T, issued time.Time) license.SignedRecord {
	t.Helper()
	rec, err := license.NewIssuer(license.NewKeyGenerator("OSPL")).
		WithClock(func() time.Time { return issued }).
		Issue(license.IssueRequest{
			CustomerName: "Acme Études",
			Username:     "alice",
			ProductName:  "Zayona Pro",
			ProductID:    "ZAYONA-PRO-9988",
		}, nil)
	require.NoError(t, err)
	return license.SignedRecord{Record: rec, Signature: "c2lnbmF0dXJl"}
}

func (f *fixture) binding(rec license.SignedRecord) verify.Binding {
	return verify.Binding{
		UserID:               f.user.ID,
		ProductID:            f.product.ID,
		HardwareFingerprint:  "MAC:AA:BB:CC:DD:EE:FF",
		MaxInstallations:     1,
		CurrentInstallations: 1,
		ValidTill:            rec.ExpiryDate.Time(),
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer database.Close()

	require.NoError(t, db.RunMigrations(database))
	require.NoError(t, db.RunMigrations(database))
}

func TestUserRepository(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	got, err := f.users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, got.ID)
	assert.True(t, got.Enabled)
	assert.Equal(t, "alice@acme.test", got.Email)
	assert.False(t, got.HasTOTP())

	got.TOTPSecret = "JBSWY3DPEHPK3PXP"
	got.Enabled = false
	require.NoError(t, f.users.Update(ctx, got))

	again, err := f.users.GetByID(ctx, got.ID)
	require.NoError(t, err)
	assert.True(t, again.HasTOTP())
	assert.False(t, again.Enabled)

	err = f.users.Create(ctx, &models.User{Username: "alice", PasswordHash: "x"})
	assert.True(t, errors.Is(err, ErrAlreadyExists), err)

	_, err = f.users.GetByUsername(ctx, "nobody")
	assert.True(t, errors.Is(err, ErrNotFound))

	users, err := f.users.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	assert.True(t, errors.Is(f.users.Delete(ctx, 9999), ErrNotFound))
}

func TestProductRepository(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	got, err := f.products.GetByCode(ctx, "ZAYONA-PRO-9988")
	require.NoError(t, err)
	assert.Equal(t, "Zayona Pro", got.Name)

	err = f.products.Create(ctx, &models.Product{Name: "Dup", ProductCode: "ZAYONA-PRO-9988"})
	assert.True(t, errors.Is(err, ErrAlreadyExists))

	_, err = f.products.GetByCode(ctx, "NOPE")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, f.products.Create(ctx, &models.Product{Name: "Acme App", ProductCode: "ACME-APP"}))
	products, err := f.products.List(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "ACME-APP", products[0].ProductCode)
}

func TestInsertAndFindLicense(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	rec := signedRecord(t, time.Date(2025, 3, 1, 10, 20, 30, 0, time.UTC))
	id, err := f.licenses.InsertLicense(ctx, rec, f.binding(rec))
	require.NoError(t, err)
	assert.NotZero(t, id)

	stored, err := f.licenses.FindLicenseByKey(ctx, rec.LicenseKey)
	require.NoError(t, err)
	assert.Equal(t, id, stored.ID)
	assert.Equal(t, rec.Signature, stored.License.Signature)
	assert.Equal(t, license.Canonicalize(rec.Record), license.Canonicalize(stored.License.Record))
	assert.Equal(t, "MAC:AA:BB:CC:DD:EE:FF", stored.Binding.HardwareFingerprint)
	assert.True(t, rec.ExpiryDate.Time().Equal(stored.Binding.ValidTill))
	assert.False(t, stored.Binding.IsRevoked)

	_, err = f.licenses.FindLicenseByKey(ctx, "OSPL-PRO-20250301-000000-AAA00")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(err, verify.ErrNotFound))

	keys, err := f.licenses.ListExistingKeys(ctx)
	require.NoError(t, err)
	assert.Contains(t, keys, rec.LicenseKey)
}

func TestInsertLicenseRejectsUnsigned(t *testing.T) {
	f := setup(t)
	rec := signedRecord(t, time.Now())
	rec.Signature = ""

	_, err := f.licenses.InsertLicense(context.Background(), rec, f.binding(rec))
	assert.True(t, errors.Is(err, ErrUnsigned))
}

func TestOneLiveLicensePerUserAndProduct(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first := signedRecord(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	_, err := f.licenses.InsertLicense(ctx, first, f.binding(first))
	require.NoError(t, err)

	has, err := f.licenses.HasActiveLicense(ctx, f.user.ID, f.product.ID)
	require.NoError(t, err)
	assert.True(t, has)

	second := signedRecord(t, time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC))
	_, err = f.licenses.InsertLicense(ctx, second, f.binding(second))
	assert.True(t, errors.Is(err, ErrDuplicateLicense), err)

	_, err = f.licenses.InsertLicense(ctx, first, f.binding(first))
	assert.Error(t, err)

	require.NoError(t, f.licenses.MarkRevoked(ctx, first.LicenseKey))
	_, err = f.licenses.InsertLicense(ctx, second, f.binding(second))
	require.NoError(t, err)

	count, err := f.licenses.CountActiveByUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDuplicateKey(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	rec := signedRecord(t, time.Now())
	_, err := f.licenses.InsertLicense(ctx, rec, f.binding(rec))
	require.NoError(t, err)
	require.NoError(t, f.licenses.MarkRevoked(ctx, rec.LicenseKey))

	_, err = f.licenses.InsertLicense(ctx, rec, f.binding(rec))
	assert.True(t, errors.Is(err, ErrDuplicateKey), err)
}

func TestMarkRevoked(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	rec := signedRecord(t, time.Now())
	_, err := f.licenses.InsertLicense(ctx, rec, f.binding(rec))
	require.NoError(t, err)

	require.NoError(t, f.licenses.MarkRevoked(ctx, rec.LicenseKey))
	require.NoError(t, f.licenses.MarkRevoked(ctx, rec.LicenseKey))

	stored, err := f.licenses.FindLicenseByKey(ctx, rec.LicenseKey)
	require.NoError(t, err)
	assert.True(t, stored.Binding.IsRevoked)

	assert.True(t, errors.Is(f.licenses.MarkRevoked(ctx, "missing"), ErrNotFound))
}

func TestRenew(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	rec := signedRecord(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	_, err := f.licenses.InsertLicense(ctx, rec, f.binding(rec))
	require.NoError(t, err)

	renewed := rec
	renewed.ExpiryDate = rec.ExpiryDate.AddDays(30)
	renewed.Signature = "bmV3"
	validTill := renewed.ExpiryDate.Time()
	require.NoError(t, f.licenses.Renew(ctx, renewed, validTill))

	stored, err := f.licenses.FindLicenseByKey(ctx, rec.LicenseKey)
	require.NoError(t, err)
	assert.Equal(t, "2025-04-30", stored.License.ExpiryDate.String())
	assert.Equal(t, "bmV3", stored.License.Signature)
	assert.True(t, validTill.Equal(stored.Binding.ValidTill))

	require.NoError(t, f.licenses.MarkRevoked(ctx, rec.LicenseKey))
	assert.True(t, errors.Is(f.licenses.Renew(ctx, renewed, validTill), ErrRevoked))

	missing := renewed
	missing.LicenseKey = "OSPL-PRO-20250301-000000-AAA00"
	assert.True(t, errors.Is(f.licenses.Renew(ctx, missing, validTill), ErrNotFound))
}

func TestListLicenses(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	rec := signedRecord(t, time.Now())
	_, err := f.licenses.InsertLicense(ctx, rec, f.binding(rec))
	require.NoError(t, err)

	all, err := f.licenses.List(ctx, ListFilter{Username: "alice"})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	none, err := f.licenses.List(ctx, ListFilter{ProductCode: "OTHER"})
	require.NoError(t, err)
	assert.Empty(t, none)

	active, err := f.licenses.List(ctx, ListFilter{OnlyActive: true})
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestLicenseLogs(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	rec := signedRecord(t, time.Now())
	id, err := f.licenses.InsertLicense(ctx, rec, f.binding(rec))
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, f.logs.RecordEvent(ctx, verify.Event{
		LicenseID:   id,
		LicenseKey:  rec.LicenseKey,
		Verdict:     verify.VerdictValid,
		SourceIP:    "10.0.0.1",
		Fingerprint: "MAC:AA:BB:CC:DD:EE:FF",
		Note:        "license is valid",
		Timestamp:   now.Add(-time.Minute),
	}))
	require.NoError(t, f.logs.RecordEvent(ctx, verify.Event{
		LicenseKey: rec.LicenseKey,
		Verdict:    verify.VerdictSharingDetected,
		SourceIP:   "10.0.0.2",
		Timestamp:  now,
	}))
	require.NoError(t, f.logs.RecordEvent(ctx, verify.Event{
		LicenseKey: "unknown",
		Verdict:    verify.VerdictNotFound,
		SourceIP:   "10.0.0.3",
	}))

	logs, err := f.logs.ListByKey(ctx, rec.LicenseKey, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, string(verify.VerdictSharingDetected), logs[0].Verdict)
	assert.Equal(t, id, logs[1].LicenseID)
	assert.Equal(t, "license is valid", logs[1].Note)

	count, err := f.logs.CountByVerdict(ctx, verify.VerdictNotFound, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAuditRepository(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.audit.Create(ctx, &models.AuditLog{
		Action:   models.ActionLicenseIssue,
		Username: "alice",
		ClientIP: "10.0.0.1",
		Success:  true,
	}))
	require.NoError(t, f.audit.Create(ctx, &models.AuditLog{
		Action:   models.ActionAuthFailed,
		Username: "mallory",
		ClientIP: "10.0.0.9",
		ErrorMsg: "invalid credentials",
	}))

	logs, err := f.audit.List(ctx, "", models.ActionAuthFailed, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)
	assert.Equal(t, "invalid credentials", logs[0].ErrorMsg)

	logs, err = f.audit.List(ctx, "alice", "", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)

	count, err := f.audit.CountByAction(ctx, models.ActionLicenseIssue, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	deleted, err := f.audit.DeleteOld(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}
