package licensefile

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamscao/licenseserver/internal/license"
)

const licensePath = "/etc/licagent/license.json"

func testRecord(t *testing.T, days int) license.SignedRecord {
	t.Helper()
	rec, err := license.NewIssuer(license.NewKeyGenerator("OSPL")).
		WithClock(func() time.Time { return time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC) }).
		Issue(license.IssueRequest{
			CustomerName: "Acme Corp",
			Username:     "alice",
			ProductName:  "Zayona Pro",
			ProductID:    "ZAYONA-PRO-9988",
			DurationDays: days,
		}, nil)
	require.NoError(t, err)
	return license.SignedRecord{Record: rec, Signature: "c2lnbmF0dXJl"}
}

func TestSaveAndLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := New(fs, licensePath)

	assert.False(t, store.Exists())
	rec := testRecord(t, 30)
	require.NoError(t, store.Save(rec))
	assert.True(t, store.Exists())

	fi, err := fs.Stat(licensePath)
	require.NoError(t, err)
	assert.Equal(t, "-rw-------", fi.Mode().Perm().String())

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, rec.LicenseKey, loaded.LicenseKey)
	assert.Equal(t, rec.Signature, loaded.Signature)
	assert.Equal(t, license.Canonicalize(rec.Record), license.Canonicalize(loaded.Record))

	exists, err := afero.Exists(fs, store.BackupPath())
	require.NoError(t, err)
	assert.False(t, exists, "first save has nothing to back up")
}

func TestSaveBacksUpPreviousLicense(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := New(fs, licensePath)

	first := testRecord(t, 30)
	second := testRecord(t, 90)
	require.NoError(t, store.Save(first))
	require.NoError(t, store.Save(second))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, second.ExpiryDate.String(), loaded.ExpiryDate.String())

	require.NoError(t, store.RestoreBackup())
	loaded, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, first.ExpiryDate.String(), loaded.ExpiryDate.String())
}

func TestLoadErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := New(fs, licensePath)

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, afero.WriteFile(fs, licensePath, []byte("{not json"), 0600))
	_, err = store.Load()
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestRestoreWithoutBackup(t *testing.T) {
	store := New(afero.NewMemMapFs(), licensePath)
	assert.ErrorIs(t, store.RestoreBackup(), ErrNoBackup)
}

func TestDelete(t *testing.T) {
	store := New(afero.NewMemMapFs(), licensePath)

	require.NoError(t, store.Delete())
	require.NoError(t, store.Save(testRecord(t, 30)))
	require.NoError(t, store.Delete())
	assert.False(t, store.Exists())
}

func TestInfo(t *testing.T) {
	store := New(afero.NewMemMapFs(), licensePath)

	info, err := store.Info()
	require.NoError(t, err)
	assert.False(t, info.Exists)
	assert.Equal(t, licensePath, info.Path)

	require.NoError(t, store.Save(testRecord(t, 30)))
	info, err = store.Info()
	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.Positive(t, info.Size)
}

func TestValidate(t *testing.T) {
	valid := testRecord(t, 30)
	require.NoError(t, Validate(&valid))

	missing := valid
	missing.Signature = ""
	missing.CustomerName = ""
	err := Validate(&missing)
	var fieldsErr *MissingFieldsError
	require.ErrorAs(t, err, &fieldsErr)
	assert.Equal(t, []string{"customer_name", "signature"}, fieldsErr.Fields)

	badKey := valid
	badKey.LicenseKey = "not-a-key"
	var formatErr *license.FormatError
	assert.ErrorAs(t, Validate(&badKey), &formatErr)
}

func TestStoreValidate(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := New(fs, licensePath)

	_, err := store.Validate()
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, afero.WriteFile(fs, licensePath, []byte(`{"license_key":"OSPL-PRO-20250310-093000-ABC12"}`), 0600))
	_, err = store.Validate()
	var fieldsErr *MissingFieldsError
	assert.ErrorAs(t, err, &fieldsErr)

	rec := testRecord(t, 30)
	require.NoError(t, store.Save(rec))
	loaded, err := store.Validate()
	require.NoError(t, err)
	assert.Equal(t, rec.LicenseKey, loaded.LicenseKey)
}
