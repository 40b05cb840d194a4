package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssue(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 20, 30, 500, time.UTC)
	issuer := NewIssuer(NewKeyGenerator("OSPL")).WithClock(func() time.Time { return now })

	rec, err := issuer.Issue(IssueRequest{
		CustomerName: "Acme",
		Username:     "alice",
		ProductName:  "Zayona Pro",
		ProductID:    "ZAYONA-PRO-9988",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, StatusActive, rec.Status)
	assert.Equal(t, "2025-03-01", rec.StartDate.String())
	assert.Equal(t, "2025-03-31", rec.ExpiryDate.String())
	assert.Equal(t, "2025-03-01T10:20:30Z", rec.IssuedAt.String())
	assert.Equal(t, DefaultLicenseType, rec.LicenseType)
	assert.Equal(t, "alice@example.com", rec.Email)

	parts, err := ParseKey(rec.LicenseKey)
	require.NoError(t, err)
	assert.Equal(t, "PRO", parts.Product)
	assert.Equal(t, "10:20:30", parts.Time)
}

func TestIssueDuration(t *testing.T) {
	now := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	issuer := NewIssuer(NewKeyGenerator("OSPL")).WithClock(func() time.Time { return now })

	rec, err := issuer.Issue(IssueRequest{
		Username:     "bob",
		ProductID:    "ACME-APP",
		Email:        "bob@acme.test",
		LicenseType:  "Perpetual",
		DurationDays: 365,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "2025-12-31", rec.ExpiryDate.String())
	assert.Equal(t, "bob@acme.test", rec.Email)
	assert.Equal(t, "Perpetual", rec.LicenseType)
}

func TestIssueValidation(t *testing.T) {
	issuer := NewIssuer(NewKeyGenerator("OSPL"))

	_, err := issuer.Issue(IssueRequest{ProductID: "ACME-APP"}, nil)
	assert.Error(t, err)

	_, err = issuer.Issue(IssueRequest{Username: "bob"}, nil)
	assert.Error(t, err)

	_, err = issuer.Issue(IssueRequest{Username: "bob", ProductID: "ACME-APP", DurationDays: -1}, nil)
	assert.Error(t, err)
}
