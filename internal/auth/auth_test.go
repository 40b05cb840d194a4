package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery", hash)

	ok, err := VerifyPassword("correct horse battery", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong password", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = VerifyPassword("anything", "not-a-bcrypt-hash")
	assert.Error(t, err)

	_, err = HashPassword("short")
	assert.Error(t, err)
}

func TestTOTP(t *testing.T) {
	secret, err := GenerateTOTPSecret("alice")
	require.NoError(t, err)
	require.NotEmpty(t, secret)

	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	code, err := totp.GenerateCode(secret, now)
	require.NoError(t, err)

	ok, err := ValidateTOTPAt(secret, code, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ValidateTOTPAt(secret, code, now.Add(30*time.Second))
	require.NoError(t, err)
	assert.True(t, ok, "one period of skew is accepted")

	ok, err = ValidateTOTPAt(secret, code, now.Add(5*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ValidateTOTPAt(secret, "12", now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGenerateQRCodeURL(t *testing.T) {
	url := GenerateQRCodeURL("JBSWY3DPEHPK3PXP", "alice@acme", "")

	assert.True(t, strings.HasPrefix(url, "otpauth://totp/LicenseServer:alice%40acme?"))
	assert.Contains(t, url, "secret=JBSWY3DPEHPK3PXP")
}

func TestTokens(t *testing.T) {
	a, err := GenerateToken()
	require.NoError(t, err)
	b, err := GenerateToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)

	assert.True(t, TokenEqual(a, a))
	assert.False(t, TokenEqual(a, b))
	assert.False(t, TokenEqual("", a))
}
