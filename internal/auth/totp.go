package auth

import (
	"fmt"
	"net/url"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpIssuer = "LicenseServer"
)

// GenerateTOTPSecret generates a new TOTP secret for the account
func GenerateTOTPSecret(username string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: username,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	return key.Secret(), nil
}

// GenerateQRCodeURL generates a QR code URL for TOTP setup
func GenerateQRCodeURL(secret, username, issuer string) string {
	if issuer == "" {
		issuer = totpIssuer
	}

	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s",
		url.QueryEscape(issuer),
		url.QueryEscape(username),
		secret,
		url.QueryEscape(issuer))
}

// ValidateTOTP validates a TOTP code against a secret, accepting one period
// of clock skew either way
func ValidateTOTP(secret, code string) (bool, error) {
	return ValidateTOTPAt(secret, code, time.Now())
}

// ValidateTOTPAt validates a TOTP code as of t
func ValidateTOTPAt(secret, code string, t time.Time) (bool, error) {
	valid, err := totp.ValidateCustom(code, secret, t.UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err == otp.ErrValidateInputInvalidLength {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to validate TOTP: %w", err)
	}

	return valid, nil
}
