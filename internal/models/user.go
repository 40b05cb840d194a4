package models

import "time"

// User represents an account allowed to request licenses
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Never expose password hash in JSON
	TOTPSecret   string    `json:"-"` // Never expose TOTP secret in JSON
	Email        string    `json:"email,omitempty"`
	Enabled      bool      `json:"enabled"`
	MaxLicenses  int       `json:"max_licenses"` // 0 falls back to policy
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasTOTP reports whether the user enrolled a second factor
func (u *User) HasTOTP() bool {
	return u.TOTPSecret != ""
}
