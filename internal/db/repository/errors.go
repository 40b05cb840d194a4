package repository

import (
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/adamscao/licenseserver/internal/verify"
)

var (
	// ErrNotFound is returned when a lookup matches no row. It is the
	// sentinel the verification engine treats as an unknown license.
	ErrNotFound = verify.ErrNotFound

	// ErrAlreadyExists is returned when a unique user or product field
	// collides with an existing row
	ErrAlreadyExists = errors.New("already exists")

	// ErrDuplicateLicense is returned when the user already holds a
	// non-revoked license for the product
	ErrDuplicateLicense = errors.New("user already has an active license for this product")

	// ErrDuplicateKey is returned when the license key is already taken
	ErrDuplicateKey = errors.New("license key already exists")

	// ErrUnsigned is returned when inserting a license without a signature
	ErrUnsigned = errors.New("license is not signed")

	// ErrRevoked is returned when renewing a revoked license
	ErrRevoked = errors.New("license is revoked")
)

// uniqueViolation reports whether err is a UNIQUE constraint failure and
// returns the constraint text, e.g. "licenses.user_id, licenses.product_id".
func uniqueViolation(err error) (string, bool) {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return "", false
	}
	msg := sqliteErr.Error()
	if idx := strings.Index(msg, "failed:"); idx >= 0 {
		return strings.TrimSpace(msg[idx+len("failed:"):]), true
	}
	return msg, true
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
