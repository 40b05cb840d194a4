package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adamscao/licenseserver/internal/license"
	"github.com/adamscao/licenseserver/internal/verify"
)

// LicenseRepository stores signed licenses and their machine bindings
type LicenseRepository struct {
	db *sql.DB
}

// NewLicenseRepository creates a new license repository
func NewLicenseRepository(db *sql.DB) *LicenseRepository {
	return &LicenseRepository{db: db}
}

// ListFilter narrows List results
type ListFilter struct {
	Username    string
	ProductCode string
	OnlyActive  bool
	Limit       int
}

const licenseColumns = `
	id, user_id, product_id, license_key, customer_name, username, product_name, product_code,
	license_type, status, start_date, expiry_date, email, issued_at, signature,
	hardware_fingerprint, max_installations, current_installations, is_revoked, valid_till`

// InsertLicense stores a signed license with its binding and returns the
// new row id. Unsigned records are refused.
func (r *LicenseRepository) InsertLicense(ctx context.Context, rec license.SignedRecord, b verify.Binding) (int64, error) {
	if !rec.IsSigned() {
		return 0, ErrUnsigned
	}

	query := `
		INSERT INTO licenses (
			user_id, product_id, license_key, customer_name, username, product_name, product_code,
			license_type, status, start_date, expiry_date, email, issued_at, signature,
			hardware_fingerprint, max_installations, current_installations, is_revoked, valid_till
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		b.UserID,
		b.ProductID,
		rec.LicenseKey,
		rec.CustomerName,
		rec.Username,
		rec.ProductName,
		rec.ProductID,
		rec.LicenseType,
		string(rec.Status),
		rec.StartDate.String(),
		rec.ExpiryDate.String(),
		rec.Email,
		rec.IssuedAt.String(),
		rec.Signature,
		b.HardwareFingerprint,
		b.MaxInstallations,
		b.CurrentInstallations,
		boolToInt(b.IsRevoked),
		b.ValidTill.UTC(),
	)
	if constraint, dup := uniqueViolation(err); dup {
		if strings.Contains(constraint, "license_key") {
			return 0, ErrDuplicateKey
		}
		return 0, ErrDuplicateLicense
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert license: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return id, nil
}

// FindLicenseByKey retrieves a license by its key
func (r *LicenseRepository) FindLicenseByKey(ctx context.Context, key string) (*verify.StoredLicense, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE license_key = ?`, key)

	stored, err := scanLicense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("license %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	return stored, nil
}

// ListExistingKeys returns every license key ever issued
func (r *LicenseRepository) ListExistingKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT license_key FROM licenses`)
	if err != nil {
		return nil, fmt.Errorf("failed to list license keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan license key: %w", err)
		}
		keys[key] = struct{}{}
	}

	return keys, rows.Err()
}

// MarkRevoked revokes a license. Revoking an already revoked license is a
// no-op; an unknown key returns ErrNotFound.
func (r *LicenseRepository) MarkRevoked(ctx context.Context, key string) error {
	query := `
		UPDATE licenses
		SET is_revoked = 1,
		    revoked_at = COALESCE(revoked_at, ?),
		    updated_at = CURRENT_TIMESTAMP
		WHERE license_key = ?
	`

	result, err := r.db.ExecContext(ctx, query, time.Now().UTC(), key)
	if err != nil {
		return fmt.Errorf("failed to revoke license: %w", err)
	}

	return requireRow(result, "license "+key)
}

// Renew replaces the signed content of a live license and moves its
// valid_till. The record must carry the same key and a fresh signature.
func (r *LicenseRepository) Renew(ctx context.Context, rec license.SignedRecord, validTill time.Time) error {
	if !rec.IsSigned() {
		return ErrUnsigned
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var revoked int
	err = tx.QueryRowContext(ctx, `SELECT is_revoked FROM licenses WHERE license_key = ?`, rec.LicenseKey).Scan(&revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("license %q: %w", rec.LicenseKey, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read license: %w", err)
	}
	if revoked == 1 {
		return ErrRevoked
	}

	query := `
		UPDATE licenses
		SET status = ?, start_date = ?, expiry_date = ?, issued_at = ?, signature = ?,
		    valid_till = ?, updated_at = CURRENT_TIMESTAMP
		WHERE license_key = ?
	`
	if _, err := tx.ExecContext(ctx, query,
		string(rec.Status),
		rec.StartDate.String(),
		rec.ExpiryDate.String(),
		rec.IssuedAt.String(),
		rec.Signature,
		validTill.UTC(),
		rec.LicenseKey,
	); err != nil {
		return fmt.Errorf("failed to renew license: %w", err)
	}

	return tx.Commit()
}

// HasActiveLicense reports whether the user holds a non-revoked license for
// the product
func (r *LicenseRepository) HasActiveLicense(ctx context.Context, userID, productID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0 FROM licenses
		WHERE user_id = ? AND product_id = ? AND is_revoked = 0
	`, userID, productID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check existing license: %w", err)
	}

	return exists, nil
}

// CountActiveByUser counts the user's non-revoked licenses
func (r *LicenseRepository) CountActiveByUser(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM licenses
		WHERE user_id = ? AND is_revoked = 0
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count licenses: %w", err)
	}

	return count, nil
}

// List lists licenses, newest first
func (r *LicenseRepository) List(ctx context.Context, filter ListFilter) ([]*verify.StoredLicense, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE 1=1`
	args := []interface{}{}

	if filter.Username != "" {
		query += " AND username = ?"
		args = append(args, filter.Username)
	}
	if filter.ProductCode != "" {
		query += " AND product_code = ?"
		args = append(args, filter.ProductCode)
	}
	if filter.OnlyActive {
		query += " AND is_revoked = 0 AND valid_till >= ?"
		args = append(args, time.Now().UTC())
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list licenses: %w", err)
	}
	defer rows.Close()

	var licenses []*verify.StoredLicense
	for rows.Next() {
		stored, err := scanLicense(rows)
		if err != nil {
			return nil, err
		}
		licenses = append(licenses, stored)
	}

	return licenses, rows.Err()
}

func scanLicense(s scanner) (*verify.StoredLicense, error) {
	var (
		stored                               verify.StoredLicense
		status, startDate, expiryDate, issue string
		revoked                              int
	)

	err := s.Scan(
		&stored.ID,
		&stored.Binding.UserID,
		&stored.Binding.ProductID,
		&stored.License.LicenseKey,
		&stored.License.CustomerName,
		&stored.License.Username,
		&stored.License.ProductName,
		&stored.License.ProductID,
		&stored.License.LicenseType,
		&status,
		&startDate,
		&expiryDate,
		&stored.License.Email,
		&issue,
		&stored.License.Signature,
		&stored.Binding.HardwareFingerprint,
		&stored.Binding.MaxInstallations,
		&stored.Binding.CurrentInstallations,
		&revoked,
		&stored.Binding.ValidTill,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan license: %w", err)
	}

	stored.License.Status = license.Status(status)
	stored.Binding.IsRevoked = revoked == 1

	if stored.License.StartDate, err = license.ParseDate(startDate); err != nil {
		return nil, fmt.Errorf("license %s has corrupt start_date: %w", stored.License.LicenseKey, err)
	}
	if stored.License.ExpiryDate, err = license.ParseDate(expiryDate); err != nil {
		return nil, fmt.Errorf("license %s has corrupt expiry_date: %w", stored.License.LicenseKey, err)
	}
	if stored.License.IssuedAt, err = license.ParseTimestamp(issue); err != nil {
		return nil, fmt.Errorf("license %s has corrupt issued_at: %w", stored.License.LicenseKey, err)
	}

	return &stored, nil
}
