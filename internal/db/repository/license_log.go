package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/adamscao/licenseserver/internal/models"
	"github.com/adamscao/licenseserver/internal/verify"
)

// LicenseLogRepository records verification attempts
type LicenseLogRepository struct {
	db *sql.DB
}

// NewLicenseLogRepository creates a new license log repository
func NewLicenseLogRepository(db *sql.DB) *LicenseLogRepository {
	return &LicenseLogRepository{db: db}
}

// RecordEvent writes one verification event
func (r *LicenseLogRepository) RecordEvent(ctx context.Context, ev verify.Event) error {
	query := `
		INSERT INTO license_logs (license_id, license_key, verdict, source_ip, user_agent, hardware_fingerprint, note, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	var licenseID sql.NullInt64
	if ev.LicenseID != 0 {
		licenseID = sql.NullInt64{Int64: ev.LicenseID, Valid: true}
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := r.db.ExecContext(ctx, query,
		licenseID,
		ev.LicenseKey,
		string(ev.Verdict),
		ev.SourceIP,
		ev.UserAgent,
		ev.Fingerprint,
		ev.Note,
		ts.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record license event: %w", err)
	}

	return nil
}

// ListByKey lists verification attempts for a key, newest first
func (r *LicenseLogRepository) ListByKey(ctx context.Context, key string, limit int) ([]*models.LicenseLog, error) {
	query := `
		SELECT id, license_id, license_key, verdict, source_ip, user_agent, hardware_fingerprint, note, timestamp
		FROM license_logs
		WHERE license_key = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, key, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list license logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.LicenseLog
	for rows.Next() {
		entry := &models.LicenseLog{}
		var licenseID sql.NullInt64
		var userAgent, fingerprint, note sql.NullString

		if err := rows.Scan(
			&entry.ID,
			&licenseID,
			&entry.LicenseKey,
			&entry.Verdict,
			&entry.SourceIP,
			&userAgent,
			&fingerprint,
			&note,
			&entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan license log: %w", err)
		}

		entry.LicenseID = licenseID.Int64
		entry.UserAgent = userAgent.String
		entry.HardwareFingerprint = fingerprint.String
		entry.Note = note.String

		logs = append(logs, entry)
	}

	return logs, rows.Err()
}

// CountByVerdict counts events with the verdict since the given time
func (r *LicenseLogRepository) CountByVerdict(ctx context.Context, verdict verify.Verdict, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM license_logs
		WHERE verdict = ? AND timestamp >= ?
	`, string(verdict), since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count license logs: %w", err)
	}

	return count, nil
}
