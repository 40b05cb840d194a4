package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/adamscao/licenseserver/internal/models"
)

// AuditRepository handles administrative audit log data access
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create creates a new audit log entry
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (action, username, client_ip, user_agent, success, error_msg, details)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		entry.Action,
		entry.Username,
		entry.ClientIP,
		entry.UserAgent,
		boolToInt(entry.Success),
		entry.ErrorMsg,
		entry.Details,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	entry.ID = id
	entry.Timestamp = time.Now()

	return nil
}

// List lists audit logs with optional filters
func (r *AuditRepository) List(ctx context.Context, username string, action string, limit int) ([]*models.AuditLog, error) {
	query := `
		SELECT id, timestamp, action, username, client_ip, user_agent, success, error_msg, details
		FROM audit_logs
		WHERE 1=1
	`
	args := []interface{}{}

	if username != "" {
		query += " AND username = ?"
		args = append(args, username)
	}

	if action != "" {
		query += " AND action = ?"
		args = append(args, action)
	}

	query += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.AuditLog

	for rows.Next() {
		entry := &models.AuditLog{}
		var success int
		var username, userAgent, errorMsg, details sql.NullString

		err := rows.Scan(
			&entry.ID,
			&entry.Timestamp,
			&entry.Action,
			&username,
			&entry.ClientIP,
			&userAgent,
			&success,
			&errorMsg,
			&details,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		entry.Success = success == 1
		entry.Username = username.String
		entry.UserAgent = userAgent.String
		entry.ErrorMsg = errorMsg.String
		entry.Details = details.String

		logs = append(logs, entry)
	}

	return logs, rows.Err()
}

// CountByAction counts audit logs by action type
func (r *AuditRepository) CountByAction(ctx context.Context, action string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM audit_logs
		WHERE action = ? AND timestamp >= ?
	`

	var count int
	err := r.db.QueryRowContext(ctx, query, action, since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	return count, nil
}

// DeleteOld deletes audit logs older than the given date
func (r *AuditRepository) DeleteOld(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE timestamp < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit logs: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return count, nil
}
