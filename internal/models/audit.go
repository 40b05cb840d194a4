package models

import "time"

// AuditLog represents an administrative audit log entry
type AuditLog struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Username  string    `json:"username,omitempty"`
	ClientIP  string    `json:"client_ip"`
	UserAgent string    `json:"user_agent,omitempty"`
	Success   bool      `json:"success"`
	ErrorMsg  string    `json:"error_msg,omitempty"`
	Details   string    `json:"details,omitempty"` // JSON
}

// Audit action constants
const (
	ActionLicenseIssue       = "license_issue"
	ActionLicenseRevoke      = "license_revoke"
	ActionLicenseRenew       = "license_renew"
	ActionLicenseAutoRevoke  = "license_auto_revoke"
	ActionAdminCreateUser    = "admin_create_user"
	ActionAdminCreateProduct = "admin_create_product"
	ActionAuthFailed         = "auth_failed"
)
