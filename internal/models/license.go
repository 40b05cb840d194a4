package models

import "time"

// LicenseSummary is the public view of a license, without its machine
// binding
type LicenseSummary struct {
	ID           int64     `json:"id"`
	LicenseKey   string    `json:"license_key"`
	CustomerName string    `json:"customer_name"`
	Username     string    `json:"username"`
	ProductName  string    `json:"product_name"`
	ProductCode  string    `json:"product_code"`
	LicenseType  string    `json:"license_type"`
	ExpiryDate   string    `json:"expiry_date"`
	ValidTill    time.Time `json:"valid_till"`
	IssuedAt     string    `json:"issued_at"`
	IsRevoked    bool      `json:"is_revoked"`
	Status       string    `json:"status"`
}

// Summary states
const (
	SummaryActive   = "Active"
	SummaryInactive = "Inactive"
)

// LicenseLog is one verification attempt against a license
type LicenseLog struct {
	ID                  int64     `json:"id"`
	LicenseID           int64     `json:"license_id,omitempty"` // 0 when the key was unknown
	LicenseKey          string    `json:"license_key"`
	Verdict             string    `json:"verdict"`
	SourceIP            string    `json:"source_ip"`
	UserAgent           string    `json:"user_agent,omitempty"`
	HardwareFingerprint string    `json:"hardware_fingerprint,omitempty"`
	Note                string    `json:"note,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
}
