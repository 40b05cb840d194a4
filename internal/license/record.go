package license

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02T15:04:05Z"
)

// Status is the lifecycle state written into a license at issuance
type Status string

// License statuses
const (
	StatusActive    Status = "Active"
	StatusSuspended Status = "Suspended"
	StatusRevoked   Status = "Revoked"
	StatusExpired   Status = "Expired"
)

// Date is a calendar date without a time of day, always in UTC
type Date struct {
	t time.Time
}

// NewDate truncates t to its UTC calendar date
func NewDate(t time.Time) Date {
	t = t.UTC()
	return Date{t: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD date
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

// String returns the date as YYYY-MM-DD
func (d Date) String() string {
	if d.t.IsZero() {
		return ""
	}
	return d.t.Format(dateLayout)
}

// Time returns midnight UTC of the date
func (d Date) Time() time.Time {
	return d.t
}

// IsZero reports whether the date is unset
func (d Date) IsZero() bool {
	return d.t.IsZero()
}

// AddDays returns the date n days later
func (d Date) AddDays(n int) Date {
	return Date{t: d.t.AddDate(0, 0, n)}
}

// After reports whether d is later than other
func (d Date) After(other Date) bool {
	return d.t.After(other.t)
}

// MarshalJSON encodes the date as a YYYY-MM-DD string
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a YYYY-MM-DD string
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Timestamp is a UTC instant with second precision
type Timestamp struct {
	t time.Time
}

// NewTimestamp truncates t to whole seconds in UTC
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t: t.UTC().Truncate(time.Second)}
}

// ParseTimestamp parses a YYYY-MM-DDTHH:MM:SSZ timestamp
func ParseTimestamp(s string) (Timestamp, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return Timestamp{t: t}, nil
}

// String returns the timestamp as YYYY-MM-DDTHH:MM:SSZ
func (ts Timestamp) String() string {
	if ts.t.IsZero() {
		return ""
	}
	return ts.t.Format(timestampLayout)
}

// Time returns the underlying instant
func (ts Timestamp) Time() time.Time {
	return ts.t
}

// MarshalJSON encodes the timestamp as a string
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.String())
}

// UnmarshalJSON decodes a YYYY-MM-DDTHH:MM:SSZ string
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*ts = Timestamp{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}

// Record holds the signed content of a license. It has no signature field:
// only a Record can be canonicalized, so the signature never feeds the hash.
type Record struct {
	CustomerName string    `json:"customer_name"`
	Username     string    `json:"username"`
	ProductName  string    `json:"product_name"`
	ProductID    string    `json:"product_id"`
	LicenseKey   string    `json:"license_key"`
	LicenseType  string    `json:"license_type"`
	Status       Status    `json:"status"`
	StartDate    Date      `json:"start_date"`
	ExpiryDate   Date      `json:"expiry_date"`
	Email        string    `json:"email"`
	IssuedAt     Timestamp `json:"issued_at"`
}

// SignedRecord is a Record plus its base64 signature. Its JSON form is the
// license file handed to clients.
type SignedRecord struct {
	Record
	Signature string `json:"signature"`
}

// IsSigned reports whether the record carries a signature
func (s *SignedRecord) IsSigned() bool {
	return s.Signature != ""
}

// IsExpiredAt reports whether the record's expiry date has passed at now
func (r *Record) IsExpiredAt(now time.Time) bool {
	return now.After(r.ExpiryDate.Time())
}
