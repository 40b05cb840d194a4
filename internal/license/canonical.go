package license

import (
	"bytes"
	"sort"
	"unicode/utf16"
	"unicode/utf8"
)

const hexDigits = "0123456789abcdef"

// Canonicalize returns the deterministic byte form of a record: a JSON object
// with keys sorted by name, no whitespace, every value a string, and all
// non-ASCII text escaped as \uXXXX. These bytes are exactly what gets signed.
func Canonicalize(rec Record) []byte {
	fields := map[string]string{
		"customer_name": rec.CustomerName,
		"email":         rec.Email,
		"expiry_date":   rec.ExpiryDate.String(),
		"issued_at":     rec.IssuedAt.String(),
		"license_key":   rec.LicenseKey,
		"license_type":  rec.LicenseType,
		"product_id":    rec.ProductID,
		"product_name":  rec.ProductName,
		"start_date":    rec.StartDate.String(),
		"status":        string(rec.Status),
		"username":      rec.Username,
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(&buf, k)
		buf.WriteByte(':')
		writeString(&buf, fields[k])
	}
	buf.WriteByte('}')

	return buf.Bytes()
}

// writeString writes s as an ASCII-only JSON string
func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size

		switch {
		case r == '"':
			buf.WriteString(`\"`)
		case r == '\\':
			buf.WriteString(`\\`)
		case r == '\n':
			buf.WriteString(`\n`)
		case r == '\r':
			buf.WriteString(`\r`)
		case r == '\t':
			buf.WriteString(`\t`)
		case r == '\b':
			buf.WriteString(`\b`)
		case r == '\f':
			buf.WriteString(`\f`)
		case r < 0x20 || r == 0x7f:
			writeEscape(buf, r)
		case r < utf8.RuneSelf:
			buf.WriteByte(byte(r))
		case r > 0xFFFF:
			hi, lo := utf16.EncodeRune(r)
			writeEscape(buf, hi)
			writeEscape(buf, lo)
		default:
			// Invalid UTF-8 decodes to U+FFFD and is escaped like any other rune.
			writeEscape(buf, r)
		}
	}
	buf.WriteByte('"')
}

func writeEscape(buf *bytes.Buffer, r rune) {
	buf.WriteString(`\u`)
	buf.WriteByte(hexDigits[(r>>12)&0xF])
	buf.WriteByte(hexDigits[(r>>8)&0xF])
	buf.WriteByte(hexDigits[(r>>4)&0xF])
	buf.WriteByte(hexDigits[r&0xF])
}
