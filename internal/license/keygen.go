package license

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"
)

const (
	// MaxKeyAttempts bounds the uniqueness retries in GenerateUniqueKey
	MaxKeyAttempts = 100

	// DefaultCompany is used when no company abbreviation is configured
	DefaultCompany = "OSPL"

	fallbackProductAbbr = "GEN"
	maxProductAbbrLen   = 8

	upperLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits       = "0123456789"
)

// KeyParts is the decoded form of a license key
type KeyParts struct {
	Company    string `json:"company"`
	Product    string `json:"product"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	RandomPart string `json:"random_part"`
}

// KeyGenerator synthesizes license keys of the form
// COMPANY-PRODUCTABBR-YYYYMMDD-HHMMSS-LLLDD.
type KeyGenerator struct {
	company string
	now     func() time.Time
	rand    io.Reader
}

// NewKeyGenerator creates a generator for the given company abbreviation.
// The abbreviation is reduced with CompanyAbbreviation so every generated
// key parses.
func NewKeyGenerator(company string) *KeyGenerator {
	return &KeyGenerator{
		company: CompanyAbbreviation(company),
		now:     time.Now,
		rand:    rand.Reader,
	}
}

// WithClock returns a copy of the generator that reads time from now
func (g *KeyGenerator) WithClock(now func() time.Time) *KeyGenerator {
	cp := *g
	cp.now = now
	return &cp
}

// Company returns the company abbreviation used in generated keys
func (g *KeyGenerator) Company() string {
	return g.company
}

// GenerateKey creates a single key without any uniqueness check
func (g *KeyGenerator) GenerateKey(productCode string) (string, error) {
	now := g.now().UTC()

	randomPart, err := g.randomPart()
	if err != nil {
		return "", fmt.Errorf("failed to generate random key part: %w", err)
	}

	return fmt.Sprintf("%s-%s-%s-%s-%s",
		g.company,
		ProductAbbreviation(productCode),
		now.Format("20060102"),
		now.Format("150405"),
		randomPart,
	), nil
}

// GenerateUniqueKey creates a key that is not in existing. The snapshot is
// supplied by the caller; the generator never touches storage.
func (g *KeyGenerator) GenerateUniqueKey(productCode string, existing map[string]struct{}) (string, error) {
	for attempt := 0; attempt < MaxKeyAttempts; attempt++ {
		key, err := g.GenerateKey(productCode)
		if err != nil {
			return "", err
		}
		if _, taken := existing[key]; !taken {
			return key, nil
		}
	}

	return "", &KeyExhaustionError{ProductCode: productCode, Attempts: MaxKeyAttempts}
}

// randomPart returns three uppercase letters followed by two digits
func (g *KeyGenerator) randomPart() (string, error) {
	var sb strings.Builder
	for i := 0; i < 3; i++ {
		c, err := g.pick(upperLetters)
		if err != nil {
			return "", err
		}
		sb.WriteByte(c)
	}
	for i := 0; i < 2; i++ {
		c, err := g.pick(digits)
		if err != nil {
			return "", err
		}
		sb.WriteByte(c)
	}
	return sb.String(), nil
}

func (g *KeyGenerator) pick(alphabet string) (byte, error) {
	n, err := rand.Int(g.rand, big.NewInt(int64(len(alphabet))))
	if err != nil {
		return 0, err
	}
	return alphabet[n.Int64()], nil
}

// CompanyAbbreviation keeps the ASCII letters of company, falling back to
// DefaultCompany when none remain
func CompanyAbbreviation(company string) string {
	abbr := strings.Map(func(r rune) rune {
		if isASCIILetter(r) {
			return r
		}
		return -1
	}, company)
	if abbr == "" {
		return DefaultCompany
	}
	return abbr
}

// ProductAbbreviation derives the product segment of a key: the second
// dash-delimited part of the product code if present, else its first eight
// characters, reduced to ASCII letters and digits.
func ProductAbbreviation(productCode string) string {
	var abbr string
	if parts := strings.Split(productCode, "-"); len(parts) >= 2 {
		abbr = parts[1]
	} else {
		abbr = productCode
		if r := []rune(abbr); len(r) > maxProductAbbrLen {
			abbr = string(r[:maxProductAbbrLen])
		}
	}

	abbr = strings.Map(func(r rune) rune {
		if isASCIILetter(r) || isASCIIDigit(r) {
			return r
		}
		return -1
	}, abbr)

	if abbr == "" {
		return fallbackProductAbbr
	}
	return abbr
}

// ValidateKeyFormat reports whether key matches the license key grammar
func ValidateKeyFormat(key string) bool {
	_, err := ParseKey(key)
	return err == nil
}

// ParseKey splits a license key into its parts
func ParseKey(key string) (*KeyParts, error) {
	parts := strings.Split(key, "-")
	if len(parts) != 5 {
		return nil, &FormatError{Key: key, Reason: fmt.Sprintf("expected 5 segments, got %d", len(parts))}
	}

	company, product, date, clock, random := parts[0], parts[1], parts[2], parts[3], parts[4]

	if company == "" || !allOf(company, isASCIILetter) {
		return nil, &FormatError{Key: key, Reason: "company must be letters"}
	}
	if product == "" || !allOf(product, func(r rune) bool { return isASCIILetter(r) || isASCIIDigit(r) }) {
		return nil, &FormatError{Key: key, Reason: "product must be letters and digits"}
	}
	if len(date) != 8 || !allOf(date, isASCIIDigit) {
		return nil, &FormatError{Key: key, Reason: "date must be 8 digits"}
	}
	if len(clock) != 6 || !allOf(clock, isASCIIDigit) {
		return nil, &FormatError{Key: key, Reason: "time must be 6 digits"}
	}
	if len(random) != 5 || !allOf(random[:3], isUpperLetter) || !allOf(random[3:], isASCIIDigit) {
		return nil, &FormatError{Key: key, Reason: "random part must be 3 uppercase letters and 2 digits"}
	}

	d, err := time.Parse("20060102", date)
	if err != nil {
		return nil, &FormatError{Key: key, Reason: "date is not a calendar date"}
	}
	t, err := time.Parse("150405", clock)
	if err != nil {
		return nil, &FormatError{Key: key, Reason: "time is not a clock time"}
	}

	return &KeyParts{
		Company:    company,
		Product:    product,
		Date:       d.Format(dateLayout),
		Time:       t.Format("15:04:05"),
		RandomPart: random,
	}, nil
}

func allOf(s string, pred func(rune) bool) bool {
	for _, r := range s {
		if !pred(r) {
			return false
		}
	}
	return true
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isUpperLetter(r rune) bool {
	return r >= 'A' && r <= 'Z'
}

func isASCIIDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
