// Package client talks to the license server's HTTP API.
package client

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"

	"github.com/adamscao/licenseserver/internal/license"
	"github.com/adamscao/licenseserver/internal/models"
	"github.com/adamscao/licenseserver/internal/signing"
	"github.com/adamscao/licenseserver/internal/verify"
)

const (
	defaultTimeout = 30 * time.Second
	defaultRetries = 3
	maxBodySize    = 1 << 20
)

// APIError is a non-success response from the server
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s (%s)", e.StatusCode, e.Message, e.Code)
}

// GenerateRequest asks the server for a license bound to this machine
type GenerateRequest struct {
	Username            string `json:"username"`
	Password            string `json:"password"`
	TOTP                string `json:"totp,omitempty"`
	ProductID           string `json:"product_id"`
	CustomerName        string `json:"customer_name,omitempty"`
	LicenseType         string `json:"license_type,omitempty"`
	DurationDays        int    `json:"duration_days,omitempty"`
	HardwareFingerprint string `json:"hardware_fingerprint"`
}

// VerifyResponse is the server's verdict on a license
type VerifyResponse struct {
	Valid       bool                  `json:"valid"`
	Verdict     verify.Verdict        `json:"verdict"`
	Reason      string                `json:"reason"`
	License     *license.SignedRecord `json:"license,omitempty"`
	CheckedAt   time.Time             `json:"checked_at"`
	AutoRevoked bool                  `json:"auto_revoked,omitempty"`
}

// PublicKey is the server's signing key
type PublicKey struct {
	Key         *rsa.PublicKey
	PEM         string
	Fingerprint string
}

// Option configures a Client
type Option func(*Client)

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.HTTPClient.Timeout = d }
}

// WithRetries sets how often failed connections and gateway errors are
// retried
func WithRetries(n int) Option {
	return func(c *Client) { c.http.RetryMax = n }
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// Client is a license server API client
type Client struct {
	baseURL   string
	userAgent string
	http      *retryablehttp.Client
}

// New creates a client for the server at baseURL
func New(baseURL string, opts ...Option) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = defaultRetries
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = defaultTimeout
	rc.CheckRetry = retryPolicy
	rc.Logger = logAdapter{}

	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: "licagent",
		http:      rc,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryPolicy retries transport failures and gateway errors only. Other
// answers, including 500, are final so a request that did reach the server
// is not replayed.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true, nil
	}
	return false, nil
}

// GenerateLicense requests a new signed license
func (c *Client) GenerateLicense(ctx context.Context, req GenerateRequest) (*license.SignedRecord, error) {
	var rec license.SignedRecord
	if err := c.do(ctx, http.MethodPost, "/api/v1/licenses", req, &rec, http.StatusOK); err != nil {
		return nil, err
	}
	return &rec, nil
}

// VerifyLicense asks the server to verify key for the machine with the given
// fingerprint. Every verdict, including NotFound, is a result, not an error.
func (c *Client) VerifyLicense(ctx context.Context, key, fingerprint string) (*VerifyResponse, error) {
	body := map[string]string{
		"license_key":          key,
		"hardware_fingerprint": fingerprint,
	}

	var resp VerifyResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/licenses/verify", body, &resp,
		http.StatusOK, http.StatusForbidden, http.StatusNotFound); err != nil {
		return nil, err
	}
	if resp.Verdict == "" {
		return nil, errors.New("server response carries no verdict")
	}
	return &resp, nil
}

// LicenseInfo returns the public summary of a license
func (c *Client) LicenseInfo(ctx context.Context, key string) (*models.LicenseSummary, error) {
	var info models.LicenseSummary
	if err := c.do(ctx, http.MethodGet, "/api/v1/licenses/"+url.PathEscape(key), nil, &info, http.StatusOK); err != nil {
		return nil, err
	}
	return &info, nil
}

// PublicKey downloads the server's signing public key
func (c *Client) PublicKey(ctx context.Context) (*PublicKey, error) {
	var resp struct {
		PublicKey   string `json:"public_key"`
		Fingerprint string `json:"fingerprint"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/keys/public", nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}

	key, err := signing.ParsePublicKeyPEM([]byte(resp.PublicKey))
	if err != nil {
		return nil, err
	}
	return &PublicKey{Key: key, PEM: resp.PublicKey, Fingerprint: resp.Fingerprint}, nil
}

// Health checks that the server and its database are up
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, http.StatusOK)
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}, accept ...int) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach license server: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if !accepted(resp.StatusCode, accept) {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func accepted(status int, accept []int) bool {
	for _, s := range accept {
		if s == status {
			return true
		}
	}
	return false
}

// logAdapter sends retryablehttp's messages to logrus at debug level
type logAdapter struct{}

func (logAdapter) Error(msg string, kv ...interface{}) { log.WithFields(fields(kv)).Debug(msg) }
func (logAdapter) Info(msg string, kv ...interface{})  { log.WithFields(fields(kv)).Debug(msg) }
func (logAdapter) Debug(msg string, kv ...interface{}) { log.WithFields(fields(kv)).Debug(msg) }
func (logAdapter) Warn(msg string, kv ...interface{})  { log.WithFields(fields(kv)).Debug(msg) }

func fields(kv []interface{}) log.Fields {
	f := log.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
