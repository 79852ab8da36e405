// Package deliveryclient implements the synchronous outbound HTTP
// delivery client: a single POST per call, classified into an
// OutcomeClass for the Retry Policy Engine to consume.
package deliveryclient

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/claimcore/core/internal/retrypolicy"
)

// DefaultTimeout is the default connect+total timeout for a delivery attempt.
const DefaultTimeout = 10 * time.Second

// maxErrorBodyBytes bounds how much of a non-2xx response body is read
// for error reporting.
const maxErrorBodyBytes = 1024

// Client performs webhook delivery HTTP requests.
type Client struct {
	http        *http.Client
	hmacSecret  string
}

// Config configures a Client.
type Config struct {
	Timeout    time.Duration
	HMACSecret string
}

// New creates a delivery Client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http:       &http.Client{Timeout: timeout},
		hmacSecret: cfg.HMACSecret,
	}
}

// Request describes one delivery attempt.
type Request struct {
	URL           string
	Body          []byte
	CorrelationID string
	WebhookID     string
	Attempt       int
}

// Result is the outcome of one delivery attempt.
type Result struct {
	Class        retrypolicy.OutcomeClass
	StatusCode   int
	ErrorDetail  string
}

// Deliver issues the POST request and classifies the outcome. It never
// returns a Go error for ordinary HTTP-layer failures; those are
// captured in Result.Class/ErrorDetail so callers can feed them
// directly to the Retry Policy Engine without propagating to the
// worker loop.
func (c *Client) Deliver(ctx context.Context, req Request) Result {
	if !validURLSyntax(req.URL) {
		return Result{Class: retrypolicy.ClassInvalidURL, ErrorDetail: "invalid destination URL"}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return Result{Class: retrypolicy.ClassInvalidURL, ErrorDetail: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Correlation-Id", req.CorrelationID)
	httpReq.Header.Set("X-Webhook-Id", req.WebhookID)
	httpReq.Header.Set("X-Attempt", strconv.Itoa(req.Attempt))
	if c.hmacSecret != "" {
		httpReq.Header.Set("X-Signature", c.sign(req.Body))
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	class := retrypolicy.ClassifyHTTPStatus(resp.StatusCode)
	detail := ""
	if class != retrypolicy.ClassSuccess2xx {
		detail = fmt.Sprintf("status %d: %s", resp.StatusCode, string(body))
	}
	return Result{Class: class, StatusCode: resp.StatusCode, ErrorDetail: detail}
}

// sign computes the hex-lowercase HMAC-SHA256 signature of body.
func (c *Client) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.hmacSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func classifyTransportError(err error) Result {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Result{Class: retrypolicy.ClassTimeout, ErrorDetail: err.Error()}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Result{Class: retrypolicy.ClassTimeout, ErrorDetail: err.Error()}
	}
	return Result{Class: retrypolicy.ClassConnectionError, ErrorDetail: err.Error()}
}

func validURLSyntax(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

// Host extracts the scheme+authority destination host used as the
// circuit breaker key, e.g. "https://example.com".
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Scheme + "://" + u.Host
}
