package doi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openscholar/exchange/app/cfg"
)

// Cause classifies a registration failure so callers can branch on it
// without parsing messages.
type Cause string

const (
	CauseCredentials Cause = "credentials"
	CauseRateLimited Cause = "rate_limited"
	CauseRejected    Cause = "rejected"
	CauseServerError Cause = "server_error"
	CauseNetwork     Cause = "network"
)

// RegistrationError is a terminal submission failure
type RegistrationError struct {
	Cause    Cause
	Message  string
	Attempts int
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("registration failed (%s after %d attempts): %s", e.Cause, e.Attempts, e.Message)
}

const (
	defaultMaxAttempts    = 5
	defaultAttemptTimeout = 30 * time.Second
	maxBackoff            = 30 * time.Second
)

// depositResponse is the JSON shape some authority endpoints return; plain
// text bodies are tolerated as well.
type depositResponse struct {
	Status  string `json:"status"`
	BatchID string `json:"batch_id"`
	Message string `json:"message"`
}

// Client submits built deposit metadata to the external registration
// authority. Transient failures (rate limit, server error, network error)
// are retried with bounded exponential backoff; credential and payload
// rejections are surfaced immediately.
type Client struct {
	httpClient     *http.Client
	apiURL         string
	depositor      string
	password       string
	userAgent      string
	maxAttempts    int
	attemptTimeout time.Duration
	sleep          func(time.Duration)
}

func NewClient(httpClient *http.Client) *Client {
	appCfg := cfg.Get()
	return &Client{
		httpClient:     httpClient,
		apiURL:         appCfg.DOIAPIUrl,
		depositor:      appCfg.DOIDepositor,
		password:       appCfg.DOIPassword,
		userAgent:      appCfg.UserAgent,
		maxAttempts:    defaultMaxAttempts,
		attemptTimeout: defaultAttemptTimeout,
		sleep:          time.Sleep,
	}
}

// Submit posts the deposit and returns the authority's tracking identifier
func (c *Client) Submit(ctx context.Context, deposit *Deposit) (string, error) {
	payload := deposit.XML()

	var lastCause Cause
	var lastMessage string

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		batchID, retryAfter, regErr := c.attempt(ctx, payload, attempt)
		if regErr == nil {
			return batchID, nil
		}

		if regErr.Cause == CauseCredentials || regErr.Cause == CauseRejected {
			// Configuration or payload problem, retrying cannot help
			return "", regErr
		}

		lastCause = regErr.Cause
		lastMessage = regErr.Message

		slog.Warn("Deposit attempt failed",
			"batch_id", deposit.BatchID,
			"doi", deposit.DOI,
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"cause", string(regErr.Cause),
			"error", regErr.Message)

		if attempt < c.maxAttempts {
			delay := c.backoff(attempt)
			if retryAfter > delay {
				delay = retryAfter
			}
			c.sleep(delay)
		}
	}

	return "", &RegistrationError{Cause: lastCause, Message: lastMessage, Attempts: c.maxAttempts}
}

// attempt performs one submission. retryAfter is the extra delay demanded by
// a rate-limit response beyond the regular backoff.
func (c *Client) attempt(ctx context.Context, payload string, attempt int) (string, time.Duration, *RegistrationError) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, "POST", c.apiURL, strings.NewReader(payload))
	if err != nil {
		return "", 0, &RegistrationError{Cause: CauseNetwork, Message: err.Error(), Attempts: attempt}
	}

	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	req.Header.Set("User-Agent", c.userAgent)
	req.SetBasicAuth(c.depositor, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, &RegistrationError{Cause: CauseNetwork, Message: err.Error(), Attempts: attempt}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, &RegistrationError{Cause: CauseNetwork, Message: err.Error(), Attempts: attempt}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", 0, &RegistrationError{
			Cause:    CauseCredentials,
			Message:  fmt.Sprintf("authority rejected credentials or prefix ownership (HTTP %d)", resp.StatusCode),
			Attempts: attempt,
		}
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", parseRetryAfter(resp), &RegistrationError{
			Cause:    CauseRateLimited,
			Message:  fmt.Sprintf("authority rate limited the deposit (HTTP %d)", resp.StatusCode),
			Attempts: attempt,
		}
	case resp.StatusCode >= 500:
		return "", 0, &RegistrationError{
			Cause:    CauseServerError,
			Message:  fmt.Sprintf("authority server error (HTTP %d): %s", resp.StatusCode, summarize(body)),
			Attempts: attempt,
		}
	case resp.StatusCode >= 400:
		return "", 0, &RegistrationError{
			Cause:    CauseRejected,
			Message:  fmt.Sprintf("authority refused the deposit (HTTP %d): %s", resp.StatusCode, summarize(body)),
			Attempts: attempt,
		}
	}

	return parseBatchID(body), 0, nil
}

// parseBatchID extracts the tracking identifier, tolerating both JSON-shaped
// and plain-text response bodies.
func parseBatchID(body []byte) string {
	var parsed depositResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.BatchID != "" {
		return parsed.BatchID
	}
	return strings.TrimSpace(string(body))
}

func parseRetryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}

// backoff grows exponentially with the attempt number, capped like the
// scheduler's task retry delay.
func (c *Client) backoff(attempt int) time.Duration {
	delay := time.Duration(1<<uint(attempt-1)) * time.Second
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}

func summarize(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
