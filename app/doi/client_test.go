package doi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testClient(serverURL string) *Client {
	setupTestConfig()
	client := NewClient(&http.Client{})
	client.apiURL = serverURL
	client.depositor = "depositor"
	client.password = "secret"
	client.sleep = func(time.Duration) {}
	return client
}

func testDeposit(t *testing.T) *Deposit {
	t.Helper()
	deposit, err := testBuilder().Run(publishedArticle(), "10.5555/2025.a1b2c3d4-deadbeef")
	if err != nil {
		t.Fatalf("Failed to build deposit: %v", err)
	}
	return deposit
}

func TestSubmitSuccess(t *testing.T) {
	var gotAuth, gotContentType, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ := r.BasicAuth()
		gotAuth = user + ":" + pass
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"queued","batch_id":"authority-42"}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	batchID, err := client.Submit(context.Background(), testDeposit(t))
	if err != nil {
		t.Fatalf("Expected submission to succeed, got: %v", err)
	}

	if batchID != "authority-42" {
		t.Errorf("Expected authority batch id, got %q", batchID)
	}
	if gotAuth != "depositor:secret" {
		t.Errorf("Expected basic auth credentials, got %q", gotAuth)
	}
	if !strings.HasPrefix(gotContentType, "application/xml") {
		t.Errorf("Expected XML content type, got %q", gotContentType)
	}
	if !strings.Contains(gotBody, "<doi_batch") {
		t.Errorf("Expected deposit payload, got:\n%s", gotBody)
	}
}

func TestSubmitPlainTextBatchID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("  authority-plain-7\n"))
	}))
	defer server.Close()

	client := testClient(server.URL)
	batchID, err := client.Submit(context.Background(), testDeposit(t))
	if err != nil {
		t.Fatalf("Expected submission to succeed, got: %v", err)
	}
	if batchID != "authority-plain-7" {
		t.Errorf("Expected trimmed plain-text batch id, got %q", batchID)
	}
}

func TestSubmitCredentialsRejected(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.Submit(context.Background(), testDeposit(t))

	var regErr *RegistrationError
	if !errors.As(err, &regErr) {
		t.Fatalf("Expected RegistrationError, got: %v", err)
	}
	if regErr.Cause != CauseCredentials {
		t.Errorf("Expected credentials cause, got %q", regErr.Cause)
	}
	if attempts != 1 {
		t.Errorf("Expected no retries on credential rejection, got %d attempts", attempts)
	}
}

func TestSubmitDepositRejected(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("malformed deposit"))
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.Submit(context.Background(), testDeposit(t))

	var regErr *RegistrationError
	if !errors.As(err, &regErr) {
		t.Fatalf("Expected RegistrationError, got: %v", err)
	}
	if regErr.Cause != CauseRejected {
		t.Errorf("Expected rejected cause, got %q", regErr.Cause)
	}
	if attempts != 1 {
		t.Errorf("Expected no retries on payload rejection, got %d attempts", attempts)
	}
}

func TestSubmitServerErrorRetries(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"batch_id":"authority-9"}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	batchID, err := client.Submit(context.Background(), testDeposit(t))
	if err != nil {
		t.Fatalf("Expected eventual success, got: %v", err)
	}
	if batchID != "authority-9" {
		t.Errorf("Expected batch id from final attempt, got %q", batchID)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestSubmitAttemptCeiling(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.Submit(context.Background(), testDeposit(t))

	var regErr *RegistrationError
	if !errors.As(err, &regErr) {
		t.Fatalf("Expected RegistrationError, got: %v", err)
	}
	if regErr.Cause != CauseServerError {
		t.Errorf("Expected server_error cause, got %q", regErr.Cause)
	}
	if regErr.Attempts != defaultMaxAttempts {
		t.Errorf("Expected %d attempts recorded, got %d", defaultMaxAttempts, regErr.Attempts)
	}
	if attempts != defaultMaxAttempts {
		t.Errorf("Expected %d attempts, got %d", defaultMaxAttempts, attempts)
	}
}

func TestSubmitRateLimitHonorsRetryAfter(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("authority-11"))
	}))
	defer server.Close()

	client := testClient(server.URL)

	var delays []time.Duration
	client.sleep = func(d time.Duration) { delays = append(delays, d) }

	batchID, err := client.Submit(context.Background(), testDeposit(t))
	if err != nil {
		t.Fatalf("Expected eventual success, got: %v", err)
	}
	if batchID != "authority-11" {
		t.Errorf("Expected batch id, got %q", batchID)
	}

	// Retry-After exceeds the first backoff step, so it wins
	if len(delays) != 1 || delays[0] != 7*time.Second {
		t.Errorf("Expected a single 7s delay, got %v", delays)
	}
}

func TestSubmitNetworkFailure(t *testing.T) {
	client := testClient("http://127.0.0.1:1")

	_, err := client.Submit(context.Background(), testDeposit(t))

	var regErr *RegistrationError
	if !errors.As(err, &regErr) {
		t.Fatalf("Expected RegistrationError, got: %v", err)
	}
	if regErr.Cause != CauseNetwork {
		t.Errorf("Expected network cause, got %q", regErr.Cause)
	}
}

func TestBackoff(t *testing.T) {
	client := testClient("http://localhost")

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{6, 30 * time.Second}, // capped
	}

	for _, tt := range tests {
		if got := client.backoff(tt.attempt); got != tt.expected {
			t.Errorf("backoff(%d) = %v, expected %v", tt.attempt, got, tt.expected)
		}
	}
}
