// Package gateway is the HTTP client for the upstream report-generation
// backend: job initiation, per-job progress streaming, report retrieval,
// best-effort cancellation and the tech-pulse aggregate fetch.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/signalnews/pulse-gateway/internal/domain"
)

var (
	ErrUnavailable = errors.New("backend gateway unavailable")

	// ErrNotFound marks an upstream 404 so callers can relay it instead
	// of treating it as a backend failure.
	ErrNotFound = errors.New("not found upstream")
)

type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

type Client struct {
	baseURL    string
	timeout    time.Duration
	maxRetries int
	httpClient *http.Client
}

func NewClient(config ClientConfig) *Client {
	if strings.TrimSpace(config.BaseURL) == "" {
		config.BaseURL = "http://127.0.0.1:8000"
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 2
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		timeout:    config.Timeout,
		maxRetries: config.MaxRetries,
		httpClient: config.HTTPClient,
	}
}

type initiationRequest struct {
	Topic           string             `json:"topic"`
	UserPreferences domain.Preferences `json:"user_preferences"`
}

type initiationResponse struct {
	Message string `json:"message"`
	JobID   string `json:"job_id"`
}

// StartGeneration submits a topic and returns the job identifier the
// backend assigned. Retries bounded times on retryable transport errors.
func (c *Client) StartGeneration(
	ctx context.Context,
	topic string,
	preferences domain.Preferences,
) (string, error) {
	payload, err := json.Marshal(initiationRequest{
		Topic:           topic,
		UserPreferences: preferences,
	})
	if err != nil {
		return "", fmt.Errorf("marshal initiation payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		jobID, callErr := c.callInitiation(ctx, payload)
		if callErr == nil {
			return jobID, nil
		}
		lastErr = callErr

		if !isRetryable(callErr) || attempt == c.maxRetries {
			break
		}

		backoff := time.Duration(350*(attempt+1)) * time.Millisecond
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}
	return "", lastErr
}

func (c *Client) callInitiation(ctx context.Context, payload []byte) (string, error) {
	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(
		requestCtx,
		http.MethodPost,
		c.baseURL+"/process_news",
		bytes.NewReader(payload),
	)
	if err != nil {
		return "", fmt.Errorf("build initiation request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return "", retryableError{fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if readErr != nil {
		return "", retryableError{fmt.Errorf("read initiation response: %w", readErr)}
	}

	if response.StatusCode >= 500 {
		return "", retryableError{fmt.Errorf("backend status %d: %s", response.StatusCode, errorDetail(body))}
	}
	if response.StatusCode != http.StatusOK && response.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("backend status %d: %s", response.StatusCode, errorDetail(body))
	}

	var decoded initiationResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode initiation response: %w", err)
	}
	if strings.TrimSpace(decoded.JobID) == "" {
		return "", errors.New("backend returned no job_id")
	}
	return decoded.JobID, nil
}

// FetchReport loads the persisted report document for direct-link and
// reload access, forwarding the session's bearer credential.
func (c *Client) FetchReport(
	ctx context.Context,
	jobID string,
	bearerToken string,
) (json.RawMessage, error) {
	body, err := c.get(ctx, "/reports/"+jobID, bearerToken)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// CancelGeneration signals the backend to stop work on a job. Best
// effort: a failure here never blocks the client-side cancel.
func (c *Client) CancelGeneration(ctx context.Context, jobID string) error {
	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(
		requestCtx,
		http.MethodPost,
		c.baseURL+"/cancel/"+jobID,
		nil,
	)
	if err != nil {
		return fmt.Errorf("build cancel request: %w", err)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("call backend cancel: %w", err)
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, response.Body)

	if response.StatusCode >= 400 {
		return fmt.Errorf("backend cancel status %d", response.StatusCode)
	}
	return nil
}

// FetchPulse retrieves the raw tech-pulse aggregate document.
func (c *Client) FetchPulse(ctx context.Context) (json.RawMessage, error) {
	body, err := c.get(ctx, "/api/tech-pulse/latest", "")
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

func (c *Client) get(ctx context.Context, path, bearerToken string) ([]byte, error) {
	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(requestCtx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if bearerToken != "" {
		request.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, 8<<20))
	if readErr != nil {
		return nil, fmt.Errorf("read backend response: %w", readErr)
	}
	if response.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, errorDetail(body))
	}
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend status %d: %s", response.StatusCode, errorDetail(body))
	}
	return body, nil
}

// errorDetail extracts the backend's detail message from an error body,
// falling back to a generic description.
func errorDetail(body []byte) string {
	var payload struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Detail != "" {
			return payload.Detail
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return "backend request failed"
}

type retryableError struct{ error }

func (e retryableError) Unwrap() error { return e.error }

func isRetryable(err error) bool {
	var retryable retryableError
	return errors.As(err, &retryable)
}
