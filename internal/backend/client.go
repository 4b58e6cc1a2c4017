// Package backend is a thin client for the alert backend's REST API:
// history, statistics, manual polling and test alerts.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/redalert/redalert/internal/config"
)

// StatusError is returned for non-2xx responses
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend %s %s: HTTP %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("backend %s %s: HTTP %d - %s", e.Method, e.Path, e.Code, e.Body)
}

// Health is the backend's liveness reply
type Health struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// HistoryEntry is one stored alert
type HistoryEntry struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	AlertDate    string `json:"alertDate"`
	URL          string `json:"url,omitempty"`
	IsUrgent     bool   `json:"isUrgent"`
	EmailID      string `json:"emailId,omitempty"`
	EmailFrom    string `json:"emailFrom,omitempty"`
	EmailSubject string `json:"emailSubject,omitempty"`
	CategoryID   int64  `json:"categoryId,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
}

// History is a page of stored alerts
type History struct {
	Alerts        []HistoryEntry `json:"alerts"`
	TotalCount    int64          `json:"totalCount"`
	ReturnedCount int            `json:"returnedCount"`
}

// Stats counts stored alerts
type Stats struct {
	Total  int64 `json:"total"`
	Urgent int64 `json:"urgent"`
}

// Result is the generic reply of action endpoints
type Result struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Alert     map[string]any `json:"alert,omitempty"`
}

// TestAlert is what Simulate asks the backend to broadcast. Empty fields
// take the backend's defaults.
type TestAlert struct {
	Title       string
	Description string
	URL         string
}

// Client talks to the backend REST API
type Client struct {
	baseURL string
	logger  zerolog.Logger
	http    *http.Client
}

// New creates a client for cfg.BaseURL, e.g. http://localhost:8086/api/v1
func New(cfg config.Backend, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultBackendTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  logger.With().Str("component", "backend").Logger(),
		http:    &http.Client{Timeout: timeout},
	}
}

// Health checks that the backend is up
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.do(ctx, http.MethodGet, "/health", nil, &h)
	return h, err
}

// History returns up to limit recent alerts, newest first. limit <= 0
// uses the backend default.
func (c *Client) History(ctx context.Context, limit int) (History, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var h History
	err := c.do(ctx, http.MethodGet, "/alerts/history", q, &h)
	return h, err
}

// ClearHistory deletes every stored alert
func (c *Client) ClearHistory(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/alerts/history", nil, nil)
}

// Stats returns total and urgent alert counts
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := c.do(ctx, http.MethodGet, "/alerts/stats", nil, &s)
	return s, err
}

// Poll runs one mail polling cycle on the backend
func (c *Client) Poll(ctx context.Context) (Result, error) {
	var r Result
	err := c.do(ctx, http.MethodPost, "/emails/poll", nil, &r)
	if err == nil && !r.Success {
		err = fmt.Errorf("poll failed: %s", r.Error)
	}
	return r, err
}

// Simulate makes the backend broadcast a test alert on the stream
func (c *Client) Simulate(ctx context.Context, a TestAlert) (Result, error) {
	q := url.Values{}
	if a.Title != "" {
		q.Set("title", a.Title)
	}
	if a.Description != "" {
		q.Set("description", a.Description)
	}
	if a.URL != "" {
		q.Set("url", a.URL)
	}
	var r Result
	err := c.do(ctx, http.MethodPost, "/alerts/simulate/test", q, &r)
	return r, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Str("request_id", reqID).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Backend request")

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
