// Package pdfapi holds clients for backend endpoints that consume the
// session credential rather than manage it.
package pdfapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-pdf-session/internal/errors"
)

const (
	// RouteHistory is also served by the fake backend in tests.
	RouteHistory        = "/history/"
	DefaultHistoryLimit = 100
)

// HistoryEntry is one processed-file record from the usage history.
type HistoryEntry struct {
	ID        int       `json:"id"`
	Action    string    `json:"action"`
	Source    string    `json:"source"`
	City      *string   `json:"city"`
	Country   *string   `json:"country"`
	Timestamp Timestamp `json:"timestamp"`
}

var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"}

// Timestamp accepts RFC 3339 and the zone-less form the backend emits for
// naive datetimes, which is read as UTC.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("history: timestamp: %w", err)
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("history: unrecognised timestamp %q", raw)
}

// HistoryClient lists the signed-in user's history. The http.Client is
// expected to attach the credential, e.g. session.Controller.HTTPClient.
type HistoryClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHistoryClient(baseURL string, httpClient *http.Client) *HistoryClient {
	return &HistoryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// StatusError is a non-2xx history response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("history: backend returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return errors.ErrUnauthorized
	case http.StatusForbidden:
		return errors.ErrForbidden
	}
	return nil
}

// List returns up to limit entries, newest first. limit <= 0 uses the
// backend default of 100.
func (c *HistoryClient) List(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+RouteHistory+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("history: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	var entries []HistoryEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("history: decode body: %w", err)
	}
	return entries, nil
}
