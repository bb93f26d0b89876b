package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Config holds configuration for the HTTP registry client
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPRegistry implements Registry against the HR personnel API
type HTTPRegistry struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPRegistry creates a new HTTP registry client
func NewHTTPRegistry(cfg Config) *HTTPRegistry {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &HTTPRegistry{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// lookupResponse is the registry API response envelope
type lookupResponse struct {
	Found  bool `json:"found"`
	Record struct {
		StaffNumber string    `json:"staff_number"`
		FullName    string    `json:"full_name"`
		Department  string    `json:"department"`
		ExitDate    time.Time `json:"exit_date"`
	} `json:"record"`
}

// Lookup queries the registry by staff number or national ID/passport.
// Connection errors, timeouts and server errors all surface as
// ErrUnavailable so the caller can retry instead of rejecting.
func (r *HTTPRegistry) Lookup(ctx context.Context, q Query) (*Record, error) {
	if q.StaffNumber == "" && q.IDOrPassport == "" {
		return nil, fmt.Errorf("lookup query requires a staff number or ID/passport")
	}

	params := url.Values{}
	if q.StaffNumber != "" {
		params.Set("staff_number", q.StaffNumber)
	} else {
		params.Set("national_id", q.IDOrPassport)
	}

	endpoint := fmt.Sprintf("%s/api/v1/personnel/lookup?%s", r.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build lookup request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: registry returned %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("registry returned unexpected status %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrUnavailable, err)
	}

	if !body.Found {
		return nil, ErrNotFound
	}

	return &Record{
		StaffNumber: body.Record.StaffNumber,
		FullName:    body.Record.FullName,
		Department:  body.Record.Department,
		ExitDate:    body.Record.ExitDate,
	}, nil
}
