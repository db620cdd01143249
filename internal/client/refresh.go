package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prodpro/prodpro/internal/session"
)

// ErrEmptyAccess is returned when a refresh response carries no access credential
var ErrEmptyAccess = errors.New("refresh response has no access credential")

// Refresher exchanges a refresh credential for a new pair.
// The returned pair's Refresh is empty when the server did not rotate it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (session.Pair, error)
}

// RefreshRejectedError is a non-2xx answer from the refresh endpoint
type RefreshRejectedError struct {
	StatusCode int
}

func (e *RefreshRejectedError) Error() string {
	return fmt.Sprintf("refresh rejected: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// HTTPRefresher calls the backend's token/refresh endpoint. Its HTTP client
// must not be the authenticated pipeline, otherwise a 401 from the refresh
// endpoint would itself trigger recovery.
type HTTPRefresher struct {
	httpClient *http.Client
	endpoint   string
}

// NewHTTPRefresher creates a refresher posting to endpoint
func NewHTTPRefresher(endpoint string, httpClient *http.Client) *HTTPRefresher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPRefresher{
		httpClient: httpClient,
		endpoint:   endpoint,
	}
}

// Refresh implements Refresher
func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (session.Pair, error) {
	body, err := json.Marshal(refreshRequest{Refresh: refreshToken})
	if err != nil {
		return session.Pair{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return session.Pair{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return session.Pair{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return session.Pair{}, &RefreshRejectedError{StatusCode: resp.StatusCode}
	}

	var rr refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return session.Pair{}, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if rr.Access == "" {
		return session.Pair{}, ErrEmptyAccess
	}

	return session.Pair{Access: rr.Access, Refresh: rr.Refresh}, nil
}
