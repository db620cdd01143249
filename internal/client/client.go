package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prodpro/prodpro/internal/pkg/metrics"
	"github.com/prodpro/prodpro/internal/session"
)

// maxErrorBody caps how much of an error response is kept for display
const maxErrorBody = 1 << 20

// Config configures a Client
type Config struct {
	// BaseURL is the normalized API root, e.g. https://host/api/
	BaseURL string

	// Store holds the session; required
	Store session.Store

	// Transport is the underlying round tripper (http.DefaultTransport when nil)
	Transport http.RoundTripper

	// Timeout bounds each call through the pipeline, retry included (none when zero)
	Timeout time.Duration

	// RefreshTimeout bounds the refresh call
	RefreshTimeout time.Duration

	// IndependentRefresh disables sharing one refresh between concurrent requests
	IndependentRefresh bool
}

// Client issues requests to the backend through the authenticated pipeline
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	store      session.Store
	notifier   *Notifier
	log        *slog.Logger
}

// New creates a client. All requests, auth and domain alike, share one
// http.Client whose transport is the augment → send → recover pipeline.
func New(cfg Config) (*Client, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}

	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if !baseURL.IsAbs() {
		return nil, fmt.Errorf("base URL %q must be absolute", cfg.BaseURL)
	}
	if !strings.HasSuffix(baseURL.Path, "/") {
		baseURL.Path += "/"
	}

	refreshTimeout := cfg.RefreshTimeout
	if refreshTimeout <= 0 {
		refreshTimeout = DefaultRefreshTimeout
	}

	base := metrics.NewInstrumentedTransport(cfg.Transport)
	notifier := NewNotifier()

	// The refresh call bypasses the pipeline
	refreshEndpoint := baseURL.ResolveReference(&url.URL{Path: "token/refresh/"})
	refresher := NewHTTPRefresher(refreshEndpoint.String(), &http.Client{
		Transport: base,
		Timeout:   refreshTimeout,
	})

	transport := NewAuthTransport(base, cfg.Store, refresher, notifier, Options{
		RefreshTimeout:     refreshTimeout,
		IndependentRefresh: cfg.IndependentRefresh,
	})

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		store:    cfg.Store,
		notifier: notifier,
		log:      slog.Default().With(slog.String("component", "api-client")),
	}, nil
}

// OnSessionEnded subscribes fn to session-ended events
func (c *Client) OnSessionEnded(fn func(EndReason)) (unsubscribe func()) {
	return c.notifier.Subscribe(fn)
}

// HTTPClient returns the authenticated http.Client for arbitrary requests
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Store returns the session store
func (c *Client) Store() session.Store {
	return c.store
}

// BaseURL returns the API root
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// URL resolves path against the API root
func (c *Client) URL(path string) string {
	return c.baseURL.ResolveReference(&url.URL{Path: strings.TrimPrefix(path, "/")}).String()
}

// Do sends a JSON request through the pipeline. in is encoded as the body
// when non-nil; a 2xx body is decoded into out when non-nil. Non-2xx
// responses are returned as *APIError; transport errors are returned as-is.
func (c *Client) Do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	// Redirect hops re-enter the transport with this context and share its
	// one-shot retry.
	if _, ok := AttemptFromContext(ctx); !ok {
		ctx = WithAttempt(ctx, NewAttempt())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.Debug("request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode))
		return &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       data,
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
