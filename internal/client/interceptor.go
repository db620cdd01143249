package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/prodpro/prodpro/internal/pkg/metrics"
	"github.com/prodpro/prodpro/internal/session"
)

// DefaultRefreshTimeout bounds a refresh call; its failure logs the user out
const DefaultRefreshTimeout = 10 * time.Second

// Options tune the recovery behaviour of an AuthTransport
type Options struct {
	// RefreshTimeout bounds each refresh call (DefaultRefreshTimeout when zero)
	RefreshTimeout time.Duration

	// IndependentRefresh makes every failing request issue its own refresh
	// call instead of sharing one in-flight refresh.
	IndependentRefresh bool
}

// AuthTransport is the authenticated request pipeline: augment, send, and on
// a 401 refresh the session and replay the request once.
type AuthTransport struct {
	base      http.RoundTripper
	store     session.Store
	refresher Refresher
	notifier  *Notifier
	opts      Options
	flights   singleflight.Group
	log       *slog.Logger
}

// NewAuthTransport creates the pipeline around base
func NewAuthTransport(base http.RoundTripper, store session.Store, refresher Refresher, notifier *Notifier, opts Options) *AuthTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if notifier == nil {
		notifier = NewNotifier()
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = DefaultRefreshTimeout
	}
	return &AuthTransport{
		base:      base,
		store:     store,
		refresher: refresher,
		notifier:  notifier,
		opts:      opts,
		log:       slog.Default().With(slog.String("component", "auth-transport")),
	}
}

// RoundTrip implements http.RoundTripper
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	attempt, ok := AttemptFromContext(ctx)
	if !ok {
		attempt = NewAttempt()
	}

	out, err := replayable(req)
	if err != nil {
		return nil, err
	}

	t.step(attempt, StateSent)
	accessUsed := Augment(out, t.store)
	resp, err := t.base.RoundTrip(out)

	// Only a received 401 engages recovery; transport errors and every other
	// status go straight back to the caller.
	if err != nil || resp.StatusCode != http.StatusUnauthorized || recoveryDisabled(ctx) {
		t.finish(attempt, StateOK)
		return resp, err
	}

	t.step(attempt, StateAuthFailed)
	if !attempt.markRetried() {
		t.log.Debug("authorization failed after retry, giving up",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path))
		t.finish(attempt, StateRetriedFailed)
		return resp, nil
	}

	t.step(attempt, StateRefreshing)
	drain(resp)

	t.log.Info("access credential rejected, attempting refresh",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path))

	if err := t.recover(ctx, accessUsed); err != nil {
		if errors.Is(err, ErrSessionEnded) {
			t.finish(attempt, StateRefreshDenied)
		} else {
			// The caller gave up while waiting on a shared refresh
			t.finish(attempt, StateRetriedFailed)
		}
		return nil, err
	}

	retry := out.Clone(ctx)
	if out.GetBody != nil {
		if retry.Body, err = out.GetBody(); err != nil {
			t.finish(attempt, StateRetriedFailed)
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
	}
	newAccess := Augment(retry, t.store)
	t.log.Debug("retrying request with refreshed credential",
		slog.String("path", req.URL.Path),
		slog.String("token_prefix", tokenPreview(newAccess)))

	resp, err = t.base.RoundTrip(retry)
	if err != nil || resp.StatusCode == http.StatusUnauthorized {
		t.finish(attempt, StateRetriedFailed)
		return resp, err
	}
	t.finish(attempt, StateRetriedOK)
	return resp, nil
}

// recover makes a refreshed access credential available in the store, or
// ends the session. accessUsed is the credential the rejected request carried.
func (t *AuthTransport) recover(ctx context.Context, accessUsed string) error {
	if t.opts.IndependentRefresh {
		return t.refresh(ctx)
	}

	// Another request already replaced the credential we were rejected with
	current, err := t.store.Access(ctx)
	if err == nil && current != accessUsed {
		metrics.RefreshShared.Inc()
		if current == "" {
			t.log.Debug("session already ended by another request")
			return &SessionEndedError{Reason: EndReasonRefreshDenied}
		}
		t.log.Debug("credential already refreshed by another request")
		return nil
	}

	ch := t.flights.DoChan("refresh", func() (interface{}, error) {
		return nil, t.refresh(ctx)
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.RefreshShared.Inc()
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// refresh performs one refresh call and applies its outcome to the store.
// It is detached from the caller's cancellation: a refresh that other requests
// may be waiting on must not be abandoned, and only RefreshTimeout bounds it.
func (t *AuthTransport) refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.opts.RefreshTimeout)
	defer cancel()

	refreshToken, err := t.store.Refresh(ctx)
	if err != nil {
		return t.endSession(ctx, EndReasonRefreshDenied, fmt.Errorf("failed to read refresh credential: %w", err))
	}
	if refreshToken == "" {
		t.log.Info("no refresh credential, ending session")
		return t.endSession(ctx, EndReasonNoRefreshToken, nil)
	}

	start := time.Now()
	pair, err := t.refresher.Refresh(ctx, refreshToken)
	duration := time.Since(start)
	if err != nil {
		result := "error"
		var rejected *RefreshRejectedError
		if errors.As(err, &rejected) {
			result = "denied"
		}
		metrics.RecordRefresh(result, duration)
		t.log.Warn("token refresh failed", slog.String("error", err.Error()))
		return t.endSession(ctx, EndReasonRefreshDenied, err)
	}
	metrics.RecordRefresh("success", duration)

	// The refresh credential stays unless the server rotated it
	if pair.Refresh == "" {
		pair.Refresh = refreshToken
	}
	if err := t.store.Set(ctx, pair); err != nil {
		return t.endSession(ctx, EndReasonRefreshDenied, fmt.Errorf("failed to save refreshed credentials: %w", err))
	}

	t.log.Info("successfully refreshed token",
		slog.String("token_prefix", tokenPreview(pair.Access)),
		slog.Bool("rotated", pair.Refresh != refreshToken))
	return nil
}

// endSession clears the store, then notifies subscribers
func (t *AuthTransport) endSession(ctx context.Context, reason EndReason, cause error) error {
	if err := t.store.Clear(ctx); err != nil {
		t.log.Error("failed to clear session", slog.String("error", err.Error()))
	}
	t.notifier.emit(reason)
	return &SessionEndedError{Reason: reason, Cause: cause}
}

func (t *AuthTransport) step(a *Attempt, next State) {
	if err := a.to(next); err != nil {
		t.log.Error("recovery state machine violation", slog.String("error", err.Error()))
	}
}

func (t *AuthTransport) finish(a *Attempt, terminal State) {
	t.step(a, terminal)
	metrics.RecordOutcome(terminal.String())
	t.log.Debug("request finished", slog.String("state", terminal.String()))
}

// replayable clones req so the caller's request is never modified, buffering
// a body that cannot be re-read so the retry can send it again.
func replayable(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if out.Body == nil || out.Body == http.NoBody || out.GetBody != nil {
		return out, nil
	}

	data, err := io.ReadAll(out.Body)
	out.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to buffer request body: %w", err)
	}
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	out.Body, _ = out.GetBody()
	return out, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}
