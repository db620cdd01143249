package client

import (
	"context"
	"fmt"
	"sync"
)

// State is a step of the recovery state machine a request moves through
type State int

const (
	// StateNew means the request has not been dispatched yet
	StateNew State = iota
	// StateSent means the augmented request is on the wire
	StateSent
	// StateOK means the response was returned without recovery (success or any non-401 outcome)
	StateOK
	// StateAuthFailed means the server rejected the access credential
	StateAuthFailed
	// StateRefreshing means a refresh is in progress for this request
	StateRefreshing
	// StateRetriedOK means the single retry got a non-401 response
	StateRetriedOK
	// StateRetriedFailed means the request was already retried, or the retry failed
	StateRetriedFailed
	// StateRefreshDenied means no refresh was possible and the session ended
	StateRefreshDenied
)

var stateNames = map[State]string{
	StateNew:           "new",
	StateSent:          "sent",
	StateOK:            "ok",
	StateAuthFailed:    "auth_failed",
	StateRefreshing:    "refreshing",
	StateRetriedOK:     "retried_ok",
	StateRetriedFailed: "retried_failed",
	StateRefreshDenied: "refresh_denied",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transitions happen for this dispatch
func (s State) Terminal() bool {
	switch s {
	case StateOK, StateRetriedOK, StateRetriedFailed, StateRefreshDenied:
		return true
	}
	return false
}

// transitions lists every legal move. OK and RetriedOK may go back to Sent
// when net/http follows a redirect with the same request context.
var transitions = map[State][]State{
	StateNew:        {StateSent},
	StateSent:       {StateOK, StateAuthFailed},
	StateOK:         {StateSent},
	StateAuthFailed: {StateRefreshing, StateRetriedFailed},
	StateRefreshing: {StateRetriedOK, StateRetriedFailed, StateRefreshDenied},
	StateRetriedOK:  {StateSent},
}

// Attempt tracks one logical request through the recovery protocol.
// The retried flag is one-shot: an Attempt is retried at most once no matter
// how many times it is dispatched.
type Attempt struct {
	mu      sync.Mutex
	state   State
	retried bool
	history []State
}

// NewAttempt creates an attempt in StateNew
func NewAttempt() *Attempt {
	return &Attempt{history: []State{StateNew}}
}

// State returns the current state
func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Retried reports whether the automatic retry has been used
func (a *Attempt) Retried() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.retried
}

// History returns every state visited, oldest first
func (a *Attempt) History() []State {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]State, len(a.history))
	copy(out, a.history)
	return out
}

func (a *Attempt) to(next State) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, allowed := range transitions[a.state] {
		if allowed == next {
			a.state = next
			a.history = append(a.history, next)
			return nil
		}
	}
	return fmt.Errorf("illegal recovery transition %s -> %s", a.state, next)
}

// markRetried consumes the retry. It returns false when it was already used.
func (a *Attempt) markRetried() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.retried {
		return false
	}
	a.retried = true
	return true
}

type contextKey string

const (
	attemptKey    contextKey = "recovery_attempt"
	noRecoveryKey contextKey = "no_recovery"
)

// WithAttempt attaches an attempt to the request context so the caller can
// inspect how the request went through the pipeline.
func WithAttempt(ctx context.Context, a *Attempt) context.Context {
	return context.WithValue(ctx, attemptKey, a)
}

// AttemptFromContext returns the attempt attached by WithAttempt
func AttemptFromContext(ctx context.Context) (*Attempt, bool) {
	a, ok := ctx.Value(attemptKey).(*Attempt)
	return a, ok
}

// WithoutRecovery marks requests whose 401 responses must be returned as-is,
// such as login where a 401 means bad credentials rather than an expired session.
func WithoutRecovery(ctx context.Context) context.Context {
	return context.WithValue(ctx, noRecoveryKey, true)
}

func recoveryDisabled(ctx context.Context) bool {
	v, _ := ctx.Value(noRecoveryKey).(bool)
	return v
}
