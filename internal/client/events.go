package client

import (
	"log/slog"
	"sync"

	"github.com/prodpro/prodpro/internal/pkg/metrics"
)

// EndReason says why a session ended
type EndReason string

const (
	// EndReasonLogout is an explicit logout
	EndReasonLogout EndReason = "logout"
	// EndReasonNoRefreshToken means a 401 arrived and there was nothing to refresh with
	EndReasonNoRefreshToken EndReason = "no_refresh_token"
	// EndReasonRefreshDenied means the refresh call was rejected or failed
	EndReasonRefreshDenied EndReason = "refresh_denied"
)

// Notifier delivers "session ended" events to the presentation layer, which
// decides what to do (typically return the user to the login screen).
type Notifier struct {
	mu   sync.Mutex
	subs map[int]func(EndReason)
	next int
}

// NewNotifier creates a notifier with no subscribers
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]func(EndReason))}
}

// Subscribe registers fn and returns a function that removes it
func (n *Notifier) Subscribe(fn func(EndReason)) (unsubscribe func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.next
	n.next++
	n.subs[id] = fn

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

// emit calls every subscriber synchronously, outside the lock so handlers may
// unsubscribe.
func (n *Notifier) emit(reason EndReason) {
	n.mu.Lock()
	fns := make([]func(EndReason), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	slog.Info("session ended",
		slog.String("component", "session-events"),
		slog.String("reason", string(reason)))
	metrics.RecordSessionEnded(string(reason))

	for _, fn := range fns {
		fn(reason)
	}
}
