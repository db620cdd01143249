// Package session holds the client's credential pair. A Store is the only
// source of truth for whether a user is logged in; everything else reads and
// replaces the pair through it.
package session

import (
	"context"
	"sync"
)

const (
	// AccessTokenKey is the storage key for the access credential
	AccessTokenKey = "access_token"

	// RefreshTokenKey is the storage key for the refresh credential
	RefreshTokenKey = "refresh_token"
)

// Pair is an access/refresh credential pair. Both values are opaque.
type Pair struct {
	Access  string `json:"access_token"`
	Refresh string `json:"refresh_token"`
}

// Empty reports whether neither credential is present
func (p Pair) Empty() bool {
	return p.Access == "" && p.Refresh == ""
}

// Store is a durable key-value holder for the current session.
// Getters return "" when the credential is absent. Implementations must be
// safe for concurrent use; a read after a write observes the write.
type Store interface {
	// Set persists both credentials, overwriting any existing session
	Set(ctx context.Context, pair Pair) error

	// Access returns the current access credential
	Access(ctx context.Context) (string, error)

	// Refresh returns the current refresh credential
	Refresh(ctx context.Context) (string, error)

	// Clear removes both credentials
	Clear(ctx context.Context) error
}

// Load reads both credentials from a store
func Load(ctx context.Context, s Store) (Pair, error) {
	access, err := s.Access(ctx)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := s.Refresh(ctx)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

// MemoryStore keeps the session in process memory
type MemoryStore struct {
	mu   sync.RWMutex
	pair Pair
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Set(_ context.Context, pair Pair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = pair
	return nil
}

func (m *MemoryStore) Access(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pair.Access, nil
}

func (m *MemoryStore) Refresh(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pair.Refresh, nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = Pair{}
	return nil
}
