package client

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prodpro/prodpro/internal/session"
)

// fakeBackend mimics the monitoring API: login/, register/, token/refresh/,
// predict/ and an echo/ endpoint for body replay checks.
type fakeBackend struct {
	srv *httptest.Server

	mu            sync.Mutex
	validAccess   map[string]bool
	refreshes     map[string]refreshResponse
	taken         map[string]bool
	predictStatus int
	predictAuth   []string
	echoBodies    []string

	// beforeUnauthorized runs before predict/ answers 401
	beforeUnauthorized func()
	refreshDelay       time.Duration

	refreshCalls  atomic.Int32
	predictCalls  atomic.Int32
	redirectSends atomic.Int32
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()

	f := &fakeBackend{
		validAccess: make(map[string]bool),
		refreshes:   make(map[string]refreshResponse),
		taken:       make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/login/", f.handleLogin)
	mux.HandleFunc("/api/register/", f.handleRegister)
	mux.HandleFunc("/api/token/refresh/", f.handleRefresh)
	mux.HandleFunc("/api/predict/", f.handlePredict)
	mux.HandleFunc("/api/echo/", f.handleEcho)
	mux.HandleFunc("/api/start/", f.handleStart)
	mux.HandleFunc("/api/next/", f.handleNext)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeBackend) baseURL() string {
	return f.srv.URL + "/api/"
}

func (f *fakeBackend) allow(access string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validAccess[access] = true
}

func (f *fakeBackend) onRefresh(refresh string, resp refreshResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes[refresh] = resp
}

func (f *fakeBackend) authorized(r *http.Request) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return f.validAccess[token]
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeBackend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Username == "bob" && req.Password == "x" {
		writeJSON(w, http.StatusOK, map[string]string{"access": "A1", "refresh": "R1"})
		return
	}
	writeJSON(w, http.StatusUnauthorized, map[string]string{
		"detail": "No active account found with the given credentials",
	})
}

func (f *fakeBackend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	taken := f.taken[req.Username]
	f.mu.Unlock()

	if taken {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"username": {"already exists"}})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"username": req.Username, "email": req.Email})
}

func (f *fakeBackend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	f.refreshCalls.Add(1)

	if f.refreshDelay > 0 {
		select {
		case <-time.After(f.refreshDelay):
		case <-r.Context().Done():
			return
		}
	}

	var req refreshRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	resp, ok := f.refreshes[req.Refresh]
	f.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "Token is invalid or expired",
			"code":   "token_not_valid",
		})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (f *fakeBackend) handlePredict(w http.ResponseWriter, r *http.Request) {
	f.predictCalls.Add(1)

	f.mu.Lock()
	f.predictAuth = append(f.predictAuth, r.Header.Get("Authorization"))
	status := f.predictStatus
	f.mu.Unlock()

	if status != 0 {
		writeJSON(w, status, map[string]string{"detail": "predictor unavailable"})
		return
	}
	if !f.authorized(r) {
		if f.beforeUnauthorized != nil {
			f.beforeUnauthorized()
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Given token not valid for any token type"})
		return
	}
	writeJSON(w, http.StatusOK, Prediction{
		Efficiency:          87,
		DowntimeProbability: 6.5,
		Status:              StatusOptimal,
		Recommendation:      "Maintain current speed",
	})
}

func (f *fakeBackend) handleEcho(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.echoBodies = append(f.echoBodies, string(body))
	f.mu.Unlock()

	if !f.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "not authenticated"})
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleStart redirects authorized requests to next/, which rejects everyone
func (f *fakeBackend) handleStart(w http.ResponseWriter, r *http.Request) {
	f.redirectSends.Add(1)
	if !f.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "not authenticated"})
		return
	}
	http.Redirect(w, r, "/api/next/", http.StatusTemporaryRedirect)
}

func (f *fakeBackend) handleNext(w http.ResponseWriter, r *http.Request) {
	f.redirectSends.Add(1)
	writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "not authenticated"})
}

// endedRecorder counts session-ended events
type endedRecorder struct {
	mu      sync.Mutex
	reasons []EndReason
}

func (e *endedRecorder) record(reason EndReason) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reasons = append(e.reasons, reason)
}

func (e *endedRecorder) get() []EndReason {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]EndReason, len(e.reasons))
	copy(out, e.reasons)
	return out
}

func newTestClient(t *testing.T, f *fakeBackend, store session.Store, mutate ...func(*Config)) (*Client, *endedRecorder) {
	t.Helper()

	cfg := Config{
		BaseURL: f.baseURL(),
		Store:   store,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ended := &endedRecorder{}
	c.OnSessionEnded(ended.record)
	return c, ended
}
