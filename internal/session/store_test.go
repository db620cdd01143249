package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewRedisStore(rdb, "", "test")
}

func newTestCookieStore(t *testing.T) *CookieStore {
	t.Helper()

	manager := NewCookieManager(false, []byte("0123456789abcdef0123456789abcdef"))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	return manager.Bind(r, httptest.NewRecorder())
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   NewFileStore(filepath.Join(t.TempDir(), "creds.json")),
		"redis":  newTestRedisStore(t),
		"cookie": newTestCookieStore(t),
	}
}

func TestStore_Conformance(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			pair, err := Load(ctx, store)
			if err != nil {
				t.Fatalf("Load on empty store: %v", err)
			}
			if !pair.Empty() {
				t.Fatalf("expected empty store, got %+v", pair)
			}

			if err := store.Set(ctx, Pair{Access: "A1", Refresh: "R1"}); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			pair, err = Load(ctx, store)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if pair != (Pair{Access: "A1", Refresh: "R1"}) {
				t.Errorf("expected A1/R1, got %+v", pair)
			}

			// Overwrite in place
			if err := store.Set(ctx, Pair{Access: "A2", Refresh: "R1"}); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			access, _ := store.Access(ctx)
			if access != "A2" {
				t.Errorf("expected A2 after overwrite, got %q", access)
			}

			if err := store.Clear(ctx); err != nil {
				t.Fatalf("Clear failed: %v", err)
			}
			pair, _ = Load(ctx, store)
			if !pair.Empty() {
				t.Errorf("expected empty after Clear, got %+v", pair)
			}

			// Clearing twice is fine
			if err := store.Clear(ctx); err != nil {
				t.Errorf("second Clear failed: %v", err)
			}
		})
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.Set(ctx, Pair{Access: "A", Refresh: "R"})
		}()
		go func() {
			defer wg.Done()
			_, _ = store.Access(ctx)
		}()
	}
	wg.Wait()

	access, _ := store.Access(ctx)
	if access != "A" {
		t.Errorf("expected A, got %q", access)
	}
}

func TestFileStore_Permissions(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "creds.json")
	store := NewFileStore(path)

	if err := store.Set(ctx, Pair{Access: "A1", Refresh: "R1"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected mode 0600, got %o", perm)
	}

	// A second store on the same path sees the session (survives restarts)
	reopened := NewFileStore(path)
	refresh, err := reopened.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if refresh != "R1" {
		t.Errorf("expected R1, got %q", refresh)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := NewFileStore(path).Access(context.Background())
	if err == nil {
		t.Error("expected error for corrupt credentials file")
	}
}

func TestFileStore_ConcurrentWriterNeverExposesPartialFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "creds.json")

	// Separate stores share no lock, like two CLI processes
	writer := NewFileStore(path)
	reader := NewFileStore(path)

	if err := writer.Set(ctx, Pair{Access: "A0", Refresh: "R0"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			pair := Pair{
				Access:  fmt.Sprintf("A%d-%s", i, strings.Repeat("x", 4096)),
				Refresh: fmt.Sprintf("R%d", i),
			}
			if err := writer.Set(ctx, pair); err != nil {
				t.Errorf("Set failed: %v", err)
				return
			}
		}
	}()

	var readErr error
	for readErr == nil {
		select {
		case <-done:
			entries, err := os.ReadDir(dir)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 1 {
				t.Errorf("expected only the credentials file, found %d entries", len(entries))
			}
			return
		default:
		}
		_, readErr = reader.Refresh(ctx)
	}
	<-done
	t.Fatalf("reader saw a partial credentials file: %v", readErr)
}

func TestRedisStore_Key(t *testing.T) {
	store := NewRedisStore(nil, "custom", "prod")
	if store.Key() != "custom:prod" {
		t.Errorf("expected custom:prod, got %q", store.Key())
	}
}

func TestCookieStore_RoundTripAcrossRequests(t *testing.T) {
	ctx := context.Background()
	manager := NewCookieManager(false, []byte("0123456789abcdef0123456789abcdef"))

	// First request logs in
	rec := httptest.NewRecorder()
	first := manager.Bind(httptest.NewRequest(http.MethodPost, "/login", nil), rec)
	if err := first.Set(ctx, Pair{Access: "A1", Refresh: "R1"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected a session cookie")
	}

	// Second request carries the cookie
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	second := manager.Bind(r, httptest.NewRecorder())
	pair, err := Load(ctx, second)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if pair != (Pair{Access: "A1", Refresh: "R1"}) {
		t.Errorf("expected A1/R1, got %+v", pair)
	}
}

func TestCookieStore_ClearExpiresCookie(t *testing.T) {
	ctx := context.Background()
	manager := NewCookieManager(false, []byte("0123456789abcdef0123456789abcdef"))

	rec := httptest.NewRecorder()
	store := manager.Bind(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	_ = store.Set(ctx, Pair{Access: "A1", Refresh: "R1"})

	rec = httptest.NewRecorder()
	store.writer = rec
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	if cookies[0].MaxAge >= 0 {
		t.Errorf("expected expired cookie, got MaxAge=%d", cookies[0].MaxAge)
	}
}

func TestCookieStore_TamperedCookieIsAnonymous(t *testing.T) {
	manager := NewCookieManager(false, []byte("0123456789abcdef0123456789abcdef"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "garbage"})
	store := manager.Bind(r, httptest.NewRecorder())

	access, err := store.Access(context.Background())
	if err != nil {
		t.Fatalf("Access failed: %v", err)
	}
	if access != "" {
		t.Errorf("expected anonymous session, got %q", access)
	}
}

func createTestToken(claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	// ParseUnverified does not check signatures
	tokenString, _ := token.SigningString()
	return tokenString + ".fake_signature"
}

func TestAccessExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	tests := []struct {
		name    string
		token   string
		want    time.Time
		wantErr error
	}{
		{
			name:  "jwt with exp",
			token: createTestToken(jwt.MapClaims{"exp": float64(exp.Unix())}),
			want:  exp,
		},
		{
			name:    "jwt without exp",
			token:   createTestToken(jwt.MapClaims{"user_id": "1"}),
			wantErr: ErrNoExpiry,
		},
		{
			name:    "opaque token",
			token:   "A1",
			wantErr: ErrNotJWT,
		},
		{
			name:    "empty",
			token:   "",
			wantErr: ErrNoToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AccessExpiry(tt.token)
			if err != tt.wantErr {
				t.Fatalf("AccessExpiry() error = %v, want %v", err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("AccessExpiry() = %v, want %v", got, tt.want)
			}
		})
	}
}
