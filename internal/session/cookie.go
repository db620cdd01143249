package session

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/sessions"
)

const (
	// CookieName is the name of the session cookie
	CookieName = "prodpro_session"

	cookieMaxAge = 30 * 24 * 60 * 60 // 30 days
)

// CookieManager wraps gorilla/sessions for web frontends that keep the
// credential pair in an encrypted browser cookie.
type CookieManager struct {
	store *sessions.CookieStore
}

// NewCookieManager creates a cookie manager.
// keyPairs are passed to gorilla/sessions: a 32 or 64 byte authentication
// key optionally followed by a 16, 24 or 32 byte encryption key.
func NewCookieManager(secure bool, keyPairs ...[]byte) *CookieManager {
	store := sessions.NewCookieStore(keyPairs...)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   cookieMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &CookieManager{store: store}
}

// Bind returns a Store scoped to a single request/response exchange
func (m *CookieManager) Bind(r *http.Request, w http.ResponseWriter) *CookieStore {
	return &CookieStore{manager: m, request: r, writer: w}
}

// CookieStore implements Store on top of one request's cookie session.
// It must be created per request since it writes Set-Cookie headers.
type CookieStore struct {
	manager *CookieManager
	request *http.Request
	writer  http.ResponseWriter
	mu      sync.Mutex
}

func (c *CookieStore) Set(_ context.Context, pair Pair) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.session()
	sess.Options.MaxAge = cookieMaxAge
	sess.Values[AccessTokenKey] = pair.Access
	sess.Values[RefreshTokenKey] = pair.Refresh
	return sess.Save(c.request, c.writer)
}

func (c *CookieStore) Access(_ context.Context) (string, error) {
	return c.value(AccessTokenKey), nil
}

func (c *CookieStore) Refresh(_ context.Context) (string, error) {
	return c.value(RefreshTokenKey), nil
}

// Clear expires the cookie
func (c *CookieStore) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.session()
	delete(sess.Values, AccessTokenKey)
	delete(sess.Values, RefreshTokenKey)
	sess.Options.MaxAge = -1
	return sess.Save(c.request, c.writer)
}

func (c *CookieStore) value(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, _ := c.session().Values[key].(string)
	return v
}

// session returns the request's cookie session. gorilla/sessions caches it in
// the request registry, and a cookie that fails to decode (rotated keys,
// tampering) still yields a fresh anonymous session.
func (c *CookieStore) session() *sessions.Session {
	sess, _ := c.manager.store.Get(c.request, CookieName)
	return sess
}
