package client

import (
	"log/slog"
	"net/http"

	"github.com/prodpro/prodpro/internal/session"
)

// Augment attaches the stored access credential to req as a bearer token and
// returns the credential it used ("" when the request goes out unauthenticated).
// It never fails and never writes to the store; a store read error is logged
// and the request is sent without credentials.
func Augment(req *http.Request, store session.Store) string {
	access, err := store.Access(req.Context())
	if err != nil {
		slog.Warn("failed to read access credential, sending unauthenticated",
			slog.String("component", "augmenter"),
			slog.String("error", err.Error()))
		access = ""
	}

	if access == "" {
		req.Header.Del("Authorization")
		return ""
	}

	req.Header.Set("Authorization", "Bearer "+access)
	return access
}

// tokenPreview shortens a credential for logging
func tokenPreview(token string) string {
	if len(token) > 12 {
		return token[:12] + "..."
	}
	return token
}
