package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prodpro/prodpro/internal/session"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates and stores the returned pair. Every failure is reported
// as ErrInvalidCredentials; the cause stays reachable through errors.As.
func (c *Client) Login(ctx context.Context, username, password string) (session.Pair, error) {
	var resp loginResponse
	err := c.Do(WithoutRecovery(ctx), http.MethodPost, "login/", loginRequest{
		Username: username,
		Password: password,
	}, &resp)
	if err != nil {
		c.log.Debug("login failed", slog.String("username", username), slog.String("error", err.Error()))
		return session.Pair{}, &LoginError{Cause: err}
	}
	if resp.Access == "" {
		return session.Pair{}, &LoginError{}
	}

	pair := session.Pair{Access: resp.Access, Refresh: resp.Refresh}
	if err := c.store.Set(ctx, pair); err != nil {
		return session.Pair{}, err
	}

	c.log.Info("logged in", slog.String("username", username))
	return pair, nil
}

// Register creates an account. It never touches the session. Failures are
// *RegistrationError with the most specific message the backend provided.
func (c *Client) Register(ctx context.Context, username, email, password string) error {
	err := c.Do(WithoutRecovery(ctx), http.MethodPost, "register/", registerRequest{
		Username: username,
		Email:    email,
		Password: password,
	}, nil)
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return &RegistrationError{
			StatusCode: apiErr.StatusCode,
			Message:    RegistrationMessage(apiErr.Body),
			Cause:      err,
		}
	}
	return &RegistrationError{Message: DefaultRegistrationMessage, Cause: err}
}

// Logout clears the session and notifies subscribers. No backend call is made.
// Subscribers are notified even when clearing the store fails.
func (c *Client) Logout(ctx context.Context) error {
	err := c.store.Clear(ctx)
	c.notifier.emit(EndReasonLogout)
	return err
}

// LoggedIn reports whether the store holds an access credential
func (c *Client) LoggedIn(ctx context.Context) bool {
	access, err := c.store.Access(ctx)
	return err == nil && access != ""
}

// registrationFields is the order validation errors are surfaced in
var registrationFields = []string{"username", "email", "password"}

// RegistrationMessage picks the message to show for a failed registration:
// detail, then the first error for username, email and password, then a
// generic fallback.
func RegistrationMessage(body []byte) string {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return DefaultRegistrationMessage
	}

	if msg := firstMessage(payload["detail"]); msg != "" {
		return msg
	}
	for _, field := range registrationFields {
		if msg := firstMessage(payload[field]); msg != "" {
			return msg
		}
	}
	return DefaultRegistrationMessage
}

// firstMessage accepts either "msg" or ["msg", ...]
func firstMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}
