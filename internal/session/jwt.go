package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoToken is returned when there is no token to inspect
	ErrNoToken = errors.New("no token")

	// ErrNotJWT is returned when the token is not a parseable JWT
	ErrNotJWT = errors.New("token is not a JWT")

	// ErrNoExpiry is returned when the token carries no exp claim
	ErrNoExpiry = errors.New("token has no expiry")
)

// AccessExpiry reports when a JWT access token expires.
// It is informational only (status display); the request pipeline never
// inspects tokens and relies on the server's verdict instead.
func AccessExpiry(tokenString string) (time.Time, error) {
	if tokenString == "" {
		return time.Time{}, ErrNoToken
	}

	// Signature cannot be checked client-side
	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, ErrNotJWT
	}

	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}
