// Package auth issues and verifies the session tokens that gate the stream
// endpoints. A session is an HS256-signed JWT carried in a cookie; clients
// log in once and replay the cookie on every playlist and segment request.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jmylchreest/hlsgate/internal/config"
)

var (
	// ErrInvalidCredentials is returned when a login's username or password
	// does not match the lineup's user table.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is returned when a presented token is missing,
	// expired, or fails signature verification.
	ErrInvalidToken = errors.New("invalid or missing token")
)

// UserLookup resolves a username against the active lineup. It is consulted
// on every login so lineup reloads take effect immediately.
type UserLookup func(username string) (config.User, bool)

// Service issues and verifies session tokens.
type Service struct {
	secret     []byte
	ttl        time.Duration
	cookieName string
	secure     bool
	users      UserLookup
}

// NewService builds a token service from the auth configuration.
func NewService(cfg config.AuthConfig, users UserLookup) *Service {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	name := cfg.CookieName
	if name == "" {
		name = "auth"
	}
	return &Service{
		secret:     []byte(cfg.Secret),
		ttl:        ttl,
		cookieName: name,
		secure:     cfg.CookieSecure,
		users:      users,
	}
}

// Authenticate validates a credential pair against the lineup. Both sides
// are hashed before comparing so the timing is uniform regardless of
// password lengths, and an unknown username burns an equivalent comparison
// so the two failures are not distinguishable either.
func (s *Service) Authenticate(username, password string) error {
	given := sha256.Sum256([]byte(password))

	u, ok := s.users(username)
	if !ok {
		subtle.ConstantTimeCompare(given[:], given[:])
		return ErrInvalidCredentials
	}
	stored := sha256.Sum256([]byte(u.Password))
	if subtle.ConstantTimeCompare(stored[:], given[:]) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

// Issue creates a signed session token for the username.
func (s *Service) Issue(username string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning the subject username.
func (s *Service) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// CookieName returns the configured session cookie name.
func (s *Service) CookieName() string { return s.cookieName }

// SessionCookie builds the cookie carrying a session token.
func (s *Service) SessionCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// FromRequest extracts and verifies the session cookie on a request,
// returning the authenticated username.
func (s *Service) FromRequest(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil {
		return "", ErrInvalidToken
	}
	return s.Verify(cookie.Value)
}
