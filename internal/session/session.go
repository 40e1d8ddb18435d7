// Package session owns the authentication state kept in the local mirror.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"dompet/internal/store"
)

// ErrUnauthenticated is returned when no usable token is stored.
var ErrUnauthenticated = errors.New("unauthenticated")

// Session reads and writes the token and login flag.
type Session struct {
	store store.Store
	now   func() time.Time
}

func New(s store.Store) *Session {
	return &Session{store: s, now: time.Now}
}

// WithClock replaces the clock used for expiry checks.
func (s *Session) WithClock(now func() time.Time) *Session {
	s.now = now
	return s
}

// Login stores the token and marks the user as logged in.
func (s *Session) Login(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("login: %w", ErrUnauthenticated)
	}
	if err := s.store.Set(ctx, store.KeyToken, []byte(token)); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	if err := store.SaveJSON(ctx, s.store, store.KeyIsLoggedIn, true); err != nil {
		return fmt.Errorf("store login flag: %w", err)
	}
	slog.InfoContext(ctx, "Session started")
	return nil
}

// Logout wipes the whole mirror, including cached collections and drafts.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear mirror: %w", err)
	}
	slog.InfoContext(ctx, "Session ended")
	return nil
}

// Expire drops the token and login flag after the backend rejected them.
// Cached collections, drafts and queued writes survive so they can be
// replayed after the next login.
func (s *Session) Expire(ctx context.Context) error {
	for _, key := range []string{store.KeyToken, store.KeyIsLoggedIn} {
		if err := s.store.Remove(ctx, key); err != nil {
			return fmt.Errorf("remove %s: %w", key, err)
		}
	}
	slog.WarnContext(ctx, "Session expired")
	return nil
}

// Token returns the stored bearer token. A JWT whose exp claim has passed
// counts as missing. Tokens that are not JWTs are returned as-is.
func (s *Session) Token(ctx context.Context) (string, error) {
	raw, err := s.store.Get(ctx, store.KeyToken)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrUnauthenticated
	}
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	// tokens written by older clients were JSON-encoded strings
	token = strings.Trim(token, `"`)
	if token == "" {
		return "", ErrUnauthenticated
	}
	if exp, ok := expiry(token); ok && !s.now().Before(exp) {
		slog.WarnContext(ctx, "Stored token expired", "expired_at", exp)
		return "", ErrUnauthenticated
	}
	return token, nil
}

// LoggedIn reports whether a usable token is stored.
func (s *Session) LoggedIn(ctx context.Context) bool {
	_, err := s.Token(ctx)
	return err == nil
}

// expiry reads the exp claim without verifying the signature; the backend is
// the authority on validity, this only avoids requests that are bound to fail.
func expiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
