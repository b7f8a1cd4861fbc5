package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

type session struct {
	username string
	expiry   time.Time
}

type contextKey string

const (
	userContextKey contextKey = "submerge/auth/username"
)

const AuthHeader = "SM-Authorization"

// TokenStore keeps the admin's login sessions in memory. Tokens expire
// after the configured ttl and are lost on restart.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string]session
	ttl    time.Duration
}

func NewTokenStore(ttl time.Duration) *TokenStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenStore{
		tokens: make(map[string]session),
		ttl:    ttl,
	}
}

func (s *TokenStore) Issue(username string) (string, time.Time, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", time.Time{}, errors.New("username is required")
	}

	token, err := randomToken(32)
	if err != nil {
		return "", time.Time{}, err
	}

	expiry := time.Now().Add(s.ttl)

	s.mu.Lock()
	s.tokens[token] = session{username: username, expiry: expiry}
	s.mu.Unlock()

	return token, expiry, nil
}

func (s *TokenStore) Revoke(token string) {
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}

	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// RevokeAll drops every session, forcing a fresh login. Called after
// the admin credentials change.
func (s *TokenStore) RevokeAll() {
	s.mu.Lock()
	s.tokens = make(map[string]session)
	s.mu.Unlock()
}

// Lookup returns the username associated with the token if the
// session is still valid.
func (s *TokenStore) Lookup(token string) (string, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.tokens[token]
	if !ok {
		return "", false
	}

	if time.Now().After(sess.expiry) {
		delete(s.tokens, token)
		return "", false
	}

	return sess.username, true
}

func ContextWithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, userContextKey, username)
}

// UsernameFromContext retrieves the authenticated username from the request context.
func UsernameFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	username, _ := ctx.Value(userContextKey).(string)
	return username
}

func randomToken(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// RequireAdmin gates management endpoints behind a valid session token.
func RequireAdmin(store *TokenStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get(AuthHeader))
		if username, ok := store.Lookup(token); ok {
			ctx := ContextWithUsername(r.Context(), username)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		WriteUnauthorizedResponse(w)
	})
}

func WriteUnauthorizedResponse(w http.ResponseWriter) {
	if w == nil {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code": http.StatusUnauthorized,
		"msg":  "无效凭据",
	})
}
