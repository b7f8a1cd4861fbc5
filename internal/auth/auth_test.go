package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"submerge/internal/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	m, err := NewManager(st)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestEnsureAdminSeedsOnce(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	created, err := m.EnsureAdmin(ctx)
	if err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	if !created {
		t.Fatal("fresh store did not seed admin")
	}

	created, err = m.EnsureAdmin(ctx)
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if created {
		t.Fatal("admin reseeded on restart")
	}

	ok, err := m.Authenticate(ctx, "admin", "admin")
	if err != nil || !ok {
		t.Fatalf("default credentials rejected: ok=%v err=%v", ok, err)
	}
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	if _, err := m.EnsureAdmin(ctx); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}

	cases := []struct {
		name, user, pass string
	}{
		{"wrong password", "admin", "nope"},
		{"wrong username", "root", "admin"},
		{"empty password", "admin", ""},
		{"empty username", "", "admin"},
	}
	for _, tc := range cases {
		ok, err := m.Authenticate(ctx, tc.user, tc.pass)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if ok {
			t.Errorf("%s: authenticated", tc.name)
		}
	}
}

func TestChangePassword(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	if _, err := m.EnsureAdmin(ctx); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}

	if err := m.ChangePassword(ctx, "wrong", "newpass"); err == nil {
		t.Fatal("password changed with bad current password")
	}
	if err := m.ChangePassword(ctx, "admin", "newpass"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	if ok, _ := m.Authenticate(ctx, "admin", "admin"); ok {
		t.Fatal("old password still accepted")
	}
	if ok, _ := m.Authenticate(ctx, "admin", "newpass"); !ok {
		t.Fatal("new password rejected")
	}
}

func TestTokenStoreLifecycle(t *testing.T) {
	ts := NewTokenStore(time.Hour)

	token, _, err := ts.Issue("admin")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if username, ok := ts.Lookup(token); !ok || username != "admin" {
		t.Fatalf("lookup = %q, %v", username, ok)
	}

	ts.Revoke(token)
	if _, ok := ts.Lookup(token); ok {
		t.Fatal("revoked token still valid")
	}

	token, _, _ = ts.Issue("admin")
	ts.RevokeAll()
	if _, ok := ts.Lookup(token); ok {
		t.Fatal("token survived RevokeAll")
	}
}

func TestTokenStoreExpiry(t *testing.T) {
	ts := NewTokenStore(time.Millisecond)
	token, _, err := ts.Issue("admin")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, ok := ts.Lookup(token); ok {
		t.Fatal("expired token still valid")
	}
}

func TestRequireAdmin(t *testing.T) {
	ts := NewTokenStore(time.Hour)
	token, _, err := ts.Issue("admin")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var seen string
	h := RequireAdmin(ts, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UsernameFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/subscriptions", nil)
	req.Header.Set(AuthHeader, token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || seen != "admin" {
		t.Fatalf("authorized request failed: code=%d user=%q", rec.Code, seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/subscriptions", nil)
	req.Header.Set(AuthHeader, "bogus")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthorized request got %d", rec.Code)
	}
}
