package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"submerge/internal/auth"
)

func newAuthEnv(t *testing.T) (*auth.Manager, *auth.TokenStore) {
	t.Helper()
	st := newHandlerStore(t)
	manager, err := auth.NewManager(st)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := manager.EnsureAdmin(context.Background()); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	return manager, auth.NewTokenStore(time.Hour)
}

func TestLoginIssuesToken(t *testing.T) {
	manager, tokens := newAuthEnv(t)
	h := NewLoginHandler(manager, tokens)

	rec := doJSON(t, h, http.MethodPost, "/api/login", `{"username":"admin","password":"admin"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token == "" || resp.Username != "admin" {
		t.Fatalf("response = %+v", resp)
	}
	if name, ok := tokens.Lookup(resp.Token); !ok || name != "admin" {
		t.Fatal("issued token not registered")
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	manager, tokens := newAuthEnv(t)
	h := NewLoginHandler(manager, tokens)

	rec := doJSON(t, h, http.MethodPost, "/api/login", `{"username":"admin","password":"nope"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/login", `{"username":"","password":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty credentials status = %d", rec.Code)
	}
}

func TestCredentialsUpdateRevokesSessions(t *testing.T) {
	manager, tokens := newAuthEnv(t)

	token, _, err := tokens.Issue("admin")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rec := doJSON(t, NewCredentialsHandler(manager, tokens), http.MethodPut, "/api/admin/credentials",
		`{"username":"root","password":"s3cret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
	}

	if _, ok := tokens.Lookup(token); ok {
		t.Fatal("old session survived a credentials change")
	}
	ok, err := manager.Authenticate(context.Background(), "root", "s3cret")
	if err != nil || !ok {
		t.Fatalf("new credentials rejected: ok=%v err=%v", ok, err)
	}
}
