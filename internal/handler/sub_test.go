package handler

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"submerge/internal/merge"
	"submerge/internal/node"
	"submerge/internal/store"
	"submerge/internal/template"
)

type subEnv struct {
	store    *store.Store
	subToken string
	subID    string
}

func newSubEnv(t *testing.T) subEnv {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(filepath.Join(t.TempDir(), "submerge.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	token, err := st.EnsureDefaults(ctx, template.Default)
	if err != nil {
		t.Fatalf("ensure defaults: %v", err)
	}

	sub, err := st.CreateSubscription(ctx, "机场A", "https://a.example.com/sub", "", true)
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	update := store.RefreshUpdate{
		Nodes: []node.Node{
			{Name: "香港 01", Server: "hk.example.com", Port: 443, Opts: node.TrojanOpts{Password: "pw", TLS: node.TLSConfig{Enabled: true}}},
			{Name: "日本 01", Server: "jp.example.com", Port: 8388, Opts: node.ShadowsocksOpts{Cipher: "aes-256-gcm", Password: "pw"}},
		},
		Upload:   100,
		Download: 900,
		Total:    10_000_000_000,
	}
	if err := st.CommitRefresh(ctx, sub.ID, update); err != nil {
		t.Fatalf("commit refresh: %v", err)
	}

	custom := node.Node{Name: "自建 01", Server: "self.example.com", Port: 443, Opts: node.TrojanOpts{Password: "secret", TLS: node.TLSConfig{Enabled: true}}}
	if _, err := st.CreateCustomNode(ctx, custom, "", true); err != nil {
		t.Fatalf("create custom node: %v", err)
	}

	return subEnv{store: st, subToken: token, subID: sub.ID}
}

func getSub(t *testing.T, env subEnv, query, userAgent string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/sub?"+query, nil)
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	rec := httptest.NewRecorder()
	NewSubHandler(env.store).ServeHTTP(rec, req)
	return rec
}

func TestSubAdminYAML(t *testing.T) {
	env := newSubEnv(t)

	rec := getSub(t, env, "token="+env.subToken, "clash-verge/1.3.8")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/yaml") {
		t.Fatalf("content type = %q", ct)
	}
	if ui := rec.Header().Get("subscription-userinfo"); !strings.Contains(ui, "total=10000000000") {
		t.Fatalf("userinfo = %q", ui)
	}
	if rec.Header().Get("profile-update-interval") != "24" {
		t.Fatal("missing profile-update-interval")
	}

	var cfg struct {
		Name    string           `yaml:"name"`
		Proxies []map[string]any `yaml:"proxies"`
		Groups  []struct {
			Name    string   `yaml:"name"`
			Proxies []string `yaml:"proxies"`
		} `yaml:"proxy-groups"`
	}
	if err := yaml.Unmarshal(rec.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("body not yaml: %v", err)
	}
	if cfg.Name != "Aggregated" {
		t.Fatalf("profile name = %q", cfg.Name)
	}

	names := make(map[string]bool)
	for _, p := range cfg.Proxies {
		names[p["name"].(string)] = true
	}
	for _, want := range []string{"香港 01", "日本 01", "自建 01"} {
		if !names[want] {
			t.Fatalf("node %q missing from proxies: %v", want, names)
		}
	}
	// traffic info row for the sized subscription
	foundInfo := false
	for n := range names {
		if strings.Contains(n, "机场A") && strings.Contains(n, "/") {
			foundInfo = true
		}
	}
	if !foundInfo {
		t.Fatalf("traffic info row missing: %v", names)
	}

	// groups expanded, no placeholder left
	for _, g := range cfg.Groups {
		for _, m := range g.Proxies {
			if m == node.AllNodesPlaceholder {
				t.Fatalf("group %q kept the placeholder", g.Name)
			}
		}
	}
}

func TestSubBase64ForURIListClients(t *testing.T) {
	env := newSubEnv(t)

	rec := getSub(t, env, "token="+env.subToken, "v2rayN/6.23")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	decoded, err := base64.StdEncoding.DecodeString(rec.Body.String())
	if err != nil {
		t.Fatalf("body not base64: %v", err)
	}
	body := string(decoded)
	if !strings.Contains(body, "trojan://") || !strings.Contains(body, "ss://") {
		t.Fatalf("links missing: %s", body)
	}
}

func TestSubExplicitFormatWins(t *testing.T) {
	env := newSubEnv(t)

	rec := getSub(t, env, "token="+env.subToken+"&format=base64", "clash-verge/1.3.8")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if _, err := base64.StdEncoding.DecodeString(rec.Body.String()); err != nil {
		t.Fatalf("explicit base64 ignored: %v", err)
	}
}

func TestSubUserAllocation(t *testing.T) {
	env := newSubEnv(t)
	ctx := context.Background()

	alloc := store.Allocation{merge.CustomSourceID: {"*"}}
	u, err := env.store.CreateUser(ctx, "alice", 0, alloc, "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	rec := getSub(t, env, "token="+u.Token, "clash-verge/1.3.8")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var cfg struct {
		Name    string           `yaml:"name"`
		Proxies []map[string]any `yaml:"proxies"`
	}
	if err := yaml.Unmarshal(rec.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("body not yaml: %v", err)
	}
	if cfg.Name != "Aggregated - alice" {
		t.Fatalf("profile name = %q", cfg.Name)
	}
	for _, p := range cfg.Proxies {
		name := p["name"].(string)
		if strings.HasPrefix(name, "香港") || strings.HasPrefix(name, "日本") {
			t.Fatalf("unallocated node served: %q", name)
		}
	}
}

func TestSubRejectsBadTokens(t *testing.T) {
	env := newSubEnv(t)
	ctx := context.Background()

	rec := getSub(t, env, "token=bogus", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("invalid token status = %d", rec.Code)
	}

	disabled, err := env.store.CreateUser(ctx, "bob", 0, store.Allocation{env.subID: {"*"}}, "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := env.store.UpdateUser(ctx, disabled.ID, disabled.Name, false, 0, disabled.Allocation, ""); err != nil {
		t.Fatalf("disable user: %v", err)
	}
	rec = getSub(t, env, "token="+disabled.Token, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("disabled user status = %d", rec.Code)
	}

	expired, err := env.store.CreateUser(ctx, "carol", time.Now().Add(-time.Hour).Unix(), store.Allocation{env.subID: {"*"}}, "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	rec = getSub(t, env, "token="+expired.Token, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expired user status = %d", rec.Code)
	}
}

func TestSubNoSources(t *testing.T) {
	env := newSubEnv(t)
	ctx := context.Background()

	u, err := env.store.CreateUser(ctx, "dave", 0, store.Allocation{}, "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	rec := getSub(t, env, "token="+u.Token, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("empty allocation status = %d", rec.Code)
	}
}
