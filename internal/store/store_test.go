package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"submerge/internal/merge"
	"submerge/internal/node"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "submerge.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testNode(name string) node.Node {
	return node.Node{
		Name:   name,
		Server: "example.com",
		Port:   8388,
		Opts:   node.ShadowsocksOpts{Cipher: "aes-256-gcm", Password: "pw"},
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub, err := s.CreateSubscription(ctx, "机场A", "https://a.example.com/sub", "", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sub.ID == "" || sub.Name != "机场A" || !sub.Enabled {
		t.Fatalf("unexpected subscription: %+v", sub)
	}

	updated, err := s.UpdateSubscription(ctx, sub.ID, "机场A改", sub.URL, "custom-ua/1.0", false)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "机场A改" || updated.Enabled || updated.UserAgent != "custom-ua/1.0" {
		t.Fatalf("update not applied: %+v", updated)
	}

	if err := s.DeleteSubscription(ctx, sub.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetSubscription(ctx, sub.ID); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Fatalf("get after delete = %v, want ErrSubscriptionNotFound", err)
	}
	if err := s.DeleteSubscription(ctx, sub.ID); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Fatalf("double delete = %v, want ErrSubscriptionNotFound", err)
	}
}

func TestCommitRefreshReplacesNodeCache(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub, err := s.CreateSubscription(ctx, "机场A", "https://a.example.com/sub", "", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first := RefreshUpdate{
		Nodes:    []node.Node{testNode("香港 01"), testNode("日本 01")},
		Upload:   100,
		Download: 900,
		Total:    10_000,
		Expire:   1924992000,
	}
	if err := s.CommitRefresh(ctx, sub.ID, first); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	got, err := s.GetSubscription(ctx, sub.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.NodeCount != 2 || got.Download != 900 || got.Total != 10_000 || got.LastError != "" {
		t.Fatalf("metadata not recorded: %+v", got)
	}
	if got.FetchedAt.IsZero() {
		t.Fatal("fetched_at not set")
	}

	second := RefreshUpdate{Nodes: []node.Node{testNode("新加坡 01")}}
	if err := s.CommitRefresh(ctx, sub.ID, second); err != nil {
		t.Fatalf("second commit: %v", err)
	}

	nodes, err := s.SubscriptionNodes(ctx, sub.ID)
	if err != nil {
		t.Fatalf("nodes: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Name != "新加坡 01" {
		t.Fatalf("cache not replaced: %+v", nodes)
	}
	if _, ok := nodes[0].Opts.(node.ShadowsocksOpts); !ok {
		t.Fatalf("node opts lost through cache: %T", nodes[0].Opts)
	}
}

func TestRecordRefreshErrorKeepsCache(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub, err := s.CreateSubscription(ctx, "机场A", "https://a.example.com/sub", "", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CommitRefresh(ctx, sub.ID, RefreshUpdate{Nodes: []node.Node{testNode("香港 01")}}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := s.RecordRefreshError(ctx, sub.ID, "timeout"); err != nil {
		t.Fatalf("record error: %v", err)
	}

	got, err := s.GetSubscription(ctx, sub.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LastError != "timeout" {
		t.Fatalf("last_error = %q, want timeout", got.LastError)
	}
	nodes, err := s.SubscriptionNodes(ctx, sub.ID)
	if err != nil {
		t.Fatalf("nodes: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("failed fetch clobbered the cache: %d nodes", len(nodes))
	}
}

func TestCustomNodeCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cn, err := s.CreateCustomNode(ctx, testNode("自建 01"), "ss://...", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if cn.Protocol != "ss" || cn.Node.Server != "example.com" {
		t.Fatalf("unexpected custom node: %+v", cn)
	}

	if _, err := s.CreateCustomNode(ctx, testNode("自建 01"), "", true); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("duplicate create = %v, want ErrDuplicateName", err)
	}

	disabled := testNode("自建 01")
	if _, err := s.UpdateCustomNode(ctx, cn.ID, disabled, "", false); err != nil {
		t.Fatalf("update: %v", err)
	}

	enabled, err := s.EnabledCustomNodes(ctx)
	if err != nil {
		t.Fatalf("enabled: %v", err)
	}
	if len(enabled) != 0 {
		t.Fatalf("disabled node still participates: %+v", enabled)
	}

	if err := s.DeleteCustomNode(ctx, cn.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetCustomNode(ctx, cn.ID); !errors.Is(err, ErrCustomNodeNotFound) {
		t.Fatalf("get after delete = %v", err)
	}
}

func TestUserAllocationAndToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alloc := Allocation{"sub-1": {"*"}, merge.CustomSourceID: {"自建 01"}}
	u, err := s.CreateUser(ctx, "alice", 0, alloc, "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.Token == "" {
		t.Fatal("no token generated")
	}
	if !u.Allocation.AllowsAll("sub-1") {
		t.Fatal("wildcard allocation lost")
	}
	if !u.Allocation.Allows(merge.CustomSourceID, "自建 01") || u.Allocation.Allows(merge.CustomSourceID, "自建 02") {
		t.Fatal("explicit allocation mismatch")
	}
	if u.Allocation.Allows("sub-9", "任意") {
		t.Fatal("absent source granted nodes")
	}

	byToken, err := s.GetUserByToken(ctx, u.Token)
	if err != nil || byToken.ID != u.ID {
		t.Fatalf("lookup by token: %v", err)
	}

	regen, err := s.RegenerateUserToken(ctx, u.ID)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if regen.Token == u.Token {
		t.Fatal("token unchanged after regeneration")
	}
	if _, err := s.GetUserByToken(ctx, u.Token); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("stale token still resolves: %v", err)
	}
}

func TestUserExpiry(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name      string
		expiresAt int64
		want      bool
	}{
		{"never", 0, false},
		{"future", now.Add(time.Hour).Unix(), false},
		{"past", now.Add(-time.Hour).Unix(), true},
	}
	for _, tc := range cases {
		u := User{ExpiresAt: tc.expiresAt}
		if got := u.Expired(now); got != tc.want {
			t.Errorf("%s: Expired = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSourceOrderRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	order, err := s.SourceOrder(ctx)
	if err != nil {
		t.Fatalf("initial order: %v", err)
	}
	if len(order) != 0 {
		t.Fatalf("fresh store has order %v", order)
	}

	want := []string{"sub-b", "custom", "sub-a"}
	if err := s.SetSourceOrder(ctx, want); err != nil {
		t.Fatalf("set order: %v", err)
	}
	got, err := s.SourceOrder(ctx)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if err := s.SetSourceOrder(ctx, []string{"custom"}); err != nil {
		t.Fatalf("replace order: %v", err)
	}
	got, err = s.SourceOrder(ctx)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if len(got) != 1 || got[0] != "custom" {
		t.Fatalf("order not replaced: %v", got)
	}
}

func TestEnsureDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	token, err := s.EnsureDefaults(ctx, "proxies: []\n")
	if err != nil {
		t.Fatalf("ensure defaults: %v", err)
	}
	if token == "" {
		t.Fatal("no sub token generated")
	}

	again, err := s.EnsureDefaults(ctx, "other: template\n")
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if again != token {
		t.Fatal("sub token regenerated on restart")
	}

	tpl, err := s.GetTemplate(ctx)
	if err != nil {
		t.Fatalf("get template: %v", err)
	}
	if tpl != "proxies: []\n" {
		t.Fatalf("template overwritten on second ensure: %q", tpl)
	}

	if got := s.GetSettingDefault(ctx, SettingSubFilename, ""); got != "config.yaml" {
		t.Fatalf("sub filename = %q", got)
	}
}
