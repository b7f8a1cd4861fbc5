package subserve

import (
	"encoding/base64"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"submerge/internal/merge"
	"submerge/internal/node"
	"submerge/internal/store"
	"submerge/internal/template"
)

func TestResolveFormat(t *testing.T) {
	cases := []struct {
		name      string
		explicit  string
		userAgent string
		want      Format
	}{
		{"explicit yaml beats ua", "yaml", "v2rayN/6.23", FormatYAML},
		{"explicit base64 beats ua", "base64", "clash-verge/1.3.8", FormatBase64},
		{"clash ua", "", "ClashX/1.96.2 (com.west2online.ClashX)", FormatYAML},
		{"clash meta ua", "", "clash.meta/v1.16.0", FormatYAML},
		{"stash ua", "", "Stash/2.5.0 Clash/1.9.0", FormatYAML},
		{"surge ua", "", "Surge iOS/2989", FormatYAML},
		{"loon ua", "", "Loon/652", FormatYAML},
		{"shadowrocket ua", "", "Shadowrocket/2.2.35", FormatYAML},
		{"quantumult ua", "", "Quantumult%20X/1.4.1", FormatYAML},
		{"v2rayn ua", "", "v2rayN/6.23", FormatBase64},
		{"nekoray ua", "", "nekoray/3.26", FormatBase64},
		{"nekobox ua", "", "NekoBox/Android/1.3.1 (Prefer ClashMeta Format)", FormatYAML},
		{"singbox ua", "", "sing-box 1.9.0", FormatBase64},
		{"ss android ua", "", "shadowsocks/5.3.3", FormatBase64},
		{"no ua", "", "", FormatYAML},
		{"curl defaults to yaml", "", "curl/8.5.0", FormatYAML},
		{"browser defaults to yaml", "", "Mozilla/5.0 (X11; Linux x86_64) Firefox/126.0", FormatYAML},
		{"unknown explicit falls through", "xml", "v2rayN/6.23", FormatBase64},
		{"unknown explicit unknown ua", "xml", "curl/8.5.0", FormatYAML},
	}
	for _, tc := range cases {
		if got := ResolveFormat(tc.explicit, tc.userAgent); got != tc.want {
			t.Errorf("%s: ResolveFormat(%q, %q) = %v, want %v", tc.name, tc.explicit, tc.userAgent, got, tc.want)
		}
	}
}

func mkNode(name string) node.Node {
	return node.Node{
		Name:   name,
		Server: "example.com",
		Port:   8388,
		Opts:   node.ShadowsocksOpts{Cipher: "aes-256-gcm", Password: "pw"},
	}
}

func TestFilterSources(t *testing.T) {
	sources := []merge.Source{
		{ID: "sub-a", Nodes: []node.Node{mkNode("香港 01"), mkNode("日本 01")}},
		{ID: "sub-b", Nodes: []node.Node{mkNode("美国 01")}},
		{ID: merge.CustomSourceID, Nodes: []node.Node{mkNode("自建 01")}},
	}
	alloc := store.Allocation{
		"sub-a":              {"香港 01", "已删除的节点"},
		merge.CustomSourceID: {"*"},
	}

	got := FilterSources(sources, alloc)
	if len(got) != 2 {
		t.Fatalf("filtered sources = %d, want 2", len(got))
	}
	if got[0].ID != "sub-a" || len(got[0].Nodes) != 1 || got[0].Nodes[0].Name != "香港 01" {
		t.Fatalf("explicit allocation wrong: %+v", got[0])
	}
	if got[1].ID != merge.CustomSourceID || len(got[1].Nodes) != 1 {
		t.Fatalf("wildcard allocation wrong: %+v", got[1])
	}
}

func TestFilterSourcesAbsentGrantsNothing(t *testing.T) {
	sources := []merge.Source{
		{ID: "sub-a", Nodes: []node.Node{mkNode("香港 01")}},
	}
	if got := FilterSources(sources, store.Allocation{}); len(got) != 0 {
		t.Fatalf("empty allocation yielded %d sources", len(got))
	}
}

func TestAggregate(t *testing.T) {
	sources := []SourceTraffic{
		{Name: "A", Upload: 100, Download: 900, Total: 10_000, Expire: 2_000_000_000},
		{Name: "B", Upload: 50, Download: 450, Total: 5_000, Expire: 1_900_000_000},
	}
	totals := Aggregate(sources)
	if totals.Upload != 150 || totals.Download != 1350 || totals.Total != 15_000 {
		t.Fatalf("totals = %+v", totals)
	}
	if totals.Expire != 1_900_000_000 {
		t.Fatalf("expire = %d, want earliest", totals.Expire)
	}

	sources[0].Expire = 0
	if got := Aggregate(sources).Expire; got != 0 {
		t.Fatalf("open-ended source still produced expire %d", got)
	}
}

func TestInfoNodes(t *testing.T) {
	sources := []SourceTraffic{
		{Name: "机场A", Upload: 0, Download: 512 * 1024 * 1024, Total: 1024 * 1024 * 1024, Expire: 0},
		{Name: "机场B", Upload: 0, Download: 0, Total: 0, Expire: 1_900_000_000},
	}
	nodes := InfoNodes(sources)
	// aggregate row plus one per source
	if len(nodes) != 3 {
		t.Fatalf("info nodes = %d, want 3", len(nodes))
	}
	if !strings.Contains(nodes[0].Name, "512MB/1GB") {
		t.Fatalf("aggregate row = %q", nodes[0].Name)
	}
	if !strings.Contains(nodes[1].Name, "机场A") || !strings.Contains(nodes[1].Name, "512MB/1GB") {
		t.Fatalf("source row = %q", nodes[1].Name)
	}
	for _, n := range nodes {
		if n.Server != "1.0.0.1" || n.Port != 65535 {
			t.Fatalf("info node points somewhere real: %+v", n)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0B"},
		{512, "512B"},
		{1024, "1KB"},
		{1536, "1.5KB"},
		{10 * 1024 * 1024 * 1024, "10GB"},
	}
	for _, tc := range cases {
		if got := formatBytes(tc.in); got != tc.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBuildYAML(t *testing.T) {
	resp, err := Build(Request{
		Format:   FormatYAML,
		Nodes:    []node.Node{mkNode("香港 01")},
		Template: template.Default,
		Name:     "Aggregated - alice",
		Filename: "config.yaml",
		Totals:   Totals{Upload: 1, Download: 2, Total: 3, Expire: 0},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.HasPrefix(string(resp.Body), "name: Aggregated - alice\n") {
		t.Fatalf("profile name missing: %q", string(resp.Body[:40]))
	}
	var cfg struct {
		Proxies []map[string]any `yaml:"proxies"`
	}
	if err := yaml.Unmarshal(resp.Body, &cfg); err != nil {
		t.Fatalf("body is not YAML: %v", err)
	}
	if len(cfg.Proxies) != 1 || cfg.Proxies[0]["name"] != "香港 01" {
		t.Fatalf("proxies = %+v", cfg.Proxies)
	}
	if resp.ContentType != "text/yaml; charset=utf-8" {
		t.Fatalf("content type = %q", resp.ContentType)
	}
	if resp.UserInfo != "upload=1; download=2; total=3; expire=0" {
		t.Fatalf("userinfo = %q", resp.UserInfo)
	}
	if !strings.Contains(resp.Disposition, "filename*=UTF-8''") {
		t.Fatalf("disposition = %q", resp.Disposition)
	}
}

func TestBuildYAMLReplacesExistingName(t *testing.T) {
	tpl := "name: old-title\nproxies: []\nrules:\n  - MATCH,DIRECT\n"
	resp, err := Build(Request{
		Format:   FormatYAML,
		Nodes:    []node.Node{mkNode("香港 01")},
		Template: tpl,
		Name:     "Aggregated",
		Filename: "config.yaml",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	body := string(resp.Body)
	if !strings.HasPrefix(body, "name: Aggregated\n") {
		t.Fatalf("profile name not replaced: %q", body[:40])
	}
	if strings.Contains(body, "old-title") {
		t.Fatalf("old name survived:\n%s", body)
	}
	if got := strings.Count("\n"+body, "\nname:"); got != 1 {
		t.Fatalf("name key appears %d times:\n%s", got, body)
	}
}

func TestBuildBase64(t *testing.T) {
	resp, err := Build(Request{
		Format: FormatBase64,
		Nodes:  []node.Node{mkNode("香港 01"), mkNode("日本 01")},
		Name:   "Aggregated",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(string(resp.Body))
	if err != nil {
		t.Fatalf("body is not base64: %v", err)
	}
	links := strings.Split(strings.TrimSpace(string(decoded)), "\n")
	if len(links) != 2 {
		t.Fatalf("links = %d, want 2", len(links))
	}
	for _, l := range links {
		if !strings.HasPrefix(l, "ss://") {
			t.Fatalf("unexpected link %q", l)
		}
	}
	if resp.ContentType != "text/plain; charset=utf-8" {
		t.Fatalf("content type = %q", resp.ContentType)
	}
}

func TestSafeFilename(t *testing.T) {
	cases := []struct {
		name, fallback, want string
	}{
		{"我的订阅 - alice", "config.yaml", "我的订阅 - alice"},
		{"***", "config.yaml", "config"},
		{"", "custom.yml", "custom"},
	}
	for _, tc := range cases {
		if got := safeFilename(tc.name, tc.fallback); got != tc.want {
			t.Errorf("safeFilename(%q, %q) = %q, want %q", tc.name, tc.fallback, got, tc.want)
		}
	}
}
