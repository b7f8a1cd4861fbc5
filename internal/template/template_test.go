package template

import (
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"submerge/internal/node"
)

func sampleNodes() []node.Node {
	return []node.Node{
		{Name: "香港 01", Server: "hk.example.com", Port: 443, Opts: node.TrojanOpts{
			Password: "pw", TLS: node.TLSConfig{Enabled: true, SNI: "hk.example.com"},
		}},
		{Name: "日本 01", Server: "jp.example.com", Port: 8388, Opts: node.ShadowsocksOpts{
			Cipher: "aes-256-gcm", Password: "secret",
		}},
	}
}

type renderedConfig struct {
	Proxies []map[string]any `yaml:"proxies"`
	Groups  []struct {
		Name    string   `yaml:"name"`
		Type    string   `yaml:"type"`
		Proxies []string `yaml:"proxies"`
	} `yaml:"proxy-groups"`
	Rules []string `yaml:"rules"`
}

func decodeRendered(t *testing.T, out string) renderedConfig {
	t.Helper()
	var cfg renderedConfig
	if err := yaml.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("rendered output is not valid YAML: %v\n%s", err, out)
	}
	return cfg
}

func TestRenderReplacesProxies(t *testing.T) {
	text := `mode: rule
proxies:
  - {name: stale, type: http, server: old.example.com, port: 80}
rules:
  - MATCH,DIRECT
`
	out, err := Render(text, sampleNodes())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	cfg := decodeRendered(t, out)
	if len(cfg.Proxies) != 2 {
		t.Fatalf("proxies = %d, want 2", len(cfg.Proxies))
	}
	if cfg.Proxies[0]["name"] != "香港 01" || cfg.Proxies[1]["name"] != "日本 01" {
		t.Fatalf("proxy names = %v, %v", cfg.Proxies[0]["name"], cfg.Proxies[1]["name"])
	}
	if strings.Contains(out, "stale") {
		t.Fatal("template placeholder proxies survived the render")
	}
	if cfg.Proxies[0]["type"] != "trojan" {
		t.Fatalf("proxy type = %v, want trojan", cfg.Proxies[0]["type"])
	}
}

func TestRenderExpandsAllNodesMarker(t *testing.T) {
	text := `proxies: []
proxy-groups:
  - name: 节点选择
    type: select
    proxies:
      - DIRECT
      - __ALL_PROXIES__
  - name: 固定组
    type: select
    proxies:
      - DIRECT
      - REJECT
rules: []
`
	out, err := Render(text, sampleNodes())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	cfg := decodeRendered(t, out)
	if len(cfg.Groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(cfg.Groups))
	}
	want := []string{"DIRECT", "香港 01", "日本 01"}
	got := cfg.Groups[0].Proxies
	if len(got) != len(want) {
		t.Fatalf("expanded members = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("member[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	// curated group stays untouched
	if len(cfg.Groups[1].Proxies) != 2 || cfg.Groups[1].Proxies[1] != "REJECT" {
		t.Fatalf("curated group changed: %v", cfg.Groups[1].Proxies)
	}
	if strings.Contains(out, node.AllNodesPlaceholder) {
		t.Fatal("placeholder leaked into rendered output")
	}
}

func TestRenderPreservesUnknownSections(t *testing.T) {
	text := `mixed-port: 7890
my-section:
  nested: value
proxies: []
rules: []
`
	out, err := Render(text, sampleNodes())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	var m map[string]any
	if err := yaml.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	sec, ok := m["my-section"].(map[string]any)
	if !ok || sec["nested"] != "value" {
		t.Fatalf("custom section lost: %v", m["my-section"])
	}
	if m["mixed-port"] != 7890 {
		t.Fatalf("mixed-port = %v, want 7890", m["mixed-port"])
	}
}

func TestRenderDefaultTemplate(t *testing.T) {
	out, err := Render(Default, sampleNodes())
	if err != nil {
		t.Fatalf("Render default: %v", err)
	}
	cfg := decodeRendered(t, out)
	if len(cfg.Proxies) != 2 {
		t.Fatalf("proxies = %d, want 2", len(cfg.Proxies))
	}
	for _, g := range cfg.Groups {
		for _, m := range g.Proxies {
			if m == node.AllNodesPlaceholder {
				t.Fatalf("group %q kept the placeholder", g.Name)
			}
		}
	}
}

func TestRenderRejectsBadYAML(t *testing.T) {
	if _, err := Render("proxies: [unclosed", nil); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := Render("- just\n- a list\n", nil); !errors.Is(err, ErrNotMapping) {
		t.Fatalf("err = %v, want ErrNotMapping", err)
	}
}

func TestExtractSkeleton(t *testing.T) {
	uploaded := `port: 7891
proxies:
  - {name: exported-node, type: ss, server: a.example.com, port: 8388, cipher: aes-256-gcm, password: x}
proxy-groups:
  - name: PROXY
    type: select
    proxies:
      - AUTO
      - exported-node
  - name: AUTO
    type: url-test
    url: http://www.gstatic.com/generate_204
    interval: 300
    proxies:
      - exported-node
rules:
  - MATCH,PROXY
custom-key: kept
`
	out, err := ExtractSkeleton(uploaded, "")
	if err != nil {
		t.Fatalf("ExtractSkeleton: %v", err)
	}
	cfg := decodeRendered(t, out)
	if len(cfg.Proxies) != 0 {
		t.Fatalf("skeleton kept %d proxies, want 0", len(cfg.Proxies))
	}
	if len(cfg.Groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(cfg.Groups))
	}
	// group reference kept, concrete node replaced by the placeholder
	want := []string{"AUTO", node.AllNodesPlaceholder}
	got := cfg.Groups[0].Proxies
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("skeleton members = %v, want %v", got, want)
	}
	if len(cfg.Rules) != 1 || cfg.Rules[0] != "MATCH,PROXY" {
		t.Fatalf("rules = %v", cfg.Rules)
	}

	var m map[string]any
	if err := yaml.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["custom-key"] != "kept" {
		t.Fatalf("uploaded-only key lost: %v", m["custom-key"])
	}
	// default template keys the upload does not mention survive
	if m["mixed-port"] != 7890 {
		t.Fatalf("mixed-port = %v, want 7890", m["mixed-port"])
	}
}

func TestExtractSkeletonKeepsCurrentGroupsWhenUploadHasNone(t *testing.T) {
	current := `mode: rule
proxies: []
proxy-groups:
  - name: 节点选择
    type: select
    proxies:
      - __ALL_PROXIES__
rules: []
`
	out, err := ExtractSkeleton("dns:\n  enable: true\n", current)
	if err != nil {
		t.Fatalf("ExtractSkeleton: %v", err)
	}
	cfg := decodeRendered(t, out)
	if len(cfg.Groups) != 1 || cfg.Groups[0].Name != "节点选择" {
		t.Fatalf("groups = %+v", cfg.Groups)
	}
	var m map[string]any
	if err := yaml.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	dns, ok := m["dns"].(map[string]any)
	if !ok || dns["enable"] != true {
		t.Fatalf("uploaded dns section missing: %v", m["dns"])
	}
}

func TestExtractSkeletonRejectsNonMapping(t *testing.T) {
	if _, err := ExtractSkeleton("- a\n- b\n", ""); !errors.Is(err, ErrNotMapping) {
		t.Fatalf("err = %v, want ErrNotMapping", err)
	}
}

func TestSetName(t *testing.T) {
	out, err := SetName("proxies: []\nrules:\n  - MATCH,DIRECT\n", "聚合订阅")
	if err != nil {
		t.Fatalf("set name: %v", err)
	}
	if !strings.HasPrefix(out, "name: 聚合订阅\n") {
		t.Fatalf("name not inserted first: %q", out)
	}

	out, err = SetName("name: 旧标题\nproxies: []\n", "聚合订阅")
	if err != nil {
		t.Fatalf("replace name: %v", err)
	}
	if strings.Contains(out, "旧标题") {
		t.Fatalf("old name survived: %q", out)
	}
	if got := strings.Count("\n"+out, "\nname:"); got != 1 {
		t.Fatalf("name key appears %d times: %q", got, out)
	}
	var m map[string]any
	if err := yaml.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if m["name"] != "聚合订阅" {
		t.Fatalf("name = %v, want 聚合订阅", m["name"])
	}
}
