package template

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"submerge/internal/node"
)

// ErrNotMapping is returned when a template or uploaded config does not
// have a YAML mapping at its root.
var ErrNotMapping = errors.New("template root must be a mapping")

// Default is the template used until the admin installs a custom one.
// The all-proxies placeholder inside proxy-groups is expanded at render
// time to the full ordered node list.
const Default = `mixed-port: 7890
allow-lan: true
mode: rule
log-level: info
unified-delay: true
tcp-concurrent: true
profile:
  store-selected: true
  store-fake-ip: true

dns:
  enable: true
  listen: 0.0.0.0:1053
  enhanced-mode: fake-ip
  fake-ip-range: 198.18.0.1/16
  fake-ip-filter:
    - "+.lan"
    - "+.local"
  nameserver:
    - https://doh.pub/dns-query
    - https://dns.alidns.com/dns-query

proxies: []

proxy-groups:
  - name: 节点选择
    type: select
    proxies:
      - 自动选择
      - __ALL_PROXIES__
  - name: 自动选择
    type: url-test
    url: http://www.gstatic.com/generate_204
    interval: 300
    tolerance: 50
    proxies:
      - __ALL_PROXIES__

rules:
  - GEOIP,LAN,DIRECT
  - GEOIP,CN,DIRECT
  - MATCH,节点选择
`

// Render injects nodes into the template's proxies section and expands
// the all-proxies marker inside proxy-group member lists. Every other
// top-level key passes through untouched, in its original order.
func Render(text string, nodes []node.Node) (string, error) {
	root, err := parseMapping(text)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	names := make([]string, 0, len(nodes))
	proxySeq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, n := range nodes {
		names = append(names, n.Name)
		pn, err := proxyToNode(n)
		if err != nil {
			return "", fmt.Errorf("encode proxy %q: %w", n.Name, err)
		}
		proxySeq.Content = append(proxySeq.Content, pn)
	}
	setMappingValue(root, "proxies", proxySeq)

	if groups := mappingValue(root, "proxy-groups"); groups != nil && groups.Kind == yaml.SequenceNode {
		for _, g := range groups.Content {
			if g.Kind != yaml.MappingNode {
				continue
			}
			members := mappingValue(g, "proxies")
			if members == nil || members.Kind != yaml.SequenceNode {
				continue
			}
			setMappingValue(g, "proxies", expandMembers(groupMembers(members), names))
		}
	}

	return encodeMapping(root)
}

// SetName sets the document's top-level name key, inserting it ahead
// of every other key when absent so clients pick it up as the profile
// title.
func SetName(text, name string) (string, error) {
	root, err := parseMapping(text)
	if err != nil {
		return "", fmt.Errorf("parse document: %w", err)
	}
	if existing := mappingValue(root, "name"); existing != nil {
		*existing = *stringScalar(name)
	} else {
		root.Content = append([]*yaml.Node{stringScalar("name"), stringScalar(name)}, root.Content...)
	}
	return encodeMapping(root)
}

// groupMembers lifts a raw member list out of YAML, converting the
// all-proxies placeholder scalar into its marker value so the rest of
// the renderer never compares against the literal string.
func groupMembers(seq *yaml.Node) []any {
	out := make([]any, 0, len(seq.Content))
	for _, m := range seq.Content {
		if m.Kind == yaml.ScalarNode && m.Value == node.AllNodesPlaceholder {
			out = append(out, node.AllNodesMarker{})
			continue
		}
		out = append(out, m.Value)
	}
	return out
}

func expandMembers(members []any, names []string) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, m := range members {
		switch v := m.(type) {
		case node.AllNodesMarker:
			for _, name := range names {
				seq.Content = append(seq.Content, stringScalar(name))
			}
		case string:
			seq.Content = append(seq.Content, stringScalar(v))
		}
	}
	return seq
}

// ExtractSkeleton merges an uploaded client config into the current
// template. Keys already present in the template keep their position;
// uploaded values win for everything except the proxy sections. The
// proxies list is always emptied, and uploaded proxy-groups are reduced
// to their skeleton: members naming other groups survive, concrete node
// entries collapse into a single all-proxies placeholder.
func ExtractSkeleton(uploaded, current string) (string, error) {
	upRoot, err := parseMapping(uploaded)
	if err != nil {
		return "", fmt.Errorf("parse uploaded config: %w", err)
	}

	if strings.TrimSpace(current) == "" {
		current = Default
	}
	baseRoot, err := parseMapping(current)
	if err != nil {
		return "", fmt.Errorf("parse current template: %w", err)
	}

	merged := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for i := 0; i+1 < len(baseRoot.Content); i += 2 {
		key := baseRoot.Content[i].Value
		appendPair(merged, key, skeletonValue(key, mappingValue(upRoot, key), baseRoot.Content[i+1]))
	}
	for i := 0; i+1 < len(upRoot.Content); i += 2 {
		key := upRoot.Content[i].Value
		if hasMappingKey(merged, key) {
			continue
		}
		appendPair(merged, key, skeletonValue(key, upRoot.Content[i+1], nil))
	}

	return encodeMapping(merged)
}

func skeletonValue(key string, uploaded, base *yaml.Node) *yaml.Node {
	switch key {
	case "proxies":
		return &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: yaml.FlowStyle}
	case "proxy-groups":
		if uploaded != nil && uploaded.Kind == yaml.SequenceNode {
			return skeletonGroups(uploaded)
		}
		return base
	}
	if uploaded != nil {
		return uploaded
	}
	return base
}

// skeletonGroups strips concrete node names from uploaded group member
// lists. References to sibling groups are structural and kept in place.
func skeletonGroups(groups *yaml.Node) *yaml.Node {
	groupNames := make(map[string]bool, len(groups.Content))
	for _, g := range groups.Content {
		if g.Kind == yaml.MappingNode {
			if name := mappingValue(g, "name"); name != nil && name.Kind == yaml.ScalarNode {
				groupNames[name.Value] = true
			}
		}
	}

	out := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, g := range groups.Content {
		if g.Kind != yaml.MappingNode {
			continue
		}
		clone := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for i := 0; i+1 < len(g.Content); i += 2 {
			key, val := g.Content[i].Value, g.Content[i+1]
			if key == "proxies" && val.Kind == yaml.SequenceNode {
				val = skeletonMembers(val, groupNames)
			}
			appendPair(clone, key, val)
		}
		out.Content = append(out.Content, clone)
	}
	return out
}

func skeletonMembers(members *yaml.Node, groupNames map[string]bool) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	dropped := false
	for _, m := range members.Content {
		if m.Kind != yaml.ScalarNode {
			continue
		}
		if groupNames[m.Value] || m.Value == node.AllNodesPlaceholder {
			seq.Content = append(seq.Content, stringScalar(m.Value))
			continue
		}
		dropped = true
	}
	if dropped {
		seq.Content = append(seq.Content, stringScalar(node.AllNodesPlaceholder))
	}
	return seq
}

// proxyPriorityFields appear first in rendered proxy maps, matching the
// order subscription clients display in their editors.
var proxyPriorityFields = []string{"name", "type", "server", "port"}

func proxyToNode(n node.Node) (*yaml.Node, error) {
	m := n.ClashMap()

	out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Style: yaml.FlowStyle}
	for _, key := range proxyPriorityFields {
		if val, ok := m[key]; ok {
			vn, err := valueToNode(val)
			if err != nil {
				return nil, err
			}
			appendPair(out, key, vn)
		}
	}

	rest := make([]string, 0, len(m))
	for key := range m {
		if !isPriorityField(key) {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		vn, err := valueToNode(m[key])
		if err != nil {
			return nil, err
		}
		appendPair(out, key, vn)
	}
	return out, nil
}

func isPriorityField(key string) bool {
	for _, pf := range proxyPriorityFields {
		if key == pf {
			return true
		}
	}
	return false
}
