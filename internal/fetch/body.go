package fetch

import (
	"encoding/base64"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"submerge/internal/link"
	"submerge/internal/node"
)

// ParseBody turns a downloaded subscription body into nodes. Three layouts
// are recognized, in order: a Clash YAML document with a proxies list, a
// base64-wrapped link list, and a plain link list. Individual entries that
// fail to parse are skipped; the error is returned only when the document
// as a whole yields nothing.
func ParseBody(body []byte) ([]node.Node, error) {
	content := strings.TrimSpace(string(body))
	if content == "" {
		return nil, fmt.Errorf("empty subscription body")
	}

	if nodes, ok := parseClashDocument(content); ok {
		return nodes, nil
	}

	decoded := content
	if !strings.Contains(content, "://") {
		plain, err := base64Decode(content)
		if err != nil || !strings.Contains(plain, "://") {
			return nil, fmt.Errorf("unrecognized subscription format")
		}
		decoded = plain
	}

	var nodes []node.Node
	for _, line := range strings.Split(decoded, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || !strings.Contains(line, "://") {
			continue
		}
		n, err := link.Decode(line)
		if err != nil {
			continue
		}
		nodes = append(nodes, n)
	}

	if len(nodes) == 0 {
		return nil, fmt.Errorf("subscription contains no usable nodes")
	}
	return nodes, nil
}

func parseClashDocument(content string) ([]node.Node, bool) {
	if !strings.Contains(content, "proxies:") {
		return nil, false
	}

	var doc struct {
		Proxies []map[string]any `yaml:"proxies"`
	}
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil || len(doc.Proxies) == 0 {
		return nil, false
	}

	var nodes []node.Node
	for _, proxy := range doc.Proxies {
		n, err := node.FromClashMap(proxy)
		if err != nil {
			continue
		}
		nodes = append(nodes, n)
	}
	return nodes, len(nodes) > 0
}

func base64Decode(s string) (string, error) {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' {
			return -1
		}
		return r
	}, s)
	s = strings.ReplaceAll(s, "-", "+")
	s = strings.ReplaceAll(s, "_", "/")
	switch len(s) % 4 {
	case 2:
		s += "=="
	case 3:
		s += "="
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
