package subserve

import "strings"

// Format is the negotiated output shape of the /sub endpoint.
type Format string

const (
	FormatYAML   Format = "yaml"
	FormatBase64 Format = "base64"
)

// formatRule pairs a client User-Agent substring with the output that
// client expects.
type formatRule struct {
	substring string
	format    Format
}

// formatRules is consulted in order against the lowercased User-Agent;
// the first matching substring wins. Clash-family clients read a YAML
// document, URI-list clients read base64 links. shadowrocket must stay
// ahead of shadowsocks so the longer name matches first.
var formatRules = []formatRule{
	{"clash", FormatYAML},
	{"stash", FormatYAML},
	{"shadowrocket", FormatYAML},
	{"quantumult", FormatYAML},
	{"surge", FormatYAML},
	{"loon", FormatYAML},
	{"v2ray", FormatBase64},
	{"xray", FormatBase64},
	{"nekoray", FormatBase64},
	{"nekobox", FormatBase64},
	{"sing-box", FormatBase64},
	{"hiddify", FormatBase64},
	{"shadowsocks", FormatBase64},
}

// ResolveFormat picks the output format. An explicit query value wins
// outright; otherwise the first rule whose substring appears in the
// User-Agent decides. Unrecognized or absent User-Agents get YAML.
func ResolveFormat(explicit, userAgent string) Format {
	switch strings.ToLower(strings.TrimSpace(explicit)) {
	case string(FormatYAML):
		return FormatYAML
	case string(FormatBase64):
		return FormatBase64
	}

	ua := strings.ToLower(userAgent)
	for _, rule := range formatRules {
		if strings.Contains(ua, rule.substring) {
			return rule.format
		}
	}
	return FormatYAML
}
