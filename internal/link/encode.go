package link

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"submerge/internal/node"
)

// Encode renders a node back into its share link form.
func Encode(n node.Node) (string, error) {
	switch o := n.Opts.(type) {
	case node.VMessOpts:
		return encodeVMess(n, o)
	case node.VLESSOpts:
		return encodeVLESS(n, o)
	case node.ShadowsocksOpts:
		return encodeShadowsocks(n, o)
	case node.ShadowsocksROpts:
		return encodeShadowsocksR(n, o)
	case node.TrojanOpts:
		return encodeTrojan(n, o)
	case node.HysteriaOpts:
		return encodeHysteria(n, o)
	case node.Hysteria2Opts:
		return encodeHysteria2(n, o)
	case node.TUICOpts:
		return encodeTUIC(n, o)
	case node.WireGuardOpts:
		return encodeWireGuard(n, o)
	case node.Socks5Opts:
		return encodeSocks5(n, o)
	case node.HTTPOpts:
		return encodeHTTP(n, o)
	default:
		return "", fmt.Errorf("encode: unsupported node type %q", n.Protocol())
	}
}

// EncodeList renders nodes one link per line, skipping entries that cannot
// be expressed as a link.
func EncodeList(nodes []node.Node) string {
	var links []string
	for _, n := range nodes {
		uri, err := Encode(n)
		if err != nil {
			continue
		}
		links = append(links, uri)
	}
	return strings.Join(links, "\n")
}

// EncodeBase64 produces the classic base64 subscription body.
func EncodeBase64(nodes []node.Node) string {
	return base64.StdEncoding.EncodeToString([]byte(EncodeList(nodes)))
}

func hostPort(n node.Node) string {
	server := n.Server
	if strings.Contains(server, ":") && !strings.HasPrefix(server, "[") {
		server = "[" + server + "]"
	}
	return fmt.Sprintf("%s:%d", server, n.Port)
}

func encodeVMess(n node.Node, o node.VMessOpts) (string, error) {
	cfg := map[string]any{
		"v":    "2",
		"ps":   n.Name,
		"add":  n.Server,
		"port": strconv.Itoa(n.Port),
		"id":   o.UUID,
		"aid":  strconv.Itoa(o.AlterID),
		"scy":  o.Cipher,
		"net":  orString(o.Transport.Network, "tcp"),
		"type": "none",
		"tls":  "",
	}
	if o.TLS.Enabled {
		cfg["tls"] = "tls"
	}
	if o.TLS.SNI != "" {
		cfg["sni"] = o.TLS.SNI
	}
	if len(o.TLS.ALPN) > 0 {
		cfg["alpn"] = strings.Join(o.TLS.ALPN, ",")
	}
	if o.TLS.Fingerprint != "" {
		cfg["fp"] = o.TLS.Fingerprint
	}
	switch o.Transport.Network {
	case "ws", "h2", "http", "xhttp":
		cfg["path"] = o.Transport.Path
		if o.Transport.Host != "" {
			cfg["host"] = o.Transport.Host
		}
	case "grpc":
		cfg["path"] = o.Transport.ServiceName
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return "vmess://" + base64.StdEncoding.EncodeToString(data), nil
}

// transportParams writes the shared type/path/host/serviceName query keys.
func transportParams(params url.Values, t node.Transport) {
	if t.Network == "" || t.Network == "tcp" {
		params.Set("type", "tcp")
		return
	}
	params.Set("type", t.Network)
	switch t.Network {
	case "ws", "h2", "http", "xhttp":
		if t.Path != "" {
			params.Set("path", t.Path)
		}
		if t.Host != "" {
			params.Set("host", t.Host)
		}
	case "grpc":
		if t.ServiceName != "" {
			params.Set("serviceName", t.ServiceName)
		}
	}
}

func tlsParams(params url.Values, tls node.TLSConfig) {
	if tls.SNI != "" {
		params.Set("sni", tls.SNI)
	}
	if len(tls.ALPN) > 0 {
		params.Set("alpn", strings.Join(tls.ALPN, ","))
	}
	if tls.Fingerprint != "" {
		params.Set("fp", tls.Fingerprint)
	}
	if tls.SkipCertVerify {
		params.Set("allowInsecure", "1")
	}
}

func encodeVLESS(n node.Node, o node.VLESSOpts) (string, error) {
	params := url.Values{}

	security := "none"
	if o.TLS.Enabled {
		security = "tls"
	}
	if o.Reality != nil {
		security = "reality"
		params.Set("pbk", o.Reality.PublicKey)
		params.Set("sid", o.Reality.ShortID)
		if o.Reality.SpiderX != "" {
			params.Set("spx", o.Reality.SpiderX)
		}
	}
	params.Set("security", security)
	params.Set("encryption", "none")
	if o.Flow != "" {
		params.Set("flow", o.Flow)
	}
	tlsParams(params, o.TLS)
	transportParams(params, o.Transport)

	return fmt.Sprintf("vless://%s@%s?%s#%s",
		o.UUID, hostPort(n), params.Encode(), url.QueryEscape(n.Name)), nil
}

func encodeShadowsocks(n node.Node, o node.ShadowsocksOpts) (string, error) {
	userInfo := base64.URLEncoding.EncodeToString([]byte(o.Cipher + ":" + o.Password))
	userInfo = strings.TrimRight(userInfo, "=")

	var suffix string
	if o.Plugin != "" {
		parts := []string{o.Plugin}
		for key, val := range o.PluginOpts {
			parts = append(parts, fmt.Sprintf("%s=%v", key, val))
		}
		suffix = "/?plugin=" + url.QueryEscape(strings.Join(parts, ";"))
	}

	return fmt.Sprintf("ss://%s@%s%s#%s", userInfo, hostPort(n), suffix, url.QueryEscape(n.Name)), nil
}

func encodeShadowsocksR(n node.Node, o node.ShadowsocksROpts) (string, error) {
	params := url.Values{}
	if o.ObfsParam != "" {
		params.Set("obfsparam", base64.URLEncoding.EncodeToString([]byte(o.ObfsParam)))
	}
	if o.ProtocolParam != "" {
		params.Set("protoparam", base64.URLEncoding.EncodeToString([]byte(o.ProtocolParam)))
	}
	params.Set("remarks", base64.URLEncoding.EncodeToString([]byte(n.Name)))

	passwordB64 := base64.URLEncoding.EncodeToString([]byte(o.Password))
	main := fmt.Sprintf("%s:%d:%s:%s:%s:%s", n.Server, n.Port, o.ProtocolName, o.Cipher, o.Obfs, passwordB64)

	encoded := base64.URLEncoding.EncodeToString([]byte(main + "/?" + params.Encode()))
	return "ssr://" + strings.TrimRight(encoded, "="), nil
}

func encodeTrojan(n node.Node, o node.TrojanOpts) (string, error) {
	params := url.Values{}
	tlsParams(params, node.TLSConfig{
		SNI:            orString(o.TLS.SNI, n.Server),
		ALPN:           o.TLS.ALPN,
		Fingerprint:    o.TLS.Fingerprint,
		SkipCertVerify: o.TLS.SkipCertVerify,
	})
	if o.Transport.Network != "" && o.Transport.Network != "tcp" {
		transportParams(params, o.Transport)
	}

	return fmt.Sprintf("trojan://%s@%s?%s#%s",
		o.Password, hostPort(n), params.Encode(), url.QueryEscape(n.Name)), nil
}

func encodeHysteria(n node.Node, o node.HysteriaOpts) (string, error) {
	params := url.Values{}
	if o.Auth != "" {
		params.Set("auth", o.Auth)
	}
	if o.TLS.SNI != "" {
		params.Set("peer", o.TLS.SNI)
	}
	if o.TLS.SkipCertVerify {
		params.Set("insecure", "1")
	}
	if len(o.TLS.ALPN) > 0 {
		params.Set("alpn", strings.Join(o.TLS.ALPN, ","))
	}
	if o.Obfs != "" {
		params.Set("obfs", o.Obfs)
	}
	if o.Transport != "" && o.Transport != "udp" {
		params.Set("protocol", o.Transport)
	}
	if o.UpMbps != "" {
		params.Set("upmbps", o.UpMbps)
	}
	if o.DownMbps != "" {
		params.Set("downmbps", o.DownMbps)
	}

	return fmt.Sprintf("hysteria://%s@%s?%s#%s",
		o.Auth, hostPort(n), params.Encode(), url.QueryEscape(n.Name)), nil
}

func encodeHysteria2(n node.Node, o node.Hysteria2Opts) (string, error) {
	params := url.Values{}
	if o.TLS.SNI != "" {
		params.Set("sni", o.TLS.SNI)
	}
	if o.TLS.SkipCertVerify {
		params.Set("insecure", "1")
	}
	if len(o.TLS.ALPN) > 0 {
		params.Set("alpn", strings.Join(o.TLS.ALPN, ","))
	}
	if o.Obfs != "" {
		params.Set("obfs", o.Obfs)
		if o.ObfsPassword != "" {
			params.Set("obfs-password", o.ObfsPassword)
		}
	}

	return fmt.Sprintf("hysteria2://%s@%s?%s#%s",
		url.QueryEscape(o.Password), hostPort(n), params.Encode(), url.QueryEscape(n.Name)), nil
}

func encodeTUIC(n node.Node, o node.TUICOpts) (string, error) {
	params := url.Values{}
	if o.TLS.SNI != "" {
		params.Set("sni", o.TLS.SNI)
	}
	if o.TLS.SkipCertVerify {
		params.Set("allow_insecure", "1")
	}
	if len(o.TLS.ALPN) > 0 {
		params.Set("alpn", strings.Join(o.TLS.ALPN, ","))
	}
	if o.CongestionControl != "" {
		params.Set("congestion_control", o.CongestionControl)
	}
	if o.UDPRelayMode != "" {
		params.Set("udp_relay_mode", o.UDPRelayMode)
	}

	return fmt.Sprintf("tuic://%s:%s@%s?%s#%s",
		o.UUID, url.QueryEscape(o.Password), hostPort(n), params.Encode(), url.QueryEscape(n.Name)), nil
}

func encodeWireGuard(n node.Node, o node.WireGuardOpts) (string, error) {
	params := url.Values{}
	if o.PublicKey != "" {
		params.Set("publickey", o.PublicKey)
	}
	var addrs []string
	if o.IP != "" {
		addrs = append(addrs, o.IP)
	}
	if o.IPv6 != "" {
		addrs = append(addrs, o.IPv6)
	}
	if len(addrs) > 0 {
		params.Set("address", strings.Join(addrs, ","))
	}
	if len(o.Reserved) == 3 {
		parts := make([]string, 3)
		for i, r := range o.Reserved {
			parts[i] = strconv.Itoa(r)
		}
		params.Set("reserved", strings.Join(parts, ","))
	}
	if o.MTU > 0 {
		params.Set("mtu", strconv.Itoa(o.MTU))
	}
	if len(o.AllowedIPs) > 0 {
		params.Set("allowed-ips", strings.Join(o.AllowedIPs, ","))
	}

	return fmt.Sprintf("wireguard://%s@%s?%s#%s",
		url.QueryEscape(o.PrivateKey), hostPort(n), params.Encode(), url.QueryEscape(n.Name)), nil
}

func encodeSocks5(n node.Node, o node.Socks5Opts) (string, error) {
	var auth string
	if o.Username != "" && o.Password != "" {
		auth = fmt.Sprintf("%s:%s@", url.QueryEscape(o.Username), url.QueryEscape(o.Password))
	}
	scheme := "socks5"
	if o.TLS.Enabled {
		scheme = "socks5+tls"
	}
	return fmt.Sprintf("%s://%s%s#%s", scheme, auth, hostPort(n), url.QueryEscape(n.Name)), nil
}

func encodeHTTP(n node.Node, o node.HTTPOpts) (string, error) {
	var auth string
	if o.Username != "" && o.Password != "" {
		auth = fmt.Sprintf("%s:%s@", url.QueryEscape(o.Username), url.QueryEscape(o.Password))
	}
	scheme := "http"
	if o.TLS.Enabled {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s#%s", scheme, auth, hostPort(n), url.QueryEscape(n.Name)), nil
}
