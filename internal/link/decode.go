package link

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"submerge/internal/node"
)

// DecodeError reports a proxy link that could not be parsed. Callers that
// process link lists are expected to skip the bad entry and continue.
type DecodeError struct {
	Link string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed link %q: %v", truncateLink(e.Link), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func truncateLink(raw string) string {
	if len(raw) > 48 {
		return raw[:48] + "..."
	}
	return raw
}

func malformed(raw string, format string, args ...any) error {
	return &DecodeError{Link: raw, Err: fmt.Errorf(format, args...)}
}

// Decode parses a single share link into a canonical node.
func Decode(raw string) (node.Node, error) {
	raw = strings.TrimSpace(raw)

	switch {
	case strings.HasPrefix(raw, "vmess://"):
		return decodeVMess(raw)
	case strings.HasPrefix(raw, "ssr://"):
		return decodeShadowsocksR(raw)
	case strings.HasPrefix(raw, "ss://"):
		return decodeShadowsocks(raw)
	case strings.HasPrefix(raw, "vless://"):
		return decodeVLESS(raw)
	case strings.HasPrefix(raw, "trojan://"):
		return decodeTrojan(raw)
	case strings.HasPrefix(raw, "hysteria://"):
		return decodeHysteria(raw)
	case strings.HasPrefix(raw, "hysteria2://"), strings.HasPrefix(raw, "hy2://"):
		return decodeHysteria2(raw)
	case strings.HasPrefix(raw, "tuic://"):
		return decodeTUIC(raw)
	case strings.HasPrefix(raw, "wireguard://"), strings.HasPrefix(raw, "wg://"):
		return decodeWireGuard(raw)
	case strings.HasPrefix(raw, "socks://"), strings.HasPrefix(raw, "socks5://"), strings.HasPrefix(raw, "socks5+tls://"):
		return decodeSocks(raw)
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		return decodeHTTP(raw)
	default:
		return node.Node{}, malformed(raw, "unsupported scheme")
	}
}

// base64DecodeLoose decodes standard or URL-safe base64, repairing missing
// padding first.
func base64DecodeLoose(s string) (string, error) {
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

func parseQuery(query string) map[string]string {
	params := make(map[string]string)
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		key, _ := url.QueryUnescape(kv[0])
		value := ""
		if len(kv) == 2 {
			value, _ = url.QueryUnescape(kv[1])
		}
		params[key] = value
	}
	return params
}

func unescape(s string) string {
	if s == "" {
		return s
	}
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// splitLink separates the scheme-stripped body of a link into its main part,
// query params and fragment name.
func splitLink(raw, scheme string) (main string, params map[string]string, name string) {
	content := strings.TrimPrefix(raw, scheme)
	main = content

	if idx := strings.LastIndex(main, "#"); idx != -1 {
		name, _ = url.QueryUnescape(main[idx+1:])
		main = main[:idx]
	}
	params = map[string]string{}
	if idx := strings.Index(main, "?"); idx != -1 {
		params = parseQuery(main[idx+1:])
		main = main[:idx]
	}
	main = strings.TrimSuffix(main, "/")
	return main, params, name
}

// parseHostPort splits host:port, honoring IPv6 brackets. A missing or
// unparsable port falls back to def.
func parseHostPort(s string, def int) (string, int) {
	var host string
	var port int

	if strings.HasPrefix(s, "[") {
		if close := strings.Index(s, "]"); close != -1 {
			host = s[1:close]
			rest := s[close+1:]
			if strings.HasPrefix(rest, ":") {
				port, _ = strconv.Atoi(rest[1:])
			}
		}
	} else if idx := strings.LastIndex(s, ":"); idx != -1 {
		host = s[:idx]
		port, _ = strconv.Atoi(s[idx+1:])
	} else {
		host = s
	}

	if port == 0 {
		port = def
	}
	return host, port
}

func decodeVMess(raw string) (node.Node, error) {
	jsonStr, err := base64DecodeLoose(strings.TrimPrefix(raw, "vmess://"))
	if err != nil {
		return node.Node{}, malformed(raw, "base64: %v", err)
	}

	var cfg map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &cfg); err != nil {
		return node.Node{}, malformed(raw, "json: %v", err)
	}

	n := node.Node{
		Name:   jsonString(cfg, "ps", "VMess Node"),
		Server: jsonString(cfg, "add", ""),
		Port:   jsonInt(cfg, "port"),
	}
	if n.Server == "" {
		return node.Node{}, malformed(raw, "missing server address")
	}
	if n.Port == 0 {
		return node.Node{}, malformed(raw, "missing port")
	}
	uuid := jsonString(cfg, "id", "")
	if uuid == "" {
		return node.Node{}, malformed(raw, "missing uuid")
	}

	tlsOn := jsonString(cfg, "tls", "") == "tls"
	opts := node.VMessOpts{
		UUID:    uuid,
		AlterID: jsonInt(cfg, "aid"),
		Cipher:  jsonString(cfg, "scy", "auto"),
		TLS: node.TLSConfig{
			Enabled:     tlsOn,
			Fingerprint: jsonString(cfg, "fp", ""),
		},
	}

	network := jsonString(cfg, "net", "tcp")
	host := unescape(jsonString(cfg, "host", ""))
	opts.Transport = node.Transport{
		Network:     network,
		Path:        unescape(jsonString(cfg, "path", "")),
		Host:        host,
		ServiceName: unescape(jsonString(cfg, "path", "")),
	}

	if sni := jsonString(cfg, "sni", ""); sni != "" {
		opts.TLS.SNI = unescape(sni)
	} else if host != "" && tlsOn {
		opts.TLS.SNI = host
	}
	if alpn := jsonString(cfg, "alpn", ""); alpn != "" {
		opts.TLS.ALPN = strings.Split(alpn, ",")
	}
	switch v := cfg["allowInsecure"].(type) {
	case bool:
		opts.TLS.SkipCertVerify = v
	case string:
		opts.TLS.SkipCertVerify = v == "1" || v == "true"
	case float64:
		opts.TLS.SkipCertVerify = v == 1
	}

	n.Opts = opts
	return n, nil
}

// knownCiphers is used to tell the plaintext method:password form apart
// from the base64-wrapped SIP002 userinfo.
var knownCiphers = []string{
	"aes-128-gcm", "aes-192-gcm", "aes-256-gcm",
	"aes-128-cfb", "aes-192-cfb", "aes-256-cfb",
	"aes-128-ctr", "aes-192-ctr", "aes-256-ctr",
	"chacha20-ietf-poly1305", "xchacha20-ietf-poly1305",
	"chacha20-ietf", "chacha20", "xchacha20",
	"2022-blake3-aes-128-gcm", "2022-blake3-aes-256-gcm",
	"2022-blake3-chacha20-poly1305",
	"rc4-md5", "none",
}

func decodeShadowsocks(raw string) (node.Node, error) {
	main, params, name := splitLink(raw, "ss://")
	if name == "" {
		name = "SS Node"
	}

	var server, method, password string
	var port int

	if atIdx := strings.LastIndex(main, "@"); atIdx != -1 {
		authPart := main[:atIdx]
		server, port = parseHostPort(main[atIdx+1:], 0)
		if port == 0 {
			return node.Node{}, malformed(raw, "missing port")
		}

		matched := ""
		for _, cipher := range knownCiphers {
			if strings.HasPrefix(authPart, cipher+":") {
				matched = cipher
				break
			}
		}
		if matched != "" {
			method = matched
			password = authPart[len(matched)+1:]
			if decoded, err := base64DecodeLoose(password); err == nil && printableASCII(decoded) && decoded != "" {
				password = decoded
			}
		} else {
			if strings.Contains(authPart, "%") {
				authPart = unescape(authPart)
			}
			decoded, err := base64DecodeLoose(authPart)
			if err != nil {
				return node.Node{}, malformed(raw, "userinfo base64: %v", err)
			}
			colon := strings.Index(decoded, ":")
			if colon == -1 {
				return node.Node{}, malformed(raw, "userinfo missing method separator")
			}
			method = decoded[:colon]
			password = decoded[colon+1:]
		}
	} else {
		// Legacy form, the whole body is base64.
		decoded, err := base64DecodeLoose(main)
		if err != nil {
			return node.Node{}, malformed(raw, "base64: %v", err)
		}
		atIdx := strings.LastIndex(decoded, "@")
		if atIdx == -1 {
			return node.Node{}, malformed(raw, "missing @ separator")
		}
		authPart := decoded[:atIdx]
		colon := strings.Index(authPart, ":")
		if colon == -1 {
			return node.Node{}, malformed(raw, "missing method separator")
		}
		method = authPart[:colon]
		password = authPart[colon+1:]
		server, port = parseHostPort(decoded[atIdx+1:], 0)
		if server == "" || port == 0 {
			return node.Node{}, malformed(raw, "missing server endpoint")
		}
	}

	opts := node.ShadowsocksOpts{Cipher: method, Password: password}
	if plugin := params["plugin"]; plugin != "" {
		opts.Plugin, opts.PluginOpts = parseSSPlugin(plugin)
	}

	return node.Node{Name: name, Server: server, Port: port, Opts: opts}, nil
}

func printableASCII(s string) bool {
	for _, c := range s {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

// parseSSPlugin parses the SIP003 plugin parameter into Clash plugin naming.
func parseSSPlugin(pluginStr string) (string, map[string]any) {
	decoded := unescape(pluginStr)
	parts := strings.Split(decoded, ";")
	pluginName := strings.TrimSpace(parts[0])
	if pluginName == "" {
		return "", nil
	}

	plugin := pluginName
	if pluginName == "obfs-local" || pluginName == "simple-obfs" {
		plugin = "obfs"
	}

	opts := make(map[string]any)
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		eq := strings.Index(part, "=")
		if eq == -1 {
			continue
		}
		key, value := part[:eq], part[eq+1:]

		switch plugin {
		case "obfs":
			switch key {
			case "obfs":
				opts["mode"] = value
			case "obfs-host", "host":
				opts["host"] = value
			}
		case "v2ray-plugin", "gost-plugin":
			switch key {
			case "mode", "host", "path", "fingerprint":
				opts[key] = value
			case "tls", "mux", "skip-cert-verify":
				opts[key] = value == "true" || value == "1"
			}
		default:
			opts[key] = value
		}
	}

	if len(opts) == 0 {
		return plugin, nil
	}
	return plugin, opts
}

func decodeShadowsocksR(raw string) (node.Node, error) {
	decoded, err := base64DecodeLoose(strings.TrimPrefix(raw, "ssr://"))
	if err != nil {
		return node.Node{}, malformed(raw, "base64: %v", err)
	}

	body, paramsPart, _ := strings.Cut(decoded, "/?")

	// host:port:protocol:method:obfs:base64(password), host may be IPv6 so
	// fields are taken from the right.
	segments := strings.Split(body, ":")
	if len(segments) < 6 {
		return node.Node{}, malformed(raw, "expected 6 colon fields, got %d", len(segments))
	}

	password, _ := base64DecodeLoose(segments[len(segments)-1])
	obfs := segments[len(segments)-2]
	method := segments[len(segments)-3]
	protocol := segments[len(segments)-4]
	port, _ := strconv.Atoi(segments[len(segments)-5])
	server := strings.Join(segments[:len(segments)-5], ":")

	params := parseQuery(paramsPart)
	name := "SSR Node"
	if remarks := params["remarks"]; remarks != "" {
		if decoded, err := base64DecodeLoose(remarks); err == nil {
			name = decoded
		}
	}
	obfsParam, _ := base64DecodeLoose(params["obfsparam"])
	protoParam, _ := base64DecodeLoose(params["protoparam"])

	return node.Node{
		Name:   name,
		Server: server,
		Port:   port,
		Opts: node.ShadowsocksROpts{
			Cipher:        method,
			Password:      password,
			Obfs:          obfs,
			ObfsParam:     obfsParam,
			ProtocolName:  protocol,
			ProtocolParam: protoParam,
		},
	}, nil
}

func decodeVLESS(raw string) (node.Node, error) {
	main, params, name := splitLink(raw, "vless://")
	if name == "" {
		name = "VLESS Node"
	}

	atIdx := strings.LastIndex(main, "@")
	if atIdx == -1 {
		return node.Node{}, malformed(raw, "missing @ separator")
	}
	uuid := main[:atIdx]
	server, port := parseHostPort(main[atIdx+1:], 443)

	if enc := params["encryption"]; enc != "" && enc != "none" {
		return node.Node{}, malformed(raw, "unsupported encryption %q", enc)
	}

	security := params["security"]
	opts := node.VLESSOpts{
		UUID: uuid,
		Flow: params["flow"],
		TLS: node.TLSConfig{
			Enabled:        security == "tls" || security == "reality",
			SNI:            unescape(orString(params["sni"], server)),
			Fingerprint:    params["fp"],
			SkipCertVerify: params["allowInsecure"] == "1",
		},
	}
	if alpn := params["alpn"]; alpn != "" {
		opts.TLS.ALPN = strings.Split(alpn, ",")
	}
	if security == "reality" {
		opts.Reality = &node.RealityConfig{
			PublicKey: params["pbk"],
			ShortID:   params["sid"],
			SpiderX:   params["spx"],
		}
		opts.TLS.SkipCertVerify = true
	}
	opts.Transport = transportFromParams(params)

	return node.Node{Name: name, Server: server, Port: port, Opts: opts}, nil
}

func decodeTrojan(raw string) (node.Node, error) {
	main, params, name := splitLink(raw, "trojan://")
	if name == "" {
		name = "Trojan Node"
	}

	atIdx := strings.LastIndex(main, "@")
	if atIdx == -1 {
		return node.Node{}, malformed(raw, "missing @ separator")
	}
	password := main[:atIdx]
	server, port := parseHostPort(main[atIdx+1:], 443)

	sni := params["sni"]
	if sni == "" {
		sni = params["peer"]
	}
	if sni == "" {
		sni = orString(params["host"], server)
	}

	opts := node.TrojanOpts{
		Password: password,
		TLS: node.TLSConfig{
			Enabled:        true,
			SNI:            unescape(sni),
			Fingerprint:    params["fp"],
			SkipCertVerify: params["allowInsecure"] == "1" || params["skip-cert-verify"] == "1",
		},
		Transport: transportFromParams(params),
	}
	if alpn := params["alpn"]; alpn != "" {
		opts.TLS.ALPN = strings.Split(alpn, ",")
	}

	return node.Node{Name: name, Server: server, Port: port, Opts: opts}, nil
}

// transportFromParams reads the shared type/path/host/serviceName query
// parameters used by vless and trojan links.
func transportFromParams(params map[string]string) node.Transport {
	network := params["type"]
	if network == "" {
		network = "tcp"
	}
	serviceName := params["serviceName"]
	if serviceName == "" && network == "grpc" {
		serviceName = params["path"]
	}
	return node.Transport{
		Network:     network,
		Path:        unescape(params["path"]),
		Host:        unescape(params["host"]),
		ServiceName: unescape(serviceName),
	}
}

func decodeHysteria(raw string) (node.Node, error) {
	main, params, name := splitLink(raw, "hysteria://")
	if name == "" {
		name = "Hysteria Node"
	}

	atIdx := strings.LastIndex(main, "@")
	if atIdx == -1 {
		return node.Node{}, malformed(raw, "missing @ separator")
	}
	auth := main[:atIdx]
	server, port := parseHostPort(main[atIdx+1:], 443)
	if a := params["auth"]; a != "" {
		auth = a
	}

	opts := node.HysteriaOpts{
		Auth:      auth,
		Obfs:      params["obfs"],
		Transport: orString(params["protocol"], "udp"),
		UpMbps:    orString(params["up"], params["upmbps"]),
		DownMbps:  orString(params["down"], params["downmbps"]),
		TLS: node.TLSConfig{
			SNI:            unescape(orString(params["sni"], params["peer"])),
			Fingerprint:    params["fp"],
			SkipCertVerify: params["insecure"] == "1" || params["allowInsecure"] == "1",
		},
	}
	if opts.TLS.SNI == "" && !strings.HasPrefix(server, "[") {
		opts.TLS.SNI = server
	}
	if alpn := params["alpn"]; alpn != "" {
		opts.TLS.ALPN = strings.Split(alpn, ",")
	}

	return node.Node{Name: name, Server: server, Port: port, Opts: opts}, nil
}

func decodeHysteria2(raw string) (node.Node, error) {
	raw = strings.Replace(raw, "hy2://", "hysteria2://", 1)
	main, params, name := splitLink(raw, "hysteria2://")
	if name == "" {
		name = "Hysteria2 Node"
	}

	atIdx := strings.LastIndex(main, "@")
	if atIdx == -1 {
		return node.Node{}, malformed(raw, "missing @ separator")
	}
	password := unescape(main[:atIdx])
	server, port := parseHostPort(main[atIdx+1:], 443)

	opts := node.Hysteria2Opts{
		Password:     password,
		Obfs:         params["obfs"],
		ObfsPassword: orString(params["obfs-password"], params["obfsParam"]),
		TLS: node.TLSConfig{
			SNI:            unescape(orString(params["sni"], params["peer"])),
			Fingerprint:    params["fp"],
			SkipCertVerify: params["insecure"] == "1" || params["allowInsecure"] == "1",
		},
	}
	if opts.TLS.SNI == "" && !strings.HasPrefix(server, "[") {
		opts.TLS.SNI = server
	}
	if alpn := params["alpn"]; alpn != "" {
		opts.TLS.ALPN = strings.Split(alpn, ",")
	}

	return node.Node{Name: name, Server: server, Port: port, Opts: opts}, nil
}

func decodeTUIC(raw string) (node.Node, error) {
	main, params, name := splitLink(raw, "tuic://")
	if name == "" {
		name = "TUIC Node"
	}

	atIdx := strings.LastIndex(main, "@")
	if atIdx == -1 {
		return node.Node{}, malformed(raw, "missing @ separator")
	}
	authPart := unescape(main[:atIdx])
	server, port := parseHostPort(main[atIdx+1:], 443)

	uuid, password, found := strings.Cut(authPart, ":")
	if !found {
		password = params["password"]
	}

	opts := node.TUICOpts{
		UUID:              uuid,
		Password:          password,
		CongestionControl: orString(params["congestion_control"], "bbr"),
		UDPRelayMode:      orString(params["udp_relay_mode"], "native"),
		TLS: node.TLSConfig{
			SNI:            unescape(orString(params["sni"], server)),
			SkipCertVerify: params["allowInsecure"] == "1" || params["allow_insecure"] == "1",
		},
	}
	if alpn := params["alpn"]; alpn != "" {
		opts.TLS.ALPN = strings.Split(alpn, ",")
	} else {
		opts.TLS.ALPN = []string{"h3"}
	}

	return node.Node{Name: name, Server: server, Port: port, Opts: opts}, nil
}

var wireguardLinkRe = regexp.MustCompile(`^((.*?)@)?(.*?)(:(\d+))?\/?(\?(.*?))?(?:#(.*?))?$`)

func decodeWireGuard(raw string) (node.Node, error) {
	content := strings.TrimPrefix(strings.TrimPrefix(raw, "wireguard://"), "wg://")

	match := wireguardLinkRe.FindStringSubmatch(content)
	if match == nil || match[3] == "" {
		return node.Node{}, malformed(raw, "missing server endpoint")
	}

	privateKey := unescape(match[2])
	server := match[3]
	port := 51820
	if match[5] != "" {
		port, _ = strconv.Atoi(match[5])
	}
	name := unescape(match[8])
	if name == "" {
		name = fmt.Sprintf("WireGuard %s:%d", server, port)
	}

	opts := node.WireGuardOpts{PrivateKey: privateKey}
	for key, value := range parseQuery(match[7]) {
		switch strings.ReplaceAll(key, "_", "-") {
		case "publickey", "public-key":
			opts.PublicKey = value
		case "privatekey", "private-key":
			opts.PrivateKey = value
		case "reserved":
			parts := strings.Split(value, ",")
			if len(parts) == 3 {
				reserved := make([]int, 3)
				for i, p := range parts {
					reserved[i], _ = strconv.Atoi(strings.TrimSpace(p))
				}
				opts.Reserved = reserved
			}
		case "address", "ip":
			for _, ip := range strings.Split(value, ",") {
				ip = strings.TrimSpace(ip)
				if idx := strings.Index(ip, "/"); idx != -1 {
					ip = ip[:idx]
				}
				ip = strings.TrimSuffix(strings.TrimPrefix(ip, "["), "]")
				if strings.Contains(ip, ":") {
					opts.IPv6 = ip
				} else if ip != "" {
					opts.IP = ip
				}
			}
		case "mtu":
			opts.MTU, _ = strconv.Atoi(value)
		case "allowed-ips", "allowedips":
			value = strings.TrimSuffix(strings.TrimPrefix(value, "["), "]")
			for _, cidr := range strings.Split(value, ",") {
				if cidr = strings.TrimSpace(cidr); cidr != "" {
					opts.AllowedIPs = append(opts.AllowedIPs, cidr)
				}
			}
		}
	}

	return node.Node{Name: name, Server: server, Port: port, Opts: opts}, nil
}

func decodeSocks(raw string) (node.Node, error) {
	plainAuth := true
	withTLS := false
	scheme := "socks5://"
	switch {
	case strings.HasPrefix(raw, "socks5+tls://"):
		scheme = "socks5+tls://"
		withTLS = true
	case strings.HasPrefix(raw, "socks://"):
		scheme = "socks://"
		plainAuth = false
	}

	main, params, name := splitLink(raw, scheme)

	var server, username, password string
	var port int

	if atIdx := strings.LastIndex(main, "@"); atIdx != -1 {
		authPart := main[:atIdx]
		server, port = parseHostPort(main[atIdx+1:], 0)

		if plainAuth {
			user, pass, _ := strings.Cut(authPart, ":")
			username = unescape(user)
			password = unescape(pass)
		} else if decoded, err := base64DecodeLoose(authPart); err == nil {
			username, password, _ = strings.Cut(decoded, ":")
		}
	} else {
		server, port = parseHostPort(main, 0)
	}

	if port == 0 {
		port = 1080
		if withTLS {
			port = 443
		}
	}
	if server == "" {
		return node.Node{}, malformed(raw, "missing server address")
	}
	if name == "" {
		name = fmt.Sprintf("%s:%d", server, port)
	}

	opts := node.Socks5Opts{Username: username, Password: password}
	if withTLS || params["tls"] == "1" || params["tls"] == "true" {
		opts.TLS = node.TLSConfig{
			Enabled:        true,
			SNI:            unescape(orString(params["sni"], params["peer"])),
			SkipCertVerify: params["allowInsecure"] == "1" || params["skip-cert-verify"] == "1",
		}
	}

	return node.Node{Name: name, Server: server, Port: port, Opts: opts}, nil
}

func decodeHTTP(raw string) (node.Node, error) {
	withTLS := strings.HasPrefix(raw, "https://")
	scheme := "http://"
	if withTLS {
		scheme = "https://"
	}

	main, params, name := splitLink(raw, scheme)

	var server, username, password string
	var port int

	if atIdx := strings.LastIndex(main, "@"); atIdx != -1 {
		user, pass, _ := strings.Cut(main[:atIdx], ":")
		username = unescape(user)
		password = unescape(pass)
		server, port = parseHostPort(main[atIdx+1:], 0)
	} else {
		server, port = parseHostPort(main, 0)
	}

	if port == 0 {
		port = 80
		if withTLS {
			port = 443
		}
	}
	if server == "" {
		return node.Node{}, malformed(raw, "missing server address")
	}
	if name == "" {
		name = fmt.Sprintf("%s:%d", server, port)
	}

	opts := node.HTTPOpts{Username: username, Password: password}
	if withTLS {
		opts.TLS = node.TLSConfig{
			Enabled:        true,
			SNI:            unescape(params["sni"]),
			SkipCertVerify: params["allowInsecure"] == "1" || params["skip-cert-verify"] == "1",
		}
	}

	return node.Node{Name: name, Server: server, Port: port, Opts: opts}, nil
}

func orString(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func jsonString(m map[string]any, key, def string) string {
	if v, ok := m[key]; ok {
		switch val := v.(type) {
		case string:
			return val
		case float64:
			return strconv.FormatFloat(val, 'f', -1, 64)
		}
	}
	return def
}

func jsonInt(m map[string]any, key string) int {
	switch val := m[key].(type) {
	case float64:
		return int(val)
	case string:
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return 0
}
