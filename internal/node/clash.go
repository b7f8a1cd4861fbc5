package node

import (
	"fmt"
	"strconv"
)

// ClashMap renders the node as a Clash proxy map. Key order on output is
// handled by the template renderer, the map itself is shape only.
func (n Node) ClashMap() map[string]any {
	m := map[string]any{
		"name":   n.Name,
		"type":   string(n.Protocol()),
		"server": n.Server,
		"port":   n.Port,
	}

	switch o := n.Opts.(type) {
	case VMessOpts:
		m["uuid"] = o.UUID
		m["alterId"] = o.AlterID
		m["cipher"] = o.Cipher
		m["udp"] = true
		m["tls"] = o.TLS.Enabled
		putTLS(m, o.TLS, "servername")
		putTransport(m, o.Transport)
	case VLESSOpts:
		m["uuid"] = o.UUID
		m["udp"] = true
		m["tls"] = o.TLS.Enabled || o.Reality != nil
		m["encryption"] = "none"
		if o.Flow != "" {
			m["flow"] = o.Flow
		}
		putTLS(m, o.TLS, "servername")
		if o.Reality != nil {
			realityOpts := map[string]any{
				"public-key": o.Reality.PublicKey,
				"short-id":   o.Reality.ShortID,
			}
			if o.Reality.SpiderX != "" {
				realityOpts["spider-x"] = o.Reality.SpiderX
			}
			m["reality-opts"] = realityOpts
			m["skip-cert-verify"] = true
		}
		putTransport(m, o.Transport)
	case ShadowsocksOpts:
		m["cipher"] = o.Cipher
		m["password"] = o.Password
		m["udp"] = true
		if o.Plugin != "" {
			m["plugin"] = o.Plugin
			if len(o.PluginOpts) > 0 {
				m["plugin-opts"] = o.PluginOpts
			}
		}
	case ShadowsocksROpts:
		m["cipher"] = o.Cipher
		m["password"] = o.Password
		m["protocol"] = o.ProtocolName
		m["obfs"] = o.Obfs
		m["udp"] = true
		if o.ObfsParam != "" {
			m["obfs-param"] = o.ObfsParam
		}
		if o.ProtocolParam != "" {
			m["protocol-param"] = o.ProtocolParam
		}
	case TrojanOpts:
		m["password"] = o.Password
		m["udp"] = true
		m["tls"] = true
		putTLS(m, o.TLS, "sni")
		putTransport(m, o.Transport)
	case HysteriaOpts:
		m["auth-str"] = o.Auth
		m["protocol"] = orDefault(o.Transport, "udp")
		m["udp"] = true
		if o.Obfs != "" {
			m["obfs"] = o.Obfs
		}
		if o.UpMbps != "" {
			m["up"] = o.UpMbps
		}
		if o.DownMbps != "" {
			m["down"] = o.DownMbps
		}
		putTLS(m, o.TLS, "sni")
	case Hysteria2Opts:
		m["password"] = o.Password
		m["udp"] = true
		if o.Obfs != "" {
			m["obfs"] = o.Obfs
			if o.ObfsPassword != "" {
				m["obfs-password"] = o.ObfsPassword
			}
		}
		putTLS(m, o.TLS, "sni")
	case TUICOpts:
		m["uuid"] = o.UUID
		m["password"] = o.Password
		m["udp"] = true
		m["congestion-controller"] = o.CongestionControl
		m["udp-relay-mode"] = o.UDPRelayMode
		putTLS(m, o.TLS, "sni")
	case WireGuardOpts:
		m["private-key"] = o.PrivateKey
		m["public-key"] = o.PublicKey
		m["udp"] = true
		if o.IP != "" {
			m["ip"] = o.IP
		}
		if o.IPv6 != "" {
			m["ipv6"] = o.IPv6
		}
		if len(o.Reserved) == 3 {
			m["reserved"] = o.Reserved
		}
		if o.MTU > 0 {
			m["mtu"] = o.MTU
		}
		if len(o.AllowedIPs) > 0 {
			m["allowed-ips"] = o.AllowedIPs
		}
	case Socks5Opts:
		m["udp"] = true
		if o.Username != "" {
			m["username"] = o.Username
		}
		if o.Password != "" {
			m["password"] = o.Password
		}
		if o.TLS.Enabled {
			m["tls"] = true
			putTLS(m, o.TLS, "sni")
		}
	case HTTPOpts:
		if o.Username != "" {
			m["username"] = o.Username
		}
		if o.Password != "" {
			m["password"] = o.Password
		}
		if o.TLS.Enabled {
			m["tls"] = true
			putTLS(m, o.TLS, "sni")
		}
	}

	return m
}

func putTLS(m map[string]any, tls TLSConfig, sniKey string) {
	if tls.SNI != "" {
		m[sniKey] = tls.SNI
	}
	if len(tls.ALPN) > 0 {
		m["alpn"] = tls.ALPN
	}
	if tls.Fingerprint != "" {
		m["client-fingerprint"] = tls.Fingerprint
	}
	if tls.SkipCertVerify {
		m["skip-cert-verify"] = true
	}
}

func putTransport(m map[string]any, t Transport) {
	network := t.Network
	if network == "" {
		network = "tcp"
	}
	m["network"] = network

	switch network {
	case "ws", "xhttp":
		opts := map[string]any{"path": orDefault(t.Path, "/")}
		if t.Host != "" {
			opts["headers"] = map[string]string{"Host": t.Host}
		} else {
			opts["headers"] = map[string]string{}
		}
		m[network+"-opts"] = opts
	case "grpc":
		m["grpc-opts"] = map[string]any{"grpc-service-name": t.ServiceName}
	case "h2", "http":
		opts := map[string]any{"path": orDefault(t.Path, "/")}
		if t.Host != "" {
			opts["host"] = []string{t.Host}
		} else {
			opts["host"] = []string{}
		}
		m["h2-opts"] = opts
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// FromClashMap builds a typed Node from a Clash proxy map, the inverse of
// ClashMap. Maps from remote YAML subscriptions go through here.
func FromClashMap(m map[string]any) (Node, error) {
	n := Node{
		Name:   getAnyString(m, "name"),
		Server: getAnyString(m, "server"),
		Port:   getInt(m, "port"),
	}
	if n.Name == "" {
		return Node{}, fmt.Errorf("proxy missing name")
	}
	if n.Server == "" {
		return Node{}, fmt.Errorf("proxy %q missing server", n.Name)
	}

	switch Protocol(getAnyString(m, "type")) {
	case ProtocolVMess:
		n.Opts = VMessOpts{
			UUID:      getAnyString(m, "uuid"),
			AlterID:   getInt(m, "alterId"),
			Cipher:    orDefault(getAnyString(m, "cipher"), "auto"),
			Transport: transportFromMap(m),
			TLS:       tlsFromMap(m, "servername"),
		}
	case ProtocolVLESS:
		opts := VLESSOpts{
			UUID:      getAnyString(m, "uuid"),
			Flow:      getAnyString(m, "flow"),
			Transport: transportFromMap(m),
			TLS:       tlsFromMap(m, "servername"),
		}
		if ro := getMap(m, "reality-opts"); ro != nil {
			opts.Reality = &RealityConfig{
				PublicKey: getAnyString(ro, "public-key"),
				ShortID:   getAnyString(ro, "short-id"),
				SpiderX:   getAnyString(ro, "spider-x"),
			}
		}
		n.Opts = opts
	case ProtocolShadowsocks:
		n.Opts = ShadowsocksOpts{
			Cipher:     getAnyString(m, "cipher"),
			Password:   getAnyString(m, "password"),
			Plugin:     getAnyString(m, "plugin"),
			PluginOpts: getMap(m, "plugin-opts"),
		}
	case ProtocolShadowsocksR:
		n.Opts = ShadowsocksROpts{
			Cipher:        getAnyString(m, "cipher"),
			Password:      getAnyString(m, "password"),
			Obfs:          getAnyString(m, "obfs"),
			ObfsParam:     getAnyString(m, "obfs-param"),
			ProtocolName:  getAnyString(m, "protocol"),
			ProtocolParam: getAnyString(m, "protocol-param"),
		}
	case ProtocolTrojan:
		n.Opts = TrojanOpts{
			Password:  getAnyString(m, "password"),
			Transport: transportFromMap(m),
			TLS:       tlsFromMap(m, "sni"),
		}
	case ProtocolHysteria:
		auth := getAnyString(m, "auth-str")
		if auth == "" {
			auth = getAnyString(m, "auth_str")
		}
		n.Opts = HysteriaOpts{
			Auth:      auth,
			Obfs:      getAnyString(m, "obfs"),
			Transport: orDefault(getAnyString(m, "protocol"), "udp"),
			UpMbps:    getAnyString(m, "up"),
			DownMbps:  getAnyString(m, "down"),
			TLS:       tlsFromMap(m, "sni"),
		}
	case ProtocolHysteria2:
		n.Opts = Hysteria2Opts{
			Password:     getAnyString(m, "password"),
			Obfs:         getAnyString(m, "obfs"),
			ObfsPassword: getAnyString(m, "obfs-password"),
			TLS:          tlsFromMap(m, "sni"),
		}
	case ProtocolTUIC:
		n.Opts = TUICOpts{
			UUID:              getAnyString(m, "uuid"),
			Password:          getAnyString(m, "password"),
			CongestionControl: orDefault(getAnyString(m, "congestion-controller"), "bbr"),
			UDPRelayMode:      orDefault(getAnyString(m, "udp-relay-mode"), "native"),
			TLS:               tlsFromMap(m, "sni"),
		}
	case ProtocolWireGuard:
		n.Opts = WireGuardOpts{
			PrivateKey: getAnyString(m, "private-key"),
			PublicKey:  getAnyString(m, "public-key"),
			IP:         getAnyString(m, "ip"),
			IPv6:       getAnyString(m, "ipv6"),
			Reserved:   getIntSlice(m, "reserved"),
			MTU:        getInt(m, "mtu"),
			AllowedIPs: getStringSlice(m, "allowed-ips"),
		}
	case ProtocolSocks5:
		n.Opts = Socks5Opts{
			Username: getAnyString(m, "username"),
			Password: getAnyString(m, "password"),
			TLS:      tlsFromMap(m, "sni"),
		}
	case ProtocolHTTP:
		n.Opts = HTTPOpts{
			Username: getAnyString(m, "username"),
			Password: getAnyString(m, "password"),
			TLS:      tlsFromMap(m, "sni"),
		}
	default:
		return Node{}, fmt.Errorf("proxy %q: unsupported type %q", n.Name, getAnyString(m, "type"))
	}

	return n, nil
}

func tlsFromMap(m map[string]any, sniKey string) TLSConfig {
	return TLSConfig{
		Enabled:        getBool(m, "tls"),
		SNI:            getAnyString(m, sniKey),
		ALPN:           getStringSlice(m, "alpn"),
		Fingerprint:    getAnyString(m, "client-fingerprint"),
		SkipCertVerify: getBool(m, "skip-cert-verify"),
	}
}

func transportFromMap(m map[string]any) Transport {
	t := Transport{Network: orDefault(getAnyString(m, "network"), "tcp")}

	switch t.Network {
	case "ws", "xhttp":
		if opts := getMap(m, t.Network+"-opts"); opts != nil {
			t.Path = getAnyString(opts, "path")
			if headers := getMap(opts, "headers"); headers != nil {
				t.Host = getAnyString(headers, "Host")
			}
		}
	case "grpc":
		if opts := getMap(m, "grpc-opts"); opts != nil {
			t.ServiceName = getAnyString(opts, "grpc-service-name")
		}
	case "h2", "http":
		if opts := getMap(m, "h2-opts"); opts != nil {
			t.Path = getAnyString(opts, "path")
			if hosts := getStringSlice(opts, "host"); len(hosts) > 0 {
				t.Host = hosts[0]
			}
		}
	}

	return t
}

func getAnyString(m map[string]any, key string) string {
	val, ok := m[key]
	if !ok || val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func getInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return 0
}

func getBool(m map[string]any, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	}
	return false
}

func getStringSlice(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

func getIntSlice(m map[string]any, key string) []int {
	switch v := m[key].(type) {
	case []int:
		return v
	case []any:
		out := make([]int, 0, len(v))
		for _, item := range v {
			switch n := item.(type) {
			case int:
				out = append(out, n)
			case int64:
				out = append(out, int(n))
			case float64:
				out = append(out, int(n))
			case string:
				i, _ := strconv.Atoi(n)
				out = append(out, i)
			}
		}
		return out
	}
	return nil
}

func getMap(m map[string]any, key string) map[string]any {
	switch v := m[key].(type) {
	case map[string]any:
		return v
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[fmt.Sprintf("%v", k)] = val
		}
		return out
	}
	return nil
}
