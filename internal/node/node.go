package node

// Protocol identifies the proxy protocol a node speaks.
type Protocol string

const (
	ProtocolVMess        Protocol = "vmess"
	ProtocolVLESS        Protocol = "vless"
	ProtocolShadowsocks  Protocol = "ss"
	ProtocolShadowsocksR Protocol = "ssr"
	ProtocolTrojan       Protocol = "trojan"
	ProtocolHysteria     Protocol = "hysteria"
	ProtocolHysteria2    Protocol = "hysteria2"
	ProtocolTUIC         Protocol = "tuic"
	ProtocolWireGuard    Protocol = "wireguard"
	ProtocolSocks5       Protocol = "socks5"
	ProtocolHTTP         Protocol = "http"
)

// Options holds the protocol-specific part of a node. Exactly one concrete
// option type corresponds to each Protocol value.
type Options interface {
	Protocol() Protocol
}

// Node is the canonical proxy record used across the whole service. The
// shared endpoint fields live here, everything else is behind Opts.
type Node struct {
	ID     string
	Name   string
	Server string
	Port   int
	Opts   Options
}

// Protocol returns the protocol of the node's options, or empty when the
// node carries none.
func (n Node) Protocol() Protocol {
	if n.Opts == nil {
		return ""
	}
	return n.Opts.Protocol()
}

// Transport describes stream transport settings shared by vmess, vless and
// trojan. Network is one of tcp, ws, grpc, h2, xhttp.
type Transport struct {
	Network     string
	Path        string
	Host        string
	ServiceName string
}

// TLSConfig captures the TLS-related knobs common to several protocols.
type TLSConfig struct {
	Enabled        bool
	SNI            string
	ALPN           []string
	Fingerprint    string
	SkipCertVerify bool
}

type VMessOpts struct {
	UUID      string
	AlterID   int
	Cipher    string
	Transport Transport
	TLS       TLSConfig
}

func (VMessOpts) Protocol() Protocol { return ProtocolVMess }

// RealityConfig holds the REALITY handshake parameters for vless.
type RealityConfig struct {
	PublicKey string
	ShortID   string
	SpiderX   string
}

type VLESSOpts struct {
	UUID      string
	Flow      string
	Transport Transport
	TLS       TLSConfig
	Reality   *RealityConfig
}

func (VLESSOpts) Protocol() Protocol { return ProtocolVLESS }

type ShadowsocksOpts struct {
	Cipher     string
	Password   string
	Plugin     string
	PluginOpts map[string]any
}

func (ShadowsocksOpts) Protocol() Protocol { return ProtocolShadowsocks }

type ShadowsocksROpts struct {
	Cipher        string
	Password      string
	Obfs          string
	ObfsParam     string
	ProtocolName  string
	ProtocolParam string
}

func (ShadowsocksROpts) Protocol() Protocol { return ProtocolShadowsocksR }

type TrojanOpts struct {
	Password  string
	Transport Transport
	TLS       TLSConfig
}

func (TrojanOpts) Protocol() Protocol { return ProtocolTrojan }

type HysteriaOpts struct {
	Auth      string
	Obfs      string
	Transport string // udp or faketcp
	UpMbps    string
	DownMbps  string
	TLS       TLSConfig
}

func (HysteriaOpts) Protocol() Protocol { return ProtocolHysteria }

type Hysteria2Opts struct {
	Password     string
	Obfs         string
	ObfsPassword string
	TLS          TLSConfig
}

func (Hysteria2Opts) Protocol() Protocol { return ProtocolHysteria2 }

type TUICOpts struct {
	UUID              string
	Password          string
	CongestionControl string
	UDPRelayMode      string
	TLS               TLSConfig
}

func (TUICOpts) Protocol() Protocol { return ProtocolTUIC }

type WireGuardOpts struct {
	PrivateKey string
	PublicKey  string
	IP         string
	IPv6       string
	Reserved   []int
	MTU        int
	AllowedIPs []string
}

func (WireGuardOpts) Protocol() Protocol { return ProtocolWireGuard }

type Socks5Opts struct {
	Username string
	Password string
	TLS      TLSConfig
}

func (Socks5Opts) Protocol() Protocol { return ProtocolSocks5 }

type HTTPOpts struct {
	Username string
	Password string
	TLS      TLSConfig
}

func (HTTPOpts) Protocol() Protocol { return ProtocolHTTP }

// AllNodesMarker is the sentinel recognized inside proxy-group member lists.
// The renderer replaces it with the full merged node name list. It is matched
// by type, never by comparing group member strings.
type AllNodesMarker struct{}

// AllNodesPlaceholder is the literal used for the marker when a template is
// stored or transmitted as plain YAML text.
const AllNodesPlaceholder = "__ALL_PROXIES__"
