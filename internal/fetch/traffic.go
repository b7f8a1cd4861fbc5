package fetch

import (
	"fmt"
	"strconv"
	"strings"
)

// TrafficInfo mirrors the subscription-userinfo response header. All byte
// counts, Expire is a unix timestamp (0 when the provider sent none).
type TrafficInfo struct {
	Upload   int64
	Download int64
	Total    int64
	Expire   int64
}

// Used returns the consumed byte count.
func (t TrafficInfo) Used() int64 { return t.Upload + t.Download }

// Remaining returns the unused byte count, never negative.
func (t TrafficInfo) Remaining() int64 {
	if r := t.Total - t.Used(); r > 0 {
		return r
	}
	return 0
}

// IsZero reports whether the provider sent no usable traffic data.
func (t TrafficInfo) IsZero() bool {
	return t.Upload == 0 && t.Download == 0 && t.Total == 0 && t.Expire == 0
}

// Header renders the info back into subscription-userinfo form.
func (t TrafficInfo) Header() string {
	s := fmt.Sprintf("upload=%d; download=%d; total=%d", t.Upload, t.Download, t.Total)
	if t.Expire > 0 {
		s += fmt.Sprintf("; expire=%d", t.Expire)
	}
	return s
}

// ParseTrafficInfo parses a subscription-userinfo header value, e.g.
// "upload=455727941; download=6174315083; total=1073741824000; expire=1862111790".
// Unknown keys and malformed numbers are ignored.
func ParseTrafficInfo(header string) TrafficInfo {
	var info TrafficInfo
	for _, part := range strings.Split(header, ";") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		// some providers send floats here
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			continue
		}
		n := int64(f)
		switch strings.TrimSpace(key) {
		case "upload":
			info.Upload = n
		case "download":
			info.Download = n
		case "total":
			info.Total = n
		case "expire":
			info.Expire = n
		}
	}
	return info
}
