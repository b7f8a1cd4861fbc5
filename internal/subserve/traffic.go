package subserve

import (
	"fmt"
	"time"

	"submerge/internal/node"
)

// SourceTraffic is the usage metadata of one subscription, as last
// reported by its provider.
type SourceTraffic struct {
	Name     string
	Upload   int64
	Download int64
	Total    int64
	Expire   int64
}

// Totals is the aggregated usage across every served subscription,
// emitted in the subscription-userinfo response header.
type Totals struct {
	Upload   int64
	Download int64
	Total    int64
	Expire   int64
}

// Header renders the subscription-userinfo header value.
func (t Totals) Header() string {
	return fmt.Sprintf("upload=%d; download=%d; total=%d; expire=%d", t.Upload, t.Download, t.Total, t.Expire)
}

// Aggregate sums traffic across sources. The expiry is the earliest
// one when every source expires, zero when any is open-ended.
func Aggregate(sources []SourceTraffic) Totals {
	var totals Totals
	allExpire := len(sources) > 0
	for _, s := range sources {
		totals.Upload += s.Upload
		totals.Download += s.Download
		totals.Total += s.Total
		if s.Expire <= 0 {
			allExpire = false
			continue
		}
		if totals.Expire == 0 || s.Expire < totals.Expire {
			totals.Expire = s.Expire
		}
	}
	if !allExpire {
		totals.Expire = 0
	}
	return totals
}

// InfoNodes builds the display-only rows that surface per-source
// traffic in client node lists. They are dummy http entries pointing
// nowhere; clients render their names and never connect.
func InfoNodes(sources []SourceTraffic) []node.Node {
	var out []node.Node

	totals := Aggregate(sources)
	used := totals.Upload + totals.Download
	if totals.Total > 0 {
		out = append(out, infoNode(fmt.Sprintf("总量 | %s/%s", formatBytes(used), formatBytes(totals.Total))))
	}

	for _, s := range sources {
		srcUsed := s.Upload + s.Download
		var name string
		if s.Total > 0 {
			name = fmt.Sprintf("%s | %s/%s | %s", s.Name, formatBytes(srcUsed), formatBytes(s.Total), formatExpire(s.Expire))
		} else {
			name = fmt.Sprintf("%s | %s", s.Name, formatExpire(s.Expire))
		}
		out = append(out, infoNode(name))
	}

	return out
}

func infoNode(name string) node.Node {
	return node.Node{
		Name:   name,
		Server: "1.0.0.1",
		Port:   65535,
		Opts:   node.HTTPOpts{},
	}
}

func formatBytes(b int64) string {
	if b <= 0 {
		return "0B"
	}
	units := []string{"B", "KB", "MB", "GB", "TB"}
	value := float64(b)
	for _, unit := range units {
		if value < 1024 {
			if value == float64(int64(value)) {
				return fmt.Sprintf("%d%s", int64(value), unit)
			}
			return fmt.Sprintf("%.1f%s", value, unit)
		}
		value /= 1024
	}
	return fmt.Sprintf("%.1fPB", value)
}

func formatExpire(ts int64) string {
	if ts <= 0 {
		return "长期"
	}
	return time.Unix(ts, 0).Format("2006-01-02")
}
