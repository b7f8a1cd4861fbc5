package subserve

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"submerge/internal/link"
	"submerge/internal/node"
	"submerge/internal/template"
)

// Request carries everything needed to produce one /sub response. The
// node list is already allocation-filtered and includes any traffic
// info rows at its head.
type Request struct {
	Format   Format
	Nodes    []node.Node
	Template string
	Name     string
	Filename string
	Totals   Totals
}

// Response is the finished body plus the headers the client expects.
type Response struct {
	Body        []byte
	ContentType string
	Disposition string
	Title       string
	UserInfo    string
}

// Build renders the subscription in the negotiated format.
func Build(req Request) (Response, error) {
	resp := Response{
		Title:    url.PathEscape(req.Name),
		UserInfo: req.Totals.Header(),
	}

	switch req.Format {
	case FormatBase64:
		resp.Body = []byte(link.EncodeBase64(req.Nodes))
		resp.ContentType = "text/plain; charset=utf-8"
		resp.Disposition = fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(req.Name))
		return resp, nil
	default:
		rendered, err := template.Render(req.Template, req.Nodes)
		if err != nil {
			return Response{}, err
		}
		body, err := template.SetName(rendered, req.Name)
		if err != nil {
			return Response{}, err
		}
		resp.Body = []byte(body)
		resp.ContentType = "text/yaml; charset=utf-8"
		resp.Disposition = fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(safeFilename(req.Name, req.Filename)))
		return resp, nil
	}
}

// safeFilename keeps letters, digits, CJK and a few separators from
// the profile name, falling back to the configured filename.
func safeFilename(name, fallback string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '_' || r == '-':
			b.WriteRune(r)
		}
	}
	safe := strings.TrimSpace(b.String())
	if safe == "" {
		safe = strings.TrimSuffix(strings.TrimSuffix(fallback, ".yaml"), ".yml")
	}
	if safe == "" {
		safe = "config"
	}
	return safe
}
