package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Failure reasons reported by Fetch.
const (
	ReasonUnreachable = "unreachable"
	ReasonTimeout     = "timeout"
	ReasonEmpty       = "empty"
	ReasonStatus      = "status"
	ReasonTooLarge    = "too_large"
)

const (
	// DefaultUserAgent is sent when a subscription has no UA override.
	// Many airports only attach traffic headers for clash-like agents.
	DefaultUserAgent = "clash-meta/2.4.0"

	defaultTimeout = 15 * time.Second
	maxRedirects   = 5
	maxBodyBytes   = 8 << 20
)

// Error describes a failed subscription download.
type Error struct {
	URL    string
	Reason string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: %s (http %d)", e.URL, e.Reason, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Result is the raw outcome of one subscription download.
type Result struct {
	Body    []byte
	Traffic TrafficInfo
}

// Fetch downloads a subscription document. The context bounds the whole
// request; without a deadline a 15s default applies.
func Fetch(ctx context.Context, rawURL, userAgent string) (Result, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{}, &Error{URL: rawURL, Reason: ReasonUnreachable, Err: err}
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.New("too many redirects")
			}
			return nil
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{}, &Error{URL: rawURL, Reason: classify(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &Error{URL: rawURL, Reason: ReasonStatus, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return Result{}, &Error{URL: rawURL, Reason: classify(err), Err: err}
	}
	if len(body) > maxBodyBytes {
		return Result{}, &Error{URL: rawURL, Reason: ReasonTooLarge}
	}
	if len(body) == 0 {
		return Result{}, &Error{URL: rawURL, Reason: ReasonEmpty}
	}

	return Result{
		Body:    body,
		Traffic: ParseTrafficInfo(resp.Header.Get("subscription-userinfo")),
	}, nil
}

func classify(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return ReasonUnreachable
}
