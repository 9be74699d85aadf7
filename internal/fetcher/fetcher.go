// Package fetcher performs the outbound HTTP request for an allowed verdict.
// It connects to the pinned, already-validated IP address rather than the
// hostname, closing the DNS-rebinding window between validation and connect.
package fetcher

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/fetchguard/fetchguard/internal/guard"
	"github.com/fetchguard/fetchguard/internal/types"
)

// Config holds the fetcher's immutable limits.
type Config struct {
	ConnectTimeout   time.Duration
	FetchTimeout     time.Duration
	MaxResponseBytes int64
	UserAgent        string
}

// Result is a completed fetch.
type Result struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	PinnedAddr  netip.Addr
}

// Fetcher executes validated fetches. Safe for concurrent use; every call
// builds its own transport so no connection state is shared between requests.
type Fetcher struct {
	cfg Config

	// dialGuard re-checks the pinned address at connection time. It defaults
	// to the classifier; tests targeting loopback listeners override it.
	dialGuard func(netip.Addr) error
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "fetchguard/1.0"
	}
	return &Fetcher{
		cfg:       cfg,
		dialGuard: classifyGuard,
	}
}

func classifyGuard(addr netip.Addr) error {
	if tag := guard.Classify(addr); tag.Disallowed() {
		return errors.Join(types.ErrDisallowedAddress,
			errors.New(addr.String()+" is "+string(tag)))
	}
	return nil
}

// Fetch performs a GET against the verdict's URL, dialing the pinned address.
//
// The request carries the original hostname (Host header and TLS SNI) while
// the TCP connection goes to the validated IP, so virtual hosting and
// certificate verification behave normally. Redirects are never followed;
// a 3xx response surfaces as a redirect_not_followed error carrying the new
// location, which the caller must re-submit through the validator.
func (f *Fetcher) Fetch(ctx context.Context, verdict guard.Verdict) (*Result, error) {
	if !verdict.Allowed || verdict.URL == nil {
		return nil, types.ErrVerdictNotAllowed
	}
	pinned, ok := verdict.PinnedAddr()
	if !ok {
		return nil, types.ErrVerdictStale
	}

	target := verdict.URL.String()
	port := verdict.URL.Port()
	if port == "" {
		if verdict.URL.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}

	dialer := &net.Dialer{Timeout: f.cfg.ConnectTimeout}
	transport := &http.Transport{
		// Ignore the address the client asks for; always dial the pinned IP.
		// The guard re-runs at connect time so a disallowed pin can never be
		// contacted even if a stale verdict slips through.
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			if err := f.dialGuard(pinned); err != nil {
				return nil, err
			}
			return dialer.DialContext(ctx, network, net.JoinHostPort(pinned.String(), port))
		},
		DisableKeepAlives: true,
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, types.NewConnectionError(target, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, types.NewTimeoutError(target, err)
		}
		return nil, types.NewConnectionError(target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return nil, types.NewRedirectError(target, resp.Header.Get("Location"))
	}

	// Read one byte past the cap so truncation is detectable without ever
	// buffering an unbounded body.
	limit := f.cfg.MaxResponseBytes
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		if isTimeout(err) {
			return nil, types.NewTimeoutError(target, err)
		}
		return nil, types.NewConnectionError(target, err)
	}
	if int64(len(body)) > limit {
		return nil, types.NewTooLargeError(target, limit)
	}

	return &Result{
		URL:         target,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		PinnedAddr:  pinned,
	}, nil
}

// isTimeout reports whether err is a deadline or timeout condition.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
