package guard

import (
	"context"
	"net/netip"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/idna"

	"github.com/fetchguard/fetchguard/internal/types"
)

// Verdict is the outcome of validating a candidate URL.
// A verdict is consumed immediately by the fetcher and never reused across
// requests: DNS answers change, so a stale verdict must be recomputed.
type Verdict struct {
	Allowed   bool
	Reason    types.Reason
	Detail    string
	URL       *url.URL
	Hostname  string // normalized (lowercase, IDNA ASCII) hostname
	Addresses []ResolvedAddress
}

// PinnedAddr returns the address the fetcher should connect to.
func (v Verdict) PinnedAddr() (netip.Addr, bool) {
	if !v.Allowed || len(v.Addresses) == 0 {
		return netip.Addr{}, false
	}
	return v.Addresses[0].Addr, true
}

func rejected(reason types.Reason, detail string) Verdict {
	return Verdict{Allowed: false, Reason: reason, Detail: detail}
}

// Validator validates candidate URLs against the scheme policy, the hostname
// denylist, and the address classifier. Safe for concurrent use: all state is
// immutable after construction.
type Validator struct {
	resolver Resolver
	denylist map[string]struct{}
}

// NewValidator creates a Validator. The denied hostnames are matched
// case-insensitively and exactly.
func NewValidator(resolver Resolver, denied []string) *Validator {
	denylist := make(map[string]struct{}, len(denied))
	for _, host := range denied {
		denylist[strings.ToLower(strings.TrimSpace(host))] = struct{}{}
	}
	return &Validator{resolver: resolver, denylist: denylist}
}

// Validate runs the fail-closed validation pipeline over a raw URL.
// Cheap local checks (parse, scheme, denylist) run before any DNS traffic so
// obviously bad input costs nothing and cannot be used for reconnaissance.
func (v *Validator) Validate(ctx context.Context, rawURL string) Verdict {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rejected(types.ReasonInvalidURL, err.Error())
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return rejected(types.ReasonInvalidScheme, "scheme "+strconv.Quote(parsed.Scheme)+" is not allowed")
	}

	host := parsed.Hostname()
	if host == "" {
		return rejected(types.ReasonMissingHostname, "url has no hostname")
	}

	hostname, err := normalizeHostname(host)
	if err != nil {
		return rejected(types.ReasonInvalidURL, "hostname could not be normalized: "+err.Error())
	}

	if _, denied := v.denylist[hostname]; denied {
		return rejected(types.ReasonDeniedHostname, hostname+" is denylisted")
	}

	// Literal IPs are classified directly; no resolver round trip.
	if addr, ok := parseAddrLiteral(hostname); ok {
		resolved := ResolvedAddress{Addr: addr.Unmap(), Tag: Classify(addr)}
		if resolved.Tag.Disallowed() {
			return rejected(types.ReasonDisallowedAddress,
				resolved.Addr.String()+" is "+string(resolved.Tag))
		}
		return Verdict{
			Allowed:   true,
			URL:       parsed,
			Hostname:  hostname,
			Addresses: []ResolvedAddress{resolved},
		}
	}

	addrs, err := v.resolver.LookupAddrs(ctx, hostname)
	if err != nil {
		return rejected(types.ReasonUnresolvableHostname, err.Error())
	}

	// Every answer must be public. A name can resolve to multiple addresses,
	// one safe and one not, to slip past a check that samples only the first.
	resolved := ClassifyAll(addrs)
	for _, ra := range resolved {
		if ra.Tag.Disallowed() {
			return rejected(types.ReasonDisallowedAddress,
				hostname+" resolves to "+ra.Addr.String()+" ("+string(ra.Tag)+")")
		}
	}

	return Verdict{
		Allowed:   true,
		URL:       parsed,
		Hostname:  hostname,
		Addresses: resolved,
	}
}

// normalizeHostname lowercases the hostname and converts internationalized
// names to their ASCII (punycode) form, so denylist matching and resolution
// see one canonical spelling.
func normalizeHostname(host string) (string, error) {
	host = strings.ToLower(host)
	// Literal IPv6 hosts are not IDNA input.
	if strings.Contains(host, ":") {
		return host, nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		// Plain hostnames that trip IDNA's lookup profile (underscores and
		// the like) are kept as-is; resolution decides their fate.
		if isPlainHostname(host) {
			return host, nil
		}
		return "", err
	}
	return ascii, nil
}

func isPlainHostname(host string) bool {
	for _, r := range host {
		if r > 0x7f {
			return false
		}
	}
	return true
}

// parseAddrLiteral parses hostname as an IP literal, including the alternate
// IPv4 spellings attackers use to dodge string-based checks: a single decimal
// integer (2130706433 for 127.0.0.1), octal or hex octets (0177.0.0.1,
// 0x7f.0.0.1), and IPv6 zone suffixes.
func parseAddrLiteral(hostname string) (netip.Addr, bool) {
	trimmed := hostname
	if idx := strings.IndexByte(trimmed, '%'); idx != -1 {
		trimmed = trimmed[:idx]
	}

	if addr, err := netip.ParseAddr(trimmed); err == nil {
		return addr, true
	}

	// Single decimal integer form.
	if num, err := strconv.ParseUint(trimmed, 10, 32); err == nil {
		return netip.AddrFrom4([4]byte{byte(num >> 24), byte(num >> 16), byte(num >> 8), byte(num)}), true
	}

	// Dotted form with octal/hex/decimal octets.
	parts := strings.Split(trimmed, ".")
	if len(parts) == 4 {
		var octets [4]byte
		for i, part := range parts {
			val, err := parseOctet(part)
			if err != nil || val > 255 {
				return netip.Addr{}, false
			}
			octets[i] = byte(val)
		}
		return netip.AddrFrom4(octets), true
	}

	return netip.Addr{}, false
}

// parseOctet parses a decimal, octal (0-prefixed), or hex (0x-prefixed) octet.
func parseOctet(s string) (uint64, error) {
	switch {
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		return strconv.ParseUint(s[2:], 16, 64)
	case strings.HasPrefix(s, "0") && len(s) > 1:
		return strconv.ParseUint(s[1:], 8, 64)
	default:
		return strconv.ParseUint(s, 10, 64)
	}
}
