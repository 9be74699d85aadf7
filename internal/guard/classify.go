// Package guard decides whether an outbound fetch target is safe to contact.
// It classifies IP addresses against the trust boundary, resolves hostnames,
// and validates candidate URLs into verdicts the fetcher can act on.
package guard

import "net/netip"

// Tag classifies an IP address relative to the trust boundary.
// Every tag except TagPublic is disallowed for outbound fetches.
type Tag string

const (
	TagPublic      Tag = "public"
	TagPrivate     Tag = "private"
	TagLoopback    Tag = "loopback"
	TagLinkLocal   Tag = "link-local"
	TagMulticast   Tag = "multicast"
	TagUnspecified Tag = "unspecified"
	TagReserved    Tag = "reserved"
)

// Disallowed reports whether an address with this tag must not be contacted.
func (t Tag) Disallowed() bool {
	return t != TagPublic
}

// reservedPrefixes covers special-purpose ranges that the netip predicates do
// not catch: "this network", CGNAT, IETF protocol assignments, the TEST-NETs,
// benchmarking, class E / broadcast, and the IPv6 documentation prefix.
var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("2001:db8::/32"),
}

// Classify tags an IP address. Pure and deterministic; no network access.
//
// IPv4-mapped IPv6 addresses are unwrapped before classification so that
// ::ffff:192.168.1.1 classifies identically to 192.168.1.1 — otherwise an
// attacker could smuggle a private IPv4 address past an IPv6-unaware check.
//
// This function is the single source of truth for "reachable only from inside
// the trust boundary"; the validator and the fetcher's connect-time re-check
// both defer to it.
func Classify(addr netip.Addr) Tag {
	addr = addr.Unmap()

	switch {
	case !addr.IsValid():
		return TagReserved
	case addr.IsUnspecified():
		return TagUnspecified
	case addr.IsLoopback():
		return TagLoopback
	case addr.IsMulticast():
		// Includes link-local multicast; multicast is never a fetch target.
		return TagMulticast
	case addr.IsLinkLocalUnicast():
		// 169.254.0.0/16 and fe80::/10, covering cloud metadata endpoints
		// such as 169.254.169.254.
		return TagLinkLocal
	case addr.IsPrivate():
		// RFC 1918 and IPv6 unique-local fc00::/7.
		return TagPrivate
	}

	for _, prefix := range reservedPrefixes {
		if prefix.Contains(addr) {
			return TagReserved
		}
	}

	if !addr.IsGlobalUnicast() {
		return TagReserved
	}
	return TagPublic
}

// ResolvedAddress pairs an IP address with its classification tag.
// Computed fresh per validation call and never persisted.
type ResolvedAddress struct {
	Addr netip.Addr
	Tag  Tag
}

// ClassifyAll classifies every address in the list.
func ClassifyAll(addrs []netip.Addr) []ResolvedAddress {
	resolved := make([]ResolvedAddress, 0, len(addrs))
	for _, addr := range addrs {
		resolved = append(resolved, ResolvedAddress{Addr: addr.Unmap(), Tag: Classify(addr)})
	}
	return resolved
}
