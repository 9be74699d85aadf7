package guard

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"
)

// Resolver resolves a hostname to the full set of addresses it maps to.
// It exists as an interface so tests can substitute a scripted resolver and
// exercise rebinding scenarios deterministically.
type Resolver interface {
	LookupAddrs(ctx context.Context, hostname string) ([]netip.Addr, error)
}

// netResolver is the production Resolver backed by the system resolver.
type netResolver struct {
	resolver *net.Resolver
	timeout  time.Duration
}

// NewResolver returns a Resolver that uses the default system resolver with
// a bounded per-lookup timeout.
func NewResolver(timeout time.Duration) Resolver {
	return &netResolver{resolver: net.DefaultResolver, timeout: timeout}
}

// LookupAddrs returns all A and AAAA answers for hostname.
// A lookup that errors or returns no addresses fails; the caller treats that
// as "not allowed" — never fail open.
func (r *netResolver) LookupAddrs(ctx context.Context, hostname string) ([]netip.Addr, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	addrs, err := r.resolver.LookupNetIP(ctx, "ip", hostname)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", hostname, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("lookup %s: no addresses", hostname)
	}

	out := make([]netip.Addr, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, addr.Unmap())
	}
	return out, nil
}
