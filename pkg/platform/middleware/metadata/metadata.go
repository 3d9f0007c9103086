package metadata

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"certify/pkg/requestcontext"
)

const unknownIP = "unknown"

// Resolver works out the caller's IP. Forwarding headers are client supplied,
// so they are only read when the socket peer is one of the trusted proxies.
type Resolver struct {
	trusted []netip.Prefix
}

// NewResolver trusts forwarding headers from peers inside the given prefixes.
// With none, the socket peer is always the client.
func NewResolver(trusted ...netip.Prefix) *Resolver {
	return &Resolver{trusted: trusted}
}

// ParseTrustedProxies accepts CIDRs ("10.0.0.0/8") and bare addresses.
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", entry, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", entry, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// Middleware stores the caller's IP and User-Agent on the request context.
// The public rate limiter keys on the stored IP, so mount it before the limiter.
func (res *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), res.ClientIP(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIP returns the socket peer unless it is a trusted proxy. Behind a
// trusted proxy it walks X-Forwarded-For from the right and returns the first
// hop that is not itself trusted, falling back to X-Real-IP.
func (res *Resolver) ClientIP(r *http.Request) string {
	peer, ok := remoteAddr(r.RemoteAddr)
	if !ok {
		return unknownIP
	}
	if !res.isTrusted(peer) {
		return peer.String()
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, ok := parseIP(hops[i])
			if !ok {
				break
			}
			if !res.isTrusted(hop) {
				return hop.String()
			}
		}
	}
	if xri, ok := parseIP(r.Header.Get("X-Real-IP")); ok {
		return xri.String()
	}
	return peer.String()
}

func (res *Resolver) isTrusted(addr netip.Addr) bool {
	for _, p := range res.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientMetadata is the resolver middleware with no trusted proxies.
func ClientMetadata(next http.Handler) http.Handler {
	return NewResolver().Middleware(next)
}

func GetClientIP(r *http.Request) string {
	return requestcontext.ClientIP(r.Context())
}

// ClientIPFromRequest resolves the socket peer, ignoring forwarding headers.
func ClientIPFromRequest(r *http.Request) string {
	return NewResolver().ClientIP(r)
}

func remoteAddr(raw string) (netip.Addr, bool) {
	host := raw
	if h, _, err := net.SplitHostPort(raw); err == nil {
		host = h
	}
	return parseIP(host)
}

func parseIP(raw string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
