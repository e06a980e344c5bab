// Package network resolves the client address of a request.
//
// Forwarding headers are attacker-controlled unless the request came through
// a proxy we run, so they are only read when the direct peer is listed in
// TrustedProxies.
package network

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Unknown is returned when no address can be determined.
const Unknown = "unknown"

// TrustedProxies is a set of CIDR ranges whose forwarding headers are honored.
// The zero value (and nil) trusts nobody.
type TrustedProxies struct {
	prefixes []netip.Prefix
}

// ParseTrustedProxies parses CIDRs or bare addresses ("10.0.0.0/8",
// "127.0.0.1"). Empty entries are skipped.
func ParseTrustedProxies(entries []string) (*TrustedProxies, error) {
	tp := &TrustedProxies{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
			}
			tp.prefixes = append(tp.prefixes, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
		}
		a = a.Unmap()
		tp.prefixes = append(tp.prefixes, netip.PrefixFrom(a, a.BitLen()))
	}
	return tp, nil
}

// Len returns the number of configured ranges.
func (tp *TrustedProxies) Len() int {
	if tp == nil {
		return 0
	}
	return len(tp.prefixes)
}

// Contains reports whether ip (textual) is inside a trusted range.
func (tp *TrustedProxies) Contains(ip string) bool {
	if tp == nil || len(tp.prefixes) == 0 {
		return false
	}
	a, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	a = a.Unmap()
	for _, p := range tp.prefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// ClientIP returns the client address for r.
//
// When the peer is a trusted proxy, X-Forwarded-For is walked from the right,
// skipping trusted hops, and the first untrusted address wins; X-Real-IP is
// used when X-Forwarded-For is absent. Otherwise the peer address is returned.
func ClientIP(r *http.Request, tp *TrustedProxies) string {
	peer := PeerIP(r)
	if peer == "" {
		return Unknown
	}
	if !tp.Contains(peer) {
		return peer
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if _, err := netip.ParseAddr(hop); err != nil {
				// Garbage in the chain: stop trusting anything to its left.
				return peer
			}
			if !tp.Contains(hop) {
				return hop
			}
		}
		// Every hop is trusted; the left-most is the best we know.
		return strings.TrimSpace(hops[0])
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if _, err := netip.ParseAddr(xri); err == nil {
			return xri
		}
	}
	return peer
}

// PeerIP returns the direct peer address from RemoteAddr without the port.
func PeerIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}
