package common

import (
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the caller address without its port. Forwarding headers are
// not read here; the API mounts chi's RealIP middleware, which rewrites
// RemoteAddr from X-Forwarded-For or X-Real-IP before any handler runs.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if ap, err := netip.ParseAddrPort(addr); err == nil {
		return ap.Addr().Unmap().String()
	}
	if a, err := netip.ParseAddr(addr); err == nil {
		return a.Unmap().String()
	}
	return addr
}
