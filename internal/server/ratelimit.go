package server

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// Idle limiters are forgotten after limiterTTL
const (
	limiterTTL     = 10 * time.Minute
	limiterCleanup = 5 * time.Minute
)

// rateLimiter hands out one token bucket per client and route. Buckets refill
// evenly over a minute and allow a burst of the full per-minute budget.
type rateLimiter struct {
	mu      sync.Mutex
	buckets *gocache.Cache
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{
		buckets: gocache.New(limiterTTL, limiterCleanup),
	}
}

// allow reports whether client may call route, given perMinute requests per
// minute. A non-positive budget disables limiting.
func (l *rateLimiter) allow(route, client string, perMinute int) bool {
	if perMinute <= 0 {
		return true
	}
	return l.limiter(route+"|"+client, perMinute).Allow()
}

func (l *rateLimiter) limiter(key string, perMinute int) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, found := l.buckets.Get(key); found {
		if lim, ok := v.(*rate.Limiter); ok {
			// Refresh expiry so active clients keep their bucket
			l.buckets.SetDefault(key, lim)
			return lim
		}
	}

	lim := rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
	l.buckets.SetDefault(key, lim)
	return lim
}

// clientKey identifies the caller by the address resolved by realIP
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// forwardedClient returns the client address reported by a trusted proxy,
// or "" when the peer is not trusted or sent no usable header. The
// X-Forwarded-For chain is read right to left and the first hop outside the
// trusted ranges wins.
func forwardedClient(r *http.Request, trusted []netip.Prefix) string {
	if len(trusted) == 0 {
		return ""
	}
	peer, ok := parseAddr(r.RemoteAddr)
	if !ok || !isTrusted(peer, trusted) {
		return ""
	}

	var hops []string
	for _, header := range r.Header.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(header, ",")...)
	}
	var leftmost string
	for i := len(hops) - 1; i >= 0; i-- {
		addr, ok := parseAddr(strings.TrimSpace(hops[i]))
		if !ok {
			break
		}
		leftmost = addr.String()
		if !isTrusted(addr, trusted) {
			return leftmost
		}
	}
	if leftmost != "" {
		return leftmost
	}

	if addr, ok := parseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ok {
		return addr.String()
	}
	return ""
}

// parseAddr accepts "ip" or "ip:port"
func parseAddr(s string) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap(), true
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
