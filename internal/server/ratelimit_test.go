package server

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForwardedClient(t *testing.T) {
	trusted := []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("2001:db8::/32"),
	}

	tests := []struct {
		name     string
		peer     string
		xff      string
		realIP   string
		trusted  []netip.Prefix
		expected string
	}{
		{
			name:     "untrusted peer keeps its own address",
			peer:     "198.51.100.1:4444",
			xff:      "192.0.2.1",
			realIP:   "192.0.2.2",
			trusted:  trusted,
			expected: "",
		},
		{
			name:     "no trusted proxies configured",
			peer:     "10.0.0.1:443",
			xff:      "192.0.2.1",
			expected: "",
		},
		{
			name:     "single hop from trusted proxy",
			peer:     "10.0.0.1:443",
			xff:      "192.0.2.1",
			trusted:  trusted,
			expected: "192.0.2.1",
		},
		{
			name:     "spoofed leftmost entry is skipped",
			peer:     "10.0.0.1:443",
			xff:      "6.6.6.6, 192.0.2.1, 10.0.0.7",
			trusted:  trusted,
			expected: "192.0.2.1",
		},
		{
			name:     "all hops trusted",
			peer:     "10.0.0.1:443",
			xff:      "10.0.0.9, 10.0.0.7",
			trusted:  trusted,
			expected: "10.0.0.9",
		},
		{
			name:     "real ip header as fallback",
			peer:     "10.0.0.1:443",
			realIP:   "192.0.2.5",
			trusted:  trusted,
			expected: "192.0.2.5",
		},
		{
			name:     "garbage header ignored",
			peer:     "10.0.0.1:443",
			xff:      "not-an-ip",
			realIP:   "also-bad",
			trusted:  trusted,
			expected: "",
		},
		{
			name:     "ipv6 proxy",
			peer:     "[2001:db8::1]:443",
			xff:      "2001:db9::5",
			trusted:  trusted,
			expected: "2001:db9::5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.peer
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.expected, forwardedClient(req, tt.trusted))
		})
	}
}

func TestRateLimiterBudgets(t *testing.T) {
	l := newRateLimiter()

	assert.True(t, l.allow(RouteInfo, "192.0.2.1", 2))
	assert.True(t, l.allow(RouteInfo, "192.0.2.1", 2))
	assert.False(t, l.allow(RouteInfo, "192.0.2.1", 2))

	// Routes are counted separately
	assert.True(t, l.allow(RouteFile, "192.0.2.1", 2))

	// A zero budget disables limiting
	for i := 0; i < 100; i++ {
		assert.True(t, l.allow(RouteProgress, "192.0.2.1", 0))
	}
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", clientKey(req))

	req.RemoteAddr = "192.0.2.1"
	assert.Equal(t, "192.0.2.1", clientKey(req))
}
