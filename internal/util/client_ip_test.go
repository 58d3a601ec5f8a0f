package util

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
)

func TestClientIPHonorsTrustedProxies(t *testing.T) {
	trusted, err := NewTrustedProxies([]string{"10.0.0.0/8", " 192.168.1.10 ", ""})
	if err != nil {
		t.Fatalf("trusted proxies: %v", err)
	}

	cases := map[string]struct {
		peer    string
		headers map[string]string
		trusted *TrustedProxies
		want    string
	}{
		"untrusted peer keeps its own address": {
			peer:    "198.51.100.10:4431",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.5", "X-Real-IP": "203.0.113.6"},
			trusted: trusted,
			want:    "198.51.100.10",
		},
		"no allowlist ignores headers": {
			peer:    "10.0.0.20:4431",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.5"},
			want:    "10.0.0.20",
		},
		"rightmost untrusted hop wins": {
			peer:    "10.0.0.20:4431",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.1, 203.0.113.5, 10.2.3.4"},
			trusted: trusted,
			want:    "203.0.113.5",
		},
		"real ip fallback": {
			peer:    "192.168.1.10:4431",
			headers: map[string]string{"X-Forwarded-For": "garbage", "X-Real-IP": "203.0.113.7"},
			trusted: trusted,
			want:    "203.0.113.7",
		},
		"fully trusted chain returns the origin": {
			peer:    "10.0.0.20:4431",
			headers: map[string]string{"X-Forwarded-For": "10.0.0.5, 10.0.0.10"},
			trusted: trusted,
			want:    "10.0.0.5",
		},
		"ipv4 mapped peer is unmapped": {
			peer:    "[::ffff:10.0.0.20]:4431",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.9"},
			trusted: trusted,
			want:    "203.0.113.9",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/users/login", nil)
			req.RemoteAddr = tc.peer
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req, tc.trusted); got != tc.want {
				t.Fatalf("ClientIP = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewTrustedProxiesRejectsGarbage(t *testing.T) {
	if _, err := NewTrustedProxies([]string{"10.0.0.0/33"}); err == nil {
		t.Fatalf("expected invalid prefix error")
	}
	if _, err := NewTrustedProxies([]string{"proxy.internal"}); err == nil {
		t.Fatalf("expected invalid address error")
	}
	set, err := NewTrustedProxies(nil)
	if err != nil || set != nil {
		t.Fatalf("empty input should trust nobody, got %v %v", set, err)
	}
	if set.Contains(netip.MustParseAddr("10.0.0.1")) {
		t.Fatalf("nil set must not contain anything")
	}
}
