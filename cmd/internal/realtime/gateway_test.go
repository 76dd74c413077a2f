package realtime

import (
	"net/http/httptest"
	"sort"
	"testing"
)

func TestEnforceOrigin(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		required bool
		allowed  []string
		origin   string
		wantErr  bool
	}{
		{
			name:     "missing origin rejected when required",
			required: true,
			allowed:  []string{"http://localhost:3000"},
			origin:   "",
			wantErr:  true,
		},
		{
			name:     "missing origin accepted when optional",
			required: false,
			allowed:  []string{"http://localhost:3000"},
			origin:   "",
			wantErr:  false,
		},
		{
			name:     "exact match accepted",
			required: true,
			allowed:  []string{"http://localhost:3000"},
			origin:   "http://localhost:3000",
			wantErr:  false,
		},
		{
			name:     "host match ignores scheme and port",
			required: true,
			allowed:  []string{"http://localhost:3000"},
			origin:   "https://localhost:8443",
			wantErr:  false,
		},
		{
			name:     "unlisted origin rejected",
			required: true,
			allowed:  []string{"http://localhost:3000"},
			origin:   "http://evil.example",
			wantErr:  true,
		},
		{
			name:     "present origin with empty allowlist rejected",
			required: false,
			allowed:  nil,
			origin:   "http://localhost:3000",
			wantErr:  true,
		},
		{
			name:     "wildcard honors everything",
			required: true,
			allowed:  []string{"*"},
			origin:   "http://anywhere.example",
			wantErr:  false,
		},
		{
			name:     "blank allowlist entries skipped",
			required: true,
			allowed:  []string{" ", "http://localhost:3000"},
			origin:   "http://localhost:3000",
			wantErr:  false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			g := NewGateway(testLogger(), GatewayDeps{}, GatewayConfig{
				OriginRequired: tc.required,
				AllowedOrigins: tc.allowed,
			})

			r := httptest.NewRequest("GET", "/ws/channels/general", nil)
			if tc.origin != "" {
				r.Header.Set("Origin", tc.origin)
			}

			err := g.enforceOrigin(r)
			if tc.wantErr && err == nil {
				t.Fatal("expected rejection, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected rejection: %v", err)
			}
		})
	}
}

func TestOriginHostOnly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"http://localhost:3000", "localhost"},
		{"https://Example.COM", "example.com"},
		{"localhost:8080", "localhost"},
		{"localhost", "localhost"},
		{"  http://localhost  ", "localhost"},
		{"", ""},
		{"http://[::1]:8080", "::1"},
	}

	for _, tc := range cases {
		if got := originHostOnly(tc.in); got != tc.want {
			t.Errorf("originHostOnly(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDeriveOriginPatterns(t *testing.T) {
	t.Parallel()

	got := deriveOriginPatterns([]string{
		"http://localhost:3000",
		"https://localhost:8443",
		"http://app.example.com",
		"",
	})
	sort.Strings(got)

	want := []string{"app.example.com", "localhost"}
	if len(got) != len(want) {
		t.Fatalf("patterns = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("patterns = %v, want %v", got, want)
		}
	}
}

func TestDeriveOriginPatternsWildcard(t *testing.T) {
	t.Parallel()

	got := deriveOriginPatterns([]string{"http://localhost:3000", " * "})
	if len(got) != 1 || got[0] != "*" {
		t.Fatalf("patterns = %v, want [*]", got)
	}
}

func TestGatewayEnforcesMinimumQueueSize(t *testing.T) {
	t.Parallel()

	g := NewGateway(testLogger(), GatewayDeps{}, GatewayConfig{SendQueueSize: 1})
	if g.cfg.SendQueueSize != minSendQueueSize {
		t.Fatalf("queue size = %d, want %d", g.cfg.SendQueueSize, minSendQueueSize)
	}

	g = NewGateway(testLogger(), GatewayDeps{}, GatewayConfig{})
	if g.cfg.SendQueueSize != 0 {
		t.Fatalf("zero queue size should stay 0 (session default), got %d", g.cfg.SendQueueSize)
	}
}
