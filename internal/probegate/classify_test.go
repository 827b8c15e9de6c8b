package probegate

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		debug   bool
		allowed bool
		reason  Reason
	}{
		{
			name:    "debug allows external caller",
			req:     Request{UserAgent: "Mozilla/5.0", RemoteAddr: "203.0.113.1:51000"},
			debug:   true,
			allowed: true,
			reason:  ReasonDebug,
		},
		{
			name:    "kube-probe from public address",
			req:     Request{UserAgent: "kube-probe/1.27", RemoteAddr: "203.0.113.1:51000"},
			allowed: true,
			reason:  ReasonKubeProbe,
		},
		{
			name:    "kube-probe exact prefix only",
			req:     Request{UserAgent: "kube-probe", RemoteAddr: "198.51.100.7:80"},
			allowed: true,
			reason:  ReasonKubeProbe,
		},
		{
			name:    "kube-probe not at start",
			req:     Request{UserAgent: "Mozilla/5.0 kube-probe/1.27", RemoteAddr: "203.0.113.1:51000"},
			allowed: false,
			reason:  ReasonDenied,
		},
		{
			name:    "kube-probe prefix is case sensitive",
			req:     Request{UserAgent: "Kube-Probe/1.27", RemoteAddr: "203.0.113.1:51000"},
			allowed: false,
			reason:  ReasonDenied,
		},
		{
			name:    "internal peer with browser agent",
			req:     Request{UserAgent: "Mozilla/5.0", RemoteAddr: "10.0.0.1:43210"},
			allowed: true,
			reason:  ReasonInternalAddress,
		},
		{
			name:    "internal peer without port",
			req:     Request{RemoteAddr: "10.244.3.17"},
			allowed: true,
			reason:  ReasonInternalAddress,
		},
		{
			name:    "rightmost forwarded hop is internal",
			req:     Request{ForwardedFor: "1.2.3.4, 10.0.0.5", RemoteAddr: "203.0.113.1:51000"},
			allowed: true,
			reason:  ReasonInternalAddress,
		},
		{
			name:    "spoofed leftmost hop ignored",
			req:     Request{ForwardedFor: "10.0.0.5, 1.2.3.4", RemoteAddr: "10.0.0.9:51000"},
			allowed: false,
			reason:  ReasonDenied,
		},
		{
			name:    "forwarded header wins over internal peer",
			req:     Request{ForwardedFor: "203.0.113.1", RemoteAddr: "10.0.0.9:51000"},
			allowed: false,
			reason:  ReasonDenied,
		},
		{
			name:    "trailing empty forwarded token",
			req:     Request{ForwardedFor: "10.0.0.5, ", RemoteAddr: "10.0.0.9:51000"},
			allowed: false,
			reason:  ReasonDenied,
		},
		{
			name:    "prefix match is textual",
			req:     Request{RemoteAddr: "100.64.0.1:80"},
			allowed: false,
			reason:  ReasonDenied,
		},
		{
			name:    "external browser denied",
			req:     Request{UserAgent: "Mozilla/5.0", RemoteAddr: "203.0.113.1"},
			allowed: false,
			reason:  ReasonDenied,
		},
		{
			name:    "no fields at all",
			req:     Request{},
			allowed: false,
			reason:  ReasonDenied,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Classify(tt.req, tt.debug)
			if d.Allowed != tt.allowed {
				t.Fatalf("Allowed = %v, want %v (decision %+v)", d.Allowed, tt.allowed, d)
			}
			if d.Reason != tt.reason {
				t.Fatalf("Reason = %q, want %q", d.Reason, tt.reason)
			}
		})
	}
}

func TestClassify_Pure(t *testing.T) {
	req := Request{UserAgent: "curl/8", ForwardedFor: "1.2.3.4, 10.0.0.5", RemoteAddr: "203.0.113.1:1"}
	first := Classify(req, false)
	for i := 0; i < 10; i++ {
		if got := Classify(req, false); got != first {
			t.Fatalf("call %d = %+v, want %+v", i, got, first)
		}
	}
}

func TestEffectiveClientAddr(t *testing.T) {
	tests := []struct {
		xff, remote, want string
	}{
		{"1.2.3.4, 10.0.0.5", "203.0.113.1:1", "10.0.0.5"},
		{"  10.1.1.1  ", "203.0.113.1:1", "10.1.1.1"},
		{"1.2.3.4,5.6.7.8,9.9.9.9", "", "9.9.9.9"},
		{"", "10.0.0.1:8080", "10.0.0.1"},
		{"", "[fd00::1]:8080", "fd00::1"},
		{"", "10.0.0.1", "10.0.0.1"},
		{"", "", ""},
		{"1.2.3.4,", "10.0.0.1:1", ""},
	}
	for _, tt := range tests {
		if got := EffectiveClientAddr(tt.xff, tt.remote); got != tt.want {
			t.Errorf("EffectiveClientAddr(%q, %q) = %q, want %q", tt.xff, tt.remote, got, tt.want)
		}
	}
}

func TestRequestFrom_JoinsRepeatedForwardedFor(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/health/", nil)
	r.RemoteAddr = "203.0.113.1:1234"
	r.Header.Set("User-Agent", "kube-probe/1.29")
	r.Header.Add("X-Forwarded-For", "1.2.3.4")
	r.Header.Add("X-Forwarded-For", "10.0.0.5")

	req := RequestFrom(r)
	if req.UserAgent != "kube-probe/1.29" {
		t.Fatalf("UserAgent = %q", req.UserAgent)
	}
	if req.ForwardedFor != "1.2.3.4,10.0.0.5" {
		t.Fatalf("ForwardedFor = %q", req.ForwardedFor)
	}
	if req.RemoteAddr != "203.0.113.1:1234" {
		t.Fatalf("RemoteAddr = %q", req.RemoteAddr)
	}
	if got := EffectiveClientAddr(req.ForwardedFor, req.RemoteAddr); got != "10.0.0.5" {
		t.Fatalf("effective = %q", got)
	}
}
