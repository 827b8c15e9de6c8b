package httpmw

import (
	"net"
	"net/http"
	"strings"
)

// AllowedHostsOptions configures Host header validation.
type AllowedHostsOptions struct {
	// Hosts lists accepted host names. A leading dot (".automatable.dev")
	// matches the domain and every subdomain; "*" accepts anything.
	Hosts []string
	// Debug additionally accepts .localhost (with subdomains), 127.0.0.1
	// and [::1] when Hosts is empty.
	Debug bool
	// OnReject is called for every rejected request.
	OnReject func()
}

// AllowedHosts answers 400 Bad Request when the Host header matches none of
// the configured hosts.
func AllowedHosts(opts AllowedHostsOptions) func(http.Handler) http.Handler {
	hosts := make([]string, 0, len(opts.Hosts)+3)
	for _, h := range opts.Hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts = append(hosts, h)
		}
	}
	if opts.Debug && len(hosts) == 0 {
		hosts = append(hosts, ".localhost", "127.0.0.1", "::1")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !HostAllowed(r.Host, hosts) {
				if opts.OnReject != nil {
					opts.OnReject()
				}
				http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HostAllowed reports whether host (optionally with a port) matches one of
// patterns. Patterns must be lower case.
func HostAllowed(host string, patterns []string) bool {
	name := strings.ToLower(host)
	if h, _, err := net.SplitHostPort(name); err == nil {
		name = h
	}
	name = strings.TrimSuffix(strings.Trim(name, "[]"), ".")
	if name == "" {
		return false
	}
	for _, p := range patterns {
		switch {
		case p == "*":
			return true
		case strings.HasPrefix(p, "."):
			if name == p[1:] || strings.HasSuffix(name, p) {
				return true
			}
		case name == p:
			return true
		}
	}
	return false
}
