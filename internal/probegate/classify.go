package probegate

import (
	"net"
	"net/http"
	"strings"
)

const (
	// KubeProbePrefix is the User-Agent prefix kubelet uses for probes.
	KubeProbePrefix = "kube-probe"
	// InternalAddressPrefix marks addresses on the cluster network.
	InternalAddressPrefix = "10."
)

// Reason records which rule decided a request.
type Reason string

const (
	ReasonDebug           Reason = "debug"
	ReasonKubeProbe       Reason = "kube-probe"
	ReasonInternalAddress Reason = "internal-address"
	ReasonDenied          Reason = "denied"
)

// Request holds the fields classification looks at.
type Request struct {
	UserAgent string
	// ForwardedFor is the raw X-Forwarded-For value, possibly several
	// comma separated hops.
	ForwardedFor string
	// RemoteAddr is the direct peer, with or without a port.
	RemoteAddr string
}

// RequestFrom extracts classification fields from r. Repeated
// X-Forwarded-For lines are joined in order, as a single header would be.
func RequestFrom(r *http.Request) Request {
	return Request{
		UserAgent:    r.Header.Get("User-Agent"),
		ForwardedFor: strings.Join(r.Header.Values("X-Forwarded-For"), ","),
		RemoteAddr:   r.RemoteAddr,
	}
}

// Decision is the outcome of Classify.
type Decision struct {
	Allowed bool
	Reason  Reason
	// ClientAddr is the effective address that was examined; empty when an
	// earlier rule matched.
	ClientAddr string
}

// Classify applies the rules in order; the first match wins. It is a pure
// function of its arguments.
func Classify(req Request, debug bool) Decision {
	if debug {
		return Decision{Allowed: true, Reason: ReasonDebug}
	}
	if strings.HasPrefix(req.UserAgent, KubeProbePrefix) {
		return Decision{Allowed: true, Reason: ReasonKubeProbe}
	}
	addr := EffectiveClientAddr(req.ForwardedFor, req.RemoteAddr)
	if addr != "" && strings.HasPrefix(addr, InternalAddressPrefix) {
		return Decision{Allowed: true, Reason: ReasonInternalAddress, ClientAddr: addr}
	}
	return Decision{Allowed: false, Reason: ReasonDenied, ClientAddr: addr}
}

// EffectiveClientAddr returns the rightmost X-Forwarded-For token, trimmed,
// when the header is non-empty, and the peer address without its port
// otherwise. A trailing empty token yields "".
func EffectiveClientAddr(forwardedFor, remoteAddr string) string {
	if forwardedFor != "" {
		last := forwardedFor
		if i := strings.LastIndexByte(forwardedFor, ','); i >= 0 {
			last = forwardedFor[i+1:]
		}
		return strings.TrimSpace(last)
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
