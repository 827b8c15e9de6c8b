// Package probegate answers the health endpoint for orchestration probes
// and hides it from everyone else.
//
// The gatekeeper sits in front of routing and host validation. For the one
// configured path it classifies the caller:
//
//  1. debug mode: allowed
//  2. User-Agent starting with "kube-probe": allowed
//  3. effective client address starting with "10.": allowed. The address is
//     the rightmost X-Forwarded-For token (the hop nearest to us, which
//     clients cannot spoof when proxies append) or the peer address when the
//     header is absent.
//  4. everyone else: denied
//
// Allowed callers get the configured health verdict as JSON. Denied callers
// get the not-found handler, the same one the router uses for unknown
// paths, so the endpoint's existence is not observable from outside.
// Requests for any other path are passed through untouched.
package probegate
