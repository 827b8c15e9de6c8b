// Package httpmw provides HTTP middleware for the public-facing server.
//
// httpserver.NewHandler composes it in this order: security headers,
// recover, request ID, probe gatekeeper (probegate), client IP extraction,
// allowed hosts, rate limiting, OTEL tracing, trace headers, metrics,
// structured logging, then the chi router.
//
// The gatekeeper sits ahead of ClientIP on purpose: ClientIP strips
// forwarded headers from untrusted peers and the gatekeeper must see them
// as sent.
//
// User-supplied data (query params, user-agent, headers) is kept out of
// logs.
package httpmw
