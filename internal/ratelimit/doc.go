// Package ratelimit is per-IP token bucket middleware with background
// eviction of idle visitors.
//
// It is in-memory and single-instance: it stops one address from
// exhausting the server and makes abuse visible in logs and metrics. It
// does nothing against distributed floods or bandwidth attacks; those
// belong upstream.
package ratelimit
