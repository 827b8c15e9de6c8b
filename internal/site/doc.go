// Package site serves the public pages: the home page rendered from an
// embedded template, embedded static assets, a debug-only reload endpoint
// and a not-found handler that sends every unknown path back home.
package site
