package opshttp

import (
	"net/http"

	"github.com/automatable/automatable-website/internal/health"
)

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	// Health backs /-/healthy (alias /healthz), Readiness backs /-/ready
	// (alias /readyz). Nil probes always pass.
	Health       health.Probe
	Readiness    health.Probe
	UseRecoverMW bool
	OnPanic      func() // called for every recovered panic, e.g. to bump a counter
}
