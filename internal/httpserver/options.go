package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/automatable/automatable-website/internal/httpmw"
	"github.com/automatable/automatable-website/internal/log"
	"github.com/automatable/automatable-website/internal/probegate"
)

type Options struct {
	Logger log.Logger
	Port   int
	Debug  bool

	// Gate answers the health path ahead of client ip resolution and host
	// validation. Nil leaves the health path to the router.
	Gate *probegate.Gate

	// Routes mounts the public routes, NotFound and MethodNotAllowed included.
	Routes func(chi.Router)

	// AccessLog skips are applied in addition to static assets.
	AccessLogSkip []string

	AllowedHosts httpmw.AllowedHostsOptions
	ClientIPOpts httpmw.ClientIPOptions
	RateLimitMW  func(http.Handler) http.Handler
	MetricsMW    func(http.Handler) http.Handler

	UseRecoverMW bool
	OnPanic      func()
}
