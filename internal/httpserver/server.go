package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/automatable/automatable-website/internal/httpmw"
	"github.com/automatable/automatable-website/internal/log"
	"github.com/automatable/automatable-website/internal/xerrors"
)

// RequestIDHeader is read from and echoed to every response.
const RequestIDHeader = httpmw.DefaultRequestIDHeader

// NewHandler builds the public handler: routes wrapped in the middleware
// stack. main() owns *http.Server so it can do graceful shutdown.
func NewHandler(opts *Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}

	r := chi.NewRouter()

	// Compress text responses (HTML/CSS/JS/JSON/SVG)
	r.Use(middleware.Compress(5,
		"text/html",
		"text/css",
		"application/javascript",
		"text/javascript",
		"application/json",
		"application/manifest+json",
		"image/svg+xml",
	))

	// Rename the span and scope the logger to the chi route pattern
	r.Use(httpmw.AnnotateHTTPRoute)

	r.Use(httpmw.AccessLog(httpmw.AccessLogOptions{
		SkipStaticAssets: true,
		SkipPaths:        opts.AccessLogSkip,
	}))

	r.Use(httpmw.MaxBody(1024)) // the site takes no request bodies

	if opts.Routes != nil {
		opts.Routes(r)
	}

	var h http.Handler = r

	// Request-scoped logging (inner so it sees trace_id, etc)
	h = httpmw.WithLogger(logger)(h)

	if opts.MetricsMW != nil {
		h = opts.MetricsMW(h)
	}

	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)

	healthPath := ""
	if opts.Gate != nil {
		healthPath = opts.Gate.Path()
	}
	h = otelhttp.NewHandler(
		h,
		"http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return shouldTrace(r.URL.Path, healthPath)
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			// AnnotateHTTPRoute renames the span to the route pattern
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(*http.Request) bool { return true }),
	)

	if opts.RateLimitMW != nil {
		h = opts.RateLimitMW(h)
	}

	h = httpmw.AllowedHosts(opts.AllowedHosts)(h)

	// Client IP resolution strips X-Forwarded-For from untrusted peers, so
	// it has to run after the gate has classified the caller.
	h = httpmw.ClientIP(opts.ClientIPOpts)(h)

	if opts.Gate != nil {
		h = opts.Gate.Middleware(h)
	}

	// Base logger for everything ahead of WithLogger (the gate logs denials)
	h = requestLogger(logger)(h)

	// Request ID (outer so everything downstream sees it)
	h = httpmw.RequestID(RequestIDHeader)(h)

	if opts.UseRecoverMW {
		h = httpmw.Recover(logger, opts.OnPanic)(h)
	}

	// Security headers outermost so every response carries them
	h = httpmw.SecurityHeaders(opts.Debug)(h)

	return h
}

func requestLogger(base log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			l := base.With("request_id", httpmw.RequestIDFromContext(ctx))
			next.ServeHTTP(w, r.WithContext(log.WithContext(ctx, l)))
		})
	}
}

func shouldTrace(p, healthPath string) bool {
	if healthPath != "" && p == healthPath {
		return false
	}
	if p == "/favicon.ico" || p == "/robots.txt" || strings.HasPrefix(p, "/__reload__/") {
		return false
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".css", ".js", ".png", ".jpg", ".jpeg", ".webp", ".svg", ".ico", ".woff", ".woff2", ".map", ".webmanifest":
		return false
	}
	return true
}

// Server timeout defaults, shared with opshttp.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start listens on opts.Port and serves NewHandler(opts) in the background.
// Returns stop(ctx) for graceful shutdown; stop is safe to call repeatedly.
func Start(ctx context.Context, opts *Options) (func(context.Context) error, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	port := opts.Port
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf(":%d", port)

	srv := NewServer(addr, NewHandler(opts))

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp4", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "listen %s", addr)
	}

	go func() {
		logger.Info(ctx, "http server listening", "addr", addr)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			logger.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
