package probegate

import (
	"net/http"

	"github.com/automatable/automatable-website/internal/health"
	"github.com/automatable/automatable-website/internal/log"
)

// DefaultPath is the health path served when none is configured.
const DefaultPath = "/health/"

// Gate is the probe gatekeeper middleware. It holds no per-request state
// and is safe for concurrent use.
type Gate struct {
	path     string
	debug    bool
	reporter health.Reporter
	notFound http.Handler

	// OnDecision is called with every classification on the health path.
	OnDecision func(Decision)
	// OnVerdict is called with every verdict written to an allowed caller.
	OnVerdict func(health.Report)
}

type Option func(*Gate)

// WithPath sets the guarded path. Matching is exact.
func WithPath(p string) Option {
	return func(g *Gate) {
		if p != "" {
			g.path = p
		}
	}
}

// WithDebug opens the endpoint to every caller.
func WithDebug(debug bool) Option {
	return func(g *Gate) { g.debug = debug }
}

// WithReporter sets the verdict source. The default is health.Static().
func WithReporter(r health.Reporter) Option {
	return func(g *Gate) {
		if r != nil {
			g.reporter = r
		}
	}
}

// WithNotFound sets the handler used for denied callers. Pass the router's
// not-found handler so a denial is indistinguishable from an unknown path.
func WithNotFound(h http.Handler) Option {
	return func(g *Gate) {
		if h != nil {
			g.notFound = h
		}
	}
}

// WithOnDecision sets a callback for every classification.
func WithOnDecision(fn func(Decision)) Option {
	return func(g *Gate) { g.OnDecision = fn }
}

// WithOnVerdict sets a callback for every verdict served.
func WithOnVerdict(fn func(health.Report)) Option {
	return func(g *Gate) { g.OnVerdict = fn }
}

func New(opts ...Option) *Gate {
	g := &Gate{
		path:     DefaultPath,
		reporter: health.Static(),
		notFound: http.NotFoundHandler(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Path returns the guarded path.
func (g *Gate) Path() string { return g.path }

// Middleware short-circuits the health path and passes everything else to next.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != g.path {
			next.ServeHTTP(w, r)
			return
		}
		g.ServeHTTP(w, r)
	})
}

// ServeHTTP classifies the caller and answers the health path.
func (g *Gate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d := Classify(RequestFrom(r), g.debug)
	if g.OnDecision != nil {
		g.OnDecision(d)
	}

	if !d.Allowed {
		// forwarded tokens are caller supplied, keep them out of logs
		log.FromContext(ctx).Debug(ctx, "health check denied")
		g.notFound.ServeHTTP(w, r)
		return
	}

	rep := g.reporter.Report(ctx)
	if g.OnVerdict != nil {
		g.OnVerdict(rep)
	}
	health.WriteReport(w, r, rep)
}
