package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/automatable/automatable-website/internal/cfg"
	"github.com/automatable/automatable-website/internal/datastore"
	"github.com/automatable/automatable-website/internal/health"
	"github.com/automatable/automatable-website/internal/httpmw"
	"github.com/automatable/automatable-website/internal/httpserver"
	"github.com/automatable/automatable-website/internal/log"
	"github.com/automatable/automatable-website/internal/metrics"
	"github.com/automatable/automatable-website/internal/opshttp"
	"github.com/automatable/automatable-website/internal/otelx"
	"github.com/automatable/automatable-website/internal/probegate"
	"github.com/automatable/automatable-website/internal/prof"
	"github.com/automatable/automatable-website/internal/ratelimit"
	"github.com/automatable/automatable-website/internal/secrets"
	"github.com/automatable/automatable-website/internal/site"
	v "github.com/automatable/automatable-website/internal/version"
	"github.com/automatable/automatable-website/internal/webassets"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildID, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	// cli > env > file > default
	cli := cfg.CLIFlags(flag.CommandLine)
	if err := cfg.FillFromFile(flag.CommandLine, conf.ConfigFile, cli); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, cli, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lvl, _ := log.ParseLevel(conf.LogLevel) // checked by Validate
	lg, err := log.New(log.Options{
		App:           v.AppName,
		Version:       vi.Version,
		Level:         lvl,
		JSON:          conf.LogJSON,
		MaxErrorLinks: conf.MaxErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"commit_date", vi.CommitDate,
		"build_id", vi.BuildID,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"config_file", conf.ConfigFile,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"debug", conf.Debug,
		"allowed_hosts", conf.Hosts(),
		"trusted_hops", conf.TrustedHops,
		"health_path", conf.HealthPath,
		"health_variant", conf.HealthVariant,
		"health_timeout", conf.HealthTimeout,
		"database_url_ssm_param", conf.DatabaseURLSSMParam,
		"rate_limit_rps", conf.RateLimitRPS,
		"rate_limit_burst", conf.RateLimitBurst,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"trace_sample", conf.TraceSample,
	)
	if conf.Debug {
		L.Warn(ctx, "debug mode: health endpoint open to every caller")
	}

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.ShortCommit(),
		},
		OnActive: m.SetProfilingActive,
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer stopProf()

	// Insecure is true because we only export to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	reporter, store, err := healthReporter(ctx, L, conf, m)
	if err != nil {
		L.Error(ctx, err, "health reporter setup failed", "health_variant", conf.HealthVariant)
		os.Exit(1)
	}

	siteH, err := site.New(site.Options{
		Logger:    L,
		Templates: webassets.TemplatesFS(),
		Static:    webassets.StaticFS(),
		Debug:     conf.Debug,
		Version:   vi,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create site")
		os.Exit(1)
	}

	gate := probegate.New(
		probegate.WithPath(conf.HealthPath),
		probegate.WithDebug(conf.Debug),
		probegate.WithReporter(reporter),
		// denied callers get exactly what an unknown path gets
		probegate.WithNotFound(http.HandlerFunc(siteH.NotFound)),
		probegate.WithOnDecision(func(d probegate.Decision) {
			m.ObserveProbeDecision(string(d.Reason))
		}),
		probegate.WithOnVerdict(func(rep health.Report) {
			m.ObserveHealthVerdict(string(rep.Status))
		}),
	)

	var rateLimitMW func(http.Handler) http.Handler
	if conf.RateLimitRPS > 0 {
		limiter := ratelimit.New(ctx,
			ratelimit.WithRate(conf.RateLimitRPS, conf.RateLimitBurst),
			ratelimit.WithOnDenied(func(string) {
				m.IncRateLimitDenied()
			}),
			// only log the first denial per ip until it is evicted
			ratelimit.WithOnFirstDenied(func(ip string) {
				L.Warn(ctx, "rate limit triggered", "ip", ip)
			}),
			ratelimit.WithOnCapacity(func() {
				m.IncRateLimitCapacity()
				L.Warn(ctx, "rate limit capacity reached, rejecting new visitors until some are evicted")
			}),
		)
		rateLimitMW = limiter.Middleware
	}

	siteHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:        L,
		Port:          conf.HTTPPort,
		Debug:         conf.Debug,
		Gate:          gate,
		Routes:        siteH.RegisterRoutes,
		AccessLogSkip: []string{site.ReloadPath},
		AllowedHosts: httpmw.AllowedHostsOptions{
			Hosts:    conf.Hosts(),
			Debug:    conf.Debug,
			OnReject: m.IncHostRejected,
		},
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
		RateLimitMW:  rateLimitMW,
		MetricsMW:    m.Middleware,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start site http listener port")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	var shutdown health.ShutdownGate
	readiness := health.All(shutdown.Probe())
	if store != nil {
		readiness = health.All(shutdown.Probe(), health.FromReporter(reporter))
	}

	// ops port is for monitoring only; public peers get 403
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		// worst case systemd kills us after its start timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	<-ctx.Done()
	stop()

	L.Info(context.Background(), "shutdown signal received")

	// fail readiness so the load balancer stops sending new requests
	shutdown.Set("draining")
	L.Info(context.Background(), "shutdown gate closed", "drain_delay", conf.DrainDelay)

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(conf.DrainDelay):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "site http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	if store != nil {
		if err := store.Close(); err != nil {
			L.Error(context.Background(), err, "datastore close")
		}
	}
	stopProf()

	L.Info(context.Background(), "shutdown complete")
}

// healthReporter builds the verdict source for the configured variant. The
// datastore variant opens the database and returns the store so the caller
// can close it.
func healthReporter(ctx context.Context, L log.Logger, conf cfg.App, m *metrics.ServerMetrics) (health.Reporter, *datastore.Store, error) {
	if conf.HealthVariant != cfg.HealthDatastore {
		return health.Static(), nil, nil
	}

	dbURL := conf.DatabaseURL
	if dbURL == "" {
		resolver, err := secrets.NewResolver(ctx, secrets.Options{Logger: L})
		if err != nil {
			return nil, nil, err
		}
		if dbURL, err = resolver.DatabaseURL(ctx, conf.DatabaseURL, conf.DatabaseURLSSMParam); err != nil {
			return nil, nil, err
		}
	}

	store, err := datastore.Open(ctx, datastore.Options{URL: dbURL, Logger: L})
	if err != nil {
		return nil, nil, err
	}
	if err := m.RegisterDBStats(store.SQLDB(), string(store.Driver())); err != nil {
		L.Warn(ctx, "db stats collector not registered", "error", err)
	}

	checker := health.NewChecker(conf.HealthTimeout,
		health.AppCheck(),
		health.PingCheck("database", store),
	)
	checker.Observe = m.ObserveHealthCheck
	return checker, store, nil
}

func notifySystemd() error {
	// systemd sets NOTIFY_SOCKET when the unit has Type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	if strings.HasPrefix(addr, "@") {
		addr = "\x00" + addr[1:]
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		_ = conn.Close()
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
