// Package cfg binds application settings to flags and fills unset flags
// from a TOML file and AUTOMATABLE_* environment variables.
//
// Precedence: cli flag > env var > config file > default.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/automatable/automatable-website/internal/log"
)

const EnvPrefix = "AUTOMATABLE_"

// Health endpoint variants.
const (
	HealthSimple    = "simple"
	HealthDatastore = "datastore"
)

type App struct {
	ConfigFile string

	LogJSON       bool
	LogLevel      string
	MaxErrorLinks int

	HTTPPort   int
	AdminPort  int
	DrainDelay time.Duration

	// Debug is local development mode: health checks open to everyone, local
	// hosts allowed, live reload route mounted.
	Debug        bool
	AllowedHosts string
	TrustedHops  int

	HealthPath    string
	HealthVariant string
	HealthTimeout time.Duration

	DatabaseURL         string
	DatabaseURLSSMParam string

	RateLimitRPS   float64
	RateLimitBurst int

	EnablePprof     bool
	EnableTracing   bool
	EnablePyroscope bool
	OTLPEndpoint    string
	TraceSample     float64
	PyroServer      string
	PyroTenantID    string
}

// Register binds all config fields to fs with defaults inline.
func Register(fs *flag.FlagSet, c *App) {
	fs.StringVar(&c.ConfigFile, "config", "", "optional TOML config file; keys are flag names")

	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 8, "error_links depth in error logs (0 disables, max 64)")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "public listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "ops listen TCP port (1..65535)")
	fs.DurationVar(&c.DrainDelay, "drain-delay", 60*time.Second, "time between failing readiness and closing listeners on shutdown")

	fs.BoolVar(&c.Debug, "debug", false, "local development mode: open health endpoint, allow localhost, enable live reload")
	fs.StringVar(&c.AllowedHosts, "allowed-hosts", "automatable.dev,www.automatable.dev", "comma separated Host values to serve; leading dot matches subdomains, * matches any; empty admits only localhost in debug")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 1, "reverse proxies in front of the server, used for client ip in logs and rate limiting")

	fs.StringVar(&c.HealthPath, "health-path", "/health/", "path answered by the probe gatekeeper")
	fs.StringVar(&c.HealthVariant, "health-variant", HealthSimple, "simple|datastore")
	fs.DurationVar(&c.HealthTimeout, "health-timeout", 2*time.Second, "per check timeout for the datastore variant")

	fs.StringVar(&c.DatabaseURL, "database-url", "", "postgres://... or sqlite://path; required for the datastore variant")
	fs.StringVar(&c.DatabaseURLSSMParam, "database-url-ssm-param", "", "SSM parameter holding the database url, used when database-url is empty")

	fs.Float64Var(&c.RateLimitRPS, "rate-limit-rps", 10, "per-ip refill rate, requests per second (0 disables)")
	fs.IntVar(&c.RateLimitBurst, "rate-limit-burst", 30, "per-ip bucket size")

	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "serve pprof on the admin port")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "export OTLP traces to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "push profiles to pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP gRPC endpoint (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "pyroscope tenant (X-Scope-OrgID)")
}

// CLIFlags returns the names of flags set so far. Call it right after Parse,
// before FillFromFile or FillFromEnv touch the set, and pass the result to
// both so file and env values are never mistaken for CLI values.
func CLIFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// FillFromEnv sets any flag not in cli from the environment, overriding
// values applied from a config file. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Invalid values are reported through logf and leave the previous value in
// place.
func FillFromEnv(fs *flag.FlagSet, prefix string, cli map[string]bool, logf func(string, ...any)) {
	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		val, ok := os.LookupEnv(key)
		if !ok {
			return
		}
		if cli[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s", f.Name, f.Value.String(), key)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, val); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, val, err)
			}
		}
	})
}

// FillFromFile applies a TOML file to flags not in cli. Keys are
// flag names with "-" or "_"; tables flatten into "table-key", so
// [database] url = "..." sets -database-url. Unknown keys and bad values are
// errors so typos do not silently fall back to defaults.
func FillFromFile(fs *flag.FlagSet, path string, cli map[string]bool) error {
	if path == "" {
		return nil
	}
	var raw map[string]any
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}

	flat := make(map[string]string)
	if err := flatten("", raw, flat); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, name := range keys {
		if fs.Lookup(name) == nil {
			errs = append(errs, fmt.Errorf("unknown key %q", name))
			continue
		}
		if cli[name] {
			continue
		}
		if err := fs.Set(name, flat[name]); err != nil {
			errs = append(errs, fmt.Errorf("key %q: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config file %s: %w", path, errors.Join(errs...))
	}
	return nil
}

func flatten(prefix string, in map[string]any, out map[string]string) error {
	for k, v := range in {
		name := strings.ReplaceAll(strings.ToLower(k), "_", "-")
		if prefix != "" {
			name = prefix + "-" + name
		}
		switch x := v.(type) {
		case map[string]any:
			if err := flatten(name, x, out); err != nil {
				return err
			}
		case string:
			out[name] = x
		case bool:
			out[name] = strconv.FormatBool(x)
		case int64:
			out[name] = strconv.FormatInt(x, 10)
		case float64:
			out[name] = strconv.FormatFloat(x, 'f', -1, 64)
		case []any:
			parts := make([]string, 0, len(x))
			for _, item := range x {
				s, ok := item.(string)
				if !ok {
					return fmt.Errorf("key %q: arrays must hold strings", name)
				}
				parts = append(parts, s)
			}
			out[name] = strings.Join(parts, ",")
		default:
			return fmt.Errorf("key %q: unsupported value type %T", name, v)
		}
	}
	return nil
}

// Hosts splits AllowedHosts into trimmed, lowercased entries.
func (c App) Hosts() []string {
	var out []string
	for _, h := range strings.Split(c.AllowedHosts, ",") {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			out = append(out, h)
		}
	}
	return out
}

// Validate checks ranges and cross-field requirements, reporting every
// problem at once.
func Validate(c App) error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	if c.DrainDelay < 0 {
		errs = append(errs, fmt.Errorf("DRAIN_DELAY must be >= 0 (got %s)", c.DrainDelay))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL: %w", err))
	}
	if c.MaxErrorLinks < 0 || c.MaxErrorLinks > 64 {
		errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 0..64 (got %d)", c.MaxErrorLinks))
	}

	if !strings.HasPrefix(c.HealthPath, "/") {
		errs = append(errs, fmt.Errorf("HEALTH_PATH must start with / (got %q)", c.HealthPath))
	}
	switch c.HealthVariant {
	case HealthSimple:
	case HealthDatastore:
		if c.DatabaseURL == "" && c.DatabaseURLSSMParam == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL or DATABASE_URL_SSM_PARAM required when HEALTH_VARIANT=%s", HealthDatastore))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid HEALTH_VARIANT %q (must be %s|%s)", c.HealthVariant, HealthSimple, HealthDatastore))
	}
	if c.HealthTimeout <= 0 {
		errs = append(errs, fmt.Errorf("HEALTH_TIMEOUT must be positive (got %s)", c.HealthTimeout))
	}

	if c.TrustedHops < 0 {
		errs = append(errs, fmt.Errorf("TRUSTED_HOPS must be >= 0 (got %d)", c.TrustedHops))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must be >= 0 (got %g)", c.RateLimitRPS))
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BURST must be >= 1 when rate limiting is enabled (got %d)", c.RateLimitBurst))
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}
	if c.EnablePyroscope {
		if u, err := url.Parse(c.PyroServer); c.PyroServer == "" || err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL when ENABLE_PYROSCOPE=true (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	return errors.Join(errs...)
}
