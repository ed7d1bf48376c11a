// Package cfg binds command line flags, environment and an optional .env
// file into App. Precedence: cli flag > process env > .env file > default.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/keithlinneman/tripdesk/internal/log"
	"github.com/keithlinneman/tripdesk/internal/ratelimit"
)

// EnvPrefix is prepended to the upper-cased flag name: -http-port reads TRIPDESK_HTTP_PORT.
const EnvPrefix = "TRIPDESK_"

type App struct {
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	HTTPPort         int
	AdminPort        int
	EnablePprof      bool
	AdminAllowPublic bool
	EnablePyroscope  bool
	PyroServer       string
	PyroTenantID     string
	PyroUser         string
	PyroPassword     string
	EnableTracing    bool
	OTLPEndpoint     string
	OTLPInsecure     bool
	TraceSample      float64

	RateLimitAuth      string
	RateLimitRead      string
	RateLimitWrite     string
	RateLimitSensitive string
	RateLimitSweep     time.Duration
	FloodPerSecond     float64
	FloodBurst         int

	AttachmentsBucket string
	AttachmentsPrefix string
	MaxUploadBytes    int64
	MaxJSONBytes      int64
	SignedURLTTL      time.Duration

	AdminToken         string
	AdminTokenSSMParam string
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "ops listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on ops port only)")
	fs.BoolVar(&c.AdminAllowPublic, "admin-allow-public", false, "Serve the ops port to public addresses (local development only)")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.PyroUser, "pyro-user", "", "basic auth user for pyro-server")
	fs.StringVar(&c.PyroPassword, "pyro-password", "", "basic auth password for pyro-server")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.BoolVar(&c.OTLPInsecure, "otlp-insecure", true, "plaintext gRPC to the OTLP endpoint")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")

	fs.StringVar(&c.RateLimitAuth, "ratelimit-auth", "10/1m", "auth category limit as count/window")
	fs.StringVar(&c.RateLimitRead, "ratelimit-read", "60/1m", "read category limit as count/window")
	fs.StringVar(&c.RateLimitWrite, "ratelimit-write", "30/1m", "write category limit as count/window")
	fs.StringVar(&c.RateLimitSensitive, "ratelimit-sensitive", "5/1m", "sensitive category limit as count/window")
	fs.DurationVar(&c.RateLimitSweep, "ratelimit-sweep", 0, "idle key sweep interval (0 = longest window)")
	fs.Float64Var(&c.FloodPerSecond, "flood-per-second", 0, "per-client flood guard refill rate (0 disables)")
	fs.IntVar(&c.FloodBurst, "flood-burst", 40, "per-client flood guard burst")

	fs.StringVar(&c.AttachmentsBucket, "attachments-s3-bucket", "", "s3 bucket for attachments (empty = in-memory)")
	fs.StringVar(&c.AttachmentsPrefix, "attachments-s3-prefix", "attachments", "s3 key prefix for attachments")
	fs.Int64Var(&c.MaxUploadBytes, "max-upload-bytes", 10<<20, "max attachment size in bytes")
	fs.Int64Var(&c.MaxJSONBytes, "max-json-bytes", 64<<10, "max JSON request body in bytes")
	fs.DurationVar(&c.SignedURLTTL, "signed-url-ttl", 15*time.Minute, "lifetime of attachment download URLs")

	fs.StringVar(&c.AdminToken, "admin-token", "", "bearer token for /api/admin (empty disables)")
	fs.StringVar(&c.AdminTokenSSMParam, "admin-token-ssm-param", "", "SSM parameter holding the /api/admin bearer token (SecureString ok)")
}

// LoadDotEnv reads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s", f.Name, f.Value.String(), key)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s: %v", f.Name, key, err)
			}
		}
	})
}

// ParsePolicy reads "count/window", e.g. "10/1m" or "100/30s".
func ParsePolicy(s string) (ratelimit.Policy, error) {
	n, w, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return ratelimit.Policy{}, fmt.Errorf("want count/window, got %q", s)
	}
	limit, err := strconv.Atoi(n)
	if err != nil || limit < 1 {
		return ratelimit.Policy{}, fmt.Errorf("invalid count %q", n)
	}
	window, err := time.ParseDuration(w)
	if err != nil || window < time.Second {
		return ratelimit.Policy{}, fmt.Errorf("invalid window %q (min 1s)", w)
	}
	return ratelimit.Policy{Limit: limit, Window: window}, nil
}

// Policies parses the per-category flags.
func (c App) Policies() (map[ratelimit.Category]ratelimit.Policy, error) {
	raw := map[ratelimit.Category]string{
		ratelimit.Auth:      c.RateLimitAuth,
		ratelimit.Read:      c.RateLimitRead,
		ratelimit.Write:     c.RateLimitWrite,
		ratelimit.Sensitive: c.RateLimitSensitive,
	}
	out := make(map[ratelimit.Category]ratelimit.Policy, len(raw))
	var errs []error
	for cat, s := range raw {
		p, err := ParsePolicy(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid RATELIMIT_%s: %w", strings.ToUpper(string(cat)), err))
			continue
		}
		out[cat] = p
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, errors.New("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
	}

	// grpc exporter wants host:port, no scheme
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, errors.New("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Rate limiting
	if _, err := c.Policies(); err != nil {
		errs = append(errs, err)
	}
	if c.RateLimitSweep < 0 {
		errs = append(errs, fmt.Errorf("invalid RATELIMIT_SWEEP %s (must be >= 0)", c.RateLimitSweep))
	}
	if c.FloodPerSecond < 0 {
		errs = append(errs, fmt.Errorf("invalid FLOOD_PER_SECOND %g (must be >= 0)", c.FloodPerSecond))
	}
	if c.FloodPerSecond > 0 && c.FloodBurst < 1 {
		errs = append(errs, fmt.Errorf("invalid FLOOD_BURST %d (must be >= 1)", c.FloodBurst))
	}

	// Attachments and bodies
	if c.MaxUploadBytes < 1 {
		errs = append(errs, fmt.Errorf("invalid MAX_UPLOAD_BYTES %d", c.MaxUploadBytes))
	}
	if c.MaxJSONBytes < 1 {
		errs = append(errs, fmt.Errorf("invalid MAX_JSON_BYTES %d", c.MaxJSONBytes))
	}
	// S3 caps presigned URLs at 7 days
	if c.SignedURLTTL < time.Second || c.SignedURLTTL > 7*24*time.Hour {
		errs = append(errs, fmt.Errorf("invalid SIGNED_URL_TTL %s (must be 1s..168h)", c.SignedURLTTL))
	}
	if strings.Contains(c.AttachmentsPrefix, "..") {
		errs = append(errs, fmt.Errorf("ATTACHMENTS_S3_PREFIX must not contain dot segments (got %q)", c.AttachmentsPrefix))
	}

	if c.AdminToken != "" && len(c.AdminToken) < minAdminTokenLen {
		errs = append(errs, errors.New("ADMIN_TOKEN must be at least 16 characters"))
	}
	if c.AdminToken != "" && c.AdminTokenSSMParam != "" {
		errs = append(errs, errors.New("ADMIN_TOKEN and ADMIN_TOKEN_SSM_PARAM are mutually exclusive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
