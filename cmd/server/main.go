package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/tripdesk/internal/apihttp"
	"github.com/keithlinneman/tripdesk/internal/attachments"
	"github.com/keithlinneman/tripdesk/internal/cfg"
	"github.com/keithlinneman/tripdesk/internal/health"
	"github.com/keithlinneman/tripdesk/internal/httpserver"
	"github.com/keithlinneman/tripdesk/internal/log"
	"github.com/keithlinneman/tripdesk/internal/metrics"
	"github.com/keithlinneman/tripdesk/internal/opshttp"
	"github.com/keithlinneman/tripdesk/internal/otelx"
	"github.com/keithlinneman/tripdesk/internal/prof"
	"github.com/keithlinneman/tripdesk/internal/ratelimit"
	"github.com/keithlinneman/tripdesk/internal/travel"
	v "github.com/keithlinneman/tripdesk/internal/version"
)

// drainPeriod is how long readiness fails before listeners close, long
// enough for the load balancer to notice.
const drainPeriod = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startedAt := time.Now()
	vi := v.Get()

	var conf cfg.App
	var showVersion bool
	var envFile string

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.StringVar(&envFile, "env-file", ".env", "dotenv file read before TRIPDESK_* variables (missing is fine)")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	// .env only fills variables the process environment does not already set
	if err := cfg.LoadDotEnv(envFile); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	policies, err := conf.Policies()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, _ := log.ParseLevel(conf.LogLevel)
	stackLvl, _ := log.ParseLevel(conf.StacktraceLevel)
	lg, err := log.New(log.Options{
		App:               vi.AppName,
		Version:           vi.Version,
		Commit:            vi.Commit,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JSON:              conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
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
		"build_id", vi.BuildId,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"trace_sample", conf.TraceSample,
		"ratelimit_auth", conf.RateLimitAuth,
		"ratelimit_read", conf.RateLimitRead,
		"ratelimit_write", conf.RateLimitWrite,
		"ratelimit_sensitive", conf.RateLimitSensitive,
		"flood_per_second", conf.FloodPerSecond,
		"attachments_bucket", conf.AttachmentsBucket,
		"max_upload_bytes", conf.MaxUploadBytes,
		"admin_api", conf.AdminToken != "" || conf.AdminTokenSSMParam != "",
	)

	m := metrics.New()
	m.SetBuildInfoFromVersion(vi.AppName, "server", vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:           conf.EnablePyroscope,
		AppName:           vi.AppName + ".server",
		ServerAddress:     conf.PyroServer,
		TenantID:          conf.PyroTenantID,
		BasicAuthUser:     conf.PyroUser,
		BasicAuthPassword: conf.PyroPassword,
		Tags: map[string]string{
			"version":  vi.Version,
			"commit":   vi.Commit,
			"build_id": vi.BuildId,
		},
		OnActive: m.SetProfilingActive,
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer stopProf()

	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  conf.OTLPInsecure,
		Sample:    conf.TraceSample,
		Service:   vi.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// one AWS config shared by the SSM and S3 clients
	var awsCfg *aws.Config
	if conf.AttachmentsBucket != "" || conf.AdminTokenSSMParam != "" {
		c, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			L.Error(ctx, err, "failed to load AWS config")
			os.Exit(1)
		}
		awsCfg = &c
	}

	if conf.AdminTokenSSMParam != "" {
		if err := conf.ResolveAdminToken(ctx, ssm.NewFromConfig(*awsCfg)); err != nil {
			L.Error(ctx, err, "failed to resolve admin token", "ssm_param", conf.AdminTokenSSMParam)
			os.Exit(1)
		}
		L.Info(ctx, "admin token loaded from SSM", "ssm_param", conf.AdminTokenSSMParam)
	}

	// attachment storage: s3 when a bucket is configured, memory otherwise
	var (
		storage      attachments.Storage
		storageProbe health.Probe = health.Fixed(true, "")
	)
	if conf.AttachmentsBucket != "" {
		s3s, err := attachments.NewS3Storage(ctx, attachments.S3Options{
			Logger:    L,
			Bucket:    conf.AttachmentsBucket,
			Prefix:    conf.AttachmentsPrefix,
			AWSConfig: awsCfg,
		})
		if err != nil {
			L.Error(ctx, err, "failed to set up attachment storage", "bucket", conf.AttachmentsBucket)
			os.Exit(1)
		}
		storage = s3s
		storageProbe = health.Named("attachments", health.WithTimeout(2*time.Second, s3s))
	} else {
		L.Warn(ctx, "no attachments bucket configured, storing uploads in memory")
		storage = attachments.NewMemoryStorage()
	}

	limiterOpts := []ratelimit.Option{
		ratelimit.WithPolicies(policies),
		ratelimit.WithOnDenied(func(_ string, c ratelimit.Category) {
			m.IncRateLimitDenied(string(c))
		}),
		// once per client and category until the key is swept
		ratelimit.WithOnFirstDenied(func(key string, c ratelimit.Category) {
			L.Warn(ctx, "rate limit triggered", "client.address", key, "category", string(c))
		}),
		ratelimit.WithOnSweep(m.ObserveRateLimitSweep),
	}
	if conf.RateLimitSweep > 0 {
		limiterOpts = append(limiterOpts, ratelimit.WithSweepInterval(conf.RateLimitSweep))
	}
	limiter := ratelimit.New(limiterOpts...)

	api := apihttp.NewAPI(apihttp.Options{
		Logger:         L,
		Limiter:        limiter,
		Store:          travel.NewStore(),
		Storage:        storage,
		Metrics:        m,
		MaxJSONBytes:   conf.MaxJSONBytes,
		MaxUploadBytes: conf.MaxUploadBytes,
		SignedURLTTL:   conf.SignedURLTTL,
		AdminToken:     conf.AdminToken,
	})

	var floodMW func(next http.Handler) http.Handler
	if conf.FloodPerSecond > 0 {
		flood := ratelimit.NewFloodGuard(ctx,
			ratelimit.WithFloodRate(conf.FloodPerSecond, conf.FloodBurst),
			ratelimit.WithFloodOnDenied(func(string) { m.IncFloodDenied() }),
			ratelimit.WithFloodOnFirstDenied(func(key string) {
				L.Warn(ctx, "flood guard triggered", "client.address", key)
			}),
		)
		floodMW = flood.Middleware
	}

	var gate health.ShutdownGate
	readiness := health.All(gate.Probe(), storageProbe)

	siteHTTPStop, err := httpserver.Start(ctx, httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		FloodMW:      floodMW,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		APIRoutes:    api.RegisterRoutes,
		// one upload plus its multipart framing
		MaxBodyBytes: conf.MaxUploadBytes + 64<<10,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// ops listener: metrics, probes and pprof; refuses public and proxied callers
	opsHTTPStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		Build:        vi,
		StartedAt:    startedAt,
		AllowPublic:  conf.AdminAllowPublic,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		// worst case systemd kills the process after its start timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err.Error())
	}

	<-ctx.Done()
	stop()
	L.Info(context.Background(), "shutdown signal received")

	// fail readiness so the load balancer stops sending new requests
	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed, draining", "period", drainPeriod.String())

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(drainPeriod):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "app http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	stopProf()

	L.Info(context.Background(), "shutdown complete")
}

func notifySystemd() error {
	// systemd sets NOTIFY_SOCKET when the unit is Type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
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
