package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/tripdesk/internal/version"
)

type ServerMetrics struct {
	reg       *prometheus.Registry
	handler   http.Handler
	inflight  prometheus.Gauge
	reqTotal  *prometheus.CounterVec
	reqDur    *prometheus.HistogramVec
	respBytes *prometheus.HistogramVec
	// 5xx by method and route (SLI)
	errorsTotal    *prometheus.CounterVec
	httpPanicTotal prometheus.Counter
	buildInfo      *prometheus.GaugeVec

	// rate limiting
	ratelimitDenied  *prometheus.CounterVec
	ratelimitKeys    prometheus.Gauge
	ratelimitSweeps  prometheus.Counter
	ratelimitEvicted prometheus.Counter
	floodDenied      prometheus.Counter

	// request validation and uploads
	validationFailures *prometheus.CounterVec
	uploadsTotal       *prometheus.CounterVec
	uploadBytes        prometheus.Histogram

	profilingActive prometheus.Gauge
}

// New returns a fresh registry + standard collectors + HTTP and domain metrics.
// Labels stay low-cardinality: route patterns, categories and content types,
// never client keys or raw paths.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{64, 256, 1024, 4096, 16384, 65536, 262144, 1048576},
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered handler panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		ratelimitDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by the sliding-window limiter by category",
		}, []string{"category"}),
		ratelimitKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ratelimit_tracked_keys",
			Help: "Client/category keys held by the limiter after the last sweep",
		}),
		ratelimitSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_sweeps_total",
			Help: "Total limiter sweeps",
		}),
		ratelimitEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_evicted_keys_total",
			Help: "Total empty keys removed by limiter sweeps",
		}),
		floodDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_flood_limited_total",
			Help: "Total requests rejected by the per-client flood guard",
		}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_validation_failures_total",
			Help: "Total requests rejected by input validation by route",
		}, []string{"route"}),
		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attachments_uploaded_total",
			Help: "Total attachments stored by content type",
		}, []string{"content_type"}),
		uploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "attachments_uploaded_bytes",
			Help:    "Size of stored attachments",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.errorsTotal,
		m.httpPanicTotal,
		m.buildInfo,
		m.ratelimitDenied,
		m.ratelimitKeys,
		m.ratelimitSweeps,
		m.ratelimitEvicted,
		m.floodDenied,
		m.validationFailures,
		m.uploadsTotal,
		m.uploadBytes,
		m.profilingActive,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) IncRateLimitDenied(category string) {
	m.ratelimitDenied.WithLabelValues(category).Inc()
}

// ObserveRateLimitSweep records one limiter sweep.
func (m *ServerMetrics) ObserveRateLimitSweep(evicted, remaining int) {
	m.ratelimitSweeps.Inc()
	m.ratelimitEvicted.Add(float64(evicted))
	m.ratelimitKeys.Set(float64(remaining))
}

func (m *ServerMetrics) IncFloodDenied() {
	m.floodDenied.Inc()
}

func (m *ServerMetrics) IncValidationFailure(route string) {
	m.validationFailures.WithLabelValues(route).Inc()
}

func (m *ServerMetrics) ObserveUpload(contentType string, size int) {
	m.uploadsTotal.WithLabelValues(contentType).Inc()
	m.uploadBytes.Observe(float64(size))
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}
