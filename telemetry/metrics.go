// Package telemetry provides Prometheus metrics, tracing, logger setup and
// correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	CrawlsStarted     prometheus.Counter
	CrawlsFailed      prometheus.Counter
	CrawlsSucceeded   prometheus.Counter
	ProbeResults      *prometheus.CounterVec // labels: category, result
	OccupantFallbacks prometheus.Counter
	PresenceFailures  prometheus.Counter
	UpstreamRequests  *prometheus.CounterVec // labels: route, code
	LoginAttempts     *prometheus.CounterVec // labels: method, result

	// Histograms (seconds)
	CrawlDuration prometheus.Observer

	// Gauges
	CrawlInFlight prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		CrawlsStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "chanscope_crawls_started_total", Help: "Number of guild crawls started"})
		CrawlsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "chanscope_crawls_failed_total", Help: "Number of guild crawls aborted by a fatal error"})
		CrawlsSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "chanscope_crawls_succeeded_total", Help: "Number of guild crawls that produced a report"})
		ProbeResults = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chanscope_probe_results_total", Help: "Channel accessibility probe outcomes"}, []string{"category", "result"})
		OccupantFallbacks = promauto.NewCounter(prometheus.CounterOpts{Name: "chanscope_occupant_profile_fallbacks_total", Help: "Voice occupants emitted with a placeholder profile"})
		PresenceFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "chanscope_voice_presence_failures_total", Help: "Voice presence list fetches that failed"})
		UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chanscope_upstream_requests_total", Help: "Upstream API requests by route and status code (0 = transport error)"}, []string{"route", "code"})
		LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chanscope_login_attempts_total", Help: "Login attempts by method and result"}, []string{"method", "result"})
		CrawlDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chanscope_crawl_duration_seconds", Help: "Guild crawl duration seconds", Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600}})
		CrawlInFlight = promauto.NewGauge(prometheus.GaugeOpts{Name: "chanscope_crawl_in_flight", Help: "1 while a crawl is running"})
	})
}

// RecordUpstream counts one upstream request. code 0 means a transport error.
func RecordUpstream(route string, code int) {
	if UpstreamRequests == nil {
		return
	}
	UpstreamRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// RecordProbe counts one accessibility probe outcome.
func RecordProbe(category string, accessible bool) {
	if ProbeResults == nil {
		return
	}
	result := "inaccessible"
	if accessible {
		result = "accessible"
	}
	ProbeResults.WithLabelValues(category, result).Inc()
}

// RecordLogin counts one login attempt.
func RecordLogin(method string, err error) {
	if LoginAttempts == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	LoginAttempts.WithLabelValues(method, result).Inc()
}

// IncIfSet increments c when it has been registered.
func IncIfSet(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// SetCrawlInFlight records whether a crawl is running.
func SetCrawlInFlight(running bool) {
	if CrawlInFlight == nil {
		return
	}
	if running {
		CrawlInFlight.Set(1)
	} else {
		CrawlInFlight.Set(0)
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
