package telemetry

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/deepscout/config"
)

// Telemetry holds the service's prometheus collectors.
type Telemetry struct {
	cfg      config.TelemetryConfig
	logger   *log.Logger
	registry *prometheus.Registry

	sessionsStarted   prometheus.Counter
	sessionsCompleted prometheus.Counter
	sessionsFailed    *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	searchQueries     *prometheus.CounterVec
	sourcesDiscovered prometheus.Counter
	sandboxRuns       *prometheus.CounterVec
}

// NewTelemetry creates a telemetry instance with its own registry.
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	reg := prometheus.NewRegistry()
	t := &Telemetry{
		cfg:      cfg,
		logger:   log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		registry: reg,
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deepscout_sessions_started_total",
			Help: "Research sessions started.",
		}),
		sessionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deepscout_sessions_completed_total",
			Help: "Research sessions that produced a report.",
		}),
		sessionsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deepscout_sessions_failed_total",
			Help: "Research sessions that ended in error, by stage.",
		}, []string{"stage"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deepscout_stage_duration_seconds",
			Help:    "Wall-clock duration of each pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"stage"}),
		searchQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deepscout_search_queries_total",
			Help: "Search queries issued, by outcome.",
		}, []string{"outcome"}),
		sourcesDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deepscout_sources_discovered_total",
			Help: "Unique sources discovered across sessions.",
		}),
		sandboxRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deepscout_sandbox_runs_total",
			Help: "Remote sandbox executions, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		t.sessionsStarted,
		t.sessionsCompleted,
		t.sessionsFailed,
		t.stageDuration,
		t.searchQueries,
		t.sourcesDiscovered,
		t.sandboxRuns,
	)
	return t
}

// Handler serves the /metrics endpoint for this registry.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

func (t *Telemetry) SessionStarted() {
	t.sessionsStarted.Inc()
}

func (t *Telemetry) SessionCompleted(d time.Duration) {
	t.sessionsCompleted.Inc()
	if t.cfg.Enabled {
		t.logger.Printf("session completed in %v", d)
	}
}

func (t *Telemetry) SessionFailed(stage string) {
	t.sessionsFailed.WithLabelValues(stage).Inc()
}

func (t *Telemetry) StageCompleted(stage string, d time.Duration) {
	t.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (t *Telemetry) SearchQuery(ok bool) {
	t.searchQueries.WithLabelValues(outcome(ok)).Inc()
}

func (t *Telemetry) SourceDiscovered() {
	t.sourcesDiscovered.Inc()
}

func (t *Telemetry) SandboxRun(ok bool) {
	t.sandboxRuns.WithLabelValues(outcome(ok)).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
