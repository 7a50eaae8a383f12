package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal      *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec
	Quarantines    prometheus.Counter
	FindingsTotal  *prometheus.CounterVec
	VotesTotal     *prometheus.CounterVec
	AlertsTotal    prometheus.Counter
	GovernorRisk   prometheus.Gauge
	RunningWorkers prometheus.Gauge
}

// New registers all collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_detector_runs_total",
			Help: "Supervised detector runs by detector and result.",
		}, []string{"detector", "result"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sentinel_detector_run_seconds",
			Help:    "Detector run duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"detector"}),
		Quarantines: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_quarantines_total",
			Help: "Detectors quarantined after repeated consecutive failures.",
		}),
		FindingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_findings_total",
			Help: "Findings produced, by severity.",
		}, []string{"severity"}),
		VotesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_council_votes_total",
			Help: "Council votes by backend and result (act/watch/ignore/error).",
		}, []string{"backend", "result"}),
		AlertsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_alerts_total",
			Help: "Triple-confirmed findings delivered to the notifier.",
		}),
		GovernorRisk: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_governor_risk",
			Help: "Current cumulative governor risk proxy.",
		}),
		RunningWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_running_workers",
			Help: "Detector runs currently in flight.",
		}),
	}

	reg.MustRegister(
		m.RunsTotal, m.RunDuration, m.Quarantines, m.FindingsTotal,
		m.VotesTotal, m.AlertsTotal, m.GovernorRisk, m.RunningWorkers,
	)
	return m
}

// Router serves the ops endpoints: /metrics and /healthz.
func (m *Metrics) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}
