package telemetry

import "github.com/prometheus/client_golang/prometheus"

// PrometheusCollectors groups the direct prometheus/client_golang
// instruments a /metrics scrape endpoint (out of scope — HTTP layer) would
// expose alongside whatever the otel meter provider above exports.
// Registered separately from Metrics so a deployment can run Prometheus
// scraping without an OTLP collector, or vice versa.
type PrometheusCollectors struct {
	LedgerBalance        *prometheus.GaugeVec
	MaintenanceJobRuns    *prometheus.CounterVec
	MaintenanceJobErrors  *prometheus.CounterVec
	IdempotencyReplayHits prometheus.Counter
}

// NewPrometheusCollectors creates and registers the collector set against reg.
func NewPrometheusCollectors(reg prometheus.Registerer) (*PrometheusCollectors, error) {
	c := &PrometheusCollectors{
		LedgerBalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ledger",
			Name:      "account_balance",
			Help:      "Current balance of a ledger account, by account id and type.",
		}, []string{"account_id", "account_type"}),

		MaintenanceJobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "maintenance",
			Name:      "job_runs_total",
			Help:      "Total maintenance job executions, by job name.",
		}, []string{"job"}),

		MaintenanceJobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "maintenance",
			Name:      "job_errors_total",
			Help:      "Total maintenance job failures, by job name.",
		}, []string{"job"}),

		IdempotencyReplayHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "idempotency",
			Name:      "replay_hits_total",
			Help:      "Total requests short-circuited by an already-completed idempotency key.",
		}),
	}

	for _, collector := range []prometheus.Collector{
		c.LedgerBalance, c.MaintenanceJobRuns, c.MaintenanceJobErrors, c.IdempotencyReplayHits,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}

	return c, nil
}
