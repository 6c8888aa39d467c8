package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Результаты claim.
const (
	ClaimResultClaimed = "claimed"
	ClaimResultEmpty   = "empty"
	ClaimResultError   = "error"
)

var (
	// ClaimsTotal — попытки захвата сделки по результату.
	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dealflow_claims_total",
		Help: "Claim attempts by result",
	}, []string{"result"})

	// VerdictsTotal — записанные вердикты.
	VerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dealflow_verdicts_total",
		Help: "Committed verdicts by decision and source",
	}, []string{"decision", "source"})

	// StageFailuresTotal — стадии, завершившиеся ошибкой.
	StageFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dealflow_stage_failures_total",
		Help: "Stage failures by stage and reason",
	}, []string{"stage", "reason"})

	// StageAttemptsTotal — вызовы reasoning-коллаборатора.
	StageAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dealflow_stage_attempts_total",
		Help: "Reasoning calls by stage",
	}, []string{"stage"})

	// CommitFailuresTotal — неудачные commit, сделка осталась в PROCESSING.
	CommitFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealflow_commit_failures_total",
		Help: "Failed result commits; the deal stays PROCESSING",
	})

	// DealsFailedTotal — сделки, переведённые в FAILED.
	DealsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealflow_deals_failed_total",
		Help: "Deals marked FAILED",
	})

	// RunDuration — длительность прогона от claim до вердикта.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dealflow_run_duration_seconds",
		Help:    "Deal evaluation duration",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	// Cycles — количество циклов на сделку.
	Cycles = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dealflow_cycles",
		Help:    "Review cycles per finalized deal",
		Buckets: []float64{1, 2},
	})

	// BusConnected — 1, пока соединение с RabbitMQ установлено.
	BusConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dealflow_bus_connected",
		Help: "Whether the RabbitMQ connection is up",
	})

	// BusSkippedTotal — операции шины, пропущенные из-за отсутствия соединения.
	BusSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealflow_bus_skipped_total",
		Help: "Bus operations skipped while RabbitMQ is unavailable",
	})

	// DealsProducedTotal — сделки, созданные продюсером.
	DealsProducedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealflow_deals_produced_total",
		Help: "Synthetic deals inserted by the producer",
	})
)

// OpsMux возвращает mux с /healthz и /metrics.
// health вызывается на каждый запрос /healthz; nil означает всегда ok.
func OpsMux(health func(r *http.Request) error) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(r); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
