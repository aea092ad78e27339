// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Attempt outcomes
const (
	OutcomeSuccess      = "success"
	OutcomeFailure      = "failure"
	OutcomeDeadLetter   = "dead_letter"
	OutcomeDropped      = "dropped"
	OutcomePersistError = "persist_error"
)

var (
	attemptsTotal          *prometheus.CounterVec
	attemptDurationSeconds *prometheus.HistogramVec
	captchaSolvesTotal     *prometheus.CounterVec
	blockFailuresTotal     *prometheus.CounterVec
	queueDepth             *prometheus.GaugeVec
	recordsWrittenTotal    prometheus.Counter
	ledgerSize             prometheus.Gauge
	activeSessions         prometheus.Gauge

	once sync.Once
)

// Init registers the collectors. It is safe to call multiple times.
func Init() {
	once.Do(func() {
		attemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rera_attempts_total",
				Help: "Total project attempts, labeled by queue and outcome.",
			},
			[]string{"queue", "outcome"},
		)

		attemptDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rera_attempt_duration_seconds",
				Help:    "Histogram of attempt durations, labeled by queue.",
				Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
			},
			[]string{"queue"},
		)

		captchaSolvesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rera_captcha_solves_total",
				Help: "CAPTCHA solve results, labeled by outcome (solved, unrecognized, rejected).",
			},
			[]string{"outcome"},
		)

		blockFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rera_extraction_block_failures_total",
				Help: "Sub-extractor failures, labeled by block.",
			},
			[]string{"block"},
		)

		queueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rera_queue_depth",
				Help: "Items waiting in each scheduler queue.",
			},
			[]string{"queue"},
		)

		recordsWrittenTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rera_records_written_total",
				Help: "Records appended to the record table.",
			},
		)

		ledgerSize = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "rera_ledger_size",
				Help: "Outstanding entries in the failed ledger.",
			},
		)

		activeSessions = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "rera_browser_sessions_active",
				Help: "Browser sessions currently open.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveAttempt records one finished attempt.
func ObserveAttempt(queue, outcome string, duration time.Duration) {
	Init()
	attemptsTotal.WithLabelValues(queue, outcome).Inc()
	if duration > 0 {
		attemptDurationSeconds.WithLabelValues(queue).Observe(duration.Seconds())
	}
}

// ObserveCaptcha records a CAPTCHA outcome.
func ObserveCaptcha(outcome string) {
	Init()
	captchaSolvesTotal.WithLabelValues(outcome).Inc()
}

// ObserveBlockFailure records a failed sub-extractor.
func ObserveBlockFailure(block string) {
	Init()
	blockFailuresTotal.WithLabelValues(block).Inc()
}

// SetQueueDepth updates the depth gauge for a queue.
func SetQueueDepth(queue string, depth int) {
	Init()
	queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// IncRecordsWritten counts an appended record.
func IncRecordsWritten() {
	Init()
	recordsWrittenTotal.Inc()
}

// SetLedgerSize updates the failed ledger gauge.
func SetLedgerSize(n int) {
	Init()
	ledgerSize.Set(float64(n))
}

// IncActiveSessions increments the open sessions gauge.
func IncActiveSessions() {
	Init()
	activeSessions.Inc()
}

// DecActiveSessions decrements the open sessions gauge.
func DecActiveSessions() {
	Init()
	activeSessions.Dec()
}
