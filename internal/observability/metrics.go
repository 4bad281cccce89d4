package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce              sync.Once
	httpDurationHistogram     *prometheus.HistogramVec
	payoutOutcomeCounter      *prometheus.CounterVec
	gatewayCallHistogram      *prometheus.HistogramVec
	snapshotDivergenceCounter *prometheus.CounterVec
	debitBackfillCounter      prometheus.Counter
	idempotencyCounter        *prometheus.CounterVec
	workerRunCounter          *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		payoutOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payout_outcomes_total",
			Help: "Payout orchestration outcomes by failure class",
		}, []string{"outcome", "class"})

		gatewayCallHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_call_duration_seconds",
			Help:    "Transfer gateway call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "success"})

		snapshotDivergenceCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "balance_snapshot_divergence_total",
			Help: "Number of times a balance snapshot diverged from its ledger",
		}, []string{"currency"})

		debitBackfillCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payout_debit_backfills_total",
			Help: "Missing payout debit entries posted by reconciliation",
		})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			payoutOutcomeCounter,
			gatewayCallHistogram,
			snapshotDivergenceCounter,
			debitBackfillCounter,
			idempotencyCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementPayoutOutcome(outcome, class string) {
	if payoutOutcomeCounter == nil {
		return
	}
	payoutOutcomeCounter.WithLabelValues(outcome, class).Inc()
}

func ObserveGatewayCall(operation string, success bool, duration time.Duration) {
	if gatewayCallHistogram == nil {
		return
	}
	gatewayCallHistogram.WithLabelValues(operation, strconv.FormatBool(success)).Observe(duration.Seconds())
}

func IncrementSnapshotDivergence(currency string) {
	if snapshotDivergenceCounter == nil {
		return
	}
	snapshotDivergenceCounter.WithLabelValues(currency).Inc()
}

func IncrementDebitBackfill() {
	if debitBackfillCounter == nil {
		return
	}
	debitBackfillCounter.Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
