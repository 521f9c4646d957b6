package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpDurationHistogram  *prometheus.HistogramVec
	claimCounter           *prometheus.CounterVec
	orderTransitionCounter *prometheus.CounterVec
	withdrawalCounter      *prometheus.CounterVec
	gatewayDuration        *prometheus.HistogramVec
	ledgerImbalanceCounter *prometheus.CounterVec
	staleReservationGauge  prometheus.Gauge
	manualReconCounter     *prometheus.CounterVec
	idempotencyCounter     *prometheus.CounterVec
	workerRunCounter       *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		claimCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_claims_total",
			Help: "Order claim attempts by outcome",
		}, []string{"outcome"})

		orderTransitionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Order status transitions applied",
		}, []string{"from", "to"})

		withdrawalCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "withdrawals_total",
			Help: "Withdrawal requests by terminal outcome",
		}, []string{"pool", "outcome"})

		gatewayDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payout_gateway_request_duration_seconds",
			Help:    "Payout gateway call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "result"})

		ledgerImbalanceCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_imbalance_total",
			Help: "Number of wallet pools whose balance diverged from the journal",
		}, []string{"pool"})

		staleReservationGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wallet_stale_reservations",
			Help: "Reservations held longer than the stale window at the last reconciliation",
		})

		manualReconCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "withdrawal_manual_reconciliation_total",
			Help: "Withdrawals flagged for manual reconciliation",
		}, []string{"reason"})

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
			claimCounter,
			orderTransitionCounter,
			withdrawalCounter,
			gatewayDuration,
			ledgerImbalanceCounter,
			staleReservationGauge,
			manualReconCounter,
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

func IncrementClaim(outcome string) {
	if claimCounter == nil {
		return
	}
	claimCounter.WithLabelValues(outcome).Inc()
}

func IncrementOrderTransition(from, to string) {
	if orderTransitionCounter == nil {
		return
	}
	orderTransitionCounter.WithLabelValues(from, to).Inc()
}

func IncrementWithdrawal(pool, outcome string) {
	if withdrawalCounter == nil {
		return
	}
	withdrawalCounter.WithLabelValues(pool, outcome).Inc()
}

func ObserveGatewayCall(operation, result string, duration time.Duration) {
	if gatewayDuration == nil {
		return
	}
	gatewayDuration.WithLabelValues(operation, result).Observe(duration.Seconds())
}

func IncrementLedgerImbalance(pool string) {
	if ledgerImbalanceCounter == nil {
		return
	}
	ledgerImbalanceCounter.WithLabelValues(pool).Inc()
}

func SetStaleReservations(count int64) {
	if staleReservationGauge == nil {
		return
	}
	staleReservationGauge.Set(float64(count))
}

func IncrementManualReconciliation(reason string) {
	if manualReconCounter == nil {
		return
	}
	manualReconCounter.WithLabelValues(reason).Inc()
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
