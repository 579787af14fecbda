// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ownership scan metrics
	ScansTotal          prometheus.Counter
	ContractsScanned    prometheus.Counter
	ContractScanErrors  *prometheus.CounterVec
	TokensDiscovered    prometheus.Counter
	MetadataResolutions *prometheus.CounterVec

	// Chain metrics
	RPCCallLatency   *prometheus.HistogramVec
	MulticallBatches prometheus.Counter
	TxSubmitted      *prometheus.CounterVec
	TxFailed         *prometheus.CounterVec

	// Loan metrics
	EstimatesTotal     prometheus.Counter
	LoansCreated       prometheus.Counter
	LoanAmountQuoted   prometheus.Histogram
	PoolBalance        prometheus.Gauge
	BorrowFlowDuration prometheus.Histogram

	// HTTP metrics
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsTotal   *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastPoolSnapshot prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "nftcred"
	}

	return &Metrics{
		// Ownership scan metrics
		ScansTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nft",
			Name:      "scans_total",
			Help:      "Total number of wallet ownership scans",
		}),
		ContractsScanned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nft",
			Name:      "contracts_scanned_total",
			Help:      "Total number of contracts scanned",
		}),
		ContractScanErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nft",
			Name:      "contract_scan_errors_total",
			Help:      "Total number of per-contract scan errors by operation",
		}, []string{"op"}),
		TokensDiscovered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nft",
			Name:      "tokens_discovered_total",
			Help:      "Total number of owned tokens discovered",
		}),
		MetadataResolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metadata",
			Name:      "resolutions_total",
			Help:      "Total number of metadata resolutions by outcome",
		}, []string{"outcome"}),

		// Chain metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ethereum",
			Name:      "rpc_call_latency_seconds",
			Help:      "Ethereum RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		MulticallBatches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ethereum",
			Name:      "multicall_batches_total",
			Help:      "Total number of multicall batches executed",
		}),
		TxSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ethereum",
			Name:      "tx_submitted_total",
			Help:      "Total number of transactions submitted by kind",
		}, []string{"kind"}),
		TxFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ethereum",
			Name:      "tx_failed_total",
			Help:      "Total number of failed transactions by error kind",
		}, []string{"kind"}),

		// Loan metrics
		EstimatesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loan",
			Name:      "estimates_total",
			Help:      "Total number of loan estimates computed",
		}),
		LoansCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loan",
			Name:      "loans_created_total",
			Help:      "Total number of loans created",
		}),
		LoanAmountQuoted: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "loan",
			Name:      "amount_quoted",
			Help:      "Distribution of quoted loan amounts in stablecoin units",
			Buckets:   prometheus.ExponentialBuckets(1, 10, 8),
		}),
		PoolBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "loan",
			Name:      "pool_balance",
			Help:      "Current lending pool stablecoin balance",
		}),
		BorrowFlowDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "borrow",
			Name:      "flow_duration_seconds",
			Help:      "End-to-end borrow flow duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),

		// HTTP metrics
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status",
		}, []string{"route", "method", "status"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastPoolSnapshot: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_pool_snapshot_timestamp",
			Help:      "Unix timestamp of the last recorded pool snapshot",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordScan increments the ownership scan counters.
func RecordScan(contracts int) {
	DefaultMetrics.ScansTotal.Inc()
	DefaultMetrics.ContractsScanned.Add(float64(contracts))
}

// RecordScanError records a per-contract scan error.
func RecordScanError(op string) {
	DefaultMetrics.ContractScanErrors.WithLabelValues(op).Inc()
}

// RecordTokensDiscovered adds to the discovered token counter.
func RecordTokensDiscovered(n int) {
	DefaultMetrics.TokensDiscovered.Add(float64(n))
}

// RecordMetadataResolution records a resolution outcome ("hit",
// "fetched" or "failed").
func RecordMetadataResolution(outcome string) {
	DefaultMetrics.MetadataResolutions.WithLabelValues(outcome).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordMulticallBatch increments the multicall batch counter.
func RecordMulticallBatch() {
	DefaultMetrics.MulticallBatches.Inc()
}

// RecordBorrowFlow records the duration of a completed borrow flow.
func RecordBorrowFlow(seconds float64) {
	DefaultMetrics.BorrowFlowDuration.Observe(seconds)
}

// RecordEstimate records a computed loan estimate.
func RecordEstimate(loanAmount float64) {
	DefaultMetrics.EstimatesTotal.Inc()
	DefaultMetrics.LoanAmountQuoted.Observe(loanAmount)
}

// RecordLoanCreated increments the loans created counter.
func RecordLoanCreated() {
	DefaultMetrics.LoansCreated.Inc()
}

// UpdatePoolBalance sets the pool balance gauge.
func UpdatePoolBalance(balance float64) {
	DefaultMetrics.PoolBalance.Set(balance)
	DefaultMetrics.LastPoolSnapshot.SetToCurrentTime()
}

// RecordTx records a submitted transaction by kind.
func RecordTx(kind string) {
	DefaultMetrics.TxSubmitted.WithLabelValues(kind).Inc()
}

// RecordTxFailure records a failed transaction by error kind.
func RecordTxFailure(kind string) {
	DefaultMetrics.TxFailed.WithLabelValues(kind).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
