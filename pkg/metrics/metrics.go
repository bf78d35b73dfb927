// Package metrics exposes quickload's Prometheus instrumentation.
//
// # Overview
//
// All metrics are registered on the default registry at package init through
// promauto and are safe for concurrent use. The executor, the page channel
// and the page builders record into them directly:
//
//	metrics.PagesSealed.WithLabelValues("csv").Inc()
//	metrics.RecordsProduced.WithLabelValues("csv").Add(float64(page.Records()))
//
//	timer := metrics.NewTimer("preview")
//	outcome, err := plugin.Transaction(ctx, exec, cfg, control)
//	metrics.TransactionDuration.WithLabelValues("preview").Observe(timer.Stop().Seconds())
//
// Handler serves the registry for the CLI's --metrics-addr flag.
//
// # Metric Types
//
// Counter: monotonically increasing values (pages sealed, records produced)
// Gauge: values that go up and down (channel queue depth)
// Histogram: distributions (transaction duration)
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Transaction outcome label values.
const (
	OutcomeContinue = "continue"
	OutcomeAbort    = "abort_early"
	OutcomeError    = "error"
)

var (
	// PagesSealed counts pages sealed by page builders.
	// Labels: plugin
	PagesSealed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickload_pages_sealed_total",
			Help: "Total number of pages sealed by page builders",
		},
		[]string{"plugin"},
	)

	// RecordsProduced counts records written into sealed pages.
	// Labels: plugin
	RecordsProduced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickload_records_produced_total",
			Help: "Total number of records written into sealed pages",
		},
		[]string{"plugin"},
	)

	// FieldDecodeErrors counts field values that could not be converted to
	// their column type.
	// Labels: plugin
	FieldDecodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickload_field_decode_errors_total",
			Help: "Total number of field values that failed type conversion",
		},
		[]string{"plugin"},
	)

	// RecordsSkipped counts records dropped by parsers after a decode error.
	// Labels: plugin
	RecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickload_records_skipped_total",
			Help: "Total number of invalid records skipped",
		},
		[]string{"plugin"},
	)

	// Transactions counts finished transactions.
	// Labels: mode (preview/run), outcome (continue/abort_early/error)
	Transactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickload_transactions_total",
			Help: "Total number of finished transactions by outcome",
		},
		[]string{"mode", "outcome"},
	)

	// SuppressedProducerErrors counts producer failures discarded after an
	// early stop.
	// Labels: error_type
	SuppressedProducerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickload_suppressed_producer_errors_total",
			Help: "Producer failures discarded after the consumer stopped early",
		},
		[]string{"error_type"},
	)

	// TransactionDuration tracks wall time of whole transactions in seconds.
	// Labels: mode
	TransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "quickload_transaction_duration_seconds",
			Help: "Transaction duration in seconds",
			Buckets: []float64{
				0.001, // 1ms - tiny inline previews
				0.01,  // 10ms
				0.1,   // 100ms - typical preview
				1,     // 1s
				10,    // 10s - large files
				60,    // 1m
				600,   // 10m - bulk runs
			},
		},
		[]string{"mode"},
	)

	// ChannelQueueDepth is the number of pages queued across all open page
	// channels.
	ChannelQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quickload_channel_queue_depth",
			Help: "Current number of pages queued in page channels",
		},
	)

	// ChannelPagesDropped counts undelivered pages released when a channel
	// is joined.
	ChannelPagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quickload_channel_pages_dropped_total",
			Help: "Undelivered pages released on channel join",
		},
	)

	// Throughput tracks records per second of the last measured window.
	// Labels: plugin
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quickload_throughput_records_per_second",
			Help: "Current throughput in records per second",
		},
		[]string{"plugin"},
	)
)

// Handler returns an http.Handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer provides a simple timing mechanism for measuring operation durations.
// It captures the start time on creation and calculates elapsed time on stop.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
// The name parameter is for identification in logs or metrics.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the timer's name.
func (t *Timer) Name() string { return t.name }

// Stop returns the elapsed duration since creation. The timer can be
// stopped multiple times.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks throughput (records per second) over time windows.
// Thread-safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64     // Records since last reset
	total     int64     // Records since creation
	lastReset time.Time // Time of last reset
	plugin    string
}

// NewThroughputTracker creates a tracker labelled with the plugin name.
func NewThroughputTracker(plugin string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		plugin:    plugin,
	}
}

// Increment adds n to the record count. Safe for concurrent use.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
	t.total += n
}

// Total returns the number of records counted since creation.
func (t *ThroughputTracker) Total() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// GetAndReset calculates the current throughput (records/second),
// updates the Prometheus metric, resets the window, and returns
// the calculated throughput. Safe for concurrent use.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed

	t.count = 0
	t.lastReset = time.Now()

	Throughput.WithLabelValues(t.plugin).Set(throughput)

	return throughput
}
