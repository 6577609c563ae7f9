package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rickgao/ticker-relay/internal/version"
)

const namespace = "ticker_relay"

// Metrics holds the process collectors on a dedicated registry.
type Metrics struct {
	Registry *prometheus.Registry

	feedState      prometheus.Gauge
	feedFrames     *prometheus.CounterVec
	feedReconnects prometheus.Counter

	publishRecords *prometheus.CounterVec
	unknownKeys    prometheus.Counter

	batches         prometheus.Counter
	batchSize       prometheus.Histogram
	skippedRecords  prometheus.Counter
	commits         prometheus.Counter
	persistDuration prometheus.Histogram
	persistErrors   prometheus.Counter
	restarts        prometheus.Counter

	sinkRows *prometheus.CounterVec
}

// New creates and registers all collectors. role labels the build info gauge
// ("producer", "consumer").
func New(role string) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		feedState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "feed", Name: "state",
			Help: "Feed connection state (0 disconnected, 1 connecting, 2 subscribed, 3 streaming).",
		}),
		feedFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "frames_total",
			Help: "Frames read from the feed by kind.",
		}, []string{"kind"}),
		feedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "reconnects_total",
			Help: "Feed reconnect attempts.",
		}),
		publishRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "publisher", Name: "records_total",
			Help: "Published records by outcome.",
		}, []string{"outcome"}),
		unknownKeys: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "publisher", Name: "unknown_keys_total",
			Help: "Records published with the fallback partition key.",
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "batches_total",
			Help: "Batches persisted and committed.",
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "batch_events",
			Help:    "Decoded events per batch.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		skippedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "skipped_records_total",
			Help: "Records skipped because they could not be decoded.",
		}),
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "commits_total",
			Help: "Offset commits.",
		}),
		persistDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "persist_duration_seconds",
			Help:    "Time spent persisting one batch.",
			Buckets: prometheus.DefBuckets,
		}),
		persistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "persist_errors_total",
			Help: "Failed batch persists.",
		}),
		restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "restarts_total",
			Help: "Consumer pipeline restarts after a failure.",
		}),
		sinkRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sink", Name: "rows_total",
			Help: "Rows handled by the sink by result.",
		}, []string{"result"}),
	}

	buildInfo := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: "build_info",
		Help: "Build information.",
	}, []string{"role", "version", "commit"})
	buildInfo.WithLabelValues(role, version.Version, version.Commit).Set(1)

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		buildInfo,
		m.feedState, m.feedFrames, m.feedReconnects,
		m.publishRecords, m.unknownKeys,
		m.batches, m.batchSize, m.skippedRecords, m.commits,
		m.persistDuration, m.persistErrors, m.restarts,
		m.sinkRows,
	)
	return m
}

// Feed frame kinds.
const (
	FrameEvent         = "event"
	FrameParseError    = "parse_error"
	FrameExchangeError = "exchange_error"
)

// FeedState records the numeric feed state.
func (m *Metrics) FeedState(state int) {
	if m == nil {
		return
	}
	m.feedState.Set(float64(state))
}

// FeedFrame counts one frame of the given kind.
func (m *Metrics) FeedFrame(kind string) {
	if m == nil {
		return
	}
	m.feedFrames.WithLabelValues(kind).Inc()
}

// FeedReconnect counts a reconnect attempt.
func (m *Metrics) FeedReconnect() {
	if m == nil {
		return
	}
	m.feedReconnects.Inc()
}

// Publish outcomes.
const (
	OutcomeAccepted  = "accepted"
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomeInvalid   = "invalid"
	OutcomeRejected  = "rejected"
)

// PublishOutcome counts one publisher outcome.
func (m *Metrics) PublishOutcome(outcome string) {
	if m == nil {
		return
	}
	m.publishRecords.WithLabelValues(outcome).Inc()
}

// UnknownKey counts a record keyed with the fallback key.
func (m *Metrics) UnknownKey() {
	if m == nil {
		return
	}
	m.unknownKeys.Inc()
}

// BatchPersisted records a batch that was persisted in d.
func (m *Metrics) BatchPersisted(events int, d time.Duration) {
	if m == nil {
		return
	}
	m.batches.Inc()
	m.batchSize.Observe(float64(events))
	m.persistDuration.Observe(d.Seconds())
}

// PersistFailed counts a failed persist.
func (m *Metrics) PersistFailed() {
	if m == nil {
		return
	}
	m.persistErrors.Inc()
}

// RecordSkipped counts an undecodable record.
func (m *Metrics) RecordSkipped() {
	if m == nil {
		return
	}
	m.skippedRecords.Inc()
}

// Committed counts an offset commit.
func (m *Metrics) Committed() {
	if m == nil {
		return
	}
	m.commits.Inc()
}

// Restarted counts a pipeline restart.
func (m *Metrics) Restarted() {
	if m == nil {
		return
	}
	m.restarts.Inc()
}

// SinkRows adds n rows with the given result ("inserted", "conflict",
// "defaulted_time", "invalid_decimal").
func (m *Metrics) SinkRows(result string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.sinkRows.WithLabelValues(result).Add(float64(n))
}
