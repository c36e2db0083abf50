// Package observe provides application-wide observability primitives for
// timeturner: OpenTelemetry metrics, tracing, and HTTP middleware that
// ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all timeturner metrics.
const meterName = "github.com/studioclock/timeturner"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Histograms ---

	// DecodeDuration tracks per-window decode processing time.
	DecodeDuration metric.Float64Histogram

	// PulsesPerWindow tracks how many pulses each analysis window carried.
	PulsesPerWindow metric.Int64Histogram

	// OffsetMs tracks the measured clock offset per decode event.
	OffsetMs metric.Float64Histogram

	// --- Counters ---

	// Windows counts analysed audio windows by outcome ("decoded",
	// "fault").
	Windows metric.Int64Counter

	// Lines counts parsed text lines by outcome.
	Lines metric.Int64Counter

	// Events counts decode events by reported status ("LOCK", "FREE").
	Events metric.Int64Counter

	// Faults counts recoverable decode faults by kind ("no-signal",
	// "no-sync", "invalid-frame", ...).
	Faults metric.Int64Counter

	// Dropped counts ingress windows discarded because the pipeline was
	// still busy with an older one.
	Dropped metric.Int64Counter

	// Corrections counts clock corrections by outcome ("applied",
	// "denied", "logged").
	Corrections metric.Int64Counter

	// --- Gauges ---

	// Locked tracks whether the decoder currently holds a lock (0 or 1).
	Locked metric.Int64UpDownCounter

	// HistoryDepth tracks the offset ring-buffer fill level.
	HistoryDepth metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// decodeBuckets defines histogram bucket boundaries (in seconds) for the
// per-window decode cost, which is small compared to the window itself.
var decodeBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5,
}

// offsetBuckets covers the plausible clock-offset range in milliseconds,
// symmetric around zero.
var offsetBuckets = []float64{
	-1000, -250, -100, -40, -10, 0, 10, 40, 100, 250, 1000,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.DecodeDuration, err = m.Float64Histogram("timeturner.decode.duration",
		metric.WithDescription("Processing time per analysis window."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(decodeBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PulsesPerWindow, err = m.Int64Histogram("timeturner.decode.pulses",
		metric.WithDescription("Pulse count per analysis window."),
	); err != nil {
		return nil, err
	}
	if met.OffsetMs, err = m.Float64Histogram("timeturner.sync.offset",
		metric.WithDescription("Measured clock offset per decode event."),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(offsetBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Windows, err = m.Int64Counter("timeturner.ingress.windows",
		metric.WithDescription("Total analysed audio windows by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Lines, err = m.Int64Counter("timeturner.ingress.lines",
		metric.WithDescription("Total parsed text lines by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Events, err = m.Int64Counter("timeturner.decode.events",
		metric.WithDescription("Total decode events by lock status."),
	); err != nil {
		return nil, err
	}
	if met.Faults, err = m.Int64Counter("timeturner.decode.faults",
		metric.WithDescription("Total recoverable decode faults by kind."),
	); err != nil {
		return nil, err
	}
	if met.Dropped, err = m.Int64Counter("timeturner.ingress.dropped",
		metric.WithDescription("Ingress windows discarded because the consumer was busy."),
	); err != nil {
		return nil, err
	}
	if met.Corrections, err = m.Int64Counter("timeturner.sync.corrections",
		metric.WithDescription("Clock corrections by outcome."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.Locked, err = m.Int64UpDownCounter("timeturner.sync.locked",
		metric.WithDescription("Whether the decoder currently holds a lock."),
	); err != nil {
		return nil, err
	}
	if met.HistoryDepth, err = m.Int64UpDownCounter("timeturner.sync.history_depth",
		metric.WithDescription("Offset ring-buffer fill level."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("timeturner.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFault records one recoverable decode fault.
func (m *Metrics) RecordFault(ctx context.Context, kind string) {
	m.Faults.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordEvent records one decode event with its lock status.
func (m *Metrics) RecordEvent(ctx context.Context, status string) {
	m.Events.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordCorrection records the outcome of one sync attempt.
func (m *Metrics) RecordCorrection(ctx context.Context, outcome string) {
	m.Corrections.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordWindow records one analysed window: its outcome, processing cost
// and pulse count.
func (m *Metrics) RecordWindow(ctx context.Context, outcome string, seconds float64, pulses int) {
	m.Windows.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.DecodeDuration.Record(ctx, seconds)
	m.PulsesPerWindow.Record(ctx, int64(pulses))
}

// SetLocked moves the lock gauge between 0 and 1. The caller tracks edges;
// this only applies the delta.
func (m *Metrics) SetLocked(ctx context.Context, locked bool) {
	if locked {
		m.Locked.Add(ctx, 1)
	} else {
		m.Locked.Add(ctx, -1)
	}
}
