// Package observe provides application-wide observability primitives for
// Vocalise: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
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

// meterName is the instrumentation scope name used for all Vocalise metrics.
const meterName = "github.com/vocalise-app/vocalise"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// SaveDuration tracks recording persistence latency.
	SaveDuration metric.Float64Histogram

	// PlaybackDuration tracks full playback runs, fetch to last sample.
	PlaybackDuration metric.Float64Histogram

	// NormalizeDuration tracks duration-correction latency.
	NormalizeDuration metric.Float64Histogram

	// BridgeCallDuration tracks host-bridge round-trip latency.
	BridgeCallDuration metric.Float64Histogram

	// --- Counters ---

	// RecordingSaves counts persisted recordings. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("status", ...)
	RecordingSaves metric.Int64Counter

	// Playbacks counts playback runs. Use with attributes:
	//   attribute.String("path", "decoded"|"fallback"|"store"), attribute.String("status", ...)
	Playbacks metric.Int64Counter

	// CaptureTimeouts counts sessions force-stopped at the duration limit.
	CaptureTimeouts metric.Int64Counter

	// --- Error counters ---

	// StorageErrors counts storage failures. Use with attribute:
	//   attribute.String("op", ...)
	StorageErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveCaptures tracks live microphone sessions.
	ActiveCaptures metric.Int64UpDownCounter

	// ActivePlaybacks tracks in-flight playback runs.
	ActivePlaybacks metric.Int64UpDownCounter

	// BridgeConnections tracks open host-bridge connections.
	BridgeConnections metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized
// for local storage and audio-pipeline latencies.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SaveDuration, err = m.Float64Histogram("vocalise.save.duration",
		metric.WithDescription("Latency of persisting one recording."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("vocalise.playback.duration",
		metric.WithDescription("Duration of one playback run, fetch to last sample."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.NormalizeDuration, err = m.Float64Histogram("vocalise.normalize.duration",
		metric.WithDescription("Latency of audio duration correction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BridgeCallDuration, err = m.Float64Histogram("vocalise.bridge.call.duration",
		metric.WithDescription("Host-bridge storage round-trip latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.RecordingSaves, err = m.Int64Counter("vocalise.recording.saves",
		metric.WithDescription("Total recording saves by backend and status."),
	); err != nil {
		return nil, err
	}
	if met.Playbacks, err = m.Int64Counter("vocalise.playbacks",
		metric.WithDescription("Total playback runs by decode path and status."),
	); err != nil {
		return nil, err
	}
	if met.CaptureTimeouts, err = m.Int64Counter("vocalise.capture.timeouts",
		metric.WithDescription("Total capture sessions force-stopped at the duration limit."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.StorageErrors, err = m.Int64Counter("vocalise.storage.errors",
		metric.WithDescription("Total storage failures by operation."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveCaptures, err = m.Int64UpDownCounter("vocalise.active_captures",
		metric.WithDescription("Number of live microphone sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActivePlaybacks, err = m.Int64UpDownCounter("vocalise.active_playbacks",
		metric.WithDescription("Number of in-flight playback runs."),
	); err != nil {
		return nil, err
	}
	if met.BridgeConnections, err = m.Int64UpDownCounter("vocalise.bridge.connections",
		metric.WithDescription("Number of open host-bridge connections."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("vocalise.http.request.duration",
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

// RecordSave records a recording save with the standard attribute set.
func (m *Metrics) RecordSave(ctx context.Context, backend, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("status", status),
	)
	m.RecordingSaves.Add(ctx, 1, attrs)
	m.SaveDuration.Record(ctx, seconds, attrs)
}

// RecordPlayback records a playback run with the standard attribute set.
func (m *Metrics) RecordPlayback(ctx context.Context, path, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("path", path),
		attribute.String("status", status),
	)
	m.Playbacks.Add(ctx, 1, attrs)
	m.PlaybackDuration.Record(ctx, seconds, attrs)
}

// RecordBridgeCall records one host-bridge round trip for op.
func (m *Metrics) RecordBridgeCall(ctx context.Context, op, status string, seconds float64) {
	m.BridgeCallDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("status", status),
	))
}

// RecordStorageError records a storage failure for op.
func (m *Metrics) RecordStorageError(ctx context.Context, op string) {
	m.StorageErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("op", op)),
	)
}
