// Package observe provides application-wide observability primitives for
// the call core: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all call-core metrics.
const meterName = "github.com/voicecore/callcore"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ProviderDialDuration tracks ProviderDriver.InitiateCall latency.
	ProviderDialDuration metric.Float64Histogram

	// ResponseLatency tracks firstResponseAudio - userSpeechDetected per
	// turn (see internal/latency).
	ResponseLatency metric.Float64Histogram

	// CallDuration tracks total call wall-clock time at call end.
	CallDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts carrier provider API calls. Use with
	// attributes: attribute.String("provider", ...), attribute.String("op", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts carrier provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("class", ...)
	ProviderErrors metric.Int64Counter

	// CallsTotal counts calls reaching a terminal status. Use with
	// attribute.String("status", ...).
	CallsTotal metric.Int64Counter

	// Interruptions counts barge-ins detected across all calls.
	Interruptions metric.Int64Counter

	// FillersPlayed counts hedge-engine filler clips played.
	FillersPlayed metric.Int64Counter

	// OutboundFramesDropped counts outbound media frames dropped by
	// MediaBridge backpressure (drop-oldest policy).
	OutboundFramesDropped metric.Int64Counter

	// InboundDisconnects counts carrier sockets disconnected for
	// persistent inbound lag ("carrier too slow").
	InboundDisconnects metric.Int64Counter

	// WebhookEvents counts carrier webhook deliveries by kind and outcome.
	WebhookEvents metric.Int64Counter

	// --- Gauges ---

	// ActiveCalls tracks the number of calls currently in progress.
	ActiveCalls metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// callDurationBuckets defines histogram bucket boundaries (in seconds) for
// whole-call durations, which run far longer than turn latencies.
var callDurationBuckets = []float64{
	5, 15, 30, 60, 120, 300, 600, 1200,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ProviderDialDuration, err = m.Float64Histogram("callcore.provider.dial.duration",
		metric.WithDescription("Latency of ProviderDriver.InitiateCall."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ResponseLatency, err = m.Float64Histogram("callcore.response.latency",
		metric.WithDescription("Per-turn latency from detected user speech end to first response audio."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CallDuration, err = m.Float64Histogram("callcore.call.duration",
		metric.WithDescription("Total wall-clock duration of a completed call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(callDurationBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("callcore.provider.requests",
		metric.WithDescription("Total carrier provider API requests by provider, operation, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("callcore.provider.errors",
		metric.WithDescription("Total carrier provider errors by provider and error class."),
	); err != nil {
		return nil, err
	}
	if met.CallsTotal, err = m.Int64Counter("callcore.calls.total",
		metric.WithDescription("Total calls reaching a terminal status, by status."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("callcore.interruptions",
		metric.WithDescription("Total barge-in interruptions detected."),
	); err != nil {
		return nil, err
	}
	if met.FillersPlayed, err = m.Int64Counter("callcore.fillers.played",
		metric.WithDescription("Total hedge-engine filler clips played."),
	); err != nil {
		return nil, err
	}
	if met.OutboundFramesDropped, err = m.Int64Counter("callcore.media.outbound.dropped",
		metric.WithDescription("Total outbound media frames dropped by backpressure."),
	); err != nil {
		return nil, err
	}
	if met.InboundDisconnects, err = m.Int64Counter("callcore.media.inbound.disconnects",
		metric.WithDescription("Total carrier sockets disconnected for persistent inbound lag."),
	); err != nil {
		return nil, err
	}
	if met.WebhookEvents, err = m.Int64Counter("callcore.webhook.events",
		metric.WithDescription("Total carrier webhook deliveries by kind and outcome."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveCalls, err = m.Int64UpDownCounter("callcore.active_calls",
		metric.WithDescription("Number of calls currently in progress."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("callcore.http.request.duration",
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

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, op, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, class string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("class", class),
		),
	)
}

// RecordCallEnded is a convenience method that records a terminal-status
// call and its total duration.
func (m *Metrics) RecordCallEnded(ctx context.Context, status string, durationSec float64) {
	m.CallsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.CallDuration.Record(ctx, durationSec)
}
