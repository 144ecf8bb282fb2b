// Package observe provides the observability primitives shared by every
// Signflow component: OpenTelemetry metric instruments, tracing helpers,
// trace-aware slog loggers and the HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported
// through the Prometheus bridge set up by [InitProvider], so they are scraped
// from /metrics. [DefaultMetrics] returns a package-level instance bound to
// the global meter provider; tests should call [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all Signflow metrics.
const meterName = "github.com/MrWong99/signflow"

// Metrics holds the metric instruments of the application. The underlying
// OTel instruments handle their own synchronisation.
type Metrics struct {
	// RephraseDuration tracks end-to-end rephrase latency, including the
	// fallback path. Attributes: source.
	RephraseDuration metric.Float64Histogram

	// RephraseRequests counts translations by outcome. Attributes: source,
	// reason (empty for assisted results).
	RephraseRequests metric.Int64Counter

	// FilteredWords counts tokens dropped by vocabulary validation.
	FilteredWords metric.Int64Counter

	// MediaLookups counts duration lookups. Attributes: result
	// (hit, miss, no_media, error).
	MediaLookups metric.Int64Counter

	// MediaFetchDuration tracks how long fetching an animation asset takes.
	MediaFetchDuration metric.Float64Histogram

	// QueueLoads counts playback queue replacements. Attributes: trigger.
	QueueLoads metric.Int64Counter

	// ActiveSessions tracks live WebSocket sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ToolCalls counts MCP tool invocations. Attributes: tool, status.
	ToolCalls metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds, sized for a remote
// model round trip.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RephraseDuration, err = m.Float64Histogram("signflow.rephrase.duration",
		metric.WithDescription("Latency of sentence rephrasing, fallback included."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MediaFetchDuration, err = m.Float64Histogram("signflow.media.fetch.duration",
		metric.WithDescription("Latency of fetching an animation asset to size it."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("signflow.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if met.RephraseRequests, err = m.Int64Counter("signflow.rephrase.requests",
		metric.WithDescription("Translations by source and fallback reason."),
	); err != nil {
		return nil, err
	}
	if met.FilteredWords, err = m.Int64Counter("signflow.rephrase.filtered_words",
		metric.WithDescription("Words removed because they are not in the vocabulary."),
	); err != nil {
		return nil, err
	}
	if met.MediaLookups, err = m.Int64Counter("signflow.media.duration_lookups",
		metric.WithDescription("Duration lookups by result."),
	); err != nil {
		return nil, err
	}
	if met.QueueLoads, err = m.Int64Counter("signflow.playback.queue_loads",
		metric.WithDescription("Playback queue replacements by trigger."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("signflow.tool.calls",
		metric.WithDescription("MCP tool invocations by tool and status."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("signflow.active_sessions",
		metric.WithDescription("Number of live interpreter sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], created on first use
// from [otel.GetMeterProvider]. It panics if instrument creation fails, which
// does not happen with the global provider.
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

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordRephrase records one translation outcome and its latency.
func (m *Metrics) RecordRephrase(ctx context.Context, source, reason string, d time.Duration) {
	m.RephraseDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("source", source)),
	)
	m.RephraseRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("reason", reason),
		),
	)
}

// RecordFiltered adds n to the filtered-words counter. n <= 0 is ignored.
func (m *Metrics) RecordFiltered(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	m.FilteredWords.Add(ctx, int64(n))
}

// RecordMediaLookup records one duration lookup.
func (m *Metrics) RecordMediaLookup(ctx context.Context, result string) {
	m.MediaLookups.Add(ctx, 1,
		metric.WithAttributes(attribute.String("result", result)),
	)
}

// RecordQueueLoad records one playback queue replacement.
func (m *Metrics) RecordQueueLoad(ctx context.Context, trigger string) {
	m.QueueLoads.Add(ctx, 1,
		metric.WithAttributes(attribute.String("trigger", trigger)),
	)
}

// RecordToolCall records one MCP tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}
