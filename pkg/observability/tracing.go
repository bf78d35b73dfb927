// Package observability provides tracing and OpenTelemetry instruments for
// quickload transactions. Prometheus metrics live in pkg/metrics and
// structured logging in pkg/logger.
package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ajitpratap0/quickload"

var (
	// Global tracer instance
	tracer trace.Tracer

	// Global meter instance
	meter metric.Meter

	// Instruments created by initMetrics
	instruments struct {
		pagesSealed     metric.Int64Counter
		recordsProduced metric.Int64Counter
		partitionTime   metric.Float64Histogram
	}

	// Initialization lock
	initOnce sync.Once
	initErr  error

	mu sync.RWMutex
)

// TracingConfig contains tracing configuration
type TracingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	SamplingRate   float64
	ExporterType   string // "stdout" or "none"
	BatchTimeout   time.Duration
	MaxExportBatch int
	MaxQueueSize   int
}

// MetricsConfig contains OpenTelemetry meter configuration
type MetricsConfig struct {
	Namespace string
}

// Config contains all observability configuration
type Config struct {
	Tracing TracingConfig
	Metrics MetricsConfig
}

// Initialize sets up tracing and meters. Only the first call has an effect;
// later calls return the first call's result.
func Initialize(config Config) error {
	initOnce.Do(func() {
		if initErr = initTracing(config.Tracing); initErr != nil {
			return
		}
		initErr = initMetrics(config.Metrics)
	})
	return initErr
}

// GetTracer returns the global tracer. Before Initialize it is the no-op
// tracer of the global provider.
func GetTracer() trace.Tracer {
	mu.RLock()
	defer mu.RUnlock()
	if tracer == nil {
		return otel.Tracer(instrumentationName)
	}
	return tracer
}

// GetMeter returns the global meter
func GetMeter() metric.Meter {
	mu.RLock()
	defer mu.RUnlock()
	if meter == nil {
		return otel.Meter(instrumentationName)
	}
	return meter
}

// Span wraps a trace span with batched attributes.
type Span struct {
	span       trace.Span
	startTime  time.Time
	attributes []attribute.KeyValue
}

// NewSpan starts a span named operationName.
func NewSpan(ctx context.Context, operationName string) (context.Context, *Span) {
	ctx, span := GetTracer().Start(ctx, operationName)

	return ctx, &Span{
		span:      span,
		startTime: time.Now(),
	}
}

// SetAttribute adds an attribute to the span (batched for performance)
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue

	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}

	s.attributes = append(s.attributes, attr)
}

// AddEvent adds an event to the span
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Finish records err on the span (or marks it Ok) and ends it.
func (s *Span) Finish(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.End()
}

// End ends the span.
func (s *Span) End() {
	if len(s.attributes) > 0 {
		s.span.SetAttributes(s.attributes...)
	}
	s.span.End()
}

// Duration returns the time since the span started.
func (s *Span) Duration() time.Duration { return time.Since(s.startTime) }

// PluginTracer provides plugin-scoped spans.
type PluginTracer struct {
	pluginType string
	jobID      string
}

// NewPluginTracer returns a tracer whose spans carry the plugin type and
// job id.
func NewPluginTracer(pluginType, jobID string) *PluginTracer {
	return &PluginTracer{pluginType: pluginType, jobID: jobID}
}

// StartSpan starts a span named "<plugin>.<operation>".
func (pt *PluginTracer) StartSpan(ctx context.Context, operation string) (context.Context, *Span) {
	ctx, span := NewSpan(ctx, pt.pluginType+"."+operation)
	span.SetAttribute("plugin.type", pt.pluginType)
	span.SetAttribute("plugin.operation", operation)
	span.SetAttribute("job.id", pt.jobID)
	return ctx, span
}

// TracePartition runs fn inside a partition span and records its duration.
func (pt *PluginTracer) TracePartition(ctx context.Context, partition int, fn func(ctx context.Context) error) error {
	ctx, span := pt.StartSpan(ctx, "partition")
	span.SetAttribute("partition", partition)

	err := fn(ctx)

	RecordPartitionDuration(ctx, pt.pluginType, span.Duration(), err)
	span.Finish(err)
	return err
}
