package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// spanOutput receives exported spans. Stdout carries preview tables, so
// spans go to stderr.
var spanOutput io.Writer = os.Stderr

// initTracing initializes the tracing provider
func initTracing(config TracingConfig) error {
	if !config.Enabled || config.ExporterType == "none" {
		return nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(spanOutput), stdouttrace.WithPrettyPrint())
	if err != nil {
		return fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	// Configure sampling
	var sampler sdktrace.Sampler
	if config.SamplingRate <= 0 {
		sampler = sdktrace.NeverSample()
	} else if config.SamplingRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(config.SamplingRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(config.BatchTimeout),
			sdktrace.WithMaxExportBatchSize(config.MaxExportBatch),
			sdktrace.WithMaxQueueSize(config.MaxQueueSize),
		),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	mu.Lock()
	tracer = tp.Tracer(config.ServiceName)
	mu.Unlock()

	return nil
}

// initMetrics creates the meter instruments. Prometheus remains the
// primary metrics path; these instruments feed whichever OpenTelemetry
// meter provider the host process installed.
func initMetrics(config MetricsConfig) error {
	name := config.Namespace
	if name == "" {
		name = instrumentationName
	}
	m := otel.Meter(name)

	pages, err := m.Int64Counter("quickload.pages.sealed",
		metric.WithDescription("Pages sealed by page builders"))
	if err != nil {
		return fmt.Errorf("failed to create pages counter: %w", err)
	}
	records, err := m.Int64Counter("quickload.records.produced",
		metric.WithDescription("Records written into sealed pages"))
	if err != nil {
		return fmt.Errorf("failed to create records counter: %w", err)
	}
	partition, err := m.Float64Histogram("quickload.partition.duration",
		metric.WithDescription("Partition run time"), metric.WithUnit("s"))
	if err != nil {
		return fmt.Errorf("failed to create partition histogram: %w", err)
	}

	mu.Lock()
	meter = m
	instruments.pagesSealed = pages
	instruments.recordsProduced = records
	instruments.partitionTime = partition
	mu.Unlock()
	return nil
}

// RecordPageSealed counts one sealed page of n records. It is a no-op
// before Initialize.
func RecordPageSealed(ctx context.Context, plugin string, n int) {
	mu.RLock()
	pages, records := instruments.pagesSealed, instruments.recordsProduced
	mu.RUnlock()
	if pages == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("plugin", plugin))
	pages.Add(ctx, 1, attrs)
	records.Add(ctx, int64(n), attrs)
}

// RecordPartitionDuration observes the run time of one partition.
func RecordPartitionDuration(ctx context.Context, plugin string, d time.Duration, err error) {
	mu.RLock()
	h := instruments.partitionTime
	mu.RUnlock()
	if h == nil {
		return
	}
	h.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("plugin", plugin),
		attribute.String("status", getStatus(err)),
	))
}

// DefaultConfig returns a default observability configuration
func DefaultConfig() Config {
	return Config{
		Tracing: TracingConfig{
			Enabled:        false,
			ServiceName:    "quickload",
			ServiceVersion: "1.0.0",
			Environment:    getEnv("ENVIRONMENT", "development"),
			SamplingRate:   1.0,
			ExporterType:   getEnv("TRACING_EXPORTER", "stdout"),
			BatchTimeout:   5 * time.Second,
			MaxExportBatch: 512,
			MaxQueueSize:   2048,
		},
		Metrics: MetricsConfig{
			Namespace: "quickload",
		},
	}
}

// getEnv gets environment variable with default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getStatus returns status string for metrics
func getStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Shutdown flushes and stops the tracer provider if one was installed.
func Shutdown(ctx context.Context) error {
	if tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); ok {
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown tracer: %w", err)
		}
	}
	return nil
}
