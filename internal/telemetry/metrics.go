// Package telemetry provides the OpenTelemetry metrics and tracer used by the
// editor.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the meter and tracer name.
const InstrumentationName = "github.com/menta2k/image-editor"

// Config configures the metrics provider.
type Config struct {
	// MeterProvider defaults to the global provider.
	MeterProvider metric.MeterProvider
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
	// Version is reported as the instrumentation version.
	Version string
}

// Metrics holds the editor's instruments.
type Metrics struct {
	tracer trace.Tracer

	// Counters
	pipelineRuns      metric.Int64Counter
	pipelineSteps     metric.Int64Counter
	operationsApplied metric.Int64Counter
	serviceErrors     metric.Int64Counter

	// Histograms
	pipelineDuration metric.Float64Histogram
	stepDuration     metric.Float64Histogram

	initErr error
}

// New creates the instruments. Instrument creation errors are kept and
// reported by Error; the returned Metrics is always usable.
func New(cfg Config) *Metrics {
	mp := cfg.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}

	m := &Metrics{
		tracer: tp.Tracer(InstrumentationName, trace.WithInstrumentationVersion(cfg.Version)),
	}
	m.initErr = m.initInstruments(mp.Meter(InstrumentationName, metric.WithInstrumentationVersion(cfg.Version)))
	return m
}

func (m *Metrics) initInstruments(meter metric.Meter) error {
	var err error

	m.pipelineRuns, err = meter.Int64Counter(
		"editor.pipeline.runs",
		metric.WithDescription("Number of batch pipeline runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return err
	}

	m.pipelineSteps, err = meter.Int64Counter(
		"editor.pipeline.steps",
		metric.WithDescription("Number of batch pipeline steps executed"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		return err
	}

	m.operationsApplied, err = meter.Int64Counter(
		"editor.operations.applied",
		metric.WithDescription("Number of single operations applied"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return err
	}

	m.serviceErrors, err = meter.Int64Counter(
		"editor.service.errors",
		metric.WithDescription("Number of failed processing service calls"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	m.pipelineDuration, err = meter.Float64Histogram(
		"editor.pipeline.duration",
		metric.WithDescription("Duration of batch pipeline runs"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	m.stepDuration, err = meter.Float64Histogram(
		"editor.step.duration",
		metric.WithDescription("Duration of individual pipeline steps"),
		metric.WithUnit("ms"),
	)
	return err
}

// Error returns any initialization error.
func (m *Metrics) Error() error {
	return m.initErr
}

// Tracer returns the editor tracer.
func (m *Metrics) Tracer() trace.Tracer {
	return m.tracer
}

// RecordRun records a finished pipeline run.
func (m *Metrics) RecordRun(ctx context.Context, steps int, success bool, duration time.Duration) {
	if m.pipelineRuns == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.Int("pipeline.steps", steps),
		attribute.Bool("success", success),
	)
	m.pipelineRuns.Add(ctx, 1, attrs)
	m.pipelineDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordStep records one executed pipeline step.
func (m *Metrics) RecordStep(ctx context.Context, kind string, success bool, duration time.Duration) {
	if m.pipelineSteps == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation.kind", kind),
		attribute.Bool("success", success),
	)
	m.pipelineSteps.Add(ctx, 1, attrs)
	m.stepDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	if !success {
		m.RecordServiceError(ctx, kind)
	}
}

// RecordApplied records a single operation applied outside a batch.
func (m *Metrics) RecordApplied(ctx context.Context, kind string, success bool) {
	if m.operationsApplied == nil {
		return
	}
	m.operationsApplied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation.kind", kind),
		attribute.Bool("success", success),
	))
	if !success {
		m.RecordServiceError(ctx, kind)
	}
}

// RecordServiceError records a failed service call.
func (m *Metrics) RecordServiceError(ctx context.Context, kind string) {
	if m.serviceErrors == nil {
		return
	}
	m.serviceErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("operation.kind", kind)))
}
