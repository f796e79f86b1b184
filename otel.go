package vault

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/rbaliyan/mailvault"
)

// otelInstrumentation holds OpenTelemetry instrumentation for the vault service.
type otelInstrumentation struct {
	enabled bool

	// Tracing
	tracingEnabled bool
	tracer         trace.Tracer

	// Metrics
	metricsEnabled bool

	appendLatency metric.Float64Histogram
	appendCount   metric.Int64Counter
	appendErrors  metric.Int64Counter
	deleteLatency metric.Float64Histogram
	deleteCount   metric.Int64Counter
	deleteErrors  metric.Int64Counter
	loadLatency   metric.Float64Histogram
	loadCount     metric.Int64Counter
	loadErrors    metric.Int64Counter
	searchLatency metric.Float64Histogram
	searchCount   metric.Int64Counter
	searchErrors  metric.Int64Counter
	gcLatency     metric.Float64Histogram
	gcBuckets     metric.Int64Counter
	gcMessages    metric.Int64Counter
	gcErrors      metric.Int64Counter
}

// newOtelInstrumentation creates new OTel instrumentation from options.
func newOtelInstrumentation(opts *options) (*otelInstrumentation, error) {
	o := &otelInstrumentation{
		enabled:        opts.tracingEnabled || opts.metricsEnabled,
		tracingEnabled: opts.tracingEnabled,
		metricsEnabled: opts.metricsEnabled,
	}

	if !o.enabled {
		return o, nil
	}

	if opts.tracingEnabled {
		tp := opts.tracerProvider
		if tp == nil {
			tp = otel.GetTracerProvider()
		}
		o.tracer = tp.Tracer(instrumentationName)
	}

	if opts.metricsEnabled {
		mp := opts.meterProvider
		if mp == nil {
			mp = otel.GetMeterProvider()
		}
		if err := o.initMetrics(mp); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// initMetrics initializes all metric instruments.
func (o *otelInstrumentation) initMetrics(mp metric.MeterProvider) error {
	meter := mp.Meter(instrumentationName)

	var err error

	o.appendLatency, err = meter.Float64Histogram(
		"vault.append.duration",
		metric.WithDescription("Duration of append operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.appendCount, err = meter.Int64Counter(
		"vault.append.count",
		metric.WithDescription("Number of messages appended"),
	)
	if err != nil {
		return err
	}

	o.appendErrors, err = meter.Int64Counter(
		"vault.append.errors",
		metric.WithDescription("Number of append errors"),
	)
	if err != nil {
		return err
	}

	o.deleteLatency, err = meter.Float64Histogram(
		"vault.delete.duration",
		metric.WithDescription("Duration of delete operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.deleteCount, err = meter.Int64Counter(
		"vault.delete.count",
		metric.WithDescription("Number of delete operations"),
	)
	if err != nil {
		return err
	}

	o.deleteErrors, err = meter.Int64Counter(
		"vault.delete.errors",
		metric.WithDescription("Number of delete errors"),
	)
	if err != nil {
		return err
	}

	o.loadLatency, err = meter.Float64Histogram(
		"vault.load.duration",
		metric.WithDescription("Duration of content load operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.loadCount, err = meter.Int64Counter(
		"vault.load.count",
		metric.WithDescription("Number of content load operations"),
	)
	if err != nil {
		return err
	}

	o.loadErrors, err = meter.Int64Counter(
		"vault.load.errors",
		metric.WithDescription("Number of content load errors"),
	)
	if err != nil {
		return err
	}

	o.searchLatency, err = meter.Float64Histogram(
		"vault.search.duration",
		metric.WithDescription("Duration of search operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.searchCount, err = meter.Int64Counter(
		"vault.search.count",
		metric.WithDescription("Number of search operations"),
	)
	if err != nil {
		return err
	}

	o.searchErrors, err = meter.Int64Counter(
		"vault.search.errors",
		metric.WithDescription("Number of search errors"),
	)
	if err != nil {
		return err
	}

	o.gcLatency, err = meter.Float64Histogram(
		"vault.gc.duration",
		metric.WithDescription("Duration of garbage collection runs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.gcBuckets, err = meter.Int64Counter(
		"vault.gc.buckets",
		metric.WithDescription("Number of buckets dropped by garbage collection"),
	)
	if err != nil {
		return err
	}

	o.gcMessages, err = meter.Int64Counter(
		"vault.gc.messages",
		metric.WithDescription("Number of messages dropped by garbage collection"),
	)
	if err != nil {
		return err
	}

	o.gcErrors, err = meter.Int64Counter(
		"vault.gc.errors",
		metric.WithDescription("Number of garbage collection errors"),
	)
	if err != nil {
		return err
	}

	return nil
}

// startSpan starts a new span if tracing is enabled.
// Caller should call the returned function with the operation's error.
func (o *otelInstrumentation) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if !o.tracingEnabled || o.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := o.tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// recordAppend records append operation metrics.
func (o *otelInstrumentation) recordAppend(ctx context.Context, duration time.Duration, err error) {
	if !o.metricsEnabled {
		return
	}

	o.appendLatency.Record(ctx, duration.Seconds())
	o.appendCount.Add(ctx, 1)
	if err != nil {
		o.appendErrors.Add(ctx, 1)
	}
}

// recordDelete records delete operation metrics.
func (o *otelInstrumentation) recordDelete(ctx context.Context, duration time.Duration, err error) {
	if !o.metricsEnabled {
		return
	}

	o.deleteLatency.Record(ctx, duration.Seconds())
	o.deleteCount.Add(ctx, 1)
	if err != nil {
		o.deleteErrors.Add(ctx, 1)
	}
}

// recordLoad records content load operation metrics.
func (o *otelInstrumentation) recordLoad(ctx context.Context, duration time.Duration, err error) {
	if !o.metricsEnabled {
		return
	}

	o.loadLatency.Record(ctx, duration.Seconds())
	o.loadCount.Add(ctx, 1)
	if err != nil {
		o.loadErrors.Add(ctx, 1)
	}
}

// recordSearch records search operation metrics.
func (o *otelInstrumentation) recordSearch(ctx context.Context, duration time.Duration, bucketCount int, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.Int("bucket_count", bucketCount),
	)

	o.searchLatency.Record(ctx, duration.Seconds(), attrs)
	o.searchCount.Add(ctx, 1, attrs)
	if err != nil {
		o.searchErrors.Add(ctx, 1, attrs)
	}
}

// recordGC records garbage collection run metrics.
func (o *otelInstrumentation) recordGC(ctx context.Context, duration time.Duration, buckets int, messages int64, failures int, err error) {
	if !o.metricsEnabled {
		return
	}

	o.gcLatency.Record(ctx, duration.Seconds())
	o.gcBuckets.Add(ctx, int64(buckets))
	o.gcMessages.Add(ctx, messages)
	if failures > 0 {
		o.gcErrors.Add(ctx, int64(failures))
	}
	if err != nil {
		o.gcErrors.Add(ctx, 1)
	}
}
