package generation

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/raglab/internal/upstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const generationInstrumentationName = "github.com/fyrsmithlabs/raglab/internal/generation"

// Metrics holds generation call metrics.
type Metrics struct {
	meter    metric.Meter
	logger   *zap.Logger
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewMetrics creates a new Metrics instance for generation calls.
func NewMetrics(logger *zap.Logger) *Metrics {
	m := &Metrics{
		meter:  otel.Meter(generationInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.duration, err = m.meter.Float64Histogram(
		"raglab.generation.duration_seconds",
		metric.WithDescription("Duration of generation service calls in seconds, labeled by model and operation (generate, ping)"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"raglab.generation.errors_total",
		metric.WithDescription("Generation service failures labeled by model, operation and class (unavailable, status, protocol, other)"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}
}

// RecordCall records the duration and outcome of one generation call.
func (m *Metrics) RecordCall(ctx context.Context, model, operation string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("model", model),
		attribute.String("operation", operation),
	}

	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}

	if err != nil && m.errors != nil {
		attrs = append(attrs, attribute.String("class", errorClass(err)))
		m.errors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func errorClass(err error) string {
	switch {
	case upstream.IsUnavailable(err):
		return "unavailable"
	case upstream.IsStatus(err):
		return "status"
	case upstream.IsProtocol(err):
		return "protocol"
	default:
		return "other"
	}
}
