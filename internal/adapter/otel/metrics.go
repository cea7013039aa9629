package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "mailflow"

// Metrics holds all mailflow metric instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Classifications metric.Int64Counter
	GateOverrides   metric.Int64Counter
	Confidence      metric.Float64Histogram
	Routes          metric.Int64Counter
	Fallbacks       metric.Int64Counter
	RouteFailures   metric.Int64Counter
	StageDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Classifications, err = meter.Int64Counter("mailflow.classifications",
		metric.WithDescription("Emails classified, by delivered workflow type"))
	if err != nil {
		return nil, err
	}

	m.GateOverrides, err = meter.Int64Counter("mailflow.gate.overrides",
		metric.WithDescription("Classifications rewritten to HumanReview by the confidence gate"))
	if err != nil {
		return nil, err
	}

	m.Confidence, err = meter.Float64Histogram("mailflow.classification.confidence",
		metric.WithDescription("Confidence score reported by the classification capability"),
		metric.WithExplicitBucketBoundaries(0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 1))
	if err != nil {
		return nil, err
	}

	m.Routes, err = meter.Int64Counter("mailflow.routes",
		metric.WithDescription("Emails delivered to a handler"))
	if err != nil {
		return nil, err
	}

	m.Fallbacks, err = meter.Int64Counter("mailflow.routes.fallback",
		metric.WithDescription("Deliveries that went through the human-review fallback"))
	if err != nil {
		return nil, err
	}

	m.RouteFailures, err = meter.Int64Counter("mailflow.routes.failed",
		metric.WithDescription("Emails no handler accepted"))
	if err != nil {
		return nil, err
	}

	m.StageDuration, err = meter.Float64Histogram("mailflow.stage.duration_seconds",
		metric.WithDescription("Duration of pipeline stages in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordClassification counts one classification. raw is the capability's
// score, delivered the workflow type after the gate.
func (m *Metrics) RecordClassification(ctx context.Context, delivered string, raw float64, overridden bool) {
	if m == nil {
		return
	}
	m.Classifications.Add(ctx, 1, metric.WithAttributes(attribute.String("workflow_type", delivered)))
	m.Confidence.Record(ctx, raw)
	if overridden {
		m.GateOverrides.Add(ctx, 1)
	}
}

// RecordRoute counts one successful delivery.
func (m *Metrics) RecordRoute(ctx context.Context, handler string, fallback, substituted bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("handler", handler),
		attribute.Bool("fallback", fallback),
		attribute.Bool("substituted", substituted),
	)
	m.Routes.Add(ctx, 1, attrs)
	if fallback {
		m.Fallbacks.Add(ctx, 1)
	}
}

// RecordRouteFailure counts one terminal routing failure of the given kind.
func (m *Metrics) RecordRouteFailure(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.RouteFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(ctx context.Context, stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.StageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.Bool("error", err != nil),
	))
}
