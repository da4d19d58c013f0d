// Package shared provides instrumentation shared by the relay services.
package shared

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/archon-research/oracle-relay/internal/domain/entity"
	"github.com/archon-research/oracle-relay/internal/ports/outbound"
)

// Compile-time assertion that RelayTelemetry implements MetricsRecorder.
var _ outbound.MetricsRecorder = (*RelayTelemetry)(nil)

const (
	// instrumentationName is the name used for OpenTelemetry instrumentation.
	instrumentationName = "github.com/archon-research/oracle-relay/internal/services"
)

// RelayTelemetry provides OpenTelemetry metrics for oracle relay events.
type RelayTelemetry struct {
	meter metric.Meter

	registrationsTotal metric.Int64Counter
	requestsTotal      metric.Int64Counter
	attemptsTotal      metric.Int64Counter
	droppedTotal       metric.Int64Counter
	responsesTotal     metric.Int64Counter
	streamErrorsTotal  metric.Int64Counter
	responseDuration   metric.Float64Histogram
}

// NewRelayTelemetry creates a RelayTelemetry on the global meter provider.
func NewRelayTelemetry() (*RelayTelemetry, error) {
	return NewRelayTelemetryWithProvider(otel.GetMeterProvider())
}

// NewRelayTelemetryWithProvider creates a RelayTelemetry with a custom meter provider.
func NewRelayTelemetryWithProvider(mp metric.MeterProvider) (*RelayTelemetry, error) {
	meter := mp.Meter(instrumentationName)

	t := &RelayTelemetry{
		meter: meter,
	}

	var err error

	t.registrationsTotal, err = meter.Int64Counter(
		"oracle.registrations.total",
		metric.WithDescription("Oracle registration attempts by outcome"),
	)
	if err != nil {
		return nil, err
	}

	t.requestsTotal, err = meter.Int64Counter(
		"oracle.requests.total",
		metric.WithDescription("OracleRequest events received"),
	)
	if err != nil {
		return nil, err
	}

	t.attemptsTotal, err = meter.Int64Counter(
		"oracle.attempts.total",
		metric.WithDescription("Response attempts fanned out from request events"),
	)
	if err != nil {
		return nil, err
	}

	t.droppedTotal, err = meter.Int64Counter(
		"oracle.requests.dropped.total",
		metric.WithDescription("OracleRequest events dropped because they could not be decoded"),
	)
	if err != nil {
		return nil, err
	}

	t.responsesTotal, err = meter.Int64Counter(
		"oracle.responses.total",
		metric.WithDescription("Oracle response submissions by outcome and failure reason"),
	)
	if err != nil {
		return nil, err
	}

	t.streamErrorsTotal, err = meter.Int64Counter(
		"oracle.stream.errors.total",
		metric.WithDescription("Transport faults on the OracleRequest subscription"),
	)
	if err != nil {
		return nil, err
	}

	t.responseDuration, err = meter.Float64Histogram(
		"oracle.response.duration",
		metric.WithDescription("Time from dispatch to receipt for one response submission"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return nil, err
	}

	return t, nil
}

// RecordRegistration records the result of one oracle registration attempt.
func (t *RelayTelemetry) RecordRegistration(ctx context.Context, kind entity.FailureKind) {
	t.registrationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", kind.Label()),
	))
}

// RecordRequest records a received request event and its fan-out.
func (t *RelayTelemetry) RecordRequest(ctx context.Context, attempts int) {
	t.requestsTotal.Add(ctx, 1)
	t.attemptsTotal.Add(ctx, int64(attempts))
}

// RecordDroppedRequest records a request event that could not be decoded.
func (t *RelayTelemetry) RecordDroppedRequest(ctx context.Context) {
	t.droppedTotal.Add(ctx, 1)
}

// RecordResponse records the outcome of one response submission.
func (t *RelayTelemetry) RecordResponse(ctx context.Context, kind entity.FailureKind, reason string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("outcome", kind.Label()),
		attribute.String("reason", reason),
	)
	t.responsesTotal.Add(ctx, 1, attrs)
	t.responseDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordStreamError records a transport fault on the event subscription.
func (t *RelayTelemetry) RecordStreamError(ctx context.Context) {
	t.streamErrorsTotal.Add(ctx, 1)
}
