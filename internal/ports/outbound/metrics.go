package outbound

import (
	"context"
	"time"

	"github.com/archon-research/oracle-relay/internal/domain/entity"
)

// MetricsRecorder provides an interface for recording relay metrics.
// This allows the services to record metrics without depending on
// specific telemetry implementations.
type MetricsRecorder interface {
	// RecordRegistration records the result of one oracle registration attempt.
	RecordRegistration(ctx context.Context, kind entity.FailureKind)

	// RecordRequest records a received request event and how many attempts it fanned out to.
	RecordRequest(ctx context.Context, attempts int)

	// RecordDroppedRequest records a request event that could not be decoded.
	RecordDroppedRequest(ctx context.Context)

	// RecordResponse records the outcome of one response submission.
	RecordResponse(ctx context.Context, kind entity.FailureKind, reason string, duration time.Duration)

	// RecordStreamError records a transport fault on the event subscription.
	RecordStreamError(ctx context.Context)
}
