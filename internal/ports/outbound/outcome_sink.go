package outbound

import (
	"context"

	"github.com/archon-research/oracle-relay/internal/domain/entity"
)

// OutcomeSink receives the result of every response submission attempt.
// Sinks are observational: a sink error is logged by the caller and has no
// effect on dispatch.
type OutcomeSink interface {
	// Record publishes one outcome.
	Record(ctx context.Context, outcome entity.Outcome) error

	// Close releases any resources held by the sink.
	Close() error
}
