package oracle_relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/archon-research/oracle-relay/internal/domain/entity"
	"github.com/archon-research/oracle-relay/internal/pkg/blockchain"
	"github.com/archon-research/oracle-relay/internal/ports/outbound"
)

// Dispatcher fans each OracleRequest out to every registered oracle and
// each of its indexes. Attempts run in their own goroutines; the dispatcher
// does not wait for them and never looks at their outcomes.
type Dispatcher struct {
	registry  *Registry
	decoder   *blockchain.RequestDecoder
	submitter *Submitter
	status    StatusSource
	metrics   outbound.MetricsRecorder
	newID     func() uuid.UUID
	logger    *slog.Logger

	inflight sync.WaitGroup
}

// NewDispatcher creates a Dispatcher over an already built registry.
// status defaults to a RandomStatusSource and metrics may be nil.
func NewDispatcher(
	registry *Registry,
	decoder *blockchain.RequestDecoder,
	submitter *Submitter,
	status StatusSource,
	metrics outbound.MetricsRecorder,
	logger *slog.Logger,
) (*Dispatcher, error) {
	if registry == nil {
		return nil, errors.New("registry cannot be nil")
	}
	if decoder == nil {
		return nil, errors.New("decoder cannot be nil")
	}
	if submitter == nil {
		return nil, errors.New("submitter cannot be nil")
	}
	if status == nil {
		status = &RandomStatusSource{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry:  registry,
		decoder:   decoder,
		submitter: submitter,
		status:    status,
		metrics:   metrics,
		newID:     uuid.New,
		logger:    logger.With("component", "request-dispatcher"),
	}, nil
}

// Run consumes the subscription until its log channel closes or ctx ends.
// Attempts are started under attemptCtx so that stopping the loop does not
// abort transactions that are already in flight.
func (d *Dispatcher) Run(ctx, attemptCtx context.Context, sub outbound.EventSubscription) {
	logs := sub.Logs()
	errs := sub.Err()

	for {
		select {
		case <-ctx.Done():
			return
		case l, ok := <-logs:
			if !ok {
				d.logger.Info("request subscription closed")
				return
			}
			// HandleLog logs both outcomes itself.
			d.HandleLog(attemptCtx, l)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			d.logger.Error("request stream error",
				"kind", entity.FailureStream.Label(),
				"error", err)
			if d.metrics != nil {
				d.metrics.RecordStreamError(ctx)
			}
		}
	}
}

// HandleLog decodes one OracleRequest log and starts one submission per
// registered oracle and index. It returns the dispatch ID and the number of
// attempts started; malformed logs are dropped with an error wrapping
// blockchain.ErrMalformedRequest.
func (d *Dispatcher) HandleLog(ctx context.Context, l types.Log) (uuid.UUID, int, error) {
	event, err := d.decoder.Decode(l)
	if err != nil {
		d.logger.Warn("dropping request event",
			"kind", entity.FailureDecode.Label(),
			"block", l.BlockNumber,
			"tx", l.TxHash.Hex(),
			"error", err)
		if d.metrics != nil {
			d.metrics.RecordDroppedRequest(ctx)
		}
		return uuid.Nil, 0, fmt.Errorf("decoding request: %w", err)
	}

	dispatchID := d.newID()
	oracles := d.registry.Snapshot()
	attempts := 0

	for _, reg := range oracles {
		for _, idx := range reg.Indexes {
			attempt := entity.ResponseAttempt{
				Index:      idx,
				Event:      *event,
				StatusCode: d.status.Next(),
			}
			oracle := reg.Identity

			d.inflight.Add(1)
			go func() {
				defer d.inflight.Done()
				d.submitter.Submit(ctx, dispatchID, oracle, attempt)
			}()
			attempts++
		}
	}

	d.logger.Info("request dispatched",
		"dispatchId", dispatchID,
		"airline", event.Airline.Hex(),
		"flight", event.Flight,
		"timestamp", event.TimestampString(),
		"oracles", len(oracles),
		"attempts", attempts)
	if d.metrics != nil {
		d.metrics.RecordRequest(ctx, attempts)
	}
	return dispatchID, attempts, nil
}

// Wait blocks until every started attempt has finished or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
