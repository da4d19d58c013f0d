package oracle_relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/archon-research/oracle-relay/internal/domain/entity"
	"github.com/archon-research/oracle-relay/internal/pkg/blockchain"
	"github.com/archon-research/oracle-relay/internal/ports/outbound"
)

// Failure reasons attached to unsuccessful outcomes.
const (
	ReasonReverted = "reverted"
	ReasonTimeout  = "timeout"
	ReasonRPC      = "rpc"
)

// sinkTimeout bounds how long a single sink may take to record an outcome.
const sinkTimeout = 10 * time.Second

// SubmitterConfig holds configuration for the response submitter.
type SubmitterConfig struct {
	// Timeout bounds one attempt, broadcast and receipt wait included.
	Timeout time.Duration

	// RateLimit caps response sends per second across all oracles. 0 disables it.
	RateLimit float64

	// Burst is the limiter bucket size. Defaults to 1 when RateLimit is set.
	Burst int

	Logger *slog.Logger
}

// Submitter sends one submitOracleResponse transaction per attempt.
// It never retries: every failure ends the attempt.
type Submitter struct {
	gateway outbound.LedgerGateway
	metrics outbound.MetricsRecorder
	sinks   []outbound.OutcomeSink
	limiter *rate.Limiter
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewSubmitter creates a Submitter. metrics may be nil.
func NewSubmitter(config SubmitterConfig, gateway outbound.LedgerGateway, metrics outbound.MetricsRecorder, sinks ...outbound.OutcomeSink) (*Submitter, error) {
	if gateway == nil {
		return nil, errors.New("gateway cannot be nil")
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultSubmitTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	return &Submitter{
		gateway: gateway,
		metrics: metrics,
		sinks:   sinks,
		limiter: limiter,
		timeout: config.Timeout,
		now:     time.Now,
		logger:  config.Logger.With("component", "response-submitter"),
	}, nil
}

// Submit sends the attempt's response as oracle and reports the outcome to
// every sink and to metrics. The returned Outcome is informational.
func (s *Submitter) Submit(ctx context.Context, dispatchID uuid.UUID, oracle common.Address, attempt entity.ResponseAttempt) entity.Outcome {
	start := s.now()

	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "oracle.submit",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("dispatch.id", dispatchID.String()),
			attribute.String("oracle.identity", oracle.Hex()),
			attribute.Int("oracle.index", int(attempt.Index)),
			attribute.String("flight.airline", attempt.Event.Airline.Hex()),
			attribute.String("flight.code", attempt.Event.Flight),
			attribute.String("flight.timestamp", attempt.Event.TimestampString()),
			attribute.Int("flight.status", int(attempt.StatusCode)),
		),
	)
	defer span.End()

	outcome := entity.Outcome{
		DispatchID: dispatchID,
		Oracle:     oracle,
		Attempt:    attempt,
	}

	txHash, err := s.send(ctx, oracle, attempt)
	outcome.TxHash = txHash
	outcome.At = s.now()
	outcome.Duration = outcome.At.Sub(start)

	logger := s.logger.With(
		"dispatchId", dispatchID,
		"oracle", oracle.Hex(),
		"index", attempt.Index,
		"flight", attempt.Event.Flight,
		"status", attempt.StatusCode.String())

	if err != nil {
		outcome.Kind = entity.FailureSubmission
		outcome.Reason = classifySubmitError(err)
		outcome.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, "response submission failed")
		logger.Warn("response submission failed", "reason", outcome.Reason, "error", err)
	} else {
		span.SetAttributes(attribute.String("tx.hash", txHash.Hex()))
		logger.Info("response submitted", "tx", txHash.Hex(), "duration", outcome.Duration)
	}

	if s.metrics != nil {
		s.metrics.RecordResponse(ctx, outcome.Kind, outcome.Reason, outcome.Duration)
	}
	s.publish(ctx, outcome)
	return outcome
}

func (s *Submitter) send(ctx context.Context, oracle common.Address, attempt entity.ResponseAttempt) (common.Hash, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return common.Hash{}, fmt.Errorf("waiting for send slot: %w", err)
		}
	}

	receipt, err := s.gateway.Send(ctx, oracle, nil, blockchain.MethodSubmitOracleResponse,
		attempt.Index,
		attempt.Event.Airline,
		attempt.Event.Flight,
		timestampArg(attempt.Event),
		uint8(attempt.StatusCode),
	)
	var txHash common.Hash
	if receipt != nil {
		txHash = receipt.TxHash
	}
	if err != nil {
		return txHash, fmt.Errorf("submitOracleResponse: %w", err)
	}
	return txHash, nil
}

// timestampArg copies the request timestamp so concurrent sends never share
// the event's big.Int.
func timestampArg(event entity.RequestEvent) *big.Int {
	if event.Timestamp == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(event.Timestamp)
}

// publish hands the outcome to every sink. Sink errors are logged only.
func (s *Submitter) publish(ctx context.Context, outcome entity.Outcome) {
	if len(s.sinks) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	for _, sink := range s.sinks {
		if err := sink.Record(ctx, outcome); err != nil {
			s.logger.Warn("failed to record outcome",
				"dispatchId", outcome.DispatchID,
				"oracle", outcome.Oracle.Hex(),
				"sink", fmt.Sprintf("%T", sink),
				"error", err)
		}
	}
}

func classifySubmitError(err error) string {
	switch {
	case errors.Is(err, outbound.ErrReverted):
		return ReasonReverted
	case errors.Is(err, outbound.ErrReceiptTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return ReasonTimeout
	default:
		return ReasonRPC
	}
}
