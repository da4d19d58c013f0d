// Package sns publishes response outcomes to an AWS SNS topic.
//
// Each outcome becomes one JSON message. Message attributes allow
// subscribers to filter without parsing the body:
//   - outcome: "success" or the failure label
//   - flight: the flight code of the request
//   - statusCode: the reported status code as a number
package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/archon-research/oracle-relay/internal/domain/entity"
	"github.com/archon-research/oracle-relay/internal/pkg/retry"
	"github.com/archon-research/oracle-relay/internal/ports/outbound"
)

// Compile-time check that OutcomeSink implements outbound.OutcomeSink
var _ outbound.OutcomeSink = (*OutcomeSink)(nil)

// ErrClosed is returned by Record after Close.
var ErrClosed = errors.New("outcome sink is closed")

// SNSPublisher defines the subset of SNS client methods used by OutcomeSink.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Config holds configuration for the SNS outcome sink.
type Config struct {
	// TopicARN is the topic every outcome is published to.
	TopicARN string

	// MaxRetries is the maximum number of retry attempts for transient failures.
	MaxRetries int

	// InitialBackoff is the initial delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum delay between retries.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each retry.
	BackoffFactor float64

	Logger *slog.Logger
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		Logger:         slog.Default(),
	}
}

// OutcomeMessage is the JSON body published for each outcome.
// FlightTimestamp is a base-10 string since the contract value is a uint256.
type OutcomeMessage struct {
	DispatchID      string `json:"dispatchId"`
	Oracle          string `json:"oracle"`
	Index           uint8  `json:"index"`
	Airline         string `json:"airline"`
	Flight          string `json:"flight"`
	FlightTimestamp string `json:"flightTimestamp"`
	StatusCode      uint8  `json:"statusCode"`
	RequestBlock    uint64 `json:"requestBlock,omitempty"`
	TxHash          string `json:"txHash,omitempty"`
	Outcome         string `json:"outcome"`
	Reason          string `json:"reason,omitempty"`
	Error           string `json:"error,omitempty"`
	DurationMs      int64  `json:"durationMs"`
	At              string `json:"at"`
}

func newOutcomeMessage(o entity.Outcome) OutcomeMessage {
	msg := OutcomeMessage{
		DispatchID:      o.DispatchID.String(),
		Oracle:          o.Oracle.Hex(),
		Index:           o.Attempt.Index,
		Airline:         o.Attempt.Event.Airline.Hex(),
		Flight:          o.Attempt.Event.Flight,
		FlightTimestamp: o.Attempt.Event.TimestampString(),
		StatusCode:      uint8(o.Attempt.StatusCode),
		RequestBlock:    o.Attempt.Event.BlockNumber,
		Outcome:         o.Kind.Label(),
		Reason:          o.Reason,
		Error:           o.ErrString(),
		DurationMs:      o.Duration.Milliseconds(),
		At:              o.At.UTC().Format(time.RFC3339Nano),
	}
	if o.OK() {
		msg.TxHash = o.TxHash.Hex()
	}
	return msg
}

// OutcomeSink publishes outcomes to SNS.
type OutcomeSink struct {
	client    SNSPublisher
	config    Config
	logger    *slog.Logger
	closeOnce sync.Once
	closed    bool
	mu        sync.RWMutex
}

// NewOutcomeSink creates a new SNS outcome sink.
func NewOutcomeSink(client SNSPublisher, config Config) (*OutcomeSink, error) {
	if client == nil {
		return nil, errors.New("sns client is required")
	}
	if config.TopicARN == "" {
		return nil, errors.New("topic ARN is required")
	}

	defaults := ConfigDefaults()
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.BackoffFactor == 0 {
		config.BackoffFactor = defaults.BackoffFactor
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &OutcomeSink{
		client: client,
		config: config,
		logger: config.Logger.With("component", "sns-outcomesink"),
	}, nil
}

// Record publishes one outcome.
func (s *OutcomeSink) Record(ctx context.Context, o entity.Outcome) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	body, err := json.Marshal(newOutcomeMessage(o))
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(s.config.TopicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"outcome": {
				DataType:    aws.String("String"),
				StringValue: aws.String(o.Kind.Label()),
			},
			"flight": {
				DataType:    aws.String("String"),
				StringValue: aws.String(o.Attempt.Event.Flight),
			},
			"statusCode": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.Itoa(int(o.Attempt.StatusCode))),
			},
		},
	}

	return s.publishWithRetry(ctx, input, o)
}

func (s *OutcomeSink) publishWithRetry(ctx context.Context, input *sns.PublishInput, o entity.Outcome) error {
	cfg := retry.Config{
		MaxRetries:     s.config.MaxRetries,
		InitialBackoff: s.config.InitialBackoff,
		MaxBackoff:     s.config.MaxBackoff,
		BackoffFactor:  s.config.BackoffFactor,
	}
	onRetry := func(attempt int, err error, backoff time.Duration) {
		s.logger.Warn("publish failed, retrying",
			"attempt", attempt,
			"maxRetries", s.config.MaxRetries,
			"backoff", backoff,
			"error", err,
			"dispatchId", o.DispatchID,
		)
	}

	err := retry.DoVoid(ctx, cfg, isRetryableError, onRetry, func() error {
		_, err := s.client.Publish(ctx, input)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to publish outcome to SNS: %w", err)
	}
	return nil
}

// isRetryableError reports whether a publish error is worth another attempt.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var notFound *types.NotFoundException
	if errors.As(err, &notFound) {
		return false
	}
	var authErr *types.AuthorizationErrorException
	if errors.As(err, &authErr) {
		return false
	}
	var invalid *types.InvalidParameterException
	if errors.As(err, &invalid) {
		return false
	}

	// Throttling, internal errors and network faults.
	return true
}

// Close marks the sink as closed and prevents further publishing.
func (s *OutcomeSink) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.logger.Info("SNS outcome sink closed")
	})
	return nil
}
