// Package redis keeps per-request response tallies in Redis.
//
// Every outcome increments counters in one hash per request, keyed
// prefix:airline:flight:timestamp. Fields are "status:<code>" for included
// responses and "failed:<reason>" for discarded ones, plus "total". Hashes
// expire after the configured TTL so abandoned requests clean themselves up.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/archon-research/oracle-relay/internal/domain/entity"
	"github.com/archon-research/oracle-relay/internal/ports/outbound"
)

// Compile-time check that TallySink implements outbound.OutcomeSink
var _ outbound.OutcomeSink = (*TallySink)(nil)

const fieldTotal = "total"

// Config holds Redis tally configuration.
type Config struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string
	// Password for Redis authentication (empty for no auth)
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// TTL is how long a request's tally lives after its last update
	TTL time.Duration
	// KeyPrefix is prepended to all tally keys
	KeyPrefix string
}

// ConfigDefaults returns defaults for the Redis tally sink.
func ConfigDefaults() Config {
	return Config{
		Addr:      "localhost:6379",
		TTL:       24 * time.Hour,
		KeyPrefix: "oracle-relay:tally",
	}
}

// Tally is the decoded counter hash of one request.
type Tally struct {
	Total    int64
	ByStatus map[entity.StatusCode]int64
	Failed   map[string]int64
}

// TallySink records outcome counters per request.
type TallySink struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	logger    *slog.Logger
}

// NewTallySink creates a new Redis tally sink.
func NewTallySink(cfg Config, logger *slog.Logger) (*TallySink, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if logger == nil {
		logger = slog.Default()
	}

	return &TallySink{
		client:    client,
		ttl:       cfg.TTL,
		keyPrefix: cfg.KeyPrefix,
		logger:    logger.With("component", "redis-tally"),
	}, nil
}

// Ping checks the Redis connection.
func (s *TallySink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *TallySink) Close() error {
	return s.client.Close()
}

func (s *TallySink) key(event entity.RequestEvent) string {
	return s.keyPrefix + ":" + event.Key()
}

// fieldFor returns the hash field an outcome increments.
func fieldFor(o entity.Outcome) string {
	if o.OK() {
		return "status:" + strconv.Itoa(int(o.Attempt.StatusCode))
	}
	reason := o.Reason
	if reason == "" {
		reason = o.Kind.Label()
	}
	return "failed:" + reason
}

// Record increments the request's counters in a single pipeline.
func (s *TallySink) Record(ctx context.Context, o entity.Outcome) error {
	key := s.key(o.Attempt.Event)

	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, key, fieldFor(o), 1)
	pipe.HIncrBy(ctx, key, fieldTotal, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update tally %s: %w", key, err)
	}
	return nil
}

// Get returns the tally of one request. A request with no outcomes yields
// an empty tally, not an error.
func (s *TallySink) Get(ctx context.Context, event entity.RequestEvent) (Tally, error) {
	fields, err := s.client.HGetAll(ctx, s.key(event)).Result()
	if err != nil {
		return Tally{}, fmt.Errorf("failed to read tally: %w", err)
	}
	return parseTally(fields)
}

func parseTally(fields map[string]string) (Tally, error) {
	t := Tally{
		ByStatus: make(map[entity.StatusCode]int64),
		Failed:   make(map[string]int64),
	}
	for field, raw := range fields {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Tally{}, fmt.Errorf("field %s: %w", field, err)
		}
		switch {
		case field == fieldTotal:
			t.Total = n
		case strings.HasPrefix(field, "status:"):
			code, err := strconv.ParseUint(strings.TrimPrefix(field, "status:"), 10, 8)
			if err != nil {
				return Tally{}, fmt.Errorf("field %s: %w", field, err)
			}
			t.ByStatus[entity.StatusCode(code)] = n
		case strings.HasPrefix(field, "failed:"):
			t.Failed[strings.TrimPrefix(field, "failed:")] = n
		}
	}
	return t, nil
}
