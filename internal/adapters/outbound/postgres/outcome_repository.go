package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archon-research/oracle-relay/internal/domain/entity"
	"github.com/archon-research/oracle-relay/internal/ports/outbound"
)

// Compile-time check that OutcomeRepository implements outbound.OutcomeSink.
var _ outbound.OutcomeSink = (*OutcomeRepository)(nil)

// OutcomeRecord is one stored row of oracle_responses.
type OutcomeRecord struct {
	DispatchID      uuid.UUID
	Oracle          common.Address
	Index           uint8
	Airline         common.Address
	Flight          string
	FlightTimestamp *big.Int
	StatusCode      entity.StatusCode
	TxHash          common.Hash
	Outcome         string
	Reason          string
	Error           string
	Duration        time.Duration
	RecordedAt      time.Time
}

// OutcomeRepository stores every response attempt in oracle_responses.
type OutcomeRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewOutcomeRepository creates a new PostgreSQL outcome repository.
func NewOutcomeRepository(pool *pgxpool.Pool, logger *slog.Logger) (*OutcomeRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OutcomeRepository{
		pool:   pool,
		logger: logger.With("component", "outcome-repository"),
	}, nil
}

// Record inserts one outcome row.
func (r *OutcomeRepository) Record(ctx context.Context, o entity.Outcome) error {
	var txHash []byte
	if o.TxHash != (common.Hash{}) {
		txHash = o.TxHash.Bytes()
	}
	var requestTx []byte
	if o.Attempt.Event.TxHash != (common.Hash{}) {
		requestTx = o.Attempt.Event.TxHash.Bytes()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO oracle_responses (
			dispatch_id, oracle_address, oracle_index, airline_address, flight,
			flight_timestamp, status_code, request_block, request_tx_hash, tx_hash,
			outcome, reason, error, duration_ms, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10, $11, NULLIF($12, ''), NULLIF($13, ''), $14, $15)
	`,
		o.DispatchID,
		o.Oracle.Bytes(),
		int16(o.Attempt.Index),
		o.Attempt.Event.Airline.Bytes(),
		o.Attempt.Event.Flight,
		o.Attempt.Event.TimestampString(),
		int16(o.Attempt.StatusCode),
		int64(o.Attempt.Event.BlockNumber),
		requestTx,
		txHash,
		o.Kind.Label(),
		o.Reason,
		o.ErrString(),
		o.Duration.Milliseconds(),
		o.At,
	)
	if err != nil {
		return fmt.Errorf("inserting oracle response: %w", err)
	}
	return nil
}

// ListByRequest returns the stored attempts for one request, oldest first.
func (r *OutcomeRepository) ListByRequest(ctx context.Context, airline common.Address, flight string, timestamp *big.Int) ([]OutcomeRecord, error) {
	if timestamp == nil {
		timestamp = new(big.Int)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT dispatch_id, oracle_address, oracle_index, airline_address, flight,
		       flight_timestamp::text, status_code, tx_hash, outcome,
		       COALESCE(reason, ''), COALESCE(error, ''), duration_ms, recorded_at
		FROM oracle_responses
		WHERE airline_address = $1 AND flight = $2 AND flight_timestamp = $3::numeric
		ORDER BY id
	`, airline.Bytes(), flight, timestamp.String())
	if err != nil {
		return nil, fmt.Errorf("querying oracle responses: %w", err)
	}
	defer rows.Close()

	var records []OutcomeRecord
	for rows.Next() {
		var rec OutcomeRecord
		var oracleBytes, airlineBytes, txBytes []byte
		var index, status int16
		var durationMs int64
		var flightTS string
		if err := rows.Scan(
			&rec.DispatchID, &oracleBytes, &index, &airlineBytes, &rec.Flight,
			&flightTS, &status, &txBytes, &rec.Outcome,
			&rec.Reason, &rec.Error, &durationMs, &rec.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning oracle response: %w", err)
		}
		ts, ok := new(big.Int).SetString(flightTS, 10)
		if !ok {
			return nil, fmt.Errorf("parsing flight timestamp %q", flightTS)
		}
		rec.FlightTimestamp = ts
		rec.Oracle = common.BytesToAddress(oracleBytes)
		rec.Airline = common.BytesToAddress(airlineBytes)
		rec.TxHash = common.BytesToHash(txBytes)
		rec.Index = uint8(index)
		rec.StatusCode = entity.StatusCode(status)
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating oracle responses: %w", err)
	}
	return records, nil
}

// Close is a no-op; the pool is owned by the caller.
func (r *OutcomeRepository) Close() error {
	return nil
}
