//go:build integration

package postgres

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/archon-research/oracle-relay/db/migrator"
	"github.com/archon-research/oracle-relay/internal/domain/entity"
	"github.com/archon-research/oracle-relay/internal/testutil"
)

func TestOutcomeRepository_RecordAndList(t *testing.T) {
	pool, cleanup := testutil.SetupPostgres(t)
	defer cleanup()

	repo, err := NewOutcomeRepository(pool, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewOutcomeRepository: %v", err)
	}

	ctx := context.Background()
	event := testutil.RequestEvent("ND1309", 1_700_000_000)
	dispatchID := uuid.New()

	success := testutil.SuccessOutcome(dispatchID, 1, 4, event, entity.StatusLateAirline)
	failed := testutil.FailedOutcome(dispatchID, 2, 7, event, "reverted")

	for _, o := range []entity.Outcome{success, failed} {
		if err := repo.Record(ctx, o); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	// A different request must not show up.
	other := testutil.SuccessOutcome(uuid.New(), 1, 4, testutil.RequestEvent("XY123", 1_700_000_000), entity.StatusOnTime)
	if err := repo.Record(ctx, other); err != nil {
		t.Fatalf("Record other: %v", err)
	}

	records, err := repo.ListByRequest(ctx, event.Airline, event.Flight, event.Timestamp)
	if err != nil {
		t.Fatalf("ListByRequest: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	got := records[0]
	if got.DispatchID != dispatchID {
		t.Errorf("dispatch id = %s, want %s", got.DispatchID, dispatchID)
	}
	if got.FlightTimestamp.Cmp(event.Timestamp) != 0 {
		t.Errorf("flight timestamp = %s, want %s", got.FlightTimestamp, event.Timestamp)
	}
	if got.Oracle != success.Oracle {
		t.Errorf("oracle = %s, want %s", got.Oracle.Hex(), success.Oracle.Hex())
	}
	if got.Index != 4 || got.StatusCode != entity.StatusLateAirline {
		t.Errorf("index/status = %d/%d, want 4/20", got.Index, got.StatusCode)
	}
	if got.TxHash != success.TxHash {
		t.Errorf("tx hash = %s, want %s", got.TxHash.Hex(), success.TxHash.Hex())
	}
	if got.Outcome != "success" || got.Reason != "" || got.Error != "" {
		t.Errorf("unexpected success row: %+v", got)
	}
	if got.Duration != 1500*time.Millisecond {
		t.Errorf("duration = %v, want 1.5s", got.Duration)
	}
	if !got.RecordedAt.Equal(success.At) {
		t.Errorf("recorded_at = %v, want %v", got.RecordedAt, success.At)
	}

	bad := records[1]
	if bad.Outcome != "submission" || bad.Reason != "reverted" {
		t.Errorf("outcome/reason = %s/%s, want submission/reverted", bad.Outcome, bad.Reason)
	}
	if bad.Error == "" {
		t.Error("expected error text on failed row")
	}
	if bad.TxHash != (common.Hash{}) {
		t.Errorf("expected zero tx hash on failed row, got %s", bad.TxHash.Hex())
	}
}

func TestOutcomeRepository_TimestampBeyondInt64(t *testing.T) {
	pool, cleanup := testutil.SetupPostgres(t)
	defer cleanup()

	repo, err := NewOutcomeRepository(pool, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewOutcomeRepository: %v", err)
	}

	ctx := context.Background()
	event := testutil.RequestEvent("", 1)
	event.Airline = common.Address{}
	event.Timestamp = new(big.Int).Lsh(big.NewInt(1), 200)

	if err := repo.Record(ctx, testutil.SuccessOutcome(uuid.New(), 1, 2, event, entity.StatusOnTime)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	records, err := repo.ListByRequest(ctx, event.Airline, event.Flight, event.Timestamp)
	if err != nil {
		t.Fatalf("ListByRequest: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].FlightTimestamp.Cmp(event.Timestamp) != 0 {
		t.Errorf("flight timestamp = %s, want %s", records[0].FlightTimestamp, event.Timestamp)
	}
	if records[0].Flight != "" || records[0].Airline != (common.Address{}) {
		t.Errorf("unexpected request fields: %+v", records[0])
	}
}

func TestMigrations_Idempotent(t *testing.T) {
	pool, cleanup := testutil.SetupPostgres(t)
	defer cleanup()

	// SetupPostgres already applied everything once.
	testutil.RunMigrations(t, pool)

	applied, err := migrator.New(pool, testutil.MigrationsDir(), testutil.DiscardLogger()).ListApplied(context.Background())
	if err != nil {
		t.Fatalf("ListApplied: %v", err)
	}
	if len(applied) != 1 || applied[0] != "0001_oracle_responses.sql" {
		t.Errorf("unexpected applied migrations: %v", applied)
	}
}
