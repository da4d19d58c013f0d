package oracle_relay

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/archon-research/oracle-relay/internal/adapters/outbound/memory"
	"github.com/archon-research/oracle-relay/internal/domain/entity"
	"github.com/archon-research/oracle-relay/internal/pkg/blockchain"
	"github.com/archon-research/oracle-relay/internal/pkg/blockchain/abis"
	"github.com/archon-research/oracle-relay/internal/testutil"
)

func newTestDispatcher(t *testing.T, registry *Registry, gw *testutil.MockLedgerGateway) (*Dispatcher, *memory.OutcomeSink) {
	t.Helper()
	contractABI, err := abis.GetFlightSuretyAppABI()
	if err != nil {
		t.Fatalf("load ABI: %v", err)
	}
	decoder, err := blockchain.NewRequestDecoder(contractABI)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	sink := memory.NewOutcomeSink(0)
	submitter, err := NewSubmitter(SubmitterConfig{Logger: testutil.DiscardLogger()}, gw, nil, sink)
	if err != nil {
		t.Fatalf("submitter: %v", err)
	}
	d, err := NewDispatcher(registry, decoder, submitter, StatusSourceFunc(func() entity.StatusCode { return entity.StatusOnTime }), nil, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	return d, sink
}

func registryOf(n int) *Registry {
	regs := make([]entity.OracleRegistration, n)
	for i := range regs {
		regs[i] = entity.OracleRegistration{
			Identity:     testutil.Address(i),
			Indexes:      entity.IndexTriple{uint8(i), uint8(i + 1), uint8(i + 2)},
			RegisteredAt: time.Now(),
		}
	}
	return newRegistry(regs)
}

func TestNewDispatcher_Validation(t *testing.T) {
	if _, err := NewDispatcher(nil, nil, nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for nil registry")
	}
	if _, err := NewDispatcher(registryOf(1), nil, nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for nil decoder")
	}
}

func TestDispatcher_HandleLogFansOut(t *testing.T) {
	gw := testutil.NewMockLedgerGateway()
	d, sink := newTestDispatcher(t, registryOf(4), gw)
	fixed := uuid.MustParse("7d444840-9dc0-11d1-b245-5ffdce74fad2")
	d.newID = func() uuid.UUID { return fixed }

	id, attempts, err := d.HandleLog(context.Background(), requestLog(t, "ND1309", testTimestamp))
	if err != nil {
		t.Fatalf("HandleLog: %v", err)
	}
	if id != fixed {
		t.Errorf("dispatch id = %s, want %s", id, fixed)
	}
	if attempts != 12 {
		t.Errorf("attempts = %d, want 12", attempts)
	}

	if err := d.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	outcomes := sink.Outcomes()
	if len(outcomes) != 12 {
		t.Fatalf("expected 12 outcomes, got %d", len(outcomes))
	}
	for _, o := range outcomes {
		if o.DispatchID != fixed {
			t.Errorf("outcome dispatch id = %s", o.DispatchID)
		}
		if o.Attempt.StatusCode != entity.StatusOnTime {
			t.Errorf("status = %s, want on_time", o.Attempt.StatusCode)
		}
		if o.Attempt.Event.BlockNumber != 42 {
			t.Errorf("expected the log position on the event, got block %d", o.Attempt.Event.BlockNumber)
		}
	}
}

func TestDispatcher_HandleLogDispatchesAnyPayload(t *testing.T) {
	tests := []struct {
		name      string
		airline   common.Address
		flight    string
		timestamp *big.Int
	}{
		{name: "empty flight", airline: testAirline, flight: "", timestamp: big.NewInt(testTimestamp)},
		{name: "zero airline", airline: common.Address{}, flight: "ND1309", timestamp: big.NewInt(testTimestamp)},
		{name: "timestamp beyond int64", airline: testAirline, flight: "ND1309", timestamp: new(big.Int).Lsh(big.NewInt(1), 70)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := testutil.NewMockLedgerGateway()
			d, sink := newTestDispatcher(t, registryOf(3), gw)

			_, attempts, err := d.HandleLog(context.Background(), rawRequestLog(t, tt.airline, tt.flight, tt.timestamp))
			if err != nil {
				t.Fatalf("HandleLog: %v", err)
			}
			if attempts != 9 {
				t.Errorf("attempts = %d, want 9", attempts)
			}
			if err := d.Wait(context.Background()); err != nil {
				t.Fatalf("Wait: %v", err)
			}
			if n := len(sink.Outcomes()); n != 9 {
				t.Errorf("expected 9 outcomes, got %d", n)
			}

			sends := gw.SendsOf(blockchain.MethodSubmitOracleResponse)
			if len(sends) != 9 {
				t.Fatalf("expected 9 submissions, got %d", len(sends))
			}
			for _, call := range sends {
				args := decodeSubmit(t, call)
				if args.Airline != tt.airline || args.Flight != tt.flight || args.Timestamp.Cmp(tt.timestamp) != 0 {
					t.Errorf("submitted %+v, want airline=%s flight=%q ts=%s", args, tt.airline.Hex(), tt.flight, tt.timestamp)
				}
			}
		})
	}
}

func TestDispatcher_HandleLogRejectsMalformed(t *testing.T) {
	gw := testutil.NewMockLedgerGateway()
	d, _ := newTestDispatcher(t, registryOf(2), gw)

	l := requestLog(t, "ND1309", testTimestamp)
	l.Topics = []common.Hash{common.HexToHash("0xdead")}

	_, attempts, err := d.HandleLog(context.Background(), l)
	if !errors.Is(err, blockchain.ErrMalformedRequest) {
		t.Fatalf("expected ErrMalformedRequest, got %v", err)
	}
	if attempts != 0 || len(gw.Sends()) != 0 {
		t.Error("malformed event must not produce attempts")
	}
}

func TestDispatcher_RunStopsWhenLogsClose(t *testing.T) {
	gw := testutil.NewMockLedgerGateway()
	d, sink := newTestDispatcher(t, registryOf(1), gw)
	sub := testutil.NewMockSubscription()

	done := make(chan struct{})
	go func() {
		d.Run(context.Background(), context.Background(), sub)
		close(done)
	}()

	sub.SendLog(requestLog(t, "ND1309", testTimestamp))
	if !sink.WaitForCount(3, 2*time.Second) {
		t.Fatal("expected 3 outcomes")
	}
	sub.Unsubscribe()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the subscription closed")
	}
}

func TestDispatcher_WaitHonoursContext(t *testing.T) {
	gw := testutil.NewMockLedgerGateway()
	d, _ := newTestDispatcher(t, registryOf(1), gw)

	d.inflight.Add(1)
	defer d.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
