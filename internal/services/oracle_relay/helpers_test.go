package oracle_relay

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/archon-research/oracle-relay/internal/adapters/outbound/memory"
	"github.com/archon-research/oracle-relay/internal/domain/entity"
	"github.com/archon-research/oracle-relay/internal/pkg/blockchain"
	"github.com/archon-research/oracle-relay/internal/pkg/blockchain/abis"
	"github.com/archon-research/oracle-relay/internal/ports/outbound"
	"github.com/archon-research/oracle-relay/internal/testutil"
)

var (
	testContract = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	testAirline  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

const testTimestamp = int64(1700000000)

// newGatewayWithOracles returns a gateway whose n identities all register
// successfully with distinct index triples.
func newGatewayWithOracles(n int) *testutil.MockLedgerGateway {
	gw := testutil.NewMockLedgerGateway(testutil.Addresses(n)...)
	for i, addr := range gw.Identities {
		base := uint8(i * 3 % 10)
		gw.Indexes[addr] = entity.IndexTriple{base, (base + 1) % 10, (base + 2) % 10}
	}
	return gw
}

func requestLog(t *testing.T, flight string, ts int64) types.Log {
	t.Helper()
	return rawRequestLog(t, testAirline, flight, big.NewInt(ts))
}

// rawRequestLog encodes any ABI-valid OracleRequest payload.
func rawRequestLog(t *testing.T, airline common.Address, flight string, ts *big.Int) types.Log {
	t.Helper()
	contractABI, err := abis.GetFlightSuretyAppABI()
	if err != nil {
		t.Fatalf("load ABI: %v", err)
	}
	l, err := blockchain.EncodeRequestLog(contractABI, testContract, airline, flight, ts)
	if err != nil {
		t.Fatalf("encode request log: %v", err)
	}
	l.BlockNumber = 42
	return l
}

func newTestService(t *testing.T, gw *testutil.MockLedgerGateway, metrics *testutil.MockMetricsRecorder, extra ...outbound.OutcomeSink) (*RelayService, *memory.OutcomeSink) {
	t.Helper()
	sink := memory.NewOutcomeSink(0)
	sinks := append([]outbound.OutcomeSink{sink}, extra...)

	config := Config{
		SubmitTimeout:   2 * time.Second,
		ShutdownTimeout: 2 * time.Second,
		StatusSource:    NewSeededStatusSource(1, 2),
		Logger:          testutil.DiscardLogger(),
	}

	var recorder outbound.MetricsRecorder
	if metrics != nil {
		recorder = metrics
	}
	svc, err := NewRelayService(config, gw, recorder, sinks...)
	if err != nil {
		t.Fatalf("NewRelayService: %v", err)
	}
	t.Cleanup(func() { _ = svc.Stop() })
	return svc, sink
}

// submitArgs decodes the arguments of a recorded submitOracleResponse send.
type submitArgs struct {
	Oracle    common.Address
	Index     uint8
	Airline   common.Address
	Flight    string
	Timestamp *big.Int
	Status    entity.StatusCode
}

func decodeSubmit(t *testing.T, call testutil.SendCall) submitArgs {
	t.Helper()
	if len(call.Args) != 5 {
		t.Fatalf("expected 5 submitOracleResponse args, got %d", len(call.Args))
	}
	return submitArgs{
		Oracle:    call.From,
		Index:     call.Args[0].(uint8),
		Airline:   call.Args[1].(common.Address),
		Flight:    call.Args[2].(string),
		Timestamp: call.Args[3].(*big.Int),
		Status:    entity.StatusCode(call.Args[4].(uint8)),
	}
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func startService(t *testing.T, svc *RelayService) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
}
