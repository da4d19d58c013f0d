package ethereum

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/archon-research/oracle-relay/internal/pkg/blockchain"
	"github.com/archon-research/oracle-relay/internal/pkg/blockchain/abis"
	"github.com/archon-research/oracle-relay/internal/testutil"
)

func loadABI(t *testing.T) *abi.ABI {
	t.Helper()
	a, err := abis.GetFlightSuretyAppABI()
	if err != nil {
		t.Fatalf("load ABI: %v", err)
	}
	return a
}

func newTestGateway(t *testing.T, node *testutil.MockEthNode, wsURL string) *Gateway {
	t.Helper()
	if wsURL == "" {
		wsURL = "ws://127.0.0.1:1"
	}
	g, err := NewGateway(context.Background(), Config{
		HTTPURL:             node.URL(),
		WebSocketURL:        wsURL,
		ContractAddress:     testContract,
		ReceiptPollInterval: 5 * time.Millisecond,
		SubscribeTimeout:    2 * time.Second,
		Subscription: SubscriberConfig{
			InitialBackoff: 10 * time.Millisecond,
			MaxBackoff:     20 * time.Millisecond,
		},
		Logger: testutil.DiscardLogger(),
	}, loadABI(t))
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	t.Cleanup(g.Close)
	return g
}

func TestNewGateway_Validation(t *testing.T) {
	contractABI := loadABI(t)

	tests := []struct {
		name        string
		config      Config
		abi         *abi.ABI
		errContains string
	}{
		{name: "missing url", config: Config{ContractAddress: testContract}, abi: contractABI, errContains: "HTTPURL is required"},
		{name: "missing contract", config: Config{HTTPURL: "http://127.0.0.1:8545"}, abi: contractABI, errContains: "ContractAddress is required"},
		{name: "nil abi", config: Config{HTTPURL: "http://127.0.0.1:8545", ContractAddress: testContract}, errContains: "ABI cannot be nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGateway(context.Background(), tt.config, tt.abi)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("expected error containing %q, got %v", tt.errContains, err)
			}
		})
	}
}

func TestWebSocketURLFromHTTP(t *testing.T) {
	tests := map[string]string{
		"http://127.0.0.1:8545":   "ws://127.0.0.1:8545",
		"https://node.example/v1": "wss://node.example/v1",
		"ws://127.0.0.1:8546":     "ws://127.0.0.1:8546",
	}
	for in, want := range tests {
		if got := WebSocketURLFromHTTP(in); got != want {
			t.Errorf("WebSocketURLFromHTTP(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGateway_ListIdentities(t *testing.T) {
	node := testutil.StartMockEthNode(t)
	node.Accounts = testutil.Addresses(3)
	g := newTestGateway(t, node, "")

	got, err := g.ListIdentities(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 identities, got %d", len(got))
	}
	for i, addr := range got {
		if addr != testutil.Address(i) {
			t.Errorf("identity %d = %s, want %s", i, addr.Hex(), testutil.Address(i).Hex())
		}
	}
}

func TestGateway_CallGetMyIndexes(t *testing.T) {
	contractABI := loadABI(t)
	node := testutil.StartMockEthNode(t)
	out, err := contractABI.Methods[blockchain.MethodGetMyIndexes].Outputs.Pack([3]uint8{1, 5, 9})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	node.CallResult = out
	g := newTestGateway(t, node, "")

	oracle := testutil.Address(7)
	result, err := g.Call(context.Background(), oracle, blockchain.MethodGetMyIndexes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	triple, err := blockchain.UnpackIndexTriple(result)
	if err != nil {
		t.Fatalf("UnpackIndexTriple: %v", err)
	}
	if triple != [3]uint8{1, 5, 9} {
		t.Errorf("got %v, want [1 5 9]", triple)
	}

	calls := node.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 eth_call, got %d", len(calls))
	}
	if calls[0].From != oracle {
		t.Errorf("call from %s, want %s", calls[0].From.Hex(), oracle.Hex())
	}
	if calls[0].To != testContract {
		t.Errorf("call to %s, want %s", calls[0].To.Hex(), testContract.Hex())
	}
	if uint64(calls[0].Gas) != blockchain.GasLimit {
		t.Errorf("call gas %d, want %d", calls[0].Gas, blockchain.GasLimit)
	}
	selector := contractABI.Methods[blockchain.MethodGetMyIndexes].ID
	if !bytes.HasPrefix(calls[0].Calldata(), selector) {
		t.Errorf("calldata %x does not start with selector %x", calls[0].Calldata(), selector)
	}
}

func TestGateway_CallError(t *testing.T) {
	node := testutil.StartMockEthNode(t)
	node.CallError = "execution reverted: Not registered as an oracle"
	g := newTestGateway(t, node, "")

	_, err := g.Call(context.Background(), testutil.Address(0), blockchain.MethodGetMyIndexes)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Not registered") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestGateway_SendWaitsForReceipt(t *testing.T) {
	contractABI := loadABI(t)
	node := testutil.StartMockEthNode(t)
	node.PendingPolls = 2
	g := newTestGateway(t, node, "")

	oracle := testutil.Address(2)
	receipt, err := g.Send(context.Background(), oracle, blockchain.OracleStake(), blockchain.MethodRegisterOracle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent := node.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected exactly one broadcast, got %d", len(sent))
	}
	tx := sent[0]
	if receipt.TxHash != tx.Hash {
		t.Errorf("receipt hash %s, want %s", receipt.TxHash.Hex(), tx.Hash.Hex())
	}
	if got := node.Polls(tx.Hash); got != 3 {
		t.Errorf("expected 3 receipt polls, got %d", got)
	}
	if tx.From != oracle || tx.To != testContract {
		t.Errorf("unexpected from/to: %s -> %s", tx.From.Hex(), tx.To.Hex())
	}
	if uint64(tx.Gas) != blockchain.GasLimit {
		t.Errorf("gas %d, want %d", tx.Gas, blockchain.GasLimit)
	}
	if tx.GasPrice == nil || tx.GasPrice.ToInt().Cmp(blockchain.GasPrice()) != 0 {
		t.Errorf("gasPrice %v, want %v", tx.GasPrice, blockchain.GasPrice())
	}
	if tx.Value == nil || tx.Value.ToInt().Cmp(blockchain.OracleStake()) != 0 {
		t.Errorf("value %v, want %v", tx.Value, blockchain.OracleStake())
	}
	if !bytes.Equal(tx.Data, contractABI.Methods[blockchain.MethodRegisterOracle].ID) {
		t.Errorf("data %x, want registerOracle selector", []byte(tx.Data))
	}
}

func TestGateway_SendSubmitResponseEncodesArguments(t *testing.T) {
	contractABI := loadABI(t)
	node := testutil.StartMockEthNode(t)
	g := newTestGateway(t, node, "")

	airline := testutil.Address(40)
	_, err := g.Send(context.Background(), testutil.Address(1), nil, blockchain.MethodSubmitOracleResponse,
		uint8(4), airline, "ND1309", big.NewInt(1700000000), uint8(20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tx := node.Sent()[0]
	if tx.Value != nil && tx.Value.ToInt().Sign() != 0 {
		t.Errorf("expected no value, got %v", tx.Value)
	}

	method := contractABI.Methods[blockchain.MethodSubmitOracleResponse]
	args, err := method.Inputs.Unpack(tx.Data[4:])
	if err != nil {
		t.Fatalf("unpack calldata: %v", err)
	}
	if args[0].(uint8) != 4 || args[1].(common.Address) != airline || args[2].(string) != "ND1309" ||
		args[3].(*big.Int).Int64() != 1700000000 || args[4].(uint8) != 20 {
		t.Errorf("unexpected calldata arguments: %v", args)
	}
}

func TestGateway_SendFailures(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(n *testutil.MockEthNode)
		timeout      time.Duration
		wantReverted bool
		wantTimeout  bool
	}{
		{
			name:         "mined with failed status",
			setup:        func(n *testutil.MockEthNode) { n.ReceiptStatus = 0 },
			wantReverted: true,
		},
		{
			name:         "node reports revert",
			setup:        func(n *testutil.MockEthNode) { n.SendError = "VM Exception while processing transaction: revert" },
			wantReverted: true,
		},
		{
			name:  "insufficient funds",
			setup: func(n *testutil.MockEthNode) { n.SendError = "insufficient funds for gas * price + value" },
		},
		{
			name:        "never mined",
			setup:       func(n *testutil.MockEthNode) { n.NeverMine = true },
			timeout:     100 * time.Millisecond,
			wantTimeout: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := testutil.StartMockEthNode(t)
			tt.setup(node)
			g := newTestGateway(t, node, "")

			ctx := context.Background()
			if tt.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, tt.timeout)
				defer cancel()
			}

			_, err := g.Send(ctx, testutil.Address(0), blockchain.OracleStake(), blockchain.MethodRegisterOracle)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrReverted); got != tt.wantReverted {
				t.Errorf("errors.Is(err, ErrReverted) = %v, want %v (err: %v)", got, tt.wantReverted, err)
			}
			if got := errors.Is(err, ErrReceiptTimeout); got != tt.wantTimeout {
				t.Errorf("errors.Is(err, ErrReceiptTimeout) = %v, want %v (err: %v)", got, tt.wantTimeout, err)
			}
		})
	}
}

func TestGateway_SubscribeUnknownEvent(t *testing.T) {
	node := testutil.StartMockEthNode(t)
	g := newTestGateway(t, node, "")

	if _, err := g.Subscribe(context.Background(), "NoSuchEvent"); err == nil {
		t.Fatal("expected error for unknown event")
	}
}

func TestGateway_SubscribeFiltersOnEventTopic(t *testing.T) {
	contractABI := loadABI(t)
	topic := contractABI.Events[blockchain.EventOracleRequest].ID

	gotReq := make(chan jsonRPCRequest, 1)
	server := newMockWSServer(func(conn *websocket.Conn) {
		req, ok := acceptSubscription(t, conn)
		if !ok {
			return
		}
		gotReq <- req
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	node := testutil.StartMockEthNode(t)
	g := newTestGateway(t, node, server.URL())

	sub, err := g.Subscribe(context.Background(), blockchain.EventOracleRequest)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	select {
	case req := <-gotReq:
		filter, ok := req.Params[1].(map[string]any)
		if !ok {
			t.Fatalf("unexpected filter param %T", req.Params[1])
		}
		topics, _ := filter["topics"].([]any)
		if len(topics) != 1 {
			t.Fatalf("expected one topic position, got %v", filter["topics"])
		}
		first, _ := topics[0].([]any)
		if len(first) != 1 || !strings.EqualFold(first[0].(string), topic.Hex()) {
			t.Errorf("expected topic %s, got %v", topic.Hex(), topics[0])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription request not received")
	}
}

func TestGateway_SubscribeTimesOut(t *testing.T) {
	node := testutil.StartMockEthNode(t)
	g := newTestGateway(t, node, "")
	g.config.SubscribeTimeout = 100 * time.Millisecond

	if _, err := g.Subscribe(context.Background(), blockchain.EventOracleRequest); err == nil {
		t.Fatal("expected error when the node is unreachable")
	}
}
