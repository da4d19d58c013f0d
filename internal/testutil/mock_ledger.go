package testutil

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/archon-research/oracle-relay/internal/domain/entity"
	"github.com/archon-research/oracle-relay/internal/ports/outbound"
)

var (
	_ outbound.LedgerGateway     = (*MockLedgerGateway)(nil)
	_ outbound.EventSubscription = (*MockSubscription)(nil)
)

// SendCall records one MockLedgerGateway.Send invocation.
type SendCall struct {
	From   common.Address
	Value  *big.Int
	Method string
	Args   []any
}

// MockLedgerGateway is an in-memory LedgerGateway.
//
// By default every Send succeeds with a status-1 receipt and getMyIndexes
// returns the entry of Indexes for the caller. SendFn and CallFn override the
// defaults. Fields must be set before the gateway is used.
type MockLedgerGateway struct {
	Identities []common.Address
	ListErr    error

	Subscription *MockSubscription
	SubscribeErr error

	Indexes map[common.Address]entity.IndexTriple

	CallFn func(ctx context.Context, from common.Address, method string, args ...any) ([]any, error)
	SendFn func(ctx context.Context, from common.Address, value *big.Int, method string, args ...any) (*types.Receipt, error)

	mu         sync.Mutex
	sends      []SendCall
	calls      []SendCall
	subscribed []string
	nonce      uint64
}

// NewMockLedgerGateway returns a gateway exposing identities and a fresh subscription.
func NewMockLedgerGateway(identities ...common.Address) *MockLedgerGateway {
	return &MockLedgerGateway{
		Identities:   identities,
		Subscription: NewMockSubscription(),
		Indexes:      make(map[common.Address]entity.IndexTriple),
	}
}

func (m *MockLedgerGateway) ListIdentities(ctx context.Context) ([]common.Address, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return append([]common.Address(nil), m.Identities...), nil
}

func (m *MockLedgerGateway) Subscribe(ctx context.Context, eventName string) (outbound.EventSubscription, error) {
	m.mu.Lock()
	m.subscribed = append(m.subscribed, eventName)
	m.mu.Unlock()

	if m.SubscribeErr != nil {
		return nil, m.SubscribeErr
	}
	return m.Subscription, nil
}

func (m *MockLedgerGateway) Call(ctx context.Context, from common.Address, method string, args ...any) ([]any, error) {
	m.mu.Lock()
	m.calls = append(m.calls, SendCall{From: from, Method: method, Args: args})
	m.mu.Unlock()

	if m.CallFn != nil {
		return m.CallFn(ctx, from, method, args...)
	}
	if method == "getMyIndexes" {
		idx, ok := m.Indexes[from]
		if !ok {
			return nil, fmt.Errorf("not registered as an oracle")
		}
		return []any{[3]uint8(idx)}, nil
	}
	return nil, fmt.Errorf("unexpected call %s", method)
}

func (m *MockLedgerGateway) Send(ctx context.Context, from common.Address, value *big.Int, method string, args ...any) (*types.Receipt, error) {
	m.mu.Lock()
	m.sends = append(m.sends, SendCall{From: from, Value: value, Method: method, Args: args})
	m.nonce++
	nonce := m.nonce
	m.mu.Unlock()

	if m.SendFn != nil {
		return m.SendFn(ctx, from, value, method, args...)
	}
	return SuccessReceipt(nonce), nil
}

// Sends returns a copy of the recorded Send calls.
func (m *MockLedgerGateway) Sends() []SendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SendCall(nil), m.sends...)
}

// SendsOf returns the recorded Send calls for method.
func (m *MockLedgerGateway) SendsOf(method string) []SendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SendCall
	for _, s := range m.sends {
		if s.Method == method {
			out = append(out, s)
		}
	}
	return out
}

// Calls returns a copy of the recorded Call invocations.
func (m *MockLedgerGateway) Calls() []SendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SendCall(nil), m.calls...)
}

// Subscribed returns the event names passed to Subscribe.
func (m *MockLedgerGateway) Subscribed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.subscribed...)
}

// SuccessReceipt returns a mined status-1 receipt with a hash derived from n.
func SuccessReceipt(n uint64) *types.Receipt {
	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      crypto.Keccak256Hash(new(big.Int).SetUint64(n).Bytes()),
		BlockNumber: big.NewInt(int64(n)),
	}
}

// MockSubscription is an EventSubscription fed by the test.
type MockSubscription struct {
	mu     sync.Mutex
	logs   chan types.Log
	errs   chan error
	closed bool
}

// NewMockSubscription creates a buffered subscription.
func NewMockSubscription() *MockSubscription {
	return &MockSubscription{
		logs: make(chan types.Log, 100),
		errs: make(chan error, 100),
	}
}

func (m *MockSubscription) Logs() <-chan types.Log { return m.logs }

func (m *MockSubscription) Err() <-chan error { return m.errs }

func (m *MockSubscription) Unsubscribe() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.logs)
	}
}

// Closed reports whether Unsubscribe was called.
func (m *MockSubscription) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// SendLog delivers l unless the subscription is closed.
func (m *MockSubscription) SendLog(l types.Log) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.logs <- l
	}
}

// SendErr reports a transport fault.
func (m *MockSubscription) SendErr(err error) {
	m.errs <- err
}
