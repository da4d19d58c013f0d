package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// JSONRPCRequest represents a JSON-RPC request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

// SentTransaction is an eth_sendTransaction request recorded by MockEthNode.
type SentTransaction struct {
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Gas      hexutil.Uint64 `json:"gas"`
	GasPrice *hexutil.Big   `json:"gasPrice"`
	Value    *hexutil.Big   `json:"value"`
	Data     hexutil.Bytes  `json:"data"`
	Hash     common.Hash    `json:"-"`
}

// CallRecord is an eth_call request recorded by MockEthNode.
type CallRecord struct {
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Gas      hexutil.Uint64 `json:"gas"`
	GasPrice *hexutil.Big   `json:"gasPrice"`
	Data     hexutil.Bytes  `json:"data"`
	Input    hexutil.Bytes  `json:"input"`
}

// Calldata returns the call input regardless of which field the client used.
func (c CallRecord) Calldata() []byte {
	if len(c.Input) > 0 {
		return c.Input
	}
	return c.Data
}

// MockEthNode is an httptest JSON-RPC node with node-managed accounts.
// Exported fields may be set before the first request.
type MockEthNode struct {
	Server *httptest.Server

	// Accounts is returned by eth_accounts.
	Accounts []common.Address

	// CallResult is returned by eth_call. CallError, if set, is returned instead.
	CallResult []byte
	CallError  string

	// SendError, if set, makes eth_sendTransaction fail with this message.
	SendError string

	// ReceiptStatus is the status of every receipt (1 success, 0 failure).
	ReceiptStatus uint64

	// PendingPolls is how many receipt polls return null before the receipt exists.
	PendingPolls int

	// NeverMine makes every receipt poll return null.
	NeverMine bool

	mu    sync.Mutex
	sent  []SentTransaction
	calls []CallRecord
	polls map[common.Hash]int
}

// StartMockEthNode starts a mock node that is closed when the test ends.
func StartMockEthNode(t *testing.T) *MockEthNode {
	t.Helper()

	n := &MockEthNode{
		ReceiptStatus: 1,
		polls:         make(map[common.Hash]int),
	}
	n.Server = httptest.NewServer(http.HandlerFunc(n.handle))
	t.Cleanup(n.Server.Close)
	return n
}

// URL returns the HTTP endpoint of the node.
func (n *MockEthNode) URL() string {
	return n.Server.URL
}

// Sent returns a copy of the recorded transactions.
func (n *MockEthNode) Sent() []SentTransaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]SentTransaction(nil), n.sent...)
}

// Calls returns a copy of the recorded eth_call requests.
func (n *MockEthNode) Calls() []CallRecord {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]CallRecord(nil), n.calls...)
}

// Polls returns how many times the receipt of hash was requested.
func (n *MockEthNode) Polls(hash common.Hash) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.polls[hash]
}

func (n *MockEthNode) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		WriteRPCError(w, json.RawMessage(`1`), -32700, "parse error")
		return
	}

	var params []json.RawMessage
	_ = json.Unmarshal(req.Params, &params)

	switch req.Method {
	case "eth_accounts":
		accounts := n.Accounts
		if accounts == nil {
			accounts = []common.Address{}
		}
		writeJSONResult(w, req.ID, accounts)

	case "eth_call":
		var call CallRecord
		if len(params) > 0 {
			_ = json.Unmarshal(params[0], &call)
		}
		n.mu.Lock()
		n.calls = append(n.calls, call)
		n.mu.Unlock()

		if n.CallError != "" {
			WriteRPCError(w, req.ID, 3, n.CallError)
			return
		}
		writeJSONResult(w, req.ID, hexutil.Bytes(n.CallResult))

	case "eth_sendTransaction":
		if n.SendError != "" {
			WriteRPCError(w, req.ID, -32000, n.SendError)
			return
		}
		var tx SentTransaction
		if len(params) > 0 {
			_ = json.Unmarshal(params[0], &tx)
		}
		n.mu.Lock()
		tx.Hash = crypto.Keccak256Hash([]byte(fmt.Sprintf("tx-%d", len(n.sent))))
		n.sent = append(n.sent, tx)
		n.mu.Unlock()
		writeJSONResult(w, req.ID, tx.Hash)

	case "eth_getTransactionReceipt":
		var hash common.Hash
		if len(params) > 0 {
			_ = json.Unmarshal(params[0], &hash)
		}
		n.mu.Lock()
		n.polls[hash]++
		polls := n.polls[hash]
		n.mu.Unlock()

		if n.NeverMine || polls <= n.PendingPolls {
			WriteRPCResult(w, req.ID, json.RawMessage(`null`))
			return
		}
		writeJSONResult(w, req.ID, receiptJSON(hash, n.ReceiptStatus))

	default:
		WriteRPCError(w, req.ID, -32601, "method not found: "+req.Method)
	}
}

func receiptJSON(hash common.Hash, status uint64) map[string]any {
	return map[string]any{
		"type":              "0x0",
		"status":            hexutil.Uint64(status),
		"cumulativeGasUsed": "0x5208",
		"logsBloom":         "0x" + strings.Repeat("0", 512),
		"logs":              []any{},
		"transactionHash":   hash,
		"gasUsed":           "0x5208",
		"effectiveGasPrice": (*hexutil.Big)(big.NewInt(100_000_000_000)),
		"blockHash":         common.BigToHash(big.NewInt(1)),
		"blockNumber":       "0x1",
		"transactionIndex":  "0x0",
	}
}

func writeJSONResult(w http.ResponseWriter, id json.RawMessage, v any) {
	result, _ := json.Marshal(v)
	WriteRPCResult(w, id, json.RawMessage(result))
}

// WriteRPCResult writes a JSON-RPC success response.
func WriteRPCResult(w http.ResponseWriter, id, result json.RawMessage) {
	_ = json.NewEncoder(w).Encode(map[string]json.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"id":      id,
		"result":  result,
	})
}

// WriteRPCError writes a JSON-RPC error response.
func WriteRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	errJSON, _ := json.Marshal(map[string]any{"code": code, "message": message})
	_ = json.NewEncoder(w).Encode(map[string]json.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"id":      id,
		"error":   json.RawMessage(errJSON),
	})
}
