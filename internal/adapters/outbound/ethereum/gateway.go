// Package ethereum implements the ledger gateway on top of a JSON-RPC node.
//
// Identities are the node's unlocked accounts and every transaction is signed
// by the node through eth_sendTransaction. Contract events are delivered by a
// WebSocket eth_subscribe("logs") stream that reconnects on its own.
package ethereum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/archon-research/oracle-relay/internal/pkg/blockchain"
	"github.com/archon-research/oracle-relay/internal/pkg/retry"
	"github.com/archon-research/oracle-relay/internal/ports/outbound"
)

// Compile-time check that Gateway implements outbound.LedgerGateway
var _ outbound.LedgerGateway = (*Gateway)(nil)

// Sentinels shared with the outbound port so services can classify failures.
var (
	ErrReverted       = outbound.ErrReverted
	ErrReceiptTimeout = outbound.ErrReceiptTimeout
)

// Gateway talks to one node over HTTP JSON-RPC for calls and transactions
// and over WebSocket for log subscriptions.
type Gateway struct {
	config      Config
	rpcClient   *rpc.Client
	client      *ethclient.Client
	contractABI *abi.ABI
	logger      *slog.Logger
}

// NewGateway dials the node's HTTP endpoint. contractABI describes the
// contract at config.ContractAddress.
func NewGateway(ctx context.Context, config Config, contractABI *abi.ABI) (*Gateway, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if contractABI == nil {
		return nil, errors.New("contract ABI cannot be nil")
	}
	config.applyDefaults()

	rpcClient, err := rpc.DialContext(ctx, config.HTTPURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to RPC %s: %w", config.HTTPURL, err)
	}

	return &Gateway{
		config:      config,
		rpcClient:   rpcClient,
		client:      ethclient.NewClient(rpcClient),
		contractABI: contractABI,
		logger:      config.Logger.With("component", "ledger-gateway"),
	}, nil
}

// ListIdentities implements outbound.LedgerGateway using eth_accounts.
func (g *Gateway) ListIdentities(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := g.rpcClient.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, fmt.Errorf("eth_accounts: %w", err)
	}
	return accounts, nil
}

// Subscribe implements outbound.LedgerGateway. It blocks until the node has
// confirmed the subscription or SubscribeTimeout elapses.
func (g *Gateway) Subscribe(ctx context.Context, eventName string) (outbound.EventSubscription, error) {
	event, ok := g.contractABI.Events[eventName]
	if !ok {
		return nil, fmt.Errorf("contract ABI has no event %q", eventName)
	}

	subConfig := g.config.Subscription
	subConfig.WebSocketURL = g.config.WebSocketURL
	subConfig.Address = g.config.ContractAddress
	subConfig.Topics = [][]common.Hash{{event.ID}}

	sub, err := NewLogSubscriber(subConfig)
	if err != nil {
		return nil, fmt.Errorf("creating log subscriber: %w", err)
	}
	if err := sub.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting log subscriber: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, g.config.SubscribeTimeout)
	defer cancel()
	if err := sub.WaitConnected(waitCtx); err != nil {
		sub.Unsubscribe()
		return nil, fmt.Errorf("subscribing to %s: %w", eventName, err)
	}

	g.logger.Info("subscribed to contract event",
		"event", eventName,
		"contract", g.config.ContractAddress.Hex(),
		"url", g.config.WebSocketURL)
	return sub, nil
}

// Call implements outbound.LedgerGateway using eth_call at the latest block.
func (g *Gateway) Call(ctx context.Context, from common.Address, method string, args ...any) ([]any, error) {
	data, err := g.contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	to := g.config.ContractAddress
	msg := geth.CallMsg{
		From:     from,
		To:       &to,
		Gas:      blockchain.GasLimit,
		GasPrice: blockchain.GasPrice(),
		Data:     data,
	}

	result, err := g.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}

	out, err := g.contractABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return out, nil
}

// Send implements outbound.LedgerGateway. The transaction is broadcast once;
// afterwards the receipt is polled until it exists or ctx ends.
func (g *Gateway) Send(ctx context.Context, from common.Address, value *big.Int, method string, args ...any) (*types.Receipt, error) {
	data, err := g.contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	txArgs := sendTxArgs{
		From:     from,
		To:       g.config.ContractAddress,
		Gas:      hexutil.Uint64(blockchain.GasLimit),
		GasPrice: (*hexutil.Big)(blockchain.GasPrice()),
		Data:     data,
	}
	if value != nil && value.Sign() > 0 {
		txArgs.Value = (*hexutil.Big)(value)
	}

	var txHash common.Hash
	if err := g.rpcClient.CallContext(ctx, &txHash, "eth_sendTransaction", txArgs); err != nil {
		if isRevertError(err) {
			return nil, fmt.Errorf("%s from %s: %w: %v", method, from.Hex(), ErrReverted, err)
		}
		return nil, fmt.Errorf("%s from %s: eth_sendTransaction: %w", method, from.Hex(), err)
	}

	g.logger.Debug("transaction broadcast",
		"method", method,
		"from", from.Hex(),
		"tx", truncateHash(txHash.Hex()))

	receipt, err := g.waitForReceipt(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("%s from %s: %w", method, from.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%s from %s: %w (tx %s)", method, from.Hex(), ErrReverted, txHash.Hex())
	}
	return receipt, nil
}

// Close releases the underlying RPC client.
func (g *Gateway) Close() {
	g.rpcClient.Close()
}

func (g *Gateway) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	isPending := func(err error) bool {
		return errors.Is(err, geth.NotFound)
	}

	receipt, err := retry.Do(ctx, retry.PollConfig(g.config.ReceiptPollInterval), isPending, nil, func() (*types.Receipt, error) {
		return g.client.TransactionReceipt(ctx, txHash)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: tx %s: %v", ErrReceiptTimeout, txHash.Hex(), err)
		}
		return nil, fmt.Errorf("eth_getTransactionReceipt %s: %w", txHash.Hex(), err)
	}
	return receipt, nil
}

// isRevertError reports whether the node refused the transaction because its
// execution reverted. Development nodes execute eagerly and report it this way.
func isRevertError(err error) bool {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "revert")
}
