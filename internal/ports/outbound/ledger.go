// Package outbound defines the outbound port interfaces.
package outbound

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	// ErrReverted marks a transaction that was mined with a failed status
	// or rejected by the node because its execution reverted.
	ErrReverted = errors.New("transaction reverted")

	// ErrReceiptTimeout marks a transaction whose receipt did not appear
	// before the caller's context ended.
	ErrReceiptTimeout = errors.New("timed out waiting for receipt")
)

// LedgerGateway is the relay's only view of the chain. It lists the signing
// identities the node manages, subscribes to contract events, and performs
// contract calls and transactions on behalf of an identity.
type LedgerGateway interface {
	// ListIdentities returns the signing addresses available on the node.
	ListIdentities(ctx context.Context) ([]common.Address, error)

	// Subscribe opens a long-lived subscription to the named contract event.
	// The subscription survives transport faults; they are reported on Err().
	Subscribe(ctx context.Context, eventName string) (EventSubscription, error)

	// Call performs a read-only contract call as from and returns the
	// unpacked outputs of method.
	Call(ctx context.Context, from common.Address, method string, args ...any) ([]any, error)

	// Send submits a contract transaction signed by from, carrying value wei
	// (nil for none), and waits for its inclusion. A receipt with a failed
	// status is reported as an error.
	Send(ctx context.Context, from common.Address, value *big.Int, method string, args ...any) (*types.Receipt, error)
}

// EventSubscription is a cancellable stream of raw contract logs.
type EventSubscription interface {
	// Logs delivers logs in arrival order. It is closed after Unsubscribe
	// or when the subscription context ends.
	Logs() <-chan types.Log

	// Err delivers non-terminal transport faults. Receiving from it is
	// optional; faults are dropped if nobody is listening.
	Err() <-chan error

	// Unsubscribe stops the subscription and closes Logs.
	Unsubscribe()
}
