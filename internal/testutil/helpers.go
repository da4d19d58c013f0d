package testutil

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
)

// DiscardLogger returns an slog.Logger that writes to io.Discard.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Address returns a deterministic non-zero address for test identity n.
func Address(n int) common.Address {
	return common.HexToAddress(fmt.Sprintf("0x%040x", n+1))
}

// Addresses returns n deterministic non-zero addresses.
func Addresses(n int) []common.Address {
	out := make([]common.Address, n)
	for i := range out {
		out[i] = Address(i)
	}
	return out
}
