package entity

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RequestEvent is a decoded OracleRequest emitted by the application contract.
// It lives only for the duration of one dispatch.
//
// The fields are relayed exactly as emitted. An empty flight or a zero
// airline is still a request the contract can match against, so nothing here
// is validated.
type RequestEvent struct {
	Airline common.Address
	Flight  string
	// Timestamp is the contract's uint256 and may exceed int64.
	Timestamp *big.Int

	// Chain position of the log that carried the request. Informational only.
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}

// TimestampString renders the timestamp in base 10, "0" when unset.
func (e RequestEvent) TimestampString() string {
	if e.Timestamp == nil {
		return "0"
	}
	return e.Timestamp.String()
}

// Key identifies the request the way the contract does: airline, flight and timestamp.
func (e RequestEvent) Key() string {
	return fmt.Sprintf("%s:%s:%s", e.Airline.Hex(), e.Flight, e.TimestampString())
}
