package testutil

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/archon-research/oracle-relay/internal/domain/entity"
)

// RequestEvent returns a valid request for flight with a fixed airline.
func RequestEvent(flight string, timestamp int64) entity.RequestEvent {
	return entity.RequestEvent{
		Airline:     Address(100),
		Flight:      flight,
		Timestamp:   big.NewInt(timestamp),
		BlockNumber: 42,
		TxHash:      crypto.Keccak256Hash([]byte("request-" + flight)),
	}
}

// SuccessOutcome builds a successful outcome for oracle n answering event
// with index and status.
func SuccessOutcome(dispatchID uuid.UUID, n int, index uint8, event entity.RequestEvent, status entity.StatusCode) entity.Outcome {
	return entity.Outcome{
		DispatchID: dispatchID,
		Oracle:     Address(n),
		Attempt: entity.ResponseAttempt{
			Index:      index,
			Event:      event,
			StatusCode: status,
		},
		TxHash:   crypto.Keccak256Hash([]byte{byte(n), index}),
		Duration: 1500 * time.Millisecond,
		At:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// FailedOutcome builds a submission failure with reason.
func FailedOutcome(dispatchID uuid.UUID, n int, index uint8, event entity.RequestEvent, reason string) entity.Outcome {
	o := SuccessOutcome(dispatchID, n, index, event, entity.StatusOnTime)
	o.TxHash = common.Hash{}
	o.Kind = entity.FailureSubmission
	o.Reason = reason
	o.Err = errors.New("transaction reverted")
	return o
}
