package blockchain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/archon-research/oracle-relay/internal/domain/entity"
)

// ErrMalformedRequest is returned for logs that are not well-formed OracleRequest events.
var ErrMalformedRequest = errors.New("malformed OracleRequest")

// RequestDecoder turns raw OracleRequest logs into RequestEvents.
type RequestDecoder struct {
	contractABI *abi.ABI
	event       abi.Event
}

// NewRequestDecoder creates a decoder for the contract's OracleRequest event.
func NewRequestDecoder(contractABI *abi.ABI) (*RequestDecoder, error) {
	if contractABI == nil {
		return nil, fmt.Errorf("contract ABI cannot be nil")
	}
	event, ok := contractABI.Events[EventOracleRequest]
	if !ok {
		return nil, fmt.Errorf("ABI has no %s event", EventOracleRequest)
	}
	return &RequestDecoder{contractABI: contractABI, event: event}, nil
}

// Topic returns the event signature hash used to filter logs.
func (d *RequestDecoder) Topic() common.Hash {
	return d.event.ID
}

// Decode unpacks airline, flight and timestamp from the log data.
// Only a topic mismatch or an ABI unpack failure is an error, and it wraps
// ErrMalformedRequest. Field values are passed through untouched.
func (d *RequestDecoder) Decode(log types.Log) (*entity.RequestEvent, error) {
	if len(log.Topics) == 0 || log.Topics[0] != d.event.ID {
		return nil, fmt.Errorf("%w: unexpected topic", ErrMalformedRequest)
	}

	fields := make(map[string]any)
	if err := d.contractABI.UnpackIntoMap(fields, EventOracleRequest, log.Data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}

	airline, ok := fields["airline"].(common.Address)
	if !ok {
		return nil, fmt.Errorf("%w: airline has type %T", ErrMalformedRequest, fields["airline"])
	}
	flight, ok := fields["flight"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: flight has type %T", ErrMalformedRequest, fields["flight"])
	}
	ts, ok := fields["timestamp"].(*big.Int)
	if !ok || ts == nil {
		return nil, fmt.Errorf("%w: timestamp has type %T", ErrMalformedRequest, fields["timestamp"])
	}
	event := &entity.RequestEvent{
		Airline:   airline,
		Flight:    flight,
		Timestamp: new(big.Int).Set(ts),
	}
	event.BlockNumber = log.BlockNumber
	event.TxHash = log.TxHash
	event.LogIndex = log.Index
	return event, nil
}

// EncodeRequestLog builds the log a contract would emit for the request.
// Used by test servers and fixtures.
func EncodeRequestLog(contractABI *abi.ABI, contract, airline common.Address, flight string, timestamp *big.Int) (types.Log, error) {
	event, ok := contractABI.Events[EventOracleRequest]
	if !ok {
		return types.Log{}, fmt.Errorf("ABI has no %s event", EventOracleRequest)
	}
	data, err := event.Inputs.NonIndexed().Pack(airline, flight, timestamp)
	if err != nil {
		return types.Log{}, fmt.Errorf("packing %s: %w", EventOracleRequest, err)
	}
	return types.Log{
		Address: contract,
		Topics:  []common.Hash{event.ID},
		Data:    data,
	}, nil
}

// UnpackIndexTriple converts getMyIndexes outputs into an IndexTriple.
func UnpackIndexTriple(out []any) (entity.IndexTriple, error) {
	if len(out) != 1 {
		return entity.IndexTriple{}, fmt.Errorf("expected 1 output, got %d", len(out))
	}
	switch v := out[0].(type) {
	case [3]uint8:
		return entity.IndexTriple(v), nil
	case []uint8:
		if len(v) != 3 {
			return entity.IndexTriple{}, fmt.Errorf("expected 3 indexes, got %d", len(v))
		}
		return entity.IndexTriple{v[0], v[1], v[2]}, nil
	default:
		return entity.IndexTriple{}, fmt.Errorf("unexpected getMyIndexes output type %T", out[0])
	}
}
