package entity

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// StatusCode is the flight status category an oracle reports.
type StatusCode uint8

// Status codes understood by the application contract.
const (
	StatusUnknown       StatusCode = 0
	StatusOnTime        StatusCode = 10
	StatusLateAirline   StatusCode = 20
	StatusLateWeather   StatusCode = 30
	StatusLateTechnical StatusCode = 40
)

// ResponseStatusCodes are the buckets a relay oracle draws from.
var ResponseStatusCodes = []StatusCode{
	StatusUnknown,
	StatusOnTime,
	StatusLateAirline,
	StatusLateWeather,
	StatusLateTechnical,
}

// Valid reports whether the code is one of ResponseStatusCodes.
func (s StatusCode) Valid() bool {
	return s <= StatusLateTechnical && s%10 == 0
}

func (s StatusCode) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusOnTime:
		return "on_time"
	case StatusLateAirline:
		return "late_airline"
	case StatusLateWeather:
		return "late_weather"
	case StatusLateTechnical:
		return "late_technical"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ResponseAttempt is one oracle response for one of the oracle's indexes.
type ResponseAttempt struct {
	Index      uint8
	Event      RequestEvent
	StatusCode StatusCode
}

// Outcome is the result of a single submission attempt. It is reported to
// sinks and metrics only; the dispatcher never looks at it.
type Outcome struct {
	DispatchID uuid.UUID
	Oracle     common.Address
	Attempt    ResponseAttempt
	TxHash     common.Hash
	Kind       FailureKind
	Reason     string
	Err        error
	Duration   time.Duration
	At         time.Time
}

// OK reports whether the response transaction was included without reverting.
func (o Outcome) OK() bool {
	return o.Kind == FailureNone
}

// ErrString returns the error text, or an empty string on success.
func (o Outcome) ErrString() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
