package entity

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// IndexTriple is the set of three indexes the contract assigns to an oracle at
// registration time. Only requests carrying one of these indexes accept the
// oracle's responses.
type IndexTriple [3]uint8

// Contains reports whether idx is one of the oracle's assigned indexes.
func (t IndexTriple) Contains(idx uint8) bool {
	for _, v := range t {
		if v == idx {
			return true
		}
	}
	return false
}

// OracleRegistration is a registered oracle identity and its index triple.
type OracleRegistration struct {
	Identity     common.Address
	Indexes      IndexTriple
	TxHash       common.Hash
	RegisteredAt time.Time
}

// NewOracleRegistration creates a new OracleRegistration with validation.
func NewOracleRegistration(identity common.Address, indexes IndexTriple, txHash common.Hash, at time.Time) (*OracleRegistration, error) {
	r := &OracleRegistration{
		Identity:     identity,
		Indexes:      indexes,
		TxHash:       txHash,
		RegisteredAt: at,
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *OracleRegistration) validate() error {
	if r.Identity == (common.Address{}) {
		return fmt.Errorf("identity must not be the zero address")
	}
	if r.RegisteredAt.IsZero() {
		return fmt.Errorf("registeredAt must be set")
	}
	return nil
}

// RegistrationResult is the explicit result of one registration attempt.
// Registration is nil and Kind is FailureRegistration when the attempt failed.
type RegistrationResult struct {
	Identity     common.Address
	Registration *OracleRegistration
	Kind         FailureKind
	Err          error
}

// OK reports whether the registration succeeded.
func (r RegistrationResult) OK() bool {
	return r.Kind == FailureNone && r.Registration != nil
}
