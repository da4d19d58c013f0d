package blockchain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/params"
)

// Contract surface of FlightSuretyApp used by the relay.
const (
	EventOracleRequest         = "OracleRequest"
	MethodRegisterOracle       = "registerOracle"
	MethodGetMyIndexes         = "getMyIndexes"
	MethodSubmitOracleResponse = "submitOracleResponse"
)

// Every transaction the relay sends uses fixed gas settings.
const (
	GasLimit uint64 = 2_500_000
	GasPriceWei     = 100_000_000_000 // 100 gwei
	OracleStakeEth  = 10
)

// GasPrice returns the fixed gas price as a big.Int.
func GasPrice() *big.Int {
	return big.NewInt(GasPriceWei)
}

// OracleStake returns the registration fee in wei.
func OracleStake() *big.Int {
	return new(big.Int).Mul(big.NewInt(OracleStakeEth), big.NewInt(params.Ether))
}
