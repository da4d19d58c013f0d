package blockchain

import "math/big"

// WeiToEther converts a wei amount to ether for display.
func WeiToEther(wei *big.Int) *big.Float {
	if wei == nil {
		return big.NewFloat(0)
	}
	result := new(big.Float).SetInt(wei)
	return result.Quo(result, big.NewFloat(1e18))
}
