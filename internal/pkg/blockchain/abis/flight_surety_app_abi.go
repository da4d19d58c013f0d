package abis

import "github.com/ethereum/go-ethereum/accounts/abi"

// GetFlightSuretyAppABI returns the subset of the FlightSuretyApp contract
// ABI the oracle relay talks to.
func GetFlightSuretyAppABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"inputs": [],
			"name": "registerOracle",
			"outputs": [],
			"stateMutability": "payable",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "getMyIndexes",
			"outputs": [{"name": "", "type": "uint8[3]"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [
				{"name": "index", "type": "uint8"},
				{"name": "airline", "type": "address"},
				{"name": "flight", "type": "string"},
				{"name": "timestamp", "type": "uint256"},
				{"name": "statusCode", "type": "uint8"}
			],
			"name": "submitOracleResponse",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"anonymous": false,
			"inputs": [
				{"indexed": false, "name": "airline", "type": "address"},
				{"indexed": false, "name": "flight", "type": "string"},
				{"indexed": false, "name": "timestamp", "type": "uint256"}
			],
			"name": "OracleRequest",
			"type": "event"
		},
		{
			"anonymous": false,
			"inputs": [
				{"indexed": false, "name": "airline", "type": "address"},
				{"indexed": false, "name": "flight", "type": "string"},
				{"indexed": false, "name": "timestamp", "type": "uint256"},
				{"indexed": false, "name": "status", "type": "uint8"}
			],
			"name": "OracleReport",
			"type": "event"
		},
		{
			"anonymous": false,
			"inputs": [
				{"indexed": false, "name": "airline", "type": "address"},
				{"indexed": false, "name": "flight", "type": "string"},
				{"indexed": false, "name": "timestamp", "type": "uint256"},
				{"indexed": false, "name": "status", "type": "uint8"}
			],
			"name": "FlightStatusInfo",
			"type": "event"
		}
	]`)
}
