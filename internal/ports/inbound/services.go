// Package inbound contains the primary/inbound ports.
// These interfaces define what the relay exposes to inbound adapters.
package inbound

// HealthChecker defines the interface for services that can report readiness and liveness.
//
// Implementations:
//   - oracle_relay.RelayService: ready once oracles are registered and the request
//     subscription is open, healthy while the dispatch loop runs
type HealthChecker interface {
	// IsReady returns true when the service is ready to handle traffic.
	IsReady() bool

	// IsHealthy returns true when the service is operating normally.
	IsHealthy() bool
}

// RelayStatus reports the relay's registry for status endpoints.
type RelayStatus interface {
	// RegisteredOracles returns the number of oracles in the registry.
	RegisteredOracles() int
}

// OutcomeStats reports how many response attempts have completed since start.
//
// Implementations:
//   - memory.OutcomeSink
type OutcomeStats interface {
	Counts() (total, failed int)
}
