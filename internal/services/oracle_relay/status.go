package oracle_relay

import (
	"math/rand/v2"
	"sync"

	"github.com/archon-research/oracle-relay/internal/domain/entity"
)

// StatusSource draws the status code an oracle reports for one attempt.
type StatusSource interface {
	Next() entity.StatusCode
}

// StatusSourceFunc adapts a function to StatusSource.
type StatusSourceFunc func() entity.StatusCode

// Next implements StatusSource.
func (f StatusSourceFunc) Next() entity.StatusCode { return f() }

// RandomStatusSource draws uniformly from entity.ResponseStatusCodes.
// A zero value uses the process-wide math/rand/v2 generator.
type RandomStatusSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeededStatusSource returns a deterministic source, for tests and replays.
func NewSeededStatusSource(seed1, seed2 uint64) *RandomStatusSource {
	return &RandomStatusSource{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// Next implements StatusSource. It is safe for concurrent use.
func (s *RandomStatusSource) Next() entity.StatusCode {
	n := len(entity.ResponseStatusCodes)
	if s.rng == nil {
		return entity.ResponseStatusCodes[rand.IntN(n)]
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return entity.ResponseStatusCodes[s.rng.IntN(n)]
}
