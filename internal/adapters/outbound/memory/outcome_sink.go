// outcome_sink.go provides an in-memory implementation of OutcomeSink.
//
// The sink keeps the most recent outcomes in arrival order. The status
// endpoint reads them back and tests use it to inspect submissions.
// All operations are thread-safe. Data is lost on process restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/archon-research/oracle-relay/internal/domain/entity"
	"github.com/archon-research/oracle-relay/internal/ports/outbound"
)

// Compile-time check that OutcomeSink implements outbound.OutcomeSink
var _ outbound.OutcomeSink = (*OutcomeSink)(nil)

// OutcomeSink stores recorded outcomes in memory.
type OutcomeSink struct {
	mu       sync.RWMutex
	outcomes []entity.Outcome
	capacity int
	total    int
	failed   int
	closed   bool
	notify   chan struct{}

	// Callback for test assertions
	onRecord func(entity.Outcome)
}

// NewOutcomeSink creates a sink keeping at most capacity outcomes.
// capacity <= 0 keeps everything.
func NewOutcomeSink(capacity int) *OutcomeSink {
	return &OutcomeSink{
		capacity: capacity,
		notify:   make(chan struct{}),
	}
}

// Record stores the outcome, evicting the oldest one when full.
func (s *OutcomeSink) Record(ctx context.Context, outcome entity.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.outcomes = append(s.outcomes, outcome)
	if s.capacity > 0 && len(s.outcomes) > s.capacity {
		s.outcomes = s.outcomes[len(s.outcomes)-s.capacity:]
	}
	s.total++
	if !outcome.OK() {
		s.failed++
	}

	close(s.notify)
	s.notify = make(chan struct{})

	if s.onRecord != nil {
		s.onRecord(outcome)
	}
	return nil
}

// Close marks the sink as closed. Later outcomes are ignored.
func (s *OutcomeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Outcomes returns the retained outcomes, oldest first.
func (s *OutcomeSink) Outcomes() []entity.Outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]entity.Outcome, len(s.outcomes))
	copy(result, s.outcomes)
	return result
}

// Counts returns how many outcomes were recorded in total and how many failed.
func (s *OutcomeSink) Counts() (total, failed int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total, s.failed
}

// SetOnRecord registers a callback invoked for every recorded outcome.
func (s *OutcomeSink) SetOnRecord(fn func(entity.Outcome)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRecord = fn
}

// WaitForCount blocks until at least n outcomes were recorded or timeout elapses.
func (s *OutcomeSink) WaitForCount(n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		s.mu.RLock()
		total, notify := s.total, s.notify
		s.mu.RUnlock()
		if total >= n {
			return true
		}
		select {
		case <-notify:
		case <-deadline.C:
			return false
		}
	}
}
