package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/archon-research/oracle-relay/internal/domain/entity"
	"github.com/archon-research/oracle-relay/internal/ports/outbound"
)

var _ outbound.MetricsRecorder = (*MockMetricsRecorder)(nil)

// MockMetricsRecorder counts recorded relay metrics.
type MockMetricsRecorder struct {
	mu            sync.Mutex
	Registrations map[entity.FailureKind]int
	Requests      int
	Attempts      int
	Dropped       int
	Responses     map[string]int
	StreamErrors  int
}

func NewMockMetricsRecorder() *MockMetricsRecorder {
	return &MockMetricsRecorder{
		Registrations: make(map[entity.FailureKind]int),
		Responses:     make(map[string]int),
	}
}

func (m *MockMetricsRecorder) RecordRegistration(ctx context.Context, kind entity.FailureKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Registrations[kind]++
}

func (m *MockMetricsRecorder) RecordRequest(ctx context.Context, attempts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests++
	m.Attempts += attempts
}

func (m *MockMetricsRecorder) RecordDroppedRequest(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Dropped++
}

// RecordResponse counts responses keyed by "outcome" or "outcome:reason".
func (m *MockMetricsRecorder) RecordResponse(ctx context.Context, kind entity.FailureKind, reason string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := kind.Label()
	if reason != "" {
		key += ":" + reason
	}
	m.Responses[key]++
}

func (m *MockMetricsRecorder) RecordStreamError(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StreamErrors++
}

// MetricsSnapshot is a point-in-time copy of MockMetricsRecorder counters.
type MetricsSnapshot struct {
	Registrations map[entity.FailureKind]int
	Requests      int
	Attempts      int
	Dropped       int
	Responses     map[string]int
	StreamErrors  int
}

// Snapshot returns a consistent copy of the counters.
func (m *MockMetricsRecorder) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := MetricsSnapshot{
		Registrations: make(map[entity.FailureKind]int, len(m.Registrations)),
		Requests:      m.Requests,
		Attempts:      m.Attempts,
		Dropped:       m.Dropped,
		Responses:     make(map[string]int, len(m.Responses)),
		StreamErrors:  m.StreamErrors,
	}
	for k, v := range m.Registrations {
		out.Registrations[k] = v
	}
	for k, v := range m.Responses {
		out.Responses[k] = v
	}
	return out
}
