package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/openlots/gatekeeper/internal/gatekeeper/store"
)

var errAppendFailed = errors.New("append failed (simulated)")

// GateEventStore is an in-memory append-only audit log for tests and dev
// environments.
type GateEventStore struct {
	mu     sync.Mutex
	events []store.GateEventRecord
	failN  int
}

func NewGateEventStore() *GateEventStore {
	return &GateEventStore{}
}

func (s *GateEventStore) Append(_ context.Context, rec store.GateEventRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failN > 0 {
		s.failN--
		return "", errAppendFailed
	}
	s.events = append(s.events, rec)
	return rec.ID, nil
}

func (s *GateEventStore) Recent(_ context.Context, limit int) ([]store.GateEventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]store.GateEventRecord, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

// Events returns a copy of all recorded events.  Test-only helper.
func (s *GateEventStore) Events() []store.GateEventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.GateEventRecord, len(s.events))
	copy(out, s.events)
	return out
}

// FailNextAppends makes the next n Append calls fail.  Test-only helper for
// exercising the audit-write retry path.
func (s *GateEventStore) FailNextAppends(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failN = n
}
