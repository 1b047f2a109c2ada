package memory

import (
	"context"
	"strings"
	"sync"
	"time"
)

type GateStore struct {
	mu    sync.RWMutex
	known map[string]struct{}
	seen  map[string]time.Time
}

func NewGateStore(knownGates []string) *GateStore {
	k := make(map[string]struct{}, len(knownGates))
	for _, g := range knownGates {
		g = strings.TrimSpace(g)
		if g != "" {
			k[g] = struct{}{}
		}
	}
	return &GateStore{
		known: k,
		seen:  make(map[string]time.Time),
	}
}

func (s *GateStore) IsKnown(_ context.Context, gateID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.known[gateID]
	return ok, nil
}

func (s *GateStore) MarkSeen(_ context.Context, gateID string, _ bool, t time.Time) error {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[gateID] = t
	return nil
}
