package memory

import (
	"context"
	"sync"
	"time"

	"github.com/openlots/gatekeeper/internal/gatekeeper/store"
)

// HeartbeatStore keeps only the latest heartbeat per gate, which is all the
// dev environment needs.
type HeartbeatStore struct {
	mu   sync.RWMutex
	data map[string]store.HeartbeatRecord
}

func NewHeartbeatStore() *HeartbeatStore {
	return &HeartbeatStore{
		data: make(map[string]store.HeartbeatRecord),
	}
}

func (s *HeartbeatStore) UpsertHeartbeat(_ context.Context, gateID string, rec store.HeartbeatRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	s.data[gateID] = rec
	return nil
}

func (s *HeartbeatStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for gateID, rec := range s.data {
		if rec.ReceivedAt.Before(cutoff) {
			delete(s.data, gateID)
			deleted++
		}
	}
	return deleted, nil
}

// Latest returns the most recent heartbeat for gateID.  Test-only helper.
func (s *HeartbeatStore) Latest(gateID string) (store.HeartbeatRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[gateID]
	return rec, ok
}
