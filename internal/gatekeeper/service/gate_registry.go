package service

import (
	"context"
	"strings"
	"time"

	"github.com/openlots/gatekeeper/internal/gatekeeper/store"
)

// GateRegistry answers whether a lane controller is commissioned and keeps
// its last-seen timestamp fresh on every sighting.
type GateRegistry struct {
	store store.GateStore
}

func NewGateRegistry(st store.GateStore) *GateRegistry {
	return &GateRegistry{store: st}
}

func (r *GateRegistry) IsKnown(ctx context.Context, gateID string) (bool, error) {
	gateID = strings.TrimSpace(gateID)
	if gateID == "" {
		return false, nil
	}
	return r.store.IsKnown(ctx, gateID)
}

func (r *GateRegistry) NoteSeen(ctx context.Context, gateID string, known bool) error {
	gateID = strings.TrimSpace(gateID)
	if gateID == "" {
		return nil
	}
	return r.store.MarkSeen(ctx, gateID, known, time.Now().UTC())
}
