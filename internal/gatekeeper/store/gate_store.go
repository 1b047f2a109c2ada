package store

import (
	"context"
	"time"
)

type GateRecord struct {
	GateID   string
	LotID    string
	Known    bool
	LastSeen time.Time
}

// GateStore tracks the lane controllers the server will talk to.  A gate is
// "known" once an admin has commissioned and enabled it; requests from
// anything else are refused before any downstream call.
type GateStore interface {
	IsKnown(ctx context.Context, gateID string) (bool, error)
	MarkSeen(ctx context.Context, gateID string, known bool, t time.Time) error
}
