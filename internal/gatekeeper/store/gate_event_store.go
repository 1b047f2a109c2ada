package store

import (
	"context"
	"time"

	"github.com/openlots/gatekeeper/internal/gatekeeper/types"
)

// GateEventRecord is one immutable audit entry: a single physical attempt
// to pass a gate, including attempts that failed inside the orchestrator.
type GateEventRecord struct {
	ID           string
	EventType    types.EventType
	LicensePlate string
	TicketCode   string // empty unless a visitor ticket was issued
	GateID       string
	Decision     types.Action
	Reason       string
	OperatorID   string // set only for MANUAL_OPEN
	CreatedAt    time.Time
}

// GateEventStore persists gate decisions as an append-only audit log.
// There is no update or delete in the record lifecycle; Recent exists for
// operator tooling only.
type GateEventStore interface {
	Append(ctx context.Context, rec GateEventRecord) (string, error)
	Recent(ctx context.Context, limit int) ([]GateEventRecord, error)
}
