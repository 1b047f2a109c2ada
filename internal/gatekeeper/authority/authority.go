// Package authority wraps the remote services that own the facts a gate
// decision depends on: subscription validity, payment status, and lot
// occupancy.  Each wrapper exposes one bounded, typed call; the orchestrator
// depends only on the interfaces so tests can substitute doubles that
// simulate timeouts and malformed payloads.
package authority

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Failure taxonomy for downstream calls.  Callers match with errors.Is;
// the orchestrator folds all three into the fail-safe deny branch.
var (
	ErrUnavailable     = errors.New("authority unavailable")
	ErrTimeout         = errors.New("authority timed out")
	ErrInvalidResponse = errors.New("authority returned an invalid response")
)

// SubscriptionCheckResult is the Subscription Authority's answer for a
// license plate.  ClientID and SubscriptionID are nil when the plate is not
// on file.
type SubscriptionCheckResult struct {
	AccessGranted  bool   `json:"is_access_granted"`
	ClientID       *int64 `json:"client_id,omitempty"`
	SubscriptionID *int64 `json:"subscription_id,omitempty"`
}

// PaymentStatusResult is the Payment Authority's answer for a ticket or a
// client account.
type PaymentStatusResult struct {
	Paid         bool            `json:"is_paid"`
	RemainingFee decimal.Decimal `json:"remaining_fee"`
}

// PaymentRef identifies what the payment status is being asked about:
// a visitor ticket code, or a subscriber's client account.
type PaymentRef struct {
	TicketCode string
	ClientID   *int64
}

func (r PaymentRef) Empty() bool {
	return r.TicketCode == "" && r.ClientID == nil
}

// SpaceStatusResult is the Space Authority's occupancy snapshot for a lot.
type SpaceStatusResult struct {
	OccupancyCount int `json:"occupancy_count"`
	Capacity       int `json:"capacity"`
}

// Full reports whether the lot has no free spaces.  A zero capacity means
// the authority has no limit configured for the lot.
func (r SpaceStatusResult) Full() bool {
	return r.Capacity > 0 && r.OccupancyCount >= r.Capacity
}

// LogEntry is the structured record forwarded to the Event Log Authority.
type LogEntry struct {
	EventType    string    `json:"event_type"`
	LicensePlate string    `json:"license_plate,omitempty"`
	TicketCode   string    `json:"ticket_code,omitempty"`
	GateID       string    `json:"gate_id"`
	Decision     string    `json:"decision"`
	Reason       string    `json:"reason,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	OperatorID   string    `json:"operator_id,omitempty"`
}

type SubscriptionChecker interface {
	CheckPlate(ctx context.Context, licensePlate string) (SubscriptionCheckResult, error)
}

type PaymentChecker interface {
	Status(ctx context.Context, ref PaymentRef) (PaymentStatusResult, error)
}

type SpaceChecker interface {
	LotStatus(ctx context.Context, lotID string) (SpaceStatusResult, error)
}

// EventLogger forwards audit entries to the remote log collector.  Callers
// treat it as best-effort: a returned error is logged, never acted on.
type EventLogger interface {
	Log(ctx context.Context, entry LogEntry) error
}
