package service

import (
	"fmt"
	"strings"

	"github.com/openlots/gatekeeper/internal/gatekeeper/authority"
	"github.com/openlots/gatekeeper/internal/gatekeeper/types"
)

// Reason codes recorded on audit events.  Machine-readable; the decision
// message is the human-readable counterpart shown at the gate display.
const (
	ReasonSubscriptionActive      = "subscription_active"
	ReasonLotFull                 = "lot_full"
	ReasonVisitorTicket           = "visitor_ticket_issued"
	ReasonSubscriptionUnavailable = "subscription_check_unavailable"
	ReasonInvalidPlate            = "invalid_plate"
	ReasonUnknownGate             = "unknown_gate"
	ReasonSubscriptionExit        = "subscription_exit"
	ReasonTicketPaid              = "ticket_paid"
	ReasonPaymentRequired         = "payment_required"
	ReasonPaymentUnavailable      = "payment_check_unavailable"
	ReasonNoTicketOnRecord        = "no_ticket_on_record"
	ReasonManualOpen              = "manual_open"
	ReasonAuditWriteFailed        = "audit_write_failed"
)

// NormalizePlate canonicalizes a license plate for authority lookups.
// Returns false for input that cannot be a plate; malformed plates are
// denied, never treated as an internal error.
func NormalizePlate(s string) (string, bool) {
	p := strings.ToUpper(strings.Join(strings.Fields(s), ""))
	if len(p) < 2 || len(p) > 16 {
		return "", false
	}
	for _, r := range p {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return "", false
		}
	}
	return p, true
}

// EntryInputs carries whatever the entry checks produced, including their
// failures.  The engine sees errors as data; it never propagates them.
type EntryInputs struct {
	Subscription    authority.SubscriptionCheckResult
	SubscriptionErr error
	Space           authority.SpaceStatusResult
	SpaceErr        error
}

// ExitInputs carries the sequential exit lookups.  PaymentChecked is false
// when no ticket or client reference could be resolved, so the payment
// result fields are meaningless.
type ExitInputs struct {
	Subscription    authority.SubscriptionCheckResult
	SubscriptionErr error
	Payment         authority.PaymentStatusResult
	PaymentErr      error
	PaymentChecked  bool
}

// Engine turns authority results into gate decisions.  Pure aside from
// ticket minting, which goes through the injected issuer.
type Engine struct {
	tickets *TicketIssuer
}

func NewEngine(tickets *TicketIssuer) *Engine {
	return &Engine{tickets: tickets}
}

// DecideEntry applies the arrival policy:
//
//  1. an active subscription opens the gate with no ticket;
//  2. otherwise a full lot denies;
//  3. otherwise a visitor ticket is minted and the gate opens;
//  4. a failed subscription check denies — an authority outage is never an
//     implicit grant.
func (e *Engine) DecideEntry(gateID, licensePlate string, in EntryInputs) (types.EntryDecision, string) {
	if _, ok := NormalizePlate(licensePlate); !ok {
		return types.EntryDecision{
			Action:  types.ActionDeny,
			Message: "unrecognized license plate",
		}, ReasonInvalidPlate
	}

	if in.SubscriptionErr != nil {
		return types.EntryDecision{
			Action:  types.ActionDeny,
			Message: "subscription check unavailable",
		}, ReasonSubscriptionUnavailable
	}

	if in.Subscription.AccessGranted {
		msg := "subscription verified, welcome"
		reason := ReasonSubscriptionActive
		if in.Subscription.SubscriptionID != nil {
			reason = fmt.Sprintf("%s sub=%d", ReasonSubscriptionActive, *in.Subscription.SubscriptionID)
		}
		return types.EntryDecision{
			Action:  types.ActionOpen,
			Message: msg,
		}, reason
	}

	// Occupancy is a soft rule: it only applies when the check succeeded
	// and only after the subscription path has said no.
	if in.SpaceErr == nil && in.Space.Full() {
		return types.EntryDecision{
			Action:  types.ActionDeny,
			Message: "lot full",
		}, ReasonLotFull
	}

	ticket := e.tickets.Issue(gateID)
	return types.EntryDecision{
		Action:     types.ActionOpen,
		Message:    fmt.Sprintf("welcome, one-time visitor ticket %s issued", ticket),
		TicketCode: ticket,
	}, ReasonVisitorTicket
}

// DecideExit applies the departure policy: subscribers in good standing
// leave freely; everyone else must have a paid ticket.  A failed payment
// check denies — a delayed legitimate exit can be overridden by an
// operator, an unverified open cannot be taken back.
func (e *Engine) DecideExit(in ExitInputs) (types.ExitDecision, string) {
	if in.SubscriptionErr == nil && in.Subscription.AccessGranted {
		return types.ExitDecision{
			Action:  types.ActionOpen,
			Message: "subscription verified, goodbye",
		}, ReasonSubscriptionExit
	}

	if !in.PaymentChecked {
		if in.SubscriptionErr != nil {
			return types.ExitDecision{
				Action:  types.ActionDeny,
				Message: "payment check unavailable",
			}, ReasonPaymentUnavailable
		}
		return types.ExitDecision{
			Action:  types.ActionDeny,
			Message: "no ticket or subscription on record",
		}, ReasonNoTicketOnRecord
	}

	if in.PaymentErr != nil {
		return types.ExitDecision{
			Action:  types.ActionDeny,
			Message: "payment check unavailable",
		}, ReasonPaymentUnavailable
	}

	if in.Payment.Paid || in.Payment.RemainingFee.Sign() <= 0 {
		return types.ExitDecision{
			Action:  types.ActionOpen,
			Message: "ticket paid, goodbye",
		}, ReasonTicketPaid
	}

	return types.ExitDecision{
		Action:  types.ActionDeny,
		Message: fmt.Sprintf("payment required: %s due", in.Payment.RemainingFee.StringFixed(2)),
	}, ReasonPaymentRequired
}
