package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/openlots/gatekeeper/internal/gatekeeper/authority"
	"github.com/openlots/gatekeeper/internal/gatekeeper/store"
	"github.com/openlots/gatekeeper/internal/gatekeeper/types"
)

var (
	ErrInvalidOperatorID = errors.New("operator_id is required")
	ErrUnknownGate       = errors.New("gate is not commissioned")
	ErrActuator          = errors.New("gate actuator did not respond")
	ErrAuditWrite        = errors.New("audit write failed")
)

// Orchestration phases, logged per event so a stuck lane can be traced.
const (
	phaseReceived = "RECEIVED"
	phaseChecking = "CHECKING"
	phaseDecided  = "DECIDED"
	phaseRecorded = "RECORDED"
	phaseActuated = "ACTUATED"
	phaseFailed   = "FAILED"
)

const (
	defaultDeadline = 5 * time.Second

	// errorEventBudget bounds the detached audit attempts that run after
	// the per-event deadline has already fired.
	errorEventBudget = 2 * time.Second
)

type OrchestratorDeps struct {
	Registry      *GateRegistry
	Engine        *Engine
	Subscriptions authority.SubscriptionChecker
	Payments      authority.PaymentChecker
	Spaces        authority.SpaceChecker
	EventLog      authority.EventLogger // optional; forwarding is best-effort
	Events        store.GateEventStore
	Actuator      Actuator
	LotID         string
	Deadline      time.Duration // per-event budget; defaults to 5s
	Logger        *log.Logger
}

// Orchestrator drives one gate event end to end: issue the downstream
// checks, apply the decision engine, persist the audit record, then (and
// only then) signal the arm.  Events on different gates run fully in
// parallel; nothing here holds a lock across a network call.
type Orchestrator struct {
	registry      *GateRegistry
	engine        *Engine
	subscriptions authority.SubscriptionChecker
	payments      authority.PaymentChecker
	spaces        authority.SpaceChecker
	eventLog      authority.EventLogger
	events        store.GateEventStore
	actuator      Actuator
	lotID         string
	deadline      time.Duration
	logger        *log.Logger
}

func NewOrchestrator(d OrchestratorDeps) *Orchestrator {
	if d.Deadline <= 0 {
		d.Deadline = defaultDeadline
	}
	if d.Actuator == nil {
		d.Actuator = &LogActuator{Logger: d.Logger}
	}
	return &Orchestrator{
		registry:      d.Registry,
		engine:        d.Engine,
		subscriptions: d.Subscriptions,
		payments:      d.Payments,
		spaces:        d.Spaces,
		eventLog:      d.EventLog,
		events:        d.Events,
		actuator:      d.Actuator,
		lotID:         d.LotID,
		deadline:      d.Deadline,
		logger:        d.Logger,
	}
}

// DecideEntry handles a vehicle arriving at a gate.  The subscription and
// occupancy checks run concurrently; their failures become engine inputs,
// never raw errors to the caller.
func (o *Orchestrator) DecideEntry(ctx context.Context, req types.EntryRequest) (resp types.EntryResponse, err error) {
	now := time.Now().UTC()
	gateID := strings.TrimSpace(req.GateID)
	if gateID == "" {
		return types.EntryResponse{}, ErrInvalidGateID
	}

	ctx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	eventID := uuid.NewString()
	o.logf("event=%s phase=%s type=ENTRY gate=%s plate=%q", eventID, phaseReceived, gateID, req.LicensePlate)

	defer o.recoverToErrorEvent(ctx, eventID, gateID, req.LicensePlate, types.EventEntry, func(d types.EntryDecision) {
		resp = o.entryResponse(gateID, "", d, false)
		err = nil
	})

	known := o.gateKnown(ctx, gateID)
	if !known {
		dec := types.EntryDecision{Action: types.ActionDeny, Message: "gate not recognized"}
		return o.finishEntry(ctx, eventID, gateID, req.LicensePlate, dec, ReasonUnknownGate, now)
	}

	var in EntryInputs
	if plate, ok := NormalizePlate(req.LicensePlate); ok {
		o.logf("event=%s phase=%s", eventID, phaseChecking)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			in.Subscription, in.SubscriptionErr = o.subscriptions.CheckPlate(gctx, plate)
			return nil
		})
		g.Go(func() error {
			in.Space, in.SpaceErr = o.spaces.LotStatus(gctx, o.lotID)
			return nil
		})
		_ = g.Wait()
	}

	dec, reason := o.engine.DecideEntry(gateID, req.LicensePlate, in)
	o.logf("event=%s phase=%s action=%s reason=%s", eventID, phaseDecided, dec.Action, reason)

	return o.finishEntry(ctx, eventID, gateID, req.LicensePlate, dec, reason, now)
}

// DecideExit handles a vehicle leaving.  Identity resolution and the
// payment check are sequential: which payment question to ask depends on
// what the subscription lookup said.
func (o *Orchestrator) DecideExit(ctx context.Context, req types.ExitRequest) (resp types.ExitResponse, err error) {
	now := time.Now().UTC()
	gateID := strings.TrimSpace(req.GateID)
	if gateID == "" {
		return types.ExitResponse{}, ErrInvalidGateID
	}

	ctx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	eventID := uuid.NewString()
	ticket := strings.TrimSpace(req.TicketCode)
	o.logf("event=%s phase=%s type=EXIT gate=%s plate=%q ticket=%q", eventID, phaseReceived, gateID, req.LicensePlate, ticket)

	defer o.recoverToErrorEvent(ctx, eventID, gateID, req.LicensePlate, types.EventExit, func(d types.EntryDecision) {
		resp = o.exitResponse(gateID, "", types.ExitDecision{Action: d.Action, Message: d.Message}, false)
		err = nil
	})

	if !o.gateKnown(ctx, gateID) {
		dec := types.ExitDecision{Action: types.ActionDeny, Message: "gate not recognized"}
		return o.finishExit(ctx, eventID, gateID, req.LicensePlate, ticket, dec, ReasonUnknownGate, now)
	}

	plate, plateOK := NormalizePlate(req.LicensePlate)
	if !plateOK && ticket == "" {
		dec := types.ExitDecision{Action: types.ActionDeny, Message: "unrecognized license plate"}
		return o.finishExit(ctx, eventID, gateID, req.LicensePlate, ticket, dec, ReasonInvalidPlate, now)
	}

	o.logf("event=%s phase=%s", eventID, phaseChecking)

	var in ExitInputs
	if plateOK {
		in.Subscription, in.SubscriptionErr = o.subscriptions.CheckPlate(ctx, plate)
	}

	if in.SubscriptionErr != nil || !in.Subscription.AccessGranted {
		ref := authority.PaymentRef{TicketCode: ticket}
		if ref.TicketCode == "" && in.SubscriptionErr == nil {
			ref.ClientID = in.Subscription.ClientID
		}
		if !ref.Empty() {
			in.Payment, in.PaymentErr = o.payments.Status(ctx, ref)
			in.PaymentChecked = true
		}
	}

	dec, reason := o.engine.DecideExit(in)
	o.logf("event=%s phase=%s action=%s reason=%s", eventID, phaseDecided, dec.Action, reason)

	return o.finishExit(ctx, eventID, gateID, req.LicensePlate, ticket, dec, reason, now)
}

// ManualOpen is the operator override: a forced OPEN that bypasses the
// decision engine entirely but still produces an audit event before the
// arm moves.
func (o *Orchestrator) ManualOpen(ctx context.Context, req types.ManualOpenRequest) (types.ManualOpenResponse, error) {
	now := time.Now().UTC()
	gateID := strings.TrimSpace(req.GateID)
	operatorID := strings.TrimSpace(req.OperatorID)
	if gateID == "" {
		return types.ManualOpenResponse{}, ErrInvalidGateID
	}
	if operatorID == "" {
		return types.ManualOpenResponse{}, ErrInvalidOperatorID
	}

	ctx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	eventID := uuid.NewString()
	o.logf("event=%s phase=%s type=MANUAL_OPEN gate=%s operator=%s", eventID, phaseReceived, gateID, operatorID)

	if !o.gateKnown(ctx, gateID) {
		rec := store.GateEventRecord{
			ID:         eventID,
			EventType:  types.EventManualOpen,
			GateID:     gateID,
			Decision:   types.ActionDeny,
			Reason:     ReasonUnknownGate,
			OperatorID: operatorID,
			CreatedAt:  now,
		}
		o.recordBestEffort(ctx, rec)
		return types.ManualOpenResponse{GateID: gateID, OperatorID: operatorID}, ErrUnknownGate
	}

	rec := store.GateEventRecord{
		ID:         eventID,
		EventType:  types.EventManualOpen,
		GateID:     gateID,
		Decision:   types.ActionOpen,
		Reason:     ReasonManualOpen,
		OperatorID: operatorID,
		CreatedAt:  now,
	}

	if recErr := o.record(ctx, rec); recErr != nil {
		o.logf("event=%s phase=%s audit write failed: %v", eventID, phaseFailed, recErr)
		o.recordErrorEvent(ctx, gateID, "", types.EventManualOpen, ReasonAuditWriteFailed)
		return types.ManualOpenResponse{GateID: gateID, OperatorID: operatorID}, fmt.Errorf("%w", ErrAuditWrite)
	}
	o.logf("event=%s phase=%s", eventID, phaseRecorded)
	o.forward(rec)

	resp := types.ManualOpenResponse{
		OK:         true,
		EventID:    eventID,
		GateID:     gateID,
		OperatorID: operatorID,
		ServerTime: time.Now().UTC().Format(time.RFC3339Nano),
	}

	if actErr := o.actuator.Raise(ctx, gateID); actErr != nil {
		o.logf("event=%s phase=%s actuator: %v", eventID, phaseFailed, actErr)
		return resp, fmt.Errorf("%w: %v", ErrActuator, actErr)
	}
	resp.Actuated = true
	o.logf("event=%s phase=%s", eventID, phaseActuated)
	return resp, nil
}

// gateKnown refuses unknown lanes before any downstream traffic.  A
// registry read failure counts as unknown: when the server cannot verify
// the lane it does not act for it.
func (o *Orchestrator) gateKnown(ctx context.Context, gateID string) bool {
	known, err := o.registry.IsKnown(ctx, gateID)
	if err != nil {
		o.logf("gate registry lookup gate=%s: %v", gateID, err)
		known = false
	}
	_ = o.registry.NoteSeen(ctx, gateID, known)
	return known
}

func (o *Orchestrator) finishEntry(
	ctx context.Context,
	eventID, gateID, plate string,
	dec types.EntryDecision,
	reason string,
	now time.Time,
) (types.EntryResponse, error) {
	rec := store.GateEventRecord{
		ID:           eventID,
		EventType:    types.EventEntry,
		LicensePlate: plate,
		TicketCode:   dec.TicketCode,
		GateID:       gateID,
		Decision:     dec.Action,
		Reason:       reason,
		CreatedAt:    now,
	}

	if recErr := o.record(ctx, rec); recErr != nil {
		o.logf("event=%s phase=%s audit write failed: %v", eventID, phaseFailed, recErr)
		o.recordErrorEvent(ctx, gateID, plate, types.EventEntry, ReasonAuditWriteFailed)
		dec = types.EntryDecision{Action: types.ActionDeny, Message: "unable to verify access, please use the intercom"}
		return o.entryResponse(gateID, "", dec, false), nil
	}
	o.logf("event=%s phase=%s", eventID, phaseRecorded)
	o.forward(rec)

	actuated := false
	var actErr error
	if dec.Action == types.ActionOpen {
		if raiseErr := o.actuator.Raise(ctx, gateID); raiseErr != nil {
			o.logf("event=%s phase=%s actuator: %v", eventID, phaseFailed, raiseErr)
			actErr = fmt.Errorf("%w: %v", ErrActuator, raiseErr)
		} else {
			actuated = true
			o.logf("event=%s phase=%s", eventID, phaseActuated)
		}
	}

	return o.entryResponse(gateID, eventID, dec, actuated), actErr
}

func (o *Orchestrator) finishExit(
	ctx context.Context,
	eventID, gateID, plate, ticket string,
	dec types.ExitDecision,
	reason string,
	now time.Time,
) (types.ExitResponse, error) {
	rec := store.GateEventRecord{
		ID:           eventID,
		EventType:    types.EventExit,
		LicensePlate: plate,
		TicketCode:   ticket,
		GateID:       gateID,
		Decision:     dec.Action,
		Reason:       reason,
		CreatedAt:    now,
	}

	if recErr := o.record(ctx, rec); recErr != nil {
		o.logf("event=%s phase=%s audit write failed: %v", eventID, phaseFailed, recErr)
		o.recordErrorEvent(ctx, gateID, plate, types.EventExit, ReasonAuditWriteFailed)
		dec = types.ExitDecision{Action: types.ActionDeny, Message: "unable to verify payment, please use the intercom"}
		return o.exitResponse(gateID, "", dec, false), nil
	}
	o.logf("event=%s phase=%s", eventID, phaseRecorded)
	o.forward(rec)

	actuated := false
	var actErr error
	if dec.Action == types.ActionOpen {
		if raiseErr := o.actuator.Raise(ctx, gateID); raiseErr != nil {
			o.logf("event=%s phase=%s actuator: %v", eventID, phaseFailed, raiseErr)
			actErr = fmt.Errorf("%w: %v", ErrActuator, raiseErr)
		} else {
			actuated = true
			o.logf("event=%s phase=%s", eventID, phaseActuated)
		}
	}

	return o.exitResponse(gateID, eventID, dec, actuated), actErr
}

// record blocks until the audit append is acknowledged, retrying with
// backoff while the per-event budget lasts.  If the budget is already gone
// it still makes one detached attempt so the attempt is reconstructable
// after the fact.
func (o *Orchestrator) record(ctx context.Context, rec store.GateEventRecord) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 500 * time.Millisecond

	err := backoff.Retry(func() error {
		_, appendErr := o.events.Append(ctx, rec)
		return appendErr
	}, backoff.WithContext(bo, ctx))
	if err == nil {
		return nil
	}

	detCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), errorEventBudget)
	defer cancel()
	if _, retryErr := o.events.Append(detCtx, rec); retryErr == nil {
		return nil
	}

	return fmt.Errorf("%w: %v", ErrAuditWrite, err)
}

// recordBestEffort appends without the retry loop; used where the caller is
// already on a refusal path and must not block further.
func (o *Orchestrator) recordBestEffort(ctx context.Context, rec store.GateEventRecord) {
	detCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), errorEventBudget)
	defer cancel()
	if _, err := o.events.Append(detCtx, rec); err != nil {
		o.logf("event=%s best-effort audit append failed: %v", rec.ID, err)
	}
}

// recordErrorEvent appends an ERROR event describing an internal failure,
// so even a request that never produced a proper decision leaves a trace.
func (o *Orchestrator) recordErrorEvent(ctx context.Context, gateID, plate string, attempted types.EventType, cause string) {
	rec := store.GateEventRecord{
		ID:           uuid.NewString(),
		EventType:    types.EventError,
		LicensePlate: plate,
		GateID:       gateID,
		Decision:     types.ActionDeny,
		Reason:       fmt.Sprintf("%s during %s", cause, attempted),
		CreatedAt:    time.Now().UTC(),
	}
	o.recordBestEffort(ctx, rec)
}

// recoverToErrorEvent converts a panic in the decision path into an ERROR
// audit event plus a fail-safe deny, instead of a lost attempt.
func (o *Orchestrator) recoverToErrorEvent(
	ctx context.Context,
	eventID, gateID, plate string,
	attempted types.EventType,
	respond func(types.EntryDecision),
) {
	r := recover()
	if r == nil {
		return
	}
	o.logf("event=%s phase=%s panic: %v", eventID, phaseFailed, r)
	o.recordErrorEvent(ctx, gateID, plate, attempted, fmt.Sprintf("internal_error: %v", r))
	respond(types.EntryDecision{
		Action:  types.ActionDeny,
		Message: "unable to verify access, please use the intercom",
	})
}

// forward ships the audit entry to the Event Log Authority without ever
// blocking the decision path: detached context, own timeout, errors logged
// and dropped.
func (o *Orchestrator) forward(rec store.GateEventRecord) {
	if o.eventLog == nil {
		return
	}
	entry := authority.LogEntry{
		EventType:    string(rec.EventType),
		LicensePlate: rec.LicensePlate,
		TicketCode:   rec.TicketCode,
		GateID:       rec.GateID,
		Decision:     string(rec.Decision),
		Reason:       rec.Reason,
		Timestamp:    rec.CreatedAt,
		OperatorID:   rec.OperatorID,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), errorEventBudget)
		defer cancel()
		if err := o.eventLog.Log(ctx, entry); err != nil {
			o.logf("event log forward event=%s: %v", rec.ID, err)
		}
	}()
}

func (o *Orchestrator) entryResponse(gateID, eventID string, dec types.EntryDecision, actuated bool) types.EntryResponse {
	return types.EntryResponse{
		OK:         dec.Action == types.ActionOpen,
		Action:     dec.Action,
		Message:    dec.Message,
		TicketCode: dec.TicketCode,
		EventID:    eventID,
		GateID:     gateID,
		Actuated:   actuated,
		ServerTime: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

func (o *Orchestrator) exitResponse(gateID, eventID string, dec types.ExitDecision, actuated bool) types.ExitResponse {
	return types.ExitResponse{
		OK:         dec.Action == types.ActionOpen,
		Action:     dec.Action,
		Message:    dec.Message,
		EventID:    eventID,
		GateID:     gateID,
		Actuated:   actuated,
		ServerTime: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.logger != nil {
		o.logger.Printf(format, args...)
	}
}
