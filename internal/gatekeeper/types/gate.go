package types

// EventType classifies one physical gate attempt.
type EventType string

const (
	EventEntry      EventType = "ENTRY"
	EventExit       EventType = "EXIT"
	EventManualOpen EventType = "MANUAL_OPEN"
	EventError      EventType = "ERROR"
)

// Action is the final signal sent to the gate arm.
type Action string

const (
	ActionOpen Action = "OPEN"
	ActionDeny Action = "DENY"
)

type EntryRequest struct {
	LicensePlate string `json:"license_plate"`
	GateID       string `json:"gate_id"`
}

type ExitRequest struct {
	LicensePlate string `json:"license_plate"`
	TicketCode   string `json:"ticket_code,omitempty"`
	GateID       string `json:"gate_id"`
}

type ManualOpenRequest struct {
	GateID     string `json:"gate_id"`
	OperatorID string `json:"operator_id"`
}

// EntryDecision is what the decision engine hands back for an arrival.
// TicketCode is set only when a new visitor ticket was issued.
type EntryDecision struct {
	Action     Action `json:"action"`
	Message    string `json:"message"`
	TicketCode string `json:"ticket_code,omitempty"`
}

// ExitDecision never carries a ticket code; exits only redeem tickets.
type ExitDecision struct {
	Action  Action `json:"action"`
	Message string `json:"message"`
}

type EntryResponse struct {
	OK         bool   `json:"ok"`
	Action     Action `json:"action"`
	Message    string `json:"message"`
	TicketCode string `json:"ticket_code,omitempty"`
	EventID    string `json:"event_id,omitempty"`
	GateID     string `json:"gate_id"`
	Actuated   bool   `json:"actuated"`
	ServerTime string `json:"server_time"`
}

type ExitResponse struct {
	OK         bool   `json:"ok"`
	Action     Action `json:"action"`
	Message    string `json:"message"`
	EventID    string `json:"event_id,omitempty"`
	GateID     string `json:"gate_id"`
	Actuated   bool   `json:"actuated"`
	ServerTime string `json:"server_time"`
}

type ManualOpenResponse struct {
	OK         bool   `json:"ok"`
	EventID    string `json:"event_id,omitempty"`
	GateID     string `json:"gate_id"`
	OperatorID string `json:"operator_id"`
	Actuated   bool   `json:"actuated"`
	ServerTime string `json:"server_time"`
}
