package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSessionStarted  EventType = "session_started"
	EventSessionEnded    EventType = "session_ended"
	EventAccountDepleted EventType = "account_depleted"
	EventTopUpApproved   EventType = "topup_approved"
	EventTopUpCredited   EventType = "topup_credited"
	EventMessageRelayed  EventType = "message_relayed"
)

// AllTypes lists every event type, in declaration order.
var AllTypes = []EventType{
	EventSessionStarted,
	EventSessionEnded,
	EventAccountDepleted,
	EventTopUpApproved,
	EventTopUpCredited,
	EventMessageRelayed,
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	AccountID int64       `json:"account_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// SessionPayload accompanies session start/end events.
type SessionPayload struct {
	Balance decimal.Decimal `json:"balance"`
	Reason  string          `json:"reason,omitempty"`
}

// TopUpPayload accompanies top-up events. RequestID is zero for manual credits.
type TopUpPayload struct {
	RequestID  int64           `json:"request_id,omitempty"`
	Amount     int64           `json:"amount"`
	NewBalance decimal.Decimal `json:"new_balance"`
	StaffID    int64           `json:"staff_id,omitempty"`
}

// MessageRelayedPayload payload.
type MessageRelayedPayload struct {
	MessageID   int64  `json:"message_id"`
	RecipientID int64  `json:"recipient_id"`
	Duplicate   bool   `json:"duplicate"`
	BodyPreview string `json:"body_preview"`
}
