package domain

import "time"

// EventKind classifies an entry in the interaction log.
type EventKind string

const (
	EventGuestMessage     EventKind = "guest_message"
	EventGuestInquiry     EventKind = "guest_inquiry"
	EventBookingRequest   EventKind = "guest_booking_request"
	EventPaymentUploaded  EventKind = "guest_payment_uploaded"
	EventAgentResponse    EventKind = "agent_response"
	EventAgentDecision    EventKind = "agent_decision"
	EventAgentError       EventKind = "agent_error"
	EventBookingConfirmed EventKind = "booking_confirmed"
	EventBookingCancelled EventKind = "booking_cancelled"
	EventHostDecision     EventKind = "host_decision"
)

// Attribute keys used in the event attribute map. These are the de-facto
// schema for reconstructed context fields and must stay stable.
const (
	AttrText            = "text"
	AttrDates           = "dates"
	AttrNegotiatedPrice = "negotiated_price"
	AttrNegotiatedDates = "negotiated_dates"
	AttrRequestedPrice  = "requested_price"
	AttrPersona         = "persona"
	AttrBookingIntent   = "booking_intent"
	AttrBookingStatus   = "booking_status"
	AttrFileID          = "file_id"
	AttrAwaitingDetails = "awaiting_details"
	AttrCustomerName    = "customer_name"
	AttrCustomerBank    = "customer_bank"
	AttrTransitions     = "transitions"
	AttrBookingID       = "booking_id"
	AttrNights          = "nights"
)

// InteractionEvent is one append-only row of the interaction log. Events are
// never mutated after append, with a single exception: payment-upload events
// carry a resolved flag that is flipped once identity details arrive.
type InteractionEvent struct {
	ID         int64
	Kind       EventKind
	ActorID    string
	PropertyID string
	Message    string
	Attrs      map[string]any
	Resolved   bool
	CreatedAt  time.Time
}

// AttrString returns the named attribute as a string, or "" when absent.
func (e *InteractionEvent) AttrString(key string) string {
	if v, ok := e.Attrs[key].(string); ok {
		return v
	}
	return ""
}

// AttrFloat returns the named attribute as a float64, or 0 when absent.
// JSON round-trips store all numbers as float64.
func (e *InteractionEvent) AttrFloat(key string) float64 {
	switch v := e.Attrs[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// AttrBool returns the named boolean attribute. The second return reports
// whether the attribute was present at all, so callers can distinguish an
// explicit false from an unset field.
func (e *InteractionEvent) AttrBool(key string) (bool, bool) {
	v, ok := e.Attrs[key].(bool)
	return v, ok
}

// AttrDates decodes a date-range attribute written as
// {"check_in": "...", "check_out": "..."}.
func (e *InteractionEvent) AttrDates(key string) *DateRange {
	m, ok := e.Attrs[key].(map[string]any)
	if !ok {
		return nil
	}
	dr := &DateRange{}
	if v, ok := m["check_in"].(string); ok {
		dr.CheckIn = v
	}
	if v, ok := m["check_out"].(string); ok {
		dr.CheckOut = v
	}
	if dr.CheckIn == "" || dr.CheckOut == "" {
		return nil
	}
	return dr
}

// EventFilter selects events from the log. Query results are always
// newest-first; Limit bounds the lookback window.
type EventFilter struct {
	ActorID        string
	PropertyID     string
	Kinds          []EventKind
	UnresolvedOnly bool
	Limit          int
}
