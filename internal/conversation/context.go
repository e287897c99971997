package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"staybot/internal/domain"
)

// contextKinds are the event kinds consulted during reconstruction.
var contextKinds = []domain.EventKind{
	domain.EventGuestMessage,
	domain.EventAgentResponse,
	domain.EventAgentDecision,
	domain.EventGuestInquiry,
	domain.EventBookingRequest,
	domain.EventPaymentUploaded,
	domain.EventBookingConfirmed,
}

// Reconstructor derives conversation context from the event log. It holds
// no state of its own: the log is the single source of truth and the same
// log always yields the same context.
type Reconstructor struct {
	events   domain.EventStore
	lookback int
	logger   *slog.Logger
}

func NewReconstructor(events domain.EventStore, lookback int, logger *slog.Logger) *Reconstructor {
	if lookback <= 0 {
		lookback = 50
	}
	return &Reconstructor{events: events, lookback: lookback, logger: logger}
}

// Context rebuilds the conversation context for one (actor, property) scope.
// Events are scanned newest-first and each field takes the first value seen,
// so the most recent mention always wins and stale earlier values never
// resurface.
func (r *Reconstructor) Context(ctx context.Context, actorID, propertyID string) (*domain.ConversationContext, error) {
	events, err := r.events.Query(ctx, domain.EventFilter{
		ActorID:    actorID,
		PropertyID: propertyID,
		Kinds:      contextKinds,
		Limit:      r.lookback,
	})
	if err != nil {
		return nil, fmt.Errorf("reconstruct context for %s/%s: %w", actorID, propertyID, err)
	}

	cc := &domain.ConversationContext{ActorID: actorID, PropertyID: propertyID}
	intentSeen := false

	for i := range events {
		ev := &events[i]

		if cc.LastInteraction.IsZero() {
			cc.LastInteraction = ev.CreatedAt
		}

		if cc.BookingStatus == "" {
			if ev.Kind == domain.EventBookingConfirmed {
				cc.BookingStatus = "confirmed"
			} else if s := ev.AttrString(domain.AttrBookingStatus); s != "" {
				cc.BookingStatus = s
			}
		}

		if cc.Persona == "" {
			if p := ev.AttrString(domain.AttrPersona); p != "" {
				cc.Persona = domain.Persona(p)
			}
		}

		if !intentSeen {
			if v, ok := ev.AttrBool(domain.AttrBookingIntent); ok {
				cc.BookingIntent = v
				intentSeen = true
			}
		}

		if cc.Dates == nil {
			if d := ev.AttrDates(domain.AttrDates); d != nil {
				cc.Dates = d
			} else if ev.Message != "" {
				// Fall back to extracting dates from raw text.
				cc.Dates = ExtractDates([]string{ev.Message})
			}
		}

		if cc.NegotiatedPrice == 0 {
			if p := ev.AttrFloat(domain.AttrNegotiatedPrice); p > 0 {
				cc.NegotiatedPrice = p
				if d := ev.AttrDates(domain.AttrNegotiatedDates); d != nil {
					cc.NegotiatedDates = d
				} else {
					cc.NegotiatedDates = ev.AttrDates(domain.AttrDates)
				}
			}
		}

		if cc.Transitions == nil {
			cc.Transitions = decodeTransitions(ev.Attrs[domain.AttrTransitions])
		}
	}

	return cc, nil
}

// ContextUpdate carries the fields SaveContext persists. Nil pointers mean
// "leave unchanged".
type ContextUpdate struct {
	Persona         domain.Persona
	BookingIntent   *bool
	Dates           *domain.DateRange
	NegotiatedPrice float64
	NegotiatedDates *domain.DateRange
	BookingStatus   string
}

// SaveContext appends a decision event carrying updated context fields.
// Persona switches are recorded as transitions.
func (r *Reconstructor) SaveContext(ctx context.Context, actorID, propertyID string, upd ContextUpdate) error {
	attrs := map[string]any{}

	if upd.Persona != "" {
		attrs[domain.AttrPersona] = string(upd.Persona)

		current, err := r.Context(ctx, actorID, propertyID)
		if err != nil {
			return err
		}
		if current.Persona != "" && current.Persona != upd.Persona {
			transitions := append(current.Transitions, domain.PersonaTransition{
				From: current.Persona,
				To:   upd.Persona,
				At:   time.Now(),
			})
			attrs[domain.AttrTransitions] = encodeTransitions(transitions)
			r.logger.Info("persona switch",
				"actor", actorID,
				"property", propertyID,
				"from", current.Persona,
				"to", upd.Persona,
			)
		}
	}
	if upd.BookingIntent != nil {
		attrs[domain.AttrBookingIntent] = *upd.BookingIntent
	}
	if upd.Dates != nil {
		attrs[domain.AttrDates] = upd.Dates.Map()
	}
	if upd.NegotiatedPrice > 0 {
		attrs[domain.AttrNegotiatedPrice] = upd.NegotiatedPrice
	}
	if upd.NegotiatedDates != nil {
		attrs[domain.AttrNegotiatedDates] = upd.NegotiatedDates.Map()
	}
	if upd.BookingStatus != "" {
		attrs[domain.AttrBookingStatus] = upd.BookingStatus
	}
	if len(attrs) == 0 {
		return nil
	}

	_, err := r.events.Append(ctx, domain.InteractionEvent{
		Kind:       domain.EventAgentDecision,
		ActorID:    actorID,
		PropertyID: propertyID,
		Message:    "context update",
		Attrs:      attrs,
	})
	return err
}

// History returns the recent guest/assistant exchange in chronological order
// for use as generation messages.
func (r *Reconstructor) History(ctx context.Context, actorID, propertyID string, limit int) ([]domain.GenMessage, error) {
	events, err := r.events.Query(ctx, domain.EventFilter{
		ActorID:    actorID,
		PropertyID: propertyID,
		Kinds:      []domain.EventKind{domain.EventGuestMessage, domain.EventAgentResponse},
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("load history for %s/%s: %w", actorID, propertyID, err)
	}

	msgs := make([]domain.GenMessage, 0, len(events))
	// Query returns newest-first; walk backwards for chronological order.
	for i := len(events) - 1; i >= 0; i-- {
		ev := &events[i]
		role := "user"
		if ev.Kind == domain.EventAgentResponse {
			role = "assistant"
		}
		text := ev.Message
		if text == "" {
			text = ev.AttrString(domain.AttrText)
		}
		if text == "" {
			continue
		}
		msgs = append(msgs, domain.GenMessage{Role: role, Content: text})
	}
	return msgs, nil
}

func encodeTransitions(ts []domain.PersonaTransition) []map[string]any {
	out := make([]map[string]any, 0, len(ts))
	for _, t := range ts {
		out = append(out, map[string]any{
			"from": string(t.From),
			"to":   string(t.To),
			"at":   t.At.Format(time.RFC3339),
		})
	}
	return out
}

func decodeTransitions(raw any) []domain.PersonaTransition {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []domain.PersonaTransition
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		t := domain.PersonaTransition{}
		if v, ok := m["from"].(string); ok {
			t.From = domain.Persona(v)
		}
		if v, ok := m["to"].(string); ok {
			t.To = domain.Persona(v)
		}
		if v, ok := m["at"].(string); ok {
			if at, err := time.Parse(time.RFC3339, v); err == nil {
				t.At = at
			}
		}
		out = append(out, t)
	}
	return out
}
