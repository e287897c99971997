package domain

import (
	"fmt"
	"strings"
	"time"
)

// Persona is the conversational role active for a guest.
type Persona string

const (
	PersonaInquiry Persona = "inquiry"
	PersonaBooking Persona = "booking"
)

// DateRange is a check-in/check-out pair in ISO calendar-date form.
type DateRange struct {
	CheckIn  string `json:"check_in" yaml:"check_in"`
	CheckOut string `json:"check_out" yaml:"check_out"`
}

const dateLayout = "2006-01-02"

func (d *DateRange) CheckInTime() (time.Time, error) {
	return time.Parse(dateLayout, d.CheckIn)
}

func (d *DateRange) CheckOutTime() (time.Time, error) {
	return time.Parse(dateLayout, d.CheckOut)
}

// Nights returns the stay length in nights, or 0 when the pair does not parse.
func (d *DateRange) Nights() int {
	in, err := d.CheckInTime()
	if err != nil {
		return 0
	}
	out, err := d.CheckOutTime()
	if err != nil {
		return 0
	}
	return int(out.Sub(in).Hours() / 24)
}

func (d *DateRange) Equal(other *DateRange) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.CheckIn == other.CheckIn && d.CheckOut == other.CheckOut
}

// Map returns the attribute-map representation stored on events.
func (d *DateRange) Map() map[string]any {
	return map[string]any{"check_in": d.CheckIn, "check_out": d.CheckOut}
}

// PersonaTransition records a persona switch inside a conversation.
type PersonaTransition struct {
	From Persona   `json:"from"`
	To   Persona   `json:"to"`
	At   time.Time `json:"at"`
}

// ConversationContext is a derived view over the interaction log for one
// (actor, property) scope. It is never stored; reconstruction is idempotent.
type ConversationContext struct {
	ActorID         string
	PropertyID      string
	Dates           *DateRange
	NegotiatedPrice float64
	NegotiatedDates *DateRange
	Persona         Persona
	BookingIntent   bool
	BookingStatus   string
	LastInteraction time.Time
	Transitions     []PersonaTransition
}

// MidPayment reports whether the conversation is inside the payment flow,
// where falling back to the inquiry persona is suppressed.
func (c *ConversationContext) MidPayment() bool {
	return c.BookingStatus == "payment_awaiting" || c.BookingStatus == "payment_received"
}

// Summary renders a short natural-language description of the context for
// use inside generation prompts. Unset fields are omitted; an empty context
// yields "".
func (c *ConversationContext) Summary(now time.Time) string {
	var parts []string

	if c.Dates != nil {
		parts = append(parts, fmt.Sprintf("Guest has mentioned dates: check-in %s, check-out %s", c.Dates.CheckIn, c.Dates.CheckOut))
	}
	if c.NegotiatedPrice > 0 && c.NegotiatedDates != nil {
		parts = append(parts, fmt.Sprintf("Previous negotiation: $%.2f for %s to %s",
			c.NegotiatedPrice, c.NegotiatedDates.CheckIn, c.NegotiatedDates.CheckOut))
		if c.Dates != nil && !c.Dates.Equal(c.NegotiatedDates) {
			parts = append(parts, "Note: current dates differ from the negotiated dates, so the price may need adjustment")
		}
	}
	if c.BookingStatus != "" {
		parts = append(parts, "Booking status: "+c.BookingStatus)
	}
	if c.Persona != "" {
		parts = append(parts, "Active persona: "+string(c.Persona))
	}
	if c.BookingIntent {
		parts = append(parts, "Guest has expressed booking intent")
	}
	if !c.LastInteraction.IsZero() {
		if days := int(now.Sub(c.LastInteraction).Hours() / 24); days > 0 {
			parts = append(parts, fmt.Sprintf("Last interaction: %d day(s) ago", days))
		}
	}

	return strings.Join(parts, "\n")
}
