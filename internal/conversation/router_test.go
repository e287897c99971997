package conversation

import (
	"testing"

	"staybot/internal/domain"
)

func TestRoute_DefaultsToInquiry(t *testing.T) {
	cc := &domain.ConversationContext{}
	for _, msg := range []string{
		"do you have a pool?",
		"where is the villa located?",
		"hello there",
	} {
		if got := Route(cc, msg, nil); got != domain.PersonaInquiry {
			t.Errorf("%q: got %s, want inquiry", msg, got)
		}
	}
}

func TestRoute_BookingKeywords(t *testing.T) {
	cc := &domain.ConversationContext{}
	for _, msg := range []string{
		"I want to book this place",
		"can we negotiate the price?",
		"any discount for a week?",
		"how to pay?",
	} {
		if got := Route(cc, msg, nil); got != domain.PersonaBooking {
			t.Errorf("%q: got %s, want booking", msg, got)
		}
	}
}

func TestRoute_BareConfirmation(t *testing.T) {
	cc := &domain.ConversationContext{}

	// No supporting context: a bare "yes" stays with inquiry.
	if got := Route(cc, "yes", nil); got != domain.PersonaInquiry {
		t.Errorf("bare yes without context: got %s, want inquiry", got)
	}

	// Recent history about booking qualifies it.
	history := []string{"The villa is $100 per night.", "Would you like to book it?"}
	if got := Route(cc, "yes", history); got != domain.PersonaBooking {
		t.Errorf("yes after booking prompt: got %s, want booking", got)
	}

	// Known dates in context also qualify it.
	withDates := &domain.ConversationContext{Dates: &domain.DateRange{CheckIn: "2026-09-10", CheckOut: "2026-09-12"}}
	if got := Route(withDates, "ok", nil); got != domain.PersonaBooking {
		t.Errorf("ok with dates in context: got %s, want booking", got)
	}
}

func TestRoute_StickyBookingPersona(t *testing.T) {
	cc := &domain.ConversationContext{Persona: domain.PersonaBooking}

	if got := Route(cc, "sounds good, let me think", nil); got != domain.PersonaBooking {
		t.Errorf("neutral message mid-booking: got %s, want booking", got)
	}

	cc = &domain.ConversationContext{BookingIntent: true}
	if got := Route(cc, "hmm", nil); got != domain.PersonaBooking {
		t.Errorf("neutral message with intent: got %s, want booking", got)
	}
}

func TestRoute_EscapeHatchToInquiry(t *testing.T) {
	cc := &domain.ConversationContext{Persona: domain.PersonaBooking}

	if got := Route(cc, "what is the check-in time?", nil); got != domain.PersonaInquiry {
		t.Errorf("general question mid-booking: got %s, want inquiry", got)
	}

	// Mixed question stays with booking.
	if got := Route(cc, "what is the price if I pay by bank transfer?", nil); got != domain.PersonaBooking {
		t.Errorf("mixed question: got %s, want booking", got)
	}
}

func TestRoute_EscapeHatchBlockedMidPayment(t *testing.T) {
	for _, status := range []string{"payment_awaiting", "payment_received"} {
		cc := &domain.ConversationContext{
			Persona:       domain.PersonaBooking,
			BookingStatus: status,
		}
		if got := Route(cc, "what is the check-in time?", nil); got != domain.PersonaBooking {
			t.Errorf("status %s: got %s, want booking (escape blocked)", status, got)
		}
	}
}
