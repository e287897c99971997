package conversation

import (
	"strings"

	"staybot/internal/domain"
)

// bookingKeywords signal intent to start or continue a booking.
var bookingKeywords = []string{
	"book", "booking", "reserve", "reservation",
	"yes", "yeah", "sure", "ok", "okay", "proceed",
	"let's do it", "lets do it", "go ahead",
	"negotiate", "negotiation", "discount", "lower price",
	"payment", "pay", "how to pay", "payment method",
}

// simpleConfirmations need supporting context before they count as intent.
var simpleConfirmations = []string{"yes", "yeah", "sure", "ok", "okay", "proceed"}

// historyContextWords make a bare confirmation meaningful when they appear
// in the last few exchanged messages.
var historyContextWords = []string{"book", "booking", "available", "price", "proceed", "payment"}

// inquiryKeywords signal a general property question.
var inquiryKeywords = []string{
	"what is", "tell me about", "where is", "how many",
	"amenities", "amenity", "location", "address",
	"check-in time", "check-out time", "checkin", "checkout",
	"max guests", "maximum guests", "guests allowed",
}

// stayKeywords keep the booking persona active even when the message also
// looks like a question.
var stayKeywords = []string{
	"book", "booking", "reserve", "payment", "pay", "negotiate",
	"discount", "price", "cost", "screenshot", "bank", "transfer",
}

// Route picks the persona for the current message. history is the recent
// chronological exchange, used only to qualify bare confirmations.
func Route(ctx *domain.ConversationContext, message string, history []string) domain.Persona {
	if ctx.BookingIntent || ctx.Persona == domain.PersonaBooking {
		if shouldReturnToInquiry(ctx, message) {
			return domain.PersonaInquiry
		}
		return domain.PersonaBooking
	}

	if shouldSwitchToBooking(ctx, message, history) {
		return domain.PersonaBooking
	}
	return domain.PersonaInquiry
}

func shouldSwitchToBooking(ctx *domain.ConversationContext, message string, history []string) bool {
	msg := strings.ToLower(strings.TrimSpace(message))

	if containsAny(msg, bookingKeywords) {
		if isExactly(msg, simpleConfirmations) {
			// A bare "yes" only counts when something nearby was about booking.
			tail := history
			if len(tail) > 3 {
				tail = tail[len(tail)-3:]
			}
			joined := strings.ToLower(strings.Join(tail, " "))
			if containsAny(joined, historyContextWords) {
				return true
			}
			return ctx.Dates != nil
		}
		return true
	}

	return ctx.BookingIntent
}

// shouldReturnToInquiry is the escape hatch for a general question asked
// mid-booking. It is blocked while a payment is in flight.
func shouldReturnToInquiry(ctx *domain.ConversationContext, message string) bool {
	msg := strings.ToLower(strings.TrimSpace(message))

	if containsAny(msg, inquiryKeywords) && !containsAny(msg, stayKeywords) {
		return !ctx.MidPayment()
	}
	return false
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func isExactly(s string, words []string) bool {
	for _, w := range words {
		if s == w {
			return true
		}
	}
	return false
}
