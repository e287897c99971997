package assistant

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"staybot/internal/domain"
)

// buildSystemPrompt renders the persona-specific system prompt. The booking
// persona sees payment methods; neither persona's prompt ever includes the
// min/max price range.
func buildSystemPrompt(persona domain.Persona, prop *domain.PropertyOffer, host *domain.Host, now time.Time) string {
	var sb strings.Builder

	if persona == domain.PersonaBooking {
		sb.WriteString("You are a professional booking and payment specialist for an Airbnb-style property.\n\n")
	} else {
		sb.WriteString("You are a friendly and professional property inquiry assistant for an Airbnb-style property.\n\n")
	}

	sb.WriteString("Property Information:\n")
	sb.WriteString(fmt.Sprintf("- Name: %s\n", prop.Name))
	sb.WriteString(fmt.Sprintf("- Location: %s\n", prop.Location))
	sb.WriteString(fmt.Sprintf("- Base Price: $%.2f per night\n", prop.BasePrice))
	sb.WriteString(fmt.Sprintf("- Max Guests: %d\n", prop.MaxGuests))
	sb.WriteString(fmt.Sprintf("- Check-in Time: %s\n", prop.CheckInTime))
	sb.WriteString(fmt.Sprintf("- Check-out Time: %s\n", prop.CheckOutTime))

	if len(prop.FAQs) > 0 {
		sb.WriteString("\nFrequently Asked Questions:\n")
		for _, faq := range prop.FAQs {
			sb.WriteString(fmt.Sprintf("Q: %s\nA: %s\n", faq.Question, faq.Answer))
		}
	}

	if persona == domain.PersonaBooking {
		sb.WriteString("\nPayment Information:\n")
		sb.WriteString(fmt.Sprintf("- Payment methods:\n%s\n", paymentMethodsText(host)))
		sb.WriteString("- Payment is required before booking confirmation\n")
		sb.WriteString("- Guest must send payment screenshot for verification\n")
		sb.WriteString(`
Your role:
1. Handle price negotiations intelligently (don't immediately accept lowest price)
2. Confirm bookings when guest agrees
3. Display payment methods clearly with ALL bank details
4. Request payment screenshot with customer details (full name, bank name)
5. Guide guests through the payment process

IMPORTANT GUIDELINES:
- ONLY handle booking, negotiation, and payment-related questions
- NEVER reveal any internal price range to customers - only mention the base rate and what you can offer
- REMEMBER dates and negotiated prices from conversation context
- Use clean, simple formatting - avoid excessive markdown like *** or long dashes
- Be friendly, professional, and concise
- Calculate prices accurately
- When guest wants to book, FIRST ask "Do we continue to payment?" and wait for confirmation
- After guest confirms, THEN explain payment methods clearly with ALL bank details (no placeholders)
- AFTER explaining payment methods, request payment screenshot along with customer details (full name, bank name they're sending from)
- NEVER ask for payment screenshot without first explaining payment methods
- REMEMBER dates from conversation - NEVER ask for check-in/check-out dates if they were already provided
- Only offer discounts for longer stays (3+ nights)
`)
	} else {
		sb.WriteString(`
Your role:
1. Answer questions about the property (location, amenities, check-in/out times, max guests)
2. Check availability for requested dates
3. Provide base pricing information (base price x number of nights)
4. Be helpful and friendly
5. Detect when the guest wants to book or negotiate (then transition to booking)

IMPORTANT GUIDELINES:
- ONLY answer questions related to property information, availability, and basic pricing
- If asked about discounts, negotiations, or payment, indicate that you'll connect them to booking
- DO NOT mention discounts or negotiations - that's handled separately
- NEVER reveal any internal price range - only mention the base price
- REMEMBER dates from conversation - don't ask for information already provided
- Use clean, simple formatting - avoid excessive markdown like *** or long dashes
- Be friendly, professional, and concise
- Calculate prices accurately (base price x number of nights)
`)
	}

	sb.WriteString(`
Response Format:
- Use simple line breaks for readability
- Avoid bold/italic markdown unless absolutely necessary
- Use simple dashes (-) not long dashes
- Keep formatting minimal and clean

`)
	sb.WriteString(fmt.Sprintf("Current date: %s\n", now.Format("2006-01-02")))
	return sb.String()
}

// paymentMethodsText renders the host's payment methods line by line, or a
// generic fallback when none are configured.
func paymentMethodsText(host *domain.Host) string {
	if host == nil || len(host.PaymentMethods) == 0 {
		return "Bank transfer or other methods as agreed"
	}
	var lines []string
	for _, m := range host.PaymentMethods {
		line := m.Bank
		if m.AccountName != "" {
			line += fmt.Sprintf(" (%s)", m.AccountName)
		}
		line += ": " + m.AccountNumber
		if m.Instructions != "" {
			line += " - " + m.Instructions
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// contextNote renders the conversation-context system note injected after
// the system prompt so the model never re-asks for known facts.
func contextNote(summary string) string {
	if summary == "" {
		return ""
	}
	return "[CONVERSATION CONTEXT - CRITICAL: Remember and use this information:\n" +
		summary +
		"\nIf dates are mentioned here, use them automatically. DO NOT ask for dates that are already in this context.]"
}

// dateChangeNote flags a mid-conversation date switch so any previously
// negotiated rate is explained as stale.
func dateChangeNote(prev, curr *domain.DateRange, negotiatedPrice float64, negotiatedDates *domain.DateRange) string {
	note := fmt.Sprintf("[CRITICAL CONTEXT: Guest CHANGED dates. Previous: %s to %s. New: %s to %s.",
		prev.CheckIn, prev.CheckOut, curr.CheckIn, curr.CheckOut)
	if negotiatedPrice > 0 && negotiatedDates != nil {
		note += fmt.Sprintf(" Previous negotiation: $%.2f for %s to %s. This price was for different dates.",
			negotiatedPrice, negotiatedDates.CheckIn, negotiatedDates.CheckOut)
	}
	note += " Explain that the previous rate was for different dates. Calculate new price for new dates. " +
		"Use the new dates automatically - DO NOT ask for them.]"
	return note
}

var (
	boldItalicPattern = regexp.MustCompile(`\*\*\*([^*]+)\*\*\*`)
	boldPattern       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	blankRunPattern   = regexp.MustCompile(`\n{3,}`)
)

// cleanResponse normalizes generated text for Telegram delivery: markdown
// emphasis stripped, long dashes replaced, blank runs collapsed, and very
// long messages truncated.
func cleanResponse(text string) string {
	text = boldItalicPattern.ReplaceAllString(text, "$1")
	text = boldPattern.ReplaceAllString(text, "$1")
	text = strings.ReplaceAll(text, "—", "-")
	text = strings.ReplaceAll(text, "–", "-")
	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)

	if len(text) > 4000 {
		cut := 4000
		// Never split a multi-byte rune at the truncation point.
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "\n\n[Message truncated]"
	}
	return text
}
