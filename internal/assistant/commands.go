package assistant

import (
	"context"
	"fmt"
	"strings"

	"staybot/internal/bus"
)

// ChatCommand represents a parsed chat command.
type ChatCommand struct {
	Name string   // command name without "/"
	Args []string // arguments after the command
	Raw  string   // original full text
}

// ParseCommand checks if a message starts with "/" and parses it into a
// ChatCommand. Returns nil if the message is not a command.
func ParseCommand(text string) *ChatCommand {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return nil
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return nil
	}

	name := strings.TrimPrefix(parts[0], "/")
	name = strings.ToLower(name)

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}

	return &ChatCommand{
		Name: name,
		Args: args,
		Raw:  text,
	}
}

// handleGuestCommand processes a guest-side command. Returns Handled=false
// for unrecognized commands so they flow to the conversational path.
func (a *Assistant) handleGuestCommand(ctx context.Context, cmd *ChatCommand, actorID, propertyID string) (Reply, bool) {
	switch cmd.Name {
	case "start":
		return Reply{Text: a.welcomeText(), Action: "command"}, true

	case "help":
		return Reply{Text: guestHelpText, Action: "command"}, true

	case "clear":
		a.clearMu.Lock()
		a.clearState[actorID] = 1
		a.clearMu.Unlock()
		return Reply{
			Text: "⚠️ Reset requested.\n\n" +
				"All conversation history, negotiation context, and pending bookings tied to this chat will be deleted.\n" +
				"If you're sure, send /clear_confirm (step 1 of 2).",
			Action: "command",
		}, true

	case "clear_confirm":
		return a.handleClearConfirm(ctx, actorID, propertyID), true

	default:
		return Reply{}, false
	}
}

// handleClearConfirm walks the double-confirmation state machine for the
// destructive history reset.
func (a *Assistant) handleClearConfirm(ctx context.Context, actorID, propertyID string) Reply {
	a.clearMu.Lock()
	state := a.clearState[actorID]
	switch state {
	case 1:
		a.clearState[actorID] = 2
	case 2:
		delete(a.clearState, actorID)
	}
	a.clearMu.Unlock()

	switch state {
	case 1:
		return Reply{
			Text: "⚠️ Final confirmation.\n\n" +
				"Sending /clear_confirm again right now will permanently delete:\n" +
				"- All previous messages and context\n" +
				"- Any recorded negotiations\n" +
				"- Any pending bookings or payment data\n\n" +
				"This action cannot be undone. Send /clear_confirm once more to proceed.",
			Action: "command",
		}
	case 2:
		if err := a.payments.ClearPending(ctx, actorID, propertyID); err != nil {
			a.logger.Warn("clear: resolving pending payment failed", "err", err, "actor", actorID)
		}
		if err := a.events.DeleteActorEvents(ctx, actorID); err != nil {
			a.logger.Error("clear: deleting events failed", "err", err, "actor", actorID)
			return Reply{Text: "Sorry, I couldn't reset the conversation. Please try again.", Action: "error"}
		}
		if err := a.bookings.DeleteGuestBookings(ctx, actorID); err != nil {
			a.logger.Error("clear: deleting bookings failed", "err", err, "actor", actorID)
		}
		a.ebus.Emit(bus.Event{Type: bus.EventHistoryCleared, Source: "assistant", Payload: map[string]any{"actor": actorID}})
		return Reply{
			Text:   "✅ Conversation reset complete. All stored context has been deleted. You can start fresh now!",
			Action: "cleared",
		}
	default:
		return Reply{
			Text:   "No pending /clear request. Send /clear first if you want to reset the chat.",
			Action: "command",
		}
	}
}

// welcomeText lists the catalog in the /start greeting.
func (a *Assistant) welcomeText() string {
	properties := a.catalog.Properties()

	var sb strings.Builder
	sb.WriteString("Welcome! 👋\n\n")
	sb.WriteString("I'm your property booking assistant. I can help you with:\n")
	sb.WriteString("- Checking property availability\n")
	sb.WriteString("- Getting pricing information\n")
	sb.WriteString("- Making bookings\n")
	sb.WriteString("- Answering questions about properties\n\n")

	if len(properties) == 0 {
		sb.WriteString("However, no properties are currently available. Please contact the host for more information.")
		return sb.String()
	}

	sb.WriteString("Available Properties:\n\n")
	for _, prop := range properties {
		sb.WriteString(fmt.Sprintf("🏠 %s\n", prop.Name))
		sb.WriteString(fmt.Sprintf("📍 %s\n", prop.Location))
		sb.WriteString(fmt.Sprintf("💰 $%.2f per night\n", prop.BasePrice))
		sb.WriteString(fmt.Sprintf("👥 Max %d guests\n", prop.MaxGuests))
		sb.WriteString(fmt.Sprintf("🕐 Check-in: %s | Check-out: %s\n\n", prop.CheckInTime, prop.CheckOutTime))
	}
	sb.WriteString("Just ask me about availability, pricing, or anything else about these properties!")
	return sb.String()
}

const guestHelpText = "I can help you check availability, get prices, negotiate rates and book your stay.\n\n" +
	"Commands:\n" +
	"/start - Show available properties\n" +
	"/clear - Reset the conversation (asks for confirmation)\n" +
	"/help - Show this message\n\n" +
	"Just tell me your dates and I'll take it from there!"

// handleHostCommand processes host-side commands. Payment decisions are not
// commands and flow through ResolvePaymentDecision instead.
func (a *Assistant) handleHostCommand(cmd *ChatCommand) (Reply, bool) {
	switch cmd.Name {
	case "start":
		return Reply{
			Text: "Welcome! I'm your property management assistant.\n\n" +
				"When a guest submits a payment proof you'll receive it here.\n" +
				"Reply 'yes' to approve or 'no' to reject.\n\n" +
				"Commands:\n/help - Show this help message",
			Action: "command",
		}, true
	case "help":
		return Reply{
			Text: "Available commands:\n" +
				"/help - Show this help message\n\n" +
				"For payment approvals, just reply 'yes' or 'no' when asked.",
			Action: "command",
		}, true
	default:
		return Reply{
			Text:   fmt.Sprintf("Unknown command: /%s\n\nUse /help to see available commands.", cmd.Name),
			Action: "command",
		}, true
	}
}
