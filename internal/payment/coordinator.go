package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"staybot/internal/bus"
	"staybot/internal/conversation"
	"staybot/internal/domain"
)

// Result is the outcome of a payment interaction, ready for the channel.
type Result struct {
	Reply  string
	Action string
}

// Hosts resolve payments with a small fixed vocabulary.
var (
	approveWords = map[string]bool{"yes": true, "y": true, "approve": true, "confirm": true}
	rejectWords  = map[string]bool{"no": true, "n": true, "reject": true, "decline": true}
)

const detailsPrompt = "Please provide your payment details along with the screenshot:\n\n" +
	"1. Your full name\n" +
	"2. Bank name you're sending payment from (e.g., JazzCash, SadaPay, EasyPaisa, or bank name)\n\n" +
	"You can send it as a message like:\nName: [Your Name]\nBank: [Bank Name]"

// Coordinator drives the payment-proof workflow: proof upload, identity
// collection, host approval, and guest notification.
type Coordinator struct {
	events   domain.EventStore
	bookings domain.BookingStore
	catalog  domain.Catalog
	recon    *conversation.Reconstructor
	msgbus   domain.MessageBus
	ebus     *bus.EventBus
	logger   *slog.Logger
}

func NewCoordinator(
	events domain.EventStore,
	bookings domain.BookingStore,
	catalog domain.Catalog,
	recon *conversation.Reconstructor,
	msgbus domain.MessageBus,
	ebus *bus.EventBus,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		events:   events,
		bookings: bookings,
		catalog:  catalog,
		recon:    recon,
		msgbus:   msgbus,
		ebus:     ebus,
		logger:   logger,
	}
}

// PendingRequest returns the newest unresolved payment-request event for the
// scope, or nil. Older unresolved uploads are superseded by newer ones.
func (c *Coordinator) PendingRequest(ctx context.Context, actorID, propertyID string) (*domain.InteractionEvent, error) {
	events, err := c.events.Query(ctx, domain.EventFilter{
		ActorID:        actorID,
		PropertyID:     propertyID,
		Kinds:          []domain.EventKind{domain.EventPaymentUploaded},
		UnresolvedOnly: true,
		Limit:          50,
	})
	if err != nil {
		return nil, fmt.Errorf("find pending payment request: %w", err)
	}
	for i := range events {
		if ok, _ := events[i].AttrBool(domain.AttrAwaitingDetails); ok {
			return &events[i], nil
		}
	}
	return nil, nil
}

// HandleProofUpload processes a payment screenshot. proofRef is the local
// path of the downloaded image; caption is any text sent with it.
func (c *Coordinator) HandleProofUpload(ctx context.Context, actorID, propertyID, proofRef, caption string) (Result, error) {
	cc, err := c.recon.Context(ctx, actorID, propertyID)
	if err != nil {
		return Result{}, err
	}

	if cc.Dates == nil {
		return Result{
			Reply:  "I need your booking dates first. Please provide your check-in and check-out dates, then upload the payment screenshot.",
			Action: "error",
		}, nil
	}

	id := ExtractIdentity(caption)
	if !id.Complete() {
		// Retire any older pending request; the newest upload is the one
		// that counts.
		if prev, err := c.PendingRequest(ctx, actorID, propertyID); err == nil && prev != nil {
			if err := c.events.Resolve(ctx, prev.ID); err != nil {
				c.logger.Warn("could not supersede pending payment request", "event_id", prev.ID, "error", err)
			}
		}

		attrs := map[string]any{
			domain.AttrFileID:          proofRef,
			domain.AttrDates:           cc.Dates.Map(),
			domain.AttrAwaitingDetails: true,
		}
		if cc.NegotiatedPrice > 0 {
			attrs[domain.AttrNegotiatedPrice] = cc.NegotiatedPrice
		}
		_, err := c.events.Append(ctx, domain.InteractionEvent{
			Kind:       domain.EventPaymentUploaded,
			ActorID:    actorID,
			PropertyID: propertyID,
			Message:    fmt.Sprintf("Payment screenshot received from %s - awaiting customer details", actorID),
			Attrs:      attrs,
		})
		if err != nil {
			return Result{}, err
		}
		c.ebus.EmitAsync(bus.Event{Type: bus.EventPaymentUploaded, Source: "payment", Payload: map[string]any{"actor": actorID, "property": propertyID}})
		return Result{Reply: detailsPrompt, Action: "awaiting_details"}, nil
	}

	return c.complete(ctx, actorID, propertyID, id, proofRef, cc.Dates, cc.NegotiatedPrice)
}

// HandleDetailsText consumes a text message while identity details are
// outstanding. The second return is false when no payment request is pending
// and the message should flow to the conversational path instead.
func (c *Coordinator) HandleDetailsText(ctx context.Context, actorID, propertyID, text string) (Result, bool, error) {
	pending, err := c.PendingRequest(ctx, actorID, propertyID)
	if err != nil {
		return Result{}, false, err
	}
	if pending == nil {
		return Result{}, false, nil
	}

	id := ExtractIdentity(text)
	if !id.Complete() {
		return Result{
			Reply: "I still need the following details before sending your payment for verification:\n- " +
				strings.Join(id.MissingFields(), " and ") +
				"\n\nPlease send them in the format:\nName: John Doe\nBank: JazzCash",
			Action: "awaiting_details",
		}, true, nil
	}

	dates := pending.AttrDates(domain.AttrDates)
	price := pending.AttrFloat(domain.AttrNegotiatedPrice)
	if dates == nil {
		cc, err := c.recon.Context(ctx, actorID, propertyID)
		if err != nil {
			return Result{}, true, err
		}
		dates = cc.Dates
		if price == 0 {
			price = cc.NegotiatedPrice
		}
	}
	if dates == nil {
		return Result{
			Reply:  "I need your booking dates first. Please provide your check-in and check-out dates, then resend your payment details.",
			Action: "error",
		}, true, nil
	}

	res, err := c.complete(ctx, actorID, propertyID, id, pending.AttrString(domain.AttrFileID), dates, price)
	if err != nil {
		return Result{}, true, err
	}
	if err := c.events.Resolve(ctx, pending.ID); err != nil {
		c.logger.Warn("could not resolve payment request", "event_id", pending.ID, "error", err)
	}
	return res, true, nil
}

// complete creates the pending booking and hands it to the host.
func (c *Coordinator) complete(ctx context.Context, actorID, propertyID string, id Identity, proofRef string, dates *domain.DateRange, price float64) (Result, error) {
	prop, err := c.catalog.Property(propertyID)
	if err != nil {
		return Result{
			Reply:  "I'm sorry, I couldn't find the property information. Please contact support.",
			Action: "error",
		}, nil
	}

	booking := &domain.Booking{
		ID:            uuid.NewString(),
		PropertyID:    propertyID,
		GuestID:       actorID,
		GuestName:     id.Name,
		CustomerName:  id.Name,
		CustomerBank:  id.Bank,
		CheckIn:       dates.CheckIn,
		CheckOut:      dates.CheckOut,
		Nights:        dates.Nights(),
		Guests:        1,
		FinalPrice:    price,
		ProofRef:      proofRef,
		Status:        domain.BookingPending,
		PaymentStatus: domain.PaymentPending,
	}
	if err := c.bookings.CreateBooking(ctx, booking); err != nil {
		return Result{}, fmt.Errorf("create booking: %w", err)
	}

	_, err = c.events.Append(ctx, domain.InteractionEvent{
		Kind:       domain.EventPaymentUploaded,
		ActorID:    actorID,
		PropertyID: propertyID,
		Message:    fmt.Sprintf("Payment screenshot uploaded by guest %s", actorID),
		Resolved:   true,
		Attrs: map[string]any{
			domain.AttrBookingID: booking.ID,
			domain.AttrFileID:    proofRef,
		},
	})
	if err != nil {
		return Result{}, err
	}

	if err := c.recon.SaveContext(ctx, actorID, propertyID, conversation.ContextUpdate{
		BookingStatus: "payment_received",
	}); err != nil {
		return Result{}, err
	}

	c.notifyHost(ctx, prop, booking)

	c.logger.Info("payment proof forwarded to host",
		"booking_id", booking.ID,
		"actor", actorID,
		"property", propertyID,
	)
	return Result{
		Reply:  "✅ Thank you! I've received your payment details and screenshot and sent them to the host for verification. You will receive a confirmation message once the payment is verified.",
		Action: "payment_received",
	}, nil
}

func (c *Coordinator) notifyHost(ctx context.Context, prop *domain.PropertyOffer, booking *domain.Booking) {
	host, err := c.catalog.HostFor(prop.ID)
	if err != nil || host.ChatID == "" {
		c.logger.Warn("host unreachable for payment notification",
			"property", prop.ID,
			"booking_id", booking.ID,
		)
		return
	}

	caption := fmt.Sprintf(
		"💰 New payment to verify\n\n"+
			"Guest: %s\n"+
			"Property: %s\n"+
			"Dates: %s to %s (%d nights)\n"+
			"Amount: $%.2f\n"+
			"Sent from: %s\n\n"+
			"Reply 'yes' to approve or 'no' to reject.",
		booking.CustomerName, prop.Name,
		booking.CheckIn, booking.CheckOut, booking.Nights,
		booking.FinalPrice, booking.CustomerBank,
	)
	c.msgbus.SendOutbound(domain.OutboundMessage{
		Source:   domain.SourceHost,
		ChatID:   host.ChatID,
		Text:     caption,
		ImageRef: booking.ProofRef,
	})
}

// ResolveDecision consumes a host's free-text approval or rejection. The
// second return is false when the text is not a decision word.
func (c *Coordinator) ResolveDecision(ctx context.Context, hostChatID, text string) (Result, bool, error) {
	word := strings.ToLower(strings.TrimSpace(text))

	approve := approveWords[word]
	if !approve && !rejectWords[word] {
		return Result{}, false, nil
	}

	host, err := c.catalog.HostByChatID(hostChatID)
	if err != nil {
		return Result{
			Reply:  "I couldn't match this chat to a host profile. Please check the catalog configuration.",
			Action: "error",
		}, true, nil
	}

	props := c.catalog.PropertiesByHost(host.ID)
	ids := make([]string, 0, len(props))
	for _, p := range props {
		ids = append(ids, p.ID)
	}

	// Decisions apply to the oldest pending booking so the queue drains in
	// arrival order.
	booking, err := c.bookings.OldestPendingBooking(ctx, ids)
	if errors.Is(err, domain.ErrNoPending) {
		return Result{
			Reply:  "No pending payment requests found. If you just received a payment request, please wait a moment and try again.",
			Action: "no_pending",
		}, true, nil
	}
	if err != nil {
		return Result{}, true, fmt.Errorf("find pending booking: %w", err)
	}

	if approve {
		return c.approve(ctx, booking)
	}
	return c.reject(ctx, booking)
}

func (c *Coordinator) approve(ctx context.Context, booking *domain.Booking) (Result, bool, error) {
	now := time.Now()
	booking.Status = domain.BookingConfirmed
	booking.PaymentStatus = domain.PaymentApproved
	booking.ConfirmedAt = &now
	if err := c.bookings.UpdateBooking(ctx, booking); err != nil {
		return Result{}, true, fmt.Errorf("confirm booking %s: %w", booking.ID, err)
	}

	_, err := c.events.Append(ctx, domain.InteractionEvent{
		Kind:       domain.EventBookingConfirmed,
		ActorID:    booking.GuestID,
		PropertyID: booking.PropertyID,
		Message:    fmt.Sprintf("Booking %s confirmed", booking.ID),
		Attrs:      map[string]any{domain.AttrBookingID: booking.ID},
	})
	if err != nil {
		return Result{}, true, err
	}
	c.ebus.EmitAsync(bus.Event{Type: bus.EventBookingConfirmed, Source: "payment", Payload: map[string]any{"booking_id": booking.ID}})

	propName := booking.PropertyID
	if prop, err := c.catalog.Property(booking.PropertyID); err == nil {
		propName = prop.Name
	}
	c.msgbus.SendOutbound(domain.OutboundMessage{
		Source: domain.SourceGuest,
		ChatID: booking.GuestID,
		Text: fmt.Sprintf(
			"✅ Booking Confirmed!\n\n"+
				"Your booking has been confirmed:\n"+
				"Property: %s\n"+
				"Check-in: %s\n"+
				"Check-out: %s\n"+
				"Total: $%.2f\n\n"+
				"Check-in instructions will be sent to you before your arrival.",
			propName, booking.CheckIn, booking.CheckOut, booking.FinalPrice),
	})

	c.logger.Info("payment approved", "booking_id", booking.ID, "guest", booking.GuestID)
	return Result{
		Reply:  fmt.Sprintf("✅ Payment approved! Booking %s has been confirmed. The guest has been notified.", booking.ID),
		Action: "payment_approved",
	}, true, nil
}

func (c *Coordinator) reject(ctx context.Context, booking *domain.Booking) (Result, bool, error) {
	booking.Status = domain.BookingCancelled
	booking.PaymentStatus = domain.PaymentRejected
	if err := c.bookings.UpdateBooking(ctx, booking); err != nil {
		return Result{}, true, fmt.Errorf("reject booking %s: %w", booking.ID, err)
	}

	_, err := c.events.Append(ctx, domain.InteractionEvent{
		Kind:       domain.EventBookingCancelled,
		ActorID:    booking.GuestID,
		PropertyID: booking.PropertyID,
		Message:    fmt.Sprintf("Booking %s rejected", booking.ID),
		Attrs:      map[string]any{domain.AttrBookingID: booking.ID},
	})
	if err != nil {
		return Result{}, true, err
	}
	c.ebus.EmitAsync(bus.Event{Type: bus.EventBookingRejected, Source: "payment", Payload: map[string]any{"booking_id": booking.ID}})

	c.msgbus.SendOutbound(domain.OutboundMessage{
		Source: domain.SourceGuest,
		ChatID: booking.GuestID,
		Text: "❌ Payment Verification Failed\n\n" +
			"Unfortunately, we were unable to verify your payment.\n" +
			"Please contact support if you believe this is an error.",
	})

	c.logger.Info("payment rejected", "booking_id", booking.ID, "guest", booking.GuestID)
	return Result{
		Reply:  fmt.Sprintf("❌ Payment rejected. Booking %s has been cancelled. The guest has been notified.", booking.ID),
		Action: "payment_rejected",
	}, true, nil
}

// ClearPending resolves any outstanding payment request for a guest. Used by
// the /clear flow before history deletion.
func (c *Coordinator) ClearPending(ctx context.Context, actorID, propertyID string) error {
	pending, err := c.PendingRequest(ctx, actorID, propertyID)
	if err != nil {
		return err
	}
	if pending == nil {
		return nil
	}
	return c.events.Resolve(ctx, pending.ID)
}
