package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"staybot/internal/bus"
	"staybot/internal/conversation"
	"staybot/internal/domain"
	"staybot/internal/metrics"
	"staybot/internal/payment"
	"staybot/internal/pricing"
)

const (
	defaultConcurrency  = 3
	defaultHistoryLimit = 10
	defaultMaxTokens    = 1024
	defaultTemperature  = 0.7
	defaultRateBurst    = 5
	defaultRatePerMin   = 30.0

	apologyText = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."
)

// Guests asking for a better rate trigger the deterministic negotiation
// engine before any text generation.
var negotiationKeywords = []string{
	"discount", "negotiate", "negotiation", "lower", "cheaper", "deal",
	"best price", "can you reduce", "reduce price", "long duration", "long stay",
}

// pricePattern extracts dollar figures from a message; the last match is
// treated as the requested total.
var pricePattern = regexp.MustCompile(`\$?(\d+(?:\.\d{2})?)`)

// Reply is the outcome of processing one inbound message.
type Reply struct {
	Text     string
	Action   string
	Metadata map[string]any
}

// Assistant is the core engine: it consumes messages from the bus, drives
// context reconstruction, persona routing, pricing, negotiation, payment
// hand-off and text generation, and replies through the bus.
type Assistant struct {
	events   domain.EventStore
	bookings domain.BookingStore
	catalog  domain.Catalog
	recon    *conversation.Reconstructor
	payments *payment.Coordinator
	provider domain.Provider
	msgbus   domain.MessageBus
	ebus     *bus.EventBus
	logger   *slog.Logger

	concurrency  int
	historyLimit int
	rateLimiter  *RateLimiter
	locks        *keyedLocks

	clearMu    sync.Mutex
	clearState map[string]int

	now func() time.Time
}

// Config holds all dependencies and tuning parameters for the assistant.
type Config struct {
	Events       domain.EventStore
	Bookings     domain.BookingStore
	Catalog      domain.Catalog
	Recon        *conversation.Reconstructor
	Payments     *payment.Coordinator
	Provider     domain.Provider
	Bus          domain.MessageBus
	EventBus     *bus.EventBus
	Logger       *slog.Logger
	Concurrency  int
	HistoryLimit int
	RatePerMin   float64
}

func New(cfg Config) *Assistant {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.RatePerMin <= 0 {
		cfg.RatePerMin = defaultRatePerMin
	}
	return &Assistant{
		events:       cfg.Events,
		bookings:     cfg.Bookings,
		catalog:      cfg.Catalog,
		recon:        cfg.Recon,
		payments:     cfg.Payments,
		provider:     cfg.Provider,
		msgbus:       cfg.Bus,
		ebus:         cfg.EventBus,
		logger:       cfg.Logger,
		concurrency:  cfg.Concurrency,
		historyLimit: cfg.HistoryLimit,
		rateLimiter:  NewRateLimiter(defaultRateBurst, cfg.RatePerMin),
		locks:        newKeyedLocks(),
		clearState:   make(map[string]int),
		now:          time.Now,
	}
}

// Run consumes inbound messages and processes them with bounded concurrency.
func (a *Assistant) Run(ctx context.Context) {
	a.logger.Info("assistant started", "concurrency", a.concurrency)

	sem := make(chan struct{}, a.concurrency)
	inbound := a.msgbus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("assistant stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				a.logger.Info("inbound channel closed, assistant stopping")
				return
			}
			sem <- struct{}{}
			metrics.ActiveWorkers.Inc()
			go func(m domain.InboundMessage) {
				defer func() {
					metrics.ActiveWorkers.Dec()
					<-sem
				}()
				a.dispatch(ctx, m)
			}(msg)
		}
	}
}

// dispatch routes one inbound message by source and sends the reply back
// through the bus. Every accepted message ends in a reply.
func (a *Assistant) dispatch(ctx context.Context, msg domain.InboundMessage) {
	a.ebus.Emit(bus.Event{Type: bus.EventMessageReceived, Source: msg.Source, Payload: map[string]any{
		"actor": msg.ActorID,
	}})

	var reply Reply
	switch msg.Source {
	case domain.SourceHost:
		reply = a.dispatchHost(ctx, msg)
	default:
		reply = a.dispatchGuest(ctx, msg)
	}

	if reply.Text == "" {
		return
	}
	a.msgbus.SendOutbound(domain.OutboundMessage{
		Source: msg.Source,
		ChatID: msg.ChatID,
		Text:   reply.Text,
	})
	a.ebus.Emit(bus.Event{Type: bus.EventMessageSent, Source: msg.Source, Payload: map[string]any{
		"actor":  msg.ActorID,
		"action": reply.Action,
	}})
}

func (a *Assistant) dispatchGuest(ctx context.Context, msg domain.InboundMessage) Reply {
	reply, err := a.ProcessMessage(ctx, msg.ActorID, msg.PropertyID, msg.Text, msg.ImageRef)
	if err != nil {
		a.logger.Error("guest message processing failed", "err", err, "actor", msg.ActorID)
		if reply.Text == "" {
			reply.Text = apologyText
			reply.Action = "error"
		}
	}
	return reply
}

func (a *Assistant) dispatchHost(ctx context.Context, msg domain.InboundMessage) Reply {
	if cmd := ParseCommand(msg.Text); cmd != nil {
		reply, _ := a.handleHostCommand(cmd)
		return reply
	}
	res, handled, err := a.ResolvePaymentDecision(ctx, msg.ChatID, msg.Text)
	if err != nil {
		a.logger.Error("host decision failed", "err", err, "chat", msg.ChatID)
		return Reply{Text: "Sorry, something went wrong processing your decision. Please try again.", Action: "error"}
	}
	if !handled {
		return Reply{
			Text:   "Reply 'yes' to approve or 'no' to reject the latest payment request. Use /help for more.",
			Action: "hint",
		}
	}
	return Reply{Text: res.Reply, Action: res.Action}
}

// ResolvePaymentDecision forwards a host's free-text decision to the payment
// coordinator. handled is false when the text is not a decision word.
func (a *Assistant) ResolvePaymentDecision(ctx context.Context, hostChatID, text string) (payment.Result, bool, error) {
	return a.payments.ResolveDecision(ctx, hostChatID, text)
}

// ProcessMessage handles one guest message end to end: log it, run commands
// and the payment flow, then the conversational path. The per-conversation
// lock serializes reconstruct-then-append for the scope.
func (a *Assistant) ProcessMessage(ctx context.Context, actorID, propertyID, text, imageRef string) (Reply, error) {
	key := actorID + "|" + propertyID
	a.locks.Lock(key)
	defer a.locks.Unlock(key)

	a.logGuestMessage(ctx, actorID, propertyID, text, imageRef)

	if imageRef == "" {
		if cmd := ParseCommand(text); cmd != nil {
			if reply, handled := a.handleGuestCommand(ctx, cmd, actorID, propertyID); handled {
				return reply, nil
			}
		}
	}

	if imageRef != "" {
		res, err := a.payments.HandleProofUpload(ctx, actorID, propertyID, imageRef, text)
		if err != nil {
			return Reply{Text: res.Reply, Action: res.Action}, fmt.Errorf("proof upload: %w", err)
		}
		return Reply{Text: res.Reply, Action: res.Action}, nil
	}

	if res, handled, err := a.payments.HandleDetailsText(ctx, actorID, propertyID, text); err != nil {
		return Reply{Text: res.Reply, Action: res.Action}, fmt.Errorf("payment details: %w", err)
	} else if handled {
		return Reply{Text: res.Reply, Action: res.Action}, nil
	}

	return a.converse(ctx, actorID, propertyID, text)
}

// converse is the conversational path: reconstruct context, route persona,
// run pricing and negotiation, then generate the reply text.
func (a *Assistant) converse(ctx context.Context, actorID, propertyID, text string) (Reply, error) {
	now := a.now()

	cctx, err := a.recon.Context(ctx, actorID, propertyID)
	if err != nil {
		a.appendAgentError(ctx, actorID, propertyID, err)
		return Reply{Text: apologyText, Action: "error"}, fmt.Errorf("reconstruct context: %w", err)
	}

	history, err := a.recon.History(ctx, actorID, propertyID, a.historyLimit)
	if err != nil {
		a.logger.Warn("history load failed, continuing without it", "err", err, "actor", actorID)
		history = nil
	}
	historyTexts := make([]string, 0, len(history))
	for _, m := range history {
		historyTexts = append(historyTexts, m.Content)
	}

	prevPersona := cctx.Persona
	persona := conversation.Route(cctx, text, historyTexts)
	if persona != prevPersona && prevPersona != "" {
		a.ebus.Emit(bus.Event{Type: bus.EventPersonaSwitched, Source: "assistant", Payload: map[string]any{
			"actor": actorID, "from": string(prevPersona), "to": string(persona),
		}})
	}

	// Dates in the current message win over reconstructed ones.
	msgDates := conversation.ExtractDates([]string{text})
	dates := msgDates
	if dates == nil {
		dates = cctx.Dates
	}
	datesChanged := msgDates != nil && cctx.Dates != nil && !msgDates.Equal(cctx.Dates)

	upd := conversation.ContextUpdate{Persona: persona}
	if msgDates != nil {
		upd.Dates = msgDates
	}
	if persona == domain.PersonaBooking && !cctx.BookingIntent {
		intent := true
		upd.BookingIntent = &intent
	}
	if err := a.recon.SaveContext(ctx, actorID, propertyID, upd); err != nil {
		a.logger.Warn("context save failed", "err", err, "actor", actorID)
	}

	prop, err := a.catalog.Property(propertyID)
	if err != nil {
		a.appendAgentError(ctx, actorID, propertyID, err)
		return Reply{
			Text:   "I'm sorry, no properties are configured yet. Please contact the host.",
			Action: "error",
		}, fmt.Errorf("property lookup: %w", err)
	}
	host, err := a.catalog.HostFor(propertyID)
	if err != nil {
		a.logger.Warn("host lookup failed", "err", err, "property", propertyID)
		host = nil
	}

	messages := []domain.GenMessage{
		{Role: "system", Content: buildSystemPrompt(persona, prop, host, now)},
	}
	if note := contextNote(cctx.Summary(now)); note != "" {
		messages = append(messages, domain.GenMessage{Role: "system", Content: note})
	}
	if datesChanged {
		messages = append(messages, domain.GenMessage{
			Role:    "system",
			Content: dateChangeNote(cctx.Dates, msgDates, cctx.NegotiatedPrice, cctx.NegotiatedDates),
		})
	}

	var quote *pricing.Quote
	if dates != nil {
		q, qerr := pricing.Calculate(prop, dates, 1, now)
		if qerr != nil {
			messages = append(messages, domain.GenMessage{
				Role:    "system",
				Content: fmt.Sprintf("[The requested dates could not be priced: %s. Ask the guest to re-check their dates.]", qerr),
			})
		} else {
			quote = q
			a.ebus.Emit(bus.Event{Type: bus.EventQuoteIssued, Source: "assistant", Payload: map[string]any{
				"actor": actorID, "total": q.Total, "nights": q.Nights,
			}})
			if note := a.availabilityNote(ctx, propertyID, dates); note != "" {
				messages = append(messages, domain.GenMessage{Role: "system", Content: note})
			}
		}
	}

	if persona == domain.PersonaBooking && quote != nil && containsAnyKeyword(text, negotiationKeywords) {
		messages = append(messages, domain.GenMessage{
			Role:    "system",
			Content: a.negotiate(ctx, actorID, propertyID, text, dates, quote),
		})
	}

	messages = append(messages, history...)
	messages = append(messages, domain.GenMessage{Role: "user", Content: text})

	response, err := a.generate(ctx, messages)
	if err != nil {
		a.appendAgentError(ctx, actorID, propertyID, err)
		return Reply{Text: apologyText, Action: "error"}, fmt.Errorf("generate: %w", err)
	}
	response = cleanResponse(response)

	a.logAgentResponse(ctx, actorID, propertyID, response, persona)

	return Reply{
		Text:   response,
		Action: "reply",
		Metadata: map[string]any{
			"persona": string(persona),
		},
	}, nil
}

// negotiate runs the deterministic engine, persists the agreed figure, and
// returns the system note that constrains the generated reply. The floor is
// never part of the note.
func (a *Assistant) negotiate(ctx context.Context, actorID, propertyID, text string, dates *domain.DateRange, quote *pricing.Quote) string {
	var outcome pricing.Outcome
	var requested float64
	figures := pricePattern.FindAllStringSubmatch(text, -1)
	if len(figures) > 0 {
		requested, _ = strconv.ParseFloat(figures[len(figures)-1][1], 64)
		outcome = pricing.Negotiate(requested, quote)
	} else {
		outcome = pricing.NegotiateWithoutFigure(quote)
	}

	a.ebus.Emit(bus.Event{Type: bus.EventNegotiation, Source: "assistant", Payload: map[string]any{
		"actor":     actorID,
		"requested": requested,
		"accepted":  outcome.Accepted,
		"final":     outcome.FinalPrice,
	}})

	requestedStr := "not specified"
	if len(figures) > 0 {
		requestedStr = fmt.Sprintf("$%.2f", requested)
	}
	if _, err := a.events.Append(ctx, domain.InteractionEvent{
		Kind:       domain.EventAgentDecision,
		ActorID:    actorID,
		PropertyID: propertyID,
		Message:    fmt.Sprintf("Price negotiation: %s requested, $%.2f offered for %d nights", requestedStr, outcome.FinalPrice, quote.Nights),
		Attrs: map[string]any{
			domain.AttrRequestedPrice: requested,
			domain.AttrNights:         quote.Nights,
		},
	}); err != nil {
		a.logger.Warn("negotiation event append failed", "err", err)
	}

	if outcome.Accepted {
		if err := a.recon.SaveContext(ctx, actorID, propertyID, conversation.ContextUpdate{
			NegotiatedPrice: outcome.FinalPrice,
			NegotiatedDates: dates,
		}); err != nil {
			a.logger.Warn("negotiated price save failed", "err", err)
		}
		return fmt.Sprintf(
			"[IMPORTANT: Guest asked for discount/negotiation. Negotiated price: $%.2f. "+
				"Use the negotiation message: '%s'. DO NOT reveal any internal price range. "+
				"DO NOT ask for dates again - dates are already confirmed: %s to %s. "+
				"REMEMBER this negotiated price for future reference.]",
			outcome.FinalPrice, outcome.Message, dates.CheckIn, dates.CheckOut)
	}
	return fmt.Sprintf(
		"[IMPORTANT: Guest asked for discount/negotiation. Use the message: '%s'. "+
			"DO NOT reveal any internal price range. "+
			"DO NOT ask for dates again - dates are already confirmed: %s to %s.]",
		outcome.Message, dates.CheckIn, dates.CheckOut)
}

// availabilityNote reports a confirmed-booking collision for the dates.
func (a *Assistant) availabilityNote(ctx context.Context, propertyID string, dates *domain.DateRange) string {
	overlap, err := a.bookings.ConfirmedOverlap(ctx, propertyID, dates.CheckIn, dates.CheckOut)
	if err != nil {
		a.logger.Warn("availability check failed", "err", err, "property", propertyID)
		return ""
	}
	if overlap == nil {
		return ""
	}
	return fmt.Sprintf("[AVAILABILITY: The property is already booked from %s to %s. "+
		"Tell the guest these dates are unavailable and suggest they pick different dates.]",
		overlap.CheckIn, overlap.CheckOut)
}

func (a *Assistant) generate(ctx context.Context, messages []domain.GenMessage) (string, error) {
	if err := a.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	metrics.GenerationRequests.Inc()
	start := time.Now()
	text, err := a.provider.Generate(ctx, domain.GenRequest{
		Messages:    messages,
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
	})
	metrics.GenerationLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		a.ebus.Emit(bus.Event{Type: bus.EventProviderError, Source: "assistant", Payload: map[string]any{
			"provider": a.provider.Name(), "error": err.Error(),
		}})
		return "", err
	}
	return text, nil
}

func (a *Assistant) logGuestMessage(ctx context.Context, actorID, propertyID, text, imageRef string) {
	if _, err := a.events.Append(ctx, domain.InteractionEvent{
		Kind:       domain.EventGuestMessage,
		ActorID:    actorID,
		PropertyID: propertyID,
		Message:    text,
		Attrs: map[string]any{
			domain.AttrText: text,
			"has_photo":     imageRef != "",
		},
	}); err != nil {
		a.logger.Error("guest message append failed", "err", err, "actor", actorID)
	}
}

func (a *Assistant) logAgentResponse(ctx context.Context, actorID, propertyID, response string, persona domain.Persona) {
	if _, err := a.events.Append(ctx, domain.InteractionEvent{
		Kind:       domain.EventAgentResponse,
		ActorID:    actorID,
		PropertyID: propertyID,
		Message:    response,
		Attrs: map[string]any{
			domain.AttrText:    response,
			domain.AttrPersona: string(persona),
		},
	}); err != nil {
		a.logger.Error("agent response append failed", "err", err, "actor", actorID)
	}
}

func (a *Assistant) appendAgentError(ctx context.Context, actorID, propertyID string, cause error) {
	if _, err := a.events.Append(ctx, domain.InteractionEvent{
		Kind:       domain.EventAgentError,
		ActorID:    actorID,
		PropertyID: propertyID,
		Message:    cause.Error(),
	}); err != nil {
		a.logger.Error("agent error append failed", "err", err, "actor", actorID)
	}
}

func containsAnyKeyword(s string, keywords []string) bool {
	lower := strings.ToLower(s)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
