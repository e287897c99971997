package assistant

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"staybot/internal/bus"
	"staybot/internal/conversation"
	"staybot/internal/domain"
	"staybot/internal/payment"
)

// --- test doubles ---

type memEventStore struct {
	events []domain.InteractionEvent
	nextID int64
}

func (f *memEventStore) Append(_ context.Context, ev domain.InteractionEvent) (int64, error) {
	f.nextID++
	ev.ID = f.nextID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	f.events = append(f.events, ev)
	return ev.ID, nil
}

func (f *memEventStore) Query(_ context.Context, filter domain.EventFilter) ([]domain.InteractionEvent, error) {
	var out []domain.InteractionEvent
	for i := len(f.events) - 1; i >= 0; i-- {
		ev := f.events[i]
		if filter.ActorID != "" && ev.ActorID != filter.ActorID {
			continue
		}
		if filter.PropertyID != "" && ev.PropertyID != filter.PropertyID {
			continue
		}
		if len(filter.Kinds) > 0 {
			match := false
			for _, k := range filter.Kinds {
				if ev.Kind == k {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		if filter.UnresolvedOnly && ev.Resolved {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (f *memEventStore) Resolve(_ context.Context, eventID int64) error {
	for i := range f.events {
		if f.events[i].ID == eventID {
			f.events[i].Resolved = true
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *memEventStore) DeleteActorEvents(_ context.Context, actorID string) error {
	var kept []domain.InteractionEvent
	for _, ev := range f.events {
		if ev.ActorID != actorID {
			kept = append(kept, ev)
		}
	}
	f.events = kept
	return nil
}

func (f *memEventStore) Close() error { return nil }

func (f *memEventStore) kinds() []domain.EventKind {
	var out []domain.EventKind
	for _, ev := range f.events {
		out = append(out, ev.Kind)
	}
	return out
}

type memBookingStore struct {
	bookings map[string]*domain.Booking
	order    []string
}

func newMemBookingStore() *memBookingStore {
	return &memBookingStore{bookings: make(map[string]*domain.Booking)}
}

func (f *memBookingStore) CreateBooking(_ context.Context, b *domain.Booking) error {
	cp := *b
	f.bookings[b.ID] = &cp
	f.order = append(f.order, b.ID)
	return nil
}

func (f *memBookingStore) UpdateBooking(_ context.Context, b *domain.Booking) error {
	if _, ok := f.bookings[b.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *b
	f.bookings[b.ID] = &cp
	return nil
}

func (f *memBookingStore) GetBooking(_ context.Context, id string) (*domain.Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *memBookingStore) OldestPendingBooking(_ context.Context, propertyIDs []string) (*domain.Booking, error) {
	inScope := func(id string) bool {
		for _, p := range propertyIDs {
			if p == id {
				return true
			}
		}
		return false
	}
	for _, id := range f.order {
		b := f.bookings[id]
		if b.Status == domain.BookingPending && b.PaymentStatus == domain.PaymentPending && inScope(b.PropertyID) {
			cp := *b
			return &cp, nil
		}
	}
	return nil, domain.ErrNoPending
}

func (f *memBookingStore) ConfirmedOverlap(_ context.Context, propertyID, checkIn, checkOut string) (*domain.Booking, error) {
	for _, id := range f.order {
		b := f.bookings[id]
		if b.PropertyID == propertyID && b.Status == domain.BookingConfirmed &&
			b.CheckIn < checkOut && b.CheckOut > checkIn {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *memBookingStore) DeleteGuestBookings(_ context.Context, guestID string) error {
	for id, b := range f.bookings {
		if b.GuestID == guestID {
			delete(f.bookings, id)
		}
	}
	return nil
}

type recordingBus struct {
	outbound []domain.OutboundMessage
}

func (r *recordingBus) Publish(domain.InboundMessage)           {}
func (r *recordingBus) Subscribe() <-chan domain.InboundMessage { return nil }
func (r *recordingBus) SendOutbound(msg domain.OutboundMessage) {
	r.outbound = append(r.outbound, msg)
}
func (r *recordingBus) OnOutbound(string, func(domain.OutboundMessage)) {}
func (r *recordingBus) Close()                                          {}

type fixedCatalog struct {
	props map[string]domain.PropertyOffer
	hosts map[string]domain.Host
}

func testCatalog() *fixedCatalog {
	return &fixedCatalog{
		props: map[string]domain.PropertyOffer{
			"villa-1": {
				ID: "villa-1", HostID: "host-1", Name: "Sunset Villa", Location: "Hunza",
				BasePrice: 100, MinPrice: 80, MaxPrice: 120, MaxGuests: 4,
				CheckInTime: "14:00", CheckOutTime: "11:00",
			},
		},
		hosts: map[string]domain.Host{
			"host-1": {ID: "host-1", Name: "Maria", ChatID: "7001", PaymentMethods: []domain.PaymentMethod{
				{Bank: "JazzCash", AccountName: "Maria K", AccountNumber: "0300-1234567"},
			}},
		},
	}
}

func (c *fixedCatalog) Property(id string) (*domain.PropertyOffer, error) {
	p, ok := c.props[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (c *fixedCatalog) Properties() []domain.PropertyOffer {
	var out []domain.PropertyOffer
	for _, p := range c.props {
		out = append(out, p)
	}
	return out
}

func (c *fixedCatalog) PropertiesByHost(hostID string) []domain.PropertyOffer {
	var out []domain.PropertyOffer
	for _, p := range c.props {
		if p.HostID == hostID {
			out = append(out, p)
		}
	}
	return out
}

func (c *fixedCatalog) HostFor(propertyID string) (*domain.Host, error) {
	p, ok := c.props[propertyID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	h := c.hosts[p.HostID]
	return &h, nil
}

func (c *fixedCatalog) HostByChatID(chatID string) (*domain.Host, error) {
	for _, h := range c.hosts {
		if h.ChatID == chatID {
			host := h
			return &host, nil
		}
	}
	return nil, domain.ErrNotFound
}

// fakeProvider records the requests it receives.
type fakeProvider struct {
	response string
	err      error
	requests []domain.GenRequest
}

func (p *fakeProvider) Generate(_ context.Context, req domain.GenRequest) (string, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return "", p.err
	}
	return p.response, nil
}

func (p *fakeProvider) Name() string                      { return "fake" }
func (p *fakeProvider) Models() []string                  { return []string{"fake-model"} }
func (p *fakeProvider) Healthy(context.Context) error     { return nil }

func (p *fakeProvider) lastRequest(t *testing.T) domain.GenRequest {
	t.Helper()
	if len(p.requests) == 0 {
		t.Fatal("provider was never called")
	}
	return p.requests[len(p.requests)-1]
}

// --- fixture ---

type fixture struct {
	asst     *Assistant
	events   *memEventStore
	bookings *memBookingStore
	provider *fakeProvider
	msgbus   *recordingBus
	recon    *conversation.Reconstructor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	events := &memEventStore{}
	bookings := newMemBookingStore()
	catalog := testCatalog()
	recon := conversation.NewReconstructor(events, 50, logger)
	msgbus := &recordingBus{}
	ebus := bus.NewEventBus(logger)
	coord := payment.NewCoordinator(events, bookings, catalog, recon, msgbus, ebus, logger)
	provider := &fakeProvider{response: "Sure, happy to help!"}

	asst := New(Config{
		Events:     events,
		Bookings:   bookings,
		Catalog:    catalog,
		Recon:      recon,
		Payments:   coord,
		Provider:   provider,
		Bus:        msgbus,
		EventBus:   ebus,
		Logger:     logger,
		RatePerMin: 60000, // effectively unthrottled in tests
	})
	asst.now = func() time.Time {
		return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	}
	return &fixture{
		asst:     asst,
		events:   events,
		bookings: bookings,
		provider: provider,
		msgbus:   msgbus,
		recon:    recon,
	}
}

// --- commands ---

func TestProcessMessage_StartListsProperties(t *testing.T) {
	f := newFixture(t)

	reply, err := f.asst.ProcessMessage(context.Background(), "g1", "villa-1", "/start", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(reply.Text, "Sunset Villa") {
		t.Fatalf("welcome should list the property, got %q", reply.Text)
	}
	if !strings.Contains(reply.Text, "$100.00 per night") {
		t.Fatalf("welcome should show the base price, got %q", reply.Text)
	}
	if len(f.provider.requests) != 0 {
		t.Fatal("commands must not hit the provider")
	}
}

func TestProcessMessage_ClearRequiresDoubleConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Seed some history first.
	_, _ = f.asst.ProcessMessage(ctx, "g1", "villa-1", "hello there", "")

	reply, err := f.asst.ProcessMessage(ctx, "g1", "villa-1", "/clear", "")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !strings.Contains(reply.Text, "/clear_confirm") {
		t.Fatalf("expected confirm instructions, got %q", reply.Text)
	}

	reply, _ = f.asst.ProcessMessage(ctx, "g1", "villa-1", "/clear_confirm", "")
	if !strings.Contains(reply.Text, "Final confirmation") {
		t.Fatalf("expected final warning on first confirm, got %q", reply.Text)
	}
	if len(f.events.events) == 0 {
		t.Fatal("history must survive until the second confirm")
	}

	reply, _ = f.asst.ProcessMessage(ctx, "g1", "villa-1", "/clear_confirm", "")
	if !strings.Contains(reply.Text, "reset complete") {
		t.Fatalf("expected reset confirmation, got %q", reply.Text)
	}
	for _, ev := range f.events.events {
		if ev.ActorID == "g1" {
			t.Fatalf("expected g1 events deleted, found %v", ev.Kind)
		}
	}
}

func TestProcessMessage_ClearConfirmWithoutClearIsNoop(t *testing.T) {
	f := newFixture(t)

	reply, err := f.asst.ProcessMessage(context.Background(), "g1", "villa-1", "/clear_confirm", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(reply.Text, "No pending /clear request") {
		t.Fatalf("expected noop hint, got %q", reply.Text)
	}
}

// --- conversational path ---

func TestProcessMessage_ConversationalRepliesAndLogs(t *testing.T) {
	f := newFixture(t)

	reply, err := f.asst.ProcessMessage(context.Background(), "g1", "villa-1", "Is the villa pet friendly?", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Text != "Sure, happy to help!" {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}
	if reply.Action != "reply" {
		t.Fatalf("unexpected action: %q", reply.Action)
	}

	var sawGuestMsg, sawAgentResp bool
	for _, k := range f.events.kinds() {
		if k == domain.EventGuestMessage {
			sawGuestMsg = true
		}
		if k == domain.EventAgentResponse {
			sawAgentResp = true
		}
	}
	if !sawGuestMsg || !sawAgentResp {
		t.Fatalf("expected guest_message and agent_response events, got %v", f.events.kinds())
	}
}

func TestProcessMessage_SystemPromptCarriesPropertyNotFloor(t *testing.T) {
	f := newFixture(t)

	_, err := f.asst.ProcessMessage(context.Background(), "g1", "villa-1", "tell me about the place", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := f.provider.lastRequest(t)
	system := req.Messages[0].Content
	if !strings.Contains(system, "Sunset Villa") {
		t.Fatal("system prompt should name the property")
	}
	for _, m := range req.Messages {
		if strings.Contains(m.Content, "80") && strings.Contains(strings.ToLower(m.Content), "min") {
			t.Fatalf("prompt leaks the price floor: %q", m.Content)
		}
	}
}

func TestProcessMessage_BookingIntentSwitchesPersona(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.asst.ProcessMessage(ctx, "g1", "villa-1", "I want to book from 10 September - 16 September 2026", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cctx, err := f.recon.Context(ctx, "g1", "villa-1")
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	if cctx.Persona != domain.PersonaBooking {
		t.Fatalf("expected booking persona, got %q", cctx.Persona)
	}
	if !cctx.BookingIntent {
		t.Fatal("expected booking intent recorded")
	}
	if cctx.Dates == nil || cctx.Dates.CheckIn != "2026-09-10" || cctx.Dates.CheckOut != "2026-09-16" {
		t.Fatalf("expected extracted dates persisted, got %+v", cctx.Dates)
	}
}

func TestProcessMessage_NegotiationSavesPriceAndHidesFloor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.asst.ProcessMessage(ctx, "g1", "villa-1", "I want to book 10 September - 16 September 2026", "")
	if err != nil {
		t.Fatalf("seed dates: %v", err)
	}

	// 6 nights at base 100 = 600 total; a 540 request sits in range.
	_, err = f.asst.ProcessMessage(ctx, "g1", "villa-1", "can you give me a discount, say $540?", "")
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}

	req := f.provider.lastRequest(t)
	var sawNote bool
	for _, m := range req.Messages {
		if strings.Contains(m.Content, "Negotiated price: $540.00") {
			sawNote = true
		}
		if strings.Contains(m.Content, "$480") {
			t.Fatalf("prompt leaks the negotiation floor: %q", m.Content)
		}
	}
	if !sawNote {
		t.Fatal("expected a negotiation note in the prompt")
	}

	cctx, err := f.recon.Context(ctx, "g1", "villa-1")
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	if cctx.NegotiatedPrice != 540 {
		t.Fatalf("expected negotiated price 540, got %v", cctx.NegotiatedPrice)
	}
	if cctx.NegotiatedDates == nil || cctx.NegotiatedDates.CheckIn != "2026-09-10" {
		t.Fatalf("negotiated price must be bound to its dates, got %+v", cctx.NegotiatedDates)
	}
}

func TestProcessMessage_AvailabilityCollisionNoted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_ = f.bookings.CreateBooking(ctx, &domain.Booking{
		ID: "bk-1", PropertyID: "villa-1", GuestID: "other",
		CheckIn: "2026-09-12", CheckOut: "2026-09-14",
		Status: domain.BookingConfirmed, PaymentStatus: domain.PaymentApproved,
	})

	_, err := f.asst.ProcessMessage(ctx, "g1", "villa-1", "Is it free 10 September - 16 September 2026?", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := f.provider.lastRequest(t)
	var sawCollision bool
	for _, m := range req.Messages {
		if strings.Contains(m.Content, "already booked from 2026-09-12 to 2026-09-14") {
			sawCollision = true
		}
	}
	if !sawCollision {
		t.Fatal("expected an availability note about the confirmed booking")
	}
}

func TestProcessMessage_ProviderFailureYieldsApology(t *testing.T) {
	f := newFixture(t)
	f.provider.err = errors.New("upstream down")

	reply, err := f.asst.ProcessMessage(context.Background(), "g1", "villa-1", "hello", "")
	if err == nil {
		t.Fatal("expected an error")
	}
	if reply.Text != apologyText {
		t.Fatalf("expected the fixed apology, got %q", reply.Text)
	}

	var sawError bool
	for _, k := range f.events.kinds() {
		if k == domain.EventAgentError {
			sawError = true
		}
	}
	if !sawError {
		t.Fatal("expected an agent_error event")
	}
}

func TestProcessMessage_PhotoWithoutDatesAsksForDates(t *testing.T) {
	f := newFixture(t)

	reply, err := f.asst.ProcessMessage(context.Background(), "g1", "villa-1", "", "/tmp/proof.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(reply.Text, "booking dates first") {
		t.Fatalf("expected dates-first reply, got %q", reply.Text)
	}
	if len(f.provider.requests) != 0 {
		t.Fatal("payment flow must not hit the provider")
	}
}

// --- host side ---

func TestDispatchHost_NonDecisionGetsHint(t *testing.T) {
	f := newFixture(t)

	reply := f.asst.dispatchHost(context.Background(), domain.InboundMessage{
		Source: domain.SourceHost, ChatID: "7001", ActorID: "h1", Text: "how is business?",
	})
	if !strings.Contains(reply.Text, "'yes' to approve") {
		t.Fatalf("expected decision hint, got %q", reply.Text)
	}
}

func TestDispatchHost_HelpCommand(t *testing.T) {
	f := newFixture(t)

	reply := f.asst.dispatchHost(context.Background(), domain.InboundMessage{
		Source: domain.SourceHost, ChatID: "7001", ActorID: "h1", Text: "/help",
	})
	if !strings.Contains(reply.Text, "payment approvals") {
		t.Fatalf("expected host help text, got %q", reply.Text)
	}
}

func TestDispatchHost_NoPendingDecision(t *testing.T) {
	f := newFixture(t)

	reply := f.asst.dispatchHost(context.Background(), domain.InboundMessage{
		Source: domain.SourceHost, ChatID: "7001", ActorID: "h1", Text: "yes",
	})
	if !strings.Contains(reply.Text, "No pending payment requests") {
		t.Fatalf("expected no-pending reply, got %q", reply.Text)
	}
}
