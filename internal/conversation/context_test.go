package conversation

import (
	"context"
	"log/slog"
	"os"
	"reflect"
	"testing"
	"time"

	"staybot/internal/domain"
)

// fakeEventStore is an in-memory EventStore for tests. Query returns events
// newest-first like the SQLite implementation.
type fakeEventStore struct {
	events []domain.InteractionEvent
	nextID int64
}

func (f *fakeEventStore) Append(_ context.Context, ev domain.InteractionEvent) (int64, error) {
	f.nextID++
	ev.ID = f.nextID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	f.events = append(f.events, ev)
	return ev.ID, nil
}

func (f *fakeEventStore) Query(_ context.Context, filter domain.EventFilter) ([]domain.InteractionEvent, error) {
	var out []domain.InteractionEvent
	for i := len(f.events) - 1; i >= 0; i-- {
		ev := f.events[i]
		if filter.ActorID != "" && ev.ActorID != filter.ActorID {
			continue
		}
		if filter.PropertyID != "" && ev.PropertyID != filter.PropertyID {
			continue
		}
		if len(filter.Kinds) > 0 && !kindIn(ev.Kind, filter.Kinds) {
			continue
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

func (f *fakeEventStore) Resolve(_ context.Context, eventID int64) error {
	for i := range f.events {
		if f.events[i].ID == eventID {
			f.events[i].Resolved = true
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeEventStore) DeleteActorEvents(_ context.Context, actorID string) error {
	var kept []domain.InteractionEvent
	for _, ev := range f.events {
		if ev.ActorID != actorID {
			kept = append(kept, ev)
		}
	}
	f.events = kept
	return nil
}

func (f *fakeEventStore) Close() error { return nil }

func kindIn(k domain.EventKind, kinds []domain.EventKind) bool {
	for _, kk := range kinds {
		if k == kk {
			return true
		}
	}
	return false
}

func testReconstructor(store domain.EventStore) *Reconstructor {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return NewReconstructor(store, 50, logger)
}

func TestContext_Empty(t *testing.T) {
	r := testReconstructor(&fakeEventStore{})

	cc, err := r.Context(context.Background(), "guest-1", "villa-1")
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if cc.Dates != nil || cc.NegotiatedPrice != 0 || cc.Persona != "" || cc.BookingIntent {
		t.Errorf("expected empty context, got %+v", cc)
	}
}

func TestContext_MostRecentWins(t *testing.T) {
	store := &fakeEventStore{}
	ctx := context.Background()

	old := &domain.DateRange{CheckIn: "2026-09-01", CheckOut: "2026-09-05"}
	newer := &domain.DateRange{CheckIn: "2026-10-10", CheckOut: "2026-10-15"}

	store.Append(ctx, domain.InteractionEvent{
		Kind: domain.EventAgentDecision, ActorID: "guest-1", PropertyID: "villa-1",
		Attrs: map[string]any{domain.AttrDates: old.Map(), domain.AttrBookingIntent: true},
	})
	store.Append(ctx, domain.InteractionEvent{
		Kind: domain.EventAgentDecision, ActorID: "guest-1", PropertyID: "villa-1",
		Attrs: map[string]any{domain.AttrDates: newer.Map(), domain.AttrBookingIntent: false},
	})

	cc, err := testReconstructor(store).Context(ctx, "guest-1", "villa-1")
	if err != nil {
		t.Fatal(err)
	}
	if !cc.Dates.Equal(newer) {
		t.Errorf("dates = %+v, want most recent %+v", cc.Dates, newer)
	}
	// The newest explicit false must not be shadowed by the older true.
	if cc.BookingIntent {
		t.Error("booking intent should be false per most recent event")
	}
}

func TestContext_RepeatedReconstructionIdentical(t *testing.T) {
	store := &fakeEventStore{}
	ctx := context.Background()

	store.Append(ctx, domain.InteractionEvent{
		Kind: domain.EventAgentDecision, ActorID: "guest-1", PropertyID: "villa-1",
		Attrs: map[string]any{domain.AttrPersona: "booking", domain.AttrBookingIntent: true},
	})
	store.Append(ctx, domain.InteractionEvent{
		Kind: domain.EventAgentDecision, ActorID: "guest-1", PropertyID: "villa-1",
		Attrs: map[string]any{domain.AttrNegotiatedPrice: 540.0,
			domain.AttrDates: map[string]any{"check_in": "2026-09-10", "check_out": "2026-09-16"}},
	})
	before := len(store.events)

	r := testReconstructor(store)
	first, err := r.Context(ctx, "guest-1", "villa-1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Context(ctx, "guest-1", "villa-1")
	if err != nil {
		t.Fatal(err)
	}

	// Reconstruction is a pure read: same output every time, and the log
	// gains nothing from being read.
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated reconstruction differs:\nfirst  %+v\nsecond %+v", first, second)
	}
	if len(store.events) != before {
		t.Errorf("event count changed from %d to %d during reconstruction", before, len(store.events))
	}
}

func TestContext_ScopeIsolation(t *testing.T) {
	store := &fakeEventStore{}
	ctx := context.Background()

	store.Append(ctx, domain.InteractionEvent{
		Kind: domain.EventAgentDecision, ActorID: "guest-1", PropertyID: "villa-1",
		Attrs: map[string]any{domain.AttrNegotiatedPrice: 500.0,
			domain.AttrDates: map[string]any{"check_in": "2026-09-01", "check_out": "2026-09-06"}},
	})
	store.Append(ctx, domain.InteractionEvent{
		Kind: domain.EventAgentDecision, ActorID: "guest-2", PropertyID: "villa-1",
		Attrs: map[string]any{domain.AttrNegotiatedPrice: 900.0},
	})

	cc, _ := testReconstructor(store).Context(ctx, "guest-1", "villa-1")
	if cc.NegotiatedPrice != 500 {
		t.Errorf("price = %v, want 500", cc.NegotiatedPrice)
	}

	cc, _ = testReconstructor(store).Context(ctx, "guest-1", "loft-2")
	if cc.NegotiatedPrice != 0 {
		t.Errorf("other property should have empty context, got price %v", cc.NegotiatedPrice)
	}
}

func TestContext_DatesFromRawText(t *testing.T) {
	store := &fakeEventStore{}
	ctx := context.Background()

	store.Append(ctx, domain.InteractionEvent{
		Kind: domain.EventGuestMessage, ActorID: "guest-1", PropertyID: "villa-1",
		Message: "I'd like to come 24th Nov - 30th Nov 2025",
	})

	cc, _ := testReconstructor(store).Context(ctx, "guest-1", "villa-1")
	if cc.Dates == nil || cc.Dates.CheckIn != "2025-11-24" {
		t.Errorf("dates = %+v, want extracted from message text", cc.Dates)
	}
}

func TestContext_BookingConfirmedStatus(t *testing.T) {
	store := &fakeEventStore{}
	ctx := context.Background()

	store.Append(ctx, domain.InteractionEvent{
		Kind: domain.EventBookingConfirmed, ActorID: "guest-1", PropertyID: "villa-1",
	})

	cc, _ := testReconstructor(store).Context(ctx, "guest-1", "villa-1")
	if cc.BookingStatus != "confirmed" {
		t.Errorf("status = %q, want confirmed", cc.BookingStatus)
	}
}

func TestSaveContext_RecordsTransitions(t *testing.T) {
	store := &fakeEventStore{}
	ctx := context.Background()
	r := testReconstructor(store)

	if err := r.SaveContext(ctx, "guest-1", "villa-1", ContextUpdate{Persona: domain.PersonaInquiry}); err != nil {
		t.Fatal(err)
	}
	if err := r.SaveContext(ctx, "guest-1", "villa-1", ContextUpdate{Persona: domain.PersonaBooking}); err != nil {
		t.Fatal(err)
	}

	cc, err := r.Context(ctx, "guest-1", "villa-1")
	if err != nil {
		t.Fatal(err)
	}
	if cc.Persona != domain.PersonaBooking {
		t.Errorf("persona = %s, want booking", cc.Persona)
	}
	if len(cc.Transitions) != 1 {
		t.Fatalf("transitions = %d, want 1", len(cc.Transitions))
	}
	tr := cc.Transitions[0]
	if tr.From != domain.PersonaInquiry || tr.To != domain.PersonaBooking {
		t.Errorf("transition = %+v, want inquiry -> booking", tr)
	}
}

func TestSaveContext_NoopWithoutFields(t *testing.T) {
	store := &fakeEventStore{}
	r := testReconstructor(store)

	if err := r.SaveContext(context.Background(), "guest-1", "villa-1", ContextUpdate{}); err != nil {
		t.Fatal(err)
	}
	if len(store.events) != 0 {
		t.Errorf("empty update should append nothing, got %d events", len(store.events))
	}
}

func TestHistory_ChronologicalRoles(t *testing.T) {
	store := &fakeEventStore{}
	ctx := context.Background()

	store.Append(ctx, domain.InteractionEvent{
		Kind: domain.EventGuestMessage, ActorID: "guest-1", PropertyID: "villa-1", Message: "hi",
	})
	store.Append(ctx, domain.InteractionEvent{
		Kind: domain.EventAgentResponse, ActorID: "guest-1", PropertyID: "villa-1", Message: "hello!",
	})
	store.Append(ctx, domain.InteractionEvent{
		Kind: domain.EventAgentDecision, ActorID: "guest-1", PropertyID: "villa-1", Message: "context update",
	})

	msgs, err := testReconstructor(store).History(ctx, "guest-1", "villa-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("history = %d messages, want 2 (decisions excluded)", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "hi" {
		t.Errorf("first = %+v, want user/hi", msgs[0])
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != "hello!" {
		t.Errorf("second = %+v, want assistant/hello!", msgs[1])
	}
}
