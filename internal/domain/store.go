package domain

import "context"

// EventStore is the append/query interface over the interaction log.
// Append-only by contract: Resolve is the single permitted mutation, flipping
// the resolved flag on payment-upload events.
type EventStore interface {
	Append(ctx context.Context, ev InteractionEvent) (int64, error)
	Query(ctx context.Context, f EventFilter) ([]InteractionEvent, error)
	Resolve(ctx context.Context, eventID int64) error
	DeleteActorEvents(ctx context.Context, actorID string) error
	Close() error
}

// BookingStore persists bookings created by the payment coordinator.
type BookingStore interface {
	CreateBooking(ctx context.Context, b *Booking) error
	UpdateBooking(ctx context.Context, b *Booking) error
	GetBooking(ctx context.Context, id string) (*Booking, error)
	// OldestPendingBooking returns the oldest booking with pending status and
	// pending payment among the given properties, or ErrNoPending.
	OldestPendingBooking(ctx context.Context, propertyIDs []string) (*Booking, error)
	// ConfirmedOverlap returns a confirmed booking overlapping the given
	// ISO date range on a property, or nil.
	ConfirmedOverlap(ctx context.Context, propertyID, checkIn, checkOut string) (*Booking, error)
	DeleteGuestBookings(ctx context.Context, guestID string) error
}
