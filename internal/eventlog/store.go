package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"staybot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.EventStore and domain.BookingStore
// using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Set connection pool (single connection for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		kind         TEXT NOT NULL,
		actor_id     TEXT NOT NULL,
		property_id  TEXT,
		message      TEXT,
		attrs        TEXT,
		resolved     INTEGER DEFAULT 0,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_events_actor ON events(actor_id, property_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind, resolved);

	CREATE TABLE IF NOT EXISTS bookings (
		id              TEXT PRIMARY KEY,
		property_id     TEXT NOT NULL,
		guest_id        TEXT NOT NULL,
		guest_name      TEXT,
		customer_name   TEXT,
		customer_bank   TEXT,
		check_in        TEXT NOT NULL,
		check_out       TEXT NOT NULL,
		nights          INTEGER DEFAULT 0,
		guests          INTEGER DEFAULT 0,
		requested_price REAL DEFAULT 0,
		final_price     REAL DEFAULT 0,
		proof_ref       TEXT,
		status          TEXT NOT NULL,
		payment_status  TEXT NOT NULL,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
		confirmed_at    DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_bookings_property ON bookings(property_id, status);
	CREATE INDEX IF NOT EXISTS idx_bookings_guest ON bookings(guest_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Append(ctx context.Context, ev domain.InteractionEvent) (int64, error) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	var attrs any
	if len(ev.Attrs) > 0 {
		raw, err := json.Marshal(ev.Attrs)
		if err != nil {
			return 0, fmt.Errorf("encode event attrs: %w", err)
		}
		attrs = string(raw)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (kind, actor_id, property_id, message, attrs, resolved, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(ev.Kind), ev.ActorID, ev.PropertyID, ev.Message, attrs, boolToInt(ev.Resolved), ev.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}
	return res.LastInsertId()
}

// Query returns events newest-first. All context reconstruction depends on
// that ordering.
func (s *SQLiteStore) Query(ctx context.Context, f domain.EventFilter) ([]domain.InteractionEvent, error) {
	var (
		where []string
		args  []any
	)
	if f.ActorID != "" {
		where = append(where, "actor_id = ?")
		args = append(args, f.ActorID)
	}
	if f.PropertyID != "" {
		where = append(where, "property_id = ?")
		args = append(args, f.PropertyID)
	}
	if len(f.Kinds) > 0 {
		ph := make([]string, len(f.Kinds))
		for i, k := range f.Kinds {
			ph[i] = "?"
			args = append(args, string(k))
		}
		where = append(where, "kind IN ("+strings.Join(ph, ", ")+")")
	}
	if f.UnresolvedOnly {
		where = append(where, "resolved = 0")
	}

	q := `SELECT id, kind, actor_id, property_id, message, attrs, resolved, created_at FROM events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []domain.InteractionEvent
	for rows.Next() {
		var (
			ev       domain.InteractionEvent
			kind     string
			attrs    sql.NullString
			resolved int
		)
		if err := rows.Scan(&ev.ID, &kind, &ev.ActorID, &ev.PropertyID, &ev.Message,
			&attrs, &resolved, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Kind = domain.EventKind(kind)
		ev.Resolved = resolved != 0
		if attrs.Valid && attrs.String != "" {
			if err := json.Unmarshal([]byte(attrs.String), &ev.Attrs); err != nil {
				s.logger.Warn("skipping malformed event attrs", "event_id", ev.ID, "error", err)
				ev.Attrs = nil
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) Resolve(ctx context.Context, eventID int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE events SET resolved = 1 WHERE id = ?`, eventID)
	if err != nil {
		return fmt.Errorf("resolve event %d: %w", eventID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteActorEvents(ctx context.Context, actorID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE actor_id = ?`, actorID)
	if err != nil {
		return fmt.Errorf("delete events for %s: %w", actorID, err)
	}
	return nil
}

func (s *SQLiteStore) CreateBooking(ctx context.Context, b *domain.Booking) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bookings (id, property_id, guest_id, guest_name, customer_name, customer_bank,
		 check_in, check_out, nights, guests, requested_price, final_price, proof_ref,
		 status, payment_status, created_at, confirmed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.PropertyID, b.GuestID, b.GuestName, b.CustomerName, b.CustomerBank,
		b.CheckIn, b.CheckOut, b.Nights, b.Guests, b.RequestedPrice, b.FinalPrice, b.ProofRef,
		string(b.Status), string(b.PaymentStatus), b.CreatedAt, b.ConfirmedAt,
	)
	if err != nil {
		return fmt.Errorf("create booking: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateBooking(ctx context.Context, b *domain.Booking) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bookings SET customer_name=?, customer_bank=?, proof_ref=?,
		 status=?, payment_status=?, confirmed_at=? WHERE id=?`,
		b.CustomerName, b.CustomerBank, b.ProofRef,
		string(b.Status), string(b.PaymentStatus), b.ConfirmedAt, b.ID,
	)
	if err != nil {
		return fmt.Errorf("update booking %s: %w", b.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	row := s.db.QueryRowContext(ctx, selectBooking+` WHERE id = ?`, id)
	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return b, err
}

func (s *SQLiteStore) OldestPendingBooking(ctx context.Context, propertyIDs []string) (*domain.Booking, error) {
	if len(propertyIDs) == 0 {
		return nil, domain.ErrNoPending
	}
	ph := make([]string, len(propertyIDs))
	args := make([]any, 0, len(propertyIDs))
	for i, id := range propertyIDs {
		ph[i] = "?"
		args = append(args, id)
	}
	row := s.db.QueryRowContext(ctx,
		selectBooking+` WHERE property_id IN (`+strings.Join(ph, ", ")+`)
		 AND status = ? AND payment_status = ?
		 ORDER BY created_at ASC, id ASC LIMIT 1`,
		append(args, string(domain.BookingPending), string(domain.PaymentPending))...,
	)
	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNoPending
	}
	return b, err
}

func (s *SQLiteStore) ConfirmedOverlap(ctx context.Context, propertyID, checkIn, checkOut string) (*domain.Booking, error) {
	// ISO dates compare correctly as strings. Half-open ranges: a stay
	// ending on another's check-in day does not collide.
	row := s.db.QueryRowContext(ctx,
		selectBooking+` WHERE property_id = ? AND status = ?
		 AND check_in < ? AND check_out > ?
		 ORDER BY created_at ASC LIMIT 1`,
		propertyID, string(domain.BookingConfirmed), checkOut, checkIn,
	)
	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

func (s *SQLiteStore) DeleteGuestBookings(ctx context.Context, guestID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bookings WHERE guest_id = ?`, guestID)
	if err != nil {
		return fmt.Errorf("delete bookings for %s: %w", guestID, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const selectBooking = `SELECT id, property_id, guest_id, guest_name, customer_name, customer_bank,
 check_in, check_out, nights, guests, requested_price, final_price, proof_ref,
 status, payment_status, created_at, confirmed_at FROM bookings`

func scanBooking(row *sql.Row) (*domain.Booking, error) {
	var (
		b           domain.Booking
		status      string
		payStatus   string
		confirmedAt sql.NullTime
	)
	err := row.Scan(&b.ID, &b.PropertyID, &b.GuestID, &b.GuestName, &b.CustomerName, &b.CustomerBank,
		&b.CheckIn, &b.CheckOut, &b.Nights, &b.Guests, &b.RequestedPrice, &b.FinalPrice, &b.ProofRef,
		&status, &payStatus, &b.CreatedAt, &confirmedAt)
	if err != nil {
		return nil, err
	}
	b.Status = domain.BookingStatus(status)
	b.PaymentStatus = domain.PaymentStatus(payStatus)
	if confirmedAt.Valid {
		b.ConfirmedAt = &confirmedAt.Time
	}
	return &b, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
