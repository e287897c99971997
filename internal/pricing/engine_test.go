package pricing

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staybot/internal/domain"
)

var testProperty = &domain.PropertyOffer{
	ID:        "villa-1",
	Name:      "Sunset Villa",
	BasePrice: 100,
	MinPrice:  80,
	MaxPrice:  120,
	MaxGuests: 4,
}

// testNow is fixed so urgency math is deterministic.
var testNow = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

func quoteFor(t *testing.T, checkIn, checkOut string, guests int) *Quote {
	t.Helper()
	q, err := Calculate(testProperty, &domain.DateRange{CheckIn: checkIn, CheckOut: checkOut}, guests, testNow)
	require.NoError(t, err)
	return q
}

func TestCalculate_StandardStay(t *testing.T) {
	// Six nights, far enough out for no urgency markup.
	q := quoteFor(t, "2026-09-15", "2026-09-21", 2)

	assert.Equal(t, 6, q.Nights)
	assert.Equal(t, 1.0, q.UrgencyMultiplier)
	assert.Equal(t, 1.0, q.LongStayFactor)
	assert.InDelta(t, 600, q.Total, 0.001)
	assert.InDelta(t, 480, q.MinTotal, 0.001)
}

func TestCalculate_UrgencyLadder(t *testing.T) {
	cases := []struct {
		checkIn string
		want    float64
	}{
		{"2026-09-01", 1.20}, // today
		{"2026-09-02", 1.15},
		{"2026-09-03", 1.10},
		{"2026-09-05", 1.05},
		{"2026-09-08", 1.05}, // exactly 7 days out
		{"2026-09-09", 1.00},
	}
	for _, tc := range cases {
		out := mustAddDays(t, tc.checkIn, 3)
		q := quoteFor(t, tc.checkIn, out, 2)
		assert.Equal(t, tc.want, q.UrgencyMultiplier, "check-in %s", tc.checkIn)
	}
}

func TestCalculate_LongStayDiscount(t *testing.T) {
	q := quoteFor(t, "2026-09-15", "2026-09-22", 2) // 7 nights
	assert.Equal(t, 0.95, q.LongStayFactor)
	// The floor also drops 5% for week-long stays.
	assert.InDelta(t, 80*0.95*7, q.MinTotal, 0.001)

	q = quoteFor(t, "2026-09-15", "2026-09-29", 2) // 14 nights
	assert.Equal(t, 0.90, q.LongStayFactor)
}

func TestCalculate_Validation(t *testing.T) {
	_, err := Calculate(testProperty, &domain.DateRange{CheckIn: "2026-08-20", CheckOut: "2026-08-25"}, 2, testNow)
	require.Error(t, err, "past check-in")

	_, err = Calculate(testProperty, &domain.DateRange{CheckIn: "2026-09-15", CheckOut: "2026-09-15"}, 2, testNow)
	require.Error(t, err, "zero nights")

	_, err = Calculate(testProperty, &domain.DateRange{CheckIn: "2026-09-15", CheckOut: "2026-09-20"}, 9, testNow)
	require.Error(t, err, "too many guests")

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "guests", verr.Field)
}

func TestNegotiate_AtOrAboveTotal(t *testing.T) {
	q := quoteFor(t, "2026-09-15", "2026-09-21", 2) // total 600

	out := Negotiate(700, q)
	assert.True(t, out.Accepted)
	// Overpaying is corrected down to the standard total.
	assert.InDelta(t, 600, out.FinalPrice, 0.001)

	out = Negotiate(600, q)
	assert.True(t, out.Accepted)
	assert.InDelta(t, 600, out.FinalPrice, 0.001)
}

func TestNegotiate_ShortStayRefused(t *testing.T) {
	q := quoteFor(t, "2026-09-15", "2026-09-17", 2) // 2 nights

	out := Negotiate(150, q)
	assert.False(t, out.Accepted)
	assert.InDelta(t, q.Total, out.FinalPrice, 0.001)
	assert.Contains(t, out.Message, "longer stays")
}

func TestNegotiate_InRangeAcceptedVerbatim(t *testing.T) {
	q := quoteFor(t, "2026-09-15", "2026-09-21", 2) // total 600, floor 480

	out := Negotiate(540, q)
	assert.True(t, out.Accepted)
	assert.InDelta(t, 540, out.FinalPrice, 0.001)
}

func TestNegotiate_NearFloorGetsBestRate(t *testing.T) {
	q := quoteFor(t, "2026-09-15", "2026-09-21", 2) // floor 480, 80/night

	out := Negotiate(483, q) // 80.50/night, within $1 of the floor rate
	assert.True(t, out.Accepted)
	assert.InDelta(t, 480, out.FinalPrice, 0.001)
	assert.Contains(t, out.Message, "best rate")
}

func TestNegotiate_BelowFloorRefusedWithoutRevealingIt(t *testing.T) {
	q := quoteFor(t, "2026-09-15", "2026-09-21", 2) // floor 480

	out := Negotiate(300, q)
	assert.False(t, out.Accepted)
	assert.InDelta(t, q.Total, out.FinalPrice, 0.001)
	assert.NotContains(t, out.Message, fmt.Sprintf("%.2f", q.MinTotal))
}

func TestNegotiate_NeverBelowFloor(t *testing.T) {
	q := quoteFor(t, "2026-09-15", "2026-09-21", 2)

	for req := 100.0; req <= 700; req += 17 {
		out := Negotiate(req, q)
		if out.Accepted {
			assert.GreaterOrEqual(t, out.FinalPrice+0.001, q.MinTotal,
				"accepted %.2f below floor for request %.2f", out.FinalPrice, req)
		}
	}
}

func TestNegotiate_MonotonicInRequest(t *testing.T) {
	q := quoteFor(t, "2026-09-15", "2026-09-21", 2) // floor 480, total 600

	// Sweeping the whole acceptable band, a higher request must never
	// produce a lower final price. The band edges matter most: the
	// near-floor best-rate window and the crossover back to verbatim
	// acceptance.
	prev := 0.0
	for req := q.MinTotal; req <= q.Total+1; req += 0.25 {
		out := Negotiate(req, q)
		require.True(t, out.Accepted, "request %.2f should be accepted", req)
		require.GreaterOrEqual(t, out.FinalPrice+0.001, prev,
			"final %.2f for request %.2f dropped below previous %.2f", out.FinalPrice, req, prev)
		prev = out.FinalPrice
	}
}

func TestNegotiateWithoutFigure(t *testing.T) {
	q := quoteFor(t, "2026-09-15", "2026-09-21", 2) // 6 nights, total 600
	out := NegotiateWithoutFigure(q)
	assert.True(t, out.Accepted)
	assert.InDelta(t, 570, out.FinalPrice, 0.001) // 5% off

	q = quoteFor(t, "2026-09-15", "2026-09-22", 2) // 7 nights
	out = NegotiateWithoutFigure(q)
	assert.True(t, out.Accepted)
	assert.InDelta(t, q.Total*0.9, out.FinalPrice, 0.001) // 10% off
	assert.GreaterOrEqual(t, out.FinalPrice+0.001, q.MinTotal)

	q = quoteFor(t, "2026-09-15", "2026-09-17", 2) // 2 nights
	out = NegotiateWithoutFigure(q)
	assert.False(t, out.Accepted)
}

func mustAddDays(t *testing.T, date string, days int) string {
	t.Helper()
	d, err := time.Parse("2006-01-02", date)
	require.NoError(t, err)
	return d.AddDate(0, 0, days).Format("2006-01-02")
}

// Guard against the floor leaking into any negotiation message for a stay
// where floor and total differ.
func TestNegotiate_FloorAbsentFromRefusals(t *testing.T) {
	q := quoteFor(t, "2026-09-15", "2026-09-21", 2)
	floor := fmt.Sprintf("$%.2f", q.MinTotal)

	for _, req := range []float64{100, 200, 400, 479} {
		out := Negotiate(req, q)
		if !out.Accepted && strings.Contains(out.Message, floor) {
			t.Errorf("request %.0f: refusal message reveals the floor: %s", req, out.Message)
		}
	}
}
