// Package pricing computes deterministic stay quotes and evaluates guest
// counter-offers. No generation model is ever consulted for money.
package pricing

import (
	"time"

	"staybot/internal/domain"
)

// Quote is the full price breakdown for a stay. MinTotal is the internal
// negotiation floor and is never rendered to the guest directly.
type Quote struct {
	BasePerNight      float64
	AdjustedPerNight  float64
	Nights            int
	DaysUntilCheckIn  int
	Guests            int
	Total             float64
	MinTotal          float64
	MaxTotal          float64
	UrgencyMultiplier float64
	LongStayFactor    float64
}

// Calculate prices a stay on a property. Urgency raises the nightly rate as
// check-in approaches; long stays earn a discount; stays of 7+ nights also
// lower the negotiation floor by 5%.
func Calculate(p *domain.PropertyOffer, dates *domain.DateRange, guests int, now time.Time) (*Quote, error) {
	checkIn, err := dates.CheckInTime()
	if err != nil {
		return nil, &domain.ValidationError{Field: "check_in", Reason: "unparseable date"}
	}

	nights := dates.Nights()
	if nights <= 0 {
		return nil, &domain.ValidationError{Field: "dates", Reason: "check-out must be after check-in"}
	}
	if guests > p.MaxGuests {
		return nil, &domain.ValidationError{Field: "guests", Reason: "exceeds property capacity"}
	}

	// Compare calendar days so a check-in later today counts as zero days out.
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	daysUntil := int(checkIn.Sub(today).Hours() / 24)
	if daysUntil < 0 {
		return nil, &domain.ValidationError{Field: "check_in", Reason: "date is in the past"}
	}

	urgency := 1.0
	switch {
	case daysUntil == 0:
		urgency = 1.20
	case daysUntil == 1:
		urgency = 1.15
	case daysUntil == 2:
		urgency = 1.10
	case daysUntil <= 7:
		urgency = 1.05
	}

	longStay := 1.0
	switch {
	case nights >= 14:
		longStay = 0.90
	case nights >= 7:
		longStay = 0.95
	}

	adjusted := p.BasePrice * urgency * longStay

	minPerNight := p.MinPrice
	if nights >= 7 {
		minPerNight *= 0.95
	}

	q := &Quote{
		BasePerNight:      p.BasePrice,
		AdjustedPerNight:  adjusted,
		Nights:            nights,
		DaysUntilCheckIn:  daysUntil,
		Guests:            guests,
		Total:             adjusted * float64(nights),
		MinTotal:          minPerNight * float64(nights),
		MaxTotal:          p.MaxPrice * float64(nights),
		UrgencyMultiplier: urgency,
		LongStayFactor:    longStay,
	}
	return q, nil
}
