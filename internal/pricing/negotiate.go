package pricing

import "fmt"

// minNightsForDiscount is the shortest stay eligible for any negotiation.
const minNightsForDiscount = 3

// Outcome is the result of evaluating a guest counter-offer.
type Outcome struct {
	Accepted   bool
	FinalPrice float64
	Message    string
}

// Negotiate evaluates a requested total against a quote. The branches run
// in a fixed order; the refusal message for a below-floor request quotes
// the standard total, never the floor itself.
func Negotiate(requested float64, q *Quote) Outcome {
	nights := q.Nights

	if requested >= q.Total {
		return Outcome{
			Accepted:   true,
			FinalPrice: q.Total,
			Message:    fmt.Sprintf("Great! The price is $%.2f for your stay.", q.Total),
		}
	}

	if nights < minNightsForDiscount {
		return Outcome{
			Accepted:   false,
			FinalPrice: q.Total,
			Message: fmt.Sprintf(
				"For stays of %d nights, the rate is $%.2f ($%.2f per night). We offer discounts for longer stays of %d+ nights.",
				nights, q.Total, q.AdjustedPerNight, minNightsForDiscount),
		}
	}

	if requested >= q.MinTotal {
		perNight := requested / float64(nights)
		minPerNight := q.MinTotal / float64(nights)

		// Asking right at the floor gets the floor as a named best rate.
		if diff := perNight - minPerNight; diff < 1.0 && diff > -1.0 {
			return Outcome{
				Accepted:   true,
				FinalPrice: q.MinTotal,
				Message: fmt.Sprintf(
					"I can offer you $%.2f for your %d-night stay ($%.2f per night). This is our best rate for longer stays!",
					q.MinTotal, nights, minPerNight),
			}
		}

		// Counter slightly above the request when there is room to do so.
		counter := requested * 0.95
		if counter < q.MinTotal {
			counter = q.MinTotal
		}
		if counter > requested && counter < q.Total*0.9 {
			return Outcome{
				Accepted:   true,
				FinalPrice: counter,
				Message: fmt.Sprintf(
					"For your %d-night stay, I can offer $%.2f ($%.2f per night). This is a great rate for a longer stay!",
					nights, counter, counter/float64(nights)),
			}
		}
		return Outcome{
			Accepted:   true,
			FinalPrice: requested,
			Message: fmt.Sprintf(
				"I can offer you $%.2f for your %d-night stay ($%.2f per night). This is our discounted rate for longer stays!",
				requested, nights, perNight),
		}
	}

	// Below the floor: refuse without revealing it.
	return Outcome{
		Accepted:   false,
		FinalPrice: q.Total,
		Message: fmt.Sprintf(
			"I'm sorry, but I can't go that low. The best I can offer for %d nights is $%.2f ($%.2f per night). This is already a discounted rate for longer stays.",
			nights, q.Total, q.AdjustedPerNight),
	}
}

// NegotiateWithoutFigure handles a discount request that names no number.
// Stays of a week or more get 10% off, shorter eligible stays 5%.
func NegotiateWithoutFigure(q *Quote) Outcome {
	nights := q.Nights

	if nights < minNightsForDiscount {
		return Outcome{
			Accepted:   false,
			FinalPrice: q.Total,
			Message: fmt.Sprintf(
				"For stays of %d nights, the rate is $%.2f ($%.2f per night). We offer discounts for longer stays of %d+ nights.",
				nights, q.Total, q.AdjustedPerNight, minNightsForDiscount),
		}
	}

	discount := 0.05
	if nights >= 7 {
		discount = 0.10
	}
	offer := q.Total * (1 - discount)
	if offer < q.MinTotal {
		offer = q.MinTotal
	}
	return Outcome{
		Accepted:   true,
		FinalPrice: offer,
		Message: fmt.Sprintf(
			"For your %d-night stay, I can offer $%.2f ($%.2f per night). That is %.0f%% off our standard rate!",
			nights, offer, offer/float64(nights), discount*100),
	}
}
