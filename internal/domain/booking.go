package domain

import "time"

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentRejected PaymentStatus = "rejected"
)

// Booking is the terminal entity of the payment workflow. It is created once
// proof and identity details are both present, and mutated only by the
// payment coordinator.
type Booking struct {
	ID             string
	PropertyID     string
	GuestID        string
	GuestName      string
	CustomerName   string
	CustomerBank   string
	CheckIn        string
	CheckOut       string
	Nights         int
	Guests         int
	RequestedPrice float64
	FinalPrice     float64
	ProofRef       string
	Status         BookingStatus
	PaymentStatus  PaymentStatus
	CreatedAt      time.Time
	ConfirmedAt    *time.Time
}
