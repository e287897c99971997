package domain

import "time"

// Message sources. Guest and host traffic flow through the same bus but
// are handled by different sides of the assistant.
const (
	SourceGuest = "guest"
	SourceHost  = "host"
)

type InboundMessage struct {
	Source     string
	ChatID     string
	ActorID    string
	PropertyID string
	Text       string
	ImageRef   string // local path of a downloaded photo, empty when none
	Timestamp  time.Time
}

type OutboundMessage struct {
	Source   string
	ChatID   string
	Text     string
	ImageRef string // attach a photo when set
}
