package domain

import "context"

// Channel is a user-facing transport (guest bot, host bot).
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
	Send(ctx context.Context, chatID string, text string) error
}

// PhotoSender is implemented by channels that can deliver a local image
// file alongside a caption.
type PhotoSender interface {
	SendPhoto(ctx context.Context, chatID string, caption string, path string) error
}
