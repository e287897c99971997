package domain

import "context"

// GenMessage is one role-tagged message in a generation request.
type GenMessage struct {
	Role    string `json:"role"` // system | user | assistant
	Content string `json:"content"`
}

type GenRequest struct {
	Messages    []GenMessage
	Model       string
	MaxTokens   int
	Temperature float64
}

// Provider is a text-generation backend. Pricing and payment decisions
// never depend on provider output; it only renders conversational text.
type Provider interface {
	Generate(ctx context.Context, req GenRequest) (string, error)
	Name() string
	Models() []string
	Healthy(ctx context.Context) error
}
