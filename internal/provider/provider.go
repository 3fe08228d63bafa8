// Package provider talks to the chat completion vendors. Each vendor has its
// own adapter behind the Provider interface; all of them translate their
// streaming wire format into the same StreamEvent sequence.
package provider

import (
	"context"

	"github.com/thisisharsh7/seeva-ai-assistant/internal/models"
)

// Name identifies a vendor.
type Name string

const (
	Anthropic  Name = "anthropic"
	OpenAI     Name = "openai"
	OpenRouter Name = "openrouter"
	Ollama     Name = "ollama"
)

// Provider is implemented once per vendor.
type Provider interface {
	Name() Name

	// ChatStream sends req and returns the live event sequence. A non-success
	// HTTP status is classified and returned here; no stream is opened.
	ChatStream(ctx context.Context, req ChatRequest) (*Stream, error)

	// Chat sends a non-streaming request and returns the whole response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ValidateAPIKey issues a minimal request with apiKey and reports whether
	// the vendor accepted it.
	ValidateAPIKey(ctx context.Context, apiKey string) (bool, error)

	// AvailableModels lists the model IDs offered for this vendor, preferred
	// model first.
	AvailableModels() []string
}

type ChatMessage struct {
	Role    models.Role    `json:"role"`
	Content string         `json:"content"`
	Images  []models.Image `json:"images,omitempty"`
}

type ChatRequest struct {
	Messages    []ChatMessage `json:"messages"`
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type ChatResponse struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   *Usage `json:"usage,omitempty"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// merge fills zero fields of u from other.
func (u *Usage) merge(other *Usage) *Usage {
	if other == nil {
		return u
	}
	if u == nil {
		c := *other
		return &c
	}
	if other.InputTokens != 0 {
		u.InputTokens = other.InputTokens
	}
	if other.OutputTokens != 0 {
		u.OutputTokens = other.OutputTokens
	}
	return u
}

type EventType string

const (
	EventContentDelta EventType = "content_delta"
	EventMessageStart EventType = "message_start"
	EventMessageStop  EventType = "message_stop"
	EventError        EventType = "error"
)

// StreamEvent is the vendor independent stream item. Delta is set for
// content_delta, Usage optionally for message_stop and Message for error.
type StreamEvent struct {
	Type    EventType `json:"type"`
	Delta   string    `json:"delta,omitempty"`
	Usage   *Usage    `json:"usage,omitempty"`
	Message string    `json:"error,omitempty"`
}

func ContentDelta(text string) StreamEvent {
	return StreamEvent{Type: EventContentDelta, Delta: text}
}

func MessageStart() StreamEvent {
	return StreamEvent{Type: EventMessageStart}
}

func MessageStop(usage *Usage) StreamEvent {
	return StreamEvent{Type: EventMessageStop, Usage: usage}
}

func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: EventError, Message: message}
}
