// Package llm runs one chat turn: it records the user's message, asks the
// selected vendor for an answer, forwards the answer's events as they arrive
// and records the finished reply.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/thisisharsh7/seeva-ai-assistant/internal/models"
	"github.com/thisisharsh7/seeva-ai-assistant/internal/provider"
	"go.uber.org/zap"
)

const (
	DefaultSystemPrompt = "You are a helpful AI assistant."
	DefaultTemperature  = 0.7
)

// Store is the part of the conversation store a turn needs.
type Store interface {
	CreateMessage(msg *models.Message) error
	GetMessages(threadID string) ([]models.Message, error)
}

// Sink receives every stream event in order. Returning an error aborts the
// turn.
type Sink func(event provider.StreamEvent) error

type SendRequest struct {
	ThreadID string
	Content  string
	Images   []models.Image

	Provider provider.Name
	APIKey   string
	// Model falls back to the vendor's preferred model when empty.
	Model     string
	MaxTokens *int

	// Stream selects the streaming endpoint. Otherwise the complete answer
	// is fetched and replayed to the sink as a single delta.
	Stream bool
}

type Service struct {
	store        Store
	providers    provider.Factory
	systemPrompt string
	temperature  float64
	maxTokens    int
	logger       *zap.Logger
}

type Option func(*Service)

func WithSystemPrompt(prompt string) Option {
	return func(s *Service) {
		s.systemPrompt = prompt
	}
}

func WithTemperature(temperature float64) Option {
	return func(s *Service) {
		s.temperature = temperature
	}
}

func WithMaxTokens(maxTokens int) Option {
	return func(s *Service) {
		s.maxTokens = maxTokens
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, providers provider.Factory, opts ...Option) *Service {
	s := &Service{
		store:        store,
		providers:    providers,
		systemPrompt: DefaultSystemPrompt,
		temperature:  DefaultTemperature,
		maxTokens:    provider.DefaultMaxTokens,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// SendMessage runs one turn. The user message is stored before the vendor is
// called and stays stored whatever happens next. The assistant message is
// stored only once the stream has ended normally, so a failed turn leaves no
// partial reply behind.
func (s *Service) SendMessage(ctx context.Context, req SendRequest, sink Sink) (*models.Message, error) {
	p, err := s.providers(req.Provider, req.APIKey)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = p.AvailableModels()[0]
	}
	logger := s.logger.With(
		zap.String("thread_id", req.ThreadID),
		zap.String("provider", string(p.Name())),
		zap.String("model", model),
	)

	userMsg := &models.Message{
		ThreadID: req.ThreadID,
		Role:     models.RoleUser,
		Content:  req.Content,
		Images:   req.Images,
	}
	if err := s.store.CreateMessage(userMsg); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	history, err := s.store.GetMessages(req.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}

	chatReq := s.buildRequest(history, model, req)
	logger.Info("sending chat request", zap.Int("history", len(chatReq.Messages)), zap.Bool("stream", req.Stream))

	stream, err := s.open(ctx, p, chatReq)
	if err != nil {
		logger.Warn("chat request failed", zap.Error(err))
		return nil, err
	}
	defer stream.Close()

	var (
		content strings.Builder
		usage   *provider.Usage
	)
	for event, err := range stream.Events() {
		if err != nil {
			logger.Warn("stream failed", zap.Error(err))
			return nil, err
		}
		if err := sink(event); err != nil {
			return nil, fmt.Errorf("failed to deliver stream event: %w", err)
		}

		switch event.Type {
		case provider.EventContentDelta:
			content.WriteString(event.Delta)
		case provider.EventMessageStop:
			usage = event.Usage
		case provider.EventError:
			logger.Warn("vendor ended stream with error", zap.String("error", event.Message))
			return nil, &provider.APIError{Message: event.Message}
		}
	}

	metadata := models.Metadata{
		models.MetaModel:    model,
		models.MetaProvider: string(p.Name()),
	}
	if usage != nil {
		metadata[models.MetaTokens] = models.TokenUsage{Input: usage.InputTokens, Output: usage.OutputTokens}
	}

	reply := &models.Message{
		ThreadID: req.ThreadID,
		Role:     models.RoleAssistant,
		Content:  content.String(),
		Metadata: metadata,
	}
	if err := s.store.CreateMessage(reply); err != nil {
		return nil, fmt.Errorf("failed to save assistant message: %w", err)
	}

	logger.Info("chat turn completed", zap.Int("chars", len(reply.Content)))
	return reply, nil
}

func (s *Service) open(ctx context.Context, p provider.Provider, req provider.ChatRequest) (*provider.Stream, error) {
	if req.Stream {
		return p.ChatStream(ctx, req)
	}
	resp, err := p.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	return provider.NewSingleEventStream(resp), nil
}

// buildRequest turns the stored history into the vendor request. System
// messages in the history are not sent; the configured prompt replaces them.
func (s *Service) buildRequest(history []models.Message, model string, req SendRequest) provider.ChatRequest {
	messages := make([]provider.ChatMessage, 0, len(history))
	for _, msg := range history {
		if msg.Role == models.RoleSystem {
			continue
		}
		messages = append(messages, provider.ChatMessage{
			Role:    msg.Role,
			Content: msg.Content,
			Images:  msg.Images,
		})
	}

	maxTokens := s.maxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	temperature := s.temperature

	return provider.ChatRequest{
		Messages:    messages,
		Model:       model,
		System:      s.systemPrompt,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
		Stream:      req.Stream,
	}
}

type KeyValidation struct {
	Valid           bool     `json:"valid"`
	AvailableModels []string `json:"availableModels"`
	DefaultModel    string   `json:"defaultModel"`
}

// ValidateAPIKey probes the vendor with apiKey. Models are only reported for
// a valid key.
func (s *Service) ValidateAPIKey(ctx context.Context, name provider.Name, apiKey string) (*KeyValidation, error) {
	p, err := s.providers(name, apiKey)
	if err != nil {
		return nil, err
	}

	valid, err := p.ValidateAPIKey(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	result := &KeyValidation{Valid: valid, AvailableModels: []string{}}
	if valid {
		result.AvailableModels = p.AvailableModels()
		result.DefaultModel = result.AvailableModels[0]
	}
	return result, nil
}

// AvailableModels lists the models of a vendor without contacting it.
func (s *Service) AvailableModels(name provider.Name) ([]string, error) {
	p, err := s.providers(name, "")
	if err != nil {
		return nil, err
	}
	return p.AvailableModels(), nil
}
