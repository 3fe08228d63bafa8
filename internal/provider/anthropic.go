package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/thisisharsh7/seeva-ai-assistant/internal/models"
	"go.uber.org/zap"
)

const (
	DefaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"

	// DefaultMaxTokens is sent when a request does not set MaxTokens.
	// Anthropic rejects requests without it.
	DefaultMaxTokens = 4096

	defaultImageMediaType = "image/jpeg"
)

var anthropicModels = []string{
	"claude-sonnet-4-5-20250929",
	"claude-haiku-4-5-20251001",
	"claude-opus-4-1-20250805",
	"claude-sonnet-4-20250514",
	"claude-3-7-sonnet-20250219",
}

type anthropicProvider struct {
	apiKey string
	opts   options
}

func newAnthropic(apiKey string, opts ...Option) *anthropicProvider {
	return &anthropicProvider{apiKey: apiKey, opts: buildOptions(DefaultAnthropicBaseURL, opts)}
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	Stream      bool               `json:"stream"`
}

// anthropicMessage.Content is either a plain string or a list of blocks.
type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicBlock struct {
	Type   string                `json:"type"`
	Text   string                `json:"text,omitempty"`
	Source *anthropicImageSource `json:"source,omitempty"`
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicResponse struct {
	Model   string           `json:"model"`
	Content []anthropicBlock `json:"content"`
	Usage   anthropicUsage   `json:"usage"`
}

func (p *anthropicProvider) Name() Name {
	return Anthropic
}

func (p *anthropicProvider) AvailableModels() []string {
	return append([]string(nil), anthropicModels...)
}

func (p *anthropicProvider) buildRequest(req ChatRequest, stream bool) anthropicRequest {
	maxTokens := DefaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if len(msg.Images) == 0 {
			messages = append(messages, anthropicMessage{Role: string(msg.Role), Content: msg.Content})
			continue
		}

		// Images go first, the text block follows them.
		blocks := make([]anthropicBlock, 0, len(msg.Images)+1)
		for _, img := range msg.Images {
			mediaType := img.MimeType
			if mediaType == "" {
				mediaType = defaultImageMediaType
			}
			blocks = append(blocks, anthropicBlock{
				Type:   "image",
				Source: &anthropicImageSource{Type: "base64", MediaType: mediaType, Data: img.Data},
			})
		}
		if msg.Content != "" {
			blocks = append(blocks, anthropicBlock{Type: "text", Text: msg.Content})
		}
		messages = append(messages, anthropicMessage{Role: string(msg.Role), Content: blocks})
	}

	return anthropicRequest{
		Model:       req.Model,
		Messages:    messages,
		System:      req.System,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
}

func (p *anthropicProvider) send(ctx context.Context, apiKey string, body anthropicRequest) (*http.Response, error) {
	headers := map[string]string{
		"x-api-key":         apiKey,
		"anthropic-version": anthropicVersion,
	}
	return postJSON(ctx, p.opts.httpClient, p.opts.baseURL+"/messages", headers, body, body.Model)
}

func (p *anthropicProvider) ChatStream(ctx context.Context, req ChatRequest) (*Stream, error) {
	p.opts.logger.Debug("opening stream",
		zap.String("provider", string(Anthropic)),
		zap.String("model", req.Model),
		zap.Int("messages", len(req.Messages)),
	)

	resp, err := p.send(ctx, p.apiKey, p.buildRequest(req, true))
	if err != nil {
		return nil, err
	}
	return readStream(ctx, resp.Body, decodeAnthropic, p.opts.logger), nil
}

func (p *anthropicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	resp, err := p.send(ctx, p.apiKey, p.buildRequest(req, false))
	if err != nil {
		return nil, err
	}

	var body anthropicResponse
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(body.Content))
	for _, block := range body.Content {
		if block.Type == "text" {
			texts = append(texts, block.Text)
		}
	}
	return &ChatResponse{
		Content: strings.Join(texts, "\n"),
		Model:   body.Model,
		Usage:   &Usage{InputTokens: body.Usage.InputTokens, OutputTokens: body.Usage.OutputTokens},
	}, nil
}

func (p *anthropicProvider) ValidateAPIKey(ctx context.Context, apiKey string) (bool, error) {
	maxTokens := 10
	req := p.buildRequest(ChatRequest{
		Model:     anthropicModels[0],
		Messages:  []ChatMessage{{Role: models.RoleUser, Content: "Hi"}},
		MaxTokens: &maxTokens,
	}, false)
	return validateResult(p.send(ctx, apiKey, req))
}

// validateResult turns the outcome of a probe request into ValidateAPIKey's
// answer. Any vendor rejection means "not valid"; only transport failures
// are errors.
func validateResult(resp *http.Response, err error) (bool, error) {
	if err == nil {
		resp.Body.Close()
		return true, nil
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false, err
	}
	return false, nil
}
