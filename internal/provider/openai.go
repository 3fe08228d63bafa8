package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/thisisharsh7/seeva-ai-assistant/internal/models"
	"go.uber.org/zap"
)

const (
	DefaultOpenAIBaseURL     = "https://api.openai.com/v1"
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

	openRouterReferer = "https://seeva.ai"
	openRouterTitle   = "Seeva AI Assistant"
)

var openAIModels = []string{
	"gpt-5-mini",
	"gpt-5-nano",
}

var openRouterModels = []string{
	"anthropic/claude-sonnet-4",
	"anthropic/claude-3.7-sonnet",
	"anthropic/claude-3.5-sonnet",
	"anthropic/claude-3.5-haiku",
	"anthropic/claude-opus-4",
	"openai/gpt-5.1",
	"openai/gpt-4o",
	"openai/gpt-4o-mini",
	"openai/gpt-4-turbo",
	"openai/chatgpt-4o-latest",
	"google/gemini-2.5-flash-lite-preview-09-2025",
	"google/gemini-2.0-flash-exp",
	"google/gemini-2.0-flash-thinking-exp:free",
	"google/gemini-pro-1.5",
	"google/gemini-flash-1.5",
	"meta-llama/llama-3.3-70b-instruct",
	"meta-llama/llama-3.2-90b-vision-instruct",
	"meta-llama/llama-3.1-405b-instruct",
	"deepseek/deepseek-r1",
	"deepseek/deepseek-chat",
	"mistralai/mistral-large",
	"mistralai/mistral-small",
	"qwen/qwen3-vl-235b-a22b-thinking",
	"qwen/qwen-2.5-72b-instruct",
	"nvidia/nemotron-nano-12b-v2-vl:free",
	"x-ai/grok-2-vision-1212",
	"perplexity/llama-3.1-sonar-huge-128k-online",
}

// chatCompletionsFlavor holds what differs between vendors that speak the
// OpenAI chat completions dialect.
type chatCompletionsFlavor struct {
	name    Name
	models  []string
	headers map[string]string

	// GPT-5 models take max_completion_tokens and only the default
	// temperature.
	completionTokens bool
	sendTemperature  bool

	validateModel string
}

var (
	openAIFlavor = chatCompletionsFlavor{
		name:             OpenAI,
		models:           openAIModels,
		completionTokens: true,
		validateModel:    "gpt-5-nano",
	}
	openRouterFlavor = chatCompletionsFlavor{
		name:   OpenRouter,
		models: openRouterModels,
		headers: map[string]string{
			"HTTP-Referer": openRouterReferer,
			"X-Title":      openRouterTitle,
		},
		sendTemperature: true,
		validateModel:   "anthropic/claude-3.5-haiku",
	}
)

type chatCompletionsProvider struct {
	apiKey string
	flavor chatCompletionsFlavor
	opts   options
}

func newOpenAI(apiKey string, opts ...Option) *chatCompletionsProvider {
	return &chatCompletionsProvider{apiKey: apiKey, flavor: openAIFlavor, opts: buildOptions(DefaultOpenAIBaseURL, opts)}
}

func newOpenRouter(apiKey string, opts ...Option) *chatCompletionsProvider {
	return &chatCompletionsProvider{apiKey: apiKey, flavor: openRouterFlavor, opts: buildOptions(DefaultOpenRouterBaseURL, opts)}
}

type chatCompletionsRequest struct {
	Model               string                   `json:"model"`
	Messages            []chatCompletionsMessage `json:"messages"`
	Temperature         *float64                 `json:"temperature,omitempty"`
	MaxTokens           *int                     `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int                     `json:"max_completion_tokens,omitempty"`
	Stream              bool                     `json:"stream"`
	StreamOptions       *streamOptions           `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// chatCompletionsMessage.Content is a string, or a list of parts when the
// message carries images.
type chatCompletionsMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatCompletionsResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (p *chatCompletionsProvider) Name() Name {
	return p.flavor.name
}

func (p *chatCompletionsProvider) AvailableModels() []string {
	return append([]string(nil), p.flavor.models...)
}

// dataURI renders an image as an inline data URI.
func dataURI(img models.Image) string {
	mimeType := img.MimeType
	if mimeType == "" {
		mimeType = defaultImageMediaType
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, img.Data)
}

func (p *chatCompletionsProvider) buildRequest(req ChatRequest, stream bool) chatCompletionsRequest {
	messages := make([]chatCompletionsMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, chatCompletionsMessage{Role: string(models.RoleSystem), Content: req.System})
	}
	for _, msg := range req.Messages {
		if len(msg.Images) == 0 {
			messages = append(messages, chatCompletionsMessage{Role: string(msg.Role), Content: msg.Content})
			continue
		}

		parts := make([]contentPart, 0, len(msg.Images)+1)
		if msg.Content != "" {
			parts = append(parts, contentPart{Type: "text", Text: msg.Content})
		}
		for _, img := range msg.Images {
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: dataURI(img)}})
		}
		messages = append(messages, chatCompletionsMessage{Role: string(msg.Role), Content: parts})
	}

	body := chatCompletionsRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   stream,
	}
	if p.flavor.completionTokens {
		body.MaxCompletionTokens = req.MaxTokens
	} else {
		body.MaxTokens = req.MaxTokens
	}
	if p.flavor.sendTemperature {
		body.Temperature = req.Temperature
	}
	if stream {
		body.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	return body
}

func (p *chatCompletionsProvider) send(ctx context.Context, apiKey string, body chatCompletionsRequest) (*http.Response, error) {
	headers := map[string]string{"Authorization": bearer(apiKey)}
	for k, v := range p.flavor.headers {
		headers[k] = v
	}
	return postJSON(ctx, p.opts.httpClient, p.opts.baseURL+"/chat/completions", headers, body, body.Model)
}

func (p *chatCompletionsProvider) ChatStream(ctx context.Context, req ChatRequest) (*Stream, error) {
	p.opts.logger.Debug("opening stream",
		zap.String("provider", string(p.flavor.name)),
		zap.String("model", req.Model),
		zap.Int("messages", len(req.Messages)),
	)

	resp, err := p.send(ctx, p.apiKey, p.buildRequest(req, true))
	if err != nil {
		return nil, err
	}
	return readStream(ctx, resp.Body, decodeChatCompletions, p.opts.logger), nil
}

func (p *chatCompletionsProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	resp, err := p.send(ctx, p.apiKey, p.buildRequest(req, false))
	if err != nil {
		return nil, err
	}

	var body chatCompletionsResponse
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}

	out := &ChatResponse{Model: body.Model}
	if len(body.Choices) > 0 {
		out.Content = body.Choices[0].Message.Content
	}
	if body.Usage != nil {
		out.Usage = &Usage{InputTokens: body.Usage.PromptTokens, OutputTokens: body.Usage.CompletionTokens}
	}
	return out, nil
}

func (p *chatCompletionsProvider) ValidateAPIKey(ctx context.Context, apiKey string) (bool, error) {
	maxTokens := 5
	req := p.buildRequest(ChatRequest{
		Model:     p.flavor.validateModel,
		Messages:  []ChatMessage{{Role: models.RoleUser, Content: "Hi"}},
		MaxTokens: &maxTokens,
	}, false)
	return validateResult(p.send(ctx, apiKey, req))
}
