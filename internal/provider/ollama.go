package provider

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/thisisharsh7/seeva-ai-assistant/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// DefaultOllamaBaseURL is the OpenAI compatible endpoint of a local Ollama.
const DefaultOllamaBaseURL = "http://localhost:11434/v1"

// Ollama ignores the key, but the client refuses to start without one.
const ollamaPlaceholderKey = "ollama"

var ollamaModels = []string{
	"llama3.1:8b",
	"llama3.2",
	"llama3.2-vision",
	"qwen2.5",
	"mistral",
}

// ollamaProvider drives a local model server through langchaingo's OpenAI
// client. Usage is taken from the server when it reports it and estimated
// with tiktoken otherwise.
type ollamaProvider struct {
	apiKey      string
	opts        options
	countTokens func(model, text string) (int, bool)
}

func newOllama(apiKey string, opts ...Option) *ollamaProvider {
	if apiKey == "" {
		apiKey = ollamaPlaceholderKey
	}
	return &ollamaProvider{
		apiKey:      apiKey,
		opts:        buildOptions(DefaultOllamaBaseURL, opts),
		countTokens: estimateTokens,
	}
}

func (p *ollamaProvider) Name() Name {
	return Ollama
}

func (p *ollamaProvider) AvailableModels() []string {
	return append([]string(nil), ollamaModels...)
}

// statusRecorder keeps the status and body of the last failed response so
// errors coming back through langchaingo can be classified like the other
// adapters' errors. One recorder serves one request.
type statusRecorder struct {
	next   http.RoundTripper
	status int
	body   []byte
}

func (r *statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.next.RoundTrip(req)
	if err != nil || (resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return resp, err
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
	r.status = resp.StatusCode
	r.body = body
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

func (p *ollamaProvider) client(model string) (llms.Model, *statusRecorder, error) {
	next := p.opts.httpClient.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	recorder := &statusRecorder{next: next}

	llm, err := openai.New(
		openai.WithToken(p.apiKey),
		openai.WithBaseURL(p.opts.baseURL),
		openai.WithModel(model),
		openai.WithHTTPClient(&http.Client{Transport: recorder}),
	)
	if err != nil {
		return nil, nil, err
	}
	return llm, recorder, nil
}

// classify turns a langchaingo failure back into the package's errors.
func (p *ollamaProvider) classify(ctx context.Context, recorder *statusRecorder, model string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if recorder.status != 0 {
		return classifyStatus(recorder.status, recorder.body, model)
	}
	return &RequestError{Err: err}
}

func messageContents(req ChatRequest) []llms.MessageContent {
	contents := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if req.System != "" {
		contents = append(contents, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	for _, msg := range req.Messages {
		role := llms.ChatMessageTypeHuman
		switch msg.Role {
		case models.RoleAssistant:
			role = llms.ChatMessageTypeAI
		case models.RoleSystem:
			role = llms.ChatMessageTypeSystem
		}

		parts := make([]llms.ContentPart, 0, len(msg.Images)+1)
		if msg.Content != "" {
			parts = append(parts, llms.TextPart(msg.Content))
		}
		for _, img := range msg.Images {
			parts = append(parts, llms.ImageURLPart(dataURI(img)))
		}
		contents = append(contents, llms.MessageContent{Role: role, Parts: parts})
	}
	return contents
}

func callOptions(req ChatRequest) []llms.CallOption {
	opts := []llms.CallOption{llms.WithModel(req.Model)}
	if req.Temperature != nil {
		opts = append(opts, llms.WithTemperature(*req.Temperature))
	}
	if req.MaxTokens != nil {
		opts = append(opts, llms.WithMaxTokens(*req.MaxTokens))
	}
	return opts
}

// usage reads the server reported token counts or estimates them from the
// prompt and the generated text.
func (p *ollamaProvider) usage(req ChatRequest, resp *llms.ContentResponse, content string) *Usage {
	if resp != nil && len(resp.Choices) > 0 {
		info := resp.Choices[0].GenerationInfo
		in, _ := info["PromptTokens"].(int)
		out, _ := info["CompletionTokens"].(int)
		if in > 0 || out > 0 {
			return &Usage{InputTokens: in, OutputTokens: out}
		}
	}

	var prompt strings.Builder
	prompt.WriteString(req.System)
	for _, msg := range req.Messages {
		prompt.WriteString(msg.Content)
	}
	in, ok := p.countTokens(req.Model, prompt.String())
	if !ok {
		return nil
	}
	out, ok := p.countTokens(req.Model, content)
	if !ok {
		return nil
	}
	return &Usage{InputTokens: in, OutputTokens: out}
}

type ollamaItem struct {
	chunk string
	resp  *llms.ContentResponse
	err   error
	final bool
}

// ChatStream runs the generation in the background and feeds its callback
// chunks into the stream. The first chunk (or the failure) is awaited here
// so that errors surface before a stream is returned.
func (p *ollamaProvider) ChatStream(ctx context.Context, req ChatRequest) (*Stream, error) {
	llm, recorder, err := p.client(req.Model)
	if err != nil {
		return nil, err
	}

	p.opts.logger.Debug("opening stream",
		zap.String("provider", string(Ollama)),
		zap.String("model", req.Model),
		zap.Int("messages", len(req.Messages)),
	)

	ctx, cancel := context.WithCancel(ctx)
	items := make(chan ollamaItem)
	send := func(item ollamaItem) error {
		select {
		case items <- item:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	go func() {
		defer close(items)
		streaming := llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			return send(ollamaItem{chunk: string(chunk)})
		})
		resp, err := llm.GenerateContent(ctx, messageContents(req), append(callOptions(req), streaming)...)
		send(ollamaItem{resp: resp, err: err, final: true})
	}()

	first, ok := <-items
	if !ok {
		cancel()
		return nil, ctx.Err()
	}
	if first.err != nil {
		err := p.classify(ctx, recorder, req.Model, first.err)
		cancel()
		return nil, err
	}

	iteratorFunc := func(yield func(StreamEvent, error) bool) {
		if !yield(MessageStart(), nil) {
			return
		}
		var content strings.Builder
		item, ok := first, true
		for ok {
			switch {
			case item.final && item.err != nil:
				yield(StreamEvent{}, p.classify(ctx, recorder, req.Model, item.err))
				return
			case item.final:
				yield(MessageStop(p.usage(req, item.resp, content.String())), nil)
				return
			case item.chunk != "":
				content.WriteString(item.chunk)
				if !yield(ContentDelta(item.chunk), nil) {
					return
				}
			}
			item, ok = <-items
		}
		// The producer stopped without a final item: the context ended.
		if err := ctx.Err(); err != nil {
			yield(StreamEvent{}, err)
		}
	}
	return newStream(iteratorFunc, closerFunc(cancel)), nil
}

func (p *ollamaProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	llm, recorder, err := p.client(req.Model)
	if err != nil {
		return nil, err
	}

	resp, err := llm.GenerateContent(ctx, messageContents(req), callOptions(req)...)
	if err != nil {
		return nil, p.classify(ctx, recorder, req.Model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, &JSONError{Err: errors.New("response has no choices")}
	}

	content := resp.Choices[0].Content
	return &ChatResponse{
		Content: content,
		Model:   req.Model,
		Usage:   p.usage(req, resp, content),
	}, nil
}

// ValidateAPIKey checks that the server answers a minimal generation.
// Ollama has no keys, so a reachable server is a valid one.
func (p *ollamaProvider) ValidateAPIKey(ctx context.Context, apiKey string) (bool, error) {
	probe := *p
	if apiKey != "" {
		probe.apiKey = apiKey
	}
	maxTokens := 5
	_, err := probe.Chat(ctx, ChatRequest{
		Model:     ollamaModels[0],
		Messages:  []ChatMessage{{Role: models.RoleUser, Content: "Hi"}},
		MaxTokens: &maxTokens,
	})
	if err == nil {
		return true, nil
	}
	return validateResult(nil, err)
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}
