package provider

import (
	"bytes"
	"encoding/json"
)

// frameDecoder maps one SSE payload to common events. done reports that the
// payload was the vendor's terminal marker. Decoders are pure; payloads that
// are not valid JSON decode to nothing.
type frameDecoder func(payload []byte) (events []StreamEvent, done bool)

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicStreamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Usage anthropicUsage `json:"usage"`
	} `json:"message"`
	Delta *struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage *anthropicUsage `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// decodeAnthropic handles the typed events of the Messages API:
//
//	message_start → content_block_start → content_block_delta… →
//	content_block_stop → message_delta → message_stop
//
// ping and block lifecycle events carry nothing and are dropped.
func decodeAnthropic(payload []byte) ([]StreamEvent, bool) {
	var event anthropicStreamEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, false
	}

	switch event.Type {
	case "message_start":
		start := MessageStart()
		if event.Message != nil && event.Message.Usage.InputTokens > 0 {
			start.Usage = &Usage{InputTokens: event.Message.Usage.InputTokens}
		}
		return []StreamEvent{start}, false

	case "content_block_delta":
		if event.Delta == nil || event.Delta.Type != "text_delta" || event.Delta.Text == "" {
			return nil, false
		}
		return []StreamEvent{ContentDelta(event.Delta.Text)}, false

	case "message_delta":
		var usage *Usage
		if event.Usage != nil {
			usage = &Usage{InputTokens: event.Usage.InputTokens, OutputTokens: event.Usage.OutputTokens}
		}
		return []StreamEvent{MessageStop(usage)}, false

	case "message_stop":
		return []StreamEvent{MessageStop(nil)}, true

	case "error":
		message := "unknown stream error"
		if event.Error != nil && event.Error.Message != "" {
			message = event.Error.Message
		}
		return []StreamEvent{ErrorEvent(message)}, false
	}
	return nil, false
}

var doneSentinel = []byte("[DONE]")

type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Role    *string `json:"role"`
			Content *string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// decodeChatCompletions handles the OpenAI style "choices[0].delta" chunks
// used by OpenAI and OpenRouter. The stream ends with "data: [DONE]".
func decodeChatCompletions(payload []byte) ([]StreamEvent, bool) {
	if bytes.Equal(payload, doneSentinel) {
		return []StreamEvent{MessageStop(nil)}, true
	}

	var chunk chatCompletionChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return nil, false
	}

	if chunk.Error != nil {
		message := chunk.Error.Message
		if message == "" {
			message = "unknown stream error"
		}
		return []StreamEvent{ErrorEvent(message)}, false
	}

	var usage *Usage
	if chunk.Usage != nil {
		usage = &Usage{InputTokens: chunk.Usage.PromptTokens, OutputTokens: chunk.Usage.CompletionTokens}
	}

	if len(chunk.Choices) == 0 {
		// Usage-only chunk sent after the finish reason.
		if usage != nil {
			return []StreamEvent{MessageStop(usage)}, false
		}
		return nil, false
	}

	var events []StreamEvent
	choice := chunk.Choices[0]
	if choice.Delta.Role != nil && *choice.Delta.Role != "" {
		events = append(events, MessageStart())
	}
	if choice.Delta.Content != nil && *choice.Delta.Content != "" {
		events = append(events, ContentDelta(*choice.Delta.Content))
	}
	if choice.FinishReason != nil && *choice.FinishReason != "" {
		events = append(events, MessageStop(usage))
	}
	return events, false
}
