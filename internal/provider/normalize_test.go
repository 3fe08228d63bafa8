package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeAnthropic(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []StreamEvent
		done    bool
	}{
		{
			name:    "message start keeps input usage",
			payload: `{"type":"message_start","message":{"id":"msg_1","usage":{"input_tokens":12,"output_tokens":1}}}`,
			want:    []StreamEvent{{Type: EventMessageStart, Usage: &Usage{InputTokens: 12}}},
		},
		{
			name:    "text delta",
			payload: `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}`,
			want:    []StreamEvent{ContentDelta("Hel")},
		},
		{
			name:    "non text delta",
			payload: `{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{"}}`,
		},
		{
			name:    "message delta carries usage",
			payload: `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":7}}`,
			want:    []StreamEvent{MessageStop(&Usage{OutputTokens: 7})},
		},
		{
			name:    "message stop",
			payload: `{"type":"message_stop"}`,
			want:    []StreamEvent{MessageStop(nil)},
			done:    true,
		},
		{
			name:    "error",
			payload: `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
			want:    []StreamEvent{ErrorEvent("Overloaded")},
		},
		{name: "ping", payload: `{"type":"ping"}`},
		{name: "block start", payload: `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
		{name: "block stop", payload: `{"type":"content_block_stop","index":0}`},
		{name: "unknown type", payload: `{"type":"something_new"}`},
		{name: "malformed", payload: `{"type":"content_block_delta","delta":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, done := decodeAnthropic([]byte(tt.payload))
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.done, done)
		})
	}
}

func TestDecodeChatCompletions(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []StreamEvent
		done    bool
	}{
		{
			name:    "role only",
			payload: `{"choices":[{"index":0,"delta":{"role":"assistant"},"finish_reason":null}]}`,
			want:    []StreamEvent{MessageStart()},
		},
		{
			name:    "role with empty content",
			payload: `{"choices":[{"index":0,"delta":{"role":"assistant","content":""}}]}`,
			want:    []StreamEvent{MessageStart()},
		},
		{
			name:    "content",
			payload: `{"choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":null}]}`,
			want:    []StreamEvent{ContentDelta("lo")},
		},
		{
			name:    "content with finish reason",
			payload: `{"choices":[{"index":0,"delta":{"content":"!"},"finish_reason":"stop"}]}`,
			want:    []StreamEvent{ContentDelta("!"), MessageStop(nil)},
		},
		{
			name:    "finish reason with usage",
			payload: `{"choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2}}`,
			want:    []StreamEvent{MessageStop(&Usage{InputTokens: 3, OutputTokens: 2})},
		},
		{
			name:    "usage only",
			payload: `{"choices":[],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`,
			want:    []StreamEvent{MessageStop(&Usage{InputTokens: 3, OutputTokens: 2})},
		},
		{
			name:    "error payload",
			payload: `{"error":{"message":"Provider returned error","code":502}}`,
			want:    []StreamEvent{ErrorEvent("Provider returned error")},
		},
		{
			name:    "done sentinel",
			payload: `[DONE]`,
			want:    []StreamEvent{MessageStop(nil)},
			done:    true,
		},
		{name: "empty delta", payload: `{"choices":[{"index":0,"delta":{}}]}`},
		{name: "no choices", payload: `{"id":"gen-1","choices":[]}`},
		{name: "malformed", payload: `{"choices":[{"delta":{"content":"x"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, done := decodeChatCompletions([]byte(tt.payload))
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.done, done)
		})
	}
}
