package provider

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const anthropicFixture = `event: message_start
data: {"type":"message_start","message":{"id":"msg_01","type":"message","role":"assistant","model":"claude-sonnet-4-5-20250929","content":[],"usage":{"input_tokens":3,"output_tokens":1}}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: ping
data: {"type":"ping"}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":2}}

event: message_stop
data: {"type":"message_stop"}

`

const chatCompletionsFixture = `data: {"id":"chatcmpl-1","choices":[{"index":0,"delta":{"role":"assistant","content":""},"finish_reason":null}]}

data: {"id":"chatcmpl-1","choices":[{"index":0,"delta":{"content":"Hel"},"finish_reason":null}]}

: OPENROUTER PROCESSING

data: {"id":"chatcmpl-1","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":null}]}

data: {"id":"chatcmpl-1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}

data: {"id":"chatcmpl-1","choices":[],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}

data: [DONE]

`

var helloEvents = []StreamEvent{
	MessageStart(),
	ContentDelta("Hel"),
	ContentDelta("lo"),
	MessageStop(&Usage{InputTokens: 3, OutputTokens: 2}),
}

// chunkedBody hands out its chunks one Read at a time and fails with err
// once they run out.
type chunkedBody struct {
	chunks [][]byte
	err    error
	closed bool
}

func newChunkedBody(chunks ...string) *chunkedBody {
	b := &chunkedBody{err: io.EOF}
	for _, c := range chunks {
		b.chunks = append(b.chunks, []byte(c))
	}
	return b
}

func (b *chunkedBody) Read(p []byte) (int, error) {
	for len(b.chunks) > 0 && len(b.chunks[0]) == 0 {
		b.chunks = b.chunks[1:]
	}
	if len(b.chunks) == 0 {
		return 0, b.err
	}
	n := copy(p, b.chunks[0])
	b.chunks[0] = b.chunks[0][n:]
	return n, nil
}

func (b *chunkedBody) Close() error {
	b.closed = true
	return nil
}

func collect(t *testing.T, stream *Stream) ([]StreamEvent, error) {
	t.Helper()
	var events []StreamEvent
	for event, err := range stream.Events() {
		if err != nil {
			return events, err
		}
		events = append(events, event)
	}
	return events, nil
}

func TestReadStream_Anthropic(t *testing.T) {
	body := newChunkedBody(anthropicFixture)
	events, err := collect(t, readStream(context.Background(), body, decodeAnthropic, zap.NewNop()))

	require.NoError(t, err)
	assert.Equal(t, helloEvents, events)
	assert.True(t, body.closed)
}

func TestReadStream_ChatCompletions(t *testing.T) {
	events, err := collect(t, readStream(context.Background(), newChunkedBody(chatCompletionsFixture), decodeChatCompletions, zap.NewNop()))

	require.NoError(t, err)
	assert.Equal(t, helloEvents, events)
}

func TestReadStream_SplitAtEveryOffset(t *testing.T) {
	fixtures := map[string]struct {
		data   string
		decode frameDecoder
	}{
		"anthropic":        {anthropicFixture, decodeAnthropic},
		"chat completions": {chatCompletionsFixture, decodeChatCompletions},
	}

	for name, fx := range fixtures {
		t.Run(name, func(t *testing.T) {
			for i := 0; i <= len(fx.data); i++ {
				body := newChunkedBody(fx.data[:i], fx.data[i:])
				events, err := collect(t, readStream(context.Background(), body, fx.decode, zap.NewNop()))
				require.NoError(t, err)
				require.Equal(t, helloEvents, events, "split at offset %d", i)
			}

			bytewise := make([]string, len(fx.data))
			for i := range fx.data {
				bytewise[i] = fx.data[i : i+1]
			}
			events, err := collect(t, readStream(context.Background(), newChunkedBody(bytewise...), fx.decode, zap.NewNop()))
			require.NoError(t, err)
			assert.Equal(t, helloEvents, events)
		})
	}
}

func TestReadStream_KeepAliveLinesAreIgnored(t *testing.T) {
	noisy := strings.ReplaceAll(chatCompletionsFixture, "\n\n", "\n\n: keep-alive\n\n")
	events, err := collect(t, readStream(context.Background(), newChunkedBody(noisy), decodeChatCompletions, zap.NewNop()))

	require.NoError(t, err)
	assert.Equal(t, helloEvents, events)
}

func TestReadStream_ConcatenationMatchesContent(t *testing.T) {
	events, err := collect(t, readStream(context.Background(), newChunkedBody(anthropicFixture), decodeAnthropic, zap.NewNop()))
	require.NoError(t, err)

	var text strings.Builder
	stops := 0
	for _, event := range events {
		switch event.Type {
		case EventContentDelta:
			text.WriteString(event.Delta)
		case EventMessageStop:
			stops++
		}
	}
	assert.Equal(t, "Hello", text.String())
	assert.Equal(t, 1, stops)
	assert.Equal(t, EventMessageStop, events[len(events)-1].Type)
}

func TestReadStream_ErrorEventEndsStream(t *testing.T) {
	data := `data: {"type":"message_start","message":{"usage":{"input_tokens":3}}}
data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Hel"}}
data: {"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}
data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"lo"}}
data: {"type":"message_stop"}
`
	events, err := collect(t, readStream(context.Background(), newChunkedBody(data), decodeAnthropic, zap.NewNop()))

	require.NoError(t, err)
	assert.Equal(t, []StreamEvent{MessageStart(), ContentDelta("Hel"), ErrorEvent("Overloaded")}, events)
}

func TestReadStream_StopAtEOFWithoutTerminalMarker(t *testing.T) {
	data := `data: {"choices":[{"delta":{"content":"Hi"}}]}
data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`
	events, err := collect(t, readStream(context.Background(), newChunkedBody(data), decodeChatCompletions, zap.NewNop()))

	require.NoError(t, err)
	assert.Equal(t, []StreamEvent{ContentDelta("Hi"), MessageStop(nil)}, events)
}

func TestReadStream_DuplicateStartsAreDropped(t *testing.T) {
	data := `data: {"choices":[{"delta":{"role":"assistant"}}]}
data: {"choices":[{"delta":{"role":"assistant","content":"Hi"}}]}
data: [DONE]
`
	events, err := collect(t, readStream(context.Background(), newChunkedBody(data), decodeChatCompletions, zap.NewNop()))

	require.NoError(t, err)
	assert.Equal(t, []StreamEvent{MessageStart(), ContentDelta("Hi"), MessageStop(nil)}, events)
}

func TestReadStream_ReadFailure(t *testing.T) {
	body := newChunkedBody("data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n")
	body.err = errors.New("connection reset by peer")

	events, err := collect(t, readStream(context.Background(), body, decodeChatCompletions, zap.NewNop()))

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, []StreamEvent{ContentDelta("Hi")}, events)
	assert.True(t, body.closed)
}

func TestReadStream_LineTooLong(t *testing.T) {
	body := newChunkedBody("data: " + strings.Repeat("x", maxLineSize+1))

	events, err := collect(t, readStream(context.Background(), body, decodeChatCompletions, zap.NewNop()))

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.ErrorIs(t, err, errLineTooLong)
	assert.Empty(t, events)
	assert.True(t, body.closed)
}

func TestReadStream_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := collect(t, readStream(ctx, newChunkedBody(anthropicFixture), decodeAnthropic, zap.NewNop()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStream_SingleConsumer(t *testing.T) {
	stream := readStream(context.Background(), newChunkedBody(anthropicFixture), decodeAnthropic, zap.NewNop())

	_, err := collect(t, stream)
	require.NoError(t, err)

	_, err = collect(t, stream)
	assert.ErrorIs(t, err, ErrStreamConsumed)
}

func TestStream_BreakClosesBody(t *testing.T) {
	body := newChunkedBody(anthropicFixture)
	stream := readStream(context.Background(), body, decodeAnthropic, zap.NewNop())

	for range stream.Events() {
		break
	}
	assert.True(t, body.closed)
}

func TestStream_CloseBeforeIteration(t *testing.T) {
	body := newChunkedBody(anthropicFixture)
	stream := readStream(context.Background(), body, decodeAnthropic, zap.NewNop())

	require.NoError(t, stream.Close())
	assert.True(t, body.closed)

	_, err := collect(t, stream)
	assert.ErrorIs(t, err, ErrStreamConsumed)
}

func TestStream_CollectResponse(t *testing.T) {
	stream := readStream(context.Background(), newChunkedBody(anthropicFixture), decodeAnthropic, zap.NewNop())

	resp, err := stream.collectResponse()
	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Content)
	assert.Equal(t, &Usage{InputTokens: 3, OutputTokens: 2}, resp.Usage)
}

func TestNewSingleEventStream(t *testing.T) {
	usage := &Usage{InputTokens: 1, OutputTokens: 4}
	events, err := collect(t, NewSingleEventStream(&ChatResponse{Content: "Hello", Usage: usage}))

	require.NoError(t, err)
	assert.Equal(t, []StreamEvent{MessageStart(), ContentDelta("Hello"), MessageStop(usage)}, events)
}
