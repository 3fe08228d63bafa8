package provider

import (
	"context"
	"errors"
	"io"
	"iter"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

const readChunkSize = 4096

// Stream is the live event sequence of one chat turn. It can be ranged over
// once; the underlying HTTP body is closed when the range ends, is broken out
// of, or Close is called.
//
//	for event, err := range stream.Events() {
//	    if err != nil { ... }
//	    fmt.Print(event.Delta)
//	}
type Stream struct {
	iterator  iter.Seq2[StreamEvent, error]
	body      io.Closer
	consumed  atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newStream(iterator iter.Seq2[StreamEvent, error], body io.Closer) *Stream {
	return &Stream{iterator: iterator, body: body}
}

// NewStream wraps an iterator that holds no resources of its own.
func NewStream(iterator iter.Seq2[StreamEvent, error]) *Stream {
	return newStream(iterator, nil)
}

// NewSingleEventStream replays a complete response as message_start, one
// content_delta and message_stop.
func NewSingleEventStream(response *ChatResponse) *Stream {
	iteratorFunc := func(yield func(StreamEvent, error) bool) {
		if !yield(MessageStart(), nil) {
			return
		}
		if response.Content != "" {
			if !yield(ContentDelta(response.Content), nil) {
				return
			}
		}
		yield(MessageStop(response.Usage), nil)
	}
	return newStream(iteratorFunc, nil)
}

// Events returns the event sequence. Only the first call iterates the
// stream; later calls yield ErrStreamConsumed.
func (s *Stream) Events() iter.Seq2[StreamEvent, error] {
	return func(yield func(StreamEvent, error) bool) {
		if !s.consumed.CompareAndSwap(false, true) {
			yield(StreamEvent{}, ErrStreamConsumed)
			return
		}
		defer s.Close()
		s.iterator(yield)
	}
}

// collectResponse drains the stream into a ChatResponse. An error event
// ends collection with an *APIError.
func (s *Stream) collectResponse() (*ChatResponse, error) {
	response := &ChatResponse{}
	for event, err := range s.Events() {
		if err != nil {
			return response, err
		}
		switch event.Type {
		case EventContentDelta:
			response.Content += event.Delta
		case EventMessageStop:
			response.Usage = event.Usage
		case EventError:
			return response, &APIError{Message: event.Message}
		}
	}
	return response, nil
}

// Close releases the HTTP body. A stream that was never iterated can no
// longer be.
func (s *Stream) Close() error {
	s.consumed.Store(true)
	s.closeOnce.Do(func() {
		if s.body != nil {
			s.closeErr = s.body.Close()
		}
	})
	return s.closeErr
}

// readStream turns an SSE body into the common event sequence. Chunks are
// read as they arrive, split into lines and handed to decode one payload at
// a time. Stops are held back and emitted once, with their usage merged,
// when decode reports the terminal marker or the body ends.
func readStream(ctx context.Context, body io.ReadCloser, decode frameDecoder, logger *zap.Logger) *Stream {
	iteratorFunc := func(yield func(StreamEvent, error) bool) {
		var (
			lines   lineBuffer
			usage   *Usage
			started bool
			stopped bool
		)
		defer lines.reset()

		finish := func() {
			stopped = true
			yield(MessageStop(usage), nil)
		}

		// handle returns false once nothing more may be yielded.
		handle := func(line []byte) bool {
			payload, ok := payloadOf(line)
			if !ok {
				return true
			}
			events, done := decode(payload)
			for _, event := range events {
				switch event.Type {
				case EventMessageStart:
					usage = usage.merge(event.Usage)
					if started {
						continue
					}
					started = true
					if !yield(MessageStart(), nil) {
						return false
					}
				case EventMessageStop:
					usage = usage.merge(event.Usage)
				case EventError:
					logger.Warn("vendor reported stream error", zap.String("error", event.Message))
					yield(event, nil)
					return false
				default:
					if !yield(event, nil) {
						return false
					}
				}
			}
			if done {
				finish()
				return false
			}
			return true
		}

		chunk := make([]byte, readChunkSize)
		for {
			if err := ctx.Err(); err != nil {
				yield(StreamEvent{}, err)
				return
			}

			n, err := body.Read(chunk)
			if n > 0 && !lines.feed(chunk[:n], handle) {
				return
			}
			if lines.overflow() {
				yield(StreamEvent{}, &RequestError{Err: errLineTooLong})
				return
			}
			if errors.Is(err, io.EOF) {
				if !lines.flush(handle) {
					return
				}
				if !stopped {
					logger.Debug("stream ended without terminal marker")
					finish()
				}
				return
			}
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					yield(StreamEvent{}, ctxErr)
				} else {
					yield(StreamEvent{}, &RequestError{Err: err})
				}
				return
			}
		}
	}
	return newStream(iteratorFunc, body)
}
