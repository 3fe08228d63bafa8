package provider

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAPIKey     = errors.New("invalid API key")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrUnknownProvider   = errors.New("unsupported provider")
	ErrStreamConsumed    = errors.New("stream already consumed")
)

type ModelNotFoundError struct {
	Model string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model not found: %s", e.Model)
}

// APIError is a vendor reported failure, either from a non-success HTTP
// response or from an error event inside a stream.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s", e.Message)
}

// RequestError is a transport level failure.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("HTTP request failed: %v", e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// JSONError is returned when a response body that had to be decoded was not
// valid JSON.
type JSONError struct {
	Err error
}

func (e *JSONError) Error() string {
	return fmt.Sprintf("JSON parsing error: %v", e.Err)
}

func (e *JSONError) Unwrap() error {
	return e.Err
}
