package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Timeouts bound the phases of a request before the first response byte.
// There is no overall deadline since an answer may stream for minutes.
type Timeouts struct {
	Dial           time.Duration
	TLSHandshake   time.Duration
	ResponseHeader time.Duration
}

var DefaultTimeouts = Timeouts{
	Dial:           10 * time.Second,
	TLSHandshake:   10 * time.Second,
	ResponseHeader: 60 * time.Second,
}

// maxErrorBody caps how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

type options struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	timeouts   Timeouts
}

// Option configures an adapter created by New.
type Option func(*options)

// WithBaseURL points the adapter at another endpoint, typically a test
// server or a proxy.
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient replaces the adapter's client. Timeouts are then ignored.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithTimeouts(timeouts Timeouts) Option {
	return func(o *options) {
		o.timeouts = timeouts
	}
}

func buildOptions(defaultBaseURL string, opts []Option) options {
	o := options{
		baseURL:  defaultBaseURL,
		logger:   zap.NewNop(),
		timeouts: DefaultTimeouts,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = newHTTPClient(o.timeouts)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

func newHTTPClient(t Timeouts) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   t.Dial,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = t.TLSHandshake
	transport.ResponseHeaderTimeout = t.ResponseHeader
	return &http.Client{Transport: transport}
}

// postJSON sends body to url and returns the open response. A non-success
// status is classified into one of the package errors and the body is
// closed; on success the caller owns resp.Body.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body any, model string) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &RequestError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &RequestError{Err: err}
	}

	if err := classifyResponse(resp, model); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// classifyResponse maps a non-success status to an error. It returns nil
// for 2xx and leaves the body untouched in that case.
func classifyResponse(resp *http.Response, model string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return classifyStatus(resp.StatusCode, body, model)
}

func classifyStatus(status int, body []byte, model string) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrInvalidAPIKey
	case http.StatusTooManyRequests:
		return ErrRateLimitExceeded
	case http.StatusNotFound:
		return &ModelNotFoundError{Model: model}
	}

	if message := vendorErrorMessage(body); message != "" {
		return &APIError{Status: status, Message: message}
	}
	return &APIError{
		Status:  status,
		Message: fmt.Sprintf("%d: %s", status, strings.TrimSpace(string(body))),
	}
}

// vendorErrorMessage extracts error.message from the error body shape that
// all supported vendors share.
func vendorErrorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	return envelope.Error.Message
}

// decodeJSON reads a complete non-streaming response body into v.
func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &JSONError{Err: err}
	}
	return nil
}

func bearer(apiKey string) string {
	return "Bearer " + apiKey
}
