package provider

import (
	"fmt"
	"strings"
)

var names = []Name{Anthropic, OpenAI, OpenRouter, Ollama}

// Names lists the supported vendors.
func Names() []Name {
	return append([]Name(nil), names...)
}

// ParseName accepts a vendor name in any case.
func ParseName(s string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range names {
		if n == known {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
}

// New returns the adapter for name. Nothing touches the network until a
// request is made.
func New(name Name, apiKey string, opts ...Option) (Provider, error) {
	switch name {
	case Anthropic:
		return newAnthropic(apiKey, opts...), nil
	case OpenAI:
		return newOpenAI(apiKey, opts...), nil
	case OpenRouter:
		return newOpenRouter(apiKey, opts...), nil
	case Ollama:
		return newOllama(apiKey, opts...), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, string(name))
}

// Factory builds an adapter per request; the gateway takes one so tests can
// substitute fakes.
type Factory func(name Name, apiKey string) (Provider, error)

// NewFactory returns a Factory that applies opts to every adapter.
func NewFactory(opts ...Option) Factory {
	return func(name Name, apiKey string) (Provider, error) {
		return New(name, apiKey, opts...)
	}
}
