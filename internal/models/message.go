package models

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ParseRole maps a stored role string back to a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAssistant, RoleSystem:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown message role %q", s)
}

// Image is a base64 encoded image attached to a message.
type Image struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType,omitempty"`
}

// Metadata keys written by the chat service.
const (
	MetaModel    = "model"
	MetaProvider = "provider"
	MetaTokens   = "tokens"
)

type Metadata map[string]any

// TokenUsage is the shape stored under MetaTokens.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Tokens reads the token usage stored under MetaTokens. It accepts both the
// in-memory form written by the service and the generic map produced by
// decoding metadata from the database.
func (m Metadata) Tokens() (TokenUsage, bool) {
	switch v := m[MetaTokens].(type) {
	case TokenUsage:
		return v, true
	case *TokenUsage:
		if v == nil {
			return TokenUsage{}, false
		}
		return *v, true
	case map[string]any:
		return TokenUsage{Input: toInt(v["input"]), Output: toInt(v["output"])}, true
	}
	return TokenUsage{}, false
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"threadId"`
	Role      Role      `json:"role"` // user, assistant, or system
	Content   string    `json:"content"`
	Images    []Image   `json:"images,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Metadata  Metadata  `json:"metadata,omitempty"`
}
