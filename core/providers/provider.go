// Package providers wraps external text-generation backends behind one
// strategy interface so the chat pipeline never depends on a concrete
// provider SDK.
package providers

import (
	"context"
)

// Provider is one text-generation backend. Implementations build the
// provider-specific wire request from a Request, perform a single HTTP
// call with a bounded timeout, and extract the generated text. No
// retries happen at this layer.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req *Request) (*Response, error)
	HealthCheck(ctx context.Context) error
	ValidateConfig() error
	SupportsModel(model string) bool
	Close() error
}

// Role tags a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one role-tagged conversation entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is the provider-neutral generation request. System carries the
// composed system instructions for providers that accept a separate
// system role; providers without one fold it into the message list.
type Request struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	TopK        *int      `json:"top_k,omitempty"`
}

// Response is the raw provider output before cleaning.
type Response struct {
	Content  string `json:"content"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
}
