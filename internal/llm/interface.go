package llm

import (
	"context"
	"errors"
	"fmt"
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of a chat completion conversation
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a function call requested by the model
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition describes a callable function to the model. Parameters is
// a JSON schema object.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// LLMRequest represents a request to the LLM
type LLMRequest struct {
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	Model       string           `json:"model,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature float32          `json:"temperature,omitempty"`
}

// LLMResponse represents a complete LLM response
type LLMResponse struct {
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	Model      string     `json:"model"`
	TokensUsed int        `json:"tokens_used"`
}

// LLMClient defines the interface for LLM providers
type LLMClient interface {
	// Chat sends a chat completion request and returns the complete response
	Chat(ctx context.Context, req *LLMRequest) (*LLMResponse, error)

	// SetModel updates the model for this client
	SetModel(model string) error

	// GetModel returns the current model
	GetModel() string
}

var (
	ErrEmptyResponse = errors.New("no choices in LLM response")
	ErrUnknownModel  = errors.New("unknown model")
)

// APIError is a failed call to the completion endpoint
type APIError struct {
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("LLM API error: %v", e.Err)
	}
	return fmt.Sprintf("LLM API error (status %d): %v", e.StatusCode, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the status indicates a transient failure
func (e *APIError) Retryable() bool {
	return e.StatusCode == 408 || e.StatusCode == 429 || e.StatusCode >= 500
}
