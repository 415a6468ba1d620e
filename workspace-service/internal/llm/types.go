package llm

import (
	"context"
	"encoding/json"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Tool describes a function the model may call.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON Schema object
}

// ToolCall is a model request to invoke a tool. Arguments is the raw JSON
// object produced by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Message is one conversation turn. Assistant turns may carry ToolCalls;
// tool turns carry ToolCallID.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

type Request struct {
	System   string
	Messages []Message
	Tools    []Tool
}

type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

type Response struct {
	Text         string
	ToolCalls    []ToolCall
	Model        string
	FinishReason string
	Usage        Usage
}

// Client performs one non-streaming completion.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
