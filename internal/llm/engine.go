// Package llm is the reasoning engine contract and its go-openai
// implementation.
package llm

import (
	"context"
	"encoding/json"
	"errors"

	"hospital-assistant/pkg"
)

// ErrUnavailable is returned when no engine is configured.
var ErrUnavailable = errors.New("reasoning engine unavailable")

// Message is one prior transcript turn.
type Message struct {
	Role    pkg.Role
	Content string
}

// ToolCall is a tool request emitted by the engine.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Response is the engine's answer to one submission. Text and ToolCalls may
// both be set.
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// ToolSpec declares a capability to the engine. Parameters is a JSON schema
// value.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  any
}

// Request is one submission: a system prompt, the bounded history window and
// the new user message.
type Request struct {
	System  string
	History []Message
	Message string
	Tools   []ToolSpec
}

// Engine is the reasoning engine.
//
// SubmitToolResult replays the request with the tool call and its result
// appended and returns the engine's new text.
type Engine interface {
	Submit(ctx context.Context, req Request) (Response, error)
	SubmitToolResult(ctx context.Context, req Request, call ToolCall, result string) (string, error)
}
