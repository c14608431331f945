package llm

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"hospital-assistant/pkg"
)

// DefaultModel is used when no chat model is configured.
const DefaultModel = "gpt-4o-mini"

// OpenAIEngine calls the chat completion API with function tools.
type OpenAIEngine struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAIEngine constructs an engine. An empty apiKey yields an engine
// whose every call fails with ErrUnavailable; baseURL overrides the API
// endpoint when set.
func NewOpenAIEngine(apiKey, baseURL, model string) *OpenAIEngine {
	if model == "" {
		model = DefaultModel
	}
	e := &OpenAIEngine{model: model, temperature: 0.2}
	if apiKey == "" {
		return e
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	e.client = openai.NewClientWithConfig(cfg)
	return e
}

// Available reports whether an API key was configured.
func (e *OpenAIEngine) Available() bool { return e.client != nil }

// Submit sends system, history and the new message.
func (e *OpenAIEngine) Submit(ctx context.Context, req Request) (Response, error) {
	if e.client == nil {
		return Response{}, ErrUnavailable
	}
	msgs := e.messages(req)
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Messages:    msgs,
		Tools:       convertTools(req.Tools),
		Temperature: e.temperature,
	})
	if err != nil {
		return Response{}, err
	}
	if len(resp.Choices) == 0 {
		return Response{}, nil
	}

	m := resp.Choices[0].Message
	out := Response{Text: m.Content}
	for _, tc := range m.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	return out, nil
}

// SubmitToolResult sends the request followed by the assistant's tool call
// and the tool's result.
func (e *OpenAIEngine) SubmitToolResult(ctx context.Context, req Request, call ToolCall, result string) (string, error) {
	if e.client == nil {
		return "", ErrUnavailable
	}
	id := call.ID
	if id == "" {
		id = "call_" + call.Name
	}
	args := string(call.Arguments)
	if args == "" {
		args = "{}"
	}

	msgs := e.messages(req)
	msgs = append(msgs,
		openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleAssistant,
			ToolCalls: []openai.ToolCall{{
				ID:       id,
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: call.Name, Arguments: args},
			}},
		},
		openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    result,
			ToolCallID: id,
		},
	)

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Messages:    msgs,
		Tools:       convertTools(req.Tools),
		Temperature: e.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("tool result round trip: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (e *OpenAIEngine) messages(req Request) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.History {
		// anything that is not the assistant is replayed as the user
		role := openai.ChatMessageRoleUser
		if m.Role == pkg.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Message})
}

func convertTools(specs []ToolSpec) []openai.Tool {
	if len(specs) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(specs))
	for _, s := range specs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return out
}
