package llm

import (
	"context"
	"errors"
	"sync"
)

// ErrScriptExhausted is returned by Scripted when it runs out of steps and
// has no fallback text.
var ErrScriptExhausted = errors.New("scripted engine exhausted")

// Step is one scripted Submit outcome.
type Step struct {
	Response Response
	Err      error
}

// ToolStep is one scripted SubmitToolResult outcome.
type ToolStep struct {
	Text string
	Err  error
}

// ToolRound records a SubmitToolResult call.
type ToolRound struct {
	Request Request
	Call    ToolCall
	Result  string
}

// Scripted is an Engine that replays queued outcomes and records what it was
// sent.
type Scripted struct {
	mu sync.Mutex

	Steps     []Step
	ToolSteps []ToolStep
	// Fallback is returned as text once Steps or ToolSteps run out.
	Fallback string

	Requests   []Request
	ToolRounds []ToolRound
}

func (s *Scripted) Submit(ctx context.Context, req Request) (Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests = append(s.Requests, req)
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if len(s.Steps) == 0 {
		if s.Fallback == "" {
			return Response{}, ErrScriptExhausted
		}
		return Response{Text: s.Fallback}, nil
	}
	step := s.Steps[0]
	s.Steps = s.Steps[1:]
	return step.Response, step.Err
}

func (s *Scripted) SubmitToolResult(ctx context.Context, req Request, call ToolCall, result string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ToolRounds = append(s.ToolRounds, ToolRound{Request: req, Call: call, Result: result})
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(s.ToolSteps) == 0 {
		if s.Fallback == "" {
			return "", ErrScriptExhausted
		}
		return s.Fallback, nil
	}
	step := s.ToolSteps[0]
	s.ToolSteps = s.ToolSteps[1:]
	return step.Text, step.Err
}

// Calls returns the number of Submit calls seen.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}
