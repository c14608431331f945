package core

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"hospital-assistant/internal/llm"
	"hospital-assistant/internal/metrics"
	"hospital-assistant/internal/tools"
)

// MaxAttempts bounds engine submissions per round trip.
const MaxAttempts = 3

// BackoffStep is the linear backoff unit: attempt n waits n*BackoffStep.
const BackoffStep = 10 * time.Second

// Executor runs tools on behalf of a caller.
type Executor interface {
	Execute(ctx context.Context, name string, args json.RawMessage, caller tools.Caller) tools.Result
	Tools() []tools.Tool
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Turn is the input of one round trip.
type Turn struct {
	// Context is the enriched message built by BuildContext.
	Context string
	// Text is the raw user message, replayed with the tool result.
	Text    string
	History []llm.Message
	Caller  tools.Caller
}

// Outcome is the result of one round trip.
type Outcome struct {
	Reply    string
	Results  []tools.Result
	Attempts int
	// Degraded is set when Reply is one of the fixed fallbacks.
	Degraded bool
}

// Controller drives engine submission, tool execution and the tool-result
// follow-up for one turn.
type Controller struct {
	engine   llm.Engine
	executor Executor
	log      logrus.FieldLogger
	metrics  *metrics.Collector
	sleep    Sleeper
	specs    []llm.ToolSpec
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithSleeper replaces the context-aware timer used between attempts.
func WithSleeper(s Sleeper) ControllerOption {
	return func(c *Controller) { c.sleep = s }
}

// WithControllerMetrics records engine latency and retries.
func WithControllerMetrics(m *metrics.Collector) ControllerOption {
	return func(c *Controller) { c.metrics = m }
}

// NewController declares every executor tool to the engine.
func NewController(engine llm.Engine, executor Executor, log logrus.FieldLogger, opts ...ControllerOption) *Controller {
	c := &Controller{
		engine:   engine,
		executor: executor,
		log:      log.WithField("component", "controller"),
		sleep:    sleepCtx,
	}
	for _, t := range executor.Tools() {
		c.specs = append(c.specs, llm.ToolSpec{Name: t.Name(), Description: t.Description, Parameters: t.Parameters})
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run performs one round trip. It never fails: engine errors degrade to the
// fixed fallback replies.
//
// Engine calls and tool execution are detached from ctx cancellation so a
// turn whose caller hung up still completes; ctx only aborts the wait
// between attempts.
func (c *Controller) Run(ctx context.Context, t Turn) Outcome {
	log := c.log.WithField("session_id", t.Caller.SessionID)
	work := context.WithoutCancel(ctx)

	var resp llm.Response
	attempts, err := c.retry(ctx, log, func() error {
		start := time.Now()
		var err error
		resp, err = c.engine.Submit(work, llm.Request{
			System:  SystemPrompt,
			History: t.History,
			Message: t.Context,
			Tools:   c.specs,
		})
		c.metrics.Since(metrics.LLMLatencyMS, start)
		return err
	})
	if err != nil {
		return Outcome{Reply: failureReply(err), Attempts: attempts, Degraded: true}
	}

	if len(resp.ToolCalls) == 0 {
		reply := resp.Text
		if reply == "" {
			reply = EmptyReply
		}
		return Outcome{Reply: reply, Attempts: attempts}
	}

	results := make([]tools.Result, 0, len(resp.ToolCalls))
	for _, call := range resp.ToolCalls {
		results = append(results, c.executor.Execute(work, call.Name, call.Arguments, t.Caller))
	}

	// Only the last requested tool's result is returned to the engine.
	last := resp.ToolCalls[len(resp.ToolCalls)-1]
	if len(resp.ToolCalls) > 1 {
		log.WithField("dropped", len(resp.ToolCalls)-1).Warn("earlier tool results not sent to engine")
	}
	payload := results[len(results)-1].JSON()

	var text string
	_, err = c.retry(ctx, log, func() error {
		start := time.Now()
		var err error
		text, err = c.engine.SubmitToolResult(work, llm.Request{
			System:  SystemPrompt,
			History: t.History,
			Message: t.Text,
			Tools:   c.specs,
		}, last, payload)
		c.metrics.Since(metrics.LLMLatencyMS, start)
		return err
	})
	if err != nil {
		reply := ToolFallbackReply
		if errors.Is(err, llm.ErrUnavailable) {
			reply = UnavailableReply
		}
		return Outcome{Reply: reply, Results: results, Attempts: attempts, Degraded: true}
	}
	if text == "" {
		text = EmptyReply
	}
	return Outcome{Reply: text, Results: results, Attempts: attempts}
}

// retry calls fn up to MaxAttempts times while it fails with a retryable
// error, waiting attempt*BackoffStep in between.
func (c *Controller) retry(ctx context.Context, log logrus.FieldLogger, fn func() error) (int, error) {
	var err error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return attempt, nil
		}
		entry := log.WithError(err).WithField("attempt", attempt)
		if !llm.IsRetryable(err) || attempt == MaxAttempts {
			entry.Error("engine call failed")
			return attempt, err
		}
		wait := time.Duration(attempt) * BackoffStep
		entry.WithField("wait", wait).Warn("engine rate limited, retrying")
		c.metrics.Inc(metrics.LLMRetriesTotal)
		if serr := c.sleep(ctx, wait); serr != nil {
			return attempt, serr
		}
	}
	return MaxAttempts, err
}

func failureReply(err error) string {
	if errors.Is(err, llm.ErrUnavailable) {
		return UnavailableReply
	}
	return FallbackReply
}
