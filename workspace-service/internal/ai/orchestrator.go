package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/llm"
)

// ErrEmptyAIResponse is returned when the model produced no text.
var ErrEmptyAIResponse = errors.New("empty AI response")

// Turn is the context captured on the room actor when the AI is triggered.
type Turn struct {
	System string
	Prompt string
}

// ToolRunner executes tool calls on the room actor and returns one result
// per call.
type ToolRunner func(ctx context.Context, calls []llm.ToolCall) ([]string, error)

// Orchestrator runs the two-phase tool protocol: one call with tools, at
// most one tool round, then one call without tools.
type Orchestrator struct {
	client  llm.Client
	timeout time.Duration
	logger  zerolog.Logger
}

func NewOrchestrator(client llm.Client, timeout time.Duration, logger zerolog.Logger) *Orchestrator {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Orchestrator{client: client, timeout: timeout, logger: logger}
}

func (o *Orchestrator) Run(ctx context.Context, turn Turn, runTools ToolRunner) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	messages := []llm.Message{{Role: llm.RoleUser, Content: turn.Prompt}}

	first, err := o.client.Complete(ctx, llm.Request{
		System:   turn.System,
		Messages: messages,
		Tools:    Tools(),
	})
	if err != nil {
		return "", err
	}

	if len(first.ToolCalls) == 0 {
		return replyText(first)
	}

	calls := make([]llm.ToolCall, len(first.ToolCalls))
	for i, call := range first.ToolCalls {
		if call.ID == "" {
			call.ID = fmt.Sprintf("call_%d", i)
		}
		calls[i] = call
	}

	results, err := runTools(ctx, calls)
	if err != nil {
		return "", fmt.Errorf("running tools: %w", err)
	}
	if len(results) != len(calls) {
		return "", fmt.Errorf("running tools: got %d results for %d calls", len(results), len(calls))
	}

	messages = append(messages, llm.Message{
		Role:      llm.RoleAssistant,
		Content:   first.Text,
		ToolCalls: calls,
	})
	for i, call := range calls {
		o.logger.Debug().Str(log.FieldTool, call.Name).Str("result", results[i]).Msg("tool executed")
		messages = append(messages, llm.Message{
			Role:       llm.RoleTool,
			ToolCallID: call.ID,
			Content:    results[i],
		})
	}

	second, err := o.client.Complete(ctx, llm.Request{
		System:   turn.System,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	return replyText(second)
}

func replyText(resp *llm.Response) (string, error) {
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyAIResponse
	}
	return text, nil
}
