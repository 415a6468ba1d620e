package service

import (
	"context"
	"fmt"
	"time"

	"github.com/weiawesome/wes-io-live/pkg/pubsub"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/ai"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/audit"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/domain"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/llm"
)

const (
	aiBusyNotice     = "AI is already thinking, please wait for the current reply."
	aiThinkingNotice = "AI is thinking..."
)

// triggerAI starts an AI turn unless one is already running. Concurrent
// triggers are rejected, not queued.
func (r *Room) triggerAI(requestedBy, prompt string) bool {
	if r.aiRunning.Load() {
		r.systemNotice(aiBusyNotice)
		return false
	}
	r.aiRunning.Store(true)

	turn := ai.Turn{
		System: ai.SystemPrompt(r.state.Settings(), r.state.Pinned(), r.state.ArtifactIndex()),
		Prompt: ai.UserPrompt(r.state.RecentHistory(r.cfg.AIContextMessages), requestedBy, prompt),
	}
	r.systemNotice(aiThinkingNotice)

	go r.runAI(turn, requestedBy, r.now())
	return true
}

func (r *Room) runAI(turn ai.Turn, requestedBy string, started time.Time) {
	reply, err := r.ai.Run(r.ctx, turn, r.runTools)
	if !r.post(func() { r.finishAI(reply, err, requestedBy, started) }) {
		r.aiRunning.Store(false)
	}
}

// runTools executes tool calls on the actor, in order.
func (r *Room) runTools(ctx context.Context, calls []llm.ToolCall) ([]string, error) {
	out := make(chan []string, 1)
	err := r.call(ctx, func() {
		if err := r.ensureHydrated(); err != nil {
			r.logger.Error().Err(err).Msg("tool round without room state")
		}
		out <- ai.ExecuteAll(toolTarget{r}, calls)
	})
	if err != nil {
		return nil, err
	}
	return <-out, nil
}

// finishAI is the final continuation of a turn. It always releases the flag.
func (r *Room) finishAI(reply string, err error, requestedBy string, started time.Time) {
	defer r.aiRunning.Store(false)

	if herr := r.ensureHydrated(); herr != nil {
		r.logger.Error().Err(herr).Msg("dropping AI reply, room state unavailable")
		return
	}

	elapsed := r.now().Sub(started)
	if err != nil {
		r.logger.Error().Err(err).Dur("elapsed", elapsed).Msg("AI turn failed")
		audit.LogWithDetail(r.ctx, audit.ActionAITurnFailed, requestedBy, err.Error(), "AI turn failed")
		r.systemNotice("AI error: " + err.Error())
		return
	}

	e := r.appendChatFlushed(domain.UserAI, reply)
	r.publish(pubsub.EventAIReplied, pubsub.ChatPostedPayload{User: e.User, Text: e.Text, TS: e.TS})
	audit.LogWithDetail(r.ctx, audit.ActionAITurn, requestedBy, fmt.Sprintf("%dms", elapsed.Milliseconds()), "AI replied")
}
