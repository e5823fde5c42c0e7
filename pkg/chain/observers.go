package chain

import (
	"context"

	"github.com/ilkoid/knowme/pkg/llm"
	"github.com/ilkoid/knowme/pkg/utils"
)

// LoggingObserver пишет ход обмена в лог приложения.
type LoggingObserver struct {
	exchangeID string
}

// NewLoggingObserver создаёт наблюдатель; exchangeID попадает в каждую строку.
func NewLoggingObserver(exchangeID string) *LoggingObserver {
	return &LoggingObserver{exchangeID: exchangeID}
}

// OnStart вызывается в начале обмена.
func (o *LoggingObserver) OnStart(ctx context.Context, exec *LoopExecution) {
	utils.Info("Exchange started",
		"exchange", o.exchangeID,
		"seed_turns", exec.Conversation.Len(),
		"max_rounds", exec.config.MaxRounds)
}

// OnRoundStart вызывается в начале раунда.
func (o *LoggingObserver) OnRoundStart(round int) {
	utils.Debug("Round started", "exchange", o.exchangeID, "round", round)
}

// OnModelResponse вызывается после вызова модели.
func (o *LoggingObserver) OnModelResponse(round int, resp llm.Response, outcome ModelOutcome) {
	if outcome.Err != nil {
		return
	}
	names := make([]string, len(resp.Calls))
	for i, c := range resp.Calls {
		names[i] = c.Name
	}
	utils.Info("Model response",
		"exchange", o.exchangeID,
		"round", round,
		"tool_calls", names,
		"no_candidate", resp.NoCandidate,
		"duration_ms", outcome.Duration)
}

// OnToolResult вызывается для каждого результата раунда в порядке вызовов.
func (o *LoggingObserver) OnToolResult(round int, outcome ToolOutcome) {
	r := outcome.Result
	if r.IsError() {
		utils.Warn("Tool returned error",
			"exchange", o.exchangeID,
			"round", round,
			"tool", r.ToolName,
			"error", r.Payload["error"])
		return
	}
	utils.Info("Tool completed",
		"exchange", o.exchangeID,
		"round", round,
		"tool", r.ToolName,
		"duration", outcome.Duration)
}

// OnRoundEnd вызывается в конце раунда.
func (o *LoggingObserver) OnRoundEnd(round int, state LoopState) {
	utils.Debug("Round finished", "exchange", o.exchangeID, "round", round, "state", state)
}

// OnFinish вызывается в конце обмена (успех или ошибка).
func (o *LoggingObserver) OnFinish(out LoopOutput, err error) {
	if err != nil {
		utils.Error("Exchange failed",
			"exchange", o.exchangeID,
			"rounds", out.Rounds,
			"error", err)
		return
	}
	utils.Info("Exchange finished",
		"exchange", o.exchangeID,
		"state", out.State,
		"rounds", out.Rounds,
		"tool_calls", len(out.Audit),
		"total_tokens", out.Usage.TotalTokens,
		"embedding_tokens", out.Usage.EmbeddingTokens,
		"duration", out.Duration)
}

// Ensure LoggingObserver implements ExecutionObserver
var _ ExecutionObserver = (*LoggingObserver)(nil)
