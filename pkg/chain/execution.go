package chain

import (
	"context"
	"time"
)

// LoopExecution — runtime состояние одного обмена.
//
// Создаётся на каждый вызов ToolLoop.Execute() и не разделяется между
// обменами. Логика исполнения живёт в LoopExecutor.
type LoopExecution struct {
	ctx context.Context

	// Conversation — ходы обмена (seed + раунды)
	Conversation *Conversation

	// Usage — токены обмена
	Usage *UsageAccumulator

	modelStep *ModelInvocationStep
	toolStep  *ToolExecutionStep
	config    *LoopConfig

	audit     []AuditEntry
	state     LoopState
	rounds    int
	text      string
	startTime time.Time
}

// NewLoopExecution создаёт execution для одного обмена.
func NewLoopExecution(
	ctx context.Context,
	input LoopInput,
	modelStep *ModelInvocationStep,
	toolStep *ToolExecutionStep,
	config *LoopConfig,
) *LoopExecution {
	return &LoopExecution{
		ctx:          ctx,
		Conversation: NewConversation(input.Turns),
		Usage:        &UsageAccumulator{},
		modelStep:    modelStep,
		toolStep:     toolStep,
		config:       config,
		audit:        make([]AuditEntry, 0),
		state:        StateAwaitingModel,
		startTime:    time.Now(),
	}
}

// State возвращает текущее состояние машины.
func (e *LoopExecution) State() LoopState {
	return e.state
}

// Round возвращает номер текущего раунда (с 1).
func (e *LoopExecution) Round() int {
	return e.rounds
}

// output собирает LoopOutput из текущего состояния.
func (e *LoopExecution) output() LoopOutput {
	audit := make([]AuditEntry, len(e.audit))
	copy(audit, e.audit)

	return LoopOutput{
		Text:     e.text,
		Audit:    audit,
		Usage:    e.Usage.Snapshot(),
		Rounds:   e.rounds,
		State:    e.state,
		Duration: time.Since(e.startTime),
	}
}
