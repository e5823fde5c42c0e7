package chain

import (
	"context"
	"fmt"

	"github.com/ilkoid/knowme/pkg/llm"
)

// StepExecutor — исполнитель машины состояний над LoopExecution.
type StepExecutor interface {
	Execute(ctx context.Context, exec *LoopExecution) (LoopOutput, error)
}

// ExecutionObserver — наблюдатель за выполнением обмена.
//
// Вызывается синхронно из executor, в одной goroutine.
// Реализации не должны менять LoopExecution.
type ExecutionObserver interface {
	OnStart(ctx context.Context, exec *LoopExecution)
	OnRoundStart(round int)
	OnModelResponse(round int, resp llm.Response, outcome ModelOutcome)
	OnToolResult(round int, outcome ToolOutcome)
	OnRoundEnd(round int, state LoopState)
	OnFinish(out LoopOutput, err error)
}

// ModelOutcome — метаданные вызова модели для observers.
type ModelOutcome struct {
	Duration int64 // мс, включая backoff
	Err      error
}

// LoopExecutor — машина состояний цикла инструментов.
//
// Раунд:
//  1. AWAITING_MODEL: вызов модели (с retry при rate limit)
//  2. нет кандидата → HAVE_FINAL_TEXT с NoResponseText
//  3. нет tool calls → HAVE_FINAL_TEXT с текстом модели
//  4. HAVE_TOOL_CALLS: выполнение, журнал, ход с результатами
//  5. лимит раундов → EXHAUSTED с LoopExceededText
//
// Ошибка возвращается только если модель недоступна (не rate limit,
// или rate limit после всех повторов) либо отменён ctx.
type LoopExecutor struct {
	observers []ExecutionObserver
}

// NewLoopExecutor создаёт executor с наблюдателями.
func NewLoopExecutor(observers ...ExecutionObserver) *LoopExecutor {
	list := make([]ExecutionObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return &LoopExecutor{observers: list}
}

// Execute выполняет обмен до терминального состояния.
func (e *LoopExecutor) Execute(ctx context.Context, exec *LoopExecution) (LoopOutput, error) {
	e.notifyStart(ctx, exec)

	for exec.rounds < exec.config.MaxRounds {
		if err := ctx.Err(); err != nil {
			return e.fail(exec, fmt.Errorf("exchange cancelled: %w", err))
		}

		exec.rounds++
		exec.state = StateAwaitingModel
		e.notifyRoundStart(exec.rounds)

		action, err := e.runRound(ctx, exec)
		e.notifyRoundEnd(exec.rounds, exec.state)

		switch action {
		case ActionError:
			return e.fail(exec, err)
		case ActionBreak:
			return e.finish(exec)
		}
	}

	exec.state = StateExhausted
	exec.text = LoopExceededText
	return e.finish(exec)
}

// runRound выполняет один раунд и возвращает следующее действие.
func (e *LoopExecutor) runRound(ctx context.Context, exec *LoopExecution) (NextAction, error) {
	resp, duration, err := exec.modelStep.Invoke(ctx, exec.Conversation)
	e.notifyModelResponse(exec.rounds, resp, ModelOutcome{Duration: duration.Milliseconds(), Err: err})
	if err != nil {
		return ActionError, fmt.Errorf("round %d: %w", exec.rounds, err)
	}

	exec.Usage.AddTotal(resp.Usage.TotalTokens)

	if resp.NoCandidate {
		exec.state = StateHaveFinalText
		exec.text = NoResponseText
		return ActionBreak, nil
	}

	if len(resp.Calls) == 0 {
		exec.state = StateHaveFinalText
		exec.text = resp.Text
		if exec.text == "" {
			exec.text = NoResponseText
		}
		if err := exec.Conversation.Append(llm.ModelTurn(exec.text, nil)); err != nil {
			return ActionError, err
		}
		return ActionBreak, nil
	}

	exec.state = StateHaveToolCalls
	if err := exec.Conversation.Append(llm.ModelTurn(resp.Text, resp.Calls)); err != nil {
		return ActionError, err
	}

	outcomes := exec.toolStep.Execute(ctx, resp.Calls)

	results := make([]llm.ToolResult, len(outcomes))
	for i, o := range outcomes {
		results[i] = o.Result
		exec.audit = append(exec.audit, AuditEntry{
			Tool:   o.Result.ToolName,
			Args:   o.Result.Args,
			Result: o.Result.Payload,
		})
		exec.Usage.AddEmbedding(costUnits(o.Result.Payload))
		e.notifyToolResult(exec.rounds, o)
	}

	if err := exec.Conversation.Append(llm.Turn{Role: llm.RoleToolResult, Results: results}); err != nil {
		return ActionError, err
	}

	return ActionContinue, nil
}

func (e *LoopExecutor) finish(exec *LoopExecution) (LoopOutput, error) {
	out := exec.output()
	e.notifyFinish(out, nil)
	return out, nil
}

func (e *LoopExecutor) fail(exec *LoopExecution, err error) (LoopOutput, error) {
	e.notifyFinish(exec.output(), err)
	return LoopOutput{}, err
}

func (e *LoopExecutor) notifyStart(ctx context.Context, exec *LoopExecution) {
	for _, o := range e.observers {
		o.OnStart(ctx, exec)
	}
}

func (e *LoopExecutor) notifyRoundStart(round int) {
	for _, o := range e.observers {
		o.OnRoundStart(round)
	}
}

func (e *LoopExecutor) notifyModelResponse(round int, resp llm.Response, outcome ModelOutcome) {
	for _, o := range e.observers {
		o.OnModelResponse(round, resp, outcome)
	}
}

func (e *LoopExecutor) notifyToolResult(round int, outcome ToolOutcome) {
	for _, o := range e.observers {
		o.OnToolResult(round, outcome)
	}
}

func (e *LoopExecutor) notifyRoundEnd(round int, state LoopState) {
	for _, o := range e.observers {
		o.OnRoundEnd(round, state)
	}
}

func (e *LoopExecutor) notifyFinish(out LoopOutput, err error) {
	for _, o := range e.observers {
		o.OnFinish(out, err)
	}
}

// Ensure LoopExecutor implements StepExecutor
var _ StepExecutor = (*LoopExecutor)(nil)
