package chain

import (
	"context"
	"time"

	"github.com/ilkoid/knowme/pkg/events"
	"github.com/ilkoid/knowme/pkg/llm"
)

// EventObserver транслирует ход обмена в events.Emitter.
//
// Один экземпляр на обмен. Текст ошибки провайдера наружу не уходит.
type EventObserver struct {
	emitter events.Emitter
	ctx     context.Context
}

// NewEventObserver создаёт наблюдатель поверх emitter.
func NewEventObserver(emitter events.Emitter) *EventObserver {
	return &EventObserver{emitter: emitter, ctx: context.Background()}
}

func (o *EventObserver) emit(t events.EventType, data events.EventData) {
	o.emitter.Emit(o.ctx, events.Event{Type: t, Data: data, Timestamp: time.Now()})
}

// OnStart запоминает контекст обмена для отправки событий.
func (o *EventObserver) OnStart(ctx context.Context, exec *LoopExecution) {
	o.ctx = ctx
}

// OnRoundStart вызывается в начале раунда.
func (o *EventObserver) OnRoundStart(round int) {}

// OnModelResponse отправляет tool_call на каждый запрошенный инструмент.
func (o *EventObserver) OnModelResponse(round int, resp llm.Response, outcome ModelOutcome) {
	if outcome.Err != nil {
		return
	}
	for _, call := range resp.Calls {
		o.emit(events.EventToolCall, events.ToolCallData{Round: round, Tool: call.Name, Args: call.Args})
	}
}

// OnToolResult отправляет tool_result.
func (o *EventObserver) OnToolResult(round int, outcome ToolOutcome) {
	o.emit(events.EventToolResult, events.ToolResultData{
		Round:      round,
		Tool:       outcome.Result.ToolName,
		Result:     outcome.Result.Payload,
		DurationMs: outcome.Duration.Milliseconds(),
		Failed:     outcome.Result.IsError(),
	})
}

// OnRoundEnd вызывается в конце раунда.
func (o *EventObserver) OnRoundEnd(round int, state LoopState) {}

// OnFinish отправляет done или error.
func (o *EventObserver) OnFinish(out LoopOutput, err error) {
	if err != nil {
		o.emit(events.EventError, events.ErrorData{Message: "chat failed"})
		return
	}
	o.emit(events.EventDone, events.DoneData{Text: out.Text, State: out.State.String(), Rounds: out.Rounds})
}

// Ensure EventObserver implements ExecutionObserver
var _ ExecutionObserver = (*EventObserver)(nil)
