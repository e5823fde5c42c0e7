package chain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ilkoid/knowme/pkg/debug"
	"github.com/ilkoid/knowme/pkg/llm"
	"github.com/ilkoid/knowme/pkg/utils"
)

// DebugConfig — конфигурация JSON трейсов обменов.
type DebugConfig struct {
	Enabled            bool
	LogsDir            string
	IncludeToolArgs    bool
	IncludeToolResults bool
	MaxResultSize      int
}

// TraceObserver пишет трейс обмена через debug.Recorder.
//
// Один экземпляр на обмен.
type TraceObserver struct {
	recorder *debug.Recorder
	path     string
}

// NewTraceObserver создаёт наблюдатель для обмена exchangeID.
//
// Возвращает (nil, nil) если трейсы выключены.
func NewTraceObserver(cfg DebugConfig, exchangeID, userMessage string) (*TraceObserver, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	recorder, err := debug.NewRecorder(debug.RecorderConfig{
		LogsDir:            cfg.LogsDir,
		IncludeToolArgs:    cfg.IncludeToolArgs,
		IncludeToolResults: cfg.IncludeToolResults,
		MaxResultSize:      cfg.MaxResultSize,
	}, exchangeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace recorder: %w", err)
	}
	recorder.Start(userMessage)

	return &TraceObserver{recorder: recorder}, nil
}

// Path возвращает путь к сохранённому трейсу (пусто до OnFinish).
func (o *TraceObserver) Path() string {
	return o.path
}

// OnStart вызывается в начале обмена.
func (o *TraceObserver) OnStart(ctx context.Context, exec *LoopExecution) {}

// OnRoundStart начинает раунд в трейсе.
func (o *TraceObserver) OnRoundStart(round int) {
	o.recorder.StartRound(round)
}

// OnModelResponse записывает ответ модели.
func (o *TraceObserver) OnModelResponse(round int, resp llm.Response, outcome ModelOutcome) {
	call := debug.ModelCall{
		Text:        resp.Text,
		Tokens:      resp.Usage.TotalTokens,
		NoCandidate: resp.NoCandidate,
		Duration:    outcome.Duration,
	}
	if outcome.Err != nil {
		call.Error = outcome.Err.Error()
	}
	for _, tc := range resp.Calls {
		call.ToolCalls = append(call.ToolCalls, debug.ToolCallInfo{
			ID:   tc.ID,
			Name: tc.Name,
			Args: tc.RawArgs,
		})
	}
	o.recorder.RecordModelCall(call)
}

// OnToolResult записывает выполнение инструмента.
func (o *TraceObserver) OnToolResult(round int, outcome ToolOutcome) {
	r := outcome.Result
	exec := debug.ToolExecution{
		Name:     r.ToolName,
		Args:     marshalForTrace(r.Args),
		Result:   marshalForTrace(r.Payload),
		Duration: outcome.Duration.Milliseconds(),
		Success:  !r.IsError(),
	}
	if msg, ok := r.Payload["error"]; ok {
		exec.Error = fmt.Sprint(msg)
	}
	o.recorder.RecordToolExecution(exec)
}

// OnRoundEnd завершает раунд в трейсе.
func (o *TraceObserver) OnRoundEnd(round int, state LoopState) {
	o.recorder.EndRound(state.String())
}

// OnFinish сохраняет трейс в файл.
func (o *TraceObserver) OnFinish(out LoopOutput, err error) {
	outcome := debug.Outcome{
		FinalText:       out.Text,
		Err:             err,
		TotalTokens:     out.Usage.TotalTokens,
		EmbeddingTokens: out.Usage.EmbeddingTokens,
		Duration:        out.Duration,
	}
	if err == nil {
		outcome.State = out.State.String()
	}

	path, ferr := o.recorder.Finalize(outcome)
	if ferr != nil {
		utils.Warn("Failed to save exchange trace", "run_id", o.recorder.RunID(), "error", ferr)
		return
	}
	o.path = path
	utils.Debug("Exchange trace saved", "path", path)
}

func marshalForTrace(v map[string]any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// Ensure TraceObserver implements ExecutionObserver
var _ ExecutionObserver = (*TraceObserver)(nil)
