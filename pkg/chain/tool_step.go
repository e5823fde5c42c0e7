package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ilkoid/knowme/pkg/llm"
	"github.com/ilkoid/knowme/pkg/tools"
	"github.com/ilkoid/knowme/pkg/utils"
)

// ToolExecutionStep — выполнение tool calls одного раунда.
//
// Никогда не возвращает ошибку: неизвестный инструмент, битые аргументы,
// timeout и panic адаптера превращаются в payload {"error": ...}.
type ToolExecutionStep struct {
	registry *tools.Registry
	config   *LoopConfig
}

// ToolOutcome — результат вызова вместе с длительностью.
type ToolOutcome struct {
	Result   llm.ToolResult
	Duration time.Duration
}

// Name возвращает имя Step (для логирования).
func (s *ToolExecutionStep) Name() string {
	return "tool_execution"
}

// Execute выполняет вызовы и возвращает результаты в порядке calls,
// независимо от порядка завершения.
func (s *ToolExecutionStep) Execute(ctx context.Context, calls []llm.ToolCall) []ToolOutcome {
	outcomes := make([]ToolOutcome, len(calls))

	if !s.config.ParallelTools || len(calls) == 1 {
		for i, tc := range calls {
			outcomes[i] = s.executeToolCall(ctx, i, tc)
		}
		return outcomes
	}

	var wg sync.WaitGroup
	for i, tc := range calls {
		wg.Add(1)
		go func(i int, tc llm.ToolCall) {
			defer wg.Done()
			outcomes[i] = s.executeToolCall(ctx, i, tc)
		}(i, tc)
	}
	wg.Wait()

	return outcomes
}

// executeToolCall выполняет один вызов под собственным timeout.
func (s *ToolExecutionStep) executeToolCall(ctx context.Context, index int, tc llm.ToolCall) ToolOutcome {
	start := time.Now()
	result := llm.ToolResult{
		CallID:    tc.ID,
		ToolName:  tc.Name,
		Args:      tc.Args,
		CallIndex: index,
	}
	if result.Args == nil {
		result.Args = map[string]any{}
	}

	finish := func(payload map[string]any) ToolOutcome {
		result.Payload = payload
		return ToolOutcome{Result: result, Duration: time.Since(start)}
	}

	tool, err := s.registry.Get(tc.Name)
	if err != nil {
		utils.Warn("Model requested unknown tool", "tool", tc.Name)
		return finish(errorPayload("Unknown tool: " + tc.Name))
	}

	if tc.DecodeErr != nil {
		utils.Warn("Tool arguments could not be decoded",
			"tool", tc.Name,
			"raw", utils.Truncate(tc.RawArgs, 200),
			"error", tc.DecodeErr)
		return finish(errorPayload(fmt.Sprintf("Invalid arguments for %s: %v", tc.Name, tc.DecodeErr)))
	}

	args := tools.Normalize(tool.Definition(), tc.Args)
	result.Args = args

	timeout := s.config.timeoutFor(tc.Name)
	toolCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Инструмент выполняется в отдельной goroutine, чтобы timeout
	// срабатывал даже если адаптер игнорирует ctx.
	resultChan := make(chan map[string]any, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				utils.Error("Tool panicked", "tool", tc.Name, "panic", r)
				resultChan <- errorPayload(fmt.Sprintf("tool %s failed: %v", tc.Name, r))
			}
		}()
		resultChan <- tool.Execute(toolCtx, args)
	}()

	select {
	case <-toolCtx.Done():
		if errors.Is(toolCtx.Err(), context.DeadlineExceeded) {
			utils.Warn("Tool execution timeout",
				"tool", tc.Name,
				"timeout", timeout,
				"duration", time.Since(start))
			return finish(errorPayload(fmt.Sprintf("tool %s timed out after %v", tc.Name, timeout)))
		}
		return finish(errorPayload(fmt.Sprintf("tool %s cancelled: %v", tc.Name, toolCtx.Err())))

	case payload := <-resultChan:
		if payload == nil {
			payload = errorPayload(fmt.Sprintf("tool %s returned no result", tc.Name))
		}
		out := finish(payload)
		utils.Debug("Tool executed",
			"tool", tc.Name,
			"index", index,
			"is_error", out.Result.IsError(),
			"duration", out.Duration)
		return out
	}
}

func errorPayload(msg string) map[string]any {
	return map[string]any{"error": msg}
}

// costUnits достаёт estimated_cost_units из payload (rag_search).
func costUnits(payload map[string]any) int {
	switch v := payload["estimated_cost_units"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
