package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/ilkoid/knowme/pkg/llm"
	"github.com/ilkoid/knowme/pkg/tools"
)

// ToolLoop — неизменяемый шаблон цикла инструментов.
//
// Зависимости передаются при создании и живут весь процесс.
// Каждый Execute() создаёт свой LoopExecution, поэтому параллельные
// обмены не делят изменяемое состояние.
type ToolLoop struct {
	provider llm.Provider
	registry *tools.Registry
	config   LoopConfig

	modelStep *ModelInvocationStep
	toolStep  *ToolExecutionStep
}

// NewToolLoop создаёт цикл.
func NewToolLoop(provider llm.Provider, registry *tools.Registry, config LoopConfig) (*ToolLoop, error) {
	if provider == nil {
		return nil, fmt.Errorf("model provider is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("tools registry is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid loop config: %w", err)
	}
	if config.ToolTimeouts == nil {
		config.ToolTimeouts = map[string]time.Duration{}
	}

	loop := &ToolLoop{
		provider: provider,
		registry: registry,
		config:   config,
	}

	loop.modelStep = &ModelInvocationStep{
		provider:    provider,
		defs:        registry.Definitions(),
		temperature: config.Temperature,
		retry:       config.Retry,
	}
	loop.toolStep = &ToolExecutionStep{
		registry: registry,
		config:   &loop.config,
	}

	return loop, nil
}

// Config возвращает копию конфигурации.
func (l *ToolLoop) Config() LoopConfig {
	return l.config
}

// Execute выполняет обмен без дополнительных наблюдателей (только лог).
func (l *ToolLoop) Execute(ctx context.Context, input LoopInput) (LoopOutput, error) {
	return l.ExecuteWith(ctx, input, NewLoggingObserver(""))
}

// ExecuteWith выполняет обмен с заданными наблюдателями.
func (l *ToolLoop) ExecuteWith(ctx context.Context, input LoopInput, observers ...ExecutionObserver) (LoopOutput, error) {
	if len(input.Turns) == 0 {
		return LoopOutput{}, fmt.Errorf("conversation seed is empty")
	}

	exec := NewLoopExecution(ctx, input, l.modelStep, l.toolStep, &l.config)
	return NewLoopExecutor(observers...).Execute(ctx, exec)
}

// Ensure ToolLoop implements Chain
var _ Chain = (*ToolLoop)(nil)
