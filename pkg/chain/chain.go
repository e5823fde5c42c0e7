// Package chain реализует цикл вызова инструментов (tool-calling loop).
//
// Один раунд: модель → разбор tool calls → выполнение инструментов →
// результаты обратно в разговор. Цикл повторяется, пока модель не ответит
// текстом без вызовов или не будет исчерпан лимит раундов.
//
// Архитектура:
//   - ToolLoop — неизменяемый шаблон (зависимости + конфигурация)
//   - LoopExecution — runtime состояние одного обмена
//   - LoopExecutor — логика машины состояний
//   - ExecutionObserver — сквозные задачи (логи, трейсы)
package chain

import (
	"context"
	"time"

	"github.com/ilkoid/knowme/pkg/llm"
)

// Chain выполняет один обмен с моделью.
//
// Реализации неизменяемы после создания и безопасны для параллельных вызовов.
type Chain interface {
	Execute(ctx context.Context, input LoopInput) (LoopOutput, error)
}

// LoopInput — входные данные обмена.
type LoopInput struct {
	// Turns — начальное состояние разговора: системная инструкция,
	// история сессии (опционально) и сообщение пользователя.
	Turns []llm.Turn
}

// AuditEntry — запись журнала вызовов инструментов.
type AuditEntry struct {
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args"`
	Result map[string]any `json:"result"`
}

// LoopOutput — результат обмена.
//
// Возвращается для любого терминального состояния (HAVE_FINAL_TEXT, EXHAUSTED).
type LoopOutput struct {
	// Text — финальный ответ модели или текст-заглушка
	Text string

	// Audit — все вызовы инструментов за обмен в порядке выполнения
	Audit []AuditEntry

	// Usage — накопленные токены модели и эмбеддингов
	Usage llm.Usage

	// Rounds — количество выполненных раундов
	Rounds int

	// State — терминальное состояние
	State LoopState

	// Duration — общее время обмена
	Duration time.Duration
}
