package chain

import "fmt"

// LoopState — состояние машины цикла.
type LoopState int

const (
	// StateAwaitingModel — ждём ответ модели (начальное состояние раунда).
	StateAwaitingModel LoopState = iota

	// StateHaveToolCalls — модель запросила инструменты.
	StateHaveToolCalls

	// StateHaveFinalText — получен финальный ответ (терминальное).
	StateHaveFinalText

	// StateExhausted — лимит раундов исчерпан (терминальное).
	StateExhausted
)

// String возвращает строковое представление LoopState.
func (s LoopState) String() string {
	switch s {
	case StateAwaitingModel:
		return "AWAITING_MODEL"
	case StateHaveToolCalls:
		return "HAVE_TOOL_CALLS"
	case StateHaveFinalText:
		return "HAVE_FINAL_TEXT"
	case StateExhausted:
		return "EXHAUSTED"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// Terminal сообщает, завершает ли состояние обмен.
func (s LoopState) Terminal() bool {
	return s == StateHaveFinalText || s == StateExhausted
}

// NextAction определяет, что делает executor после шага.
type NextAction int

const (
	// ActionContinue — следующий раунд.
	ActionContinue NextAction = iota

	// ActionBreak — терминальное состояние достигнуто.
	ActionBreak

	// ActionError — фатальная ошибка обмена.
	ActionError
)

// String возвращает строковое представление NextAction (для дебага).
func (a NextAction) String() string {
	switch a {
	case ActionContinue:
		return "Continue"
	case ActionBreak:
		return "Break"
	case ActionError:
		return "Error"
	default:
		return fmt.Sprintf("Unknown(%d)", a)
	}
}
