// Package events — поток событий обмена для подписчиков (WebSocket, CLI).
//
// Port & Adapter: библиотека (pkg/chain) пишет в Emitter, а транспорт
// сам решает, как доставить события клиенту.
//
//	emitter := events.NewChanEmitter(16)
//	go func() {
//	    for ev := range emitter.Subscribe().Events() {
//	        conn.WriteJSON(ev)
//	    }
//	}()
//
// Все реализации интерфейсов должны быть thread-safe.
package events

import (
	"context"
	"time"
)

// EventType представляет тип события обмена.
type EventType string

const (
	// EventToolCall отправляется когда модель запросила инструмент.
	EventToolCall EventType = "tool_call"

	// EventToolResult отправляется когда инструмент вернул результат.
	EventToolResult EventType = "tool_result"

	// EventError отправляется при фатальной ошибке обмена.
	EventError EventType = "error"

	// EventDone отправляется когда обмен завершён с ответом.
	EventDone EventType = "done"
)

// EventData — sealed interface для данных события.
//
// Только типы из пакета events могут реализовать этот интерфейс.
type EventData interface {
	eventData()
}

// ToolCallData содержит данные о вызове инструмента.
type ToolCallData struct {
	Round int            `json:"round"`
	Tool  string         `json:"tool"`
	Args  map[string]any `json:"args"`
}

func (ToolCallData) eventData() {}

// ToolResultData содержит результат выполнения инструмента.
type ToolResultData struct {
	Round      int            `json:"round"`
	Tool       string         `json:"tool"`
	Result     map[string]any `json:"result"`
	DurationMs int64          `json:"duration_ms"`
	Failed     bool           `json:"failed"`
}

func (ToolResultData) eventData() {}

// DoneData содержит итог обмена.
type DoneData struct {
	Text   string `json:"text"`
	State  string `json:"state"`
	Rounds int    `json:"rounds"`
}

func (DoneData) eventData() {}

// ErrorData содержит данные для EventError.
//
// Message — безопасный для клиента текст, без деталей провайдера.
type ErrorData struct {
	Message string `json:"message"`
}

func (ErrorData) eventData() {}

// Event представляет событие обмена.
//
// Для каждого EventType существует соответствующий тип данных:
//   - EventToolCall: ToolCallData
//   - EventToolResult: ToolResultData
//   - EventDone: DoneData
//   - EventError: ErrorData
type Event struct {
	Type      EventType `json:"type"`
	Data      EventData `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Emitter — это Port для отправки событий.
type Emitter interface {
	// Emit отправляет событие. Если context отменён, событие отбрасывается.
	Emit(ctx context.Context, event Event)
}

// Subscriber позволяет читать события из канала.
type Subscriber interface {
	// Events возвращает read-only канал событий.
	//
	// Канал закрывается при закрытии эмиттера.
	Events() <-chan Event
}
