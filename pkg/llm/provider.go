// Интерфейс Провайдера через который работает всё приложение.

package llm

import (
	"context"

	"github.com/ilkoid/knowme/pkg/tools"
)

// Provider — абстракция над LLM API с поддержкой Function Calling.
type Provider interface {
	// Generate отправляет весь разговор и каталог инструментов модели.
	// Возвращает разобранный ответ (текст + tool calls) или *ProviderError.
	Generate(ctx context.Context, turns []Turn, defs []tools.ToolDefinition, opts ...GenerateOption) (Response, error)
}

// Embedder — вычисляет векторное представление текста.
type Embedder interface {
	// Embed возвращает вектор и количество токенов, которое сообщил провайдер
	// (0 если провайдер не сообщает usage).
	Embed(ctx context.Context, text string) ([]float32, int, error)
}
