package chain

import (
	"context"
	"time"

	"github.com/ilkoid/knowme/pkg/llm"
	"github.com/ilkoid/knowme/pkg/tools"
	"github.com/ilkoid/knowme/pkg/utils"
)

// ModelInvocationStep — вызов модели с полным разговором и каталогом.
//
// Каталог передаётся целиком в каждом раунде и внутри обмена не меняется.
type ModelInvocationStep struct {
	provider    llm.Provider
	defs        []tools.ToolDefinition
	temperature float64
	retry       RetryPolicy
}

// Name возвращает имя Step (для логирования).
func (s *ModelInvocationStep) Name() string {
	return "model_invocation"
}

// Invoke отправляет разговор модели с повтором при rate limit.
//
// Возвращает разобранный ответ, длительность вызова (вместе с backoff)
// и ошибку провайдера или ErrRateLimitExhausted.
func (s *ModelInvocationStep) Invoke(ctx context.Context, conv *Conversation) (llm.Response, time.Duration, error) {
	start := time.Now()
	turns := conv.Turns()

	resp, err := s.retry.Do(ctx, func(ctx context.Context) (llm.Response, error) {
		return s.provider.Generate(ctx, turns, s.defs, llm.WithTemperature(s.temperature))
	})
	duration := time.Since(start)

	if err != nil {
		utils.Error("Model invocation failed",
			"turns", len(turns),
			"duration", duration,
			"error", err)
		return llm.Response{}, duration, err
	}

	utils.Debug("Model responded",
		"turns", len(turns),
		"calls", len(resp.Calls),
		"text_len", len(resp.Text),
		"tokens", resp.Usage.TotalTokens,
		"duration", duration)

	return resp, duration, nil
}
