package chain

import (
	"fmt"
	"time"

	"github.com/ilkoid/knowme/pkg/config"
)

// Значения по умолчанию.
const (
	DefaultMaxRounds   = 6
	DefaultTemperature = 0.2
	DefaultToolTimeout = 10 * time.Second
)

// Тексты терминальных состояний без ответа модели.
const (
	NoResponseText   = "No response."
	LoopExceededText = "Tool call loop exceeded."
)

// DefaultSystemPrompt — политика выбора инструментов.
const DefaultSystemPrompt = `You are a helpful assistant with access to four tools:

- rag_search: searches the user's own uploaded PDF documents. Use it first for
  questions about the user's documents, notes or files.
- web_search: searches the web. Use it for current events, general knowledge,
  or when rag_search returns no results.
- get_weather: current weather for a location.
- send_webhook_event: triggers an external workflow when the user asks to
  notify, trigger or automate something.

Call tools only when they help answer the question. After tool results arrive,
answer concisely and cite document sources (file and page) when you use them.`

// LoopConfig — конфигурация цикла инструментов.
type LoopConfig struct {
	// MaxRounds — максимальное количество раундов. По умолчанию: 6.
	MaxRounds int

	// Temperature — температура вызова модели. По умолчанию: 0.2.
	Temperature float64

	// ToolTimeout — timeout одного вызова инструмента. По умолчанию: 10s.
	ToolTimeout time.Duration

	// ToolTimeouts — переопределение timeout для конкретных инструментов.
	ToolTimeouts map[string]time.Duration

	// ParallelTools — выполнять вызовы раунда параллельно.
	ParallelTools bool

	// Retry — политика повторов при rate limit.
	Retry RetryPolicy
}

// NewLoopConfig создаёт конфигурацию с дефолтными значениями.
func NewLoopConfig() LoopConfig {
	return LoopConfig{
		MaxRounds:     DefaultMaxRounds,
		Temperature:   DefaultTemperature,
		ToolTimeout:   DefaultToolTimeout,
		ToolTimeouts:  map[string]time.Duration{},
		ParallelTools: true,
		Retry:         DefaultRetryPolicy(),
	}
}

// LoopConfigFromApp собирает конфигурацию цикла из config.yaml.
func LoopConfigFromApp(cfg *config.AppConfig) LoopConfig {
	chat := cfg.Chat.GetDefaults()

	lc := NewLoopConfig()
	lc.MaxRounds = chat.MaxRounds
	lc.Temperature = *chat.Temperature
	lc.ToolTimeout = chat.ToolTimeout
	lc.ParallelTools = *chat.ParallelTools
	lc.Retry.MaxRetries = chat.RetryAttempts
	lc.Retry.BaseDelay = chat.RetryBaseDelay

	for name := range cfg.Tools {
		lc.ToolTimeouts[name] = cfg.ToolTimeout(name)
	}
	return lc
}

// Validate проверяет конфигурацию на валидность.
func (c *LoopConfig) Validate() error {
	if c.MaxRounds <= 0 {
		return fmt.Errorf("max_rounds must be positive, got %d", c.MaxRounds)
	}
	if c.ToolTimeout <= 0 {
		return fmt.Errorf("tool_timeout must be positive, got %v", c.ToolTimeout)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry max_retries must be >= 0, got %d", c.Retry.MaxRetries)
	}
	return nil
}

// timeoutFor возвращает timeout инструмента.
func (c *LoopConfig) timeoutFor(name string) time.Duration {
	if d, ok := c.ToolTimeouts[name]; ok && d > 0 {
		return d
	}
	return c.ToolTimeout
}
