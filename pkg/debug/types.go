// Package debug записывает трейсы обменов с моделью в JSON файлы.
//
// Один файл на обмен: раунды, ответы модели, вызовы инструментов,
// длительности и ошибки. Включается через app.debug в config.yaml.
package debug

import "time"

// ExchangeTrace — полный трейс одного обмена.
type ExchangeTrace struct {
	// RunID — идентификатор обмена (используется в имени файла)
	RunID string `json:"run_id"`

	// Timestamp — время начала обмена
	Timestamp time.Time `json:"timestamp"`

	// UserMessage — сообщение пользователя
	UserMessage string `json:"user_message"`

	// Duration — общая длительность в миллисекундах
	Duration int64 `json:"duration_ms"`

	// Rounds — раунды цикла инструментов
	Rounds []Round `json:"rounds"`

	// Summary — агрегированная статистика
	Summary Summary `json:"summary"`

	// FinalText — финальный ответ
	FinalText string `json:"final_text,omitempty"`

	// State — терминальное состояние цикла
	State string `json:"state,omitempty"`

	// Error — фатальная ошибка обмена
	Error string `json:"error,omitempty"`
}

// Round — один раунд цикла.
type Round struct {
	Number   int             `json:"round"`
	Duration int64           `json:"duration_ms"`
	Model    ModelCall       `json:"model"`
	Tools    []ToolExecution `json:"tools,omitempty"`
	State    string          `json:"state,omitempty"`
}

// ModelCall — вызов модели в раунде.
type ModelCall struct {
	Text        string         `json:"text,omitempty"`
	ToolCalls   []ToolCallInfo `json:"tool_calls,omitempty"`
	Tokens      int            `json:"tokens"`
	NoCandidate bool           `json:"no_candidate,omitempty"`
	Duration    int64          `json:"duration_ms"`
	Error       string         `json:"error,omitempty"`
}

// ToolCallInfo описывает вызов инструмента от модели.
type ToolCallInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Args string `json:"args"`
}

// ToolExecution описывает выполнение одного инструмента.
type ToolExecution struct {
	Name            string `json:"name"`
	Args            string `json:"args,omitempty"`
	Result          string `json:"result,omitempty"`
	ResultTruncated bool   `json:"result_truncated,omitempty"`
	Duration        int64  `json:"duration_ms"`
	Success         bool   `json:"success"`
	Error           string `json:"error,omitempty"`
}

// Summary содержит агрегированную статистику обмена.
type Summary struct {
	TotalModelCalls    int      `json:"total_model_calls"`
	TotalToolsExecuted int      `json:"total_tools_executed"`
	TotalModelDuration int64    `json:"total_model_duration_ms"`
	TotalToolDuration  int64    `json:"total_tool_duration_ms"`
	TotalTokens        int      `json:"total_tokens"`
	EmbeddingTokens    int      `json:"embedding_tokens"`
	Errors             []string `json:"errors,omitempty"`
	VisitedTools       []string `json:"visited_tools,omitempty"`
}
