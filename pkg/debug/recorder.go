package debug

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Recorder накапливает трейс одного обмена и сохраняет его в JSON файл.
//
// Потокобезопасен — может использоваться из разных горутин.
type Recorder struct {
	mu sync.Mutex

	config RecorderConfig
	trace  ExchangeTrace

	currentRound *Round
	roundStart   time.Time

	visitedTools map[string]struct{}
	errors       []string
}

// RecorderConfig конфигурация для создания Recorder.
type RecorderConfig struct {
	// LogsDir — директория для трейсов
	LogsDir string

	// IncludeToolArgs — включать аргументы инструментов
	IncludeToolArgs bool

	// IncludeToolResults — включать результаты инструментов
	IncludeToolResults bool

	// MaxResultSize — максимальный размер результата (0 — без ограничений)
	MaxResultSize int
}

// NewRecorder создает Recorder для обмена runID.
//
// Если LogsDir не существует, пытается создать её.
func NewRecorder(cfg RecorderConfig, runID string) (*Recorder, error) {
	if cfg.LogsDir != "" {
		if err := os.MkdirAll(cfg.LogsDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create logs directory: %w", err)
		}
	}

	if runID == "" {
		runID = fmt.Sprintf("exchange_%s", time.Now().Format("20060102_150405.000"))
	}

	return &Recorder{
		config: cfg,
		trace: ExchangeTrace{
			RunID:     runID,
			Timestamp: time.Now(),
			Rounds:    make([]Round, 0),
		},
		visitedTools: make(map[string]struct{}),
		errors:       make([]string, 0),
	}, nil
}

// Start фиксирует сообщение пользователя.
func (r *Recorder) Start(userMessage string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.trace.UserMessage = userMessage
	r.trace.Timestamp = time.Now()
}

// StartRound начинает запись раунда.
func (r *Recorder) StartRound(num int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.currentRound = &Round{Number: num}
	r.roundStart = time.Now()
}

// RecordModelCall записывает вызов модели текущего раунда.
func (r *Recorder) RecordModelCall(call ModelCall) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentRound == nil {
		return
	}
	r.currentRound.Model = call
	if call.Error != "" {
		r.errors = append(r.errors, "Model error: "+call.Error)
	}
}

// RecordToolExecution записывает выполнение инструмента.
func (r *Recorder) RecordToolExecution(exec ToolExecution) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentRound == nil {
		return
	}

	if !r.config.IncludeToolArgs {
		exec.Args = ""
	}
	if !r.config.IncludeToolResults {
		exec.Result = ""
	} else if r.config.MaxResultSize > 0 && len(exec.Result) > r.config.MaxResultSize {
		exec.Result = exec.Result[:r.config.MaxResultSize] + "... (truncated)"
		exec.ResultTruncated = true
	}

	r.currentRound.Tools = append(r.currentRound.Tools, exec)
	r.visitedTools[exec.Name] = struct{}{}

	if !exec.Success && exec.Error != "" {
		r.errors = append(r.errors, fmt.Sprintf("Tool %s: %s", exec.Name, exec.Error))
	}
}

// EndRound завершает текущий раунд.
func (r *Recorder) EndRound(state string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentRound != nil {
		r.currentRound.State = state
		r.currentRound.Duration = time.Since(r.roundStart).Milliseconds()
		r.trace.Rounds = append(r.trace.Rounds, *r.currentRound)
		r.currentRound = nil
	}
}

// Outcome — итог обмена для Finalize.
type Outcome struct {
	FinalText       string
	State           string
	Err             error
	TotalTokens     int
	EmbeddingTokens int
	Duration        time.Duration
}

// Finalize завершает запись и сохраняет трейс в файл.
//
// Возвращает путь к сохраненному файлу или ошибку.
func (r *Recorder) Finalize(outcome Outcome) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// раунд, прерванный ошибкой модели
	if r.currentRound != nil {
		r.currentRound.Duration = time.Since(r.roundStart).Milliseconds()
		r.trace.Rounds = append(r.trace.Rounds, *r.currentRound)
		r.currentRound = nil
	}

	r.trace.FinalText = outcome.FinalText
	r.trace.State = outcome.State
	r.trace.Duration = outcome.Duration.Milliseconds()
	if outcome.Err != nil {
		r.trace.Error = outcome.Err.Error()
	}

	r.buildSummary(outcome)

	data, err := json.MarshalIndent(r.trace, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal trace: %w", err)
	}

	filePath := r.filePath()
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write trace: %w", err)
	}

	return filePath, nil
}

// Trace возвращает копию накопленного трейса.
func (r *Recorder) Trace() ExchangeTrace {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.trace
	out.Rounds = append([]Round(nil), r.trace.Rounds...)
	return out
}

// RunID возвращает идентификатор обмена.
func (r *Recorder) RunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trace.RunID
}

func (r *Recorder) buildSummary(outcome Outcome) {
	summary := Summary{
		Errors:          r.errors,
		VisitedTools:    make([]string, 0, len(r.visitedTools)),
		TotalTokens:     outcome.TotalTokens,
		EmbeddingTokens: outcome.EmbeddingTokens,
	}

	for tool := range r.visitedTools {
		summary.VisitedTools = append(summary.VisitedTools, tool)
	}
	sort.Strings(summary.VisitedTools)

	for _, round := range r.trace.Rounds {
		summary.TotalModelCalls++
		summary.TotalModelDuration += round.Model.Duration
		for _, tool := range round.Tools {
			summary.TotalToolsExecuted++
			summary.TotalToolDuration += tool.Duration
		}
	}

	r.trace.Summary = summary
}

func (r *Recorder) filePath() string {
	if r.config.LogsDir != "" {
		return filepath.Join(r.config.LogsDir, r.trace.RunID+".json")
	}
	return r.trace.RunID + ".json"
}
