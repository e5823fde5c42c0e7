// Package agent реализует чат-обмен поверх цикла инструментов.
//
// Orchestrator является тонкой обёрткой над chain.ToolLoop:
//   - Собирает начальный разговор (system + история сессии + сообщение)
//   - Делегирует цикл инструментов Chain
//   - Сохраняет завершённый обмен в историю сессии
//
// Все ошибки возвращаются, никаких panic.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ilkoid/knowme/pkg/chain"
	"github.com/ilkoid/knowme/pkg/events"
	"github.com/ilkoid/knowme/pkg/history"
	"github.com/ilkoid/knowme/pkg/llm"
	"github.com/ilkoid/knowme/pkg/tools"
	"github.com/ilkoid/knowme/pkg/utils"
)

// ErrEmptyMessage — сообщение пользователя пустое.
var ErrEmptyMessage = errors.New("message must not be empty")

// Runner выполняет один обмен с наблюдателями.
//
// *chain.ToolLoop реализует этот интерфейс.
type Runner interface {
	ExecuteWith(ctx context.Context, input chain.LoopInput, observers ...chain.ExecutionObserver) (chain.LoopOutput, error)
}

// Request — входные данные обмена.
type Request struct {
	Message   string
	SessionID string // Пусто — будет сгенерирован
	UserID    string // Пусто — anonymous

	// Events — опциональный поток событий обмена (tool_call, tool_result, done)
	Events events.Emitter
}

// Result — ответ обмена.
type Result struct {
	Text      string             `json:"text"`
	ToolCalls []chain.AuditEntry `json:"tool_calls"`
	SessionID string             `json:"session_id"`
	Usage     llm.Usage          `json:"usage"`

	// Rounds и State не уходят в API, нужны для логов и CLI.
	Rounds int             `json:"-"`
	State  chain.LoopState `json:"-"`
}

// Config конфигурация для создания Orchestrator.
type Config struct {
	// Loop — цикл инструментов (обязательный)
	Loop Runner

	// History — история сессий (обязательный)
	History *history.Store

	// SystemPrompt — системная инструкция. Пусто — chain.DefaultSystemPrompt
	SystemPrompt string

	// UseHistory — подмешивать историю сессии в начальный разговор
	UseHistory bool

	// Debug — JSON трейсы обменов
	Debug chain.DebugConfig
}

// Orchestrator — обработчик чат-обменов.
//
// Не хранит изменяемого состояния между вызовами: параллельные обмены
// разных сессий независимы.
type Orchestrator struct {
	loop         Runner
	history      *history.Store
	systemPrompt string
	useHistory   bool
	debug        chain.DebugConfig
}

// New создаёт новый Orchestrator с заданной конфигурацией.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Loop == nil {
		return nil, fmt.Errorf("cfg.Loop is required")
	}
	if cfg.History == nil {
		return nil, fmt.Errorf("cfg.History is required")
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = chain.DefaultSystemPrompt
	}

	return &Orchestrator{
		loop:         cfg.Loop,
		history:      cfg.History,
		systemPrompt: cfg.SystemPrompt,
		useHistory:   cfg.UseHistory,
		debug:        cfg.Debug,
	}, nil
}

// Chat выполняет один обмен.
//
// История дополняется только при терминальном исходе цикла.
// Фатальная ошибка цикла возвращается как есть, история не меняется.
func (o *Orchestrator) Chat(ctx context.Context, req Request) (Result, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return Result{}, ErrEmptyMessage
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	userID := req.UserID
	if userID == "" {
		userID = tools.AnonymousUser
	}

	exchangeID := uuid.NewString()
	utils.Info("Chat exchange started",
		"exchange_id", exchangeID,
		"session_id", sessionID,
		"user_id", userID,
		"message", utils.Truncate(message, 80))

	input := chain.LoopInput{Turns: o.seed(ctx, sessionID, message)}
	ctx = tools.WithUserID(ctx, userID)

	out, err := o.loop.ExecuteWith(ctx, input, o.observers(exchangeID, message, req.Events)...)
	if err != nil {
		utils.Error("Chat exchange failed", "exchange_id", exchangeID, "error", err)
		return Result{}, fmt.Errorf("chat exchange %s: %w", exchangeID, err)
	}

	if out.State.Terminal() {
		if err := o.history.AppendExchange(ctx, sessionID, message, out.Text); err != nil {
			// Ответ возвращается и без сохранённой истории
			utils.Error("Failed to store chat history", "session_id", sessionID, "error", err)
		}
	}

	audit := out.Audit
	if audit == nil {
		audit = []chain.AuditEntry{}
	}

	return Result{
		Text:      out.Text,
		ToolCalls: audit,
		SessionID: sessionID,
		Usage:     out.Usage,
		Rounds:    out.Rounds,
		State:     out.State,
	}, nil
}

// ClearSession удаляет историю сессии. Повторный вызов — не ошибка.
func (o *Orchestrator) ClearSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if err := o.history.Clear(ctx, sessionID); err != nil {
		return err
	}
	utils.Info("Chat session cleared", "session_id", sessionID)
	return nil
}

// seed собирает начальный разговор: system, история, сообщение.
func (o *Orchestrator) seed(ctx context.Context, sessionID, message string) []llm.Turn {
	turns := []llm.Turn{{Role: llm.RoleSystem, Text: o.systemPrompt}}
	if o.useHistory {
		turns = append(turns, history.ToTurns(o.history.Get(ctx, sessionID))...)
	}
	return append(turns, llm.UserTurn(message))
}

// observers возвращает наблюдатели обмена.
func (o *Orchestrator) observers(exchangeID, message string, emitter events.Emitter) []chain.ExecutionObserver {
	observers := []chain.ExecutionObserver{chain.NewLoggingObserver(exchangeID)}
	if emitter != nil {
		observers = append(observers, chain.NewEventObserver(emitter))
	}

	trace, err := chain.NewTraceObserver(o.debug, exchangeID, message)
	if err != nil {
		utils.Error("Failed to create trace observer", "error", err)
	} else if trace != nil {
		observers = append(observers, trace)
	}

	return observers
}
