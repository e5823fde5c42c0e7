// Package history хранит историю чат-сессий поверх cache.Cache.
//
// Сессия — ограниченный FIFO из сообщений {role, text}: при превышении
// окна вытесняются самые старые. Ключ — chat_history:<session_id>.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ilkoid/knowme/pkg/cache"
	"github.com/ilkoid/knowme/pkg/llm"
	"github.com/ilkoid/knowme/pkg/utils"
)

const keyPrefix = "chat_history:"

// Message — одно сохранённое сообщение сессии.
type Message struct {
	Role string `json:"role"` // "user" | "model"
	Text string `json:"text"`
}

// Store — история сессий.
type Store struct {
	cache  cache.Cache
	window int
	ttl    time.Duration

	// mu сериализует read-modify-write в пределах процесса.
	mu sync.Mutex
}

// NewStore создаёт хранилище истории.
//
// window — сколько последних сообщений хранить, ttl — время жизни сессии.
func NewStore(c cache.Cache, window int, ttl time.Duration) *Store {
	if window <= 0 {
		window = 20
	}
	return &Store{cache: c, window: window, ttl: ttl}
}

// Key возвращает ключ кэша для сессии.
func Key(sessionID string) string {
	return keyPrefix + sessionID
}

// Get возвращает последние window сообщений сессии.
//
// Неизвестная сессия — пустая история. Ошибка чтения или битый JSON
// тоже дают пустую историю (с записью в лог): история не должна ронять чат.
func (s *Store) Get(ctx context.Context, sessionID string) []Message {
	msgs, err := s.load(ctx, sessionID)
	if err != nil {
		utils.Error("Failed to load chat history", "session_id", sessionID, "error", err)
		return []Message{}
	}
	return msgs
}

// AppendExchange атомарно (в пределах процесса) добавляет пару
// user/model сообщений завершённого обмена.
func (s *Store) AppendExchange(ctx context.Context, sessionID, userText, modelText string) error {
	return s.Append(ctx, sessionID,
		Message{Role: string(llm.RoleUser), Text: userText},
		Message{Role: string(llm.RoleModel), Text: modelText},
	)
}

// Append добавляет сообщения и обрезает историю до окна.
func (s *Store) Append(ctx context.Context, sessionID string, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := s.load(ctx, sessionID)
	if err != nil {
		// Битая запись перезаписывается свежей историей
		utils.Warn("Chat history unreadable, starting over", "session_id", sessionID, "error", err)
		history = nil
	}

	history = append(history, msgs...)
	if len(history) > s.window {
		history = history[len(history)-s.window:]
	}

	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if err := s.cache.Set(ctx, Key(sessionID), data, s.ttl); err != nil {
		return fmt.Errorf("store history: %w", err)
	}

	utils.Debug("Chat history appended", "session_id", sessionID, "size", len(history))
	return nil
}

// Clear удаляет историю сессии. Повторный вызов — не ошибка.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cache.Delete(ctx, Key(sessionID)); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

func (s *Store) load(ctx context.Context, sessionID string) ([]Message, error) {
	data, err := s.cache.Get(ctx, Key(sessionID))
	if errors.Is(err, cache.ErrMiss) {
		return []Message{}, nil
	}
	if err != nil {
		return nil, err
	}

	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	if len(msgs) > s.window {
		msgs = msgs[len(msgs)-s.window:]
	}
	return msgs, nil
}

// ToTurns конвертирует сохранённые сообщения в ходы разговора.
//
// Сообщения с неизвестной ролью пропускаются.
func ToTurns(msgs []Message) []llm.Turn {
	turns := make([]llm.Turn, 0, len(msgs))
	for _, m := range msgs {
		switch llm.Role(m.Role) {
		case llm.RoleUser:
			turns = append(turns, llm.UserTurn(m.Text))
		case llm.RoleModel:
			turns = append(turns, llm.ModelTurn(m.Text, nil))
		}
	}
	return turns
}
