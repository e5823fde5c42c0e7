package chain

import (
	"fmt"
	"sync"

	"github.com/ilkoid/knowme/pkg/llm"
)

// Conversation — append-only последовательность ходов одного обмена.
//
// Принадлежит одному LoopExecution. Mutex нужен только для читателей
// (observers), пишет всегда executor.
type Conversation struct {
	mu    sync.RWMutex
	turns []llm.Turn
}

// NewConversation создаёт разговор из начальных ходов.
func NewConversation(seed []llm.Turn) *Conversation {
	turns := make([]llm.Turn, 0, len(seed)+8)
	turns = append(turns, seed...)
	return &Conversation{turns: turns}
}

// Append добавляет ход.
//
// Ход RoleToolResult допустим только сразу после хода RoleModel,
// и его Results должны совпадать с Calls по количеству и порядку.
func (c *Conversation) Append(turn llm.Turn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if turn.Role == llm.RoleToolResult {
		if len(c.turns) == 0 {
			return fmt.Errorf("tool results without preceding model turn")
		}
		prev := c.turns[len(c.turns)-1]
		if prev.Role != llm.RoleModel {
			return fmt.Errorf("tool results must follow a model turn, got %s", prev.Role)
		}
		if len(prev.Calls) != len(turn.Results) {
			return fmt.Errorf("tool results mismatch: %d calls, %d results", len(prev.Calls), len(turn.Results))
		}
		for i, r := range turn.Results {
			if r.CallID != prev.Calls[i].ID || r.ToolName != prev.Calls[i].Name {
				return fmt.Errorf("tool result %d does not match call %s(%s)", i, prev.Calls[i].Name, prev.Calls[i].ID)
			}
		}
	}

	c.turns = append(c.turns, turn)
	return nil
}

// Turns возвращает копию ходов.
func (c *Conversation) Turns() []llm.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]llm.Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len возвращает количество ходов.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

// Last возвращает последний ход (nil если пусто).
func (c *Conversation) Last() *llm.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.turns) == 0 {
		return nil
	}
	last := c.turns[len(c.turns)-1]
	return &last
}
