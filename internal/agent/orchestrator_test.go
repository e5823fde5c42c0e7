package agent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ilkoid/knowme/pkg/cache"
	"github.com/ilkoid/knowme/pkg/chain"
	"github.com/ilkoid/knowme/pkg/events"
	"github.com/ilkoid/knowme/pkg/history"
	"github.com/ilkoid/knowme/pkg/llm"
	"github.com/ilkoid/knowme/pkg/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner — мок цикла инструментов.
// Запоминает начальный разговор, пользователя из контекста и наблюдатели.
type fakeRunner struct {
	mu        sync.Mutex
	out       chain.LoopOutput
	err       error
	inputs    []chain.LoopInput
	userIDs   []string
	observers [][]chain.ExecutionObserver
}

func (r *fakeRunner) ExecuteWith(ctx context.Context, input chain.LoopInput, observers ...chain.ExecutionObserver) (chain.LoopOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.inputs = append(r.inputs, input)
	r.userIDs = append(r.userIDs, tools.UserIDFromContext(ctx))
	r.observers = append(r.observers, observers)

	return r.out, r.err
}

func newStore() *history.Store {
	return history.NewStore(cache.NewMemoryCache(), 20, time.Hour)
}

func newOrchestrator(t *testing.T, runner Runner, store *history.Store, useHistory bool) *Orchestrator {
	t.Helper()
	o, err := New(Config{Loop: runner, History: store, UseHistory: useHistory})
	require.NoError(t, err)
	return o
}

func finalText(text string) chain.LoopOutput {
	return chain.LoopOutput{Text: text, State: chain.StateHaveFinalText, Rounds: 1}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{History: newStore()})
	assert.Error(t, err)

	_, err = New(Config{Loop: &fakeRunner{}})
	assert.Error(t, err)

	o, err := New(Config{Loop: &fakeRunner{}, History: newStore(), SystemPrompt: "  "})
	require.NoError(t, err)
	assert.Equal(t, chain.DefaultSystemPrompt, o.systemPrompt)
}

func TestChat_SeedsSystemHistoryAndMessage(t *testing.T) {
	store := newStore()
	ctx := context.Background()
	require.NoError(t, store.AppendExchange(ctx, "s1", "hi", "hello"))

	runner := &fakeRunner{out: finalText("18°C and sunny")}
	o, err := New(Config{Loop: runner, History: store, UseHistory: true, SystemPrompt: "be brief"})
	require.NoError(t, err)

	res, err := o.Chat(ctx, Request{Message: " weather? ", SessionID: "s1", UserID: "u-1"})
	require.NoError(t, err)

	turns := runner.inputs[0].Turns
	require.Len(t, turns, 4)
	assert.Equal(t, llm.Turn{Role: llm.RoleSystem, Text: "be brief"}, turns[0])
	assert.Equal(t, llm.UserTurn("hi"), turns[1])
	assert.Equal(t, llm.ModelTurn("hello", nil), turns[2])
	assert.Equal(t, llm.UserTurn("weather?"), turns[3])

	assert.Equal(t, "u-1", runner.userIDs[0])
	assert.Equal(t, "18°C and sunny", res.Text)
	assert.Equal(t, "s1", res.SessionID)

	msgs := store.Get(ctx, "s1")
	require.Len(t, msgs, 4)
	assert.Equal(t, history.Message{Role: "user", Text: "weather?"}, msgs[2])
	assert.Equal(t, history.Message{Role: "model", Text: "18°C and sunny"}, msgs[3])
}

func TestChat_HistoryDisabled(t *testing.T) {
	store := newStore()
	ctx := context.Background()
	require.NoError(t, store.AppendExchange(ctx, "s1", "hi", "hello"))

	runner := &fakeRunner{out: finalText("ok")}
	o := newOrchestrator(t, runner, store, false)

	_, err := o.Chat(ctx, Request{Message: "again", SessionID: "s1"})
	require.NoError(t, err)

	turns := runner.inputs[0].Turns
	require.Len(t, turns, 2)
	assert.Equal(t, llm.RoleSystem, turns[0].Role)
	assert.Equal(t, llm.UserTurn("again"), turns[1])
}

func TestChat_DefaultsSessionAndUser(t *testing.T) {
	runner := &fakeRunner{out: finalText("ok")}
	o := newOrchestrator(t, runner, newStore(), true)

	res, err := o.Chat(context.Background(), Request{Message: "hello"})
	require.NoError(t, err)

	assert.Len(t, res.SessionID, 36)
	assert.Equal(t, tools.AnonymousUser, runner.userIDs[0])
	assert.NotNil(t, res.ToolCalls)
	assert.Empty(t, res.ToolCalls)
}

func TestChat_EmptyMessage(t *testing.T) {
	runner := &fakeRunner{}
	o := newOrchestrator(t, runner, newStore(), true)

	_, err := o.Chat(context.Background(), Request{Message: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, runner.inputs)
}

func TestChat_FatalErrorLeavesHistoryUntouched(t *testing.T) {
	store := newStore()
	runner := &fakeRunner{err: chain.ErrRateLimitExhausted}
	o := newOrchestrator(t, runner, store, true)

	_, err := o.Chat(context.Background(), Request{Message: "hello", SessionID: "s1"})
	assert.ErrorIs(t, err, chain.ErrRateLimitExhausted)
	assert.Empty(t, store.Get(context.Background(), "s1"))
}

func TestChat_ExhaustedIsStored(t *testing.T) {
	store := newStore()
	runner := &fakeRunner{out: chain.LoopOutput{
		Text:  chain.LoopExceededText,
		State: chain.StateExhausted,
		Audit: []chain.AuditEntry{{Tool: "web_search", Args: map[string]any{"query": "x"}, Result: map[string]any{"results": []any{}}}},
		Usage: llm.Usage{TotalTokens: 60, EmbeddingTokens: 3},
	}}
	o := newOrchestrator(t, runner, store, true)

	res, err := o.Chat(context.Background(), Request{Message: "loop", SessionID: "s1"})
	require.NoError(t, err)

	assert.Equal(t, chain.LoopExceededText, res.Text)
	assert.Equal(t, llm.Usage{TotalTokens: 60, EmbeddingTokens: 3}, res.Usage)
	require.Len(t, res.ToolCalls, 1)

	msgs := store.Get(context.Background(), "s1")
	require.Len(t, msgs, 2)
	assert.Equal(t, chain.LoopExceededText, msgs[1].Text)
}

func TestResult_JSONShape(t *testing.T) {
	res := Result{
		Text:      "ok",
		ToolCalls: []chain.AuditEntry{{Tool: "get_weather", Args: map[string]any{"location": "Paris"}, Result: map[string]any{"temperature": 18.0}}},
		SessionID: "s",
		Usage:     llm.Usage{TotalTokens: 10},
		Rounds:    2,
	}

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"text": "ok",
		"tool_calls": [{"tool": "get_weather", "args": {"location": "Paris"}, "result": {"temperature": 18}}],
		"session_id": "s",
		"usage": {"total_tokens": 10, "embedding_tokens": 0}
	}`, string(data))
}

func TestClearSession(t *testing.T) {
	store := newStore()
	ctx := context.Background()
	require.NoError(t, store.AppendExchange(ctx, "s1", "a", "b"))

	o := newOrchestrator(t, &fakeRunner{}, store, true)

	require.NoError(t, o.ClearSession(ctx, "s1"))
	assert.Empty(t, store.Get(ctx, "s1"))
	require.NoError(t, o.ClearSession(ctx, "s1"))
	assert.Error(t, o.ClearSession(ctx, ""))
}

func TestChat_TraceObserverWhenDebug(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "traces")
	runner := &fakeRunner{out: finalText("ok")}
	o, err := New(Config{
		Loop:    runner,
		History: newStore(),
		Debug:   chain.DebugConfig{Enabled: true, LogsDir: dir},
	})
	require.NoError(t, err)

	_, err = o.Chat(context.Background(), Request{Message: "hello"})
	require.NoError(t, err)

	require.Len(t, runner.observers[0], 2)
	_, isTrace := runner.observers[0][1].(*chain.TraceObserver)
	assert.True(t, isTrace)

	_, err = os.Stat(dir)
	assert.NoError(t, err)
}

func TestChat_EventObserverWhenEmitterGiven(t *testing.T) {
	runner := &fakeRunner{out: finalText("ok")}
	o := newOrchestrator(t, runner, newStore(), true)

	_, err := o.Chat(context.Background(), Request{Message: "hello", Events: events.NewChanEmitter(1)})
	require.NoError(t, err)

	require.Len(t, runner.observers[0], 2)
	_, isEvents := runner.observers[0][1].(*chain.EventObserver)
	assert.True(t, isEvents)
}

func TestChat_ConcurrentSessionsAreIndependent(t *testing.T) {
	store := newStore()
	runner := &fakeRunner{out: finalText("ok")}
	o := newOrchestrator(t, runner, store, true)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sid := []string{"a", "b"}[i%2]
			if _, err := o.Chat(context.Background(), Request{Message: "m", SessionID: sid}); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}
	assert.Len(t, store.Get(context.Background(), "a"), 8)
	assert.Len(t, store.Get(context.Background(), "b"), 8)
}
