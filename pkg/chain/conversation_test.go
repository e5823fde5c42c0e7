package chain

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ilkoid/knowme/pkg/debug"
	"github.com/ilkoid/knowme/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversation_ToolResultsMustFollowModelCalls(t *testing.T) {
	calls := []llm.ToolCall{{ID: "1", Name: "a"}, {ID: "2", Name: "b"}}

	tests := []struct {
		name    string
		seed    []llm.Turn
		results []llm.ToolResult
		wantErr bool
	}{
		{
			name:    "matching results",
			seed:    []llm.Turn{llm.UserTurn("q"), llm.ModelTurn("", calls)},
			results: []llm.ToolResult{{CallID: "1", ToolName: "a"}, {CallID: "2", ToolName: "b"}},
		},
		{
			name:    "empty conversation",
			results: []llm.ToolResult{{CallID: "1", ToolName: "a"}},
			wantErr: true,
		},
		{
			name:    "after user turn",
			seed:    []llm.Turn{llm.UserTurn("q")},
			results: []llm.ToolResult{{CallID: "1", ToolName: "a"}},
			wantErr: true,
		},
		{
			name:    "count mismatch",
			seed:    []llm.Turn{llm.UserTurn("q"), llm.ModelTurn("", calls)},
			results: []llm.ToolResult{{CallID: "1", ToolName: "a"}},
			wantErr: true,
		},
		{
			name:    "order mismatch",
			seed:    []llm.Turn{llm.UserTurn("q"), llm.ModelTurn("", calls)},
			results: []llm.ToolResult{{CallID: "2", ToolName: "b"}, {CallID: "1", ToolName: "a"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := NewConversation(tt.seed)
			err := conv.Append(llm.Turn{Role: llm.RoleToolResult, Results: tt.results})
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, len(tt.seed), conv.Len())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, llm.RoleToolResult, conv.Last().Role)
		})
	}
}

func TestConversation_TurnsIsACopy(t *testing.T) {
	seed := []llm.Turn{llm.UserTurn("q")}
	conv := NewConversation(seed)

	turns := conv.Turns()
	turns[0].Text = "changed"

	assert.Equal(t, "q", conv.Turns()[0].Text)

	seed[0].Text = "changed too"
	assert.Equal(t, "q", conv.Turns()[0].Text)
	assert.Nil(t, NewConversation(nil).Last())
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 2*time.Second, p.Delay(0))
	assert.Equal(t, 4*time.Second, p.Delay(1))
	assert.Equal(t, 8*time.Second, p.Delay(2))
}

func TestRetryPolicy_SleepHonoursCancellation(t *testing.T) {
	p := DefaultRetryPolicy()
	p.BaseDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	start := time.Now()
	_, err := p.Do(ctx, func(context.Context) (llm.Response, error) {
		calls++
		return llm.Response{}, rateLimited()
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRetryPolicy_ZeroRetries(t *testing.T) {
	p := RetryPolicy{MaxRetries: 0, BaseDelay: time.Millisecond, Multiplier: 2}

	_, err := p.Do(context.Background(), func(context.Context) (llm.Response, error) {
		return llm.Response{}, rateLimited()
	})
	assert.ErrorIs(t, err, ErrRateLimitExhausted)
}

func TestRetryPolicy_PlainErrorPassesThrough(t *testing.T) {
	boom := errors.New("boom")
	_, err := DefaultRetryPolicy().Do(context.Background(), func(context.Context) (llm.Response, error) {
		return llm.Response{}, boom
	})
	assert.Same(t, boom, err)
}

func TestTraceObserver_WritesExchangeTrace(t *testing.T) {
	dir := t.TempDir()
	trace, err := NewTraceObserver(DebugConfig{
		Enabled:            true,
		LogsDir:            dir,
		IncludeToolArgs:    true,
		IncludeToolResults: true,
	}, "ex-1", "weather?")
	require.NoError(t, err)
	require.NotNil(t, trace)

	reg := newRegistry(t, constTool("get_weather", map[string]any{"temperature": 18}))
	provider := &scriptedProvider{steps: []func([]llm.Turn) (llm.Response, error){
		callTools(10, llm.ToolCall{ID: "1", Name: "get_weather", Args: map[string]any{}, RawArgs: `{}`}),
		reply("18°C", 5),
	}}
	loop, _ := newLoop(t, provider, reg)

	_, err = loop.ExecuteWith(context.Background(), seed("weather?"), trace)
	require.NoError(t, err)
	require.NotEmpty(t, trace.Path())

	data, err := os.ReadFile(trace.Path())
	require.NoError(t, err)

	var got debug.ExchangeTrace
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, "ex-1", got.RunID)
	assert.Equal(t, "weather?", got.UserMessage)
	assert.Equal(t, "18°C", got.FinalText)
	assert.Equal(t, "HAVE_FINAL_TEXT", got.State)
	require.Len(t, got.Rounds, 2)
	assert.Equal(t, "get_weather", got.Rounds[0].Tools[0].Name)
	assert.Equal(t, `{"temperature":18}`, got.Rounds[0].Tools[0].Result)
	assert.Equal(t, 2, got.Summary.TotalModelCalls)
	assert.Equal(t, 1, got.Summary.TotalToolsExecuted)
	assert.Equal(t, 15, got.Summary.TotalTokens)
	assert.Equal(t, []string{"get_weather"}, got.Summary.VisitedTools)
}

func TestTraceObserver_Disabled(t *testing.T) {
	trace, err := NewTraceObserver(DebugConfig{}, "ex", "msg")
	assert.NoError(t, err)
	assert.Nil(t, trace)
}
