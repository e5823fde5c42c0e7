package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ilkoid/knowme/pkg/config"
	"github.com/ilkoid/knowme/pkg/llm"
	"github.com/ilkoid/knowme/pkg/tools"
	openai "github.com/sashabaranov/go-openai"
)

// newTestClient поднимает фейковый OpenAI-совместимый сервер.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.ModelDef{
		Provider:  "gemini",
		APIKey:    "test-key",
		ModelName: "gemini-2.0-flash",
		BaseURL:   srv.URL,
	})
}

// TestNewClient тестирует создание клиента.
func TestNewClient(t *testing.T) {
	tests := []struct {
		name     string
		modelDef config.ModelDef
		provider string
	}{
		{
			name:     "minimal config",
			modelDef: config.ModelDef{APIKey: "test-key", ModelName: "gpt-4"},
			provider: "openai",
		},
		{
			name: "gemini via compatible endpoint",
			modelDef: config.ModelDef{
				Provider:    "gemini",
				APIKey:      "test-key",
				ModelName:   "gemini-2.0-flash",
				BaseURL:     "https://generativelanguage.googleapis.com/v1beta/openai/",
				Temperature: 0.2,
			},
			provider: "gemini",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(tt.modelDef)
			if client.model != tt.modelDef.ModelName {
				t.Errorf("expected model %s, got %s", tt.modelDef.ModelName, client.model)
			}
			if client.provider != tt.provider {
				t.Errorf("expected provider %s, got %s", tt.provider, client.provider)
			}
			if client.defaults.Temperature != tt.modelDef.Temperature {
				t.Errorf("expected default temperature %v, got %v", tt.modelDef.Temperature, client.defaults.Temperature)
			}
		})
	}
}

// TestConvertToolsToOpenAI тестирует конвертацию каталога.
func TestConvertToolsToOpenAI(t *testing.T) {
	input := []tools.ToolDefinition{
		{
			Name:        "get_weather",
			Description: "Weather for a location",
			Params: []tools.Param{
				{Name: "location", Type: tools.TypeString, Description: "City", Required: true},
				{Name: "unit", Type: tools.TypeString, Description: "Units", Default: "metric", Enum: []string{"metric", "imperial"}},
			},
		},
	}

	result := convertToolsToOpenAI(input)
	if len(result) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(result))
	}
	if result[0].Type != openai.ToolTypeFunction {
		t.Errorf("expected type function, got %s", result[0].Type)
	}
	if result[0].Function.Name != "get_weather" {
		t.Errorf("unexpected name %s", result[0].Function.Name)
	}

	schema, ok := result[0].Function.Parameters.(tools.JSONSchema)
	if !ok {
		t.Fatalf("expected tools.JSONSchema, got %T", result[0].Function.Parameters)
	}
	required, _ := schema["required"].([]string)
	if len(required) != 1 || required[0] != "location" {
		t.Errorf("expected required [location], got %v", schema["required"])
	}
}

// TestMapTurns проверяет раскладку tool-result хода на role=tool сообщения.
func TestMapTurns(t *testing.T) {
	turns := []llm.Turn{
		{Role: llm.RoleSystem, Text: "be helpful"},
		llm.UserTurn("weather in Paris?"),
		llm.ModelTurn("", []llm.ToolCall{
			{ID: "call_1", Name: "get_weather", Args: map[string]any{"location": "Paris"}},
			{ID: "call_2", Name: "web_search", RawArgs: `{"query":"paris"}`},
		}),
		{Role: llm.RoleToolResult, Results: []llm.ToolResult{
			{CallID: "call_1", ToolName: "get_weather", Payload: map[string]any{"temp": 18}},
			{CallID: "call_2", ToolName: "web_search", Payload: map[string]any{"error": "boom"}},
		}},
	}

	msgs := mapTurns(turns)
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}

	wantRoles := []string{
		openai.ChatMessageRoleSystem,
		openai.ChatMessageRoleUser,
		openai.ChatMessageRoleAssistant,
		openai.ChatMessageRoleTool,
		openai.ChatMessageRoleTool,
	}
	for i, role := range wantRoles {
		if msgs[i].Role != role {
			t.Errorf("message %d: expected role %s, got %s", i, role, msgs[i].Role)
		}
	}

	if len(msgs[2].ToolCalls) != 2 {
		t.Fatalf("expected 2 tool calls on assistant message, got %d", len(msgs[2].ToolCalls))
	}
	if msgs[2].ToolCalls[0].Function.Arguments != `{"location":"Paris"}` {
		t.Errorf("unexpected encoded args %s", msgs[2].ToolCalls[0].Function.Arguments)
	}
	if msgs[2].ToolCalls[1].Function.Arguments != `{"query":"paris"}` {
		t.Errorf("raw args should be passed through, got %s", msgs[2].ToolCalls[1].Function.Arguments)
	}

	if msgs[3].ToolCallID != "call_1" || msgs[4].ToolCallID != "call_2" {
		t.Errorf("tool_call_id order broken: %s, %s", msgs[3].ToolCallID, msgs[4].ToolCallID)
	}
	if msgs[4].Content != `{"error":"boom"}` {
		t.Errorf("unexpected tool content %s", msgs[4].Content)
	}
}

// TestGenerate_WithToolCalls проверяет разбор tool calls и usage.
func TestGenerate_WithToolCalls(t *testing.T) {
	var gotReq openai.ChatCompletionRequest

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotReq); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "x",
			"choices": [{
				"index": 0,
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [
						{"id": "c1", "type": "function", "function": {"name": "get_weather", "arguments": "{\"location\":\"Paris\"}"}},
						{"id": "c2", "type": "function", "function": {"name": "web_search", "arguments": "not json"}}
					]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`)
	})

	defs := []tools.ToolDefinition{{Name: "get_weather", Description: "w"}}
	resp, err := client.Generate(context.Background(), []llm.Turn{llm.UserTurn("hi")}, defs, llm.WithTemperature(0.2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotReq.ToolChoice != "auto" {
		t.Errorf("expected tool_choice auto, got %v", gotReq.ToolChoice)
	}
	if gotReq.Temperature < 0.19 || gotReq.Temperature > 0.21 {
		t.Errorf("expected temperature 0.2, got %v", gotReq.Temperature)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("expected 15 total tokens, got %d", resp.Usage.TotalTokens)
	}
	if len(resp.Calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(resp.Calls))
	}
	if resp.Calls[0].Args["location"] != "Paris" {
		t.Errorf("expected decoded location, got %v", resp.Calls[0].Args)
	}
	if resp.Calls[1].DecodeErr == nil {
		t.Error("expected decode error for malformed arguments")
	}
	if resp.Calls[1].Args == nil {
		t.Error("args should be an empty map on decode failure")
	}
}

// TestGenerate_NoChoices проверяет флаг NoCandidate.
func TestGenerate_NoChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","choices":[],"usage":{"total_tokens":3}}`)
	})

	resp, err := client.Generate(context.Background(), []llm.Turn{llm.UserTurn("hi")}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.NoCandidate {
		t.Error("expected NoCandidate")
	}
	if resp.Usage.TotalTokens != 3 {
		t.Errorf("usage should be kept, got %d", resp.Usage.TotalTokens)
	}
}

// TestGenerate_ErrorClassification проверяет маппинг HTTP статусов в ErrorKind.
func TestGenerate_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   llm.ErrorKind
	}{
		{"rate limit", http.StatusTooManyRequests, llm.KindRateLimit},
		{"auth", http.StatusUnauthorized, llm.KindAuth},
		{"bad request", http.StatusBadRequest, llm.KindInvalidRequest},
		{"server", http.StatusInternalServerError, llm.KindServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error":{"message":"nope","type":"error","code":"x"}}`)
			})

			_, err := client.Generate(context.Background(), []llm.Turn{llm.UserTurn("hi")}, nil)
			if err == nil {
				t.Fatal("expected error")
			}
			perr, ok := err.(*llm.ProviderError)
			if !ok {
				t.Fatalf("expected *llm.ProviderError, got %T", err)
			}
			if perr.Kind != tt.want {
				t.Errorf("expected kind %s, got %s", tt.want, perr.Kind)
			}
			if perr.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, perr.StatusCode)
			}
			if llm.IsRateLimit(err) != (tt.want == llm.KindRateLimit) {
				t.Error("IsRateLimit mismatch")
			}
		})
	}
}

// TestEmbed проверяет разбор эмбеддинга и usage.
func TestEmbed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"object": "list",
			"data": [{"object": "embedding", "index": 0, "embedding": [0.1, 0.2, 0.3]}],
			"model": "text-embedding-004",
			"usage": {"prompt_tokens": 7, "total_tokens": 7}
		}`)
	})

	vec, tokens, err := client.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("expected 3 dims, got %d", len(vec))
	}
	if tokens != 7 {
		t.Errorf("expected 7 tokens, got %d", tokens)
	}
}

// TestEmbed_Empty проверяет ошибку на пустом ответе.
func TestEmbed_Empty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","data":[],"usage":{"total_tokens":0}}`)
	})

	if _, _, err := client.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected error for empty embedding")
	}
}
