// Package openai реализует адаптер LLM провайдера для OpenAI-совместимых API.
//
// Gemini доступен через OpenAI-совместимый endpoint, поэтому один адаптер
// покрывает и чат с Function Calling, и эмбеддинги.
// Работает только через интерфейсы llm.Provider и llm.Embedder.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ilkoid/knowme/pkg/config"
	"github.com/ilkoid/knowme/pkg/llm"
	"github.com/ilkoid/knowme/pkg/tools"
	"github.com/ilkoid/knowme/pkg/utils"
	openai "github.com/sashabaranov/go-openai"
)

// Client реализует llm.Provider и llm.Embedder для OpenAI-совместимых API.
type Client struct {
	api      *openai.Client
	model    string
	provider string
	defaults llm.GenerateOptions
}

// NewClient создает клиент на основе конфигурации модели.
//
// Все настройки из конфигурации: BaseURL для non-OpenAI провайдеров,
// Timeout для HTTP клиента, Temperature/MaxTokens как дефолты генерации.
func NewClient(modelDef config.ModelDef) *Client {
	cfg := openai.DefaultConfig(modelDef.APIKey)
	if modelDef.BaseURL != "" {
		cfg.BaseURL = modelDef.BaseURL
	}
	if modelDef.Timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: modelDef.Timeout}
	}

	provider := modelDef.Provider
	if provider == "" {
		provider = "openai"
	}

	utils.Debug("LLM client created",
		"provider", provider,
		"model", modelDef.ModelName,
		"base_url", cfg.BaseURL,
		"api_key", utils.MaskSecret(modelDef.APIKey))

	return &Client{
		api:      openai.NewClientWithConfig(cfg),
		model:    modelDef.ModelName,
		provider: provider,
		defaults: llm.GenerateOptions{
			Model:       modelDef.ModelName,
			Temperature: modelDef.Temperature,
			MaxTokens:   modelDef.MaxTokens,
		},
	}
}

// Generate отправляет разговор и каталог инструментов, возвращает разобранный ответ.
//
// Алгоритм:
//  1. Конвертирует ходы в сообщения OpenAI SDK (tool-result ход
//     раскладывается на N сообщений role=tool)
//  2. Если переданы defs — добавляет tools и ToolChoice "auto"
//  3. Вызывает API, ошибки оборачивает в *llm.ProviderError
//  4. Извлекает текст, ToolCalls и usage
func (c *Client) Generate(ctx context.Context, turns []llm.Turn, defs []tools.ToolDefinition, opts ...llm.GenerateOption) (llm.Response, error) {
	startTime := time.Now()
	options := llm.ApplyOptions(c.defaults, opts...)

	utils.Debug("LLM request started",
		"model", options.Model,
		"turns_count", len(turns),
		"tools_count", len(defs))

	req := openai.ChatCompletionRequest{
		Model:       options.Model,
		Messages:    mapTurns(turns),
		Temperature: float32(options.Temperature),
		MaxTokens:   options.MaxTokens,
	}

	if len(defs) > 0 {
		req.Tools = convertToolsToOpenAI(defs)
		// LLM сама решает когда вызывать tools
		req.ToolChoice = "auto"
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		perr := c.classify(err)
		utils.Error("LLM API request failed",
			"error", err,
			"kind", perr.Kind,
			"model", options.Model,
			"duration_ms", time.Since(startTime).Milliseconds())
		return llm.Response{}, perr
	}

	result := llm.Response{
		Usage: llm.Usage{TotalTokens: resp.Usage.TotalTokens},
	}

	if len(resp.Choices) == 0 {
		utils.Warn("LLM returned no candidates", "model", options.Model)
		result.NoCandidate = true
		return result, nil
	}

	choice := resp.Choices[0].Message
	result.Text = choice.Content

	if len(choice.ToolCalls) > 0 {
		result.Calls = make([]llm.ToolCall, len(choice.ToolCalls))
		for i, tc := range choice.ToolCalls {
			call := llm.ToolCall{
				ID:      tc.ID,
				Name:    tc.Function.Name,
				RawArgs: tc.Function.Arguments,
			}
			args, decodeErr := tools.DecodeArgs(tc.Function.Arguments)
			if decodeErr != nil {
				call.DecodeErr = decodeErr
				args = map[string]any{}
			}
			call.Args = args
			result.Calls[i] = call
		}
	}

	utils.Info("LLM response received",
		"model", options.Model,
		"tool_calls_count", len(result.Calls),
		"content_length", len(result.Text),
		"total_tokens", result.Usage.TotalTokens,
		"duration_ms", time.Since(startTime).Milliseconds())

	return result, nil
}

// Embed вычисляет эмбеддинг текста.
//
// Возвращает вектор и число токенов из usage (0 если провайдер его не сообщил).
func (c *Client) Embed(ctx context.Context, text string) ([]float32, int, error) {
	startTime := time.Now()

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		perr := c.classify(err)
		utils.Error("Embedding request failed",
			"error", err,
			"kind", perr.Kind,
			"model", c.model,
			"duration_ms", time.Since(startTime).Milliseconds())
		return nil, 0, perr
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, 0, &llm.ProviderError{
			Kind:     llm.KindUnknown,
			Provider: c.provider,
			Err:      errors.New("empty embedding in response"),
		}
	}

	utils.Debug("Embedding computed",
		"model", c.model,
		"dims", len(resp.Data[0].Embedding),
		"tokens", resp.Usage.TotalTokens,
		"duration_ms", time.Since(startTime).Milliseconds())

	return resp.Data[0].Embedding, resp.Usage.TotalTokens, nil
}

// classify превращает ошибку SDK в *llm.ProviderError.
//
// Сначала смотрим на HTTP статус (APIError/RequestError), текст — запасной вариант.
func (c *Client) classify(err error) *llm.ProviderError {
	perr := &llm.ProviderError{Provider: c.provider, Err: err}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0:
		perr.StatusCode = apiErr.HTTPStatusCode
		perr.Kind = llm.KindFromStatus(apiErr.HTTPStatusCode)
	case errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0:
		perr.StatusCode = reqErr.HTTPStatusCode
		perr.Kind = llm.KindFromStatus(reqErr.HTTPStatusCode)
	case errors.Is(err, context.DeadlineExceeded):
		perr.Kind = llm.KindNetwork
	default:
		perr.Kind = llm.KindFromText(err.Error())
	}

	return perr
}

// mapTurns конвертирует ходы разговора в формат SDK.
//
// Ход модели с вызовами становится assistant сообщением с ToolCalls,
// ход с результатами — отдельным role=tool сообщением на каждый результат.
func mapTurns(turns []llm.Turn) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(turns))

	for _, t := range turns {
		switch t.Role {
		case llm.RoleSystem:
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: t.Text,
			})
		case llm.RoleUser:
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: t.Text,
			})
		case llm.RoleModel:
			msg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: t.Text,
			}
			for _, call := range t.Calls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: encodeArgs(call),
					},
				})
			}
			msgs = append(msgs, msg)
		case llm.RoleToolResult:
			for _, r := range t.Results {
				msgs = append(msgs, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    encodePayload(r.Payload),
					Name:       r.ToolName,
					ToolCallID: r.CallID,
				})
			}
		}
	}

	return msgs
}

// encodeArgs возвращает JSON аргументов для повторной отправки модели.
func encodeArgs(call llm.ToolCall) string {
	if call.RawArgs != "" && call.DecodeErr == nil {
		return call.RawArgs
	}
	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func encodePayload(payload map[string]any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, "unserializable tool result: "+err.Error())
	}
	return string(data)
}

// convertToolsToOpenAI конвертирует определения инструментов
// в формат OpenAI Function Calling.
//
// Соответствие структур:
//
//	tools.ToolDefinition → openai.Tool (type=function)
//	Parameters()         → openai.FunctionDefinition.Parameters
func convertToolsToOpenAI(defs []tools.ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, len(defs))

	for i, def := range defs {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters(),
			},
		}
	}

	return result
}
