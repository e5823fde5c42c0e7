// Package std содержит инструменты каталога: поиск по документам,
// веб-поиск, погоду и исходящий webhook.
//
// Контракт инструмента: Execute никогда не возвращает ошибку наружу,
// любой сбой провайдера становится payload с ключом "error".
package std

import (
	"context"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ilkoid/knowme/pkg/config"
	"github.com/ilkoid/knowme/pkg/llm"
	"github.com/ilkoid/knowme/pkg/tools"
	"github.com/ilkoid/knowme/pkg/utils"
	"github.com/ilkoid/knowme/pkg/vectorstore"
)

// RAGSearchToolName — имя инструмента поиска по документам пользователя.
const RAGSearchToolName = "rag_search"

const ragSearchDescription = "Search the user's own uploaded PDF documents. " +
	"Use this when the question is about the user's documents, notes or files. " +
	"Returns an empty result set when nothing relevant enough is found; " +
	"in that case fall back to web_search for general knowledge."

// RAGSearchTool — поиск релевантных чанков документов пользователя.
type RAGSearchTool struct {
	embedder    llm.Embedder
	index       vectorstore.Index
	cfg         config.RAGConfig
	description string
}

// NewRAGSearchTool создает инструмент поиска по документам.
//
// Параметры:
//   - embedder: модель эмбеддингов запроса
//   - index: векторный индекс чанков
//   - cfg: политика отсечения (min_score, стоп-лист, top_k)
//   - toolCfg: конфигурация tool из YAML (описание можно переопределить)
func NewRAGSearchTool(embedder llm.Embedder, index vectorstore.Index, cfg config.RAGConfig, toolCfg config.ToolConfig) *RAGSearchTool {
	desc := toolCfg.Description
	if desc == "" {
		desc = ragSearchDescription
	}
	return &RAGSearchTool{
		embedder:    embedder,
		index:       index,
		cfg:         cfg.GetDefaults(),
		description: desc,
	}
}

// Definition возвращает определение инструмента для function calling.
func (t *RAGSearchTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        RAGSearchToolName,
		Description: t.description,
		Params: []tools.Param{
			{
				Name:        "query",
				Type:        tools.TypeString,
				Description: "The search query to find relevant information in the user's documents",
				Required:    true,
			},
			{
				Name:        "top_k",
				Type:        tools.TypeInteger,
				Description: "Number of top results to return (default: 5, max: 10)",
				Default:     t.cfg.DefaultTopK,
				Min:         tools.IntPtr(1),
				Max:         tools.IntPtr(10),
			},
		},
	}
}

// Execute ищет чанки и применяет порог релевантности и фильтр шаблонных фрагментов.
//
// Если лучший результат ниже min_score, возвращается пустой набор:
// это сигнал модели перейти к веб-поиску.
func (t *RAGSearchTool) Execute(ctx context.Context, args map[string]any) map[string]any {
	query := strings.TrimSpace(tools.String(args, "query"))
	topK := tools.Int(args, "top_k", t.cfg.DefaultTopK)
	userID := tools.UserIDFromContext(ctx)

	if query == "" {
		return ragResult(nil, 0, "query is required")
	}

	vector, tokens, err := t.embedder.Embed(ctx, query)
	cost := estimateCost(query, tokens)
	if err != nil {
		utils.Error("RAG embedding failed", "error", err, "user_id", userID)
		return ragResult(nil, cost, "Failed to embed query: "+err.Error())
	}

	// anonymous ищет по всей коллекции
	filter := vectorstore.Filter{}
	if userID != tools.AnonymousUser {
		filter.UserID = userID
	}

	points, err := t.index.Search(ctx, vector, filter, topK)
	if err != nil {
		utils.Error("RAG search failed", "error", err, "user_id", userID)
		return ragResult(nil, cost, "Failed to search documents: "+err.Error())
	}

	minScore := *t.cfg.MinScore
	if len(points) > 0 && points[0].Score < minScore {
		utils.Info("RAG top result below threshold",
			"query", utils.Truncate(query, 50),
			"top_score", points[0].Score,
			"min_score", minScore)
		return ragResult(nil, cost, "")
	}

	results := make([]map[string]any, 0, len(points))
	for _, p := range points {
		if p.Score < minScore || t.isBoilerplate(p.Text) {
			continue
		}
		results = append(results, map[string]any{
			"text":   p.Text,
			"source": p.Source,
			"page":   p.Page,
			"type":   p.Type,
			"score":  p.Score,
		})
	}

	utils.Info("RAG search completed",
		"query", utils.Truncate(query, 50),
		"user_id", userID,
		"hits", len(points),
		"returned", len(results))

	return ragResult(results, cost, "")
}

func ragResult(results []map[string]any, cost int, errMsg string) map[string]any {
	if results == nil {
		results = []map[string]any{}
	}
	out := map[string]any{
		"results":              results,
		"count":                len(results),
		"estimated_cost_units": cost,
	}
	if errMsg != "" {
		out["error"] = errMsg
	}
	return out
}

// isBoilerplate — слишком короткий текст или заголовок из стоп-листа
// (допускаются хвосты без букв: точки, номера страниц).
func (t *RAGSearchTool) isBoilerplate(text string) bool {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < t.cfg.MinTextLength {
		return true
	}

	lower := strings.ToLower(trimmed)
	for _, stop := range t.cfg.Stoplist {
		stop = strings.ToLower(strings.TrimSpace(stop))
		if stop == "" || !strings.HasPrefix(lower, stop) {
			continue
		}
		if !strings.ContainsFunc(lower[len(stop):], unicode.IsLetter) {
			return true
		}
	}
	return false
}

// estimateCost — токены эмбеддинга от провайдера или ceil(runes/4).
func estimateCost(query string, providerTokens int) int {
	if providerTokens > 0 {
		return providerTokens
	}
	return int(math.Ceil(float64(utf8.RuneCountInString(query)) / 4))
}
