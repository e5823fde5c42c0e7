package std

import (
	"context"
	"strings"

	"github.com/ilkoid/knowme/pkg/apiclient"
	"github.com/ilkoid/knowme/pkg/cache"
	"github.com/ilkoid/knowme/pkg/config"
	"github.com/ilkoid/knowme/pkg/tools"
	"github.com/ilkoid/knowme/pkg/utils"
)

// WebSearchToolName — имя инструмента веб-поиска.
const WebSearchToolName = "web_search"

const webSearchDescription = "Search the web for current information, news, or general knowledge. " +
	"Use this for real-time information, recent events, or anything not found in the user's documents."

// tavilyResponse — нужные поля ответа Tavily POST /search.
type tavilyResponse struct {
	Answer       string         `json:"answer"`
	Results      []tavilyResult `json:"results"`
	ResponseTime float64        `json:"response_time"`
}

type tavilyResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// WebSearchTool — веб-поиск через Tavily с коротким кэшем.
type WebSearchTool struct {
	client      *apiclient.Client
	cache       cache.Cache
	cfg         config.SearchConfig
	description string
}

// NewWebSearchTool создает инструмент веб-поиска.
//
// c может быть nil: кэш best-effort, без него каждый вызов идёт к провайдеру.
func NewWebSearchTool(client *apiclient.Client, c cache.Cache, cfg config.SearchConfig, toolCfg config.ToolConfig) *WebSearchTool {
	desc := toolCfg.Description
	if desc == "" {
		desc = webSearchDescription
	}
	return &WebSearchTool{
		client:      client,
		cache:       c,
		cfg:         cfg.GetDefaults(),
		description: desc,
	}
}

// Definition возвращает определение инструмента для function calling.
func (t *WebSearchTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        WebSearchToolName,
		Description: t.description,
		Params: []tools.Param{
			{
				Name:        "query",
				Type:        tools.TypeString,
				Description: "The search query to search the web",
				Required:    true,
			},
			{
				Name:        "depth",
				Type:        tools.TypeString,
				Description: "Search depth: 'basic' for quick results or 'advanced' for comprehensive results",
				Default:     "basic",
				Enum:        []string{"basic", "advanced"},
			},
		},
	}
}

// Execute выполняет поиск; ответ кэшируется под websearch:<depth>:<query>.
func (t *WebSearchTool) Execute(ctx context.Context, args map[string]any) map[string]any {
	query := strings.TrimSpace(tools.String(args, "query"))
	depth := tools.String(args, "depth")
	if depth == "" {
		depth = "basic"
	}

	if query == "" {
		return searchError(query, "query is required")
	}

	key := "websearch:" + depth + ":" + strings.ToLower(query)
	if cached, ok := cachedPayload(ctx, t.cache, key); ok {
		utils.Debug("Web search cache hit", "query", utils.Truncate(query, 50), "depth", depth)
		return cached
	}

	var resp tavilyResponse
	_, err := t.client.Post(ctx, WebSearchToolName, t.cfg.BaseURL+"/search", apiclient.Options{
		RateLimit: t.cfg.RateLimit,
		Burst:     t.cfg.BurstLimit,
		Headers:   map[string]string{"Authorization": "Bearer " + t.cfg.APIKey},
	}, map[string]any{
		"query":          query,
		"search_depth":   depth,
		"max_results":    t.cfg.MaxResults,
		"include_answer": true,
	}, &resp)
	if err != nil {
		utils.Error("Tavily search failed",
			"query", utils.Truncate(query, 50),
			"kind", apiclient.ClassifyError(err),
			"error", err)
		return searchError(query, err.Error())
	}

	results := make([]map[string]any, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, map[string]any{
			"title":   r.Title,
			"url":     r.URL,
			"content": r.Content,
			"score":   r.Score,
		})
	}

	out := map[string]any{
		"query":   query,
		"results": results,
		"answer":  resp.Answer,
		"latency": resp.ResponseTime,
	}

	storePayload(ctx, t.cache, key, out, t.cfg.CacheTTL)

	utils.Info("Tavily search completed",
		"query", utils.Truncate(query, 50),
		"depth", depth,
		"results", len(results))

	return out
}

func searchError(query, msg string) map[string]any {
	return map[string]any{
		"query":   query,
		"results": []map[string]any{},
		"answer":  "Error performing search: " + msg,
		"latency": 0,
		"error":   msg,
	}
}
