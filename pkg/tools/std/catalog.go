package std

import (
	"fmt"

	"github.com/ilkoid/knowme/pkg/apiclient"
	"github.com/ilkoid/knowme/pkg/cache"
	"github.com/ilkoid/knowme/pkg/config"
	"github.com/ilkoid/knowme/pkg/llm"
	"github.com/ilkoid/knowme/pkg/tools"
	"github.com/ilkoid/knowme/pkg/utils"
	"github.com/ilkoid/knowme/pkg/vectorstore"
)

// Deps — внешние хэндлы, которые нужны инструментам каталога.
//
// Создаются один раз при старте процесса и передаются по ссылке.
type Deps struct {
	Embedder llm.Embedder
	Index    vectorstore.Index
	HTTP     *apiclient.Client
	Cache    cache.Cache // может быть nil
}

// NewCatalog регистрирует включённые инструменты в фиксированном порядке:
// rag_search, web_search, get_weather, send_webhook_event.
//
// Каталог статичен: после старта не меняется.
func NewCatalog(cfg *config.AppConfig, deps Deps) (*tools.Registry, error) {
	if deps.HTTP == nil {
		return nil, fmt.Errorf("catalog: http client is required")
	}

	registry := tools.NewRegistry()

	candidates := []struct {
		name  string
		build func() tools.Tool
	}{
		{RAGSearchToolName, func() tools.Tool {
			return NewRAGSearchTool(deps.Embedder, deps.Index, cfg.RAG, cfg.Tools[RAGSearchToolName])
		}},
		{WebSearchToolName, func() tools.Tool {
			return NewWebSearchTool(deps.HTTP, deps.Cache, cfg.Search, cfg.Tools[WebSearchToolName])
		}},
		{WeatherToolName, func() tools.Tool {
			return NewWeatherTool(deps.HTTP, deps.Cache, cfg.Weather, cfg.Tools[WeatherToolName])
		}},
		{WebhookToolName, func() tools.Tool {
			return NewWebhookTool(deps.HTTP, cfg.Webhook, cfg.Tools[WebhookToolName])
		}},
	}

	for _, c := range candidates {
		if !cfg.ToolEnabled(c.name) {
			utils.Info("Tool disabled in config", "tool", c.name)
			continue
		}
		if c.name == RAGSearchToolName && (deps.Embedder == nil || deps.Index == nil) {
			return nil, fmt.Errorf("catalog: %s requires embedder and vector index", c.name)
		}
		if err := registry.Register(c.build()); err != nil {
			return nil, fmt.Errorf("catalog: register %s: %w", c.name, err)
		}
	}

	utils.Info("Tool catalog ready", "tools", registry.Names())
	return registry, nil
}
