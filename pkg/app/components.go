// Package app собирает компоненты сервиса из config.yaml.
//
// Используется и HTTP сервером, и CLI: весь init код в одном месте.
// Все ошибки возвращаются, никаких panic.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ilkoid/knowme/internal/agent"
	"github.com/ilkoid/knowme/pkg/apiclient"
	"github.com/ilkoid/knowme/pkg/cache"
	"github.com/ilkoid/knowme/pkg/chain"
	"github.com/ilkoid/knowme/pkg/config"
	"github.com/ilkoid/knowme/pkg/documents"
	"github.com/ilkoid/knowme/pkg/factory"
	"github.com/ilkoid/knowme/pkg/history"
	"github.com/ilkoid/knowme/pkg/prompt"
	"github.com/ilkoid/knowme/pkg/s3storage"
	"github.com/ilkoid/knowme/pkg/tools"
	"github.com/ilkoid/knowme/pkg/tools/std"
	"github.com/ilkoid/knowme/pkg/utils"
	"github.com/ilkoid/knowme/pkg/vectorstore"
)

// Components содержит все долгоживущие хэндлы процесса.
//
// Создаются один раз при старте и передаются по ссылке.
type Components struct {
	Config       *config.AppConfig
	Cache        cache.Cache
	History      *history.Store
	Index        *vectorstore.QdrantIndex
	Archive      *s3storage.Client // nil если s3 не настроен
	Tools        *tools.Registry
	Loop         *chain.ToolLoop
	Orchestrator *agent.Orchestrator
	Documents    *documents.Service
}

// ExecutionResult содержит результат одного обмена для CLI.
type ExecutionResult struct {
	Result   agent.Result
	Duration time.Duration
}

// ConfigPathFinder определяет стратегию поиска пути к config.yaml.
type ConfigPathFinder interface {
	FindConfigPath() string
}

// DefaultConfigPathFinder реализует стандартную стратегию поиска config.yaml.
//
// Порядок поиска:
// 1. Флаг -config (если указан)
// 2. Текущая директория (./config.yaml)
// 3. Директория бинарника
// 4. Родительские директории (для запуска из cmd/<tool>/)
type DefaultConfigPathFinder struct {
	// ConfigFlag - значение флага -config, если указан
	ConfigFlag string
}

// FindConfigPath находит путь к config.yaml.
func (f *DefaultConfigPathFinder) FindConfigPath() string {
	if f.ConfigFlag != "" {
		return resolveAbsPath(f.ConfigFlag)
	}

	candidates := []string{"config.yaml"}
	if execPath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(execPath), "config.yaml"))
	}
	candidates = append(candidates,
		filepath.Join("..", "config.yaml"),
		filepath.Join("..", "..", "config.yaml"),
	)

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return resolveAbsPath(p)
		}
	}

	// Возвращаем дефолтный путь (даже если не существует)
	return resolveAbsPath("config.yaml")
}

// InitializeConfig находит и загружает конфигурацию.
func InitializeConfig(finder ConfigPathFinder) (*config.AppConfig, string, error) {
	cfgPath := finder.FindConfigPath()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config from %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// Initialize создаёт и связывает все компоненты.
//
// Порядок: кэш и история, модели, векторный индекс, архив S3,
// каталог инструментов, цикл, оркестратор, сервис документов.
// При ошибке уже открытые ресурсы закрываются.
func Initialize(ctx context.Context, cfg *config.AppConfig) (_ *Components, err error) {
	c := &Components{Config: cfg}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	// 1. Кэш и история сессий
	c.Cache, err = cache.Open(ctx, cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	c.History = history.NewStore(c.Cache, cfg.Chat.MaxHistory, cfg.Chat.HistoryTTL)

	// 2. Модели
	chatDef, _ := cfg.GetChatModel("")
	provider, err := factory.NewLLMProvider(chatDef)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}
	utils.Info("LLM provider created", "provider", chatDef.Provider, "model", chatDef.ModelName)

	embDef, _ := cfg.GetEmbeddingModel()
	embedder, err := factory.NewEmbedder(embDef)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	// 3. Векторный индекс
	c.Index, err = vectorstore.NewQdrantIndex(cfg.RAG)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector index: %w", err)
	}
	utils.Info("Vector index client created", "host", cfg.RAG.QdrantHost, "collection", cfg.RAG.Collection)

	// 4. Архив исходных документов (опционально)
	if cfg.S3.Enabled() {
		c.Archive, err = s3storage.New(cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		utils.Info("S3 archive initialized", "bucket", cfg.S3.Bucket)
	}

	// 5. Каталог инструментов
	c.Tools, err = std.NewCatalog(cfg, std.Deps{
		Embedder: embedder,
		Index:    c.Index,
		HTTP:     apiclient.New(cfg.Chat.ToolTimeout),
		Cache:    c.Cache,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	// 6. Цикл инструментов и оркестратор
	c.Loop, err = chain.NewToolLoop(provider, c.Tools, chain.LoopConfigFromApp(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create tool loop: %w", err)
	}

	systemPrompt, err := prompt.ResolveSystemPrompt(cfg.Chat.SystemPrompt, cfg.Chat.PromptFile, prompt.Data{
		Tools: c.Tools.Names(),
		Date:  time.Now().Format("2006-01-02"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load system prompt: %w", err)
	}

	c.Orchestrator, err = agent.New(agent.Config{
		Loop:         c.Loop,
		History:      c.History,
		SystemPrompt: systemPrompt,
		UseHistory:   *cfg.Chat.UseHistory,
		Debug: chain.DebugConfig{
			Enabled:            cfg.App.Debug,
			LogsDir:            cfg.App.DebugLogsDir,
			IncludeToolArgs:    true,
			IncludeToolResults: true,
			MaxResultSize:      4000,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	// 7. Документы
	var archive documents.Archive
	if c.Archive != nil {
		archive = c.Archive
	}
	c.Documents = documents.NewService(c.Index, archive)

	utils.Info("Components initialized", "tools", c.Tools.Names())
	return c, nil
}

// Execute выполняет один обмен через оркестратор.
func Execute(ctx context.Context, c *Components, req agent.Request, timeout time.Duration) (*ExecutionResult, error) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := c.Orchestrator.Chat(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("orchestrator error: %w", err)
	}

	utils.Info("Query executed successfully",
		"rounds", result.Rounds,
		"tool_calls", len(result.ToolCalls),
		"duration_ms", time.Since(startTime).Milliseconds())

	return &ExecutionResult{Result: result, Duration: time.Since(startTime)}, nil
}

// Close освобождает сетевые ресурсы. Безопасно вызывать повторно.
func (c *Components) Close() {
	if c.Index != nil {
		if err := c.Index.Close(); err != nil {
			utils.Warn("Vector index close failed", "error", err)
		}
		c.Index = nil
	}
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			utils.Warn("Cache close failed", "error", err)
		}
		c.Cache = nil
	}
}

func resolveAbsPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
