package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig — корневая структура конфигурации.
// Она зеркалит структуру config.yaml.
type AppConfig struct {
	App     AppSpecific           `yaml:"app"`
	Models  ModelsConfig          `yaml:"models"`
	Chat    ChatConfig            `yaml:"chat"`
	Tools   map[string]ToolConfig `yaml:"tools"`
	RAG     RAGConfig             `yaml:"rag"`
	Search  SearchConfig          `yaml:"search"`
	Weather WeatherConfig         `yaml:"weather"`
	Webhook WebhookConfig         `yaml:"webhook"`
	Cache   CacheConfig           `yaml:"cache"`
	S3      S3Config              `yaml:"s3"`
}

// AppSpecific — общие настройки приложения.
type AppSpecific struct {
	Debug        bool   `yaml:"debug"`          // Подробный лог + JSON трейсы обменов
	DebugLogsDir string `yaml:"debug_logs_dir"` // Директория трейсов
	LogFile      string `yaml:"log_file"`       // Пусто — stderr
	ListenAddr   string `yaml:"listen_addr"`    // Адрес HTTP сервера
}

// ModelsConfig — настройки AI моделей.
type ModelsConfig struct {
	DefaultChat      string              `yaml:"default_chat"`      // Алиас для чата (например, "gemini-flash")
	DefaultEmbedding string              `yaml:"default_embedding"` // Алиас для эмбеддингов
	Definitions      map[string]ModelDef `yaml:"definitions"`       // Словарь определений моделей
}

// ModelDef — параметры конкретной модели.
type ModelDef struct {
	Provider    string        `yaml:"provider"`   // "gemini", "openai" и т.д.
	ModelName   string        `yaml:"model_name"` // Реальное имя в API
	APIKey      string        `yaml:"api_key"`    // Поддерживает ${VAR}
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"` // Go умеет парсить строки вида "60s", "1m"
	BaseURL     string        `yaml:"base_url"`
}

// ChatConfig — политика цикла инструментов и истории.
type ChatConfig struct {
	MaxRounds      int           `yaml:"max_rounds"`
	Temperature    *float64      `yaml:"temperature"` // nil — 0.2
	UseHistory     *bool         `yaml:"use_history"` // nil — true
	MaxHistory     int           `yaml:"max_chat_history"`
	HistoryTTL     time.Duration `yaml:"history_ttl"`
	ParallelTools  *bool         `yaml:"parallel_tools"` // nil — true
	ToolTimeout    time.Duration `yaml:"tool_timeout"`
	SystemPrompt   string        `yaml:"system_prompt"` // Пусто — встроенный; system_prompt_file приоритетнее
	PromptFile     string        `yaml:"system_prompt_file"`
	RetryAttempts  int           `yaml:"retry_attempts"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
}

// GetDefaults возвращает дефолтные значения для незаполненных полей.
func (c *ChatConfig) GetDefaults() ChatConfig {
	result := *c

	if result.MaxRounds <= 0 {
		result.MaxRounds = 6
	}
	if result.Temperature == nil {
		t := 0.2
		result.Temperature = &t
	}
	if result.UseHistory == nil {
		on := true
		result.UseHistory = &on
	}
	if result.MaxHistory <= 0 {
		result.MaxHistory = 20
	}
	if result.HistoryTTL <= 0 {
		result.HistoryTTL = 7 * 24 * time.Hour
	}
	if result.ParallelTools == nil {
		on := true
		result.ParallelTools = &on
	}
	if result.ToolTimeout <= 0 {
		result.ToolTimeout = 10 * time.Second
	}
	if result.RetryAttempts <= 0 {
		result.RetryAttempts = 3
	}
	if result.RetryBaseDelay <= 0 {
		result.RetryBaseDelay = 2 * time.Second
	}

	return result
}

// ToolConfig — настройки отдельного инструмента.
type ToolConfig struct {
	Enabled     *bool         `yaml:"enabled"`     // nil — включён
	Description string        `yaml:"description"` // Переопределяет встроенное описание
	Timeout     time.Duration `yaml:"timeout"`     // Переопределяет chat.tool_timeout
}

// IsEnabled сообщает, включён ли инструмент.
func (t ToolConfig) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// RAGConfig — векторный индекс и политика отсечения.
type RAGConfig struct {
	QdrantHost    string   `yaml:"qdrant_host"`
	QdrantPort    int      `yaml:"qdrant_port"` // gRPC порт
	QdrantAPIKey  string   `yaml:"qdrant_api_key"`
	UseTLS        bool     `yaml:"use_tls"`
	Collection    string   `yaml:"collection"`
	MinScore      *float64 `yaml:"min_score"`       // nil — 0.75
	MinTextLength int      `yaml:"min_text_length"` // Короче — шаблонный фрагмент
	Stoplist      []string `yaml:"stoplist"`        // Фрагменты-заголовки без содержания
	DefaultTopK   int      `yaml:"default_top_k"`
}

// GetDefaults возвращает дефолтные значения для незаполненных полей.
func (c *RAGConfig) GetDefaults() RAGConfig {
	result := *c

	if result.QdrantHost == "" {
		result.QdrantHost = "localhost"
	}
	if result.QdrantPort == 0 {
		result.QdrantPort = 6334
	}
	if result.Collection == "" {
		result.Collection = "KnowMe_chunks"
	}
	if result.MinScore == nil {
		s := 0.75
		result.MinScore = &s
	}
	if result.MinTextLength == 0 {
		result.MinTextLength = 40
	}
	if result.Stoplist == nil {
		result.Stoplist = []string{
			"table of contents",
			"contents",
			"index",
			"references",
			"bibliography",
			"acknowledgements",
			"page intentionally left blank",
		}
	}
	if result.DefaultTopK == 0 {
		result.DefaultTopK = 5
	}

	return result
}

// SearchConfig — Tavily web search.
type SearchConfig struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	MaxResults int           `yaml:"max_results"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	RateLimit  int           `yaml:"rate_limit"`  // Запросов в минуту
	BurstLimit int           `yaml:"burst_limit"` // Burst для rate limiter
}

// GetDefaults возвращает дефолтные значения для незаполненных полей.
func (c *SearchConfig) GetDefaults() SearchConfig {
	result := *c

	if result.BaseURL == "" {
		result.BaseURL = "https://api.tavily.com"
	}
	if result.MaxResults == 0 {
		result.MaxResults = 5
	}
	if result.CacheTTL == 0 {
		result.CacheTTL = 10 * time.Minute
	}
	if result.RateLimit == 0 {
		result.RateLimit = 60
	}
	if result.BurstLimit == 0 {
		result.BurstLimit = 5
	}

	return result
}

// WeatherConfig — OpenWeatherMap.
type WeatherConfig struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	RateLimit  int           `yaml:"rate_limit"`
	BurstLimit int           `yaml:"burst_limit"`
}

// GetDefaults возвращает дефолтные значения для незаполненных полей.
func (c *WeatherConfig) GetDefaults() WeatherConfig {
	result := *c

	if result.BaseURL == "" {
		result.BaseURL = "https://api.openweathermap.org"
	}
	if result.CacheTTL == 0 {
		result.CacheTTL = 10 * time.Minute
	}
	if result.RateLimit == 0 {
		result.RateLimit = 60
	}
	if result.BurstLimit == 0 {
		result.BurstLimit = 5
	}

	return result
}

// WebhookConfig — исходящий webhook (например, n8n).
type WebhookConfig struct {
	URL     string        `yaml:"url"` // Пусто — webhook не настроен
	Timeout time.Duration `yaml:"timeout"`
	Source  string        `yaml:"source"` // payload по умолчанию {"source": ...}
}

// GetDefaults возвращает дефолтные значения для незаполненных полей.
func (c *WebhookConfig) GetDefaults() WebhookConfig {
	result := *c

	if result.Timeout == 0 {
		result.Timeout = 10 * time.Second
	}
	if result.Source == "" {
		result.Source = "knowme"
	}

	return result
}

// CacheConfig — кэш для истории сессий и ответов провайдеров.
type CacheConfig struct {
	Driver     string `yaml:"driver"` // "redis" | "sqlite" | "memory"
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	DB         int    `yaml:"db"`
	Password   string `yaml:"password"`
	SQLitePath string `yaml:"sqlite_path"`
}

// GetDefaults возвращает дефолтные значения для незаполненных полей.
func (c *CacheConfig) GetDefaults() CacheConfig {
	result := *c

	if result.Driver == "" {
		result.Driver = "redis"
	}
	if result.Host == "" {
		result.Host = "localhost"
	}
	if result.Port == 0 {
		result.Port = 6379
	}
	if result.SQLitePath == "" {
		result.SQLitePath = "knowme-cache.db"
	}

	return result
}

// S3Config — архив исходных документов (опционально).
type S3Config struct {
	Endpoint  string `yaml:"endpoint"` // Пусто — архив не используется
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"` // Поддерживает ${VAR}
	SecretKey string `yaml:"secret_key"` // Поддерживает ${VAR}
	UseSSL    bool   `yaml:"use_ssl"`
}

// Enabled сообщает, настроен ли архив.
func (c S3Config) Enabled() bool {
	return c.Endpoint != ""
}

// Load читает YAML файл, подставляет ENV переменные и возвращает готовую структуру.
func Load(path string) (*AppConfig, error) {
	// 1. Проверяем существование файла
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found at: %s", path)
	}

	// 2. Читаем файл целиком
	rawBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(rawBytes)
}

// Parse разбирает YAML из памяти (ENV подстановка + валидация).
func Parse(rawBytes []byte) (*AppConfig, error) {
	// os.ExpandEnv заменяет ${VAR} или $VAR на значение из системы.
	contentWithEnv := os.ExpandEnv(string(rawBytes))

	var cfg AppConfig
	if err := yaml.Unmarshal([]byte(contentWithEnv), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	cfg.applyDefaults()

	// Отсутствующие ключи — ошибка при старте, а не посреди запроса.
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.App.ListenAddr == "" {
		c.App.ListenAddr = ":8000"
	}
	if c.App.DebugLogsDir == "" {
		c.App.DebugLogsDir = "debug_logs"
	}
	c.Chat = c.Chat.GetDefaults()
	c.RAG = c.RAG.GetDefaults()
	c.Search = c.Search.GetDefaults()
	c.Weather = c.Weather.GetDefaults()
	c.Webhook = c.Webhook.GetDefaults()
	c.Cache = c.Cache.GetDefaults()
	if c.Tools == nil {
		c.Tools = make(map[string]ToolConfig)
	}
}

// validate проверяет обязательные поля.
func (c *AppConfig) validate() error {
	chat, ok := c.Models.Definitions[c.Models.DefaultChat]
	if c.Models.DefaultChat == "" || !ok {
		return fmt.Errorf("models.default_chat '%s' is not defined in definitions", c.Models.DefaultChat)
	}
	if chat.APIKey == "" {
		return fmt.Errorf("api_key for model '%s' is required", c.Models.DefaultChat)
	}
	if chat.ModelName == "" {
		return fmt.Errorf("model_name for model '%s' is required", c.Models.DefaultChat)
	}

	emb, ok := c.Models.Definitions[c.Models.DefaultEmbedding]
	if c.Models.DefaultEmbedding == "" || !ok {
		return fmt.Errorf("models.default_embedding '%s' is not defined in definitions", c.Models.DefaultEmbedding)
	}
	if emb.APIKey == "" {
		return fmt.Errorf("api_key for model '%s' is required", c.Models.DefaultEmbedding)
	}

	if c.Search.APIKey == "" {
		return fmt.Errorf("search.api_key is required")
	}
	if c.Weather.APIKey == "" {
		return fmt.Errorf("weather.api_key is required")
	}

	switch c.Cache.Driver {
	case "redis", "sqlite", "memory":
	default:
		return fmt.Errorf("cache.driver must be one of redis|sqlite|memory, got '%s'", c.Cache.Driver)
	}

	if c.S3.Enabled() && c.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when s3.endpoint is set")
	}

	if min := *c.RAG.MinScore; min < 0 || min > 1 {
		return fmt.Errorf("rag.min_score must be within [0, 1], got %v", min)
	}

	return nil
}

// Helper методы для удобства доступа (Syntactic sugar)

// GetChatModel возвращает конфигурацию модели по умолчанию или по имени.
func (c *AppConfig) GetChatModel(name string) (ModelDef, bool) {
	if name == "" {
		name = c.Models.DefaultChat
	}
	m, ok := c.Models.Definitions[name]
	return m, ok
}

// GetEmbeddingModel возвращает конфигурацию модели эмбеддингов.
func (c *AppConfig) GetEmbeddingModel() (ModelDef, bool) {
	m, ok := c.Models.Definitions[c.Models.DefaultEmbedding]
	return m, ok
}

// ToolTimeout возвращает timeout для инструмента с учётом переопределения.
func (c *AppConfig) ToolTimeout(name string) time.Duration {
	if t, ok := c.Tools[name]; ok && t.Timeout > 0 {
		return t.Timeout
	}
	return c.Chat.ToolTimeout
}

// ToolEnabled сообщает, включён ли инструмент в config.yaml.
func (c *AppConfig) ToolEnabled(name string) bool {
	t, ok := c.Tools[name]
	return !ok || t.IsEnabled()
}
