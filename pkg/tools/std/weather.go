package std

import (
	"context"
	"net/url"
	"strings"

	"github.com/ilkoid/knowme/pkg/apiclient"
	"github.com/ilkoid/knowme/pkg/cache"
	"github.com/ilkoid/knowme/pkg/config"
	"github.com/ilkoid/knowme/pkg/tools"
	"github.com/ilkoid/knowme/pkg/utils"
)

// WeatherToolName — имя инструмента погоды.
const WeatherToolName = "get_weather"

const weatherDescription = "Get current weather information for a specific location. " +
	"Use this when the user asks about weather conditions."

// owmResponse — нужные поля ответа OpenWeatherMap /data/2.5/weather.
type owmResponse struct {
	Main *struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

// WeatherTool — текущая погода через OpenWeatherMap.
type WeatherTool struct {
	client      *apiclient.Client
	cache       cache.Cache
	cfg         config.WeatherConfig
	description string
}

// NewWeatherTool создает инструмент погоды. c может быть nil.
func NewWeatherTool(client *apiclient.Client, c cache.Cache, cfg config.WeatherConfig, toolCfg config.ToolConfig) *WeatherTool {
	desc := toolCfg.Description
	if desc == "" {
		desc = weatherDescription
	}
	return &WeatherTool{
		client:      client,
		cache:       c,
		cfg:         cfg.GetDefaults(),
		description: desc,
	}
}

// Definition возвращает определение инструмента для function calling.
func (t *WeatherTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        WeatherToolName,
		Description: t.description,
		Params: []tools.Param{
			{
				Name:        "location",
				Type:        tools.TypeString,
				Description: "City name or location (e.g., 'New York', 'London, UK')",
				Required:    true,
			},
			{
				Name:        "unit",
				Type:        tools.TypeString,
				Description: "Temperature unit: 'metric' for Celsius or 'imperial' for Fahrenheit",
				Default:     "metric",
				Enum:        []string{"metric", "imperial"},
			},
		},
	}
}

// Execute возвращает {location, temperature, description, humidity, wind_speed, unit}
// или {location, error}.
func (t *WeatherTool) Execute(ctx context.Context, args map[string]any) map[string]any {
	location := strings.TrimSpace(tools.String(args, "location"))
	unit := tools.String(args, "unit")
	if unit == "" {
		unit = "metric"
	}

	if location == "" {
		return weatherError(location, "location is required")
	}

	key := "weather:" + unit + ":" + strings.ToLower(location)
	if cached, ok := cachedPayload(ctx, t.cache, key); ok {
		utils.Debug("Weather cache hit", "location", location, "unit", unit)
		return cached
	}

	var resp owmResponse
	_, err := t.client.Get(ctx, WeatherToolName, t.cfg.BaseURL+"/data/2.5/weather", apiclient.Options{
		RateLimit: t.cfg.RateLimit,
		Burst:     t.cfg.BurstLimit,
		Query: url.Values{
			"q":     {location},
			"appid": {t.cfg.APIKey},
			"units": {unit},
		},
	}, &resp)
	if err != nil {
		utils.Error("Weather fetch failed",
			"location", location,
			"kind", apiclient.ClassifyError(err),
			"status", apiclient.StatusCode(err))
		return weatherError(location, weatherErrorMessage(err))
	}

	if resp.Main == nil || len(resp.Weather) == 0 {
		utils.Error("Weather response malformed", "location", location)
		return weatherError(location, "Failed to fetch weather: malformed provider response")
	}

	out := map[string]any{
		"location":    location,
		"temperature": resp.Main.Temp,
		"description": resp.Weather[0].Description,
		"humidity":    resp.Main.Humidity,
		"wind_speed":  resp.Wind.Speed,
		"unit":        unit,
	}

	storePayload(ctx, t.cache, key, out, t.cfg.CacheTTL)
	utils.Info("Weather fetched", "location", location, "unit", unit)
	return out
}

// weatherErrorMessage не пропускает appid из текста ошибки транспорта.
func weatherErrorMessage(err error) string {
	switch apiclient.ClassifyError(err) {
	case apiclient.ErrNotFound:
		return "Failed to fetch weather: location not found"
	case apiclient.ErrAuthFailed:
		return "Failed to fetch weather: provider rejected API key"
	case apiclient.ErrTimeout:
		return "Failed to fetch weather: provider timed out"
	case apiclient.ErrRateLimit:
		return "Failed to fetch weather: provider rate limit exceeded"
	case apiclient.ErrNetwork:
		return "Failed to fetch weather: provider unreachable"
	case apiclient.ErrHTTPStatus:
		return "Failed to fetch weather: provider returned an error"
	default:
		return "Failed to fetch weather: unexpected provider response"
	}
}

func weatherError(location, msg string) map[string]any {
	return map[string]any{
		"location": location,
		"error":    msg,
	}
}
