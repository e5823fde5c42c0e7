// Package factory создаёт провайдеров моделей по config.ModelDef.
package factory

import (
	"fmt"

	"github.com/ilkoid/knowme/pkg/config"
	"github.com/ilkoid/knowme/pkg/llm"
	"github.com/ilkoid/knowme/pkg/llm/openai"
)

// newClient выбирает адаптер по полю provider.
//
// Все поддерживаемые провайдеры говорят на OpenAI-совместимом протоколе,
// Gemini — через base_url его OpenAI endpoint.
func newClient(modelDef config.ModelDef) (*openai.Client, error) {
	switch modelDef.Provider {
	case "", "gemini", "openai", "zai", "deepseek":
		return openai.NewClient(modelDef), nil

	default:
		return nil, fmt.Errorf("unknown provider type: %s", modelDef.Provider)
	}
}

// NewLLMProvider создаёт чат-провайдера на основе конфигурации модели.
func NewLLMProvider(modelDef config.ModelDef) (llm.Provider, error) {
	client, err := newClient(modelDef)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// NewEmbedder создаёт провайдера эмбеддингов на основе конфигурации модели.
func NewEmbedder(modelDef config.ModelDef) (llm.Embedder, error) {
	client, err := newClient(modelDef)
	if err != nil {
		return nil, err
	}
	return client, nil
}
