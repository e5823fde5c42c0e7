package llm

// GenerateOptions — параметры одного запроса к модели.
//
// Базовые значения задаются в config.yaml (models.definitions), цикл
// инструментов может переопределить их на вызов.
type GenerateOptions struct {
	Model       string
	Temperature float64 // Цикл инструментов передаёт chat.temperature (0.2)
	MaxTokens   int     // 0 — дефолт провайдера
}

// GenerateOption — функциональная опция для GenerateOptions.
type GenerateOption func(*GenerateOptions)

// WithTemperature переопределяет температуру.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) { o.Temperature = temp }
}

// ApplyOptions применяет opts поверх base. nil опции пропускаются.
func ApplyOptions(base GenerateOptions, opts ...GenerateOption) GenerateOptions {
	for _, opt := range opts {
		if opt != nil {
			opt(&base)
		}
	}
	return base
}
