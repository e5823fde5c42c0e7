// Интерфейс Tool и структуры определений.

package tools

import "context"

// JSONSchema представляет JSON Schema для параметров инструмента.
//
// Формат соответствует JSON Schema specification для Function Calling API.
type JSONSchema map[string]any

// Типы параметров, которые понимает каталог.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeObject  = "object"
)

// Param описывает один аргумент инструмента.
type Param struct {
	Name        string
	Type        string
	Description string
	Required    bool

	// Default подставляется если аргумент отсутствует или пустой.
	// nil — у параметра нет дефолта.
	Default any

	// Enum ограничивает допустимые строковые значения.
	Enum []string

	// Min/Max ограничивают integer параметры (включительно).
	Min *int
	Max *int
}

// ToolDefinition описывает инструмент для LLM.
type ToolDefinition struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"-"`
}

// Parameters строит JSON Schema объекта аргументов из Params.
func (d ToolDefinition) Parameters() JSONSchema {
	props := make(map[string]any, len(d.Params))
	required := make([]string, 0)

	for _, p := range d.Params {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = append([]string(nil), p.Enum...)
		}
		if p.Min != nil {
			prop["minimum"] = *p.Min
		}
		if p.Max != nil {
			prop["maximum"] = *p.Max
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	return JSONSchema{
		"type":       TypeObject,
		"properties": props,
		"required":   required,
	}
}

// Param ищет параметр по имени.
func (d ToolDefinition) Param(name string) (Param, bool) {
	for _, p := range d.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Tool — контракт, который должен реализовать любой capability adapter.
type Tool interface {
	// Definition возвращает описание инструмента для LLM.
	Definition() ToolDefinition

	// Execute выполняет инструмент с уже нормализованными аргументами.
	//
	// Никогда не возвращает ошибку наружу: любой сбой провайдера
	// превращается в payload с ключом "error".
	Execute(ctx context.Context, args map[string]any) map[string]any
}

// IntPtr — хелпер для Param.Min/Max.
func IntPtr(v int) *int {
	return &v
}
