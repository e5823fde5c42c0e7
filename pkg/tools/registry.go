// Реестр для хранения и поиска инструментов (Tool Catalog).
package tools

import (
	"errors"
	"fmt"
	"sync"
)

// ErrToolNotFound возвращается Get для имени, которого нет в каталоге.
var ErrToolNotFound = errors.New("tool not found")

// Registry — потокобезопасный каталог инструментов.
//
// Порядок Definitions() совпадает с порядком регистрации: каталог
// отдаётся модели целиком в начале каждого раунда и не меняется по ходу.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry создает новый пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

var knownTypes = map[string]bool{
	TypeString:  true,
	TypeInteger: true,
	TypeNumber:  true,
	TypeBoolean: true,
	TypeObject:  true,
}

// validateToolDefinition проверяет что ToolDefinition согласовано.
//
// Валидирует:
//   - Name не пустой
//   - имена параметров уникальны и не пустые
//   - тип параметра известен
//   - Default входит в Enum (если оба заданы)
func validateToolDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool '%s': description cannot be empty", def.Name)
	}

	seen := make(map[string]bool, len(def.Params))
	for i, p := range def.Params {
		if p.Name == "" {
			return fmt.Errorf("tool '%s': params[%d] has empty name", def.Name, i)
		}
		if seen[p.Name] {
			return fmt.Errorf("tool '%s': duplicate param '%s'", def.Name, p.Name)
		}
		seen[p.Name] = true

		if !knownTypes[p.Type] {
			return fmt.Errorf("tool '%s': param '%s' has unsupported type '%s'", def.Name, p.Name, p.Type)
		}

		if len(p.Enum) > 0 && p.Default != nil {
			s, ok := p.Default.(string)
			if !ok || !contains(p.Enum, s) {
				return fmt.Errorf("tool '%s': default of param '%s' is not in enum %v", def.Name, p.Name, p.Enum)
			}
		}
	}

	return nil
}

// Register добавляет инструмент в реестр с валидацией схемы.
//
// Повторная регистрация имени — ошибка: каталог статичен.
func (r *Registry) Register(tool Tool) error {
	def := tool.Definition()

	if err := validateToolDefinition(def); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool '%s' already registered", def.Name)
	}
	r.tools[def.Name] = tool
	r.order = append(r.order, def.Name)
	return nil
}

// Get ищет инструмент по имени.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return tool, nil
}

// Definitions возвращает определения всех инструментов в порядке регистрации.
func (r *Registry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Names возвращает имена инструментов в порядке регистрации.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
