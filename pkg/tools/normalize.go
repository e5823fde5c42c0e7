package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ilkoid/knowme/pkg/utils"
)

// ErrInvalidArgs — аргументы от модели не являются JSON объектом.
type ErrInvalidArgs struct {
	Raw string
	Err error
}

func (e *ErrInvalidArgs) Error() string {
	return fmt.Sprintf("invalid tool arguments %q: %v", e.Raw, e.Err)
}

func (e *ErrInvalidArgs) Unwrap() error { return e.Err }

// DecodeArgs — строгий decode аргументов на границе провайдера.
//
// Снимает markdown-обёртку, пустую строку трактует как {},
// всё, что не является JSON объектом, отклоняет.
func DecodeArgs(raw string) (map[string]any, error) {
	clean := utils.CleanJsonBlock(raw)
	if clean == "" || clean == "null" {
		return map[string]any{}, nil
	}

	var v any
	dec := json.NewDecoder(strings.NewReader(clean))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, &ErrInvalidArgs{Raw: raw, Err: err}
	}
	if dec.More() {
		return nil, &ErrInvalidArgs{Raw: raw, Err: fmt.Errorf("trailing content")}
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &ErrInvalidArgs{Raw: raw, Err: fmt.Errorf("expected object, got %T", v)}
	}
	return obj, nil
}

// Normalize приводит аргументы к схеме инструмента.
//
// Правила:
//   - отсутствующий или пустой ("" / nil / "   ") аргумент получает Default;
//   - значение вне Enum заменяется на Default;
//   - integer принимается из json.Number, float64 и числовой строки,
//     затем ограничивается Min/Max;
//   - object принимается из map или JSON-строки;
//   - ключи, которых нет в схеме, отбрасываются.
//
// Входная map не модифицируется.
func Normalize(def ToolDefinition, args map[string]any) map[string]any {
	out := make(map[string]any, len(def.Params))

	for _, p := range def.Params {
		raw, present := args[p.Name]
		if !present || isEmpty(raw) {
			if d, ok := defaultValue(p); ok {
				out[p.Name] = d
			}
			continue
		}

		v, ok := coerce(p, raw)
		if !ok {
			if d, hasDefault := defaultValue(p); hasDefault {
				out[p.Name] = d
			}
			continue
		}
		out[p.Name] = v
	}

	return out
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	default:
		return false
	}
}

// defaultValue возвращает копию дефолта (map дефолты не разделяются между вызовами).
func defaultValue(p Param) (any, bool) {
	if p.Default == nil {
		return nil, false
	}
	if m, ok := p.Default.(map[string]any); ok {
		cp := make(map[string]any, len(m))
		for k, v := range m {
			cp[k] = v
		}
		return cp, true
	}
	return p.Default, true
}

func coerce(p Param, raw any) (any, bool) {
	switch p.Type {
	case TypeString:
		s, ok := raw.(string)
		if !ok {
			s = fmt.Sprint(raw)
		}
		s = strings.TrimSpace(s)
		if len(p.Enum) > 0 {
			lower := strings.ToLower(s)
			if !contains(p.Enum, lower) {
				return nil, false
			}
			return lower, true
		}
		return s, true

	case TypeInteger:
		n, ok := toInt(raw)
		if !ok {
			return nil, false
		}
		if p.Min != nil && n < *p.Min {
			n = *p.Min
		}
		if p.Max != nil && n > *p.Max {
			n = *p.Max
		}
		return n, true

	case TypeNumber:
		f, ok := toFloat(raw)
		return f, ok

	case TypeBoolean:
		switch x := raw.(type) {
		case bool:
			return x, true
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(x))
			return b, err == nil
		}
		return nil, false

	case TypeObject:
		switch x := raw.(type) {
		case map[string]any:
			if len(x) == 0 {
				return nil, false
			}
			return x, true
		case string:
			obj, err := DecodeArgs(x)
			if err != nil || len(obj) == 0 {
				return nil, false
			}
			return obj, true
		}
		return nil, false
	}

	return raw, true
}

func toInt(raw any) (int, bool) {
	f, ok := toFloat(raw)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

func toFloat(raw any) (float64, bool) {
	switch x := raw.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

// String достаёт строковый аргумент (пустая строка если нет).
func String(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// Int достаёт integer аргумент.
func Int(args map[string]any, key string, fallback int) int {
	if n, ok := args[key].(int); ok {
		return n
	}
	return fallback
}

// Object достаёт object аргумент (пустая map если нет).
func Object(args map[string]any, key string) map[string]any {
	if m, ok := args[key].(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
