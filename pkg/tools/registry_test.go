package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct {
	def ToolDefinition
}

func (s stubTool) Definition() ToolDefinition { return s.def }

func (s stubTool) Execute(ctx context.Context, args map[string]any) map[string]any {
	return map[string]any{"ok": true}
}

func named(name string, params ...Param) stubTool {
	return stubTool{def: ToolDefinition{Name: name, Description: name + " tool", Params: params}}
}

func TestRegistry_OrderAndLookup(t *testing.T) {
	r := NewRegistry()
	for _, n := range []string{"rag_search", "web_search", "get_weather", "send_webhook_event"} {
		require.NoError(t, r.Register(named(n)))
	}

	assert.Equal(t, []string{"rag_search", "web_search", "get_weather", "send_webhook_event"}, r.Names())

	defs := r.Definitions()
	require.Len(t, defs, 4)
	assert.Equal(t, "get_weather", defs[2].Name)

	tool, err := r.Get("web_search")
	require.NoError(t, err)
	assert.Equal(t, "web_search", tool.Definition().Name)

	_, err = r.Get("launch_rocket")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrToolNotFound))
}

func TestRegistry_RejectsInvalidDefinitions(t *testing.T) {
	tests := []struct {
		name string
		tool stubTool
	}{
		{"empty name", stubTool{def: ToolDefinition{Description: "x"}}},
		{"empty description", stubTool{def: ToolDefinition{Name: "x"}}},
		{"duplicate param", named("x",
			Param{Name: "a", Type: TypeString},
			Param{Name: "a", Type: TypeString})},
		{"unknown type", named("x", Param{Name: "a", Type: "array"})},
		{"default outside enum", named("x",
			Param{Name: "unit", Type: TypeString, Default: "kelvin", Enum: []string{"metric", "imperial"}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, NewRegistry().Register(tt.tool))
		})
	}
}

func TestRegistry_DuplicateName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(named("web_search")))
	assert.Error(t, r.Register(named("web_search")))
	assert.Len(t, r.Names(), 1)
}

func TestToolDefinition_Parameters(t *testing.T) {
	def := ToolDefinition{
		Name:        "web_search",
		Description: "search",
		Params: []Param{
			{Name: "query", Type: TypeString, Description: "q", Required: true},
			{Name: "search_depth", Type: TypeString, Default: "basic", Enum: []string{"basic", "advanced"}},
			{Name: "max_results", Type: TypeInteger, Default: 5, Min: IntPtr(1), Max: IntPtr(10)},
		},
	}

	schema := def.Parameters()
	assert.Equal(t, TypeObject, schema["type"])
	assert.Equal(t, []string{"query"}, schema["required"])

	props := schema["properties"].(map[string]any)
	depth := props["search_depth"].(map[string]any)
	assert.Equal(t, []string{"basic", "advanced"}, depth["enum"])
	maxResults := props["max_results"].(map[string]any)
	assert.Equal(t, 1, maxResults["minimum"])
	assert.Equal(t, 10, maxResults["maximum"])
}
