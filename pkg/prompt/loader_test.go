package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePrompt(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "system.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestResolveSystemPrompt_File(t *testing.T) {
	path := writePrompt(t, `
description: test
messages:
  - role: system
    content: "Tools: {{join .Tools \", \"}}"
  - role: user
    content: "ignored"
  - role: system
    content: "Today is {{.Date}}."
`)

	got, err := ResolveSystemPrompt("inline", path, Data{Tools: []string{"rag_search", "get_weather"}, Date: "2026-10-18"})
	require.NoError(t, err)
	assert.Equal(t, "Tools: rag_search, get_weather\n\nToday is 2026-10-18.", got)
}

func TestResolveSystemPrompt_Inline(t *testing.T) {
	got, err := ResolveSystemPrompt("  be brief  ", "", Data{})
	require.NoError(t, err)
	assert.Equal(t, "be brief", got)

	got, err = ResolveSystemPrompt("", "", Data{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolveSystemPrompt_Errors(t *testing.T) {
	_, err := ResolveSystemPrompt("", filepath.Join(t.TempDir(), "missing.yaml"), Data{})
	assert.ErrorContains(t, err, "prompt file not found")

	_, err = ResolveSystemPrompt("", writePrompt(t, "messages: [oops"), Data{})
	assert.ErrorContains(t, err, "yaml parse error")

	_, err = ResolveSystemPrompt("", writePrompt(t, "messages:\n  - role: user\n    content: hi\n"), Data{})
	assert.ErrorContains(t, err, "no system messages")

	_, err = ResolveSystemPrompt("", writePrompt(t, "messages:\n  - role: system\n    content: \"{{.Unknown}}\"\n"), Data{})
	assert.ErrorContains(t, err, "template execute error")
}
