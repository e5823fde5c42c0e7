// Package ui рендерит результат обмена для терминала.
package ui

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/muesli/reflow/wrap"

	"github.com/ilkoid/knowme/internal/agent"
	"github.com/ilkoid/knowme/pkg/utils"
)

// DefaultWidth — ширина переноса, если терминал неизвестен.
const DefaultWidth = 80

// maxPayloadWidth — сколько символов аргументов и результата показывать.
const maxPayloadWidth = 160

// Options — параметры вывода.
type Options struct {
	Width    int  // Ширина переноса ответа
	Verbose  bool // Показывать аргументы и результаты инструментов
	NoHeader bool
}

// RenderResult возвращает ответ, журнал инструментов и usage.
func RenderResult(query string, res agent.Result, elapsed time.Duration, opts Options) string {
	width := opts.Width
	if width <= 0 {
		width = DefaultWidth
	}

	var b strings.Builder

	if !opts.NoHeader {
		b.WriteString(headerStyle.Render("knowme"))
		b.WriteString("\n\n")
	}
	if query != "" {
		b.WriteString(userMsgStyle("> " + query))
		b.WriteString("\n\n")
	}

	b.WriteString(wrap.String(res.Text, width))
	b.WriteString("\n")

	if len(res.ToolCalls) > 0 {
		b.WriteString("\n")
		b.WriteString(metaStyle("Tools:"))
		b.WriteString("\n")
		for i, call := range res.ToolCalls {
			line := fmt.Sprintf("  %d. %s", i+1, toolNameStyle(call.Tool))
			if msg, ok := call.Result["error"]; ok {
				line += " " + errorMsgStyle(fmt.Sprint(msg))
			}
			b.WriteString(line)
			b.WriteString("\n")

			if opts.Verbose {
				b.WriteString(metaStyle("     args:   " + compact(call.Args)))
				b.WriteString("\n")
				b.WriteString(metaStyle("     result: " + compact(call.Result)))
				b.WriteString("\n")
			}
		}
	}

	b.WriteString("\n")
	b.WriteString(metaStyle(fmt.Sprintf("session %s · rounds %d · tokens %d (+%d embedding) · %s",
		res.SessionID, res.Rounds, res.Usage.TotalTokens, res.Usage.EmbeddingTokens,
		elapsed.Round(time.Millisecond))))
	b.WriteString("\n")

	return b.String()
}

// RenderError возвращает строку ошибки.
func RenderError(err error) string {
	return errorMsgStyle("Error: "+err.Error()) + "\n"
}

func compact(v map[string]any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return utils.Truncate(string(data), maxPayloadWidth)
}
