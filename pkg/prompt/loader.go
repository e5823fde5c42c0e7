// Загрузка и рендер - чтение файла и text/template.

package prompt

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

var funcs = template.FuncMap{"join": strings.Join}

// Load загружает и парсит YAML файл промпта.
func Load(path string) (*PromptFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("prompt file not found: %s", path)
		}
		return nil, fmt.Errorf("read error: %w", err)
	}

	var pf PromptFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("yaml parse error: %w", err)
	}
	return &pf, nil
}

// SystemText рендерит system сообщения файла и склеивает их через пустую строку.
//
// Сообщения с другими ролями пропускаются.
func (pf *PromptFile) SystemText(data Data) (string, error) {
	var parts []string
	for i, msg := range pf.Messages {
		if msg.Role != "system" {
			continue
		}

		tmpl, err := template.New("msg").Funcs(funcs).Option("missingkey=error").Parse(msg.Content)
		if err != nil {
			return "", fmt.Errorf("template parse error in message #%d: %w", i, err)
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return "", fmt.Errorf("template execute error in message #%d: %w", i, err)
		}
		if text := strings.TrimSpace(buf.String()); text != "" {
			parts = append(parts, text)
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("prompt file has no system messages")
	}
	return strings.Join(parts, "\n\n"), nil
}

// ResolveSystemPrompt возвращает системную инструкцию.
//
// Файл имеет приоритет над inline текстом. Оба пусты — "" (вызывающий
// подставит встроенную инструкцию).
func ResolveSystemPrompt(inline, path string, data Data) (string, error) {
	if path == "" {
		return strings.TrimSpace(inline), nil
	}

	pf, err := Load(path)
	if err != nil {
		return "", err
	}
	return pf.SystemText(data)
}
