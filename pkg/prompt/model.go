// Формат YAML файла системной инструкции.
package prompt

// PromptFile — YAML файл системной инструкции.
//
//	description: политика выбора инструментов
//	messages:
//	  - role: system
//	    content: |
//	      Доступные инструменты: {{join .Tools ", "}}
type PromptFile struct {
	Description string    `yaml:"description"`
	Messages    []Message `yaml:"messages"`
}

// Message — одно сообщение файла. Content — text/template.
type Message struct {
	Role    string `yaml:"role"`    // system
	Content string `yaml:"content"` // Шаблон с {{.Tools}}, {{.Date}}
}

// Data — значения для шаблонов.
type Data struct {
	Tools []string // Имена включённых инструментов
	Date  string   // Текущая дата, 2006-01-02
}
