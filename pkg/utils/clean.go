package utils

import (
	"strings"
	"unicode/utf8"
)

const fence = "```"

// CleanJsonBlock снимает markdown-обёртку с аргументов вызова инструмента.
//
// Модель иногда присылает аргументы как
//
//	```json
//	{"location": "Paris"}
//	```
//
// Метка языка после открывающего fence сравнивается без учёта регистра.
// Закрывающий fence снимается только в самом конце строки.
func CleanJsonBlock(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, fence) {
		return s
	}

	s = s[len(fence):]
	if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
		s = s[4:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), fence)

	return strings.TrimSpace(s)
}

// Truncate обрезает строку до max рун и добавляет "...".
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}

// MaskSecret оставляет для логов только последние 4 символа секрета.
//
//	"sk-abcdef123456" → "***********3456"
//	"abc"             → "***"
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
