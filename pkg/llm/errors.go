package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind классифицирует сбой провайдера для политики retry.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindRateLimit
	KindAuth
	KindInvalidRequest
	KindServer
	KindNetwork
)

// String возвращает строковое представление типа ошибки.
func (k ErrorKind) String() string {
	switch k {
	case KindRateLimit:
		return "rate_limit"
	case KindAuth:
		return "auth"
	case KindInvalidRequest:
		return "invalid_request"
	case KindServer:
		return "server"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// ProviderError — ошибка LLM провайдера с явным типом.
//
// Цикл инструментов решает retry/fatal только по Kind, а не по тексту ошибки.
type ProviderError struct {
	Kind       ErrorKind
	StatusCode int
	Provider   string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("[%s] %s error (status=%d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("[%s] %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// KindFromStatus сопоставляет HTTP статус с типом ошибки.
func KindFromStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status >= 400 && status < 500:
		return KindInvalidRequest
	case status >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}

// KindFromText — запасная классификация по тексту ошибки.
//
// Используется только когда клиент провайдера не дал статус-кода.
func KindFromText(msg string) ErrorKind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(lower, "too many requests") ||
		strings.Contains(lower, "quota"):
		return KindRateLimit
	case strings.Contains(msg, "401") || strings.Contains(lower, "unauthorized"):
		return KindAuth
	case strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "timeout"):
		return KindNetwork
	default:
		return KindUnknown
	}
}

// IsRateLimit сообщает, является ли err ошибкой превышения квоты провайдера.
func IsRateLimit(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind == KindRateLimit
	}
	return false
}
