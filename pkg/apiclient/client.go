// Package apiclient — HTTP клиент для внешних JSON API (Tavily, OpenWeatherMap, webhook).
//
// Architecture:
//
// Это "тупой" клиент: rate limiting, классификация ошибок и JSON (де)сериализация.
// Вся предметная логика (какие поля брать из ответа, какой кэш ключ) живёт
// в адаптерах pkg/tools/std.
//
// Каждый инструмент получает свой rate.Limiter (ключ — toolID), параметры
// лимита передаются при вызове, из config.yaml.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrorType представляет тип ошибки при работе с внешним API.
type ErrorType int

const (
	ErrUnknown ErrorType = iota
	ErrAuthFailed
	ErrTimeout
	ErrNetwork
	ErrRateLimit
	ErrNotFound
	ErrHTTPStatus
	ErrDecode
)

// String возвращает строковое представление типа ошибки.
func (e ErrorType) String() string {
	switch e {
	case ErrAuthFailed:
		return "authentication_failed"
	case ErrTimeout:
		return "timeout"
	case ErrNetwork:
		return "network_error"
	case ErrRateLimit:
		return "rate_limit"
	case ErrNotFound:
		return "not_found"
	case ErrHTTPStatus:
		return "http_status"
	case ErrDecode:
		return "decode_error"
	default:
		return "unknown"
	}
}

// StatusError — внешний API ответил не-2xx.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api error: status %d, body: %s", e.StatusCode, e.Body)
}

// HTTPClient интерфейс для выполнения HTTP запросов.
//
// Позволяет мокировать HTTP клиент в тестах.
// Стандартный *http.Client реализует этот интерфейс.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options — параметры одного вызова.
type Options struct {
	RateLimit int               // Запросов в минуту; 0 — без лимита
	Burst     int               // Burst для rate limiter
	Query     url.Values        // Query параметры (может быть nil)
	Headers   map[string]string // Дополнительные заголовки
}

// Client выполняет JSON запросы с rate limiting.
type Client struct {
	httpClient    HTTPClient
	retryAttempts int // Повторы только на 429

	mu       sync.Mutex
	limiters map[string]*rate.Limiter // tool ID → limiter
}

// New создает клиент с таймаутом на весь запрос.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return NewWithHTTPClient(&http.Client{Timeout: timeout})
}

// NewWithHTTPClient создает клиент поверх произвольного HTTPClient (для тестов).
func NewWithHTTPClient(hc HTTPClient) *Client {
	return &Client{
		httpClient:    hc,
		retryAttempts: 2,
		limiters:      make(map[string]*rate.Limiter),
	}
}

// ClassifyError классифицирует ошибку по типу для лучшей диагностики.
//
// Сначала проверяет типизированные ошибки (StatusError, context, net),
// текст ошибки — последний вариант.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrUnknown
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden:
			return ErrAuthFailed
		case se.StatusCode == http.StatusNotFound:
			return ErrNotFound
		case se.StatusCode == http.StatusTooManyRequests:
			return ErrRateLimit
		default:
			return ErrHTTPStatus
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}

	var de *DecodeError
	if errors.As(err, &de) {
		return ErrDecode
	}

	errMsg := err.Error()
	errMsgLower := strings.ToLower(errMsg)

	if strings.Contains(errMsgLower, "timeout") ||
		strings.Contains(errMsg, "deadline exceeded") {
		return ErrTimeout
	}

	if strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "no such host") ||
		strings.Contains(errMsgLower, "connection reset") {
		return ErrNetwork
	}

	return ErrUnknown
}

// DecodeError — ответ 2xx, но тело не разбирается в dest.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "unmarshal error: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

// StatusCode возвращает HTTP статус из ошибки (0 если его нет).
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// Get выполняет GET запрос и разбирает JSON ответ в dest.
func (c *Client) Get(ctx context.Context, toolID, rawURL string, opts Options, dest any) (int, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("invalid url: %w", err)
	}
	if opts.Query != nil {
		u.RawQuery = opts.Query.Encode()
	}

	return c.doRequest(ctx, toolID, opts, http.MethodGet, u.String(), nil, dest)
}

// Post сериализует body в JSON, выполняет POST и разбирает ответ в dest.
//
// dest может быть nil — тогда тело ответа игнорируется.
func (c *Client) Post(ctx context.Context, toolID, rawURL string, opts Options, body, dest any) (int, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("invalid url: %w", err)
	}
	if opts.Query != nil {
		u.RawQuery = opts.Query.Encode()
	}

	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal body: %w", err)
	}

	return c.doRequest(ctx, toolID, opts, http.MethodPost, u.String(), bodyJSON, dest)
}

// doRequest выполняет HTTP запрос с rate limiting и обработкой 429.
//
// Возвращает HTTP статус последнего ответа (0 если ответа не было).
func (c *Client) doRequest(ctx context.Context, toolID string, opts Options, method, reqURL string, body []byte, dest any) (int, error) {
	limiter := c.getOrCreateLimiter(toolID, opts.RateLimit, opts.Burst)

	var lastErr error
	lastStatus := 0

	for i := 0; i <= c.retryAttempts; i++ {
		// Ждем разрешения от лимитера (блокирует горутину, если превысили лимит)
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return lastStatus, fmt.Errorf("rate limiter wait: %w", err)
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		httpReq, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
		if err != nil {
			return 0, err
		}

		if body != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
		httpReq.Header.Set("Accept", "application/json")
		for k, v := range opts.Headers {
			httpReq.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			// Сетевые ошибки не ретраим: у вызова свой timeout
			return 0, err
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		lastStatus = resp.StatusCode

		// Обработка 429 (Too Many Requests)
		if resp.StatusCode == http.StatusTooManyRequests && i < c.retryAttempts {
			lastErr = &StatusError{StatusCode: resp.StatusCode, Body: truncateBody(respBody)}
			retryAfter := 1 * time.Second
			if s := resp.Header.Get("Retry-After"); s != "" {
				if sec, err := strconv.Atoi(s); err == nil {
					retryAfter = time.Duration(sec) * time.Second
				}
			}

			select {
			case <-ctx.Done():
				return lastStatus, ctx.Err()
			case <-time.After(retryAfter):
				continue
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return lastStatus, &StatusError{StatusCode: resp.StatusCode, Body: truncateBody(respBody)}
		}

		if readErr != nil {
			return lastStatus, fmt.Errorf("read body: %w", readErr)
		}

		if dest == nil || len(bytes.TrimSpace(respBody)) == 0 {
			return lastStatus, nil
		}

		if err := json.Unmarshal(respBody, dest); err != nil {
			return lastStatus, &DecodeError{Err: err}
		}

		return lastStatus, nil
	}

	return lastStatus, fmt.Errorf("max retries exceeded, last error: %w", lastErr)
}

// getOrCreateLimiter возвращает существующий limiter для toolID или создаёт новый.
//
// rateLimit в запросах/минуту → rate.Limit в запросах/секунду.
// rateLimit <= 0 — лимит не применяется.
func (c *Client) getOrCreateLimiter(toolID string, rateLimit int, burst int) *rate.Limiter {
	if rateLimit <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if limiter, exists := c.limiters[toolID]; exists {
		return limiter
	}

	ratePerSec := float64(rateLimit) / 60.0
	limiter := rate.NewLimiter(rate.Limit(ratePerSec), burst)
	c.limiters[toolID] = limiter

	return limiter
}

func truncateBody(b []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
