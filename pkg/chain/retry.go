package chain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ilkoid/knowme/pkg/llm"
	"github.com/ilkoid/knowme/pkg/utils"
)

// ErrRateLimitExhausted — модель продолжает отвечать rate limit после всех повторов.
var ErrRateLimitExhausted = errors.New("rate limit retries exhausted")

// RetryPolicy — экспоненциальный backoff для вызова модели.
//
// Повторяются только ошибки llm.KindRateLimit, остальные возвращаются сразу.
type RetryPolicy struct {
	MaxRetries int           // Повторы без учёта первой попытки
	BaseDelay  time.Duration // Задержка перед первым повтором
	Multiplier float64       // Множитель задержки

	// Sleep ждёт d или отмены ctx. nil — таймер.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy — 3 повтора, 2s, 4s, 8s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		Multiplier: 2,
	}
}

// Delay возвращает задержку перед повтором attempt (с 0).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	mult := p.Multiplier
	if mult <= 0 {
		mult = 1
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(mult, float64(attempt)))
}

// Do вызывает fn, повторяя при rate limit.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) (llm.Response, error)) (llm.Response, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	resp, err := fn(ctx)
	for attempt := 0; err != nil && llm.IsRateLimit(err); attempt++ {
		if attempt >= p.MaxRetries {
			return llm.Response{}, fmt.Errorf("%w after %d retries: %w", ErrRateLimitExhausted, p.MaxRetries, err)
		}

		delay := p.Delay(attempt)
		utils.Warn("Model rate limited, backing off",
			"attempt", attempt+1,
			"max_retries", p.MaxRetries,
			"delay", delay)

		if serr := sleep(ctx, delay); serr != nil {
			return llm.Response{}, fmt.Errorf("retry cancelled: %w", serr)
		}
		resp, err = fn(ctx)
	}

	return resp, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
