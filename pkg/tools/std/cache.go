package std

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ilkoid/knowme/pkg/cache"
	"github.com/ilkoid/knowme/pkg/utils"
)

// cachedPayload достаёт сохранённый ответ инструмента. c может быть nil.
//
// Кэш best-effort: любая ошибка трактуется как промах.
func cachedPayload(ctx context.Context, c cache.Cache, key string) (map[string]any, bool) {
	if c == nil {
		return nil, false
	}
	data, err := c.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			utils.Warn("Tool cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false
	}
	return out, true
}

// storePayload сохраняет ответ инструмента на ttl.
func storePayload(ctx context.Context, c cache.Cache, key string, out map[string]any, ttl time.Duration) {
	if c == nil {
		return
	}
	data, err := json.Marshal(out)
	if err != nil {
		return
	}
	if err := c.Set(ctx, key, data, ttl); err != nil {
		utils.Warn("Tool cache write failed", "key", key, "error", err)
	}
}
