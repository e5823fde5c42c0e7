// Package cache — единый интерфейс key-value кэша с TTL.
//
// Реализации:
//   - RedisCache  — сетевой кэш (основной режим)
//   - SQLiteCache — локальный файл, переживает рестарт
//   - MemoryCache — map в памяти процесса
//
// Драйвер выбирается при старте через Open; вызывающий код никогда
// не проверяет, какая реализация у него в руках.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ilkoid/knowme/pkg/config"
	"github.com/ilkoid/knowme/pkg/utils"
)

// ErrMiss возвращается Get, если ключа нет или он истёк.
var ErrMiss = errors.New("cache: miss")

// Cache — key-value хранилище с временем жизни записей.
//
// Реализации потокобезопасны.
type Cache interface {
	// Get возвращает значение или ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set сохраняет значение. ttl <= 0 — без истечения.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete удаляет ключ. Отсутствующий ключ — не ошибка.
	Delete(ctx context.Context, key string) error

	// Ping проверяет доступность хранилища.
	Ping(ctx context.Context) error

	// Close освобождает ресурсы.
	Close() error
}

// probeTimeout — сколько ждём Redis при старте.
const probeTimeout = 2 * time.Second

// Open создаёт кэш по cache.driver.
//
// Если Redis недоступен при старте, возвращается MemoryCache
// с предупреждением в логе: сервис работает, но история живёт до рестарта.
func Open(ctx context.Context, cfg config.CacheConfig) (Cache, error) {
	switch cfg.Driver {
	case "memory":
		utils.Info("Cache initialized", "driver", "memory")
		return NewMemoryCache(), nil

	case "sqlite":
		c, err := NewSQLiteCache(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite cache: %w", err)
		}
		purged, err := c.Purge(ctx)
		if err != nil {
			utils.Warn("Failed to purge expired cache entries", "error", err)
		}
		utils.Info("Cache initialized", "driver", "sqlite", "path", cfg.SQLitePath, "purged", purged)
		return c, nil

	case "redis", "":
		rc := NewRedisCache(cfg)
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		if err := rc.Ping(probeCtx); err != nil {
			utils.Warn("Redis unavailable, falling back to in-memory cache",
				"addr", rc.Addr(),
				"error", err)
			_ = rc.Close()
			return NewMemoryCache(), nil
		}
		utils.Info("Cache initialized", "driver", "redis", "addr", rc.Addr())
		return rc, nil

	default:
		return nil, fmt.Errorf("unknown cache driver '%s'", cfg.Driver)
	}
}
