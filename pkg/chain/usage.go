package chain

import (
	"sync/atomic"

	"github.com/ilkoid/knowme/pkg/llm"
)

// UsageAccumulator — счётчики токенов одного обмена.
//
// Инструменты раунда могут выполняться параллельно, поэтому счётчики атомарные.
type UsageAccumulator struct {
	total     atomic.Int64
	embedding atomic.Int64
}

// AddTotal учитывает токены модели.
func (u *UsageAccumulator) AddTotal(n int) {
	if n > 0 {
		u.total.Add(int64(n))
	}
}

// AddEmbedding учитывает токены эмбеддингов.
func (u *UsageAccumulator) AddEmbedding(n int) {
	if n > 0 {
		u.embedding.Add(int64(n))
	}
}

// Snapshot возвращает текущие значения.
func (u *UsageAccumulator) Snapshot() llm.Usage {
	return llm.Usage{
		TotalTokens:     int(u.total.Load()),
		EmbeddingTokens: int(u.embedding.Load()),
	}
}
