package events

import (
	"context"
	"sync"
)

// ChanEmitter доставляет события обмена одному читателю через канал.
//
// Emit и Close безопасны для вызова из разных горутин.
type ChanEmitter struct {
	mu     sync.RWMutex
	ch     chan Event
	closed bool
}

var _ Emitter = (*ChanEmitter)(nil)

// NewChanEmitter создаёт эмиттер с буфером buffer. 0 — небуферизованный канал.
func NewChanEmitter(buffer int) *ChanEmitter {
	return &ChanEmitter{ch: make(chan Event, buffer)}
}

// Emit ждёт, пока читатель заберёт событие или отменится ctx.
// После Close событие отбрасывается.
func (e *ChanEmitter) Emit(ctx context.Context, event Event) {
	// Close берёт Lock, поэтому канал не закроется посреди отправки
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return
	}
	select {
	case e.ch <- event:
	case <-ctx.Done():
	}
}

// Subscribe возвращает читателя канала. Читатель один на эмиттер.
func (e *ChanEmitter) Subscribe() Subscriber {
	return subscriber(e.ch)
}

// Close закрывает канал. Читатель получает оставшиеся события, затем
// range завершается. Повторный вызов ничего не делает.
func (e *ChanEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}

type subscriber <-chan Event

func (s subscriber) Events() <-chan Event { return s }
