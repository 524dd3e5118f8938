package relay

import (
	"context"
	"errors"
	"sync"
)

// ErrBusClosed is returned for publishes and subscriptions after Close.
var ErrBusClosed = errors.New("bus closed")

// MemoryBus is a process-local Bus. It backs single-node deployments (no
// broker configured) and tests. Handlers run on the publisher's goroutine.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]func(payload []byte)
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]func(payload []byte))}
}

func (b *MemoryBus) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	handlers := b.subs[topic]
	b.mu.RUnlock()
	for _, h := range handlers {
		h(payload)
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, topic string, handler func(payload []byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	b.subs[topic] = append(b.subs[topic], handler)
	return nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string][]func(payload []byte))
	b.closed = true
	return nil
}
