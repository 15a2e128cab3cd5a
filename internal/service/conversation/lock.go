package conversation

import (
	"context"
	"sync"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
)

// KeyedLock is a per-conversation mutex that grants the lock in arrival order.
// Keys without holders or waiters are dropped from the table.
type KeyedLock struct {
	mu     sync.Mutex
	queues map[conversation.Key]*lockQueue
}

type lockQueue struct {
	waiters []chan struct{}
}

// NewKeyedLock creates an empty lock table.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{queues: make(map[conversation.Key]*lockQueue)}
}

// Lock blocks until key is held by the caller or ctx ends.
func (l *KeyedLock) Lock(ctx context.Context, key conversation.Key) (func(), error) {
	l.mu.Lock()
	q, busy := l.queues[key]
	if !busy {
		l.queues[key] = &lockQueue{}
		l.mu.Unlock()
		return l.unlocker(key), nil
	}

	ready := make(chan struct{})
	q.waiters = append(q.waiters, ready)
	l.mu.Unlock()

	select {
	case <-ready:
		return l.unlocker(key), nil
	case <-ctx.Done():
		l.mu.Lock()
		for i, ch := range q.waiters {
			if ch == ready {
				q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
				l.mu.Unlock()
				return nil, ctx.Err()
			}
		}
		l.mu.Unlock()
		// Ownership was handed over while ctx ended; pass it on.
		l.release(key)
		return nil, ctx.Err()
	}
}

// Len reports how many keys are currently held.
func (l *KeyedLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queues)
}

func (l *KeyedLock) unlocker(key conversation.Key) func() {
	var once sync.Once
	return func() {
		once.Do(func() { l.release(key) })
	}
}

func (l *KeyedLock) release(key conversation.Key) {
	l.mu.Lock()
	defer l.mu.Unlock()

	q, ok := l.queues[key]
	if !ok {
		return
	}
	if len(q.waiters) == 0 {
		delete(l.queues, key)
		return
	}
	next := q.waiters[0]
	q.waiters = q.waiters[1:]
	close(next)
}
