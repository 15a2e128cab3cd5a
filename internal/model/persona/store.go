package persona

import (
	"context"
	"sync"
)

// Store exposes the persona profile to the engine.
type Store interface {
	Load(ctx context.Context) (Persona, error)
}

// MemoryStore implements Store with a single in-memory profile.
type MemoryStore struct {
	mu   sync.RWMutex
	item Persona
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied profile.
func NewMemoryStore(item Persona) *MemoryStore {
	return &MemoryStore{item: clone(item)}
}

// Load returns a copy of the stored profile.
func (s *MemoryStore) Load(_ context.Context) (Persona, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.item), nil
}

// Replace swaps the stored profile.
func (s *MemoryStore) Replace(item Persona) {
	s.mu.Lock()
	s.item = clone(item)
	s.mu.Unlock()
}

func clone(p Persona) Persona {
	p.KnowledgeBase = append([]KnowledgeItem(nil), p.KnowledgeBase...)
	p.FAQs = append([]FAQ(nil), p.FAQs...)
	if p.ResponseDelaySeconds != nil {
		delay := *p.ResponseDelaySeconds
		p.ResponseDelaySeconds = &delay
	}
	return p
}
