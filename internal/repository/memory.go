package repository

import (
	"context"
	"sync"

	"local-chat/internal/domain"
)

// MemoryBackend keeps the history in process memory. Nothing survives a restart.
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[string]domain.ChatMessage
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: make(map[string]domain.ChatMessage)}
}

func (m *MemoryBackend) Commit(_ context.Context, b Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range b.Puts {
		if existing, ok := m.items[msg.ID]; ok {
			existing.Text = msg.Text
			m.items[msg.ID] = existing
			continue
		}
		m.items[msg.ID] = msg
	}
	for _, msg := range b.Deletes {
		delete(m.items, msg.ID)
	}
	return nil
}

func (m *MemoryBackend) List(_ context.Context) ([]domain.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.ChatMessage, 0, len(m.items))
	for _, msg := range m.items {
		out = append(out, msg)
	}
	return out, nil
}

func (m *MemoryBackend) Close() error { return nil }
