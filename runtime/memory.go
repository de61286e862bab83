package runtime

import (
	"context"
	"sync"

	"github.com/hupe1980/personamesh/core"
)

// memoryManager is a process-local core.MemoryManager keeping room-scoped
// message histories. Embeddings are derived through the runtime's embedder
// and cached under the runtime's character-hash namespace so identical text
// is embedded once per character.
//
// Concurrency: protected by RWMutex. Reads return copies.
type memoryManager struct {
	mu       sync.RWMutex
	byRoom   map[string][]core.Memory
	embedder core.Embedder
	cache    core.CacheStore
	ns       string
}

func newMemoryManager(embedder core.Embedder, cacheStore core.CacheStore, namespace string) *memoryManager {
	return &memoryManager{
		byRoom:   make(map[string][]core.Memory),
		embedder: embedder,
		cache:    cacheStore,
		ns:       namespace,
	}
}

// AddEmbeddingToMemory implements core.MemoryManager.
func (m *memoryManager) AddEmbeddingToMemory(mem *core.Memory) error {
	if mem.Content.Text == "" || m.embedder == nil {
		return nil
	}
	ctx := context.Background()
	if m.cache != nil {
		if v, ok, err := m.cache.Get(ctx, m.ns, "embedding:"+mem.Content.Text); err == nil && ok {
			if vec, ok := v.([]float32); ok {
				mem.Embedding = vec
				return nil
			}
		}
	}
	vec, err := m.embedder.Embed(ctx, mem.Content.Text)
	if err != nil {
		return err
	}
	mem.Embedding = vec
	if m.cache != nil {
		if err := m.cache.Set(ctx, m.ns, "embedding:"+mem.Content.Text, vec); err != nil {
			return err
		}
	}
	return nil
}

// CreateMemory implements core.MemoryManager.
func (m *memoryManager) CreateMemory(mem core.Memory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byRoom[mem.RoomID] = append(m.byRoom[mem.RoomID], mem)
	return nil
}

// RecentMemories implements core.MemoryManager; returns up to count memories
// in chronological order.
func (m *memoryManager) RecentMemories(roomID string, count int) ([]core.Memory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := m.byRoom[roomID]
	if count > 0 && len(history) > count {
		history = history[len(history)-count:]
	}
	out := make([]core.Memory, len(history))
	copy(out, history)
	return out, nil
}
