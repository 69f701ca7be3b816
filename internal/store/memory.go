package store

import (
	"context"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/schema"
)

// Memory keeps private copies of documents: Store copies what it is given
// and every read returns a fresh copy, so callers editing a document cannot
// change what the indexes were built from.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]schema.Document
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string]schema.Document)}
}

func (m *Memory) Store(_ context.Context, id string, doc schema.Document) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.docs[id]; exists {
		return false, nil
	}
	m.docs[id] = schema.Clone(doc)
	return true, nil
}

func (m *Memory) Get(_ context.Context, id string) (schema.Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	return schema.Clone(doc), ok, nil
}

func (m *Memory) GetMultiple(_ context.Context, ids []string) ([]schema.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]schema.Document, len(ids))
	for i, id := range ids {
		out[i] = schema.Clone(m.docs[id])
	}
	return out, nil
}

func (m *Memory) Remove(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.docs[id]; !exists {
		return false, nil
	}
	delete(m.docs, id)
	return true, nil
}

func (m *Memory) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs), nil
}

func (m *Memory) All(context.Context) (map[string]schema.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]schema.Document, len(m.docs))
	for id, doc := range m.docs {
		out[id] = schema.Clone(doc)
	}
	return out, nil
}
