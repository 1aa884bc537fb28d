package db

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps documents in process memory. Used for local runs and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]*Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]*Document)}
}

func copyDocument(d *Document) *Document {
	return &Document{
		Key:       d.Key,
		Version:   d.Version,
		Data:      append([]byte(nil), d.Data...),
		UpdatedAt: d.UpdatedAt,
	}
}

func (m *MemoryStore) Get(ctx context.Context, collection, key string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.collections[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDocument(doc), nil
}

func (m *MemoryStore) Create(ctx context.Context, collection, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs, ok := m.collections[collection]
	if !ok {
		docs = make(map[string]*Document)
		m.collections[collection] = docs
	}
	if _, exists := docs[key]; exists {
		return ErrAlreadyExists
	}
	docs[key] = &Document{Key: key, Version: 1, Data: append([]byte(nil), data...), UpdatedAt: time.Now()}
	return nil
}

func (m *MemoryStore) CompareAndUpdate(ctx context.Context, collection, key string, expectedVersion int64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.collections[collection][key]
	if !ok {
		return ErrNotFound
	}
	if doc.Version != expectedVersion {
		return ErrVersionConflict
	}
	doc.Version++
	doc.Data = append([]byte(nil), data...)
	doc.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) List(ctx context.Context, collection string) ([]*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := make([]*Document, 0, len(m.collections[collection]))
	for _, doc := range m.collections[collection] {
		docs = append(docs, copyDocument(doc))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
	return docs, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
