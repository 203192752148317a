package cache

import "sync"

// Mem is an unbounded map-backed cache. Entries live until deleted.
type Mem struct {
	mu   sync.RWMutex
	data map[string]any
}

func NewMem() *Mem {
	return &Mem{data: make(map[string]any)}
}

func (m *Mem) Get(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *Mem) Put(key string, val any, _ ...PutOption) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = val
}

func (m *Mem) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

func (m *Mem) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

var _ Cache = (*Mem)(nil)
