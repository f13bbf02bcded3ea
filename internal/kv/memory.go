package kv

import "sync"

// MemoryStore is the ephemeral fallback when file storage is unavailable.
// Watch callbacks fire asynchronously so a write made while a caller holds
// its own locks cannot deadlock against them.
type MemoryStore struct {
	mu       sync.Mutex
	values   map[string]string
	watchers map[int]memWatcher
	nextID   int
}

type memWatcher struct {
	key string
	fn  func()
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:   make(map[string]string),
		watchers: make(map[int]memWatcher),
	}
}

func (m *MemoryStore) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, ok := m.values[key]
	return value, ok
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	fns := m.watchersFor(key)
	m.mu.Unlock()

	for _, fn := range fns {
		go fn()
	}
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	delete(m.values, key)
	fns := m.watchersFor(key)
	m.mu.Unlock()

	for _, fn := range fns {
		go fn()
	}
	return nil
}

func (m *MemoryStore) Watch(key string, fn func()) (func(), error) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = memWatcher{key: key, fn: fn}
	m.mu.Unlock()

	stop := func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}
	return stop, nil
}

func (m *MemoryStore) watchersFor(key string) []func() {
	fns := make([]func(), 0, len(m.watchers))
	for _, w := range m.watchers {
		if w.key == key {
			fns = append(fns, w.fn)
		}
	}
	return fns
}
