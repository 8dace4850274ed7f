package sync

import "sync"

// Storage is the durable key-value capability backing the queue. The engine
// stores the serialized queue under one key and the last-sync timestamp
// under another, and always rewrites a value in full.
type Storage interface {
	// Get returns the value for key and whether the key exists.
	Get(key string) ([]byte, bool, error)

	// Set overwrites the value for key in one write.
	Set(key string, value []byte) error

	// Delete removes the value for key.
	Delete(key string) error
}

// MemoryStorage is an in-memory Storage, used by tests and by hosts that
// opt out of durability.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string][]byte)}
}

// Get implements Storage.
func (m *MemoryStorage) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	// Copy to keep callers from mutating the stored value.
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

// Set implements Storage.
func (m *MemoryStorage) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored
	return nil
}

// Delete implements Storage.
func (m *MemoryStorage) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}
