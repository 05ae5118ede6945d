package memstore

import (
	"sync"

	"github.com/jrsteele09/go-billing-client/storage"
)

var _ storage.Storage = (*MemStore)(nil)

type MemStore struct {
	values map[string]string
	lock   sync.RWMutex
}

func New() *MemStore {
	return &MemStore{
		values: make(map[string]string),
	}
}

func (m *MemStore) Get(key string) (string, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (m *MemStore) Set(key, value string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemStore) SetMany(entries map[string]string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	for k, v := range entries {
		m.values[k] = v
	}
	return nil
}

func (m *MemStore) Remove(keys ...string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

// Snapshot copies the current contents.
func (m *MemStore) Snapshot() map[string]string {
	m.lock.RLock()
	defer m.lock.RUnlock()

	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}
