package storage

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// memoryStore implements Store with an in-memory map. A store returned by
// Begin stages its writes and applies them to the parent on Commit.
type memoryStore struct {
	mu     *sync.Mutex
	data   map[string]string
	parent *memoryStore
	staged map[string]*string // nil value marks a delete
	done   bool
}

func NewMemoryStore() Store {
	return &memoryStore{mu: &sync.Mutex{}, data: make(map[string]string)}
}

func (m *memoryStore) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.parent != nil {
		if v, ok := m.staged[key]; ok {
			if v == nil {
				return "", ErrNotFound
			}
			return *v, nil
		}
		return m.parent.getLocked(key)
	}
	return m.getLocked(key)
}

func (m *memoryStore) getLocked(key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *memoryStore) Set(key, value string) error {
	if key == "" {
		return errors.New("empty key")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.parent != nil {
		if m.done {
			return errors.New("transaction already finished")
		}
		v := value
		m.staged[key] = &v
		return nil
	}
	m.data[key] = value
	return nil
}

func (m *memoryStore) Delete(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.parent != nil {
		if m.done {
			return errors.New("transaction already finished")
		}
		for _, k := range keys {
			m.staged[k] = nil
		}
		return nil
	}
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryStore) Keys() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	base := m
	if m.parent != nil {
		base = m.parent
	}
	set := make(map[string]struct{}, len(base.data))
	for k := range base.data {
		set[k] = struct{}{}
	}
	for k, v := range m.staged {
		if v == nil {
			delete(set, k)
		} else {
			set[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memoryStore) Begin() (Store, error) {
	if m.parent != nil {
		return nil, errors.New("nested transactions are not supported")
	}
	return &memoryStore{mu: m.mu, parent: m, staged: make(map[string]*string)}, nil
}

func (m *memoryStore) Commit() error {
	if m.parent == nil {
		return errors.New("cannot commit: not a transaction")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return errors.New("already committed")
	}
	for k, v := range m.staged {
		if v == nil {
			delete(m.parent.data, k)
		} else {
			m.parent.data[k] = *v
		}
	}
	m.done = true
	return nil
}

func (m *memoryStore) Rollback() error {
	if m.parent == nil {
		return errors.New("cannot rollback: not a transaction")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return errors.New("cannot rollback finished transaction")
	}
	m.staged = nil
	m.done = true
	return nil
}

func (m *memoryStore) Close() error {
	return nil
}
