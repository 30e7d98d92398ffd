package util

import (
	"cmp"
	"slices"
	"sync"
)

// SortedKeyMap is a map that keeps its keys in ascending order.
type SortedKeyMap[K cmp.Ordered, T any] struct {
	mu     sync.RWMutex
	values map[K]T
	keys   []K
}

func NewSortedKeyMap[K cmp.Ordered, T any]() *SortedKeyMap[K, T] {
	return &SortedKeyMap[K, T]{
		values: make(map[K]T),
		keys:   make([]K, 0),
	}
}

func (m *SortedKeyMap[K, T]) Set(key K, value T) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.values[key]; !ok {
		idx, _ := slices.BinarySearch(m.keys, key)
		m.keys = slices.Insert(m.keys, idx, key)
	}

	m.values[key] = value
}

func (m *SortedKeyMap[K, T]) Get(key K) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]

	return v, ok
}

func (m *SortedKeyMap[K, T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.keys)
}

// Keys returns the specified number of keys sorted highest to lowest.
func (m *SortedKeyMap[K, T]) Keys(count int) []K {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keysLen := len(m.keys)

	if count > keysLen {
		count = keysLen
	}

	keys := make([]K, count)

	// keys are stored ascending; walk back from the end
	for i := 1; i <= count; i++ {
		keys[i-1] = m.keys[keysLen-i]
	}

	return keys
}

// Prune removes all keys lower than the provided key.
func (m *SortedKeyMap[K, T]) Prune(below K) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, _ := slices.BinarySearch(m.keys, below)
	for _, key := range m.keys[:idx] {
		delete(m.values, key)
	}

	m.keys = slices.Delete(m.keys, 0, idx)

	return idx
}
