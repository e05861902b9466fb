package storage

import (
	"sync"

	"github.com/Sriram-PR/sitemapper/pkg/models"
)

// MemoryStore keeps every set in process memory. Nothing survives the run.
type MemoryStore struct {
	mu   sync.Mutex
	sets map[string]*memorySet
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sets: make(map[string]*memorySet)}
}

// Set implements the SetStore interface
func (s *MemoryStore) Set(name string) (URLSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[name]
	if !ok {
		set = &memorySet{members: make(map[string]struct{})}
		s.sets[name] = set
	}
	return set, nil
}

// Close implements the SetStore interface
func (s *MemoryStore) Close() error { return nil }

// memorySet preserves insertion order so output is stable across runs
type memorySet struct {
	mu      sync.RWMutex
	members map[string]struct{}
	order   []string
}

func (m *memorySet) Add(url string, _ models.URLEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.members[url]; exists {
		return false, nil
	}
	m.members[url] = struct{}{}
	m.order = append(m.order, url)
	return true, nil
}

func (m *memorySet) Contains(url string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.members[url]
	return exists, nil
}

func (m *memorySet) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

func (m *memorySet) Members() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...), nil
}
