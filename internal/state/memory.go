package state

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu        sync.Mutex
	id        string
	instances map[string]int
}

// NewMemory returns a process-local Store.
func NewMemory() Store {
	return &memoryStore{instances: make(map[string]int)}
}

func (m *memoryStore) Identifier(_ context.Context, candidate string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.id == "" {
		m.id = candidate
	}
	return m.id, nil
}

func (m *memoryStore) Publish(_ context.Context, instanceID string, connections int) error {
	m.mu.Lock()
	m.instances[instanceID] = connections
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Withdraw(_ context.Context, instanceID string) error {
	m.mu.Lock()
	delete(m.instances, instanceID)
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) ClusterConnections(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.instances {
		total += n
	}
	return total, nil
}

func (m *memoryStore) Close() error { return nil }
