package archive

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("archive object not found")

// Store mirrors finalized run artifacts under an experiment prefix.
type Store interface {
	Put(ctx context.Context, experiment, path string, content []byte) error
	Get(ctx context.Context, experiment, path string) ([]byte, error)
	List(ctx context.Context, experiment string) ([]string, error)
}

// MemoryStore keeps objects in memory. Used for dry runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (m *MemoryStore) Put(_ context.Context, experiment, path string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectKey(experiment, path)] = append([]byte(nil), content...)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, experiment, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[objectKey(experiment, path)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) List(_ context.Context, experiment string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(strings.TrimSpace(experiment), "/") + "/"
	var out []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, strings.TrimPrefix(k, prefix))
		}
	}
	sort.Strings(out)
	return out, nil
}

func objectKey(experiment, path string) string {
	normalized := strings.TrimLeft(strings.TrimSpace(path), "/")
	return strings.TrimSpace(experiment) + "/" + normalized
}
