package store

import (
	"context"
	"errors"
	"strconv"
	"sync"
)

// ErrNotFound is returned by artifact stores for unknown or expired keys.
var ErrNotFound = errors.New("artifact not found")

// ArtifactStore keeps job inputs and outputs by key. Keys are slash
// separated paths such as "jobs/<id>/out".
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// InputKey is the key of the i-th input of a job.
func InputKey(jobID string, i int) string { return "jobs/" + jobID + "/in/" + strconv.Itoa(i) }

// OutputKey is the key of the artifact produced by a job.
func OutputKey(jobID string) string { return "jobs/" + jobID + "/out" }

// MemoryArtifacts is an in-process ArtifactStore for single-node runs and tests.
type MemoryArtifacts struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryArtifacts() *MemoryArtifacts {
	return &MemoryArtifacts{data: make(map[string][]byte)}
}

func (m *MemoryArtifacts) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryArtifacts) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

func (m *MemoryArtifacts) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryArtifacts) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
