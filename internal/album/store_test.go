package album

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/storage"
)

// memStore is an in-memory storage.Store for pipeline and publish tests.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	// failPuts makes Put fail for exact keys.
	failPuts map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		objects:  make(map[string][]byte),
		failPuts: make(map[string]error),
	}
}

func (m *memStore) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failPuts[key]; err != nil {
		return err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, storage.ErrNotFound)
	}
	return data, nil
}

func (m *memStore) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStore) DeletePrefix(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			delete(m.objects, k)
		}
	}
	return nil
}

func (m *memStore) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://example.com/presigned/" + key, nil
}

func (m *memStore) keysUnder(prefix string) []string {
	keys, _ := m.List(context.Background(), prefix)
	return keys
}
