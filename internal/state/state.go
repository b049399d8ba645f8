// Package state keeps the agent's latest observations (weather, samples,
// derived metrics) where a dashboard or a second agent can read them.
package state

import (
	"context"
	"encoding/json"
	"sync"
)

// Well-known fields.
const (
	FieldWeather      = "weather"
	FieldMetricRatio  = "metric:ratio"
	FieldFlicker      = "flicker"
	FieldSessionState = "session:state"
	FieldAlert        = "alert"
)

// SampleField is the field holding the latest sample of stream.
func SampleField(stream string) string { return "sample:" + stream }

// Store persists JSON values under named fields.
type Store interface {
	// Put replaces the value of field.
	Put(ctx context.Context, field string, v any) error
	// Get decodes field into out and reports whether it exists.
	Get(ctx context.Context, field string, out any) (bool, error)
	Fields(ctx context.Context) ([]string, error)
	Close() error
}

// Open returns a redis store for a non-empty url and a memory store
// otherwise.
func Open(ctx context.Context, url, namespace string) (Store, error) {
	if url == "" {
		return NewMemoryStore(), nil
	}
	return NewRedisStore(ctx, url, namespace)
}

type memoryStore struct {
	mu     sync.RWMutex
	fields map[string][]byte
}

// NewMemoryStore returns an in-process Store.
func NewMemoryStore() Store {
	return &memoryStore{fields: map[string][]byte{}}
}

func (m *memoryStore) Put(_ context.Context, field string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.fields[field] = b
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Get(_ context.Context, field string, out any) (bool, error) {
	m.mu.RLock()
	b, ok := m.fields[field]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, out)
}

func (m *memoryStore) Fields(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.fields))
	for k := range m.fields {
		out = append(out, k)
	}
	return out, nil
}

func (m *memoryStore) Close() error { return nil }
