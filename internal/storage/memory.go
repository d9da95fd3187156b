package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

type memoryObject struct {
	data []byte
	info ObjectInfo
}

// MemoryStorage keeps objects in process memory. It is used for local runs and tests.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

// NewMemory creates an empty in-memory object store.
func NewMemory() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string]memoryObject)}
}

var _ Storage = (*MemoryStorage)(nil)

// Put reads r fully and stores a private copy of the bytes.
func (m *MemoryStorage) Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return ObjectInfo{}, err
	}
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}
	info := ObjectInfo{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  opt.ContentType,
		LastModified: time.Now(),
		Metadata:     opt.Metadata,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: data, info: info}
	return info, nil
}

// Get returns a reader over the stored bytes.
func (m *MemoryStorage) Get(_ context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, ObjectInfo{}, fmt.Errorf("%s: %w", key, ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), obj.info, nil
}

// Delete removes the key if present.
func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// PresignGet is not available for in-memory objects.
func (m *MemoryStorage) PresignGet(context.Context, string, time.Duration) (string, error) {
	return "", ErrPresignUnsupported
}

// Ping only fails once ctx is done.
func (m *MemoryStorage) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Keys returns the stored keys, in no particular order.
func (m *MemoryStorage) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}
