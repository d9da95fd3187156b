// Package memory provides a thread-safe in-memory repository.DocumentRepository,
// used for local runs without PostgreSQL and by tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"docfabric/internal/model"
	"docfabric/internal/repository"
)

// DocumentMemory keeps document rows in a map guarded by a RWMutex.
type DocumentMemory struct {
	mu   sync.RWMutex
	rows map[string]model.Document
}

// NewDocumentMemory creates an empty in-memory repository.
func NewDocumentMemory() *DocumentMemory {
	return &DocumentMemory{rows: make(map[string]model.Document)}
}

var _ repository.DocumentRepository = (*DocumentMemory)(nil)

func clone(d model.Document) *model.Document {
	meta := make(map[string]string, len(d.Metadata))
	for k, v := range d.Metadata {
		meta[k] = v
	}
	d.Metadata = meta
	return &d
}

// Create stores a copy of doc. Timestamps are truncated to microseconds to match PostgreSQL.
func (r *DocumentMemory) Create(_ context.Context, doc *model.Document) (*model.Document, error) {
	row := *clone(*doc)
	row.CreatedAt = row.CreatedAt.Truncate(time.Microsecond)
	row.UpdatedAt = row.UpdatedAt.Truncate(time.Microsecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[row.ID] = row
	return clone(row), nil
}

// FindByID returns a copy of the row, or repository.ErrNotFound.
func (r *DocumentMemory) FindByID(_ context.Context, id string) (*model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(row), nil
}

// List orders rows by created_at DESC, id DESC and applies limit/offset.
func (r *DocumentMemory) List(_ context.Context, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	r.mu.RLock()
	all := make([]model.Document, 0, len(r.rows))
	for _, row := range r.rows {
		all = append(all, *clone(row))
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	items := make([]model.Document, 0)
	if pq.Offset < len(all) {
		end := len(all)
		if pq.Limit >= 0 && pq.Limit < end-pq.Offset {
			end = pq.Offset + pq.Limit
		}
		items = append(items, all[pq.Offset:end]...)
	}
	return &repository.PageResult[model.Document]{Items: items, Total: len(all)}, nil
}

// Replace swaps the content version under the write lock.
func (r *DocumentMemory) Replace(_ context.Context, id string, v repository.ContentVersion) (*model.Document, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, "", repository.ErrNotFound
	}
	previous := row.StoragePath
	row.StoragePath = v.StoragePath
	row.ContentType = v.ContentType
	row.SizeBytes = v.SizeBytes
	row.UpdatedAt = repository.NextUpdatedAt(row.UpdatedAt, v.UpdatedAt)
	r.rows[id] = row
	return clone(row), previous, nil
}

// Delete removes the row and returns its storage path.
func (r *DocumentMemory) Delete(_ context.Context, id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return "", repository.ErrNotFound
	}
	delete(r.rows, id)
	return row.StoragePath, nil
}

// Ping always succeeds.
func (r *DocumentMemory) Ping(context.Context) error {
	return nil
}
