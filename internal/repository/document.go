package repository

import (
	"context"
	"errors"
	"time"

	"docfabric/internal/model"
)

// ErrNotFound is returned when no document row exists for the requested ID.
var ErrNotFound = errors.New("document not found")

// DocumentRepository defines data access for document metadata.
// No business logic here — strictly persistence operations.
type DocumentRepository interface {
	// Create inserts a new document record and returns the stored row.
	// The caller provides every field, including ID and timestamps.
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// FindByID returns a document by its ID, or ErrNotFound.
	FindByID(ctx context.Context, id string) (*model.Document, error)

	// List returns one page ordered by created_at DESC, id DESC and the total row count.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.Document], error)

	// Replace points the row at a new content version in a single write.
	// UpdatedAt becomes max(v.UpdatedAt, previous UpdatedAt + 1µs) so it strictly increases.
	// It returns the updated row and the storage path it replaced, or ErrNotFound.
	Replace(ctx context.Context, id string, v ContentVersion) (*model.Document, string, error)

	// Delete removes a document row and returns the storage path it pointed at, or ErrNotFound.
	Delete(ctx context.Context, id string) (string, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}

// ContentVersion describes the fields a replace swaps atomically.
type ContentVersion struct {
	StoragePath string
	ContentType string
	SizeBytes   int64
	UpdatedAt   time.Time
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}

// NextUpdatedAt returns the timestamp a replace must record so that updated_at
// strictly increases at microsecond precision, the resolution PostgreSQL keeps.
func NextUpdatedAt(prev, now time.Time) time.Time {
	now = now.Truncate(time.Microsecond)
	floor := prev.Truncate(time.Microsecond).Add(time.Microsecond)
	if now.Before(floor) {
		return floor
	}
	return now
}
