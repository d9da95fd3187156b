package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"docfabric/internal/model"
	"docfabric/internal/repository"
)

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

const documentColumns = `id, filename, content_type, size_bytes, metadata, created_at, updated_at, storage_path`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner, extra ...any) (*model.Document, error) {
	var (
		d    model.Document
		meta []byte
	)
	dest := []any{
		&d.ID,
		&d.Filename,
		&d.ContentType,
		&d.SizeBytes,
		&meta,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.StoragePath,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	d.Metadata = map[string]string{}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &d.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &d, nil
}

func encodeMetadata(m map[string]string) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Create inserts a new document row and returns the stored record.
func (r *DocumentPostgres) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	meta, err := encodeMetadata(doc.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	const q = `
		INSERT INTO documents (id, filename, content_type, size_bytes, metadata, created_at, updated_at, storage_path)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8)
		RETURNING ` + documentColumns
	row := r.db.QueryRowContext(ctx, q,
		doc.ID,
		doc.Filename,
		doc.ContentType,
		doc.SizeBytes,
		meta,
		doc.CreatedAt,
		doc.UpdatedAt,
		doc.StoragePath,
	)
	return scanDocument(row)
}

// FindByID fetches a single document by its ID.
func (r *DocumentPostgres) FindByID(ctx context.Context, id string) (*model.Document, error) {
	const q = `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	d, err := scanDocument(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

// List returns documents using LIMIT/OFFSET pagination and a total count.
func (r *DocumentPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	const qCount = `SELECT COUNT(*) FROM documents`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `SELECT ` + documentColumns + ` FROM documents
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, qList, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Document]{
		Items: items,
		Total: total,
	}, nil
}

// Replace swaps the content version of a row in one statement. The row lock taken by the
// inner SELECT ... FOR UPDATE serializes concurrent replaces and deletes of the same ID.
func (r *DocumentPostgres) Replace(ctx context.Context, id string, v repository.ContentVersion) (*model.Document, string, error) {
	const q = `
		UPDATE documents d
		SET storage_path = $2,
		    content_type = $3,
		    size_bytes   = $4,
		    updated_at   = GREATEST($5::timestamptz, d.updated_at + interval '1 microsecond')
		FROM (SELECT id, storage_path FROM documents WHERE id = $1 FOR UPDATE) prev
		WHERE d.id = prev.id
		RETURNING d.id, d.filename, d.content_type, d.size_bytes, d.metadata, d.created_at, d.updated_at, d.storage_path, prev.storage_path`
	var previous string
	d, err := scanDocument(r.db.QueryRowContext(ctx, q, id, v.StoragePath, v.ContentType, v.SizeBytes, v.UpdatedAt), &previous)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", repository.ErrNotFound
		}
		return nil, "", err
	}
	return d, previous, nil
}

// Delete removes a document row and reports the storage path it referenced.
func (r *DocumentPostgres) Delete(ctx context.Context, id string) (string, error) {
	const q = `DELETE FROM documents WHERE id = $1 RETURNING storage_path`
	var path string
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&path); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", err
	}
	return path, nil
}

// Ping checks database connectivity.
func (r *DocumentPostgres) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
