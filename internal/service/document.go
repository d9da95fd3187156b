package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"docfabric/internal/logging"
	"docfabric/internal/model"
	"docfabric/internal/repository"
	"docfabric/internal/storage"
)

var (
	ErrIDRequired   = errors.New("id is required")
	ErrNotFound     = errors.New("document not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidRange = errors.New("requested range is outside the document")

	ErrReaderNil  = fmt.Errorf("%w: reader is nil", ErrInvalidInput)
	ErrEmptyFile  = fmt.Errorf("%w: file is empty", ErrInvalidInput)
	ErrUnreadable = fmt.Errorf("%w: file could not be read", ErrInvalidInput)
	ErrTooLarge   = fmt.Errorf("%w: file exceeds the upload limit", ErrInvalidInput)

	// ErrContentUnavailable means every attempt to pair a row with its content object lost
	// a race against concurrent replaces.
	ErrContentUnavailable = errors.New("document content kept changing while being read")
)

const (
	DefaultListLimit      = 20
	DefaultMaxUploadBytes = 32 << 20
	defaultFilename       = "unnamed"
	contentReadAttempts   = 3
)

// Upload is a file submitted for creation or replacement.
type Upload struct {
	Filename string
	Reader   io.Reader
	// Metadata is only honoured on Create.
	Metadata map[string]string
}

// DocumentService defines the use cases for handling documents.
type DocumentService interface {
	// Create stores the upload as a new document with a fresh ID.
	Create(ctx context.Context, in Upload) (*model.Document, error)

	// Get returns a single document by its ID.
	Get(ctx context.Context, id string) (*model.Document, error)

	// List returns one page of documents using limit/offset and a total count.
	List(ctx context.Context, limit, offset int) (*model.DocumentList, error)

	// Replace swaps the content of an existing document. ID, filename, metadata and
	// created_at are preserved; content type, size and updated_at change.
	Replace(ctx context.Context, id string, in Upload) (*model.Document, error)

	// Delete removes a document permanently.
	Delete(ctx context.Context, id string) error

	// Content returns a window of the document's text.
	Content(ctx context.Context, id string, w Window) (*model.DocumentContent, error)

	// Original streams the raw bytes of the current content version.
	Original(ctx context.Context, id string) (io.ReadCloser, *model.Document, error)

	// PresignOriginal returns a time-limited download URL for the current content version.
	PresignOriginal(ctx context.Context, id string, expiry time.Duration) (string, error)

	// Ping reports whether the metadata store is reachable.
	Ping(ctx context.Context) error
}

// Option customizes a documentService.
type Option func(*documentService)

// WithMaxUploadBytes caps the size of accepted uploads.
func WithMaxUploadBytes(n int64) Option {
	return func(s *documentService) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithDefaultListLimit sets the page size used when List is called with limit <= 0.
func WithDefaultListLimit(n int) Option {
	return func(s *documentService) {
		if n > 0 {
			s.defaultLimit = n
		}
	}
}

// WithLogger sets the logger used for background cleanup failures.
func WithLogger(l *logging.Logger) Option {
	return func(s *documentService) { s.log = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *documentService) { s.now = now }
}

// documentService is a concrete implementation of DocumentService.
type documentService struct {
	store storage.Storage
	repo  repository.DocumentRepository

	locks *keyLocker
	loads singleflight.Group
	log   *logging.Logger
	now   func() time.Time

	maxUpload    int64
	defaultLimit int
}

// NewDocumentService constructs a new DocumentService.
func NewDocumentService(store storage.Storage, repo repository.DocumentRepository, opts ...Option) DocumentService {
	s := &documentService{
		store:        store,
		repo:         repo,
		locks:        newKeyLocker(),
		log:          logging.Default(),
		now:          time.Now,
		maxUpload:    DefaultMaxUploadBytes,
		defaultLimit: DefaultListLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// readUpload drains r, enforcing the size cap and rejecting empty payloads.
func (s *documentService) readUpload(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, ErrReaderNil
	}
	data, err := io.ReadAll(io.LimitReader(r, s.maxUpload+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if int64(len(data)) > s.maxUpload {
		return nil, ErrTooLarge
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	return data, nil
}

// objectKey names one immutable content version: documents/<id>/<version><ext>.
func objectKey(id, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return path.Join("documents", id, uuid.NewString()+ext)
}

func (s *documentService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// discard removes a content version that no row references anymore. Failures only leak an
// orphaned object, so they are logged rather than returned.
func (s *documentService) discard(ctx context.Context, key, reason string) {
	if key == "" {
		return
	}
	if err := s.store.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.log.Error(logging.Fields{
			"component":     "service",
			"event":         "storage_cleanup_failed",
			"status":        "error",
			"storage_path":  key,
			"reason":        reason,
			"error_message": err.Error(),
		})
	}
}

func (s *documentService) Create(ctx context.Context, in Upload) (doc *model.Document, err error) {
	ctx, span := startSpan(ctx, "DocumentService.Create", attribute.String("document.filename", in.Filename))
	defer func() { finishSpan(span, err) }()

	data, err := s.readUpload(in.Reader)
	if err != nil {
		return nil, err
	}

	filename := in.Filename
	if filename == "" {
		filename = defaultFilename
	}
	id := uuid.NewString()
	span.SetAttributes(documentID(id))
	contentType := DetectContentType(filename, data)
	key := objectKey(id, filename)

	if _, err := s.store.Put(ctx, key, bytes.NewReader(data), storage.PutObjectOptions{
		Size:        int64(len(data)),
		ContentType: contentType,
		Metadata:    map[string]string{"document-id": id},
	}); err != nil {
		return nil, fmt.Errorf("upload to storage: %w", err)
	}

	metadata := make(map[string]string, len(in.Metadata))
	for k, v := range in.Metadata {
		metadata[k] = v
	}
	now := s.timestamp()
	stored, err := s.repo.Create(ctx, &model.Document{
		ID:          id,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
		StoragePath: key,
	})
	if err != nil {
		// Rollback: delete the object from storage
		if delErr := s.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			return nil, fmt.Errorf("db save failed: %v; rollback delete failed: %v", err, delErr)
		}
		return nil, fmt.Errorf("db save failed: %w", err)
	}
	return stored, nil
}

func (s *documentService) Get(ctx context.Context, id string) (*model.Document, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

// List returns paginated documents without exposing repository types.
func (s *documentService) List(ctx context.Context, limit, offset int) (*model.DocumentList, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.repo.List(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &model.DocumentList{
		Items:  res.Items,
		Total:  res.Total,
		Limit:  limit,
		Offset: offset,
	}, nil
}

func (s *documentService) Replace(ctx context.Context, id string, in Upload) (doc *model.Document, err error) {
	ctx, span := startSpan(ctx, "DocumentService.Replace", documentID(id))
	defer func() { finishSpan(span, err) }()

	if id == "" {
		return nil, ErrIDRequired
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := s.readUpload(in.Reader)
	if err != nil {
		return nil, err
	}

	sniffName := in.Filename
	if sniffName == "" {
		sniffName = existing.Filename
	}
	contentType := DetectContentType(sniffName, data)
	key := objectKey(id, sniffName)

	if _, err := s.store.Put(ctx, key, bytes.NewReader(data), storage.PutObjectOptions{
		Size:        int64(len(data)),
		ContentType: contentType,
		Metadata:    map[string]string{"document-id": id},
	}); err != nil {
		return nil, fmt.Errorf("upload to storage: %w", err)
	}

	updated, previous, err := s.repo.Replace(ctx, id, repository.ContentVersion{
		StoragePath: key,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		UpdatedAt:   s.timestamp(),
	})
	if err != nil {
		s.discard(ctx, key, "replace_rollback")
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db replace failed: %w", err)
	}
	if previous != key {
		s.discard(ctx, previous, "replaced")
	}
	return updated, nil
}

// Delete removes the row first so no reader can pair it with a missing object,
// then deletes the content it pointed at.
func (s *documentService) Delete(ctx context.Context, id string) (err error) {
	ctx, span := startSpan(ctx, "DocumentService.Delete", documentID(id))
	defer func() { finishSpan(span, err) }()

	if id == "" {
		return ErrIDRequired
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	key, err := s.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.discard(ctx, key, "deleted")
	return nil
}

// Original pairs the current row with its content object, retrying when a concurrent
// replace retired the object between the two reads.
func (s *documentService) Original(ctx context.Context, id string) (io.ReadCloser, *model.Document, error) {
	for attempt := 0; attempt < contentReadAttempts; attempt++ {
		doc, err := s.Get(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		rc, _, err := s.store.Get(ctx, doc.StoragePath)
		if errors.Is(err, storage.ErrObjectNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read storage: %w", err)
		}
		return rc, doc, nil
	}
	return nil, nil, ErrContentUnavailable
}

func (s *documentService) PresignOriginal(ctx context.Context, id string, expiry time.Duration) (string, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return s.store.PresignGet(ctx, doc.StoragePath, expiry)
}

// Ping checks both backends; the document store is unusable without either.
func (s *documentService) Ping(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	return nil
}
