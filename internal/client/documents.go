package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"

	"docfabric/internal/cache"
	"docfabric/internal/model"
)

// maxReadRestarts bounds how often ReadAll starts over after the document changed
// under it.
const maxReadRestarts = 3

// API is the set of remote calls Documents depends on. *Client implements it.
type API interface {
	List(ctx context.Context, limit, offset int) (*model.DocumentList, error)
	Get(ctx context.Context, id string) (*model.Document, error)
	Content(ctx context.Context, id string, offset, limit int) (*model.DocumentContent, error)
	Upload(ctx context.Context, filename string, r io.Reader, metadata map[string]string) (*model.Document, error)
	Replace(ctx context.Context, id, filename string, r io.Reader) (*model.Document, error)
	Delete(ctx context.Context, id string) error
}

var _ API = (*Client)(nil)

// Documents serves reads from a cache and keeps it coherent with the mutations made
// through it. It is safe for concurrent use.
type Documents struct {
	api   API
	store *cache.Store
}

// NewDocuments wraps api. A nil store gets a fresh one.
func NewDocuments(api API, store *cache.Store) *Documents {
	if store == nil {
		store = cache.New()
	}
	return &Documents{api: api, store: store}
}

// Store exposes the underlying cache, e.g. to show a stale value while a refetch runs.
func (d *Documents) Store() *cache.Store { return d.store }

func (d *Documents) List(ctx context.Context, limit, offset int) (*model.DocumentList, error) {
	return cache.Load(ctx, d.store, cache.ListKey{Limit: limit, Offset: offset},
		func(ctx context.Context) (*model.DocumentList, error) {
			return d.api.List(ctx, limit, offset)
		})
}

func (d *Documents) Get(ctx context.Context, id string) (*model.Document, error) {
	return cache.Load(ctx, d.store, cache.DetailKey{ID: id},
		func(ctx context.Context) (*model.Document, error) {
			return d.api.Get(ctx, id)
		})
}

// Content reads one window. A negative limit reads to the end.
func (d *Documents) Content(ctx context.Context, id string, offset, limit int) (*model.DocumentContent, error) {
	if limit < 0 {
		limit = -1
	}
	return cache.Load(ctx, d.store, cache.ContentKey{ID: id, Offset: offset, Limit: limit},
		func(ctx context.Context) (*model.DocumentContent, error) {
			return d.api.Content(ctx, id, offset, limit)
		})
}

// applied records a successful mutation: affected reads go stale and the detail view is
// seeded with the server's answer.
func (d *Documents) applied(kind cache.MutationKind, doc *model.Document) {
	d.store.Invalidate(cache.Mutation{Kind: kind, ID: doc.ID})
	d.store.Set(cache.DetailKey{ID: doc.ID}, doc)
}

func (d *Documents) Create(ctx context.Context, filename string, r io.Reader, metadata map[string]string) (*model.Document, error) {
	doc, err := d.api.Upload(ctx, filename, r, metadata)
	if err != nil {
		return nil, err
	}
	d.applied(cache.Created, doc)
	return doc, nil
}

func (d *Documents) Replace(ctx context.Context, id, filename string, r io.Reader) (*model.Document, error) {
	doc, err := d.api.Replace(ctx, id, filename, r)
	if err != nil {
		return nil, err
	}
	d.applied(cache.Replaced, doc)
	return doc, nil
}

func (d *Documents) Delete(ctx context.Context, id string) error {
	if err := d.api.Delete(ctx, id); err != nil {
		return err
	}
	d.store.Invalidate(cache.Mutation{Kind: cache.Deleted, ID: id})
	return nil
}

// ReadAll assembles the whole text of a document from windows of the given size. When
// total_length moves between windows the document was replaced mid-read, so the cached
// windows are invalidated and the read starts over. window <= 0 reads in one request.
func (d *Documents) ReadAll(ctx context.Context, id string, window int) (string, error) {
	if window <= 0 {
		c, err := d.Content(ctx, id, 0, -1)
		if err != nil {
			return "", err
		}
		return c.Content, nil
	}

	for attempt := 0; attempt <= maxReadRestarts; attempt++ {
		text, consistent, err := d.readWindows(ctx, id, window)
		if err != nil {
			return "", err
		}
		if consistent {
			return text, nil
		}
		d.store.Invalidate(cache.Mutation{Kind: cache.Replaced, ID: id})
	}
	return "", fmt.Errorf("%w: %s", ErrContentChanged, id)
}

func (d *Documents) readWindows(ctx context.Context, id string, window int) (string, bool, error) {
	var b strings.Builder
	total := -1
	for offset := 0; ; {
		c, err := d.Content(ctx, id, offset, window)
		switch {
		case errors.Is(err, ErrInvalidRange) && total >= 0:
			// The document shrank below an offset that was valid a window ago.
			return "", false, nil
		case err != nil:
			return "", false, err
		}
		if total >= 0 && c.TotalLength != total {
			return "", false, nil
		}
		total = c.TotalLength
		b.WriteString(c.Content)
		offset += c.Length
		if offset >= total || c.Length == 0 {
			return b.String(), true, nil
		}
	}
}

// Preview is a document's detail together with the start of its content.
type Preview struct {
	Document *model.Document
	Content  *model.DocumentContent
}

// Preview fetches detail and the first limit units of content concurrently.
func (d *Documents) Preview(ctx context.Context, id string, limit int) (*Preview, error) {
	var p Preview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		doc, err := d.Get(gctx, id)
		p.Document = doc
		return err
	})
	g.Go(func() error {
		c, err := d.Content(gctx, id, 0, limit)
		p.Content = c
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &p, nil
}
