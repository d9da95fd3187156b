package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"docfabric/internal/model"
	"docfabric/internal/storage"
)

// NoLimit asks for everything from Offset to the end of the document.
const NoLimit = -1

// Window selects a contiguous slice of a document's text, measured in characters.
type Window struct {
	Offset int
	Limit  int
}

// text is one decoded content version. Valid UTF-8 is windowed by code point, anything
// else falls back to raw bytes.
type text struct {
	unicode bool
	runes   []rune
	raw     []byte
}

func decodeText(data []byte) *text {
	if utf8.Valid(data) {
		return &text{unicode: true, runes: []rune(string(data))}
	}
	return &text{raw: data}
}

func (t *text) length() int {
	if t.unicode {
		return len(t.runes)
	}
	return len(t.raw)
}

func (t *text) slice(from, to int) string {
	if t.unicode {
		return string(t.runes[from:to])
	}
	return string(t.raw[from:to])
}

// windowText cuts w out of t. Offset must lie in [0, length]; the result is clamped at the end.
func windowText(t *text, w Window) (*model.DocumentContent, error) {
	total := t.length()
	if w.Offset < 0 || w.Offset > total {
		return nil, fmt.Errorf("%w: offset %d, total length %d", ErrInvalidRange, w.Offset, total)
	}
	end := total
	if w.Limit >= 0 && w.Limit < total-w.Offset {
		end = w.Offset + w.Limit
	}
	return &model.DocumentContent{
		Content:     t.slice(w.Offset, end),
		TotalLength: total,
		Offset:      w.Offset,
		Length:      end - w.Offset,
	}, nil
}

func (s *documentService) Content(ctx context.Context, id string, w Window) (out *model.DocumentContent, err error) {
	ctx, span := startSpan(ctx, "DocumentService.Content",
		documentID(id),
		attribute.Int("window.offset", w.Offset),
		attribute.Int("window.limit", w.Limit),
	)
	defer func() { finishSpan(span, err) }()

	if w.Offset < 0 {
		return nil, fmt.Errorf("%w: offset %d", ErrInvalidRange, w.Offset)
	}

	// A replace may retire the object between reading the row and reading the object.
	// Restarting from the row keeps the pair consistent.
	for attempt := 0; attempt < contentReadAttempts; attempt++ {
		doc, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		t, err := s.loadText(ctx, doc.StoragePath)
		if errors.Is(err, storage.ErrObjectNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		span.SetAttributes(attribute.Int("content.total_length", t.length()))
		return windowText(t, w)
	}
	return nil, ErrContentUnavailable
}

// loadText fetches and decodes one content version. Concurrent callers for the same
// version share a single storage read; content versions never change once written.
func (s *documentService) loadText(ctx context.Context, key string) (*text, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := s.loads.DoChan(key, func() (any, error) {
		rc, _, err := s.store.Get(context.WithoutCancel(ctx), key)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read content %s: %w", key, err)
		}
		return decodeText(data), nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*text), nil
	}
}
