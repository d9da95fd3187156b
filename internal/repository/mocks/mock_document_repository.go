package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docfabric/internal/model"
	"docfabric/internal/repository"
)

// MockDocumentRepository is a testify mock of repository.DocumentRepository.
//
// Create and Replace also accept a function as their first return value, which is
// called with the method's arguments; Stored is the common case.
type MockDocumentRepository struct {
	mock.Mock
}

var _ repository.DocumentRepository = (*MockDocumentRepository)(nil)

// Stored returns the document it was given, like a store that persists rows verbatim.
func Stored(doc *model.Document) *model.Document {
	cp := *doc
	return &cp
}

func (m *MockDocumentRepository) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	args := m.Called(ctx, doc)
	switch v := args.Get(0).(type) {
	case func(*model.Document) *model.Document:
		return v(doc), args.Error(1)
	case *model.Document:
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDocumentRepository) FindByID(ctx context.Context, id string) (*model.Document, error) {
	args := m.Called(ctx, id)
	doc, _ := args.Get(0).(*model.Document)
	return doc, args.Error(1)
}

func (m *MockDocumentRepository) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	args := m.Called(ctx, pq)
	page, _ := args.Get(0).(*repository.PageResult[model.Document])
	return page, args.Error(1)
}

func (m *MockDocumentRepository) Replace(ctx context.Context, id string, v repository.ContentVersion) (*model.Document, string, error) {
	args := m.Called(ctx, id, v)
	switch r := args.Get(0).(type) {
	case func(string, repository.ContentVersion) *model.Document:
		return r(id, v), args.String(1), args.Error(2)
	case *model.Document:
		return r, args.String(1), args.Error(2)
	}
	return nil, args.String(1), args.Error(2)
}

func (m *MockDocumentRepository) Delete(ctx context.Context, id string) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func (m *MockDocumentRepository) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
