package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"docfabric/internal/logging"
	"docfabric/internal/model"
	"docfabric/internal/repository"
	repoMocks "docfabric/internal/repository/mocks"
	"docfabric/internal/storage"
	storeMocks "docfabric/internal/storage/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func quietLogger() Option {
	return WithLogger(logging.New(io.Discard, time.UTC))
}

func TestDocumentService_Create(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		filename   string
		body       io.Reader
		setupMocks func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository)
		wantErr    error
		wantErrMsg string
	}{
		{
			name:     "happy path",
			filename: "test.txt",
			body:     strings.NewReader("hello world"),
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mStore.On("Put", mock.Anything, mock.MatchedBy(func(key string) bool {
					return strings.HasPrefix(key, "documents/") && strings.HasSuffix(key, ".txt")
				}), mock.Anything, mock.MatchedBy(func(opt storage.PutObjectOptions) bool {
					return opt.Size == 11 && opt.ContentType == "text/plain; charset=utf-8"
				})).Return(storage.ObjectInfo{}, nil)

				mRepo.On("Create", mock.Anything, mock.MatchedBy(func(doc *model.Document) bool {
					return doc.Filename == "test.txt" &&
						doc.SizeBytes == 11 &&
						doc.CreatedAt.Equal(doc.UpdatedAt) &&
						strings.HasPrefix(doc.StoragePath, "documents/"+doc.ID+"/")
				})).Return(repoMocks.Stored, nil)
			},
		},
		{
			name:       "validation error - nil reader",
			filename:   "test.txt",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {},
			wantErr:    ErrReaderNil,
		},
		{
			name:       "validation error - empty file",
			filename:   "empty.txt",
			body:       strings.NewReader(""),
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {},
			wantErr:    ErrEmptyFile,
		},
		{
			name:       "validation error - unreadable",
			filename:   "broken.txt",
			body:       io.MultiReader(strings.NewReader("par"), failingReader{}),
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {},
			wantErr:    ErrInvalidInput,
		},
		{
			name:     "storage error",
			filename: "test.txt",
			body:     strings.NewReader("hello"),
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mStore.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(storage.ObjectInfo{}, errors.New("storage fail"))
			},
			wantErrMsg: "upload to storage: storage fail",
		},
		{
			name:     "repository error with successful rollback",
			filename: "test.txt",
			body:     strings.NewReader("hello"),
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mStore.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(storage.ObjectInfo{}, nil)
				mRepo.On("Create", mock.Anything, mock.Anything).
					Return(nil, errors.New("db fail"))
				mStore.On("Delete", mock.Anything, mock.Anything).Return(nil)
			},
			wantErrMsg: "db save failed: db fail",
		},
		{
			name:     "repository error with failed rollback",
			filename: "test.txt",
			body:     strings.NewReader("hello"),
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mStore.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(storage.ObjectInfo{}, nil)
				mRepo.On("Create", mock.Anything, mock.Anything).
					Return(nil, errors.New("db fail"))
				mStore.On("Delete", mock.Anything, mock.Anything).Return(errors.New("delete fail"))
			},
			wantErrMsg: "rollback delete failed: delete fail",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStorage)
			mRepo := new(repoMocks.MockDocumentRepository)
			svc := NewDocumentService(mStore, mRepo, quietLogger())

			tt.setupMocks(mStore, mRepo)

			doc, err := svc.Create(ctx, Upload{Filename: tt.filename, Reader: tt.body})

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else if tt.wantErrMsg != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrMsg)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.filename, doc.Filename)
				assert.NotEmpty(t, doc.ID)
			}

			mStore.AssertExpectations(t)
			mRepo.AssertExpectations(t)
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestDocumentService_Create_TooLarge(t *testing.T) {
	svc := NewDocumentService(storage.NewMemory(), nil, WithMaxUploadBytes(4))

	_, err := svc.Create(context.Background(), Upload{Filename: "big.txt", Reader: strings.NewReader("hello")})

	assert.ErrorIs(t, err, ErrTooLarge)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDocumentService_List(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		limit      int
		offset     int
		setupMocks func(mRepo *repoMocks.MockDocumentRepository)
		wantErr    bool
		checkRes   func(t *testing.T, res *model.DocumentList)
	}{
		{
			name:   "happy path",
			limit:  10,
			offset: 0,
			setupMocks: func(mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("List", ctx, repository.PageQuery{Limit: 10, Offset: 0}).
					Return(&repository.PageResult[model.Document]{
						Items: []model.Document{{ID: "1"}, {ID: "2"}},
						Total: 2,
					}, nil)
			},
			checkRes: func(t *testing.T, res *model.DocumentList) {
				assert.Len(t, res.Items, 2)
				assert.Equal(t, 2, res.Total)
				assert.Equal(t, 10, res.Limit)
			},
		},
		{
			name:   "pagination boundary - zero limit uses default",
			limit:  0,
			offset: -1,
			setupMocks: func(mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("List", ctx, repository.PageQuery{Limit: DefaultListLimit, Offset: 0}).
					Return(&repository.PageResult[model.Document]{Items: []model.Document{}, Total: 0}, nil)
			},
			checkRes: func(t *testing.T, res *model.DocumentList) {
				assert.Equal(t, DefaultListLimit, res.Limit)
				assert.Equal(t, 0, res.Offset)
			},
		},
		{
			name:  "repository error",
			limit: 10,
			setupMocks: func(mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("List", ctx, mock.Anything).Return(nil, errors.New("db fail"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mRepo := new(repoMocks.MockDocumentRepository)
			svc := NewDocumentService(nil, mRepo)

			tt.setupMocks(mRepo)

			res, err := svc.List(ctx, tt.limit, tt.offset)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				if tt.checkRes != nil {
					tt.checkRes(t, res)
				}
			}
			mRepo.AssertExpectations(t)
		})
	}
}

func TestDocumentService_Get(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		id         string
		setupMocks func(mRepo *repoMocks.MockDocumentRepository)
		wantErr    error
	}{
		{
			name: "happy path",
			id:   "valid-id",
			setupMocks: func(mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", ctx, "valid-id").Return(&model.Document{ID: "valid-id"}, nil)
			},
		},
		{
			name:       "validation - empty id",
			id:         "",
			setupMocks: func(mRepo *repoMocks.MockDocumentRepository) {},
			wantErr:    ErrIDRequired,
		},
		{
			name: "not found - mapping repository.ErrNotFound",
			id:   "missing-id",
			setupMocks: func(mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", ctx, "missing-id").Return(nil, repository.ErrNotFound)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "generic repository error",
			id:   "error-id",
			setupMocks: func(mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", ctx, "error-id").Return(nil, errors.New("db fail"))
			},
			wantErr: errors.New("db fail"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mRepo := new(repoMocks.MockDocumentRepository)
			svc := NewDocumentService(nil, mRepo)

			tt.setupMocks(mRepo)

			doc, err := svc.Get(ctx, tt.id)

			if tt.wantErr != nil {
				if errors.Is(tt.wantErr, ErrIDRequired) || errors.Is(tt.wantErr, ErrNotFound) {
					assert.ErrorIs(t, err, tt.wantErr)
				} else {
					assert.Error(t, err)
				}
				assert.Nil(t, doc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, doc)
				assert.Equal(t, tt.id, doc.ID)
			}
			mRepo.AssertExpectations(t)
		})
	}
}

func TestDocumentService_Replace(t *testing.T) {
	ctx := context.Background()
	existing := &model.Document{ID: "doc-1", Filename: "a.txt", StoragePath: "documents/doc-1/v1.txt"}

	tests := []struct {
		name       string
		id         string
		body       io.Reader
		setupMocks func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository)
		wantErr    error
		wantErrMsg string
	}{
		{
			name: "happy path retires previous version",
			id:   "doc-1",
			body: strings.NewReader("hello world"),
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, "doc-1").Return(existing, nil)
				mStore.On("Put", mock.Anything, mock.MatchedBy(func(key string) bool {
					return strings.HasPrefix(key, "documents/doc-1/") && strings.HasSuffix(key, ".txt")
				}), mock.Anything, mock.Anything).Return(storage.ObjectInfo{}, nil)
				mRepo.On("Replace", mock.Anything, "doc-1", mock.MatchedBy(func(v repository.ContentVersion) bool {
					return v.SizeBytes == 11 && v.ContentType == "text/plain; charset=utf-8"
				})).Return(&model.Document{ID: "doc-1", SizeBytes: 11}, "documents/doc-1/v1.txt", nil)
				mStore.On("Delete", mock.Anything, "documents/doc-1/v1.txt").Return(nil)
			},
		},
		{
			name:       "validation - empty id",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {},
			wantErr:    ErrIDRequired,
		},
		{
			name: "not found before upload",
			id:   "missing",
			body: strings.NewReader("x"),
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, "missing").Return(nil, repository.ErrNotFound)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "empty payload leaves document alone",
			id:   "doc-1",
			body: strings.NewReader(""),
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, "doc-1").Return(existing, nil)
			},
			wantErr: ErrEmptyFile,
		},
		{
			name: "deleted concurrently discards new version",
			id:   "doc-1",
			body: strings.NewReader("new"),
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, "doc-1").Return(existing, nil)
				mStore.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(storage.ObjectInfo{}, nil)
				mRepo.On("Replace", mock.Anything, "doc-1", mock.Anything).Return(nil, "", repository.ErrNotFound)
				mStore.On("Delete", mock.Anything, mock.MatchedBy(func(key string) bool {
					return key != existing.StoragePath
				})).Return(nil)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "repository error with failing cleanup still reports db error",
			id:   "doc-1",
			body: strings.NewReader("new"),
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, "doc-1").Return(existing, nil)
				mStore.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(storage.ObjectInfo{}, nil)
				mRepo.On("Replace", mock.Anything, "doc-1", mock.Anything).Return(nil, "", errors.New("db fail"))
				mStore.On("Delete", mock.Anything, mock.Anything).Return(errors.New("storage fail"))
			},
			wantErrMsg: "db replace failed: db fail",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStorage)
			mRepo := new(repoMocks.MockDocumentRepository)
			svc := NewDocumentService(mStore, mRepo, quietLogger())

			tt.setupMocks(mStore, mRepo)

			doc, err := svc.Replace(ctx, tt.id, Upload{Reader: tt.body})

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, doc)
			case tt.wantErrMsg != "":
				assert.ErrorContains(t, err, tt.wantErrMsg)
			default:
				assert.NoError(t, err)
				assert.Equal(t, int64(11), doc.SizeBytes)
			}
			mStore.AssertExpectations(t)
			mRepo.AssertExpectations(t)
		})
	}
}

func TestDocumentService_Delete(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		id         string
		setupMocks func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository)
		wantErr    error
	}{
		{
			name: "happy path",
			id:   "valid-id",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("Delete", mock.Anything, "valid-id").Return("path/to/obj", nil)
				mStore.On("Delete", mock.Anything, "path/to/obj").Return(nil)
			},
		},
		{
			name:       "validation - empty id",
			id:         "",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {},
			wantErr:    ErrIDRequired,
		},
		{
			name: "not found",
			id:   "missing-id",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("Delete", mock.Anything, "missing-id").Return("", repository.ErrNotFound)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "storage delete error is logged, not returned",
			id:   "storage-fail-id",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("Delete", mock.Anything, "storage-fail-id").Return("path", nil)
				mStore.On("Delete", mock.Anything, "path").Return(errors.New("storage fail"))
			},
		},
		{
			name: "repository delete error",
			id:   "repo-fail-id",
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("Delete", mock.Anything, "repo-fail-id").Return("", errors.New("db fail"))
			},
			wantErr: errors.New("db fail"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStorage)
			mRepo := new(repoMocks.MockDocumentRepository)
			svc := NewDocumentService(mStore, mRepo, quietLogger())

			tt.setupMocks(mStore, mRepo)

			err := svc.Delete(ctx, tt.id)

			if tt.wantErr != nil {
				if errors.Is(tt.wantErr, ErrIDRequired) || errors.Is(tt.wantErr, ErrNotFound) {
					assert.ErrorIs(t, err, tt.wantErr)
				} else {
					assert.Error(t, err)
					assert.Contains(t, err.Error(), tt.wantErr.Error())
				}
			} else {
				assert.NoError(t, err)
			}
			mStore.AssertExpectations(t)
			mRepo.AssertExpectations(t)
		})
	}
}

func TestDocumentService_Delete_CleanupFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	mStore := new(storeMocks.MockStorage)
	mRepo := new(repoMocks.MockDocumentRepository)
	mRepo.On("Delete", mock.Anything, "id").Return("documents/id/v.txt", nil)
	mStore.On("Delete", mock.Anything, "documents/id/v.txt").Return(errors.New("bucket gone"))

	svc := NewDocumentService(mStore, mRepo, WithLogger(logging.New(&buf, time.UTC)))
	require.NoError(t, svc.Delete(context.Background(), "id"))

	assert.Contains(t, buf.String(), `"event":"storage_cleanup_failed"`)
	assert.Contains(t, buf.String(), `"storage_path":"documents/id/v.txt"`)
	assert.Contains(t, buf.String(), "bucket gone")
}

func TestDocumentService_Original(t *testing.T) {
	t.Run("retries when the object was retired under the reader", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockDocumentRepository)
		mRepo.On("FindByID", mock.Anything, "id").Return(&model.Document{ID: "id", StoragePath: "old"}, nil).Once()
		mRepo.On("FindByID", mock.Anything, "id").Return(&model.Document{ID: "id", StoragePath: "new"}, nil).Once()
		mStore.On("Get", mock.Anything, "old").Return(nil, storage.ObjectInfo{}, storage.ErrObjectNotFound)
		mStore.On("Get", mock.Anything, "new").Return(io.NopCloser(strings.NewReader("fresh")), storage.ObjectInfo{}, nil)

		svc := NewDocumentService(mStore, mRepo)
		rc, doc, err := svc.Original(context.Background(), "id")
		require.NoError(t, err)
		defer rc.Close()

		body, _ := io.ReadAll(rc)
		assert.Equal(t, "fresh", string(body))
		assert.Equal(t, "new", doc.StoragePath)
	})

	t.Run("gives up after repeated misses", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockDocumentRepository)
		mRepo.On("FindByID", mock.Anything, "id").Return(&model.Document{ID: "id", StoragePath: "gone"}, nil)
		mStore.On("Get", mock.Anything, "gone").Return(nil, storage.ObjectInfo{}, storage.ErrObjectNotFound)

		svc := NewDocumentService(mStore, mRepo)
		_, _, err := svc.Original(context.Background(), "id")

		assert.ErrorIs(t, err, ErrContentUnavailable)
		mRepo.AssertNumberOfCalls(t, "FindByID", contentReadAttempts)
	})

	t.Run("not found", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		mRepo.On("FindByID", mock.Anything, "id").Return(nil, repository.ErrNotFound)

		svc := NewDocumentService(new(storeMocks.MockStorage), mRepo)
		_, _, err := svc.Original(context.Background(), "id")

		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDocumentService_PresignOriginal(t *testing.T) {
	mStore := new(storeMocks.MockStorage)
	mRepo := new(repoMocks.MockDocumentRepository)
	mRepo.On("FindByID", mock.Anything, "id").Return(&model.Document{ID: "id", StoragePath: "documents/id/v.pdf"}, nil)
	mStore.On("PresignGet", mock.Anything, "documents/id/v.pdf", time.Minute).Return("https://signed", nil)

	svc := NewDocumentService(mStore, mRepo)
	url, err := svc.PresignOriginal(context.Background(), "id", time.Minute)

	require.NoError(t, err)
	assert.Equal(t, "https://signed", url)
}

func TestDocumentService_Ping(t *testing.T) {
	tests := []struct {
		name    string
		repoErr error
		stErr   error
		wantErr string
	}{
		{name: "both healthy"},
		{name: "database down", repoErr: errors.New("down"), wantErr: "database: down"},
		{name: "bucket missing", stErr: errors.New("no bucket"), wantErr: "storage: no bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mRepo := new(repoMocks.MockDocumentRepository)
			mStore := new(storeMocks.MockStorage)
			mRepo.On("Ping", mock.Anything).Return(tt.repoErr)
			mStore.On("Ping", mock.Anything).Return(tt.stErr).Maybe()

			err := NewDocumentService(mStore, mRepo).Ping(context.Background())

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

type vanishingReader struct{ key string }

func (r vanishingReader) Read([]byte) (int, error) {
	return 0, fmt.Errorf("%s: %w", r.key, storage.ErrObjectNotFound)
}

func TestDocumentService_Content_ObjectVanishesMidRead(t *testing.T) {
	mRepo := new(repoMocks.MockDocumentRepository)
	mStore := new(storeMocks.MockStorage)
	svc := NewDocumentService(mStore, mRepo, quietLogger())

	mRepo.On("FindByID", mock.Anything, "doc-1").Return(&model.Document{ID: "doc-1", StoragePath: "v1"}, nil).Once()
	mRepo.On("FindByID", mock.Anything, "doc-1").Return(&model.Document{ID: "doc-1", StoragePath: "v2"}, nil).Once()
	mStore.On("Get", mock.Anything, "v1").Return(io.NopCloser(vanishingReader{key: "v1"}), storage.ObjectInfo{}, nil).Once()
	mStore.On("Get", mock.Anything, "v2").Return(io.NopCloser(strings.NewReader("fresh")), storage.ObjectInfo{}, nil).Once()

	got, err := svc.Content(context.Background(), "doc-1", Window{Limit: NoLimit})

	require.NoError(t, err)
	assert.Equal(t, "fresh", got.Content)
	mRepo.AssertExpectations(t)
	mStore.AssertExpectations(t)
}
