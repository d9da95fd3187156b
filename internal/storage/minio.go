package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"docfabric/internal/config"
)

// MinIOStorage stores objects in a MinIO (or other S3-compatible) bucket.
type MinIOStorage struct {
	client *minio.Client
	bucket string
}

var _ Storage = (*MinIOStorage)(nil)

func validateMinIO(cfg config.MinIOConfig) error {
	var errs []error
	if cfg.Endpoint == "" {
		errs = append(errs, errors.New("MINIO_ENDPOINT is required"))
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		errs = append(errs, errors.New("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required"))
	}
	if cfg.Bucket == "" {
		errs = append(errs, errors.New("MINIO_BUCKET is required"))
	}
	return errors.Join(errs...)
}

// NewMinIO connects to cfg.Endpoint and creates the bucket when it does not exist yet.
func NewMinIO(ctx context.Context, cfg config.MinIOConfig) (*MinIOStorage, error) {
	if err := validateMinIO(cfg); err != nil {
		return nil, fmt.Errorf("minio config: %w", err)
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	s := &MinIOStorage{client: cli, bucket: cfg.Bucket}

	ctx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
	defer cancel()
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MinIOStorage) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// notFound maps a missing key onto ErrObjectNotFound and passes other errors through.
func (s *MinIOStorage) notFound(key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return fmt.Errorf("%s: %w", key, ErrObjectNotFound)
	}
	return fmt.Errorf("minio %s: %w", key, err)
}

func (s *MinIOStorage) Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	up, err := s.client.PutObject(ctx, s.bucket, key, r, opt.Size, minio.PutObjectOptions{
		ContentType:  opt.ContentType,
		UserMetadata: opt.Metadata,
	})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("minio put %s: %w", key, err)
	}
	modified := up.LastModified
	if modified.IsZero() {
		modified = time.Now()
	}
	return ObjectInfo{
		Key:          key,
		Size:         up.Size,
		ETag:         up.ETag,
		ContentType:  opt.ContentType,
		LastModified: modified,
		Metadata:     opt.Metadata,
	}, nil
}

// Get issues the GET up front so a missing key fails here rather than on the first Read.
// Info and body come from the same response.
func (s *MinIOStorage) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, s.notFound(key, err)
	}
	st, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, ObjectInfo{}, s.notFound(key, err)
	}
	return &minioReader{ReadCloser: obj, key: key, s: s}, ObjectInfo{
		Key:          key,
		Size:         st.Size,
		ETag:         st.ETag,
		ContentType:  st.ContentType,
		LastModified: st.LastModified,
		Metadata:     st.UserMetadata,
	}, nil
}

// minioReader reports a key removed mid-stream as ErrObjectNotFound.
type minioReader struct {
	io.ReadCloser
	key string
	s   *MinIOStorage
}

func (r *minioReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if err != nil && err != io.EOF {
		err = r.s.notFound(r.key, err)
	}
	return n, err
}

func (s *MinIOStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("minio delete %s: %w", key, err)
	}
	return nil
}

func (s *MinIOStorage) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("minio presign %s: %w", key, err)
	}
	return u.String(), nil
}

func (s *MinIOStorage) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("minio: %w", err)
	}
	if !exists {
		return fmt.Errorf("minio: bucket %s does not exist", s.bucket)
	}
	return nil
}
