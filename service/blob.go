package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/AnTengye/dealflow/config"
)

// BlobStore holds the raw bytes of uploaded documents
type BlobStore interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
}

// URLSigner is implemented by blob stores that can hand out time limited links
type URLSigner interface {
	SignedURL(ctx context.Context, path string) (string, error)
}

// NewBlobStore builds the blob store selected by cfg.Driver
func NewBlobStore(ctx context.Context, cfg *config.StorageConfig) (BlobStore, error) {
	switch cfg.Driver {
	case "minio":
		s, err := NewMinioBlobStore(&cfg.Minio)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case "gcs":
		return NewGCSBlobStore(ctx, &cfg.GCS)
	case "memory":
		return NewMemoryBlobStore(), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// GCSBlobStore keeps document files in a Google Cloud Storage bucket
type GCSBlobStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
	expiry time.Duration
}

func NewGCSBlobStore(ctx context.Context, cfg *config.GCSConfig) (*GCSBlobStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &GCSBlobStore{
		client: client,
		bucket: client.Bucket(cfg.Bucket),
		expiry: time.Duration(cfg.ExpireDays) * 24 * time.Hour,
	}, nil
}

func (s *GCSBlobStore) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	writer := s.bucket.Object(name).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return name, nil
}

func (s *GCSBlobStore) Get(ctx context.Context, path string) ([]byte, error) {
	reader, err := s.bucket.Object(path).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open GCS object %s: %w", path, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object %s: %w", path, err)
	}
	return data, nil
}

func (s *GCSBlobStore) Delete(ctx context.Context, path string) error {
	err := s.bucket.Object(path).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete GCS object %s: %w", path, err)
	}
	return nil
}

func (s *GCSBlobStore) SignedURL(_ context.Context, path string) (string, error) {
	url, err := s.bucket.SignedURL(path, &storage.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(s.expiry),
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign GCS url: %w", err)
	}
	return url, nil
}

func (s *GCSBlobStore) Close() error {
	return s.client.Close()
}

// MemoryBlobStore is an in-process blob store for tests and local runs
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string][]byte)}
}

func (s *MemoryBlobStore) Put(_ context.Context, name string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[name] = append([]byte(nil), data...)
	return name, nil
}

func (s *MemoryBlobStore) Get(_ context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[path]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", path)
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryBlobStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, path)
	return nil
}

// Len reports how many blobs are stored
func (s *MemoryBlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
