package gcsuploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/ledger-reconciler/internal/gcs"
	"google.golang.org/api/iterator"
)

// Re-export interface from shared package
type StorageService = gcs.StorageService

// GCSStorageService is the concrete implementation of StorageService
// backed by one Google Cloud Storage bucket. It holds a shared client.
type GCSStorageService struct {
	client *storage.Client
	bucket string
}

// NewGCSStorageService creates a storage service for bucket.
// It assumes Application Default Credentials are configured.
func NewGCSStorageService(ctx context.Context, bucket string) (*GCSStorageService, error) {
	if bucket == "" {
		return nil, errors.New("NewGCSStorageService: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStorageService: creating client: %w", err)
	}
	return &GCSStorageService{client: client, bucket: bucket}, nil
}

// Close closes the storage client.
func (s *GCSStorageService) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// List returns object names under prefix in lexical order.
func (s *GCSStorageService) List(ctx context.Context, prefix string) ([]string, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("List: iterating %s/%s: %w", s.bucket, prefix, err)
		}
		// Skip folder placeholders.
		if attrs.Name == "" || attrs.Name[len(attrs.Name)-1] == '/' {
			continue
		}
		names = append(names, attrs.Name)
	}
	sort.Strings(names)
	return names, nil
}

// Fetch downloads one object from the bucket.
func (s *GCSStorageService) Fetch(ctx context.Context, name string) ([]byte, error) {
	rc, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", s.bucket, name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}
	return data, nil
}

// Upload writes data to the bucket under name.
func (s *GCSStorageService) Upload(ctx context.Context, name string, data []byte, contentType string) error {
	return writeObject(ctx, s.client, s.bucket, name, contentType, bytes.NewReader(data))
}

// URI returns gs://bucket/name.
func (s *GCSStorageService) URI(name string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, name)
}

var _ StorageService = (*GCSStorageService)(nil)
