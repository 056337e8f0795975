package gcs

import (
	"context"
)

// StorageService provides an interface for the document store.
// Object names are slash-separated paths relative to the store root.
// This interface enables mocking and testing of storage functionality.
type StorageService interface {
	// List returns the names of all objects under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Fetch downloads the bytes of one object.
	Fetch(ctx context.Context, name string) ([]byte, error)

	// Upload stores data under name, replacing any existing object.
	Upload(ctx context.Context, name string, data []byte, contentType string) error

	// URI returns a human-readable location of name, e.g. gs://bucket/name.
	URI(name string) string
}
