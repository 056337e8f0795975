package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dvloznov/ledger-reconciler/internal/gcs"
)

// Store is a StorageService over a local directory, used by the CLI and tests.
type Store struct {
	root string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// List returns the slash-separated names of regular files under prefix, sorted.
// A missing prefix directory yields an empty list.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("List: walking %s: %w", s.root, err)
	}
	sort.Strings(names)
	return names, nil
}

// Fetch reads one file.
func (s *Store) Fetch(ctx context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}
	return data, nil
}

// Upload writes one file, creating parent directories.
func (s *Store) Upload(ctx context.Context, name string, data []byte, contentType string) error {
	p := s.path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("Upload: creating directory: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("Upload: %w", err)
	}
	return nil
}

// URI returns the file path of name.
func (s *Store) URI(name string) string {
	return s.path(name)
}

func (s *Store) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

var _ gcs.StorageService = (*Store)(nil)
