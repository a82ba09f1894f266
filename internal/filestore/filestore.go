// Package filestore persists generated binary assets (decoded model images)
// under a public directory for later retrieval over HTTP.
package filestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidName is returned for asset names that would escape the store
// directory.
var ErrInvalidName = errors.New("invalid asset name")

// Store writes assets into a single flat directory.
type Store struct {
	dir string
}

// New creates the asset directory if needed and returns a store rooted there.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create asset directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory assets are written to.
func (store *Store) Dir() string {
	return store.dir
}

// Write stores data under name. Names must be bare file names: anything
// containing a path separator or parent reference is rejected.
func (store *Store) Write(name string, data []byte) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	path := filepath.Join(store.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write asset %s: %w", name, err)
	}
	return nil
}
