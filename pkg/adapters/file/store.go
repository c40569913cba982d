package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/atelier-run/atelier/pkg/domain"
)

// Store implements ports.DocumentStore on the local filesystem, as a
// single JSON document.
type Store struct {
	Path string
}

// New creates a Store writing to the given path.
// If path is empty, it defaults to ".atelier/workspaces.json".
func New(path string) *Store {
	if path == "" {
		path = filepath.Join(".atelier", "workspaces.json")
	}
	return &Store{Path: path}
}

// Save persists the document atomically: write to a temp file in the
// same directory, fsync, then rename over the destination. A crash never
// leaves a partial document behind.
func (s *Store) Save(ctx context.Context, doc *domain.Document) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure document directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	// Same directory keeps temp and destination on one filesystem, which
	// rename-atomicity requires.
	tmpFile, err := os.CreateTemp(dir, "tmp-workspaces-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath) // no-op once renamed
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path); err != nil {
		return fmt.Errorf("failed to rename temp file into place: %w", err)
	}
	return nil
}

// Load retrieves the document from disk.
func (s *Store) Load(ctx context.Context) (*domain.Document, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return &doc, nil
}
