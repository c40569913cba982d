package ports

import (
	"context"

	"github.com/atelier-run/atelier/pkg/domain"
)

// DocumentStore persists the exported registry document. Implementations
// must write atomically: a reader never observes a half-written document.
type DocumentStore interface {
	// Save persists the document, replacing any previous one.
	Save(ctx context.Context, doc *domain.Document) error

	// Load retrieves the last saved document.
	// Returns domain.ErrNotFound if nothing has been saved yet.
	Load(ctx context.Context) (*domain.Document, error)
}
