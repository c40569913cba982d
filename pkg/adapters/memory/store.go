package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/atelier-run/atelier/pkg/domain"
)

// Store implements ports.DocumentStore in memory.
// Safe for concurrent use.
type Store struct {
	mu  sync.RWMutex
	doc []byte
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{}
}

// Save persists the document. The document is serialized on write so the
// caller cannot mutate stored state through shared pointers.
func (s *Store) Save(ctx context.Context, doc *domain.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.doc = data
	s.mu.Unlock()
	return nil
}

// Load retrieves the last saved document.
func (s *Store) Load(ctx context.Context) (*domain.Document, error) {
	s.mu.RLock()
	data := s.doc
	s.mu.RUnlock()
	if data == nil {
		return nil, domain.ErrNotFound
	}
	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
