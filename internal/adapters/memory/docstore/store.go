package docstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/travelmap/ratings-api/internal/adapters/doctree"
	"github.com/travelmap/ratings-api/internal/ports/out/docstore"
)

// Store is an in-memory implementation of docstore.Store.
// It is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	tree *doctree.Tree
}

func NewStore() *Store {
	return &Store{tree: doctree.New()}
}

func (s *Store) Read(ctx context.Context, path docstore.Path) (json.RawMessage, bool, error) {
	_ = ctx
	if err := path.Validate(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Read(path.Segments())
}

func (s *Store) Write(ctx context.Context, path docstore.Path, value any) error {
	_ = ctx
	if err := path.Validate(); err != nil {
		return err
	}
	v, err := doctree.Normalize(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.Set(path.Segments(), v)
	return nil
}

func (s *Store) Merge(ctx context.Context, path docstore.Path, fields map[string]any) error {
	_ = ctx
	if err := path.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Merge(path.Segments(), fields)
}

func (s *Store) Delete(ctx context.Context, path docstore.Path) error {
	_ = ctx
	if err := path.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.Delete(path.Segments())
	return nil
}
