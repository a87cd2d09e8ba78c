// internal/state/catalog.go
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/mferraretto/chatshopee22/internal/decide"
)

// CatalogStore is a JSON-file-backed product catalog. The file is optional;
// without it the templates fall back to neutral defaults.
type CatalogStore struct {
	path string
	mu   sync.RWMutex
}

func NewCatalogStore(path string) *CatalogStore {
	return &CatalogStore{path: path}
}

// Catalog returns the product list. A missing or unparseable file yields an
// empty catalog.
func (s *CatalogStore) Catalog() []decide.Product {
	items, err := s.List()
	if err != nil {
		return nil
	}
	return items
}

// List returns all catalog entries.
func (s *CatalogStore) List() ([]decide.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []decide.Product{}, nil
		}
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var items []decide.Product
	if err := json.Unmarshal(data, &items); err != nil {
		return []decide.Product{}, nil
	}
	return items, nil
}
