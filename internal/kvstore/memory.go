package kvstore

import (
	"context"
	"sync"

	"github.com/wseagar/invoice-kitchen/internal/invoice"
)

// MemoryStore is an in-process store for tests and single-node development.
type MemoryStore struct {
	mu      sync.RWMutex
	hashes  map[string]map[string]string
	strings map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hashes:  make(map[string]map[string]string),
		strings: make(map[string]string),
	}
}

// PutInvoice stores the snapshot hash.
func (s *MemoryStore) PutInvoice(_ context.Context, key string, inv *invoice.Invoice) error {
	fields, err := inv.Fields()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[key] = fields
	return nil
}

// GetInvoice reads a snapshot back.
func (s *MemoryStore) GetInvoice(_ context.Context, key string) (*invoice.Invoice, error) {
	s.mu.RLock()
	fields, ok := s.hashes[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return invoice.FromFields(fields)
}

// Keys lists stored hash keys, useful for asserting on side effects in tests.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.hashes))
	for k := range s.hashes {
		keys = append(keys, k)
	}
	return keys
}

// Get returns a plain string value.
func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.strings[key]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

// Set stores a plain string value.
func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strings[key] = value
	return nil
}

// Del removes a key.
func (s *MemoryStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.strings, key)
	return nil
}
