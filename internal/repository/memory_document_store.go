package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"anwesha-auth/internal/domain"
)

// MemoryDocumentStore es un DocumentStore en memoria para desarrollo y tests.
type MemoryDocumentStore struct {
	mu     sync.Mutex
	docs   map[string]map[string]map[string]any
	unique map[string][]string
}

func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{
		docs:   make(map[string]map[string]map[string]any),
		unique: make(map[string][]string),
	}
}

// WithUniqueField declara un campo de primer nivel que no puede repetirse en la coleccion,
// igual que el indice unico de Postgres.
func (s *MemoryDocumentStore) WithUniqueField(collection, field string) *MemoryDocumentStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unique[collection] = append(s.unique[collection], field)
	return s
}

func (s *MemoryDocumentStore) Get(_ context.Context, collection, key string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[collection][key]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return cloneDocument(doc)
}

func (s *MemoryDocumentStore) Set(_ context.Context, collection, key string, doc map[string]any) error {
	copied, err := cloneDocument(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUnique(collection, key, copied); err != nil {
		return err
	}
	if s.docs[collection] == nil {
		s.docs[collection] = make(map[string]map[string]any)
	}
	s.docs[collection][key] = copied
	return nil
}

func (s *MemoryDocumentStore) Update(_ context.Context, collection, key string, fields domain.Fields, check DocumentCheck) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.docs[collection][key]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	merged, err := domain.ApplyFields(current, fields)
	if err != nil {
		return nil, err
	}
	merged, err = cloneDocument(merged)
	if err != nil {
		return nil, err
	}
	if check != nil {
		if err := check(merged); err != nil {
			return nil, err
		}
	}
	if err := s.checkUnique(collection, key, merged); err != nil {
		return nil, err
	}
	s.docs[collection][key] = merged
	return cloneDocument(merged)
}

func (s *MemoryDocumentStore) FieldExists(_ context.Context, collection, field, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range s.docs[collection] {
		if v, ok := doc[field]; ok && v != nil && fmt.Sprint(v) == value {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryDocumentStore) Delete(_ context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs[collection], key)
	return nil
}

func (s *MemoryDocumentStore) checkUnique(collection, key string, doc map[string]any) error {
	for _, field := range s.unique[collection] {
		v, ok := doc[field]
		if !ok || v == nil {
			continue
		}
		for otherKey, other := range s.docs[collection] {
			if otherKey == key {
				continue
			}
			if ov, ok := other[field]; ok && ov != nil && fmt.Sprint(ov) == fmt.Sprint(v) {
				return fmt.Errorf("%w: %s.%s", ErrDuplicateKey, collection, field)
			}
		}
	}
	return nil
}

func cloneDocument(doc map[string]any) (map[string]any, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = make(map[string]any)
	}
	return out, nil
}
