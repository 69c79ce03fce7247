package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"voxafi/internal/core"
	"voxafi/internal/store"
)

// Store is an in-process document store. Records are kept in insertion order
// so query results are deterministic.
type Store struct {
	mu    sync.RWMutex
	txs   []core.Transaction
	cats  []core.Category
	newID func() string
}

func New() *Store {
	return &Store{newID: uuid.NewString}
}

// WithIDs overrides identifier generation. Used by tests that need stable ids.
func (s *Store) WithIDs(gen func() string) *Store {
	s.newID = gen
	return s
}

func (s *Store) Close() error { return nil }

func (s *Store) CreateTransaction(_ context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx.ID = s.newID()
	s.txs = append(s.txs, tx)
	return tx.ID, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.txIndex(id); i >= 0 {
		return s.txs[i], nil
	}
	return core.Transaction{}, store.ErrNotFound
}

func (s *Store) UpdateTransaction(_ context.Context, id string, patch core.TransactionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.txIndex(id)
	if i < 0 {
		return store.ErrNotFound
	}
	updated := patch.Apply(s.txs[i])
	if err := updated.Validate(); err != nil {
		return err
	}
	s.txs[i] = updated
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.txIndex(id)
	if i < 0 {
		return store.ErrNotFound
	}
	s.txs = append(s.txs[:i], s.txs[i+1:]...)
	return nil
}

func (s *Store) QueryTransactions(_ context.Context, preds ...store.Predicate) ([]core.Transaction, error) {
	if err := store.ValidateAll(store.Transactions, preds); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Transaction, 0, len(s.txs))
	for _, tx := range s.txs {
		if store.MatchTransaction(tx, preds) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *Store) CreateCategory(_ context.Context, c core.Category) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.newID()
	s.cats = append(s.cats, c)
	return c.ID, nil
}

func (s *Store) GetCategory(_ context.Context, id string) (core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.catIndex(id); i >= 0 {
		return s.cats[i], nil
	}
	return core.Category{}, store.ErrNotFound
}

func (s *Store) ListCategories(_ context.Context, preds ...store.Predicate) ([]core.Category, error) {
	if err := store.ValidateAll(store.Categories, preds); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Category, 0, len(s.cats))
	for _, c := range s.cats {
		if store.MatchCategory(c, preds) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) UpdateCategory(_ context.Context, id string, patch core.CategoryPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.catIndex(id)
	if i < 0 {
		return store.ErrNotFound
	}
	updated := patch.Apply(s.cats[i])
	if err := updated.Validate(); err != nil {
		return err
	}
	s.cats[i] = updated
	return nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.catIndex(id)
	if i < 0 {
		return store.ErrNotFound
	}
	s.cats = append(s.cats[:i], s.cats[i+1:]...)
	return nil
}

func (s *Store) txIndex(id string) int {
	for i := range s.txs {
		if s.txs[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) catIndex(id string) int {
	for i := range s.cats {
		if s.cats[i].ID == id {
			return i
		}
	}
	return -1
}
