package store

import (
	"context"
	"errors"

	"voxafi/internal/core"
)

var (
	ErrNotFound             = errors.New("record not found")
	ErrUnsupportedPredicate = errors.New("unsupported predicate")
)

// Ports for the document store collaborator.
type (
	TransactionStore interface {
		// CreateTransaction stores tx and returns the identifier assigned to it.
		CreateTransaction(ctx context.Context, tx core.Transaction) (id string, err error)
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		UpdateTransaction(ctx context.Context, id string, patch core.TransactionPatch) error
		DeleteTransaction(ctx context.Context, id string) error
		// QueryTransactions returns the transactions matching every predicate.
		QueryTransactions(ctx context.Context, preds ...Predicate) ([]core.Transaction, error)
	}

	CategoryStore interface {
		CreateCategory(ctx context.Context, c core.Category) (id string, err error)
		GetCategory(ctx context.Context, id string) (core.Category, error)
		ListCategories(ctx context.Context, preds ...Predicate) ([]core.Category, error)
		UpdateCategory(ctx context.Context, id string, patch core.CategoryPatch) error
		DeleteCategory(ctx context.Context, id string) error
	}

	// Store is the full collaborator surface a backend provides.
	Store interface {
		TransactionStore
		CategoryStore
		Close() error
	}
)
