// Package storetest holds behaviour checks shared by every store adapter.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"voxafi/internal/core"
	"voxafi/internal/store"
)

// Tx builds a valid expense owned by userID.
func Tx(userID, category, amount string, date time.Time) core.Transaction {
	return core.Transaction{
		UserID:      userID,
		Amount:      decimal.RequireFromString(amount),
		Description: category + " " + amount,
		Category:    category,
		Date:        date,
		Type:        core.Expense,
	}
}

// Run exercises s through the store ports. s must be empty.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	t.Run("TransactionLifecycle", func(t *testing.T) { transactionLifecycle(t, s) })
	t.Run("QueryPredicates", func(t *testing.T) { queryPredicates(t, s) })
	t.Run("CategoryLifecycle", func(t *testing.T) { categoryLifecycle(t, s) })
	t.Run("MissingIDs", func(t *testing.T) { missingIDs(t, s) })
}

func transactionLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	loc := time.FixedZone("UTC-5", -5*3600)
	date := time.Date(2024, time.March, 31, 23, 30, 0, 0, loc)

	id, err := s.CreateTransaction(ctx, Tx("life", "food", "12.34", date))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == "" {
		t.Fatal("expected an id")
	}

	got, err := s.GetTransaction(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != id || got.UserID != "life" || !got.Amount.Equal(decimal.RequireFromString("12.34")) {
		t.Fatalf("unexpected transaction: %+v", got)
	}
	if !got.Date.Equal(date) {
		t.Fatalf("date = %v, want %v", got.Date, date)
	}
	if y, m, _ := got.Date.Date(); y != 2024 || m != time.March {
		t.Fatalf("date lost its offset: %v", got.Date)
	}

	desc := "dinner"
	amount := decimal.RequireFromString("20")
	if err := s.UpdateTransaction(ctx, id, core.TransactionPatch{Description: &desc, Amount: &amount}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err = s.GetTransaction(ctx, id)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.Description != "dinner" || !got.Amount.Equal(amount) || got.Category != "food" {
		t.Fatalf("unexpected patched transaction: %+v", got)
	}

	if err := s.DeleteTransaction(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetTransaction(ctx, id); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func queryPredicates(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	seed := []core.Transaction{
		Tx("q1", "food", "1", base),
		Tx("q1", "rent", "2", base.AddDate(0, 0, 1)),
		Tx("q2", "food", "3", base.AddDate(0, 0, 2)),
	}
	income := Tx("q1", "salary", "100", base.AddDate(0, 0, 3))
	income.Type = core.Income
	seed = append(seed, income)
	for _, tx := range seed {
		if _, err := s.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	tests := []struct {
		name  string
		preds []store.Predicate
		want  int
	}{
		{"by user", []store.Predicate{store.ByUser("q1")}, 3},
		{"by user and category", []store.Predicate{store.ByUser("q1"), store.Eq(store.FieldCategory, "food")}, 1},
		{"by type", []store.Predicate{store.ByUser("q1"), store.Eq(store.FieldType, "income")}, 1},
		{"no match", []store.Predicate{store.ByUser("nobody")}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.QueryTransactions(ctx, tt.preds...)
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("got %d transactions, want %d", len(got), tt.want)
			}
			for _, tx := range got {
				if !store.MatchTransaction(tx, tt.preds) {
					t.Fatalf("result does not satisfy predicates: %+v", tx)
				}
			}
		})
	}

	if _, err := s.QueryTransactions(ctx, store.Eq("amount", "1")); !errors.Is(err, store.ErrUnsupportedPredicate) {
		t.Fatalf("expected ErrUnsupportedPredicate, got %v", err)
	}
}

func categoryLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	id, err := s.CreateCategory(ctx, core.Category{UserID: "c1", Name: "Food", Icon: "🍔", Color: "#ff0000"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateCategory(ctx, core.Category{UserID: "c2", Name: "Rent"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	list, err := s.ListCategories(ctx, store.ByUser("c1"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != id || list[0].Icon != "🍔" {
		t.Fatalf("unexpected categories: %+v", list)
	}

	name := "Groceries"
	if err := s.UpdateCategory(ctx, id, core.CategoryPatch{Name: &name}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.GetCategory(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Groceries" || got.Color != "#ff0000" {
		t.Fatalf("unexpected category: %+v", got)
	}

	if err := s.DeleteCategory(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	list, err = s.ListCategories(ctx, store.ByUser("c1"))
	if err != nil || len(list) != 0 {
		t.Fatalf("expected no categories after delete: %+v err=%v", list, err)
	}
}

func missingIDs(t *testing.T, s store.Store) {
	ctx := context.Background()
	desc := "x"
	name := "x"
	checks := map[string]error{
		"get tx":     func() error { _, err := s.GetTransaction(ctx, "missing"); return err }(),
		"update tx":  s.UpdateTransaction(ctx, "missing", core.TransactionPatch{Description: &desc}),
		"delete tx":  s.DeleteTransaction(ctx, "missing"),
		"get cat":    func() error { _, err := s.GetCategory(ctx, "missing"); return err }(),
		"update cat": s.UpdateCategory(ctx, "missing", core.CategoryPatch{Name: &name}),
		"delete cat": s.DeleteCategory(ctx, "missing"),
	}
	for name, err := range checks {
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("%s: expected ErrNotFound, got %v", name, err)
		}
	}
}
