// Package supabase stores transactions and categories in Supabase tables
// through the PostgREST API.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	postgrest "github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"voxafi/internal/core"
	"voxafi/internal/store"
)

const (
	transactionsTable = "transactions"
	categoriesTable   = "categories"
)

var columns = map[string]string{
	store.FieldUserID:   "user_id",
	store.FieldCategory: "category",
	store.FieldType:     "type",
	store.FieldName:     "name",
}

var byCreation = &postgrest.OrderOpts{Ascending: true}

type transactionRow struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	// Kept as text so the original offset survives.
	Date      string `json:"date"`
	Type      string `json:"type"`
	CreatedAt string `json:"created_at,omitempty"`
}

type categoryRow struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Icon      string `json:"icon"`
	Color     string `json:"color"`
	CreatedAt string `json:"created_at,omitempty"`
}

type Repository struct {
	client *supabase.Client
}

func NewRepository(url, key string) (*Repository, error) {
	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &Repository{client: client}, nil
}

func (r *Repository) Close() error { return nil }

// Ping issues a cheap HEAD-style select to check PostgREST is reachable.
func (r *Repository) Ping(_ context.Context) error {
	_, _, err := r.client.From(transactionsTable).Select("id", "", false).Limit(1, "").Execute()
	return err
}

func (r *Repository) CreateTransaction(_ context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	row := toTransactionRow(tx)
	row.ID = uuid.NewString()
	if _, _, err := r.client.From(transactionsTable).Insert(row, false, "", "minimal", "").Execute(); err != nil {
		return "", fmt.Errorf("insert transaction: %w", err)
	}
	return row.ID, nil
}

func (r *Repository) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	data, _, err := r.client.From(transactionsTable).
		Select("*", "", false).
		Eq("id", id).
		Execute()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	rows, err := decodeTransactions(data)
	if err != nil {
		return core.Transaction{}, err
	}
	if len(rows) == 0 {
		return core.Transaction{}, store.ErrNotFound
	}
	return rows[0], nil
}

func (r *Repository) UpdateTransaction(ctx context.Context, id string, patch core.TransactionPatch) error {
	current, err := r.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	updated := patch.Apply(current)
	if err := updated.Validate(); err != nil {
		return err
	}
	row := toTransactionRow(updated)
	data, _, err := r.client.From(transactionsTable).
		Update(row, "representation", "").
		Eq("id", id).
		Execute()
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", id, err)
	}
	return requireRows(data)
}

func (r *Repository) DeleteTransaction(_ context.Context, id string) error {
	data, _, err := r.client.From(transactionsTable).
		Delete("representation", "").
		Eq("id", id).
		Execute()
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	return requireRows(data)
}

func (r *Repository) QueryTransactions(_ context.Context, preds ...store.Predicate) ([]core.Transaction, error) {
	if err := store.ValidateAll(store.Transactions, preds); err != nil {
		return nil, err
	}
	query := r.client.From(transactionsTable).Select("*", "", false)
	for _, p := range preds {
		query = query.Eq(columns[p.Field], p.Value)
	}
	data, _, err := query.Order("created_at", byCreation).Execute()
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	return decodeTransactions(data)
}

func (r *Repository) CreateCategory(_ context.Context, c core.Category) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	row := toCategoryRow(c)
	row.ID = uuid.NewString()
	if _, _, err := r.client.From(categoriesTable).Insert(row, false, "", "minimal", "").Execute(); err != nil {
		return "", fmt.Errorf("insert category: %w", err)
	}
	return row.ID, nil
}

func (r *Repository) GetCategory(_ context.Context, id string) (core.Category, error) {
	data, _, err := r.client.From(categoriesTable).
		Select("*", "", false).
		Eq("id", id).
		Execute()
	if err != nil {
		return core.Category{}, fmt.Errorf("get category %s: %w", id, err)
	}
	cats, err := decodeCategories(data)
	if err != nil {
		return core.Category{}, err
	}
	if len(cats) == 0 {
		return core.Category{}, store.ErrNotFound
	}
	return cats[0], nil
}

func (r *Repository) ListCategories(_ context.Context, preds ...store.Predicate) ([]core.Category, error) {
	if err := store.ValidateAll(store.Categories, preds); err != nil {
		return nil, err
	}
	query := r.client.From(categoriesTable).Select("*", "", false)
	for _, p := range preds {
		query = query.Eq(columns[p.Field], p.Value)
	}
	data, _, err := query.Order("created_at", byCreation).Execute()
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return decodeCategories(data)
}

func (r *Repository) UpdateCategory(ctx context.Context, id string, patch core.CategoryPatch) error {
	current, err := r.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	updated := patch.Apply(current)
	if err := updated.Validate(); err != nil {
		return err
	}
	data, _, err := r.client.From(categoriesTable).
		Update(toCategoryRow(updated), "representation", "").
		Eq("id", id).
		Execute()
	if err != nil {
		return fmt.Errorf("update category %s: %w", id, err)
	}
	return requireRows(data)
}

func (r *Repository) DeleteCategory(_ context.Context, id string) error {
	data, _, err := r.client.From(categoriesTable).
		Delete("representation", "").
		Eq("id", id).
		Execute()
	if err != nil {
		return fmt.Errorf("delete category %s: %w", id, err)
	}
	return requireRows(data)
}

func toTransactionRow(tx core.Transaction) transactionRow {
	return transactionRow{
		ID:          tx.ID,
		UserID:      tx.UserID,
		Amount:      tx.Amount,
		Description: tx.Description,
		Category:    tx.Category,
		Date:        tx.Date.Format(time.RFC3339Nano),
		Type:        tx.Type.String(),
	}
}

func toCategoryRow(c core.Category) categoryRow {
	return categoryRow{ID: c.ID, UserID: c.UserID, Name: c.Name, Icon: c.Icon, Color: c.Color}
}

func decodeTransactions(data []byte) ([]core.Transaction, error) {
	var rows []transactionRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse transactions: %w", err)
	}
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		date, err := time.Parse(time.RFC3339Nano, row.Date)
		if err != nil {
			return nil, fmt.Errorf("parse date of %s: %w", row.ID, err)
		}
		typ, err := core.ParseType(row.Type)
		if err != nil {
			return nil, fmt.Errorf("parse type of %s: %w", row.ID, err)
		}
		out = append(out, core.Transaction{
			ID:          row.ID,
			UserID:      row.UserID,
			Amount:      row.Amount,
			Description: row.Description,
			Category:    row.Category,
			Date:        date,
			Type:        typ,
		})
	}
	return out, nil
}

func decodeCategories(data []byte) ([]core.Category, error) {
	var rows []categoryRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse categories: %w", err)
	}
	out := make([]core.Category, 0, len(rows))
	for _, row := range rows {
		out = append(out, core.Category{ID: row.ID, UserID: row.UserID, Name: row.Name, Icon: row.Icon, Color: row.Color})
	}
	return out, nil
}

// requireRows maps an empty "return=representation" body to ErrNotFound.
func requireRows(data []byte) error {
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if len(rows) == 0 {
		return store.ErrNotFound
	}
	return nil
}
