package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"voxafi/internal/core"
	"voxafi/internal/store"

	_ "modernc.org/sqlite"
)

// Column names for the queryable predicate fields.
var columns = map[string]string{
	store.FieldUserID:   "user_id",
	store.FieldCategory: "category",
	store.FieldType:     "type",
	store.FieldName:     "name",
}

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Debug("SQLite store ready", "path", dbPath, "schema_version", version)
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) CreateTransaction(ctx context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, amount, description, category, date, type, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, COALESCE((SELECT MAX(seq) FROM transactions), 0) + 1)`,
		id, tx.UserID, tx.Amount.String(), tx.Description, tx.Category, formatDate(tx.Date), tx.Type.String())
	if err != nil {
		return "", fmt.Errorf("insert transaction: %w", err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", id,
		"user_id", tx.UserID,
		"amount", tx.Amount.String(),
		"type", tx.Type)
	return id, nil
}

func (r *Repository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, amount, description, category, date, type
		FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, store.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return tx, nil
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
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET amount = ?, description = ?, category = ?, date = ?, type = ?
		WHERE id = ?`,
		updated.Amount.String(), updated.Description, updated.Category, formatDate(updated.Date), updated.Type.String(), id)
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", id, err)
	}
	return requireAffected(res)
}

func (r *Repository) DeleteTransaction(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	return requireAffected(res)
}

func (r *Repository) QueryTransactions(ctx context.Context, preds ...store.Predicate) ([]core.Transaction, error) {
	if err := store.ValidateAll(store.Transactions, preds); err != nil {
		return nil, err
	}
	where, args := whereClause(preds)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, amount, description, category, date, type
		FROM transactions`+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := make([]core.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r *Repository) CreateCategory(ctx context.Context, c core.Category) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (id, user_id, name, icon, color, seq)
		VALUES (?, ?, ?, ?, ?, COALESCE((SELECT MAX(seq) FROM categories), 0) + 1)`,
		id, c.UserID, c.Name, c.Icon, c.Color)
	if err != nil {
		return "", fmt.Errorf("insert category: %w", err)
	}
	return id, nil
}

func (r *Repository) GetCategory(ctx context.Context, id string) (core.Category, error) {
	var c core.Category
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, icon, color FROM categories WHERE id = ?`, id).
		Scan(&c.ID, &c.UserID, &c.Name, &c.Icon, &c.Color)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, store.ErrNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category %s: %w", id, err)
	}
	return c, nil
}

func (r *Repository) ListCategories(ctx context.Context, preds ...store.Predicate) ([]core.Category, error) {
	if err := store.ValidateAll(store.Categories, preds); err != nil {
		return nil, err
	}
	where, args := whereClause(preds)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, name, icon, color
		FROM categories`+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := make([]core.Category, 0)
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Icon, &c.Color); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
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
	res, err := r.db.ExecContext(ctx, `
		UPDATE categories SET name = ?, icon = ?, color = ? WHERE id = ?`,
		updated.Name, updated.Icon, updated.Color, id)
	if err != nil {
		return fmt.Errorf("update category %s: %w", id, err)
	}
	return requireAffected(res)
}

func (r *Repository) DeleteCategory(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete category %s: %w", id, err)
	}
	return requireAffected(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		tx                 core.Transaction
		amount, date, kind string
	)
	if err := s.Scan(&tx.ID, &tx.UserID, &amount, &tx.Description, &tx.Category, &date, &kind); err != nil {
		return core.Transaction{}, err
	}
	var err error
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Transaction{}, fmt.Errorf("decode amount %q: %w", amount, err)
	}
	if tx.Date, err = time.Parse(time.RFC3339Nano, date); err != nil {
		return core.Transaction{}, fmt.Errorf("decode date %q: %w", date, err)
	}
	if tx.Type, err = core.ParseType(kind); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

// formatDate keeps the original UTC offset so calendar fields survive a
// round trip.
func formatDate(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func whereClause(preds []store.Predicate) (string, []any) {
	if len(preds) == 0 {
		return "", nil
	}
	conds := make([]string, 0, len(preds))
	args := make([]any, 0, len(preds))
	for _, p := range preds {
		conds = append(conds, columns[p.Field]+" = ?")
		args = append(args, p.Value)
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
