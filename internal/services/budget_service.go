package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"voxafi/internal/amqp"
	"voxafi/internal/core"
	"voxafi/internal/live"
	"voxafi/internal/store"
)

// ErrForbidden is returned when a user touches a record owned by someone else.
var ErrForbidden = errors.New("forbidden")

// EventPublisher sends transaction change notifications downstream.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, ev *amqp.TransactionEvent) error
}

// DashboardRecentCount is how many recent transactions the dashboard shows.
const DashboardRecentCount = 5

// Dashboard is the current-month summary shown after login.
type Dashboard struct {
	Year    int                `json:"year"`
	Month   int                `json:"month"`
	Income  decimal.Decimal    `json:"income"`
	Expense decimal.Decimal    `json:"expense"`
	Balance decimal.Decimal    `json:"balance"`
	Recent  []core.Transaction `json:"recent"`
}

// TransactionFilter narrows a user's transaction list. Empty fields match all.
type TransactionFilter struct {
	Category string
	Type     core.Type
}

type watch struct {
	feed    *live.Feed[[]core.Transaction]
	refresh sync.Mutex
}

// BudgetService orchestrates transaction and category operations across the
// store, the event publisher and live subscribers.
type BudgetService struct {
	transactions store.TransactionStore
	categories   store.CategoryStore
	publisher    EventPublisher

	version atomic.Int64

	mu      sync.Mutex
	watches map[string]*watch
}

// NewBudgetService wires the service. publisher may be nil, in which case
// events are skipped.
func NewBudgetService(transactions store.TransactionStore, categories store.CategoryStore, publisher EventPublisher) *BudgetService {
	s := &BudgetService{
		transactions: transactions,
		categories:   categories,
		publisher:    publisher,
		watches:      make(map[string]*watch),
	}
	s.version.Store(time.Now().UnixNano())
	return s
}

// AddTransaction decodes in, stores it for userID and returns the stored record.
func (s *BudgetService) AddTransaction(ctx context.Context, userID string, in core.TransactionInput) (core.Transaction, error) {
	tx, err := in.ToTransaction(userID)
	if err != nil {
		return core.Transaction{}, err
	}
	id, err := s.transactions.CreateTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	tx.ID = id

	s.publish(ctx, amqp.EventCreated, id, userID)
	s.refresh(ctx, userID)
	return tx, nil
}

// Transaction returns one of the user's transactions.
func (s *BudgetService) Transaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	tx, err := s.transactions.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if tx.UserID != userID {
		return core.Transaction{}, ErrForbidden
	}
	return tx, nil
}

func (s *BudgetService) UpdateTransaction(ctx context.Context, userID, id string, patch core.TransactionPatch) (core.Transaction, error) {
	current, err := s.Transaction(ctx, userID, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if patch.IsEmpty() {
		return current, nil
	}
	if err := s.transactions.UpdateTransaction(ctx, id, patch); err != nil {
		return core.Transaction{}, err
	}

	s.publish(ctx, amqp.EventUpdated, id, userID)
	s.refresh(ctx, userID)
	return patch.Apply(current), nil
}

func (s *BudgetService) DeleteTransaction(ctx context.Context, userID, id string) error {
	if _, err := s.Transaction(ctx, userID, id); err != nil {
		return err
	}
	if err := s.transactions.DeleteTransaction(ctx, id); err != nil {
		return err
	}

	s.publish(ctx, amqp.EventDeleted, id, userID)
	s.refresh(ctx, userID)
	return nil
}

// Transactions lists the user's transactions in store order.
func (s *BudgetService) Transactions(ctx context.Context, userID string, filter TransactionFilter) ([]core.Transaction, error) {
	preds := []store.Predicate{store.ByUser(userID)}
	if c := strings.TrimSpace(filter.Category); c != "" {
		preds = append(preds, store.Eq(store.FieldCategory, c))
	}
	if filter.Type != "" {
		preds = append(preds, store.Eq(store.FieldType, filter.Type.String()))
	}
	txs, err := s.transactions.QueryTransactions(ctx, preds...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	return txs, nil
}

func (s *BudgetService) TransactionsByMonth(ctx context.Context, userID string, year, month int) ([]core.Transaction, error) {
	txs, err := s.Transactions(ctx, userID, TransactionFilter{})
	if err != nil {
		return nil, err
	}
	return core.FilterByMonth(txs, year, month), nil
}

func (s *BudgetService) RecentTransactions(ctx context.Context, userID string, n int) ([]core.Transaction, error) {
	txs, err := s.Transactions(ctx, userID, TransactionFilter{})
	if err != nil {
		return nil, err
	}
	return core.RecentTransactions(txs, n), nil
}

func (s *BudgetService) MonthlyTotals(ctx context.Context, userID string, year, month int) (core.Totals, error) {
	txs, err := s.Transactions(ctx, userID, TransactionFilter{})
	if err != nil {
		return core.Totals{}, err
	}
	return core.MonthlyTotals(txs, year, month), nil
}

func (s *BudgetService) CategoryTotals(ctx context.Context, userID string, year, month int) (map[string]decimal.Decimal, error) {
	txs, err := s.Transactions(ctx, userID, TransactionFilter{})
	if err != nil {
		return nil, err
	}
	return core.CategoryTotals(txs, year, month), nil
}

func (s *BudgetService) MonthOverview(ctx context.Context, userID string, year, month int) (core.MonthOverview, error) {
	txs, err := s.Transactions(ctx, userID, TransactionFilter{})
	if err != nil {
		return core.MonthOverview{}, err
	}
	return core.BuildMonthOverview(txs, year, month), nil
}

// Dashboard summarizes the month containing now together with the most
// recent transactions overall.
func (s *BudgetService) Dashboard(ctx context.Context, userID string, now time.Time) (Dashboard, error) {
	txs, err := s.Transactions(ctx, userID, TransactionFilter{})
	if err != nil {
		return Dashboard{}, err
	}
	year, month := now.Year(), int(now.Month())-1
	totals := core.MonthlyTotals(txs, year, month)
	return Dashboard{
		Year:    year,
		Month:   month,
		Income:  totals.Income,
		Expense: totals.Expense,
		Balance: totals.Balance(),
		Recent:  core.RecentTransactions(txs, DashboardRecentCount),
	}, nil
}

func (s *BudgetService) AddCategory(ctx context.Context, userID string, c core.Category) (core.Category, error) {
	c.ID = ""
	c.UserID = userID
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	id, err := s.categories.CreateCategory(ctx, c)
	if err != nil {
		return core.Category{}, fmt.Errorf("save category: %w", err)
	}
	c.ID = id
	return c, nil
}

func (s *BudgetService) Categories(ctx context.Context, userID string) ([]core.Category, error) {
	cats, err := s.categories.ListCategories(ctx, store.ByUser(userID))
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

func (s *BudgetService) UpdateCategory(ctx context.Context, userID, id string, patch core.CategoryPatch) (core.Category, error) {
	current, err := s.ownedCategory(ctx, userID, id)
	if err != nil {
		return core.Category{}, err
	}
	if err := s.categories.UpdateCategory(ctx, id, patch); err != nil {
		return core.Category{}, err
	}
	return patch.Apply(current), nil
}

func (s *BudgetService) DeleteCategory(ctx context.Context, userID, id string) error {
	if _, err := s.ownedCategory(ctx, userID, id); err != nil {
		return err
	}
	return s.categories.DeleteCategory(ctx, id)
}

func (s *BudgetService) ownedCategory(ctx context.Context, userID, id string) (core.Category, error) {
	c, err := s.categories.GetCategory(ctx, id)
	if err != nil {
		return core.Category{}, err
	}
	if c.UserID != userID {
		return core.Category{}, ErrForbidden
	}
	return c, nil
}

// WatchTransactions pushes the user's transaction list to fn: first the
// current list, then a fresh list after every mutation made through this
// service. The subscription ends when cancel is called or ctx is done.
func (s *BudgetService) WatchTransactions(ctx context.Context, userID string, fn func([]core.Transaction)) (func(), error) {
	s.mu.Lock()
	w, ok := s.watches[userID]
	if !ok {
		txs, err := s.Transactions(ctx, userID, TransactionFilter{})
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		w = &watch{feed: live.NewFeed[[]core.Transaction]()}
		w.feed.Publish(txs)
		s.watches[userID] = w
	}
	unsubscribe := w.feed.Subscribe(fn)
	s.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			unsubscribe()
			s.mu.Lock()
			defer s.mu.Unlock()
			if w.feed.Subscribers() == 0 && s.watches[userID] == w {
				delete(s.watches, userID)
				w.feed.Close()
			}
		})
	}
	stop := context.AfterFunc(ctx, release)
	return func() {
		stop()
		release()
	}, nil
}

// refresh republishes the user's list to live subscribers, if any.
func (s *BudgetService) refresh(ctx context.Context, userID string) {
	s.mu.Lock()
	w := s.watches[userID]
	s.mu.Unlock()
	if w == nil {
		return
	}

	w.refresh.Lock()
	defer w.refresh.Unlock()
	txs, err := s.Transactions(ctx, userID, TransactionFilter{})
	if err != nil {
		slog.WarnContext(ctx, "Failed to refresh live transactions", "user_id", userID, "error", err)
		return
	}
	w.feed.Publish(txs)
}

// publish is best effort: failures are logged and never fail the caller.
func (s *BudgetService) publish(ctx context.Context, kind amqp.EventKind, transactionID, userID string) {
	if s.publisher == nil {
		return
	}
	ev := amqp.NewTransactionEvent(kind, transactionID, userID, s.version.Add(1))
	if err := s.publisher.PublishTransactionEvent(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction event",
			"kind", kind,
			"transaction_id", transactionID,
			"error", err)
	}
}

// Close releases live subscriptions.
func (s *BudgetService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for user, w := range s.watches {
		w.feed.Close()
		delete(s.watches, user)
	}
	return nil
}
