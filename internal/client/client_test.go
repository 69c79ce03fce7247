package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"voxafi/internal/auth"
	authmem "voxafi/internal/auth/memory"
	"voxafi/internal/core"
	apphttp "voxafi/internal/http"
	"voxafi/internal/services"
	"voxafi/internal/store/memory"
)

func newAPI(t *testing.T) *Client {
	t.Helper()
	st := memory.New()
	budget := services.NewBudgetService(st, st, nil)
	srv := apphttp.NewServer(apphttp.Config{
		RateLimitPerMinute: 1000,
		Now:                func() time.Time { return time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC) },
	}, budget, authmem.New(time.Hour, authmem.WithCost(bcrypt.MinCost)))
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown(context.Background())
		_ = budget.Close()
	})
	c := New(ts.URL, WithHTTPClient(ts.Client()))
	t.Cleanup(c.Close)
	return c
}

func TestSessionLifecycle(t *testing.T) {
	c := newAPI(t)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []bool
	cancel := c.State().Subscribe(func(s *auth.Session) {
		mu.Lock()
		seen = append(seen, s != nil)
		mu.Unlock()
	})
	defer cancel()

	if _, err := c.Dashboard(ctx); !errors.Is(err, ErrSignedOut) {
		t.Fatalf("expected ErrSignedOut, got %v", err)
	}
	if err := c.Register(ctx, "a@example.com", "secret-pass", "other-pass"); !errors.Is(err, auth.ErrPasswordMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if err := c.Register(ctx, "a@example.com", "secret-pass", "secret-pass"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if c.State().Current() == nil {
		t.Fatalf("expected signed in state")
	}
	if err := c.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if c.State().Current() != nil {
		t.Fatalf("expected signed out state")
	}

	err := c.Login(ctx, "a@example.com", "wrong-pass")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized || !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected 401 api error, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n >= 3 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	want := []bool{false, true, false}
	if len(seen) != len(want) {
		t.Fatalf("state changes %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("state changes %v, want %v", seen, want)
		}
	}
}

func TestTransactionsRoundTrip(t *testing.T) {
	c := newAPI(t)
	ctx := context.Background()
	if err := c.Register(ctx, "a@example.com", "secret-pass", "secret-pass"); err != nil {
		t.Fatalf("register: %v", err)
	}

	inputs := []core.TransactionInput{
		{Amount: json.Number("1000"), Description: "salary", Category: "work", Date: "2024-03-01", Type: "income"},
		{Amount: json.Number("12.34"), Description: "lunch", Category: "food", Date: "2024-03-02", Type: "expense"},
		{Amount: json.Number("50"), Description: "fuel", Category: "car", Date: "2024-02-27", Type: "expense"},
	}
	var ids []string
	for _, in := range inputs {
		tx, err := c.AddTransaction(ctx, in)
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		ids = append(ids, tx.ID)
	}

	ov, err := c.MonthOverview(ctx, 2024, 2)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if ov.Totals.Income.String() != "1000" || ov.Totals.Expense.String() != "12.34" || len(ov.Transactions) != 2 {
		t.Fatalf("unexpected overview %+v", ov)
	}

	d, err := c.Dashboard(ctx)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if len(d.Recent) != 3 || d.Recent[0].Description != "lunch" {
		t.Fatalf("unexpected dashboard %+v", d)
	}

	if err := c.DeleteTransaction(ctx, ids[2]); err != nil {
		t.Fatalf("delete: %v", err)
	}
	feb, err := c.TransactionsByMonth(ctx, 2024, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(feb) != 0 {
		t.Fatalf("expected february to be empty, got %+v", feb)
	}

	_, err = c.AddTransaction(ctx, core.TransactionInput{Amount: json.Number("0"), Description: "x", Category: "y", Date: "2024-03-01", Type: "expense"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", err)
	}
}
