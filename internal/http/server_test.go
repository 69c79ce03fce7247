package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"voxafi/internal/auth"
	authmem "voxafi/internal/auth/memory"
	"voxafi/internal/core"
	"voxafi/internal/services"
	"voxafi/internal/store"
	"voxafi/internal/store/memory"
)

var fixedNow = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	st := memory.New()
	budget := services.NewBudgetService(st, st, nil)
	provider := authmem.New(time.Hour, authmem.WithCost(bcrypt.MinCost))
	if cfg.RateLimitPerMinute == 0 {
		cfg.RateLimitPerMinute = 1000
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return fixedNow }
	}
	srv := NewServer(cfg, budget, provider)
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		_ = budget.Close()
	})
	return srv
}

func do(t *testing.T, srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func register(t *testing.T, srv *Server, email string) string {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":           email,
		"password":        "correct-horse-9",
		"confirmPassword": "correct-horse-9",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: status %d body %s", rec.Code, rec.Body)
	}
	var sess auth.Session
	decode(t, rec, &sess)
	if sess.AccessToken == "" {
		t.Fatalf("register returned no token")
	}
	return sess.AccessToken
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func createTx(t *testing.T, srv *Server, token, amount, category, date, typ string) core.Transaction {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/transactions", token,
		`{"amount":`+amount+`,"description":"`+category+` item","category":"`+category+`","date":"`+date+`","type":"`+typ+`"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body)
	}
	var tx core.Transaction
	decode(t, rec, &tx)
	return tx
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, Config{Ready: func(context.Context) error { return errors.New("db down") }})

	if rec := do(t, srv, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	rec := do(t, srv, http.MethodGet, "/readyz", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz: %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected security headers")
	}
}

func TestAuthFlow(t *testing.T) {
	srv := newTestServer(t, Config{})

	if rec := do(t, srv, http.MethodGet, "/api/auth/me", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("me without token: %d", rec.Code)
	}

	rec := do(t, srv, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "a@example.com", "password": "correct-horse-9", "confirmPassword": "other-horse-9",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("mismatched confirmation: %d", rec.Code)
	}

	token := register(t, srv, "a@example.com")
	rec = do(t, srv, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "A@example.com", "password": "correct-horse-9",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register: %d", rec.Code)
	}

	rec = do(t, srv, http.MethodGet, "/api/auth/me", token, nil)
	var user auth.User
	decode(t, rec, &user)
	if user.Email != "a@example.com" {
		t.Fatalf("unexpected user %+v", user)
	}

	rec = do(t, srv, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@example.com", "password": "wrong-password-1"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: %d", rec.Code)
	}
	rec = do(t, srv, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@example.com", "password": "correct-horse-9"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body)
	}

	if rec := do(t, srv, http.MethodPost, "/api/auth/logout", token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("logout: %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/api/auth/me", token, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("me after logout: %d", rec.Code)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	srv := newTestServer(t, Config{})
	token := register(t, srv, "a@example.com")
	other := register(t, srv, "b@example.com")

	tx := createTx(t, srv, token, `"40.50"`, "food", "2024-03-10", "expense")
	if tx.UserID == "" || tx.ID == "" {
		t.Fatalf("unexpected transaction %+v", tx)
	}

	if rec := do(t, srv, http.MethodGet, "/api/transactions/"+tx.ID, other, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign get: %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/api/transactions/missing", token, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing get: %d", rec.Code)
	}

	rec := do(t, srv, http.MethodPatch, "/api/transactions/"+tx.ID, token, `{"category":"groceries"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", rec.Code, rec.Body)
	}
	var patched core.Transaction
	decode(t, rec, &patched)
	if patched.Category != "groceries" || patched.Description != "food item" {
		t.Fatalf("unexpected patch result %+v", patched)
	}

	if rec := do(t, srv, http.MethodPatch, "/api/transactions/"+tx.ID, token, `{"amount":-3}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("negative amount patch: %d", rec.Code)
	}
	longDesc := `{"description":"` + strings.Repeat("x", 201) + `"}`
	if rec := do(t, srv, http.MethodPatch, "/api/transactions/"+tx.ID, token, longDesc); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("long description patch: %d %s", rec.Code, rec.Body)
	}
	if rec := do(t, srv, http.MethodDelete, "/api/transactions/"+tx.ID, other, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign delete: %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodDelete, "/api/transactions/"+tx.ID, token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/api/transactions/"+tx.ID, token, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", rec.Code)
	}
}

func TestCreateTransactionRejectsBadInput(t *testing.T) {
	srv := newTestServer(t, Config{})
	token := register(t, srv, "a@example.com")

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty body", ``, http.StatusBadRequest},
		{"malformed", `{"amount":`, http.StatusBadRequest},
		{"unknown field", `{"amount":1,"description":"x","category":"y","date":"2024-01-01","type":"expense","extra":1}`, http.StatusBadRequest},
		{"zero amount", `{"amount":0,"description":"x","category":"y","date":"2024-01-01","type":"expense"}`, http.StatusUnprocessableEntity},
		{"bad type", `{"amount":1,"description":"x","category":"y","date":"2024-01-01","type":"transfer"}`, http.StatusUnprocessableEntity},
		{"bad date", `{"amount":1,"description":"x","category":"y","date":"01/02/2024","type":"expense"}`, http.StatusUnprocessableEntity},
		{"no description", `{"amount":1,"description":" ","category":"y","date":"2024-01-01","type":"expense"}`, http.StatusUnprocessableEntity},
		{"long description", `{"amount":1,"description":"` + strings.Repeat("x", 201) + `","category":"y","date":"2024-01-01","type":"expense"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/transactions", token, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestListAndRecent(t *testing.T) {
	srv := newTestServer(t, Config{})
	token := register(t, srv, "a@example.com")
	createTx(t, srv, token, "100", "salary", "2024-03-05", "income")
	createTx(t, srv, token, "40", "food", "2024-03-10", "expense")
	createTx(t, srv, token, "10", "food", "2024-04-01", "expense")

	var txs []core.Transaction
	decode(t, do(t, srv, http.MethodGet, "/api/transactions?category=food", token, nil), &txs)
	if len(txs) != 2 {
		t.Fatalf("category filter: got %d", len(txs))
	}
	decode(t, do(t, srv, http.MethodGet, "/api/transactions?type=income", token, nil), &txs)
	if len(txs) != 1 || txs[0].Category != "salary" {
		t.Fatalf("type filter: got %+v", txs)
	}
	decode(t, do(t, srv, http.MethodGet, "/api/transactions?year=2024&month=3", token, nil), &txs)
	if len(txs) != 1 || txs[0].Category != "food" {
		t.Fatalf("month filter: got %+v", txs)
	}
	if rec := do(t, srv, http.MethodGet, "/api/transactions?month=12", token, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("month 12: %d", rec.Code)
	}

	decode(t, do(t, srv, http.MethodGet, "/api/transactions/recent?n=2", token, nil), &txs)
	if len(txs) != 2 || txs[0].Date.Month() != time.April {
		t.Fatalf("recent: got %+v", txs)
	}
	if rec := do(t, srv, http.MethodGet, "/api/transactions/recent?n=0", token, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("recent n=0: %d", rec.Code)
	}
}

func TestSummaryUsesCacheAndInvalidates(t *testing.T) {
	srv := newTestServer(t, Config{})
	token := register(t, srv, "a@example.com")
	createTx(t, srv, token, "100", "salary", "2024-03-05", "income")
	createTx(t, srv, token, "40", "food", "2024-03-10", "expense")

	var sum monthSummary
	decode(t, do(t, srv, http.MethodGet, "/api/summary/month?year=2024&month=2", token, nil), &sum)
	if sum.Income != "100.00" || sum.Expense != "40.00" || sum.Balance != "60.00" {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if srv.overviews.Size() != 1 {
		t.Fatalf("expected cached overview, size %d", srv.overviews.Size())
	}

	// Defaults to the current month of the server clock.
	decode(t, do(t, srv, http.MethodGet, "/api/summary/month", token, nil), &sum)
	if sum.Year != 2024 || sum.Month != 2 {
		t.Fatalf("unexpected default period %+v", sum)
	}

	createTx(t, srv, token, "0.25", "food", "2024-03-11", "expense")
	if srv.overviews.Size() != 0 {
		t.Fatalf("expected cache to be invalidated")
	}
	decode(t, do(t, srv, http.MethodGet, "/api/summary/month?year=2024&month=2", token, nil), &sum)
	if sum.Expense != "40.25" {
		t.Fatalf("stale summary %+v", sum)
	}

	var cats []core.CategoryAmount
	decode(t, do(t, srv, http.MethodGet, "/api/summary/categories?year=2024&month=2", token, nil), &cats)
	if len(cats) != 1 || cats[0].Name != "food" || cats[0].Amount.String() != "40.25" {
		t.Fatalf("unexpected categories %+v", cats)
	}
}

func TestDashboard(t *testing.T) {
	srv := newTestServer(t, Config{})
	token := register(t, srv, "a@example.com")
	createTx(t, srv, token, "100", "salary", "2024-03-05", "income")
	createTx(t, srv, token, "30", "food", "2024-02-10", "expense")

	var d services.Dashboard
	decode(t, do(t, srv, http.MethodGet, "/api/dashboard", token, nil), &d)
	if d.Year != 2024 || d.Month != 2 || d.Income.String() != "100" || !d.Expense.IsZero() {
		t.Fatalf("unexpected dashboard %+v", d)
	}
	if len(d.Recent) != 2 {
		t.Fatalf("expected 2 recent, got %d", len(d.Recent))
	}
}

func TestCharts(t *testing.T) {
	srv := newTestServer(t, Config{})
	token := register(t, srv, "a@example.com")

	if rec := do(t, srv, http.MethodGet, "/api/charts/categories.png?year=2024&month=2", token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("empty chart: %d", rec.Code)
	}

	createTx(t, srv, token, "100", "salary", "2024-03-05", "income")
	createTx(t, srv, token, "40", "food", "2024-03-10", "expense")
	for _, path := range []string{"/api/charts/categories.png", "/api/charts/totals.png"} {
		rec := do(t, srv, http.MethodGet, path+"?year=2024&month=2", token, nil)
		if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
			t.Fatalf("%s: status %d type %q", path, rec.Code, rec.Header().Get("Content-Type"))
		}
		if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
			t.Fatalf("%s: not a png", path)
		}
	}
}

func TestCategories(t *testing.T) {
	srv := newTestServer(t, Config{})
	token := register(t, srv, "a@example.com")
	other := register(t, srv, "b@example.com")

	rec := do(t, srv, http.MethodPost, "/api/categories", token, map[string]string{"name": " Food ", "color": "#ff0000"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}
	var c core.Category
	decode(t, rec, &c)
	if c.Name != "Food" {
		t.Fatalf("name not trimmed: %q", c.Name)
	}

	if rec := do(t, srv, http.MethodPost, "/api/categories", token, map[string]string{"name": ""}); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty name: %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodPatch, "/api/categories/"+c.ID, other, `{"name":"Mine"}`); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign patch: %d", rec.Code)
	}
	rec = do(t, srv, http.MethodPatch, "/api/categories/"+c.ID, token, `{"icon":"cart"}`)
	decode(t, rec, &c)
	if c.Icon != "cart" || c.Name != "Food" {
		t.Fatalf("unexpected patch %+v", c)
	}

	var cats []core.Category
	decode(t, do(t, srv, http.MethodGet, "/api/categories", other, nil), &cats)
	if len(cats) != 0 {
		t.Fatalf("categories leaked across users: %+v", cats)
	}
	if rec := do(t, srv, http.MethodDelete, "/api/categories/"+c.ID, token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, Config{RateLimitPerMinute: 2})
	for i := 0; i < 2; i++ {
		if rec := do(t, srv, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i, rec.Code)
		}
	}
	rec := do(t, srv, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d", rec.Code)
	}
}

func TestSuspiciousRequestBlocked(t *testing.T) {
	srv := newTestServer(t, Config{})
	if rec := do(t, srv, http.MethodGet, "/.env", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("probe: %d", rec.Code)
	}
	var h healthBody
	decode(t, do(t, srv, http.MethodGet, "/healthz", "", nil), &h)
	if h.Suspicious != 1 || h.Requests < 1 {
		t.Fatalf("unexpected health counters %+v", h)
	}
}

// openStream subscribes to the transaction stream and returns the decoded
// snapshots. The channel closes when the server ends the response.
func openStream(ctx context.Context, t *testing.T, ts *httptest.Server, token string) (<-chan []core.Transaction, io.Closer) {
	t.Helper()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/transactions/stream", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		resp.Body.Close()
		t.Fatalf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	events := make(chan []core.Transaction, 4)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			data, ok := strings.CutPrefix(sc.Text(), "data: ")
			if !ok {
				continue
			}
			var txs []core.Transaction
			if json.Unmarshal([]byte(data), &txs) == nil {
				events <- txs
			}
		}
		close(events)
	}()
	return events, resp.Body
}

func nextEvent(ctx context.Context, t *testing.T, events <-chan []core.Transaction) []core.Transaction {
	t.Helper()
	select {
	case txs, ok := <-events:
		if !ok {
			t.Fatalf("stream closed")
		}
		return txs
	case <-ctx.Done():
		t.Fatalf("timed out waiting for stream event")
	}
	return nil
}

func TestStreamTransactions(t *testing.T) {
	srv := newTestServer(t, Config{})
	token := register(t, srv, "a@example.com")
	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events, body := openStream(ctx, t, ts, token)

	if got := nextEvent(ctx, t, events); len(got) != 0 {
		t.Fatalf("initial snapshot: %+v", got)
	}
	createTx(t, srv, token, "5", "food", "2024-03-10", "expense")
	if got := nextEvent(ctx, t, events); len(got) != 1 {
		t.Fatalf("after create: %+v", got)
	}

	// A client going away ends its subscription without taking the server down.
	body.Close()
	cancel()
	createTx(t, srv, token, "6", "food", "2024-03-11", "expense")
	if rec := do(t, srv, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz after disconnect: %d", rec.Code)
	}
}

func TestShutdownEndsStreams(t *testing.T) {
	srv := newTestServer(t, Config{})
	token := register(t, srv, "a@example.com")
	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events, body := openStream(ctx, t, ts, token)
	defer body.Close()
	nextEvent(ctx, t, events)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	select {
	case _, ok := <-events:
		if ok {
			t.Fatalf("unexpected event after shutdown")
		}
	case <-ctx.Done():
		t.Fatalf("stream still open after shutdown")
	}
}

// gatedStore holds QueryTransactions until release is closed.
type gatedStore struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) QueryTransactions(ctx context.Context, preds ...store.Predicate) ([]core.Transaction, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.Store.QueryTransactions(ctx, preds...)
}

func TestSharedOverviewLoadOutlivesFirstCaller(t *testing.T) {
	st := &gatedStore{Store: memory.New(), entered: make(chan struct{}, 1), release: make(chan struct{})}
	budget := services.NewBudgetService(st, st, nil)
	srv := NewServer(Config{RateLimitPerMinute: 1000}, budget, authmem.New(time.Hour, authmem.WithCost(bcrypt.MinCost)))
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		_ = budget.Close()
	})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := srv.monthOverview(firstCtx, "u1", 2024, 2)
		firstErr <- err
	}()
	<-st.entered
	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("first caller: %v", err)
	}

	secondErr := make(chan error, 1)
	go func() {
		_, err := srv.monthOverview(context.Background(), "u1", 2024, 2)
		secondErr <- err
	}()
	close(st.release)
	select {
	case err := <-secondErr:
		if err != nil {
			t.Fatalf("second caller: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("second caller never returned")
	}
	if srv.overviews.Size() != 1 {
		t.Fatalf("expected the shared load to be cached, size %d", srv.overviews.Size())
	}
}
