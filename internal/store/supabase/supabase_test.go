package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"voxafi/internal/store/storetest"
)

// fakePostgREST implements the subset of PostgREST the repository uses:
// eq filters, inserts, patches and deletes with return=representation.
type fakePostgREST struct {
	mu     sync.Mutex
	tables map[string][]map[string]any
}

func newFakePostgREST() *fakePostgREST {
	return &fakePostgREST{tables: map[string][]map[string]any{}}
}

func (f *fakePostgREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	table := strings.TrimPrefix(r.URL.Path, "/rest/v1/")
	f.mu.Lock()
	defer f.mu.Unlock()

	match := func(row map[string]any) bool {
		for key, vals := range r.URL.Query() {
			if key == "select" || key == "order" || key == "limit" {
				continue
			}
			want := strings.TrimPrefix(vals[0], "eq.")
			if got, _ := row[key].(string); got != want {
				return false
			}
		}
		return true
	}

	var out []map[string]any
	switch r.Method {
	case http.MethodGet:
		for _, row := range f.tables[table] {
			if match(row) {
				out = append(out, row)
			}
		}
	case http.MethodPost:
		var row map[string]any
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":"PGRST102","message":"invalid body"}`))
			return
		}
		f.tables[table] = append(f.tables[table], row)
		out = append(out, row)
	case http.MethodPatch:
		var patch map[string]any
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":"PGRST102","message":"invalid body"}`))
			return
		}
		for _, row := range f.tables[table] {
			if match(row) {
				for k, v := range patch {
					row[k] = v
				}
				out = append(out, row)
			}
		}
	case http.MethodDelete:
		kept := f.tables[table][:0]
		for _, row := range f.tables[table] {
			if match(row) {
				out = append(out, row)
			} else {
				kept = append(kept, row)
			}
		}
		f.tables[table] = kept
	}

	if strings.Contains(r.Header.Get("Prefer"), "return=minimal") {
		w.WriteHeader(http.StatusCreated)
		return
	}
	if out == nil {
		out = []map[string]any{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	srv := httptest.NewServer(newFakePostgREST())
	t.Cleanup(srv.Close)
	repo, err := NewRepository(srv.URL, "test-key")
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	return repo
}

func TestRepositoryConformance(t *testing.T) {
	storetest.Run(t, newTestRepo(t))
}

func TestNewRepositoryRequiresCredentials(t *testing.T) {
	if _, err := NewRepository("", ""); err == nil {
		t.Fatal("expected error for missing url and key")
	}
}

func TestPostgRESTErrorsAreWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"code":"XX000","message":"boom"}`))
	}))
	defer srv.Close()
	repo, err := NewRepository(srv.URL, "k")
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	_, err = repo.QueryTransactions(context.Background())
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected wrapped PostgREST error, got %v", err)
	}
}
