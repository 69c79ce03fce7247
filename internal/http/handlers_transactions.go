package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"voxafi/internal/core"
	applog "voxafi/internal/log"
	"voxafi/internal/services"
)

const (
	defaultRecent = services.DashboardRecentCount
	maxRecent     = 50
)

// handleListTransactions lists the caller's transactions, optionally
// narrowed by category, type, and a year+month pair.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := services.TransactionFilter{Category: sanitizeInput(q.Get("category"))}
	if t := strings.TrimSpace(q.Get("type")); t != "" {
		typ, err := core.ParseType(t)
		if err != nil {
			writeError(w, r, applog.OpList, err)
			return
		}
		filter.Type = typ
	}

	ctx, cancel := withTimeout(r)
	defer cancel()
	txs, err := s.budget.Transactions(ctx, userID(r), filter)
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	if q.Has("year") || q.Has("month") {
		p, err := ParseMonthParams(q, s.now())
		if err != nil {
			writeError(w, r, applog.OpList, err)
			return
		}
		txs = core.FilterByMonth(txs, p.Year, p.Month)
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var in core.TransactionInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	in.Description = sanitizeInput(in.Description)
	in.Category = sanitizeInput(in.Category)

	ctx, cancel := withTimeout(r)
	defer cancel()
	tx, err := s.budget.AddTransaction(ctx, userID(r), in)
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	s.invalidate(tx.UserID)
	applog.FromContext(ctx).InfoContext(ctx, "Transaction created", applog.NewFields().WithTransaction(tx).ToSlice()...)
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/transactions/"+tx.ID).
		Body(tx).
		Write(w)
}

func (s *Server) handleRecentTransactions(w http.ResponseWriter, r *http.Request) {
	n, err := parseLimit(r.URL.Query(), "n", defaultRecent, maxRecent)
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()
	txs, err := s.budget.RecentTransactions(ctx, userID(r), n)
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()
	tx, err := s.budget.Transaction(ctx, userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var in core.TransactionPatchInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	patch, err := in.ToPatch()
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()
	tx, err := s.budget.UpdateTransaction(ctx, userID(r), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	s.invalidate(tx.UserID)
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()
	uid := userID(r)
	if err := s.budget.DeleteTransaction(ctx, uid, r.PathValue("id")); err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	s.invalidate(uid)
	w.WriteHeader(http.StatusNoContent)
}

// handleStreamTransactions pushes the caller's full transaction list as
// server-sent events: once on connect and again after every change.
func (s *Server) handleStreamTransactions(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		ErrorResponse(http.StatusInternalServerError, "streaming unsupported").Write(w)
		return
	}

	ctx := r.Context()
	// Every update is a full snapshot, so only the newest pending one matters.
	var mu sync.Mutex
	updates := make(chan []core.Transaction, 1)
	cancel, err := s.budget.WatchTransactions(ctx, userID(r), func(txs []core.Transaction) {
		mu.Lock()
		defer mu.Unlock()
		select {
		case <-updates:
		default:
		}
		updates <- txs
	})
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.streams.Done():
			return
		case txs := <-updates:
			if txs == nil {
				txs = []core.Transaction{}
			}
			data, err := json.Marshal(txs)
			if err != nil {
				applog.LogError(ctx, "Failed to encode stream update", err, applog.OpList, nil)
				return
			}
			if _, err := w.Write([]byte("event: transactions\ndata: " + string(data) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
