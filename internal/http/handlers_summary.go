package http

import (
	"errors"
	"net/http"
	"sort"

	"voxafi/internal/charts"
	"voxafi/internal/core"
	applog "voxafi/internal/log"
)

type monthSummary struct {
	Year    int    `json:"year"`
	Month   int    `json:"month"`
	Income  string `json:"income"`
	Expense string `json:"expense"`
	Balance string `json:"balance"`
}

func (s *Server) handleMonthSummary(w http.ResponseWriter, r *http.Request) {
	p, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, applog.OpSummary, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()
	ov, err := s.monthOverview(ctx, userID(r), p.Year, p.Month)
	if err != nil {
		writeError(w, r, applog.OpSummary, err)
		return
	}
	if r.URL.Query().Get("detail") == "full" {
		writeJSON(w, http.StatusOK, ov)
		return
	}
	writeJSON(w, http.StatusOK, monthSummary{
		Year:    ov.Year,
		Month:   ov.Month,
		Income:  core.FormatAmount(ov.Totals.Income),
		Expense: core.FormatAmount(ov.Totals.Expense),
		Balance: core.FormatAmount(ov.Totals.Balance()),
	})
}

// handleCategorySummary returns the month's expense breakdown, largest first.
func (s *Server) handleCategorySummary(w http.ResponseWriter, r *http.Request) {
	p, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, applog.OpSummary, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()
	totals, err := s.budget.CategoryTotals(ctx, userID(r), p.Year, p.Month)
	if err != nil {
		writeError(w, r, applog.OpSummary, err)
		return
	}
	out := make([]core.CategoryAmount, 0, len(totals))
	for name, amount := range totals {
		out = append(out, core.CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()
	d, err := s.budget.Dashboard(ctx, userID(r), s.now())
	if err != nil {
		writeError(w, r, applog.OpSummary, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleCategoryChart(w http.ResponseWriter, r *http.Request) {
	s.renderChart(w, r, func(ov core.MonthOverview) ([]byte, error) {
		return charts.CategoryPie(ov)
	})
}

func (s *Server) handleTotalsChart(w http.ResponseWriter, r *http.Request) {
	s.renderChart(w, r, func(ov core.MonthOverview) ([]byte, error) {
		return charts.TotalsBars(ov.Year, ov.Month, ov.Totals)
	})
}

// renderChart draws the requested month as PNG. An empty month is 204.
func (s *Server) renderChart(w http.ResponseWriter, r *http.Request, draw func(core.MonthOverview) ([]byte, error)) {
	p, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, applog.OpSummary, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()
	ov, err := s.monthOverview(ctx, userID(r), p.Year, p.Month)
	if err != nil {
		writeError(w, r, applog.OpSummary, err)
		return
	}
	png, err := draw(ov)
	if errors.Is(err, charts.ErrNoData) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		writeError(w, r, applog.OpSummary, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=60")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
