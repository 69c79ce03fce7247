// Package http serves the budgeting JSON API.
package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"voxafi/internal/auth"
	"voxafi/internal/cache"
	"voxafi/internal/core"
	applog "voxafi/internal/log"
	"voxafi/internal/middleware/ratelimit"
	"voxafi/internal/middleware/security"
	"voxafi/internal/middleware/trace"
	"voxafi/internal/services"
)

const (
	overviewCacheSize = 500
	janitorInterval   = time.Minute
	requestTimeout    = 15 * time.Second
)

type Config struct {
	Addr               string
	RateLimitPerMinute int
	OverviewCacheTTL   time.Duration
	// Ready reports whether backing services are reachable. Nil means always ready.
	Ready  func(ctx context.Context) error
	Logger *applog.Logger
	// Now is the clock used for default months and the dashboard.
	Now func() time.Time
}

type Server struct {
	http.Server
	budget *services.BudgetService
	auth   auth.Provider

	overviews *cache.LRUCache[core.MonthOverview]
	loads     singleflight.Group

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	janitor  *cache.Manager

	ready func(ctx context.Context) error
	now   func() time.Time

	// streams is cancelled on shutdown so open event streams return.
	streams      context.Context
	stopStreams  context.CancelFunc
	stopJanitor  context.CancelFunc
	shutdownOnce sync.Once
}

func NewServer(cfg Config, budget *services.BudgetService, provider auth.Provider) *Server {
	if cfg.Logger == nil {
		cfg.Logger = applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.OverviewCacheTTL <= 0 {
		cfg.OverviewCacheTTL = 5 * time.Minute
	}

	s := &Server{
		budget:    budget,
		auth:      provider,
		overviews: cache.NewLRUCache[core.MonthOverview](overviewCacheSize, cfg.OverviewCacheTTL),
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		detector:  security.NewDetector(),
		janitor:   cache.NewManager(),
		ready:     cfg.Ready,
		now:       cfg.Now,
	}
	s.tracer = trace.NewMiddleware(cfg.Logger, s.detector.ClientIP)

	s.janitor.Register("overviews", s.overviews)
	s.janitor.Register("rate_limit", s.limiter)
	if c, ok := provider.(cache.Cleaner); ok {
		s.janitor.Register("sessions", c)
	}
	s.streams, s.stopStreams = context.WithCancel(context.Background())
	ctx, cancel := context.WithCancel(context.Background())
	s.stopJanitor = cancel
	s.janitor.Start(ctx, janitorInterval)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.Handle("POST /api/auth/logout", s.requireUser(s.handleLogout))
	mux.Handle("GET /api/auth/me", s.requireUser(s.handleMe))

	mux.Handle("GET /api/transactions", s.requireUser(s.handleListTransactions))
	mux.Handle("POST /api/transactions", s.requireUser(s.handleCreateTransaction))
	mux.Handle("GET /api/transactions/recent", s.requireUser(s.handleRecentTransactions))
	mux.Handle("GET /api/transactions/stream", s.requireUser(s.handleStreamTransactions))
	mux.Handle("GET /api/transactions/{id}", s.requireUser(s.handleGetTransaction))
	mux.Handle("PATCH /api/transactions/{id}", s.requireUser(s.handleUpdateTransaction))
	mux.Handle("DELETE /api/transactions/{id}", s.requireUser(s.handleDeleteTransaction))

	mux.Handle("GET /api/summary/month", s.requireUser(s.handleMonthSummary))
	mux.Handle("GET /api/summary/categories", s.requireUser(s.handleCategorySummary))
	mux.Handle("GET /api/dashboard", s.requireUser(s.handleDashboard))
	mux.Handle("GET /api/charts/categories.png", s.requireUser(s.handleCategoryChart))
	mux.Handle("GET /api/charts/totals.png", s.requireUser(s.handleTotalsChart))

	mux.Handle("GET /api/categories", s.requireUser(s.handleListCategories))
	mux.Handle("POST /api/categories", s.requireUser(s.handleCreateCategory))
	mux.Handle("PATCH /api/categories/{id}", s.requireUser(s.handleUpdateCategory))
	mux.Handle("DELETE /api/categories/{id}", s.requireUser(s.handleDeleteCategory))

	var h http.Handler = mux
	h = s.limiter.Middleware(s.detector.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, retry later").Write(w)
	})(h)
	h = s.detector.Middleware(h)
	h = security.Headers(security.DefaultHeadersConfig())(h)
	return s.tracer.Handler(h)
}

// Shutdown ends open event streams, stops background sweeps and drains
// in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.stopStreams()
		s.stopJanitor()
		s.janitor.Wait()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

type healthBody struct {
	Status            string `json:"status"`
	Requests          int64  `json:"requests"`
	AverageDurationMs int64  `json:"averageDurationMs"`
	RateLimited       int64  `json:"rateLimited"`
	Clients           int    `json:"clients"`
	Suspicious        int64  `json:"suspicious"`
	CachedOverviews   int    `json:"cachedOverviews"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	tm := s.tracer.Metrics()
	rl := s.limiter.Metrics()
	writeJSON(w, http.StatusOK, healthBody{
		Status:            "ok",
		Requests:          tm.TotalRequests,
		AverageDurationMs: tm.AverageDuration.Milliseconds(),
		RateLimited:       rl.Rejected,
		Clients:           rl.ClientCount,
		Suspicious:        s.detector.SuspiciousCount(),
		CachedOverviews:   s.overviews.Size(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "not ready").Write(w)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func overviewKey(userID string, year, month int) string {
	return userID + "|" + strconv.Itoa(year) + "-" + strconv.Itoa(month)
}

// monthOverview serves overviews from the cache. Concurrent misses for the
// same key share one store query, detached from the first caller's
// cancellation so a departing client cannot fail the other waiters.
func (s *Server) monthOverview(ctx context.Context, userID string, year, month int) (core.MonthOverview, error) {
	key := overviewKey(userID, year, month)
	if ov, ok := s.overviews.Get(key); ok {
		return ov, nil
	}
	ch := s.loads.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requestTimeout)
		defer cancel()
		ov, err := s.budget.MonthOverview(loadCtx, userID, year, month)
		if err != nil {
			return core.MonthOverview{}, fmt.Errorf("load overview: %w", err)
		}
		s.overviews.Set(key, ov)
		return ov, nil
	})
	select {
	case <-ctx.Done():
		return core.MonthOverview{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return core.MonthOverview{}, res.Err
		}
		return res.Val.(core.MonthOverview), nil
	}
}

// invalidate drops every cached overview of userID. An update can move a
// transaction between months, so the whole user namespace goes.
func (s *Server) invalidate(userID string) {
	s.overviews.DeletePrefix(userID + "|")
}

func withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), requestTimeout)
}
