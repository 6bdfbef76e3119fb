// Package http exposes the ledger over a JSON API. Routing and input
// parsing live here; all business rules stay in the services and reports
// packages.
package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"tally/internal/cache"
	"tally/internal/middleware/trace"
	"tally/internal/services"
	"tally/internal/storage"
)

type Server struct {
	http.Server

	ledger   *services.LedgerService
	accounts *services.AccountService
	repo     storage.Repository

	// Cached report payloads, keyed per owner so a ledger write can
	// invalidate one owner's reports without touching the rest.
	reportCache  *cache.LRUCache[any]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// Options tunes server construction.
type Options struct {
	Addr      string
	CacheSize int
	CacheTTL  time.Duration
}

// NewServer configures routes and caches, returning a ready-to-run server.
func NewServer(opts Options, ledger *services.LedgerService, accounts *services.AccountService, repo storage.Repository) *Server {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}

	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		ledger:       ledger,
		accounts:     accounts,
		repo:         repo,
		reportCache:  cache.NewLRUCache[any](opts.CacheSize, opts.CacheTTL),
		cacheManager: cache.NewManager(),
	}

	s.cacheManager.Register(s.reportCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	tracer := trace.NewMiddleware(func(r *http.Request) string { return clientIP(r) })
	s.Server.Handler = tracer.Middleware(mux)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /accounts", s.handleCreateAccount)
	mux.HandleFunc("GET /accounts", s.handleListAccounts)
	mux.HandleFunc("GET /accounts/{id}", s.handleGetAccount)
	mux.HandleFunc("PUT /accounts/{id}", s.handleUpdateAccount)
	mux.HandleFunc("DELETE /accounts/{id}", s.handleDeleteAccount)
	mux.HandleFunc("GET /account-templates", s.handleListTemplates)
	mux.HandleFunc("POST /account-templates/{id}", s.handleApplyTemplate)

	mux.HandleFunc("POST /transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /transactions", s.handleListTransactions)
	mux.HandleFunc("GET /transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("PUT /transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /transactions/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("POST /transactions/import", s.handleImportTransactions)

	mux.HandleFunc("GET /categories", s.handleListCategories)
	mux.HandleFunc("POST /categories", s.handleCreateCategory)

	mux.HandleFunc("GET /reports/balance-sheet", s.handleBalanceSheet)
	mux.HandleFunc("GET /reports/income-statement", s.handleIncomeStatement)
	mux.HandleFunc("GET /reports/spending", s.handleSpending)
	mux.HandleFunc("GET /reports/stats", s.handleStats)
	mux.HandleFunc("GET /reports/net-worth-history", s.handleNetWorthHistory)
	mux.HandleFunc("GET /reports/debts", s.handleDebts)

	return s
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	// Readiness means the repository answers a trivial scoped read.
	if _, err := s.repo.ListAccounts(r.Context(), 0); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// reportCacheKey namespaces cached reports per owner.
func reportCacheKey(userID int64, report string, params ...any) string {
	key := fmt.Sprintf("u:%d:%s", userID, report)
	for _, p := range params {
		key += fmt.Sprintf(":%v", p)
	}
	return key
}

// invalidateReports drops every cached report of one owner. Called after
// any write that can change an aggregate.
func (s *Server) invalidateReports(userID int64) {
	s.reportCache.DeleteByPrefix(fmt.Sprintf("u:%d:", userID))
}
