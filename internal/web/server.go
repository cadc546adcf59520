package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/camuig/coin-trader/internal/config"
	"github.com/camuig/coin-trader/internal/logger"
	"github.com/camuig/coin-trader/internal/remote"
	"github.com/camuig/coin-trader/internal/storage"
	"github.com/camuig/coin-trader/internal/trading"
	"github.com/camuig/coin-trader/internal/wallet"
)

type Server struct {
	httpServer *http.Server
	router     *mux.Router
	wallet     *wallet.Manager
	settings   *trading.Settings
	applier    *remote.Applier
	hub        *remote.Hub
	repo       *storage.Repository
	config     *config.Config
	logger     *logger.Logger
}

func NewServer(
	w *wallet.Manager,
	settings *trading.Settings,
	applier *remote.Applier,
	hub *remote.Hub,
	repo *storage.Repository,
	cfg *config.Config,
	log *logger.Logger,
) *Server {
	s := &Server{
		wallet:   w,
		settings: settings,
		applier:  applier,
		hub:      hub,
		repo:     repo,
		config:   cfg,
		logger:   log,
	}

	r := mux.NewRouter()
	r.Use(s.recovery)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/wallet", s.handleWallet).Methods(http.MethodGet)
	api.HandleFunc("/checking", s.handleChecking).Methods(http.MethodGet)
	api.HandleFunc("/coins", s.handleCoins).Methods(http.MethodGet)
	api.HandleFunc("/account", s.handleAccount).Methods(http.MethodGet)
	api.HandleFunc("/transactions", s.handleTransactions).Methods(http.MethodGet)
	api.HandleFunc("/commands", s.handleCommand).Methods(http.MethodPost)
	api.HandleFunc("/trader/{action:enable|disable}", s.handleTrader).Methods(http.MethodPost)
	api.HandleFunc("/positions/{index}/sell", s.handleForceSell).Methods(http.MethodPost)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	if hub != nil {
		r.HandleFunc("/ws", hub.ServeWS)
	}
	s.router = r

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Web.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("web server starting", "port", s.config.Web.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic in http handler", "path", r.URL.Path, "panic", fmt.Sprint(rec))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
