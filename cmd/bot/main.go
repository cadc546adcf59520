package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camuig/coin-trader/internal/config"
	"github.com/camuig/coin-trader/internal/exchange/factory"
	"github.com/camuig/coin-trader/internal/executor"
	"github.com/camuig/coin-trader/internal/logger"
	"github.com/camuig/coin-trader/internal/remote"
	"github.com/camuig/coin-trader/internal/scheduler"
	"github.com/camuig/coin-trader/internal/storage"
	"github.com/camuig/coin-trader/internal/telegram"
	"github.com/camuig/coin-trader/internal/trading"
	"github.com/camuig/coin-trader/internal/wallet"
	"github.com/camuig/coin-trader/internal/web"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	dbPath := flag.String("db", "", "path to SQLite database (overrides storage.path)")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.Storage.Path = *dbPath
	}

	// Init logger
	log := logger.NewWithFormat(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)

	mode := "LIVE"
	switch {
	case cfg.IsPaper():
		mode = "PAPER"
	case cfg.IsSandbox():
		mode = "SANDBOX"
	}
	log.Info("starting coin-trader", "exchange", cfg.Exchange.Name, "mode", mode)

	// Init database
	db, err := storage.NewDatabase(cfg.Storage.Path)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	repo := storage.NewRepository(db, log.Component("storage"))

	// Context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw, err := factory.New(ctx, cfg, log)
	if err != nil {
		log.Error("exchange gateway init failed", "error", err)
		os.Exit(1)
	}
	log.Info("exchange gateway ready", "gateway", gw.Name())

	// Trading model and runtime settings
	models, err := buildModels(cfg)
	if err != nil {
		log.Error("trading model invalid", "error", err)
		os.Exit(1)
	}
	model := models[cfg.Trading.Model]
	settings := trading.NewSettings(cfg)

	// Init services
	notifier := telegram.NewNotifier(cfg, log.Component("telegram"))
	exec := executor.NewExecutor(gw, repo, notifier, log.Component("executor"))
	screener := trading.NewScreener(gw, cfg.Trading.ForecastConcurrency, log.Component("screener"))

	queue := remote.NewQueue()
	applier := remote.NewApplier(settings, gw.Credentials, log.Component("remote"))
	hub := remote.NewHub(queue, cfg.Web.AllowedOrigins, log.Component("hub"))

	w := wallet.NewManager(gw, exec, screener, repo, hub, settings, model, log.Component("wallet"))
	if err := restoreWallet(w, repo, models); err != nil {
		log.Error("restore wallet failed", "error", err)
		os.Exit(1)
	}

	sched := scheduler.NewScheduler(w, settings, queue, applier, repo, notifier, log.Component("scheduler"))
	webServer := web.NewServer(w, settings, applier, hub, repo, cfg, log.Component("web"))

	go hub.Run(ctx)
	go notifier.Listen(ctx, queue)
	go sched.Run(ctx)

	// Start web server in goroutine
	go func() {
		if err := webServer.Start(); err != nil {
			log.Error("web server error", "error", err)
		}
	}()

	notifier.NotifyStatus(fmt.Sprintf("🤖 Coin-Trader запущен (%s, %s)", gw.Name(), mode))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", "signal", sig.String())

	// Graceful shutdown
	cancel() // stop scheduler, hub and telegram listener

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error("web server shutdown error", "error", err)
	}

	if err := gw.Close(); err != nil {
		log.Error("exchange gateway stop error", "error", err)
	}

	notifier.NotifyStatus("🛑 Coin-Trader остановлен")
	log.Info("coin-trader stopped")
}

// buildModels validates every configured model, keyed by id.
func buildModels(cfg *config.Config) (map[string]*trading.Model, error) {
	models := make(map[string]*trading.Model, len(cfg.Trading.Models))
	for _, mc := range cfg.Trading.Models {
		m, err := trading.NewModel(mc)
		if err != nil {
			return nil, err
		}
		models[mc.ID] = m
	}
	return models, nil
}

func restoreWallet(w *wallet.Manager, repo *storage.Repository, models map[string]*trading.Model) error {
	positions, err := repo.LoadPositions(func(id string) *trading.Model { return models[id] })
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}
	account, err := repo.LoadAccount()
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	w.Restore(positions, account)
	return nil
}
