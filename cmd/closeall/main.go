package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/camuig/coin-trader/internal/config"
	"github.com/camuig/coin-trader/internal/exchange/factory"
	"github.com/camuig/coin-trader/internal/executor"
	"github.com/camuig/coin-trader/internal/logger"
	"github.com/camuig/coin-trader/internal/storage"
	"github.com/camuig/coin-trader/internal/telegram"
	"github.com/camuig/coin-trader/internal/trading"
	"github.com/camuig/coin-trader/internal/wallet"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	dbPath := flag.String("db", "", "path to SQLite database (overrides storage.path)")
	dryRun := flag.Bool("dry-run", false, "show positions without closing")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.Storage.Path = *dbPath
	}

	log := logger.NewWithFormat(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	db, err := storage.NewDatabase(cfg.Storage.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database init error: %v\n", err)
		os.Exit(1)
	}
	repo := storage.NewRepository(db, log)

	ctx := context.Background()
	gw, err := factory.New(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "exchange init error: %v\n", err)
		os.Exit(1)
	}
	defer gw.Close()

	models := make(map[string]*trading.Model, len(cfg.Trading.Models))
	for _, mc := range cfg.Trading.Models {
		m, err := trading.NewModel(mc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "model error: %v\n", err)
			os.Exit(1)
		}
		models[mc.ID] = m
	}

	positions, err := repo.LoadPositions(func(id string) *trading.Model { return models[id] })
	if err != nil {
		fmt.Fprintf(os.Stderr, "load positions error: %v\n", err)
		os.Exit(1)
	}
	account, err := repo.LoadAccount()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load account error: %v\n", err)
		os.Exit(1)
	}

	if len(positions) == 0 {
		fmt.Println("No open positions.")
		return
	}

	fmt.Printf("Found %d position(s):\n\n", len(positions))
	for _, p := range positions {
		fmt.Printf("  %s: %.8f, first %.8f, last %.8f, income %.2f%%\n",
			p.Symbol, p.Quantity, p.FirstPrice, p.LastPrice, p.Income())
	}
	fmt.Println()

	if *dryRun {
		fmt.Println("Dry run: no orders placed.")
		return
	}

	notifier := telegram.NewNotifier(cfg, log)
	exec := executor.NewExecutor(gw, repo, notifier, log)
	screener := trading.NewScreener(gw, cfg.Trading.ForecastConcurrency, log)
	settings := trading.NewSettings(cfg)

	w := wallet.NewManager(gw, exec, screener, repo, nil, settings, models[cfg.Trading.Model], log)
	w.Restore(positions, account)

	stats, err := w.LiquidateAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "liquidate error: %v\n", err)
		os.Exit(1)
	}

	for _, p := range w.Positions() {
		fmt.Fprintf(os.Stderr, "  [FAIL] %s still held: %.8f\n", p.Symbol, p.Quantity)
	}

	fmt.Printf("\nDone: %d closed, %d failed.\n", stats.Sold, stats.Failed+stats.Held)
	if stats.Failed+stats.Held > 0 {
		os.Exit(1)
	}
}
