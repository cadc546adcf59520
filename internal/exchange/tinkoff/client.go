// Package tinkoff implements exchange.Gateway for MOEX shares traded through
// the Tinkoff Invest API. Market-wide data comes from MOEX ISS.
package tinkoff

import (
	"context"
	"fmt"
	"sync"

	"github.com/russianinvestments/invest-api-go-sdk/investgo"

	"github.com/camuig/coin-trader/internal/config"
	"github.com/camuig/coin-trader/internal/exchange"
	"github.com/camuig/coin-trader/internal/logger"
	"github.com/camuig/coin-trader/internal/moex"
)

const (
	sandboxEndpoint = "sandbox-invest-public-api.tinkoff.ru:443"
	liveEndpoint    = "invest-public-api.tinkoff.ru:443"

	// Quote is the settlement currency of every TQBR share.
	Quote = "RUB"
)

var _ exchange.Gateway = (*Gateway)(nil)

type Gateway struct {
	client   *investgo.Client
	market   *moex.Client
	sandbox  bool
	universe int
	logger   *logger.Logger

	mu      sync.RWMutex
	uids    map[string]string // ticker -> instrument uid
	tickers map[string]string // instrument uid -> ticker
	lots    map[string]int64  // ticker -> lot size
}

func NewGateway(ctx context.Context, cfg config.ExchangeConfig, market *moex.Client, log *logger.Logger) (*Gateway, error) {
	endpoint := liveEndpoint
	if cfg.Sandbox {
		endpoint = sandboxEndpoint
	}

	investCfg := investgo.Config{
		EndPoint:  endpoint,
		Token:     cfg.Token,
		AccountId: cfg.AccountID,
		AppName:   "coin-trader",
	}

	client, err := investgo.NewClient(ctx, investCfg, log)
	if err != nil {
		return nil, fmt.Errorf("create investgo client: %w", err)
	}

	g := &Gateway{
		client:   client,
		market:   market,
		sandbox:  cfg.Sandbox,
		universe: cfg.UniverseSize,
		logger:   log.Component("tinkoff"),
		uids:     make(map[string]string),
		tickers:  make(map[string]string),
		lots:     make(map[string]int64),
	}

	if cfg.Sandbox && cfg.AccountID == "" {
		if err := g.setupSandbox(); err != nil {
			return nil, fmt.Errorf("setup sandbox: %w", err)
		}
	}

	return g, nil
}

func (g *Gateway) setupSandbox() error {
	sandbox := g.client.NewSandboxServiceClient()

	// Top up sandbox account with 1,000,000 RUB
	_, err := sandbox.SandboxPayIn(&investgo.SandboxPayInRequest{
		AccountId: g.client.Config.AccountId,
		Currency:  Quote,
		Unit:      1000000,
		Nano:      0,
	})
	if err != nil {
		return fmt.Errorf("sandbox pay in: %w", err)
	}

	g.logger.Info("sandbox account funded", "account_id", g.client.Config.AccountId)
	return nil
}

func (g *Gateway) Name() string { return "tinkoff" }

func (g *Gateway) AccountID() string {
	return g.client.Config.AccountId
}

func (g *Gateway) Stop() error {
	return g.client.Stop()
}
