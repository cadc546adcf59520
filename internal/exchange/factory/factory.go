// Package factory builds the exchange gateway selected by configuration.
package factory

import (
	"context"
	"fmt"

	"github.com/camuig/coin-trader/internal/config"
	"github.com/camuig/coin-trader/internal/exchange"
	"github.com/camuig/coin-trader/internal/exchange/binance"
	"github.com/camuig/coin-trader/internal/exchange/paper"
	"github.com/camuig/coin-trader/internal/exchange/tinkoff"
	"github.com/camuig/coin-trader/internal/logger"
	"github.com/camuig/coin-trader/internal/moex"
)

// Gateway bundles the configured gateway with its optional capabilities.
type Gateway struct {
	exchange.Gateway

	// Credentials is nil when the gateway cannot rotate API keys.
	Credentials exchange.CredentialSetter

	stop func() error
}

// Close releases connections held by the underlying client.
func (g *Gateway) Close() error {
	if g.stop == nil {
		return nil
	}
	return g.stop()
}

// New connects to the exchange named in cfg.Exchange.Name and wraps it in
// the paper simulator when paper trading is enabled.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Gateway, error) {
	out := &Gateway{}

	var market exchange.Gateway
	switch cfg.Exchange.Name {
	case "binance":
		market = binance.NewClient(cfg.Exchange.APIKey, cfg.Exchange.APISecret, cfg.Exchange.BaseURL, log)
	case "tinkoff":
		tg, err := tinkoff.NewGateway(ctx, cfg.Exchange, moex.NewClient("", log), log)
		if err != nil {
			return nil, fmt.Errorf("tinkoff gateway: %w", err)
		}
		market = tg
		out.stop = tg.Stop
	default:
		return nil, fmt.Errorf("unknown exchange %q", cfg.Exchange.Name)
	}

	out.Gateway = market
	if cfg.IsPaper() {
		out.Gateway = paper.New(market, cfg.Exchange.Paper.Balances, cfg.Exchange.Paper.FeePct, log)
	}

	if cs, ok := market.(exchange.CredentialSetter); ok {
		out.Credentials = cs
	}
	return out, nil
}
