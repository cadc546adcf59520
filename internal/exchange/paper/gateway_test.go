package paper

import (
	"context"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/camuig/coin-trader/internal/exchange"
	"github.com/camuig/coin-trader/internal/exchange/exchangetest"
	"github.com/camuig/coin-trader/internal/logger"
)

func newPaper(t *testing.T, feePct float64) (*Gateway, *exchangetest.Gateway) {
	t.Helper()
	market := exchangetest.New()
	market.AddTicker("BTC", "USDT", 50000, 1)
	market.AddTicker("ETH", "BTC", 0.05, -1)
	return New(market, map[string]float64{"USDT": 100}, feePct, logger.Discard()), market
}

func order(symbol string, side exchange.Side, qty string) exchange.OrderRequest {
	return exchange.OrderRequest{Symbol: symbol, Side: side, Quantity: decimal.RequireFromString(qty)}
}

func TestGateway_BuyThenSell(t *testing.T) {
	g, market := newPaper(t, 0)
	ctx := context.Background()

	res, err := g.PlaceMarketOrder(ctx, order("BTCUSDT", exchange.SideBuy, "0.001"))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if !res.Success || res.OrderID == "" || res.ExecutedPrice != 50000 {
		t.Fatalf("unexpected buy result %+v", res)
	}

	balances, _ := g.Balances(ctx)
	if math.Abs(balances["USDT"]-50) > 1e-9 || math.Abs(balances["BTC"]-0.001) > 1e-12 {
		t.Fatalf("balances after buy = %v", balances)
	}

	market.SetPrice("BTCUSDT", 60000)
	res, err = g.PlaceMarketOrder(ctx, order("BTCUSDT", exchange.SideSell, "0.001"))
	if err != nil || !res.Success {
		t.Fatalf("sell: %+v, %v", res, err)
	}

	balances, _ = g.Balances(ctx)
	if math.Abs(balances["USDT"]-110) > 1e-9 {
		t.Errorf("USDT after sell = %v, want 110", balances["USDT"])
	}
	if _, ok := balances["BTC"]; ok {
		t.Errorf("empty BTC balance must be omitted, got %v", balances)
	}

	fills := g.Fills()
	if len(fills) != 2 || fills[0].OrderID == fills[1].OrderID {
		t.Errorf("fills = %+v", fills)
	}
	if market.OrderCount() != 0 {
		t.Error("paper orders must never reach the market gateway")
	}
}

func TestGateway_Fee(t *testing.T) {
	tests := []struct {
		name       string
		feePct     float64
		buy        string
		wantQty    string
		wantBase   float64
		wantFeeSet bool
	}{
		{"no fee", 0, "0.001", "0.001", 0.001, false},
		{"fee taken from bought asset", 0.1, "0.001", "0.000999", 0.000999, true},
		{"larger order", 0.1, "0.0015", "0.0014985", 0.0014985, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, market := newPaper(t, tt.feePct)
			market.SetConstraints("BTCUSDT", exchange.Constraints{
				StepSize:    decimal.RequireFromString("0.0000001"),
				MinQty:      decimal.RequireFromString("0.0000001"),
				MinNotional: decimal.NewFromInt(1),
			})
			ctx := context.Background()

			res, err := g.PlaceMarketOrder(ctx, order("BTCUSDT", exchange.SideBuy, tt.buy))
			if err != nil || !res.Success {
				t.Fatalf("buy: %+v, %v", res, err)
			}
			if !res.ExecutedQty.Equal(decimal.RequireFromString(tt.wantQty)) {
				t.Errorf("ExecutedQty = %s, want %s", res.ExecutedQty, tt.wantQty)
			}
			balances, _ := g.Balances(ctx)
			if math.Abs(balances["BTC"]-tt.wantBase) > 1e-12 {
				t.Errorf("BTC after fee = %v, want %v", balances["BTC"], tt.wantBase)
			}
			if (g.Fills()[0].Fee != 0) != tt.wantFeeSet {
				t.Errorf("fee = %v", g.Fills()[0].Fee)
			}

			// the reported quantity is exactly what can be sold back
			sell, err := g.PlaceMarketOrder(ctx, exchange.OrderRequest{Symbol: "BTCUSDT", Side: exchange.SideSell, Quantity: res.ExecutedQty})
			if err != nil || !sell.Success {
				t.Fatalf("selling the executed quantity: %+v, %v", sell, err)
			}
		})
	}
}

func TestGateway_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		req      exchange.OrderRequest
		wantCode string
	}{
		{"insufficient quote", order("BTCUSDT", exchange.SideBuy, "0.01"), CodeInsufficientBalance},
		{"insufficient base", order("BTCUSDT", exchange.SideSell, "0.001"), CodeInsufficientBalance},
		{"below min notional", order("BTCUSDT", exchange.SideBuy, "0.0001"), CodeFilterFailure},
		{"below min qty", order("BTCUSDT", exchange.SideBuy, "0.0005"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, market := newPaper(t, 0)
			if tt.wantCode == "" {
				market.SetConstraints("BTCUSDT", exchange.Constraints{
					StepSize:    decimal.RequireFromString("0.001"),
					MinQty:      decimal.RequireFromString("0.001"),
					MinNotional: decimal.NewFromInt(1),
				})
				tt.wantCode = CodeFilterFailure
			}

			res, err := g.PlaceMarketOrder(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("PlaceMarketOrder: %v", err)
			}
			if res.Success || res.ErrorCode != tt.wantCode {
				t.Errorf("result = %+v, want code %s", res, tt.wantCode)
			}
			if len(g.Fills()) != 0 {
				t.Error("rejected order produced a fill")
			}
		})
	}
}

func TestGateway_UnknownSymbol(t *testing.T) {
	g, _ := newPaper(t, 0)
	if _, err := g.PlaceMarketOrder(context.Background(), order("XYZUSDT", exchange.SideBuy, "1")); err == nil {
		t.Error("expected error for unknown symbol")
	}
}

func TestGateway_DelegatesMarketData(t *testing.T) {
	g, market := newPaper(t, 0)
	market.SetForecast("BTCUSDT", 3.5)

	if g.Name() != "paper:test" {
		t.Errorf("Name = %q", g.Name())
	}
	score, err := g.Forecast(context.Background(), "BTCUSDT", 10)
	if err != nil || score != 3.5 {
		t.Errorf("Forecast = %v, %v", score, err)
	}
	prices, _ := g.Prices(context.Background())
	if prices["ETHBTC"] != 0.05 {
		t.Errorf("Prices = %v", prices)
	}
	if err := g.SetCredentials("k", "s"); err == nil {
		t.Error("test market has no credentials, expected error")
	}
}
