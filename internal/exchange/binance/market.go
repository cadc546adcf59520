package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/camuig/coin-trader/internal/exchange"
)

var (
	_ exchange.Gateway          = (*Client)(nil)
	_ exchange.CredentialSetter = (*Client)(nil)
)

// Ticker24hr is one row of /api/v3/ticker/24hr.
type Ticker24hr struct {
	Symbol             string  `json:"symbol"`
	PriceChangePercent float64 `json:"priceChangePercent,string"`
	LastPrice          float64 `json:"lastPrice,string"`
	QuoteVolume        float64 `json:"quoteVolume,string"`
}

type tickerPrice struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price,string"`
}

// SymbolFilter is an entry of a symbol's filters array. Only the fields used
// for order sizing are decoded.
type SymbolFilter struct {
	FilterType  string `json:"filterType"`
	MinQty      string `json:"minQty,omitempty"`
	MaxQty      string `json:"maxQty,omitempty"`
	StepSize    string `json:"stepSize,omitempty"`
	MinNotional string `json:"minNotional,omitempty"`
}

type SymbolInfo struct {
	Symbol               string         `json:"symbol"`
	Status               string         `json:"status"`
	BaseAsset            string         `json:"baseAsset"`
	QuoteAsset           string         `json:"quoteAsset"`
	IsSpotTradingAllowed bool           `json:"isSpotTradingAllowed"`
	Filters              []SymbolFilter `json:"filters"`
}

type ExchangeInfo struct {
	Symbols []SymbolInfo `json:"symbols"`
}

// symbolInfo returns the cached exchangeInfo entry, reloading the whole
// table once it is older than exchangeInfoTTL.
func (c *Client) symbolInfo(ctx context.Context) (map[string]SymbolInfo, error) {
	c.infoMu.Lock()
	defer c.infoMu.Unlock()

	if c.symbols != nil && c.now().Sub(c.infoLoaded) < exchangeInfoTTL {
		return c.symbols, nil
	}

	var info ExchangeInfo
	if err := c.getJSON(ctx, "/api/v3/exchangeInfo", nil, false, &info); err != nil {
		if c.symbols != nil {
			c.logger.Warn("exchange info refresh failed, using cached table", "error", err)
			return c.symbols, nil
		}
		return nil, fmt.Errorf("exchange info: %w", err)
	}

	symbols := make(map[string]SymbolInfo, len(info.Symbols))
	for _, s := range info.Symbols {
		symbols[s.Symbol] = s
	}
	c.symbols = symbols
	c.infoLoaded = c.now()
	c.logger.Debug("exchange info loaded", "symbols", len(symbols))
	return symbols, nil
}

// Tickers joins 24h statistics with exchangeInfo so every ticker carries
// its base and quote asset.
func (c *Client) Tickers(ctx context.Context) ([]exchange.Ticker, error) {
	symbols, err := c.symbolInfo(ctx)
	if err != nil {
		return nil, err
	}

	var stats []Ticker24hr
	if err := c.getJSON(ctx, "/api/v3/ticker/24hr", nil, false, &stats); err != nil {
		return nil, fmt.Errorf("24hr tickers: %w", err)
	}

	tickers := make([]exchange.Ticker, 0, len(stats))
	for _, s := range stats {
		info, ok := symbols[s.Symbol]
		if !ok {
			continue
		}
		tickers = append(tickers, exchange.Ticker{
			Symbol:    s.Symbol,
			Base:      info.BaseAsset,
			Quote:     info.QuoteAsset,
			Price:     s.LastPrice,
			Change24h: s.PriceChangePercent,
			Tradable:  info.Status == "TRADING" && info.IsSpotTradingAllowed,
		})
	}
	return tickers, nil
}

// Prices returns the last price of every symbol in a single request.
func (c *Client) Prices(ctx context.Context) (map[string]float64, error) {
	var rows []tickerPrice
	if err := c.getJSON(ctx, "/api/v3/ticker/price", nil, false, &rows); err != nil {
		return nil, fmt.Errorf("ticker prices: %w", err)
	}
	prices := make(map[string]float64, len(rows))
	for _, r := range rows {
		prices[r.Symbol] = r.Price
	}
	return prices, nil
}

// Closes returns up to limit daily close prices, oldest first.
func (c *Client) Closes(ctx context.Context, symbol string, limit int) ([]float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", "1d")
	params.Set("limit", strconv.Itoa(limit))

	var raw [][]any
	if err := c.getJSON(ctx, "/api/v3/klines", params, false, &raw); err != nil {
		return nil, fmt.Errorf("klines %s: %w", symbol, err)
	}

	closes := make([]float64, 0, len(raw))
	for _, k := range raw {
		if len(k) < 5 {
			continue
		}
		closes = append(closes, parseFloat(k[4]))
	}
	return closes, nil
}

// Forecast computes the TPTOP index over the last days daily candles.
func (c *Client) Forecast(ctx context.Context, symbol string, days int) (float64, error) {
	closes, err := c.Closes(ctx, symbol, days)
	if err != nil {
		return 0, err
	}
	return exchange.TPTOPIndex(closes)
}

func (c *Client) Constraints(ctx context.Context, symbol string) (exchange.Constraints, error) {
	symbols, err := c.symbolInfo(ctx)
	if err != nil {
		return exchange.Constraints{}, err
	}
	info, ok := symbols[symbol]
	if !ok {
		return exchange.Constraints{}, fmt.Errorf("unknown symbol %s", symbol)
	}
	return constraintsFrom(info), nil
}

func constraintsFrom(info SymbolInfo) exchange.Constraints {
	out := exchange.Constraints{Symbol: info.Symbol}
	for _, f := range info.Filters {
		switch f.FilterType {
		case "LOT_SIZE":
			out.StepSize = parseDecimal(f.StepSize)
			out.MinQty = parseDecimal(f.MinQty)
			out.MaxQty = parseDecimal(f.MaxQty)
		case "MIN_NOTIONAL", "NOTIONAL":
			if out.MinNotional.IsZero() {
				out.MinNotional = parseDecimal(f.MinNotional)
			}
		}
	}
	return out
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// OrderResponse is the FULL response of POST /api/v3/order.
type OrderResponse struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	Status              string `json:"status"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
}

// PlaceMarketOrder sends a MARKET order. Exchange-side rejections (4xx with
// an error code, or a non-filled status) come back as Success=false;
// transport and server failures are returned as errors.
func (c *Client) PlaceMarketOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", "MARKET")
	params.Set("quantity", req.Quantity.String())
	params.Set("newOrderRespType", "FULL")

	body, err := c.do(ctx, http.MethodPost, "/api/v3/order", params, true)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
			return &exchange.OrderResult{
				ErrorCode:    strconv.Itoa(apiErr.Code),
				ErrorMessage: apiErr.Message,
			}, nil
		}
		return nil, err
	}

	var resp OrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse order response: %w", err)
	}

	switch resp.Status {
	case "FILLED", "PARTIALLY_FILLED":
	default:
		return &exchange.OrderResult{
			OrderID:      strconv.FormatInt(resp.OrderID, 10),
			ErrorCode:    resp.Status,
			ErrorMessage: "market order not filled",
		}, nil
	}

	qty := parseDecimal(resp.ExecutedQty)
	result := &exchange.OrderResult{
		Success:     true,
		OrderID:     strconv.FormatInt(resp.OrderID, 10),
		ExecutedQty: qty,
	}
	if !qty.IsZero() {
		result.ExecutedPrice = parseDecimal(resp.CummulativeQuoteQty).Div(qty).InexactFloat64()
	}
	return result, nil
}

type accountResponse struct {
	Balances []struct {
		Asset string  `json:"asset"`
		Free  float64 `json:"free,string"`
	} `json:"balances"`
}

// Balances returns the free amount of every non-zero asset.
func (c *Client) Balances(ctx context.Context) (map[string]float64, error) {
	var acc accountResponse
	if err := c.getJSON(ctx, "/api/v3/account", nil, true, &acc); err != nil {
		return nil, fmt.Errorf("account: %w", err)
	}
	out := make(map[string]float64, len(acc.Balances))
	for _, b := range acc.Balances {
		if b.Free > 0 {
			out[b.Asset] = b.Free
		}
	}
	return out, nil
}
