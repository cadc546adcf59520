package binance

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/camuig/coin-trader/internal/exchange"
	"github.com/camuig/coin-trader/internal/logger"
)

const exchangeInfoJSON = `{"symbols":[
 {"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT","isSpotTradingAllowed":true,
  "filters":[
   {"filterType":"PRICE_FILTER","minPrice":"0.01"},
   {"filterType":"LOT_SIZE","minQty":"0.00001","maxQty":"9000","stepSize":"0.00001"},
   {"filterType":"NOTIONAL","minNotional":"5.00000000"}]},
 {"symbol":"OLDBTC","status":"BREAK","baseAsset":"OLD","quoteAsset":"BTC","isSpotTradingAllowed":true,"filters":[]}
]}`

type fakeAPI struct {
	t          *testing.T
	infoCalls  atomic.Int32
	orderReply func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v3/exchangeInfo":
		f.infoCalls.Add(1)
		fmt.Fprint(w, exchangeInfoJSON)
	case "/api/v3/ticker/24hr":
		fmt.Fprint(w, `[
		 {"symbol":"BTCUSDT","priceChangePercent":"2.50","lastPrice":"60000.00","quoteVolume":"1"},
		 {"symbol":"OLDBTC","priceChangePercent":"-1.00","lastPrice":"0.001","quoteVolume":"1"},
		 {"symbol":"GHOSTUSDT","priceChangePercent":"0","lastPrice":"1","quoteVolume":"1"}]`)
	case "/api/v3/ticker/price":
		fmt.Fprint(w, `[{"symbol":"BTCUSDT","price":"60100.5"},{"symbol":"ETHBTC","price":"0.05"}]`)
	case "/api/v3/klines":
		if r.URL.Query().Get("interval") != "1d" || r.URL.Query().Get("limit") != "4" {
			f.t.Errorf("unexpected klines query %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `[
		 [1,"1","1","1","100","0",2,"0",1,"0","0","0"],
		 [3,"1","1","1","101","0",4,"0",1,"0","0","0"],
		 [5,"1","1","1","102","0",6,"0",1,"0","0","0"],
		 [7,"1","1","1","103","0",8,"0",1,"0","0","0"]]`)
	case "/api/v3/account":
		if !f.verify(r) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"code":-1022,"msg":"Signature for this request is not valid."}`)
			return
		}
		fmt.Fprint(w, `{"balances":[
		 {"asset":"USDT","free":"120.5","locked":"0"},
		 {"asset":"BTC","free":"0.00000000","locked":"0"},
		 {"asset":"ETH","free":"0.25","locked":"0.1"}]}`)
	case "/api/v3/order":
		if r.Method != http.MethodPost {
			f.t.Errorf("order method = %s", r.Method)
		}
		if !f.verify(r) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"code":-1022,"msg":"Signature for this request is not valid."}`)
			return
		}
		f.orderReply(w, r)
	default:
		http.NotFound(w, r)
	}
}

// verify recomputes the signature over everything before &signature=.
func (f *fakeAPI) verify(r *http.Request) bool {
	if r.Header.Get("X-MBX-APIKEY") != "key" {
		return false
	}
	raw := r.URL.RawQuery
	i := strings.LastIndex(raw, "&signature=")
	if i < 0 {
		return false
	}
	return raw[i+len("&signature="):] == sign("secret", raw[:i])
}

func newTestClient(t *testing.T) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{t: t}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return NewClient("key", "secret", srv.URL, logger.Discard()), api
}

func TestClient_Tickers(t *testing.T) {
	c, api := newTestClient(t)

	tickers, err := c.Tickers(context.Background())
	if err != nil {
		t.Fatalf("Tickers: %v", err)
	}
	if len(tickers) != 2 {
		t.Fatalf("got %d tickers, want 2 (unknown symbol dropped)", len(tickers))
	}

	btc := tickers[0]
	if btc.Base != "BTC" || btc.Quote != "USDT" || btc.Price != 60000 || btc.Change24h != 2.5 || !btc.Tradable {
		t.Errorf("unexpected BTCUSDT ticker %+v", btc)
	}
	if tickers[1].Tradable {
		t.Error("symbol in BREAK status must not be tradable")
	}

	if _, err := c.Tickers(context.Background()); err != nil {
		t.Fatalf("Tickers: %v", err)
	}
	if n := api.infoCalls.Load(); n != 1 {
		t.Errorf("exchangeInfo fetched %d times, want cached after first", n)
	}
}

func TestClient_Prices(t *testing.T) {
	c, _ := newTestClient(t)

	prices, err := c.Prices(context.Background())
	if err != nil {
		t.Fatalf("Prices: %v", err)
	}
	if prices["BTCUSDT"] != 60100.5 || prices["ETHBTC"] != 0.05 {
		t.Errorf("unexpected prices %v", prices)
	}
}

func TestClient_Forecast(t *testing.T) {
	c, _ := newTestClient(t)

	score, err := c.Forecast(context.Background(), "BTCUSDT", 4)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if math.Abs(score-0.97) > 1e-9 {
		t.Errorf("Forecast = %v, want 0.97", score)
	}
}

func TestClient_Constraints(t *testing.T) {
	c, _ := newTestClient(t)

	got, err := c.Constraints(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("Constraints: %v", err)
	}
	if !got.StepSize.Equal(decimal.RequireFromString("0.00001")) ||
		!got.MinQty.Equal(decimal.RequireFromString("0.00001")) ||
		!got.MaxQty.Equal(decimal.NewFromInt(9000)) ||
		!got.MinNotional.Equal(decimal.NewFromInt(5)) {
		t.Errorf("unexpected constraints %+v", got)
	}

	if _, err := c.Constraints(context.Background(), "NOPE"); err == nil {
		t.Error("expected error for unknown symbol")
	}
}

func TestClient_Balances(t *testing.T) {
	c, _ := newTestClient(t)

	balances, err := c.Balances(context.Background())
	if err != nil {
		t.Fatalf("Balances: %v", err)
	}
	if len(balances) != 2 || balances["USDT"] != 120.5 || balances["ETH"] != 0.25 {
		t.Errorf("unexpected balances %v", balances)
	}
}

func TestClient_SetCredentials(t *testing.T) {
	c, _ := newTestClient(t)

	if err := c.SetCredentials("other", "wrong"); err != nil {
		t.Fatalf("SetCredentials: %v", err)
	}
	_, err := c.Balances(context.Background())
	if err == nil || !strings.Contains(err.Error(), "-1022") {
		t.Fatalf("expected signature error with rotated keys, got %v", err)
	}

	if err := c.SetCredentials("key", "secret"); err != nil {
		t.Fatalf("SetCredentials: %v", err)
	}
	if _, err := c.Balances(context.Background()); err != nil {
		t.Errorf("Balances after restoring keys: %v", err)
	}

	if err := c.SetCredentials("", "x"); err == nil {
		t.Error("empty key must be rejected")
	}
}

func TestClient_PlaceMarketOrder(t *testing.T) {
	req := exchange.OrderRequest{Symbol: "BTCUSDT", Side: exchange.SideBuy, Quantity: decimal.RequireFromString("0.00025")}

	tests := []struct {
		name        string
		reply       func(w http.ResponseWriter, r *http.Request)
		wantErr     bool
		wantSuccess bool
		wantCode    string
		wantPrice   float64
	}{
		{
			name: "filled",
			reply: func(w http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				if q.Get("type") != "MARKET" || q.Get("side") != "BUY" || q.Get("quantity") != "0.00025" {
					t.Errorf("unexpected order query %s", r.URL.RawQuery)
				}
				fmt.Fprint(w, `{"symbol":"BTCUSDT","orderId":42,"status":"FILLED","executedQty":"0.00025","cummulativeQuoteQty":"15.00"}`)
			},
			wantSuccess: true,
			wantPrice:   60000,
		},
		{
			name: "rejected by filter",
			reply: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"code":-1013,"msg":"Filter failure: NOTIONAL"}`)
			},
			wantCode: "-1013",
		},
		{
			name: "expired",
			reply: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"symbol":"BTCUSDT","orderId":43,"status":"EXPIRED","executedQty":"0","cummulativeQuoteQty":"0"}`)
			},
			wantCode: "EXPIRED",
		},
		{
			name: "server error",
			reply: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprint(w, "maintenance")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, api := newTestClient(t)
			api.orderReply = tt.reply

			res, err := c.PlaceMarketOrder(context.Background(), req)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected transport error")
				}
				return
			}
			if err != nil {
				t.Fatalf("PlaceMarketOrder: %v", err)
			}
			if res.Success != tt.wantSuccess || res.ErrorCode != tt.wantCode {
				t.Errorf("result = %+v", res)
			}
			if tt.wantSuccess && math.Abs(res.ExecutedPrice-tt.wantPrice) > 1e-6 {
				t.Errorf("ExecutedPrice = %v, want %v", res.ExecutedPrice, tt.wantPrice)
			}
		})
	}
}
