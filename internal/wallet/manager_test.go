package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/camuig/coin-trader/internal/config"
	"github.com/camuig/coin-trader/internal/exchange"
	"github.com/camuig/coin-trader/internal/exchange/exchangetest"
	"github.com/camuig/coin-trader/internal/executor"
	"github.com/camuig/coin-trader/internal/logger"
	"github.com/camuig/coin-trader/internal/telegram"
	"github.com/camuig/coin-trader/internal/trading"
)

type memStore struct {
	mu           sync.Mutex
	positions    map[string]*trading.Cryptocurrency
	account      *trading.AccountSnapshot
	transactions []trading.Transaction
}

func newMemStore() *memStore {
	return &memStore{positions: make(map[string]*trading.Cryptocurrency)}
}

func (s *memStore) SavePosition(c *trading.Cryptocurrency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[c.Index] = c.Clone()
	return nil
}

func (s *memStore) DeletePosition(index string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, index)
	return nil
}

func (s *memStore) SaveAccount(snap trading.AccountSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = &snap
	return nil
}

func (s *memStore) SaveTransaction(tx trading.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = append(s.transactions, tx)
	return nil
}

func (s *memStore) count(side exchange.Side) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, tx := range s.transactions {
		if tx.Side == side {
			n++
		}
	}
	return n
}

type recordingSink struct {
	mu       sync.Mutex
	checking int
	updates  int
	sales    []trading.Transaction
	deltas   []map[string]float64
}

func (s *recordingSink) PublishChecking([]*trading.Cryptocurrency) {
	s.mu.Lock()
	s.checking++
	s.mu.Unlock()
}

func (s *recordingSink) PublishWalletUpdate(*trading.Cryptocurrency, trading.Transaction) {
	s.mu.Lock()
	s.updates++
	s.mu.Unlock()
}

func (s *recordingSink) PublishPriceDeltas(d map[string]float64) {
	s.mu.Lock()
	s.deltas = append(s.deltas, d)
	s.mu.Unlock()
}

func (s *recordingSink) PublishSale(_ *trading.Cryptocurrency, tx trading.Transaction, _ trading.AccountSnapshot) {
	s.mu.Lock()
	s.sales = append(s.sales, tx)
	s.mu.Unlock()
}

type harness struct {
	m        *Manager
	gw       *exchangetest.Gateway
	store    *memStore
	sink     *recordingSink
	settings *trading.Settings
	model    *trading.Model
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithLogger(t, logger.Discard())
}

func testSetup(t *testing.T) (*config.Config, *trading.Model) {
	t.Helper()
	cfg, err := config.Parse([]byte("exchange:\n  paper:\n    enabled: true\n"))
	if err != nil {
		t.Fatal(err)
	}
	model, err := trading.NewModel(config.ModelConfig{
		ID: "scenario", DaysGap: 7, MarketPhase: 0, WasteRange: 2,
		MaxLoss: -5, MaxGain: 5, MinGainForOrder: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	return cfg, model
}

func newHarnessWithLogger(t *testing.T, log *logger.Logger) *harness {
	t.Helper()

	cfg, model := testSetup(t)
	gw := exchangetest.New()
	gw.SetBalance("USDT", 1000)
	store := newMemStore()
	sink := &recordingSink{}
	settings := trading.NewSettings(cfg)
	exec := executor.NewExecutor(gw, store, telegram.NewNotifier(cfg, log), log)
	screener := trading.NewScreener(gw, 4, log)

	return &harness{
		m:        NewManager(gw, exec, screener, store, sink, settings, model, log),
		gw:       gw,
		store:    store,
		sink:     sink,
		settings: settings,
		model:    model,
	}
}

// hold puts a position bought at firstPrice into the wallet.
func (h *harness) hold(base string, firstPrice, qty float64, tptop trading.Score) {
	h.gw.AddTicker(base, "USDT", firstPrice, 0)
	h.gw.SetBalance(base, qty)
	h.m.Restore([]*trading.Cryptocurrency{{
		Index: base, Name: base, Symbol: base + "USDT", QuoteAsset: "USDT",
		Quantity: qty, FirstPrice: firstPrice, LastPrice: firstPrice,
		TPTOP: tptop, Model: h.model,
	}}, nil)
}

func TestScreenAndBuy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.gw.AddTicker("ADA", "USDT", 0.5, 1.5)
	h.gw.SetForecast("ADAUSDT", 2.0)

	stats, err := h.m.Screen(ctx)
	if err != nil || stats.Accepted != 1 {
		t.Fatalf("Screen() = %+v, %v", stats, err)
	}
	if len(h.m.Checking()) != 1 || h.sink.checking != 1 {
		t.Fatalf("checking list not published")
	}

	buy, err := h.m.BuyCandidates(ctx)
	if err != nil || buy.Bought != 1 {
		t.Fatalf("BuyCandidates() = %+v, %v", buy, err)
	}

	p, ok := h.m.Position("ADA")
	if !ok {
		t.Fatal("ADA not in wallet")
	}
	if p.FirstPrice != 0.5 || p.Quantity != 30 {
		t.Errorf("position = %+v", p)
	}
	if len(h.m.Checking()) != 0 {
		t.Error("bought candidate must leave the checking list")
	}
	if h.store.positions["ADA"] == nil || h.store.count(exchange.SideBuy) != 1 || h.sink.updates != 1 {
		t.Error("buy not persisted, journaled and published")
	}

	coins := h.m.Coins()
	if len(coins) != 1 || coins[0].Index != "ADA" || coins[0].Quantity != 30 || !coins[0].TradingEnabled {
		t.Errorf("coins = %+v", coins)
	}

	// a held asset is never screened again
	if stats, _ := h.m.Screen(ctx); stats.Evaluated != 0 {
		t.Errorf("held asset evaluated: %+v", stats)
	}
}

func TestBuy_FailuresLeaveWalletUnchanged(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
		check func(t *testing.T, s BuyStats)
	}{
		{
			name:  "rejected order",
			setup: func(h *harness) { h.gw.Reject("ADAUSDT", "Account has insufficient balance") },
			check: func(t *testing.T, s BuyStats) {
				if s.Failed != 1 {
					t.Errorf("stats = %+v", s)
				}
			},
		},
		{
			name:  "transport error",
			setup: func(h *harness) { h.gw.Fail("ADAUSDT", errors.New("timeout")) },
			check: func(t *testing.T, s BuyStats) {
				if s.Failed != 1 {
					t.Errorf("stats = %+v", s)
				}
			},
		},
		{
			name: "below min notional",
			setup: func(h *harness) {
				h.gw.SetConstraints("ADAUSDT", exchange.Constraints{
					StepSize:    decimal.RequireFromString("0.1"),
					MinQty:      decimal.RequireFromString("0.1"),
					MaxQty:      decimal.NewFromInt(1000),
					MinNotional: decimal.NewFromInt(20),
				})
			},
			check: func(t *testing.T, s BuyStats) {
				if s.NotSizable != 1 {
					t.Errorf("stats = %+v", s)
				}
			},
		},
		{
			name:  "insufficient funds",
			setup: func(h *harness) { h.gw.SetBalance("USDT", 5) },
			check: func(t *testing.T, s BuyStats) {
				if s.NoFunds != 1 {
					t.Errorf("stats = %+v", s)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			h.gw.AddTicker("ADA", "USDT", 0.5, 1.5)
			h.gw.SetForecast("ADAUSDT", 2.0)
			if _, err := h.m.Screen(ctx); err != nil {
				t.Fatal(err)
			}
			tt.setup(h)

			stats, err := h.m.BuyCandidates(ctx)
			if err != nil {
				t.Fatalf("BuyCandidates() error = %v", err)
			}
			tt.check(t, stats)

			if len(h.m.Positions()) != 0 || len(h.store.positions) != 0 || len(h.store.transactions) != 0 {
				t.Error("wallet mutated by a failed buy")
			}
			if len(h.m.Checking()) != 1 {
				t.Error("failed candidate must stay in the checking list")
			}
		})
	}
}

func TestBuy_ConvertsOrderAmountToQuote(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.settings.AddQuoteCurrency("BTC"); err != nil {
		t.Fatal(err)
	}

	h.gw.AddTicker("BTC", "USDT", 30000, 50) // out of phase, only used as a rate
	h.gw.AddTicker("BNB", "BTC", 0.01, 1)
	h.gw.SetForecast("BNBBTC", 3)
	h.gw.SetBalance("BTC", 0.01)
	h.gw.SetConstraints("BNBBTC", exchange.Constraints{
		StepSize:    decimal.RequireFromString("0.001"),
		MinQty:      decimal.RequireFromString("0.001"),
		MaxQty:      decimal.NewFromInt(1000),
		MinNotional: decimal.RequireFromString("0.0001"),
	})

	if _, err := h.m.Screen(ctx); err != nil {
		t.Fatal(err)
	}
	if stats, err := h.m.BuyCandidates(ctx); err != nil || stats.Bought != 1 {
		t.Fatalf("BuyCandidates() = %+v, %v", stats, err)
	}
	p, _ := h.m.Position("BNB")
	if p == nil || p.Quantity != 0.05 {
		t.Errorf("position = %+v, want 0.05 BNB", p)
	}
}

func TestUpdatePositions_Lifecycle(t *testing.T) {
	tests := []struct {
		name  string
		price float64
		tptop trading.Score
		force bool
		sold  bool
		sale  trading.Sale
	}{
		{"scenario C loss", 94, trading.ScoreOf(3), false, true, trading.SaleLoss},
		{"exactly max loss", 95, trading.ScoreOf(3), false, true, trading.SaleLoss},
		{"above max loss holds", 95.01, trading.ScoreOf(3), false, false, ""},
		{"exactly min gain", 101, trading.ScoreOf(3), false, true, trading.SaleGain},
		{"forecast reached below min gain", 100.5, trading.ScoreOf(0.5), false, true, trading.SalePair},
		{"forecast not reached holds", 100.5, trading.ScoreOf(2), false, false, ""},
		{"no forecast holds", 100.5, trading.NotTradable, false, false, ""},
		{"force sell classified pair", 100.5, trading.ScoreOf(2), true, true, trading.SalePair},
		{"force sell at gain", 103, trading.ScoreOf(5), true, true, trading.SaleGain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.hold("SOL", 100, 2, tt.tptop)
			h.gw.SetPrice("SOLUSDT", tt.price)
			if tt.force {
				if err := h.m.ForceSell("SOL"); err != nil {
					t.Fatal(err)
				}
			}

			stats, err := h.m.UpdatePositions(context.Background())
			if err != nil {
				t.Fatal(err)
			}

			_, held := h.m.Position("SOL")
			if held == tt.sold {
				t.Fatalf("held = %v, want sold = %v (stats %+v)", held, tt.sold, stats)
			}

			acc := h.m.Account()
			if !tt.sold {
				if acc.TotalSales != 0 {
					t.Errorf("account changed: %+v", acc)
				}
				p, _ := h.m.Position("SOL")
				if p.LastPrice != tt.price {
					t.Errorf("LastPrice = %v, want %v", p.LastPrice, tt.price)
				}
				return
			}

			if acc.TotalSales != 1 || len(h.sink.sales) != 1 || *h.sink.sales[0].Sale != tt.sale {
				t.Errorf("sale = %v, account %+v", h.sink.sales, acc)
			}
			if h.store.positions["SOL"] != nil || h.store.account == nil {
				t.Error("sale not persisted")
			}
			coins := h.m.Coins()
			if len(coins) != 1 || coins[0].Quantity != 0 || coins[0].TradingEnabled {
				t.Errorf("coin must be zeroed, not removed: %+v", coins)
			}
		})
	}
}

func TestUpdatePositions_EmptyWalletIsNoop(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		stats, err := h.m.UpdatePositions(context.Background())
		if err != nil || stats != (UpdateStats{}) {
			t.Fatalf("UpdatePositions() = %+v, %v", stats, err)
		}
	}
	if h.gw.PriceCalls != 0 {
		t.Errorf("empty wallet fetched prices %d times", h.gw.PriceCalls)
	}
	if h.m.Account().TotalSales != 0 {
		t.Error("account changed")
	}
}

func TestUpdatePositions_SinglePriceSnapshot(t *testing.T) {
	h := newHarness(t)
	h.hold("SOL", 100, 1, trading.ScoreOf(3))
	h.hold("ETH", 2000, 1, trading.ScoreOf(3))
	h.hold("BTC", 30000, 1, trading.ScoreOf(3))

	if _, err := h.m.UpdatePositions(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.gw.PriceCalls != 1 {
		t.Errorf("PriceCalls = %d, want 1", h.gw.PriceCalls)
	}
	if len(h.sink.deltas) != 1 || len(h.sink.deltas[0]) != 3 {
		t.Errorf("deltas = %v", h.sink.deltas)
	}
}

func TestUpdatePositions_GatewayFailures(t *testing.T) {
	h := newHarness(t)
	h.hold("SOL", 100, 2, trading.ScoreOf(3))
	h.gw.SetPrice("SOLUSDT", 90)

	h.gw.PricesErr = errors.New("503")
	if _, err := h.m.UpdatePositions(context.Background()); err == nil {
		t.Fatal("expected prices error")
	}
	p, _ := h.m.Position("SOL")
	if p == nil || p.LastPrice != 100 {
		t.Fatalf("wallet changed on prices failure: %+v", p)
	}

	h.gw.PricesErr = nil
	h.gw.Reject("SOLUSDT", "market closed")
	stats, err := h.m.UpdatePositions(context.Background())
	if err != nil || stats.Failed != 1 {
		t.Fatalf("UpdatePositions() = %+v, %v", stats, err)
	}
	if _, held := h.m.Position("SOL"); !held || h.m.Account().TotalSales != 0 {
		t.Fatal("rejected sell must keep the position and the ledger untouched")
	}

	h.gw.Clear("SOLUSDT")
	if stats, _ := h.m.UpdatePositions(context.Background()); stats.Sold != 1 {
		t.Errorf("retry did not sell: %+v", stats)
	}
}

func TestUpdatePositions_DustStaysHeld(t *testing.T) {
	h := newHarness(t)
	h.hold("SOL", 100, 0.05, trading.ScoreOf(3)) // 0.05 * 90 < min notional 10
	h.gw.SetPrice("SOLUSDT", 90)

	stats, err := h.m.UpdatePositions(context.Background())
	if err != nil || stats.Sold != 0 {
		t.Fatalf("UpdatePositions() = %+v, %v", stats, err)
	}
	if _, held := h.m.Position("SOL"); !held {
		t.Error("unsellable position must stay held")
	}
}

func TestForceSell(t *testing.T) {
	h := newHarness(t)
	if err := h.m.ForceSell("NOPE"); !errors.Is(err, ErrNotHeld) {
		t.Errorf("ForceSell(NOPE) = %v", err)
	}

	h.hold("SOL", 100, 1, trading.ScoreOf(3))
	h.hold("ETH", 2000, 1, trading.ScoreOf(3))

	stats, err := h.m.LiquidateAll(context.Background())
	if err != nil || stats.Sold != 2 {
		t.Fatalf("LiquidateAll() = %+v, %v", stats, err)
	}
	acc := h.m.Account()
	if acc.SalesAtPair != 2 || len(h.m.Positions()) != 0 {
		t.Errorf("account = %+v", acc)
	}
	if v, ok := acc.TotalIncome.Value(); !ok || v != 0 {
		t.Errorf("TotalIncome = %v", acc.TotalIncome)
	}
}

func TestRefreshBalances(t *testing.T) {
	h := newHarness(t)
	h.hold("SOL", 100, 2, trading.ScoreOf(3))
	h.gw.SetBalance("SOL", 0)

	if err := h.m.RefreshBalances(context.Background()); err != nil {
		t.Fatal(err)
	}
	coins := map[string]trading.Coin{}
	for _, c := range h.m.Coins() {
		coins[c.Index] = c
	}
	if c, ok := coins["SOL"]; !ok || c.Quantity != 0 || c.TradingEnabled {
		t.Errorf("SOL coin = %+v", c)
	}
	if c := coins["USDT"]; c.Quantity != 1000 || !c.TradingEnabled {
		t.Errorf("USDT coin = %+v", c)
	}
}

func TestRestore(t *testing.T) {
	h := newHarness(t)
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h.m.Restore(nil, trading.RestoreAccount(1, 2, 0, at, []float64{-6, 2, 3}))

	acc := h.m.Account()
	if acc.TotalSales != 3 || !acc.ActivatedAt.Equal(at) {
		t.Errorf("account = %+v", acc)
	}
	if v, _ := acc.TotalIncome.Value(); v != -0.33 {
		t.Errorf("TotalIncome = %v, want -0.33", v)
	}
}

// Snapshots taken while both passes run must only contain committed entries.
func TestConcurrentPassesAndSnapshots(t *testing.T) {
	h := newHarness(t)
	h.gw.SetBalance("USDT", 1e6)

	bases := []string{"AAA", "BBB", "CCC", "DDD", "EEE", "FFF", "GGG", "HHH"}
	for _, b := range bases {
		h.gw.AddTicker(b, "USDT", 1, 1)
		h.gw.SetForecast(b+"USDT", 2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var violations sync.Map

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 30; i++ {
			h.m.Screen(ctx)
			h.m.BuyCandidates(ctx)
			for _, b := range bases {
				h.gw.SetPrice(b+"USDT", 1.02)
			}
			h.m.UpdatePositions(ctx)
			for _, b := range bases {
				h.gw.SetPrice(b+"USDT", 1)
			}
		}
		cancel()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			h.m.UpdatePositions(ctx)
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				for _, p := range h.m.Positions() {
					if p.FirstPrice <= 0 || p.Quantity <= 0 {
						violations.Store(p.Index, *p)
					}
				}
				acc := h.m.Account()
				if acc.TotalSales != acc.SalesAtGain+acc.SalesAtLoss+acc.SalesAtPair || acc.TotalSales != len(acc.Incomes) {
					violations.Store("account", acc)
				}
			}
		}()
	}

	wg.Wait()

	violations.Range(func(k, v interface{}) bool {
		t.Errorf("partial state observed for %v: %+v", k, v)
		return true
	})

	buys, sells := h.store.count(exchange.SideBuy), h.store.count(exchange.SideSell)
	if got := len(h.m.Positions()); got != buys-sells {
		t.Errorf("positions = %d, buys %d - sells %d", got, buys, sells)
	}
	if acc := h.m.Account(); acc.TotalSales != sells {
		t.Errorf("TotalSales = %d, sells = %d", acc.TotalSales, sells)
	}
}

func TestConvertAmount(t *testing.T) {
	prices := map[string]float64{"BTCUSDT": 30000, "USDTTRY": 30}
	tests := []struct {
		base, quote string
		want        float64
		ok          bool
	}{
		{"USDT", "USDT", 15, true},
		{"USDT", "BTC", 0.0005, true},
		{"USDT", "TRY", 450, true},
		{"USDT", "ETH", 0, false},
	}
	for _, tt := range tests {
		got, ok := ConvertAmount(15, tt.base, tt.quote, prices)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ConvertAmount(%s->%s) = %v, %v", tt.base, tt.quote, got, ok)
		}
	}
}
