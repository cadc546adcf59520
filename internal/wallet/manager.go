// Package wallet owns the held positions, the checking list and the trader
// account. Buying and updating are mutually exclusive passes; every commit
// happens under a write lock so snapshots only ever see finished entries.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/camuig/coin-trader/internal/exchange"
	"github.com/camuig/coin-trader/internal/executor"
	"github.com/camuig/coin-trader/internal/logger"
	"github.com/camuig/coin-trader/internal/metrics"
	"github.com/camuig/coin-trader/internal/trading"
)

var ErrNotHeld = errors.New("position not held")

// Store persists wallet state between restarts.
type Store interface {
	SavePosition(c *trading.Cryptocurrency) error
	DeletePosition(index string) error
	SaveAccount(snap trading.AccountSnapshot) error
}

// Sink receives wallet events for remote clients.
type Sink interface {
	PublishChecking(list []*trading.Cryptocurrency)
	PublishWalletUpdate(entry *trading.Cryptocurrency, tx trading.Transaction)
	PublishPriceDeltas(deltas map[string]float64)
	PublishSale(entry *trading.Cryptocurrency, tx trading.Transaction, account trading.AccountSnapshot)
}

type Manager struct {
	// busy is held for a whole buy or update pass.
	busy sync.Mutex

	mu        sync.RWMutex
	positions map[string]*trading.Cryptocurrency
	checking  map[string]*trading.Cryptocurrency
	coins     map[string]*trading.Coin
	forced    map[string]bool
	account   *trading.Account

	gateway  exchange.Gateway
	executor *executor.Executor
	screener *trading.Screener
	store    Store
	sink     Sink
	settings *trading.Settings
	model    *trading.Model
	logger   *logger.Logger

	now func() time.Time
}

func NewManager(
	gw exchange.Gateway,
	exec *executor.Executor,
	screener *trading.Screener,
	store Store,
	sink Sink,
	settings *trading.Settings,
	model *trading.Model,
	log *logger.Logger,
) *Manager {
	if sink == nil {
		sink = nopSink{}
	}
	return &Manager{
		positions: make(map[string]*trading.Cryptocurrency),
		checking:  make(map[string]*trading.Cryptocurrency),
		coins:     make(map[string]*trading.Coin),
		forced:    make(map[string]bool),
		account:   trading.NewAccount(time.Now()),
		gateway:   gw,
		executor:  exec,
		screener:  screener,
		store:     store,
		sink:      sink,
		settings:  settings,
		model:     model,
		logger:    log,
		now:       time.Now,
	}
}

// Restore loads persisted positions and the account ledger. A nil account
// starts a fresh ledger.
func (m *Manager) Restore(positions []*trading.Cryptocurrency, account *trading.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range positions {
		m.positions[p.Index] = p.Clone()
		coin := m.coin(p.Index)
		coin.SetQuantity(coin.Quantity+p.Quantity, true)
	}
	if account != nil {
		m.account = account
	}
	metrics.PositionsHeld.Set(float64(len(m.positions)))
	if v, ok := m.account.TotalIncome().Value(); ok {
		metrics.TotalIncome.Set(v)
	}
}

func (m *Manager) Model() *trading.Model {
	return m.model
}

// coin returns the Coin for index, creating it. Caller holds mu.
func (m *Manager) coin(index string) *trading.Coin {
	c, ok := m.coins[index]
	if !ok {
		c = &trading.Coin{Index: index, Name: index}
		m.coins[index] = c
	}
	return c
}

// Snapshots

// Positions returns copies of the held positions sorted by index.
func (m *Manager) Positions() []*trading.Cryptocurrency {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedCopies(m.positions)
}

func (m *Manager) Position(index string) (*trading.Cryptocurrency, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[index]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Checking returns copies of the current candidates sorted by index.
func (m *Manager) Checking() []*trading.Cryptocurrency {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedCopies(m.checking)
}

func (m *Manager) Coins() []trading.Coin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]trading.Coin, 0, len(m.coins))
	for _, c := range m.coins {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func (m *Manager) Account() trading.AccountSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.account.Snapshot()
}

func (m *Manager) heldSet() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	held := make(map[string]bool, len(m.positions))
	for idx := range m.positions {
		held[idx] = true
	}
	return held
}

func sortedCopies(src map[string]*trading.Cryptocurrency) []*trading.Cryptocurrency {
	out := make([]*trading.Cryptocurrency, 0, len(src))
	for _, c := range src {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Force sell

// ForceSell marks a position for liquidation at the next update pass.
func (m *Manager) ForceSell(index string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.positions[index]; !ok {
		return fmt.Errorf("force sell %s: %w", index, ErrNotHeld)
	}
	m.forced[index] = true
	return nil
}

// ForceSellAll marks every held position and returns how many were marked.
func (m *Manager) ForceSellAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for idx := range m.positions {
		m.forced[idx] = true
	}
	return len(m.positions)
}

// LiquidateAll sells every held position now. Positions that cannot be sold
// stay held and are reported in the returned stats.
func (m *Manager) LiquidateAll(ctx context.Context) (UpdateStats, error) {
	m.ForceSellAll()
	return m.UpdatePositions(ctx)
}

// Balances

// RefreshBalances syncs Coins with the exchange balances. Assets missing
// from the answer are zeroed, never removed.
func (m *Manager) RefreshBalances(ctx context.Context) error {
	balances, err := m.gateway.Balances(ctx)
	if err != nil {
		metrics.GatewayErrors.WithLabelValues("balances").Inc()
		return fmt.Errorf("fetch balances: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for asset, coin := range m.coins {
		if _, ok := balances[asset]; !ok {
			coin.SetQuantity(0, true)
		}
	}
	for asset, qty := range balances {
		m.coin(asset).SetQuantity(qty, true)
	}
	return nil
}

type nopSink struct{}

func (nopSink) PublishChecking([]*trading.Cryptocurrency)                        {}
func (nopSink) PublishWalletUpdate(*trading.Cryptocurrency, trading.Transaction) {}
func (nopSink) PublishPriceDeltas(map[string]float64)                            {}
func (nopSink) PublishSale(*trading.Cryptocurrency, trading.Transaction, trading.AccountSnapshot) {
}
