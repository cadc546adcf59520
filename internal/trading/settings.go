package trading

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/camuig/coin-trader/internal/config"
)

// Settings is the runtime-mutable part of the trader configuration. Remote
// commands change it; the loops read it on every tick.
type Settings struct {
	enabled atomic.Bool

	mu           sync.RWMutex
	screeningGap time.Duration
	buyingGap    time.Duration
	updatingGap  time.Duration
	baseCurrency string
	quotes       map[string]bool
	orderAmount  float64
}

func NewSettings(cfg *config.Config) *Settings {
	s := &Settings{
		screeningGap: cfg.ScreeningInterval(),
		buyingGap:    cfg.BuyingInterval(),
		updatingGap:  cfg.UpdatingInterval(),
		baseCurrency: cfg.Trading.BaseCurrency,
		quotes:       make(map[string]bool),
		orderAmount:  cfg.Trading.OrderAmount,
	}
	for _, q := range cfg.Trading.QuoteCurrencies {
		s.quotes[q] = true
	}
	s.enabled.Store(!cfg.Trading.StartDisabled)
	return s
}

func (s *Settings) Enabled() bool {
	return s.enabled.Load()
}

// SetEnabled reports whether the state actually changed.
func (s *Settings) SetEnabled(on bool) bool {
	return s.enabled.CompareAndSwap(!on, on)
}

func (s *Settings) ScreeningGap() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.screeningGap
}

func (s *Settings) BuyingGap() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buyingGap
}

func (s *Settings) UpdatingGap() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatingGap
}

// SetRefreshInterval changes how often held positions are re-priced.
func (s *Settings) SetRefreshInterval(d time.Duration) error {
	if err := config.ValidateInterval(d); err != nil {
		return err
	}
	s.mu.Lock()
	s.updatingGap = d
	s.mu.Unlock()
	return nil
}

func (s *Settings) OrderAmount() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orderAmount
}

func (s *Settings) BaseCurrency() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseCurrency
}

func (s *Settings) SetBaseCurrency(c string) error {
	c = config.NormalizeCurrency(c)
	if err := config.ValidateCurrency(c); err != nil {
		return err
	}
	s.mu.Lock()
	s.baseCurrency = c
	s.mu.Unlock()
	return nil
}

// QuoteSet returns a copy of the enabled quote currencies.
func (s *Settings) QuoteSet() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.quotes))
	for q := range s.quotes {
		out[q] = true
	}
	return out
}

func (s *Settings) QuoteCurrencies() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.quotes))
	for q := range s.quotes {
		out = append(out, q)
	}
	sort.Strings(out)
	return out
}

func (s *Settings) AddQuoteCurrency(c string) error {
	c = config.NormalizeCurrency(c)
	if err := config.ValidateCurrency(c); err != nil {
		return err
	}
	s.mu.Lock()
	s.quotes[c] = true
	s.mu.Unlock()
	return nil
}

// RemoveQuoteCurrency refuses to remove the last quote currency.
func (s *Settings) RemoveQuoteCurrency(c string) error {
	c = config.NormalizeCurrency(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.quotes[c] {
		return fmt.Errorf("quote currency %s is not enabled", c)
	}
	if len(s.quotes) == 1 {
		return fmt.Errorf("cannot remove %s: at least one quote currency is required", c)
	}
	delete(s.quotes, c)
	return nil
}
