package trading

import (
	"fmt"
	"math"
	"time"
)

// Sale classifies a liquidation.
type Sale string

const (
	SaleLoss Sale = "LOSS"
	SaleGain Sale = "GAIN"
	SalePair Sale = "PAIR"
)

func ParseSale(s string) (Sale, error) {
	switch Sale(s) {
	case SaleLoss, SaleGain, SalePair:
		return Sale(s), nil
	}
	return "", fmt.Errorf("unknown sale classification %q", s)
}

// Classify partitions every realized income into exactly one class.
func Classify(m *Model, income float64) Sale {
	switch {
	case income <= m.MaxLoss():
		return SaleLoss
	case income >= m.MinGainForOrder():
		return SaleGain
	default:
		return SalePair
	}
}

// Account holds the trader statistics. It is not safe for concurrent use;
// wallet.Manager mutates it under its own lock.
type Account struct {
	SalesAtLoss int
	SalesAtGain int
	SalesAtPair int
	ActivatedAt time.Time

	incomes []float64
	total   Score
}

func NewAccount(activatedAt time.Time) *Account {
	return &Account{ActivatedAt: activatedAt}
}

// RestoreAccount rebuilds an account from persisted counters and history.
func RestoreAccount(loss, gain, pair int, activatedAt time.Time, incomes []float64) *Account {
	a := &Account{
		SalesAtLoss: loss,
		SalesAtGain: gain,
		SalesAtPair: pair,
		ActivatedAt: activatedAt,
		incomes:     append([]float64(nil), incomes...),
	}
	a.recompute()
	return a
}

// Record books one sale.
func (a *Account) Record(sale Sale, income float64) {
	switch sale {
	case SaleLoss:
		a.SalesAtLoss++
	case SaleGain:
		a.SalesAtGain++
	default:
		a.SalesAtPair++
	}
	a.incomes = append(a.incomes, income)
	a.recompute()
}

func (a *Account) TotalSales() int {
	return a.SalesAtLoss + a.SalesAtGain + a.SalesAtPair
}

// Incomes returns a copy of the income history, oldest first.
func (a *Account) Incomes() []float64 {
	return append([]float64(nil), a.incomes...)
}

// TotalIncome is the mean of all recorded incomes rounded to 2 decimals.
// An empty history yields NotTradable.
func (a *Account) TotalIncome() Score {
	return a.total
}

func (a *Account) recompute() {
	if len(a.incomes) == 0 {
		a.total = NotTradable
		return
	}
	var sum float64
	for _, v := range a.incomes {
		sum += v
	}
	a.total = ScoreOf(math.Round(sum/float64(len(a.incomes))*100) / 100)
}

// AccountSnapshot is a read-only copy handed to storage, web and sync.
type AccountSnapshot struct {
	SalesAtLoss int       `json:"sales_at_loss"`
	SalesAtGain int       `json:"sales_at_gain"`
	SalesAtPair int       `json:"sales_at_pair"`
	TotalSales  int       `json:"total_sales"`
	ActivatedAt time.Time `json:"activated_at"`
	TotalIncome Score     `json:"total_income"`
	Incomes     []float64 `json:"incomes"`
}

func (a *Account) Snapshot() AccountSnapshot {
	return AccountSnapshot{
		SalesAtLoss: a.SalesAtLoss,
		SalesAtGain: a.SalesAtGain,
		SalesAtPair: a.SalesAtPair,
		TotalSales:  a.TotalSales(),
		ActivatedAt: a.ActivatedAt,
		TotalIncome: a.TotalIncome(),
		Incomes:     a.Incomes(),
	}
}
