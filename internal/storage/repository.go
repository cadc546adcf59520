package storage

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/camuig/coin-trader/internal/logger"
	"github.com/camuig/coin-trader/internal/trading"
)

const accountRowID = 1

type Repository struct {
	db     *gorm.DB
	logger *logger.Logger
}

func NewRepository(db *gorm.DB, log *logger.Logger) *Repository {
	return &Repository{db: db, logger: log}
}

// Transactions

func (r *Repository) SaveTransaction(tx trading.Transaction) error {
	rec := &TransactionRecord{
		ID:         tx.ID,
		CreatedAt:  tx.Time,
		Symbol:     tx.Symbol,
		Side:       string(tx.Side),
		Notional:   tx.Notional,
		Quantity:   tx.Quantity,
		QuoteAsset: tx.QuoteAsset,
		BaseAsset:  tx.BaseAsset,
		Income:     tx.Income,
	}
	if tx.Sale != nil {
		rec.Sale = string(*tx.Sale)
	}
	return r.db.Create(rec).Error
}

func (r *Repository) RecentTransactions(limit int) ([]TransactionRecord, error) {
	var records []TransactionRecord
	err := r.db.Order("created_at DESC").Limit(limit).Find(&records).Error
	return records, err
}

// Account

// SaveAccount stores the ledger counters and appends the part of the income
// history that is not persisted yet.
func (r *Repository) SaveAccount(snap trading.AccountSnapshot) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		state := &AccountState{
			ID:          accountRowID,
			ActivatedAt: snap.ActivatedAt,
			SalesAtLoss: snap.SalesAtLoss,
			SalesAtGain: snap.SalesAtGain,
			SalesAtPair: snap.SalesAtPair,
		}
		if err := tx.Save(state).Error; err != nil {
			return fmt.Errorf("save account state: %w", err)
		}

		var stored int64
		if err := tx.Model(&IncomeRecord{}).Count(&stored).Error; err != nil {
			return fmt.Errorf("count incomes: %w", err)
		}
		if int(stored) >= len(snap.Incomes) {
			return nil
		}

		fresh := make([]IncomeRecord, 0, len(snap.Incomes)-int(stored))
		for _, v := range snap.Incomes[stored:] {
			fresh = append(fresh, IncomeRecord{Income: v})
		}
		if err := tx.Create(&fresh).Error; err != nil {
			return fmt.Errorf("append incomes: %w", err)
		}
		return nil
	})
}

// LoadAccount returns nil without error when nothing has been stored yet.
func (r *Repository) LoadAccount() (*trading.Account, error) {
	var state AccountState
	err := r.db.First(&state, accountRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load account state: %w", err)
	}

	var records []IncomeRecord
	if err := r.db.Order("id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load incomes: %w", err)
	}
	incomes := make([]float64, len(records))
	for i, rec := range records {
		incomes[i] = rec.Income
	}

	return trading.RestoreAccount(state.SalesAtLoss, state.SalesAtGain, state.SalesAtPair,
		state.ActivatedAt, incomes), nil
}

// Positions

func (r *Repository) SavePosition(c *trading.Cryptocurrency) error {
	rec := &PositionRecord{
		Index:      c.Index,
		Name:       c.Name,
		Symbol:     c.Symbol,
		QuoteAsset: c.QuoteAsset,
		Quantity:   c.Quantity,
		FirstPrice: c.FirstPrice,
		LastPrice:  c.LastPrice,
	}
	if v, ok := c.TPTOP.Value(); ok {
		rec.TPTOP = &v
	}
	if c.Model != nil {
		rec.ModelID = c.Model.ID()
	}
	return r.db.Save(rec).Error
}

func (r *Repository) DeletePosition(index string) error {
	return r.db.Delete(&PositionRecord{Index: index}).Error
}

// LoadPositions rebuilds wallet entries. resolve maps a stored model id to a
// model; positions whose model can no longer be resolved are skipped.
func (r *Repository) LoadPositions(resolve func(id string) *trading.Model) ([]*trading.Cryptocurrency, error) {
	var records []PositionRecord
	if err := r.db.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}

	positions := make([]*trading.Cryptocurrency, 0, len(records))
	for _, rec := range records {
		model := resolve(rec.ModelID)
		if model == nil {
			r.logger.Warn("skip stored position: trading model not configured",
				"asset", rec.Index, "symbol", rec.Symbol, "model", rec.ModelID, "quantity", rec.Quantity)
			continue
		}
		c := &trading.Cryptocurrency{
			Index:      rec.Index,
			Name:       rec.Name,
			Quantity:   rec.Quantity,
			Symbol:     rec.Symbol,
			QuoteAsset: rec.QuoteAsset,
			FirstPrice: rec.FirstPrice,
			LastPrice:  rec.LastPrice,
			Model:      model,
		}
		if rec.TPTOP != nil {
			c.TPTOP = trading.ScoreOf(*rec.TPTOP)
		}
		positions = append(positions, c)
	}
	return positions, nil
}

// Cycle logs

func (r *Repository) SaveCycleLog(log *CycleLog) error {
	return r.db.Create(log).Error
}

func (r *Repository) RecentCycleLogs(limit int) ([]CycleLog, error) {
	var logs []CycleLog
	err := r.db.Order("created_at DESC").Limit(limit).Find(&logs).Error
	return logs, err
}
