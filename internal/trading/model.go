package trading

import (
	"errors"
	"fmt"

	"github.com/camuig/coin-trader/internal/config"
)

var ErrInvalidModel = errors.New("invalid trading model")

// Model is the immutable parameter set describing what counts as tradable.
// All percentages are plain percent values (1.5 means 1.5%).
type Model struct {
	id              string
	daysGap         int
	marketPhase     float64
	wasteRange      float64
	maxLoss         float64
	maxGain         float64
	minGainForOrder float64
}

func NewModel(mc config.ModelConfig) (*Model, error) {
	if mc.ID == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidModel)
	}
	if mc.DaysGap < 1 {
		return nil, fmt.Errorf("%w %s: days_gap must be >= 1, got %d", ErrInvalidModel, mc.ID, mc.DaysGap)
	}
	if !(mc.MaxLoss < 0) {
		return nil, fmt.Errorf("%w %s: max_loss must be negative, got %v", ErrInvalidModel, mc.ID, mc.MaxLoss)
	}
	if mc.MaxGain < 0 {
		return nil, fmt.Errorf("%w %s: max_gain must be >= 0, got %v", ErrInvalidModel, mc.ID, mc.MaxGain)
	}
	if mc.WasteRange < 0 {
		return nil, fmt.Errorf("%w %s: waste_range must be >= 0, got %v", ErrInvalidModel, mc.ID, mc.WasteRange)
	}
	if mc.MinGainForOrder < 0 {
		return nil, fmt.Errorf("%w %s: min_gain_for_order must be >= 0, got %v", ErrInvalidModel, mc.ID, mc.MinGainForOrder)
	}

	return &Model{
		id:              mc.ID,
		daysGap:         mc.DaysGap,
		marketPhase:     mc.MarketPhase,
		wasteRange:      mc.WasteRange,
		maxLoss:         mc.MaxLoss,
		maxGain:         mc.MaxGain,
		minGainForOrder: mc.MinGainForOrder,
	}, nil
}

func (m *Model) ID() string               { return m.id }
func (m *Model) DaysGap() int             { return m.daysGap }
func (m *Model) MarketPhase() float64     { return m.marketPhase }
func (m *Model) WasteRange() float64      { return m.wasteRange }
func (m *Model) MaxLoss() float64         { return m.maxLoss }
func (m *Model) MaxGain() float64         { return m.maxGain }
func (m *Model) MinGainForOrder() float64 { return m.minGainForOrder }

// InPhase reports whether a price change satisfies both the waste range
// around the market phase and the [MaxLoss, MaxGain] bounds.
func (m *Model) InPhase(changePct float64) bool {
	diff := changePct - m.marketPhase
	if diff < 0 {
		diff = -diff
	}
	if diff > m.wasteRange {
		return false
	}
	return changePct >= m.maxLoss && changePct <= m.maxGain
}

// Config returns the model as a config block, e.g. for persistence.
func (m *Model) Config() config.ModelConfig {
	return config.ModelConfig{
		ID:              m.id,
		DaysGap:         m.daysGap,
		MarketPhase:     m.marketPhase,
		WasteRange:      m.wasteRange,
		MaxLoss:         m.maxLoss,
		MaxGain:         m.maxGain,
		MinGainForOrder: m.minGainForOrder,
	}
}
