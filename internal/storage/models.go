package storage

import "time"

// TransactionRecord is the journaled form of trading.Transaction.
type TransactionRecord struct {
	ID        string    `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	Symbol     string   `gorm:"index;not null" json:"symbol"`
	Side       string   `gorm:"not null" json:"side"` // BUY or SELL
	Notional   float64  `json:"notional"`
	Quantity   float64  `json:"quantity"`
	QuoteAsset string   `json:"quote_asset"`
	BaseAsset  string   `json:"base_asset"`
	Income     *float64 `json:"income,omitempty"`
	Sale       string   `json:"sale,omitempty"` // LOSS, GAIN, PAIR for sells
}

// AccountState holds the single row of ledger counters.
type AccountState struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	UpdatedAt   time.Time `json:"updated_at"`
	ActivatedAt time.Time `json:"activated_at"`

	SalesAtLoss int `json:"sales_at_loss"`
	SalesAtGain int `json:"sales_at_gain"`
	SalesAtPair int `json:"sales_at_pair"`
}

// IncomeRecord is one entry of the income history, ordered by ID.
type IncomeRecord struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Income    float64   `json:"income"`
}

// PositionRecord persists a held wallet entry so it survives restarts.
type PositionRecord struct {
	Index     string    `gorm:"primarykey;column:asset" json:"index"`
	UpdatedAt time.Time `json:"updated_at"`

	Name       string   `json:"name"`
	Symbol     string   `gorm:"not null" json:"symbol"`
	QuoteAsset string   `json:"quote_asset"`
	Quantity   float64  `json:"quantity"`
	FirstPrice float64  `json:"first_price"`
	LastPrice  float64  `json:"last_price"`
	TPTOP      *float64 `gorm:"column:tptop" json:"tptop"`
	ModelID    string   `json:"model_id"`
}

// CycleLog records the outcome of one scheduler cycle.
type CycleLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	Kind     string `gorm:"not null" json:"kind"` // screen, buy, update
	Duration int64  `json:"duration_ms"`
	Summary  string `gorm:"type:text" json:"summary"`
	Error    string `json:"error"`
}
