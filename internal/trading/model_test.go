package trading

import (
	"errors"
	"testing"

	"github.com/camuig/coin-trader/internal/config"
)

func scenarioModel(t *testing.T) *Model {
	t.Helper()
	m, err := NewModel(config.ModelConfig{
		ID:              "scenario",
		DaysGap:         7,
		MarketPhase:     0,
		WasteRange:      2,
		MaxLoss:         -5,
		MaxGain:         5,
		MinGainForOrder: 1,
	})
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	return m
}

func TestNewModel_Validation(t *testing.T) {
	valid := config.ModelConfig{ID: "m", DaysGap: 1, WasteRange: 0, MaxLoss: -1, MaxGain: 0, MinGainForOrder: 0}

	tests := []struct {
		name   string
		mutate func(*config.ModelConfig)
	}{
		{"empty id", func(m *config.ModelConfig) { m.ID = "" }},
		{"zero days", func(m *config.ModelConfig) { m.DaysGap = 0 }},
		{"zero max loss", func(m *config.ModelConfig) { m.MaxLoss = 0 }},
		{"positive max loss", func(m *config.ModelConfig) { m.MaxLoss = 1 }},
		{"negative max gain", func(m *config.ModelConfig) { m.MaxGain = -0.1 }},
		{"negative waste range", func(m *config.ModelConfig) { m.WasteRange = -1 }},
		{"negative min gain", func(m *config.ModelConfig) { m.MinGainForOrder = -1 }},
	}

	if _, err := NewModel(valid); err != nil {
		t.Fatalf("boundary-valid model rejected: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := valid
			tt.mutate(&mc)
			_, err := NewModel(mc)
			if !errors.Is(err, ErrInvalidModel) {
				t.Errorf("NewModel(%+v) = %v, want ErrInvalidModel", mc, err)
			}
		})
	}
}

func TestModel_InPhase(t *testing.T) {
	m := scenarioModel(t)

	tests := []struct {
		change float64
		want   bool
	}{
		{0, true},
		{1.5, true},
		{2, true},  // exactly at waste range
		{-2, true}, // exactly at waste range, below phase
		{2.01, false},
		{-2.01, false},
		{6, false},
	}
	for _, tt := range tests {
		if got := m.InPhase(tt.change); got != tt.want {
			t.Errorf("InPhase(%v) = %v, want %v", tt.change, got, tt.want)
		}
	}
}

func TestModel_InPhase_GainLossBounds(t *testing.T) {
	// a wide waste range leaves only the loss/gain bounds in play
	m, err := NewModel(config.ModelConfig{ID: "wide", DaysGap: 1, WasteRange: 100, MaxLoss: -5, MaxGain: 5})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		change float64
		want   bool
	}{
		{-5, true}, // exactly max loss
		{5, true},  // exactly max gain
		{-5.01, false},
		{5.01, false},
	}
	for _, tt := range tests {
		if got := m.InPhase(tt.change); got != tt.want {
			t.Errorf("InPhase(%v) = %v, want %v", tt.change, got, tt.want)
		}
	}
}

func TestScore(t *testing.T) {
	if NotTradable.Valid() {
		t.Error("NotTradable must be invalid")
	}
	if NotTradable.AtLeast(-1e18) {
		t.Error("NotTradable must never pass a threshold")
	}
	s := ScoreOf(2)
	if !s.AtLeast(2) || s.AtLeast(2.01) {
		t.Error("AtLeast boundary wrong")
	}
	if !s.AtMost(2) || s.AtMost(1.99) {
		t.Error("AtMost boundary wrong")
	}

	data, _ := NotTradable.MarshalJSON()
	if string(data) != "null" {
		t.Errorf("NotTradable JSON = %s", data)
	}
	var back Score
	if err := back.UnmarshalJSON([]byte("1.25")); err != nil || !back.AtLeast(1.25) {
		t.Errorf("UnmarshalJSON(1.25) = %v, %v", back, err)
	}
}

func TestCryptocurrency_FirstPriceOnce(t *testing.T) {
	c := &Cryptocurrency{Symbol: "BTCUSDT"}
	if err := c.SetFirstPrice(100); err != nil {
		t.Fatal(err)
	}
	if err := c.SetFirstPrice(90); !errors.Is(err, ErrFirstPriceSet) {
		t.Errorf("second SetFirstPrice = %v", err)
	}
	c.LastPrice = 94
	if got := c.Income(); got != -6 {
		t.Errorf("Income = %v, want -6", got)
	}
}
