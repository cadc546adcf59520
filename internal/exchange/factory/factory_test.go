package factory

import (
	"context"
	"testing"

	"github.com/camuig/coin-trader/internal/config"
	"github.com/camuig/coin-trader/internal/logger"
)

func TestNew_Binance(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		wantName string
	}{
		{
			name:     "live",
			yaml:     "exchange:\n  name: binance\n  api_key: k\n  api_secret: s\n",
			wantName: "binance",
		},
		{
			name:     "paper",
			yaml:     "exchange:\n  name: binance\n  paper:\n    enabled: true\n",
			wantName: "paper:binance",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}

			gw, err := New(context.Background(), cfg, logger.Discard())
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer gw.Close()

			if gw.Name() != tt.wantName {
				t.Errorf("Name = %q, want %q", gw.Name(), tt.wantName)
			}
			if gw.Credentials == nil {
				t.Error("binance gateway must support credential rotation")
			}
		})
	}
}

func TestNew_Unknown(t *testing.T) {
	cfg := &config.Config{Exchange: config.ExchangeConfig{Name: "kraken"}}
	if _, err := New(context.Background(), cfg, logger.Discard()); err == nil {
		t.Error("expected error for unknown exchange")
	}
}
