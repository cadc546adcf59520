package exchange

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestTPTOPIndex(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		want   float64
	}{
		{"flat", []float64{10, 10, 10, 10}, 0},
		// perfect line 100,101,102,103 -> projects 104, +0.97%
		{"rising", []float64{100, 101, 102, 103}, 0.97},
		// 103,102,101,100 -> projects 99, -1%
		{"falling", []float64{103, 102, 101, 100}, -1},
		{"two points", []float64{50, 55}, 9.09},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TPTOPIndex(tt.closes)
			if err != nil {
				t.Fatalf("TPTOPIndex: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("TPTOPIndex(%v) = %v, want %v", tt.closes, got, tt.want)
			}
		})
	}
}

func TestTPTOPIndex_NoHistory(t *testing.T) {
	for _, closes := range [][]float64{nil, {42}, {1, 0}} {
		if _, err := TPTOPIndex(closes); !errors.Is(err, ErrNoHistory) {
			t.Errorf("TPTOPIndex(%v) err = %v, want ErrNoHistory", closes, err)
		}
	}
}

func TestPercentChange(t *testing.T) {
	if got := PercentChange(100, 94); math.Abs(got-(-6)) > 1e-9 {
		t.Errorf("PercentChange(100, 94) = %v", got)
	}
	if got := PercentChange(0, 5); got != 0 {
		t.Errorf("PercentChange(0, 5) = %v", got)
	}
}

func TestOrderResult_Err(t *testing.T) {
	req := OrderRequest{Symbol: "BTCUSDT", Side: SideBuy, Quantity: decimal.NewFromInt(1)}

	if err := (&OrderResult{Success: true}).Err(req); err != nil {
		t.Errorf("success result returned %v", err)
	}

	err := (&OrderResult{ErrorCode: "-1013", ErrorMessage: "Filter failure: NOTIONAL"}).Err(req)
	var oe *OrderError
	if !errors.As(err, &oe) {
		t.Fatalf("expected *OrderError, got %T", err)
	}
	if oe.Code != "-1013" || oe.Symbol != "BTCUSDT" {
		t.Errorf("unexpected order error %+v", oe)
	}

	var nilResult *OrderResult
	if nilResult.Err(req) == nil {
		t.Error("nil result must be an error")
	}
}
