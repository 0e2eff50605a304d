package builtins

import (
	"math"
	"testing"
	"time"

	"backlab/internal/domain"
	"backlab/internal/strategy"
)

func trendBars(n int, step float64) []domain.Bar {
	start := time.Date(2024, 5, 6, 9, 30, 0, 0, time.UTC)
	bars := make([]domain.Bar, n)
	price := 100.0
	for i := range bars {
		price += step
		bars[i] = domain.Bar{
			Ticker:    "TEST",
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      price,
			High:      price + 0.2,
			Low:       price - 0.2,
			Close:     price,
			Volume:    5000,
		}
	}
	return bars
}

func TestMTFMomentumPrepare(t *testing.T) {
	s, err := NewMTFMomentum(nil)
	if err != nil {
		t.Fatalf("NewMTFMomentum: %v", err)
	}

	bars := trendBars(400, 0.05)
	rows, err := s.Prepare(bars, "TEST", domain.DateRange{})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(rows) != 400-30 {
		t.Fatalf("Prepare kept %d rows, want %d after warm-up", len(rows), 370)
	}

	// Every surviving row should carry both resolutions' columns.
	last := rows[len(rows)-1]
	for _, col := range s.IndicatorColumns() {
		v, ok := last.Value(col)
		if !ok || math.IsNaN(v) {
			t.Errorf("column %s missing or NaN on final row", col)
		}
	}
}

func TestMTFMomentumUptrendGoesLong(t *testing.T) {
	s, _ := NewMTFMomentum(nil)
	rows, err := s.Prepare(trendBars(400, 0.05), "TEST", domain.DateRange{})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	flags, err := s.GenerateSignals(rows)
	if err != nil {
		t.Fatalf("GenerateSignals: %v", err)
	}

	var entries, shorts int
	for _, f := range flags {
		if f.EntryLong {
			entries++
		}
		if f.EntryShort {
			shorts++
		}
	}
	if entries == 0 {
		t.Error("steady uptrend should produce at least one long entry")
	}
	if shorts != 0 {
		t.Errorf("steady uptrend produced %d short entries, want 0", shorts)
	}
}

func TestMTFMomentumParamValidation(t *testing.T) {
	if _, err := NewMTFMomentum(strategy.Params{"ema_fast": 20, "ema_slow": 9}); err == nil {
		t.Error("NewMTFMomentum should reject ema_fast >= ema_slow")
	}
	if _, err := NewMTFMomentum(strategy.Params{"exit_decay": 1.5}); err == nil {
		t.Error("NewMTFMomentum should reject exit_decay outside (0,1)")
	}
}
