// Package builtins provides the built-in strategy implementations shipped
// with backlab and a registry pre-loaded with all of them.
package builtins

import (
	"fmt"
	"math"

	"backlab/internal/align"
	"backlab/internal/domain"
	"backlab/internal/indicator"
	"backlab/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross is a two-moving-average crossover strategy: long when the fast
// SMA crosses above the slow SMA (golden cross), short when it crosses
// below (death cross). A cross is detected between rows T-2 and T-1, so
// the flag at row T never depends on row T's own indicator values.
type SMACross struct {
	fast      int
	slow      int
	minVolume float64
}

// NewSMACross creates an SMACross strategy from params. Recognized keys:
// "fast" (default 5), "slow" (default 20), "min_volume" (default 0).
func NewSMACross(params strategy.Params) (strategy.Strategy, error) {
	s := &SMACross{
		fast:      int(params.Get("fast", 5)),
		slow:      int(params.Get("slow", 20)),
		minVolume: params.Get("min_volume", 0),
	}
	if s.fast <= 0 || s.slow <= 0 {
		return nil, fmt.Errorf("sma-cross: periods must be positive, got fast=%d slow=%d", s.fast, s.slow)
	}
	if s.fast >= s.slow {
		return nil, fmt.Errorf("sma-cross: fast period %d must be less than slow period %d", s.fast, s.slow)
	}
	return s, nil
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// IndicatorColumns returns the columns the signal conditions read.
func (s *SMACross) IndicatorColumns() []string {
	return []string{"sma_fast", "sma_slow"}
}

// Prepare computes the two SMAs at the base resolution and discards the
// warm-up prefix where the slow SMA has not stabilized.
func (s *SMACross) Prepare(bars []domain.Bar, _ string, _ domain.DateRange) ([]domain.AlignedRow, error) {
	if err := domain.ValidateBars(bars); err != nil {
		return nil, err
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	rows := align.NewRows(bars)
	align.AttachBase(rows, "sma_fast", indicator.SMA(closes, s.fast))
	align.AttachBase(rows, "sma_slow", indicator.SMA(closes, s.slow))

	// The first slow-1 rows hold NaN for sma_slow.
	cut := s.slow - 1
	if cut >= len(rows) {
		return nil, nil
	}
	return rows[cut:], nil
}

// GenerateSignals detects crossovers using rows T-1 and T-2 only.
func (s *SMACross) GenerateSignals(rows []domain.AlignedRow) ([]domain.SignalFlags, error) {
	flags := make([]domain.SignalFlags, len(rows))

	for i := 2; i < len(rows); i++ {
		fastPrev := rows[i-1].Values["sma_fast"]
		slowPrev := rows[i-1].Values["sma_slow"]
		fastPrev2 := rows[i-2].Values["sma_fast"]
		slowPrev2 := rows[i-2].Values["sma_slow"]
		if math.IsNaN(fastPrev) || math.IsNaN(slowPrev) || math.IsNaN(fastPrev2) || math.IsNaN(slowPrev2) {
			continue
		}
		if rows[i-1].Bar.Volume < s.minVolume {
			continue
		}

		golden := fastPrev2 <= slowPrev2 && fastPrev > slowPrev
		death := fastPrev2 >= slowPrev2 && fastPrev < slowPrev

		if golden {
			flags[i].EntryLong = true
			flags[i].ExitShort = true
		}
		if death {
			flags[i].EntryShort = true
			flags[i].ExitLong = true
		}
	}
	return flags, nil
}
