package builtins

import (
	"fmt"
	"math"
	"time"

	"backlab/internal/align"
	"backlab/internal/domain"
	"backlab/internal/indicator"
	"backlab/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*MTFMomentum)(nil)

// MTFMomentum is a multi-timeframe momentum strategy. The base series is
// resampled to 5x and 15x its granularity; MACD and two EMAs are computed
// at each coarse resolution and projected back onto the base timeline with
// a backward as-of join. A long entry requires all four prior-bar momentum
// conditions to agree across both timeframes; shorts are symmetric. The
// exit fires when the 15x MACD histogram decays below a fraction of the
// extreme it reached during the trade.
type MTFMomentum struct {
	emaFast    int
	emaSlow    int
	macdFast   int
	macdSlow   int
	macdSignal int
	exitDecay  float64
	warmupBars int
}

// NewMTFMomentum creates an MTFMomentum strategy from params. Recognized
// keys: "ema_fast" (9), "ema_slow" (20), "macd_fast" (12), "macd_slow"
// (26), "macd_signal" (9), "exit_decay" (0.2), "warmup_bars" (30).
func NewMTFMomentum(params strategy.Params) (strategy.Strategy, error) {
	s := &MTFMomentum{
		emaFast:    int(params.Get("ema_fast", 9)),
		emaSlow:    int(params.Get("ema_slow", 20)),
		macdFast:   int(params.Get("macd_fast", 12)),
		macdSlow:   int(params.Get("macd_slow", 26)),
		macdSignal: int(params.Get("macd_signal", 9)),
		exitDecay:  params.Get("exit_decay", 0.2),
		warmupBars: int(params.Get("warmup_bars", 30)),
	}
	if s.emaFast >= s.emaSlow {
		return nil, fmt.Errorf("mtf-momentum: ema_fast %d must be less than ema_slow %d", s.emaFast, s.emaSlow)
	}
	if s.exitDecay <= 0 || s.exitDecay >= 1 {
		return nil, fmt.Errorf("mtf-momentum: exit_decay must be in (0,1), got %v", s.exitDecay)
	}
	return s, nil
}

// Name returns "mtf-momentum".
func (s *MTFMomentum) Name() string {
	return "mtf-momentum"
}

// IndicatorColumns returns the columns the signal conditions read.
func (s *MTFMomentum) IndicatorColumns() []string {
	return []string{
		"r5_macd_line", "r5_macd_signal", "r5_ema_fast", "r5_ema_slow",
		"r15_macd_line", "r15_macd_signal", "r15_macd_hist", "r15_ema_fast", "r15_ema_slow",
	}
}

// baseInterval infers the base bar width from the first two timestamps.
func baseInterval(bars []domain.Bar) time.Duration {
	if len(bars) < 2 {
		return time.Minute
	}
	d := bars[1].Timestamp.Sub(bars[0].Timestamp)
	if d <= 0 {
		return time.Minute
	}
	return d
}

// Prepare resamples the base series to 5x and 15x, computes MACD and EMAs
// at each coarse resolution, joins them back, and trims the warm-up prefix.
func (s *MTFMomentum) Prepare(bars []domain.Bar, _ string, _ domain.DateRange) ([]domain.AlignedRow, error) {
	if err := domain.ValidateBars(bars); err != nil {
		return nil, err
	}

	width := baseInterval(bars)
	rows := align.NewRows(bars)

	for _, res := range []struct {
		factor int
		prefix string
	}{
		{5, "r5_"},
		{15, "r15_"},
	} {
		cs := align.Resample(bars, time.Duration(res.factor)*width)
		closes := cs.Closes()

		line, sig, hist := indicator.MACD(closes, s.macdFast, s.macdSlow, s.macdSignal)
		cs.AddColumn("macd_line", line)
		cs.AddColumn("macd_signal", sig)
		cs.AddColumn("macd_hist", hist)
		cs.AddColumn("ema_fast", indicator.EMA(closes, s.emaFast))
		cs.AddColumn("ema_slow", indicator.EMA(closes, s.emaSlow))

		align.Join(rows, cs, res.prefix)
	}

	// Discard the warm-up prefix so the slowest coarse indicators have had
	// time to stabilize and every surviving row carries both resolutions.
	cut := s.warmupBars
	if cut >= len(rows) {
		return nil, nil
	}
	return rows[cut:], nil
}

// GenerateSignals emits entries when all prior-bar momentum conditions
// agree, and exits on MACD-histogram decay tracked from entry.
func (s *MTFMomentum) GenerateSignals(rows []domain.AlignedRow) ([]domain.SignalFlags, error) {
	flags := make([]domain.SignalFlags, len(rows))

	inLong, inShort := false, false
	var peakHist, troughHist float64

	for i := 1; i < len(rows); i++ {
		prev := rows[i-1].Values
		vals := []float64{
			prev["r5_macd_line"], prev["r5_macd_signal"],
			prev["r5_ema_fast"], prev["r5_ema_slow"],
			prev["r15_macd_line"], prev["r15_macd_signal"],
			prev["r15_ema_fast"], prev["r15_ema_slow"],
			prev["r15_macd_hist"],
		}
		nan := false
		for _, v := range vals {
			if math.IsNaN(v) {
				nan = true
				break
			}
		}
		if nan {
			continue
		}

		longSetup := prev["r5_macd_line"] > prev["r5_macd_signal"] &&
			prev["r5_ema_fast"] > prev["r5_ema_slow"] &&
			prev["r15_macd_line"] > prev["r15_macd_signal"] &&
			prev["r15_ema_fast"] > prev["r15_ema_slow"]
		shortSetup := prev["r5_macd_line"] < prev["r5_macd_signal"] &&
			prev["r5_ema_fast"] < prev["r5_ema_slow"] &&
			prev["r15_macd_line"] < prev["r15_macd_signal"] &&
			prev["r15_ema_fast"] < prev["r15_ema_slow"]

		hist := prev["r15_macd_hist"]

		switch {
		case inLong:
			if hist > peakHist {
				peakHist = hist
			}
			if hist < s.exitDecay*peakHist {
				flags[i].ExitLong = true
				inLong = false
			}
		case inShort:
			if hist < troughHist {
				troughHist = hist
			}
			if hist > s.exitDecay*troughHist {
				flags[i].ExitShort = true
				inShort = false
			}
		case longSetup:
			flags[i].EntryLong = true
			inLong = true
			peakHist = hist
		case shortSetup:
			flags[i].EntryShort = true
			inShort = true
			troughHist = hist
		}
	}
	return flags, nil
}
