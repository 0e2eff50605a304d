// Package domain defines the core data types shared across the backtesting
// pipeline: bars, aligned rows, signal flags, trades, and date ranges.
package domain

import (
	"errors"
	"time"
)

// Sentinel errors used at the task boundary.
var (
	// ErrNoData indicates the requested series does not exist or is empty.
	ErrNoData = errors.New("no data for series")

	// ErrBadSeries indicates the series failed structural validation
	// (OHLC inconsistency, non-monotonic timestamps, negative volume).
	ErrBadSeries = errors.New("invalid bar series")
)

// Direction is the side of a trade.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Bar is a single OHLCV price sample at a fixed resolution.
type Bar struct {
	Ticker    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// DateRange identifies the time window of one backtest run. Label is the
// human-readable form used to key results and on-disk files
// (e.g. "2024-01-02_2024-03-28").
type DateRange struct {
	Start time.Time
	End   time.Time
	Label string
}

// AlignedRow is a base-resolution bar augmented with indicator values
// projected from coarser resolutions via a backward as-of join.
//
// Values maps indicator name to its value at this row; a value may be NaN
// while the indicator is still warming up. SourceTS maps indicator name to
// the close timestamp of the bar the value was computed from. The aligner
// guarantees SourceTS[name] <= Bar.Timestamp for every attached value.
type AlignedRow struct {
	Bar      Bar
	Values   map[string]float64
	SourceTS map[string]time.Time
}

// Value returns the named indicator value and whether it is present.
func (r *AlignedRow) Value(name string) (float64, bool) {
	v, ok := r.Values[name]
	return v, ok
}

// SignalFlags holds the four per-row entry/exit booleans emitted by a
// strategy. Flags at row T must be computed from indicator values at row
// T-1 or earlier.
type SignalFlags struct {
	EntryLong  bool
	ExitLong   bool
	EntryShort bool
	ExitShort  bool
}

// Any reports whether any flag is set.
func (f SignalFlags) Any() bool {
	return f.EntryLong || f.ExitLong || f.EntryShort || f.ExitShort
}

// Trade is one closed trade produced by the lifecycle extractor.
//
// Price-level fields (ProfitPerUnit, ProfitPct, TargetPct, DrawdownPct,
// RewardRisk) are computed from fill prices alone. Currency fields
// (GrossProfit, TotalCost, NetProfit) additionally use Size, with the exact
// identity NetProfit == GrossProfit - TotalCost.
type Trade struct {
	Ticker    string
	Direction Direction

	EntryTime  time.Time
	EntryPrice float64
	ExitTime   time.Time
	ExitPrice  float64

	// Running extrema of the close price while the trade was open.
	High     float64
	HighTime time.Time
	Low      float64
	LowTime  time.Time

	DurationMin   float64
	ProfitPerUnit float64
	ProfitPct     float64
	TargetPct     float64
	DrawdownPct   float64
	RewardRisk    float64
	RecoveryMin   float64

	// Sizing and costs, filled in by the executor and the cost model.
	Size        float64
	Notional    float64
	GrossProfit float64
	Commission  float64
	SpreadCost  float64
	ImpactCost  float64
	TimingCost  float64
	TotalCost   float64
	NetProfit   float64
}

// Win reports whether the trade closed with a positive net profit.
func (t *Trade) Win() bool {
	return t.NetProfit > 0
}
