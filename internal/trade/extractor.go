// Package trade converts a strategy's entry/exit flag stream into a list of
// closed trades via an explicit per-run state machine.
package trade

import (
	"time"

	"backlab/internal/domain"
)

// State is the lifecycle state of the extractor.
type State int

const (
	Idle State = iota
	InLong
	InShort
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case InLong:
		return "in_long"
	case InShort:
		return "in_short"
	default:
		return "idle"
	}
}

// Extractor walks aligned rows and signal flags bar by bar, opening at most
// one position at a time, tracking running extrema of the close price with
// their timestamps, and emitting closed trades. Entry signals in the
// opposite direction while a position is open are ignored: no pyramiding,
// no reversal-on-signal.
type Extractor struct {
	ticker string
	state  State
	open   domain.Trade
	closed []domain.Trade
}

// NewExtractor creates an Extractor for one ticker within one run.
func NewExtractor(ticker string) *Extractor {
	return &Extractor{ticker: ticker}
}

// State returns the current lifecycle state.
func (e *Extractor) State() State {
	return e.state
}

// Step advances the state machine by one bar. Fill price is the bar's close.
func (e *Extractor) Step(row domain.AlignedRow, flags domain.SignalFlags) {
	bar := row.Bar

	switch e.state {
	case Idle:
		switch {
		case flags.EntryLong:
			e.openTrade(domain.DirectionLong, bar)
			e.state = InLong
		case flags.EntryShort:
			e.openTrade(domain.DirectionShort, bar)
			e.state = InShort
		}

	case InLong:
		e.updateExtrema(bar)
		if flags.ExitLong {
			e.closeTrade(bar)
			e.state = Idle
		}

	case InShort:
		e.updateExtrema(bar)
		if flags.ExitShort {
			e.closeTrade(bar)
			e.state = Idle
		}
	}
}

// Extract runs the full series through the state machine and returns the
// ordered list of closed trades. A trade still open when the series ends is
// discarded. rows and flags must be the same length.
func Extract(ticker string, rows []domain.AlignedRow, flags []domain.SignalFlags) []domain.Trade {
	e := NewExtractor(ticker)
	for i := range rows {
		e.Step(rows[i], flags[i])
	}
	return e.Closed()
}

// Closed returns the trades closed so far.
func (e *Extractor) Closed() []domain.Trade {
	return e.closed
}

func (e *Extractor) openTrade(dir domain.Direction, bar domain.Bar) {
	e.open = domain.Trade{
		Ticker:     e.ticker,
		Direction:  dir,
		EntryTime:  bar.Timestamp,
		EntryPrice: bar.Close,
		High:       bar.Close,
		HighTime:   bar.Timestamp,
		Low:        bar.Close,
		LowTime:    bar.Timestamp,
	}
}

func (e *Extractor) updateExtrema(bar domain.Bar) {
	if bar.Close > e.open.High {
		e.open.High = bar.Close
		e.open.HighTime = bar.Timestamp
	}
	if bar.Close < e.open.Low {
		e.open.Low = bar.Close
		e.open.LowTime = bar.Timestamp
	}
}

func (e *Extractor) closeTrade(bar domain.Bar) {
	t := e.open
	t.ExitTime = bar.Timestamp
	t.ExitPrice = bar.Close
	t.DurationMin = t.ExitTime.Sub(t.EntryTime).Minutes()

	var reward, risk float64
	var adverseTime time.Time
	if t.Direction == domain.DirectionLong {
		t.ProfitPerUnit = t.ExitPrice - t.EntryPrice
		if t.EntryPrice != 0 {
			t.TargetPct = 100 * (t.High - t.EntryPrice) / t.EntryPrice
			t.DrawdownPct = 100 * (t.EntryPrice - t.Low) / t.EntryPrice
		}
		reward = t.ProfitPerUnit
		risk = t.EntryPrice - t.Low
		adverseTime = t.LowTime
	} else {
		t.ProfitPerUnit = t.EntryPrice - t.ExitPrice
		if t.EntryPrice != 0 {
			t.TargetPct = 100 * (t.EntryPrice - t.Low) / t.EntryPrice
			t.DrawdownPct = 100 * (t.High - t.EntryPrice) / t.EntryPrice
		}
		reward = t.ProfitPerUnit
		risk = t.High - t.EntryPrice
		adverseTime = t.HighTime
	}

	if t.EntryPrice != 0 {
		t.ProfitPct = 100 * t.ProfitPerUnit / t.EntryPrice
	}
	if risk != 0 {
		t.RewardRisk = reward / risk
	}

	// Recovery: minutes from the adverse extremum to the exit, clamped >= 0.
	recovery := t.ExitTime.Sub(adverseTime).Minutes()
	if recovery < 0 {
		recovery = 0
	}
	t.RecoveryMin = recovery

	e.closed = append(e.closed, t)
	e.open = domain.Trade{}
}
