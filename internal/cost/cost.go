// Package cost models realistic transaction costs: commission, spread,
// square-root market impact, and timing cost. Costs are charged per fill
// (entry and exit independently) and subtracted from a trade's gross profit
// before risk checks and statistics see it.
package cost

import (
	"fmt"
	"math"

	"backlab/internal/domain"
	"backlab/internal/indicator"
)

// Config holds the transaction cost parameters.
type Config struct {
	CommissionRate    float64 `yaml:"commission_rate"`    // fraction of notional, e.g. 0.0003
	MinCommission     float64 `yaml:"min_commission"`     // currency floor per fill
	BaseSpread        float64 `yaml:"base_spread"`        // fraction of price, e.g. 0.001
	ImpactCoefficient float64 `yaml:"impact_coefficient"` // scales the sqrt impact term
}

// DefaultConfig returns conservative defaults: 3 bps commission with a
// 20-currency floor, 10 bps spread, unit impact coefficient.
func DefaultConfig() Config {
	return Config{
		CommissionRate:    0.0003,
		MinCommission:     20,
		BaseSpread:        0.001,
		ImpactCoefficient: 1.0,
	}
}

// Validate rejects nonsensical parameters. Called at run start so bad
// configuration fails before any task dispatches.
func (c Config) Validate() error {
	if c.CommissionRate < 0 {
		return fmt.Errorf("cost: commission_rate must be >= 0, got %v", c.CommissionRate)
	}
	if c.MinCommission < 0 {
		return fmt.Errorf("cost: min_commission must be >= 0, got %v", c.MinCommission)
	}
	if c.BaseSpread < 0 {
		return fmt.Errorf("cost: base_spread must be >= 0, got %v", c.BaseSpread)
	}
	if c.ImpactCoefficient < 0 {
		return fmt.Errorf("cost: impact_coefficient must be >= 0, got %v", c.ImpactCoefficient)
	}
	return nil
}

// MarketState captures the liquidity context around one fill. Missing
// inputs fall back to conservative defaults rather than failing the trade.
type MarketState struct {
	Price     float64
	ADV       float64 // rolling average daily/period volume
	Spread    float64 // fraction of price; 0 means unknown
	DecisionP float64 // decision price; 0 means same as execution price
}

// Breakdown is the per-fill cost decomposition.
type Breakdown struct {
	Commission float64
	Spread     float64
	Impact     float64
	Timing     float64
}

// Total returns the sum of all components.
func (b Breakdown) Total() float64 {
	return b.Commission + b.Spread + b.Impact + b.Timing
}

// Model computes transaction costs from a Config.
type Model struct {
	cfg Config
}

// NewModel creates a cost model. The zero-valued Config is usable but
// charges nothing; use DefaultConfig for realistic settings.
func NewModel(cfg Config) *Model {
	return &Model{cfg: cfg}
}

// FillCost prices a single fill of `size` units at `price` given the
// surrounding market state.
func (m *Model) FillCost(size, price float64, ms MarketState) Breakdown {
	notional := size * price

	spread := ms.Spread
	if spread <= 0 {
		spread = m.cfg.BaseSpread
	}
	if spread <= 0 {
		spread = 0.001 // 10 bps fallback when nothing is known
	}

	// Spread widens with the trade's share of average volume.
	sizeFactor := 0.01
	if ms.ADV > 0 {
		sizeFactor = size / ms.ADV
	}
	adjSpread := spread * (1 + sizeFactor*10)

	var impact float64
	if ms.ADV > 0 {
		participation := size / ms.ADV
		impactBps := spread * 10000 * math.Sqrt(participation)
		impact = m.cfg.ImpactCoefficient * notional * impactBps / 10000
	}

	var timing float64
	if ms.DecisionP > 0 {
		timing = math.Abs(price-ms.DecisionP) * size
	}

	return Breakdown{
		Commission: math.Max(m.cfg.MinCommission, notional*m.cfg.CommissionRate),
		Spread:     notional * adjSpread / 2, // pay half the spread
		Impact:     impact,
		Timing:     timing,
	}
}

// Apply charges entry and exit fills on the trade and fills in its cost and
// net-profit fields. The identity NetProfit == GrossProfit - TotalCost holds
// exactly. entryMS and exitMS describe the market around each fill.
func (m *Model) Apply(t *domain.Trade, entryMS, exitMS MarketState) {
	t.Notional = t.Size * t.EntryPrice
	if t.Direction == domain.DirectionLong {
		t.GrossProfit = (t.ExitPrice - t.EntryPrice) * t.Size
	} else {
		t.GrossProfit = (t.EntryPrice - t.ExitPrice) * t.Size
	}

	in := m.FillCost(t.Size, t.EntryPrice, entryMS)
	out := m.FillCost(t.Size, t.ExitPrice, exitMS)

	t.Commission = in.Commission + out.Commission
	t.SpreadCost = in.Spread + out.Spread
	t.ImpactCost = in.Impact + out.Impact
	t.TimingCost = in.Timing + out.Timing
	t.TotalCost = t.Commission + t.SpreadCost + t.ImpactCost + t.TimingCost
	t.NetProfit = t.GrossProfit - t.TotalCost
}

// StateAt derives the market state at bar index i of a series: price from
// the bar's close, ADV and spread from a trailing 20-bar window. The
// spread estimate is the bar's high-low range relative to its close, the
// usual proxy when quote data is unavailable.
func StateAt(bars []domain.Bar, i int) MarketState {
	ms := MarketState{}
	if i < 0 || i >= len(bars) {
		return ms
	}
	b := bars[i]
	ms.Price = b.Close
	if b.Close > 0 && b.High >= b.Low {
		ms.Spread = (b.High - b.Low) / b.Close
	}

	volumes := make([]float64, len(bars))
	for j, bb := range bars {
		volumes[j] = bb.Volume
	}
	adv := indicator.RollingMean(volumes, 20)
	if v := adv[i]; !math.IsNaN(v) {
		ms.ADV = v
	} else {
		ms.ADV = b.Volume
	}
	return ms
}
