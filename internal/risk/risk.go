// Package risk gates proposed trades against position, portfolio, and
// market-condition limits. Every proposal runs through a fixed set of named
// checks and gets back a full decision record, so a run can explain not just
// that a trade was rejected but exactly which limit it hit.
package risk

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"
)

// Config holds the risk limits. Fractions are of capital unless noted.
type Config struct {
	InitialCapital       float64 `yaml:"initial_capital"`
	MaxPositionSizePct   float64 `yaml:"max_position_size_pct"`   // single position vs capital
	MaxPortfolioExposure float64 `yaml:"max_portfolio_exposure"`  // sum of positions vs capital
	MaxDrawdownPct       float64 `yaml:"max_drawdown_pct"`        // peak-to-trough equity
	MaxLeverage          float64 `yaml:"max_leverage"`            // gross exposure vs equity
	MaxConcentration     float64 `yaml:"max_concentration"`       // per-ticker value vs capital
	MaxADVParticipation  float64 `yaml:"max_adv_participation"`   // order size vs average volume
	MaxAnnualizedVol     float64 `yaml:"max_annualized_vol"`      // instrument volatility ceiling
	MaxDailyLossPct      float64 `yaml:"max_daily_loss_pct"`      // realised loss per day vs capital
	StopLossPct          float64 `yaml:"stop_loss_pct"`           // per-position stop distance
	TakeProfitPct        float64 `yaml:"take_profit_pct"`         // per-position profit target
	PositionTimeoutMin   float64 `yaml:"position_timeout_minutes"` // max holding time
	BypassMode           bool    `yaml:"bypass_mode"`             // approve everything, still record
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{
		InitialCapital:       1_000_000,
		MaxPositionSizePct:   0.25,
		MaxPortfolioExposure: 1.0,
		MaxDrawdownPct:       0.20,
		MaxLeverage:          1.5,
		MaxConcentration:     0.30,
		MaxADVParticipation:  0.10,
		MaxAnnualizedVol:     0.50,
		MaxDailyLossPct:      0.02,
		StopLossPct:          0.05,
		TakeProfitPct:        0.10,
		PositionTimeoutMin:   240,
	}
}

// Validate fails fast on limits that could never approve anything.
func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("risk: initial_capital must be > 0, got %v", c.InitialCapital)
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"max_position_size_pct", c.MaxPositionSizePct},
		{"max_portfolio_exposure", c.MaxPortfolioExposure},
		{"max_drawdown_pct", c.MaxDrawdownPct},
		{"max_leverage", c.MaxLeverage},
		{"max_concentration", c.MaxConcentration},
		{"max_adv_participation", c.MaxADVParticipation},
		{"max_annualized_vol", c.MaxAnnualizedVol},
		{"max_daily_loss_pct", c.MaxDailyLossPct},
		{"stop_loss_pct", c.StopLossPct},
		{"take_profit_pct", c.TakeProfitPct},
		{"position_timeout_minutes", c.PositionTimeoutMin},
	} {
		if f.v <= 0 {
			return fmt.Errorf("risk: %s must be > 0, got %v", f.name, f.v)
		}
	}
	return nil
}

// Check names, also the keys of Decision.Checks and the rejection histogram.
const (
	CheckPositionSize  = "position_size"
	CheckExposure      = "portfolio_exposure"
	CheckDrawdown      = "drawdown"
	CheckLeverage      = "leverage"
	CheckConcentration = "concentration"
	CheckLiquidity     = "liquidity"
	CheckVolatility    = "volatility"
)

// Check is the outcome of one named limit check.
type Check struct {
	Passed  bool
	Current float64
	Limit   float64
	Message string
}

// Decision is the full record of evaluating one trade proposal.
type Decision struct {
	Approved  bool
	Checks    map[string]Check
	RiskScore float64 // mean limit utilisation across checks, 0..1+
}

// FailedChecks returns the names of failed checks in sorted order.
func (d Decision) FailedChecks() []string {
	var names []string
	for name, c := range d.Checks {
		if !c.Passed {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Proposal describes a trade the strategy wants to open.
type Proposal struct {
	Ticker     string
	Time       time.Time
	Size       float64 // units
	Price      float64
	ADV        float64 // average volume context, 0 when unknown
	Volatility float64 // annualized, 0 when unknown
}

// Value returns the proposal's notional.
func (p Proposal) Value() float64 {
	return p.Size * p.Price
}

// Rejection is one entry of the detailed rejection log.
type Rejection struct {
	Ticker string
	Time   time.Time
	Value  float64
	Failed []string
}

// PortfolioState tracks capital, equity, and open position values across
// concurrent evaluations. All methods are safe for concurrent use.
type PortfolioState struct {
	mu        sync.Mutex
	capital   float64
	equity    float64
	peak      float64
	positions map[string]float64 // ticker -> open value, accumulated
}

// NewPortfolioState seeds the state with starting capital.
func NewPortfolioState(capital float64) *PortfolioState {
	return &PortfolioState{
		capital:   capital,
		equity:    capital,
		peak:      capital,
		positions: make(map[string]float64),
	}
}

// ApplyTrade records an opened position. Repeated calls for the same ticker
// accumulate.
func (ps *PortfolioState) ApplyTrade(ticker string, value float64) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.positions[ticker] += value
}

// ReleasePosition removes a closed position's value and applies its realized
// profit to equity, updating the running peak.
func (ps *PortfolioState) ReleasePosition(ticker string, value, profit float64) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.positions[ticker] -= value
	if ps.positions[ticker] <= 0 {
		delete(ps.positions, ticker)
	}
	ps.equity += profit
	if ps.equity > ps.peak {
		ps.peak = ps.equity
	}
}

// Exposure returns the summed value of all open positions.
func (ps *PortfolioState) Exposure() float64 {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.exposureLocked()
}

func (ps *PortfolioState) exposureLocked() float64 {
	var total float64
	for _, v := range ps.positions {
		total += v
	}
	return total
}

// Concentration returns the fraction of total capital that ticker would
// hold if proposedValue were added to its current position.
func (ps *PortfolioState) Concentration(ticker string, proposedValue float64) float64 {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.capital == 0 {
		return 0
	}
	return (ps.positions[ticker] + proposedValue) / ps.capital
}

// Drawdown returns the current peak-to-equity drawdown as a fraction.
func (ps *PortfolioState) Drawdown() float64 {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.peak == 0 {
		return 0
	}
	return (ps.peak - ps.equity) / ps.peak
}

// Equity returns current equity.
func (ps *PortfolioState) Equity() float64 {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.equity
}

// Capital returns the starting capital.
func (ps *PortfolioState) Capital() float64 {
	return ps.capital
}

// Reset restores the state to its starting capital with no positions.
func (ps *PortfolioState) Reset() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.equity = ps.capital
	ps.peak = ps.capital
	ps.positions = make(map[string]float64)
}

// Manager evaluates proposals against the configured limits and keeps
// rejection statistics for the run.
type Manager struct {
	cfg   Config
	state *PortfolioState
	log   *slog.Logger

	mu         sync.Mutex
	evaluated  int
	approved   int
	histogram  map[string]int
	rejections []Rejection
}

// NewManager creates a Manager with a fresh portfolio state.
func NewManager(cfg Config, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		cfg:       cfg,
		state:     NewPortfolioState(cfg.InitialCapital),
		log:       log,
		histogram: make(map[string]int),
	}
}

// State exposes the portfolio state, shared across tasks in portfolio mode.
func (m *Manager) State() *PortfolioState {
	return m.state
}

// SliceValue returns the equal-weight notional for one of n portfolio slots.
func (m *Manager) SliceValue(n int) float64 {
	if n <= 0 {
		return m.cfg.InitialCapital
	}
	return m.cfg.InitialCapital / float64(n)
}

// Evaluate runs all checks against the proposal. In bypass mode the checks
// still run and are recorded, but the decision is always approved.
func (m *Manager) Evaluate(p Proposal) Decision {
	value := p.Value()
	capital := m.state.Capital()
	equity := m.state.Equity()
	exposure := m.state.Exposure()

	checks := map[string]Check{}
	add := func(name string, current, limit float64, passed bool, msg string) {
		checks[name] = Check{Passed: passed, Current: current, Limit: limit, Message: msg}
	}

	sizeFrac := value / capital
	add(CheckPositionSize, sizeFrac, m.cfg.MaxPositionSizePct,
		sizeFrac <= m.cfg.MaxPositionSizePct,
		fmt.Sprintf("position %.4f of capital vs limit %.4f", sizeFrac, m.cfg.MaxPositionSizePct))

	expFrac := (exposure + value) / capital
	add(CheckExposure, expFrac, m.cfg.MaxPortfolioExposure,
		expFrac <= m.cfg.MaxPortfolioExposure,
		fmt.Sprintf("exposure %.4f of capital vs limit %.4f", expFrac, m.cfg.MaxPortfolioExposure))

	dd := m.state.Drawdown()
	add(CheckDrawdown, dd, m.cfg.MaxDrawdownPct,
		dd <= m.cfg.MaxDrawdownPct,
		fmt.Sprintf("drawdown %.4f vs limit %.4f", dd, m.cfg.MaxDrawdownPct))

	var lev float64
	if equity > 0 {
		lev = (exposure + value) / equity
	} else {
		lev = math.Inf(1)
	}
	add(CheckLeverage, lev, m.cfg.MaxLeverage,
		lev <= m.cfg.MaxLeverage,
		fmt.Sprintf("leverage %.4f vs limit %.4f", lev, m.cfg.MaxLeverage))

	conc := m.state.Concentration(p.Ticker, value)
	add(CheckConcentration, conc, m.cfg.MaxConcentration,
		conc <= m.cfg.MaxConcentration,
		fmt.Sprintf("%s concentration %.4f of capital vs limit %.4f", p.Ticker, conc, m.cfg.MaxConcentration))

	// Liquidity and volatility pass when context is unavailable; backtests
	// over sparse data should not silently reject everything.
	part := 0.0
	liquidityOK := true
	liqMsg := "average volume unknown, check skipped"
	if p.ADV > 0 {
		part = p.Size / p.ADV
		liquidityOK = part <= m.cfg.MaxADVParticipation
		liqMsg = fmt.Sprintf("order is %.4f of average volume vs limit %.4f", part, m.cfg.MaxADVParticipation)
	}
	add(CheckLiquidity, part, m.cfg.MaxADVParticipation, liquidityOK, liqMsg)

	vol := p.Volatility
	volOK := true
	volMsg := "volatility unknown, check skipped"
	if vol > 0 && !math.IsNaN(vol) {
		volOK = vol <= m.cfg.MaxAnnualizedVol
		volMsg = fmt.Sprintf("annualized vol %.4f vs limit %.4f", vol, m.cfg.MaxAnnualizedVol)
	} else {
		vol = 0
	}
	add(CheckVolatility, vol, m.cfg.MaxAnnualizedVol, volOK, volMsg)

	d := Decision{Checks: checks, Approved: true}
	var util float64
	for _, c := range checks {
		if !c.Passed {
			d.Approved = false
		}
		if c.Limit > 0 && !math.IsInf(c.Current, 0) {
			util += math.Min(c.Current/c.Limit, 1)
		} else if !c.Passed {
			util += 1
		}
	}
	d.RiskScore = util / float64(len(checks))

	if m.cfg.BypassMode && !d.Approved {
		m.log.Warn("risk bypass: approving trade that failed checks",
			"ticker", p.Ticker, "failed", d.FailedChecks())
		d.Approved = true
	}

	m.record(p, d)
	return d
}

func (m *Manager) record(p Proposal, d Decision) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evaluated++
	if d.Approved {
		m.approved++
		return
	}
	failed := d.FailedChecks()
	for _, name := range failed {
		m.histogram[name]++
	}
	m.rejections = append(m.rejections, Rejection{
		Ticker: p.Ticker,
		Time:   p.Time,
		Value:  p.Value(),
		Failed: failed,
	})
	m.log.Info("trade rejected",
		"ticker", p.Ticker, "value", p.Value(), "failed", failed, "risk_score", d.RiskScore)
}

// Stats summarises the manager's activity over a run.
type Stats struct {
	Evaluated  int
	Approved   int
	Rejected   int
	Histogram  map[string]int
	Rejections []Rejection
}

// Stats returns a copy of the rejection statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	hist := make(map[string]int, len(m.histogram))
	for k, v := range m.histogram {
		hist[k] = v
	}
	return Stats{
		Evaluated:  m.evaluated,
		Approved:   m.approved,
		Rejected:   m.evaluated - m.approved,
		Histogram:  hist,
		Rejections: append([]Rejection(nil), m.rejections...),
	}
}

// Reset clears statistics and restores the portfolio state.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.evaluated = 0
	m.approved = 0
	m.histogram = make(map[string]int)
	m.rejections = nil
	m.mu.Unlock()
	m.state.Reset()
}

// Attribution labels for runs that produced no trades.
const (
	AttrStrategy         = "strategy"
	AttrRiskManager      = "risk_manager"
	AttrPartialRejection = "partial_rejection"
	AttrNone             = ""
)

// Attribute explains why a run produced fewer trades than signals. With no
// signals the strategy simply never fired; with signals but no approvals the
// risk manager blocked everything; otherwise some proposals were rejected.
func Attribute(signals, approved int) string {
	switch {
	case signals == 0:
		return AttrStrategy
	case approved == 0:
		return AttrRiskManager
	case approved < signals:
		return AttrPartialRejection
	default:
		return AttrNone
	}
}
