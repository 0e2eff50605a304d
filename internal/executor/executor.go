// Package executor fans backtest tasks out over a worker pool and runs each
// one through the full pipeline: load bars, prepare indicators, generate
// signals, audit for look-ahead leaks, gate entries through the risk
// manager, price fills, and summarise.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"

	"backlab/internal/bias"
	"backlab/internal/cost"
	"backlab/internal/domain"
	"backlab/internal/indicator"
	"backlab/internal/risk"
	"backlab/internal/stats"
	"backlab/internal/strategy"
	"backlab/internal/trade"
)

// SeriesLoader supplies the base bar series for one ticker and range.
type SeriesLoader interface {
	LoadSeries(ticker string, dr domain.DateRange) ([]domain.Bar, error)
}

// Task identifies one backtest unit of work.
type Task struct {
	Ticker   string
	Range    domain.DateRange
	Strategy string
	Params   strategy.Params
}

// Result is the outcome of one task. A failed task carries Err and empty
// trade data so one bad series never aborts the run.
type Result struct {
	Task        Task
	Trades      []domain.Trade
	Report      stats.Report
	Signals     int // entry signals the strategy produced
	Approved    int // entries the risk manager let through
	Attribution string
	RiskScore   float64    // mean score across evaluated proposals
	Risk        risk.Stats // cumulative for the shared manager in portfolio mode
	Violations  []bias.Violation
	Err         string
}

// Results groups task outcomes by strategy, then range label, then ticker.
type Results map[string]map[string]map[string]Result

// Get looks up one result.
func (r Results) Get(strategyName, rangeLabel, ticker string) (Result, bool) {
	byRange, ok := r[strategyName]
	if !ok {
		return Result{}, false
	}
	byTicker, ok := byRange[rangeLabel]
	if !ok {
		return Result{}, false
	}
	res, ok := byTicker[ticker]
	return res, ok
}

func (r Results) put(res Result) {
	t := res.Task
	if r[t.Strategy] == nil {
		r[t.Strategy] = make(map[string]map[string]Result)
	}
	if r[t.Strategy][t.Range.Label] == nil {
		r[t.Strategy][t.Range.Label] = make(map[string]Result)
	}
	r[t.Strategy][t.Range.Label][t.Ticker] = res
}

// Config controls how a run is executed.
type Config struct {
	Parallel      int  `yaml:"parallel"`       // worker count, 0 means GOMAXPROCS
	PortfolioMode bool `yaml:"portfolio_mode"` // shared capital, sequential tasks
}

// Executor runs tasks against a loader and a strategy registry.
type Executor struct {
	cfg      Config
	loader   SeriesLoader
	registry *strategy.Registry
	costs    *cost.Model
	riskCfg  risk.Config
	log      *slog.Logger
}

// New creates an Executor. A nil logger falls back to slog.Default.
func New(cfg Config, loader SeriesLoader, reg *strategy.Registry, costs *cost.Model, riskCfg risk.Config, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		cfg:      cfg,
		loader:   loader,
		registry: reg,
		costs:    costs,
		riskCfg:  riskCfg,
		log:      log,
	}
}

// Run executes all tasks and returns their grouped results. In portfolio
// mode tasks run sequentially against one shared portfolio state; otherwise
// each task gets its own risk manager and tasks run across the worker pool.
// Cancelling the context stops dispatching further tasks.
func (e *Executor) Run(ctx context.Context, tasks []Task) Results {
	results := make(Results)
	if len(tasks) == 0 {
		return results
	}

	slots := distinctTickers(tasks)

	if e.cfg.PortfolioMode {
		shared := risk.NewManager(e.riskCfg, e.log)
		for _, t := range tasks {
			if ctx.Err() != nil {
				e.log.Warn("run cancelled", "remaining", len(tasks))
				break
			}
			results.put(e.runTask(ctx, t, shared, slots))
		}
		return results
	}

	workers := e.cfg.Parallel
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(tasks) {
		workers = len(tasks)
	}

	taskCh := make(chan Task)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range taskCh {
				res := e.runTask(ctx, t, risk.NewManager(e.riskCfg, e.log), slots)
				mu.Lock()
				results.put(res)
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, t := range tasks {
		if ctx.Err() != nil {
			e.log.Warn("run cancelled, draining workers")
			break
		}
		select {
		case <-ctx.Done():
			e.log.Warn("run cancelled, draining workers")
			break dispatch
		case taskCh <- t:
		}
	}
	close(taskCh)
	wg.Wait()
	return results
}

func distinctTickers(tasks []Task) int {
	seen := make(map[string]struct{})
	for _, t := range tasks {
		seen[t.Ticker] = struct{}{}
	}
	return len(seen)
}

// runTask executes one task end to end. Panics from strategy code are
// converted into a failed result.
func (e *Executor) runTask(ctx context.Context, t Task, rm *risk.Manager, slots int) (res Result) {
	res.Task = t
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("task panicked",
				"strategy", t.Strategy, "ticker", t.Ticker, "range", t.Range.Label, "panic", r)
			res = Result{Task: t, Err: fmt.Sprintf("panic: %v", r)}
		}
	}()

	fail := func(stage string, err error) Result {
		e.log.Error("task failed",
			"strategy", t.Strategy, "ticker", t.Ticker, "range", t.Range.Label,
			"stage", stage, "err", err)
		res.Err = fmt.Sprintf("%s: %v", stage, err)
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail("cancelled", err)
	}

	bars, err := e.loader.LoadSeries(t.Ticker, t.Range)
	if err != nil {
		return fail("load", err)
	}
	if len(bars) == 0 {
		return fail("load", domain.ErrNoData)
	}

	strat, err := e.registry.New(t.Strategy, t.Params)
	if err != nil {
		return fail("strategy", err)
	}

	rows, err := strat.Prepare(bars, t.Ticker, t.Range)
	if err != nil {
		return fail("prepare", err)
	}
	flags, err := strat.GenerateSignals(rows)
	if err != nil {
		return fail("signals", err)
	}

	res.Violations = bias.ValidateNoLookahead(rows, flags, strat.IndicatorColumns())
	for _, v := range res.Violations {
		e.log.Warn("look-ahead violation", "ticker", t.Ticker, "detail", v.String())
	}

	res.Trades, res.Signals, res.Approved, res.RiskScore = e.simulate(t.Ticker, rows, flags, rm, slots)
	res.Attribution = risk.Attribute(res.Signals, res.Approved)
	res.Risk = rm.Stats()
	res.Report = stats.Compute(res.Trades, rm.State().Capital())

	e.log.Info("task done",
		"strategy", t.Strategy, "ticker", t.Ticker, "range", t.Range.Label,
		"signals", res.Signals, "approved", res.Approved, "trades", len(res.Trades),
		"net", res.Report.All.TotalNetProfit)
	return res
}

// simulate replays the signal stream bar by bar, asking the risk manager
// before every entry and booking costs and portfolio effects on every exit.
func (e *Executor) simulate(ticker string, rows []domain.AlignedRow, flags []domain.SignalFlags, rm *risk.Manager, slots int) (trades []domain.Trade, signals, approved int, meanScore float64) {
	closes := make([]float64, len(rows))
	volumes := make([]float64, len(rows))
	for i, r := range rows {
		closes[i] = r.Bar.Close
		volumes[i] = r.Bar.Volume
	}
	advArr := indicator.RollingMean(volumes, 20)
	volArr := indicator.RollingStd(indicator.Returns(closes), 20)

	ext := trade.NewExtractor(ticker)
	var openSize, openValue float64
	var entryMS cost.MarketState
	var scoreSum float64
	var scored int

	for i := range rows {
		f := flags[i]
		bar := rows[i].Bar

		wantsEntry := ext.State() == trade.Idle && (f.EntryLong || f.EntryShort)
		if wantsEntry {
			signals++
			ms := marketStateAt(rows, advArr, i)
			size := sliceSize(rm, slots, bar.Close)
			vol := annualizedVol(volArr[i])
			decision := rm.Evaluate(risk.Proposal{
				Ticker:     ticker,
				Time:       bar.Timestamp,
				Size:       size,
				Price:      bar.Close,
				ADV:        ms.ADV,
				Volatility: vol,
			})
			scoreSum += decision.RiskScore
			scored++
			if !decision.Approved {
				f.EntryLong = false
				f.EntryShort = false
			} else {
				approved++
				openSize = size
				openValue = size * bar.Close
				entryMS = ms
				rm.State().ApplyTrade(ticker, openValue)
			}
		}

		before := len(ext.Closed())
		ext.Step(rows[i], f)
		if len(ext.Closed()) > before {
			closed := ext.Closed()
			tr := &closed[len(closed)-1]
			tr.Size = openSize
			e.costs.Apply(tr, entryMS, marketStateAt(rows, advArr, i))
			rm.State().ReleasePosition(ticker, openValue, tr.NetProfit)
		}
	}

	// A still-open position at series end releases its reserved value with
	// no realised profit; the unclosed trade itself is discarded.
	if ext.State() != trade.Idle {
		rm.State().ReleasePosition(ticker, openValue, 0)
	}

	if scored > 0 {
		meanScore = scoreSum / float64(scored)
	}
	return ext.Closed(), signals, approved, meanScore
}

func marketStateAt(rows []domain.AlignedRow, advArr []float64, i int) cost.MarketState {
	b := rows[i].Bar
	ms := cost.MarketState{Price: b.Close}
	if b.Close > 0 && b.High >= b.Low {
		ms.Spread = (b.High - b.Low) / b.Close
	}
	if v := advArr[i]; !math.IsNaN(v) && v > 0 {
		ms.ADV = v
	} else {
		ms.ADV = b.Volume
	}
	return ms
}

// sliceSize converts an equal-weight capital slice into units at the
// current price.
func sliceSize(rm *risk.Manager, slots int, price float64) float64 {
	if price <= 0 {
		return 0
	}
	return rm.SliceValue(slots) / price
}

// annualizedVol scales a per-bar return deviation by the daily trading
// calendar. Intraday series overstate slightly; the risk ceiling treats
// that as conservatism, not error.
func annualizedVol(perBar float64) float64 {
	if math.IsNaN(perBar) {
		return 0
	}
	return perBar * math.Sqrt(stats.TradingDaysPerYear)
}
