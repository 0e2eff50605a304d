// Package stats computes performance metrics over a run's closed trades:
// per-trade summaries split by direction, and portfolio-level metrics
// derived from a daily-resampled equity curve.
package stats

import (
	"math"
	"sort"
	"time"

	"backlab/internal/domain"
)

// TradingDaysPerYear is the annualisation base for daily return metrics.
const TradingDaysPerYear = 252

// Summary aggregates per-trade metrics. A zero-trade run yields the zero
// value. WinLossRatio is +Inf when there are wins but no losses.
type Summary struct {
	Trades int
	Wins   int
	Losses int

	WinLossRatio float64
	Accuracy     float64 // wins / trades

	MeanProfit      float64 // currency, from net profit
	MedianProfit    float64
	MeanProfitPct   float64
	MedianProfitPct float64
	TotalNetProfit  float64

	MaxDrawdownPct  float64 // worst in-trade adverse excursion
	MeanDrawdownPct float64

	MeanDurationMin float64
	MeanRewardRisk  float64
	MeanRecoveryMin float64

	ReturnStd float64
	Sharpe    float64 // mean/std of per-trade returns, not annualized
}

// Advanced holds portfolio-level metrics from the daily equity curve.
type Advanced struct {
	AnnualizedSharpe  float64
	Sortino           float64
	Calmar            float64
	ProfitFactor      float64
	MaxDrawdown       float64 // fraction of peak equity
	MaxDrawdownDays   float64
	Skewness          float64
	Kurtosis          float64 // excess
	TailRatio         float64 // p95 / |p5| of daily returns
	Stability         float64 // R^2 of a linear fit on log equity
	TradingDays       int
}

// Report is the full metrics output for one backtest result.
type Report struct {
	All      Summary
	Long     Summary
	Short    Summary
	Advanced Advanced
}

// Compute builds the full report from closed trades and starting capital.
func Compute(trades []domain.Trade, capital float64) Report {
	var long, short []domain.Trade
	for _, t := range trades {
		if t.Direction == domain.DirectionLong {
			long = append(long, t)
		} else {
			short = append(short, t)
		}
	}
	return Report{
		All:      Summarize(trades),
		Long:     Summarize(long),
		Short:    Summarize(short),
		Advanced: ComputeAdvanced(trades, capital),
	}
}

// Summarize computes the per-trade summary for one trade set.
func Summarize(trades []domain.Trade) Summary {
	var s Summary
	s.Trades = len(trades)
	if s.Trades == 0 {
		return s
	}

	profits := make([]float64, 0, len(trades))
	nets := make([]float64, 0, len(trades))
	var returns []float64
	var sumDD, maxDD, sumDur, sumRR, sumRec, sumNet float64
	for _, t := range trades {
		if t.Win() {
			s.Wins++
		} else {
			s.Losses++
		}
		profits = append(profits, t.ProfitPct)
		nets = append(nets, t.NetProfit)
		returns = append(returns, t.ProfitPct/100)
		sumNet += t.NetProfit
		sumDD += t.DrawdownPct
		if t.DrawdownPct > maxDD {
			maxDD = t.DrawdownPct
		}
		sumDur += t.DurationMin
		sumRR += t.RewardRisk
		sumRec += t.RecoveryMin
	}

	n := float64(s.Trades)
	if s.Losses == 0 {
		s.WinLossRatio = math.Inf(1)
	} else {
		s.WinLossRatio = float64(s.Wins) / float64(s.Losses)
	}
	s.Accuracy = float64(s.Wins) / n
	s.MeanProfit = mean(nets)
	s.MedianProfit = median(nets)
	s.MeanProfitPct = mean(profits)
	s.MedianProfitPct = median(profits)
	s.TotalNetProfit = sumNet
	s.MaxDrawdownPct = maxDD
	s.MeanDrawdownPct = sumDD / n
	s.MeanDurationMin = sumDur / n
	s.MeanRewardRisk = sumRR / n
	s.MeanRecoveryMin = sumRec / n

	s.ReturnStd = sampleStd(returns)
	if s.ReturnStd > 0 {
		s.Sharpe = mean(returns) / s.ReturnStd
	}
	return s
}

// ComputeAdvanced derives portfolio metrics from a daily-resampled equity
// curve built off realised trade profits. Fewer than two distinct trading
// days yields the zero value.
func ComputeAdvanced(trades []domain.Trade, capital float64) Advanced {
	var a Advanced
	days, equity := equityByDay(trades, capital)
	a.TradingDays = len(days)
	if len(days) < 2 || capital <= 0 {
		return a
	}

	rets := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] != 0 {
			rets = append(rets, equity[i]/equity[i-1]-1)
		}
	}
	if len(rets) == 0 {
		return a
	}

	mu := mean(rets)
	sd := sampleStd(rets)
	if sd > 0 {
		a.AnnualizedSharpe = mu / sd * math.Sqrt(TradingDaysPerYear)
	}

	var downside []float64
	for _, r := range rets {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if dsd := rmsBelow(downside); dsd > 0 {
		a.Sortino = mu / dsd * math.Sqrt(TradingDaysPerYear)
	}

	a.MaxDrawdown, a.MaxDrawdownDays = maxDrawdown(days, equity)

	years := days[len(days)-1].Sub(days[0]).Hours() / 24 / 365.25
	if years > 0 && a.MaxDrawdown > 0 && equity[0] > 0 {
		annRet := math.Pow(equity[len(equity)-1]/equity[0], 1/years) - 1
		a.Calmar = annRet / a.MaxDrawdown
	}

	var grossWin, grossLoss float64
	for _, t := range trades {
		if t.NetProfit > 0 {
			grossWin += t.NetProfit
		} else {
			grossLoss -= t.NetProfit
		}
	}
	if grossLoss > 0 {
		a.ProfitFactor = grossWin / grossLoss
	} else if grossWin > 0 {
		a.ProfitFactor = math.Inf(1)
	}

	a.Skewness = skewness(rets)
	a.Kurtosis = kurtosis(rets)

	p95 := percentile(rets, 95)
	p5 := percentile(rets, 5)
	if p5 != 0 {
		a.TailRatio = p95 / math.Abs(p5)
	}

	a.Stability = logEquityR2(equity)
	return a
}

// equityByDay walks trades in exit order and books each trade's net profit
// on its exit day, returning one equity point per distinct day.
func equityByDay(trades []domain.Trade, capital float64) ([]time.Time, []float64) {
	if len(trades) == 0 {
		return nil, nil
	}
	ordered := append([]domain.Trade(nil), trades...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].ExitTime.Before(ordered[j].ExitTime)
	})

	var days []time.Time
	var equity []float64
	cur := capital
	for _, t := range ordered {
		day := t.ExitTime.UTC().Truncate(24 * time.Hour)
		cur += t.NetProfit
		if n := len(days); n > 0 && days[n-1].Equal(day) {
			equity[n-1] = cur
		} else {
			days = append(days, day)
			equity = append(equity, cur)
		}
	}
	return days, equity
}

// maxDrawdown returns the deepest peak-to-trough drop as a fraction of the
// peak, and the longest stretch in days spent below a prior peak.
func maxDrawdown(days []time.Time, equity []float64) (depth, durationDays float64) {
	peak := equity[0]
	peakDay := days[0]
	for i := 1; i < len(equity); i++ {
		if equity[i] >= peak {
			peak = equity[i]
			peakDay = days[i]
			continue
		}
		if peak > 0 {
			if dd := (peak - equity[i]) / peak; dd > depth {
				depth = dd
			}
		}
		if d := days[i].Sub(peakDay).Hours() / 24; d > durationDays {
			durationDays = d
		}
	}
	return depth, durationDays
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mu := mean(xs)
	var sq float64
	for _, x := range xs {
		d := x - mu
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(xs)-1))
}

// rmsBelow is the downside deviation used by Sortino: root mean square of
// the negative returns, over the full observation count semantics of the
// subset passed in.
func rmsBelow(neg []float64) float64 {
	if len(neg) == 0 {
		return 0
	}
	var sq float64
	for _, x := range neg {
		sq += x * x
	}
	return math.Sqrt(sq / float64(len(neg)))
}

func skewness(xs []float64) float64 {
	if len(xs) < 3 {
		return 0
	}
	mu := mean(xs)
	var m2, m3 float64
	for _, x := range xs {
		d := x - mu
		m2 += d * d
		m3 += d * d * d
	}
	n := float64(len(xs))
	m2 /= n
	m3 /= n
	if m2 == 0 {
		return 0
	}
	return m3 / math.Pow(m2, 1.5)
}

func kurtosis(xs []float64) float64 {
	if len(xs) < 4 {
		return 0
	}
	mu := mean(xs)
	var m2, m4 float64
	for _, x := range xs {
		d := x - mu
		m2 += d * d
		m4 += d * d * d * d
	}
	n := float64(len(xs))
	m2 /= n
	m4 /= n
	if m2 == 0 {
		return 0
	}
	return m4/(m2*m2) - 3
}

// percentile interpolates linearly between order statistics, p in [0, 100].
func percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	if len(s) == 1 {
		return s[0]
	}
	rank := p / 100 * float64(len(s)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return s[lo]
	}
	frac := rank - float64(lo)
	return s[lo]*(1-frac) + s[hi]*frac
}

// logEquityR2 fits log equity against time index and returns R^2. A curve
// that compounds steadily scores near 1.
func logEquityR2(equity []float64) float64 {
	var xs, ys []float64
	for i, e := range equity {
		if e > 0 {
			xs = append(xs, float64(i))
			ys = append(ys, math.Log(e))
		}
	}
	if len(xs) < 2 {
		return 0
	}
	mx := mean(xs)
	my := mean(ys)
	var sxy, sxx, syy float64
	for i := range xs {
		dx := xs[i] - mx
		dy := ys[i] - my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0
	}
	r := sxy / math.Sqrt(sxx*syy)
	return r * r
}
