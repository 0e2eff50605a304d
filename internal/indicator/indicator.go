// Package indicator provides batch technical indicator calculations over
// price slices. All functions return a slice aligned 1:1 with the input;
// positions where the indicator has not warmed up yet hold NaN.
package indicator

import "math"

var nan = math.NaN()

// SMA computes a simple moving average with the given period.
func SMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 {
		period = 1
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		} else {
			out[i] = nan
		}
	}
	return out
}

// EMA computes an exponential moving average with alpha = 2/(period+1),
// seeded with the first value.
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	if period <= 0 {
		period = 1
	}
	alpha := 2.0 / float64(period+1)
	prev := values[0]
	out[0] = prev
	for i := 1; i < len(values); i++ {
		prev = prev*(1-alpha) + values[i]*alpha
		out[i] = prev
	}
	return out
}

// MACD computes the MACD line, signal line, and histogram for the standard
// fast/slow/signal EMA periods.
func MACD(values []float64, fast, slow, signal int) (line, sig, hist []float64) {
	if fast <= 0 {
		fast = 12
	}
	if slow <= 0 {
		slow = 26
	}
	if signal <= 0 {
		signal = 9
	}

	emaFast := EMA(values, fast)
	emaSlow := EMA(values, slow)

	line = make([]float64, len(values))
	for i := range values {
		line[i] = emaFast[i] - emaSlow[i]
	}
	sig = EMA(line, signal)

	hist = make([]float64, len(values))
	for i := range values {
		hist[i] = line[i] - sig[i]
	}
	return line, sig, hist
}

// RollingMean computes a trailing mean over the previous `period` values,
// excluding the current one. Used for average-volume (ADV) estimates where
// the current bar must not contribute to its own context.
func RollingMean(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 {
		period = 1
	}
	var sum float64
	count := 0
	for i := range values {
		if i == 0 {
			out[i] = nan
		} else {
			out[i] = sum / float64(count)
		}
		sum += values[i]
		count++
		if count > period {
			sum -= values[i-period]
			count--
		}
	}
	return out
}

// Returns computes simple percent-change returns; the first element is NaN.
func Returns(values []float64) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i == 0 || values[i-1] == 0 {
			out[i] = nan
			continue
		}
		out[i] = values[i]/values[i-1] - 1
	}
	return out
}

// RollingStd computes the trailing sample standard deviation of the
// previous `period` values, excluding the current one.
func RollingStd(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 1 {
		period = 2
	}
	for i := range values {
		start := i - period
		if start < 0 {
			start = 0
		}
		window := values[start:i]
		out[i] = stddev(window)
	}
	return out
}

func stddev(window []float64) float64 {
	clean := window[:0:0]
	for _, v := range window {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) < 2 {
		return nan
	}
	var sum float64
	for _, v := range clean {
		sum += v
	}
	mean := sum / float64(len(clean))
	var sq float64
	for _, v := range clean {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(clean)-1))
}
