package indicator

import (
	"math"
	"testing"
)

func TestSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	got := SMA(values, 3)

	if !math.IsNaN(got[0]) || !math.IsNaN(got[1]) {
		t.Errorf("SMA warm-up prefix should be NaN, got %v", got[:2])
	}
	want := []float64{2, 3, 4}
	for i, w := range want {
		if math.Abs(got[i+2]-w) > 1e-12 {
			t.Errorf("SMA[%d] = %v, want %v", i+2, got[i+2], w)
		}
	}
}

func TestEMAConvergesToConstant(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = 42
	}
	got := EMA(values, 9)
	if math.Abs(got[99]-42) > 1e-9 {
		t.Errorf("EMA of constant series should equal the constant, got %v", got[99])
	}
}

func TestMACDHistogramIsLineMinusSignal(t *testing.T) {
	values := []float64{10, 11, 12, 11, 13, 14, 13, 15, 16, 15, 17, 18}
	line, sig, hist := MACD(values, 3, 6, 4)
	for i := range values {
		if math.Abs(hist[i]-(line[i]-sig[i])) > 1e-12 {
			t.Fatalf("hist[%d] != line-signal: %v vs %v", i, hist[i], line[i]-sig[i])
		}
	}
}

func TestRollingMeanExcludesCurrent(t *testing.T) {
	values := []float64{10, 20, 30, 40}
	got := RollingMean(values, 2)

	if !math.IsNaN(got[0]) {
		t.Errorf("RollingMean[0] should be NaN, got %v", got[0])
	}
	// At index 2 the trailing window is {10, 20}; the current value 30 must
	// not contribute.
	if math.Abs(got[2]-15) > 1e-12 {
		t.Errorf("RollingMean[2] = %v, want 15", got[2])
	}
	if math.Abs(got[3]-25) > 1e-12 {
		t.Errorf("RollingMean[3] = %v, want 25", got[3])
	}
}

func TestReturns(t *testing.T) {
	values := []float64{100, 110, 99}
	got := Returns(values)
	if !math.IsNaN(got[0]) {
		t.Errorf("Returns[0] should be NaN, got %v", got[0])
	}
	if math.Abs(got[1]-0.1) > 1e-12 {
		t.Errorf("Returns[1] = %v, want 0.1", got[1])
	}
	if math.Abs(got[2]-(-0.1)) > 1e-12 {
		t.Errorf("Returns[2] = %v, want -0.1", got[2])
	}
}

func TestRollingStdConstantSeries(t *testing.T) {
	values := []float64{5, 5, 5, 5, 5, 5}
	got := RollingStd(values, 3)
	if v := got[5]; math.Abs(v) > 1e-12 {
		t.Errorf("RollingStd of constant series = %v, want 0", v)
	}
}
