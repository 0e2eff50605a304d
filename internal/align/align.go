// Package align resamples a base bar series into coarser resolutions and
// projects indicator values computed there back onto the base timeline.
//
// The projection is a strictly backward as-of join: the value attached to a
// base row at time T always originates from a coarse bar whose close time is
// at or before T. This is the property that keeps strategies free of
// look-ahead bias, and the one the bias detector audits.
package align

import (
	"math"
	"time"

	"backlab/internal/domain"
)

// CoarseSeries is an aggregated bar series plus the indicator columns
// computed at that resolution. Bars carry their close timestamp: the
// timestamp of the last base bar that fell into the bucket.
type CoarseSeries struct {
	Width   time.Duration
	Bars    []domain.Bar
	Columns map[string][]float64
}

// AddColumn attaches a named indicator column to the series. The column must
// be aligned 1:1 with Bars.
func (cs *CoarseSeries) AddColumn(name string, values []float64) {
	if cs.Columns == nil {
		cs.Columns = make(map[string][]float64)
	}
	cs.Columns[name] = values
}

// Closes returns the close prices of the coarse bars.
func (cs *CoarseSeries) Closes() []float64 {
	out := make([]float64, len(cs.Bars))
	for i, b := range cs.Bars {
		out[i] = b.Close
	}
	return out
}

// Resample groups base bars into fixed-width wall-clock buckets and
// aggregates them: open = first, high = max, low = min, close = last,
// volume = sum. The returned bar's Timestamp is the timestamp of the last
// base bar in the bucket, i.e. the moment the coarse bar became knowable.
// A trailing partial bucket is kept; its close time still precedes every
// later base timestamp, so causality is preserved.
func Resample(base []domain.Bar, width time.Duration) *CoarseSeries {
	cs := &CoarseSeries{Width: width, Columns: make(map[string][]float64)}
	if len(base) == 0 || width <= 0 {
		return cs
	}

	var cur domain.Bar
	var curBucket time.Time
	open := false

	flush := func() {
		if open {
			cs.Bars = append(cs.Bars, cur)
			open = false
		}
	}

	for _, b := range base {
		bucket := b.Timestamp.Truncate(width)
		if !open || !bucket.Equal(curBucket) {
			flush()
			curBucket = bucket
			cur = b
			open = true
			continue
		}
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
		cur.Timestamp = b.Timestamp // close time advances with the bucket
	}
	flush()
	return cs
}

// NewRows wraps a base bar series into aligned rows with empty indicator
// maps, ready for AttachBase and Join.
func NewRows(base []domain.Bar) []domain.AlignedRow {
	rows := make([]domain.AlignedRow, len(base))
	for i, b := range base {
		rows[i] = domain.AlignedRow{
			Bar:      b,
			Values:   make(map[string]float64),
			SourceTS: make(map[string]time.Time),
		}
	}
	return rows
}

// AttachBase attaches an indicator column computed at the base resolution.
// Each value's source timestamp is its own row's timestamp.
func AttachBase(rows []domain.AlignedRow, name string, values []float64) {
	for i := range rows {
		if i < len(values) {
			rows[i].Values[name] = values[i]
		} else {
			rows[i].Values[name] = math.NaN()
		}
		rows[i].SourceTS[name] = rows[i].Bar.Timestamp
	}
}

// Join projects every column of a coarse series onto the base rows using a
// backward as-of join keyed on the coarse bars' close timestamps. For base
// timestamp T the attached value is that of the latest coarse bar closing
// at or before T; rows earlier than the first coarse close get NaN and no
// source timestamp, and are expected to fall inside the strategy's warm-up
// cutoff.
func Join(rows []domain.AlignedRow, coarse *CoarseSeries, prefix string) {
	j := -1
	for i := range rows {
		t := rows[i].Bar.Timestamp
		for j+1 < len(coarse.Bars) && !coarse.Bars[j+1].Timestamp.After(t) {
			j++
		}
		for name, col := range coarse.Columns {
			key := prefix + name
			if j < 0 || j >= len(col) {
				rows[i].Values[key] = math.NaN()
				continue
			}
			rows[i].Values[key] = col[j]
			rows[i].SourceTS[key] = coarse.Bars[j].Timestamp
		}
	}
}
