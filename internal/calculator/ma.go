package calculator

import "math"

// Kind selects a moving-average flavour.
type Kind string

const (
	KindSMA Kind = "SMA"
	KindEMA Kind = "EMA"
)

// Valid reports whether v is a defined indicator value.
func Valid(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// MovingAverage computes an SMA or EMA series aligned to series.
func MovingAverage(series []float64, period int, kind Kind) []float64 {
	if kind == KindEMA {
		return EMA(series, period)
	}
	return SMA(series, period)
}

// SMA returns the simple moving average series. Positions before the first
// full window are NaN, as is any window containing a NaN.
func SMA(series []float64, period int) []float64 {
	out := nanSeries(len(series))
	if period <= 0 {
		return out
	}
	sum := 0.0
	invalid := 0
	for i, v := range series {
		if Valid(v) {
			sum += v
		} else {
			invalid++
		}
		if i >= period {
			old := series[i-period]
			if Valid(old) {
				sum -= old
			} else {
				invalid--
			}
		}
		if i >= period-1 && invalid == 0 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA returns the exponential moving average with alpha = 2/(period+1),
// seeded with the first defined sample. Leading NaNs stay NaN.
func EMA(series []float64, period int) []float64 {
	out := nanSeries(len(series))
	if period <= 0 {
		return out
	}
	alpha := 2.0 / float64(period+1)
	prev := math.NaN()
	for i, v := range series {
		if !Valid(v) {
			out[i] = prev
			continue
		}
		if !Valid(prev) {
			prev = v
		} else {
			prev = alpha*v + (1-alpha)*prev
		}
		out[i] = prev
	}
	return out
}
