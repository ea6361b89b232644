package calculator

import "math"

const (
	DefaultBollingerPeriod = 20
	DefaultBollingerK      = 2.0
)

// Bands holds a Bollinger envelope aligned to the input series.
type Bands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// BollingerBands returns SMA ± k standard deviations. The deviation is the
// rolling sample standard deviation (n-1 denominator).
func BollingerBands(series []float64, period int, k float64) Bands {
	mid := SMA(series, period)
	sd := RollingStd(series, period)
	b := Bands{
		Upper:  nanSeries(len(series)),
		Middle: mid,
		Lower:  nanSeries(len(series)),
	}
	for i := range series {
		if Valid(mid[i]) && Valid(sd[i]) {
			b.Upper[i] = mid[i] + k*sd[i]
			b.Lower[i] = mid[i] - k*sd[i]
		}
	}
	return b
}

// RollingStd returns the rolling sample standard deviation over period.
func RollingStd(series []float64, period int) []float64 {
	out := nanSeries(len(series))
	if period < 2 {
		return out
	}
	mean := SMA(series, period)
	for i := period - 1; i < len(series); i++ {
		m := mean[i]
		if !Valid(m) {
			continue
		}
		ss := 0.0
		for j := i - period + 1; j <= i; j++ {
			d := series[j] - m
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(period-1))
	}
	return out
}
