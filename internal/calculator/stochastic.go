package calculator

const (
	DefaultStochK = 14
	DefaultStochD = 3
)

// StochResult holds the %K and %D lines.
type StochResult struct {
	K []float64
	D []float64
}

// Stochastic computes %K = 100*(close-lowest low)/(highest high-lowest low)
// over kPeriod bars and %D = SMA(%K, dPeriod). %K is NaN while the window is
// incomplete or its range is zero.
func Stochastic(high, low, close []float64, kPeriod, dPeriod int) StochResult {
	n := len(close)
	k := nanSeries(n)
	hh := RollingHigh(high, kPeriod)
	ll := RollingLow(low, kPeriod)
	for i := 0; i < n; i++ {
		if !Valid(hh[i]) || !Valid(ll[i]) || !Valid(close[i]) {
			continue
		}
		rng := hh[i] - ll[i]
		if rng == 0 {
			continue
		}
		k[i] = 100 * (close[i] - ll[i]) / rng
	}
	return StochResult{K: k, D: SMA(k, dPeriod)}
}
