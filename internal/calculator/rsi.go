package calculator

import "math"

// DefaultRSIPeriod is the conventional RSI lookback.
const DefaultRSIPeriod = 14

// RSI computes the relative strength index using simple rolling means of
// gains and losses over period price changes. RSI[i] is NaN for i < period.
// A window with losses of zero yields 100, or NaN if it has no gains either.
func RSI(series []float64, period int) []float64 {
	out := nanSeries(len(series))
	if period <= 0 || len(series) <= period {
		return out
	}
	gains := make([]float64, len(series))
	losses := make([]float64, len(series))
	gains[0], losses[0] = math.NaN(), math.NaN()
	for i := 1; i < len(series); i++ {
		change := series[i] - series[i-1]
		if !Valid(change) {
			gains[i], losses[i] = math.NaN(), math.NaN()
			continue
		}
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}
	avgGain := SMA(gains, period)
	avgLoss := SMA(losses, period)
	for i := period; i < len(series); i++ {
		g, l := avgGain[i], avgLoss[i]
		if !Valid(g) || !Valid(l) {
			continue
		}
		switch {
		case l == 0 && g == 0:
			// flat window, undefined
		case l == 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+g/l)
		}
	}
	return out
}
