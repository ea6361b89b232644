package calculator

import (
	"errors"
	"math"
)

// TradingDaysPerYear approximates one year of daily bars.
const TradingDaysPerYear = 252

// RollingHigh returns the highest value of each period-sized window.
func RollingHigh(series []float64, period int) []float64 {
	return rollingExtreme(series, period, math.Max)
}

// RollingLow returns the lowest value of each period-sized window.
func RollingLow(series []float64, period int) []float64 {
	return rollingExtreme(series, period, math.Min)
}

func rollingExtreme(series []float64, period int, pick func(a, b float64) float64) []float64 {
	out := nanSeries(len(series))
	if period <= 0 {
		return out
	}
	for i := period - 1; i < len(series); i++ {
		v := series[i-period+1]
		for j := i - period + 2; j <= i; j++ {
			v = pick(v, series[j])
		}
		out[i] = v
	}
	return out
}

// Calculate52WeekRange scans the most recent 252 bars and returns the high and low.
func Calculate52WeekRange(high, low []float64) (hi, lo float64, err error) {
	if len(high) == 0 || len(high) != len(low) {
		return 0, 0, errors.New("no bars provided")
	}
	n := len(high)
	start := n - TradingDaysPerYear
	if start < 0 {
		start = 0
	}
	hi = math.Inf(-1)
	lo = math.Inf(1)
	for i := start; i < n; i++ {
		if high[i] > hi {
			hi = high[i]
		}
		if low[i] < lo {
			lo = low[i]
		}
	}
	return hi, lo, nil
}

// Calculate52WeekPosition returns where the current price sits within the 52-week range (0.0~1.0).
func Calculate52WeekPosition(current, high, low float64) (float64, error) {
	if high == low {
		return 0.5, nil
	}
	if high < low {
		return 0, errors.New("high must be >= low")
	}
	pos := (current - low) / (high - low)
	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}
	return pos, nil
}
