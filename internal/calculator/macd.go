package calculator

const (
	DefaultMACDFast   = 12
	DefaultMACDSlow   = 26
	DefaultMACDSignal = 9
)

// MACDResult holds the MACD line, its signal line and the histogram.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes EMA(fast) - EMA(slow), its EMA(signal) and the difference.
func MACD(series []float64, fast, slow, signal int) MACDResult {
	emaFast := EMA(series, fast)
	emaSlow := EMA(series, slow)
	line := nanSeries(len(series))
	for i := range series {
		if Valid(emaFast[i]) && Valid(emaSlow[i]) {
			line[i] = emaFast[i] - emaSlow[i]
		}
	}
	sig := EMA(line, signal)
	hist := nanSeries(len(series))
	for i := range series {
		if Valid(line[i]) && Valid(sig[i]) {
			hist[i] = line[i] - sig[i]
		}
	}
	return MACDResult{MACD: line, Signal: sig, Histogram: hist}
}
