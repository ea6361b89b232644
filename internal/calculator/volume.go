package calculator

import "math"

// DefaultVolumePeriod is the lookback for the volume moving average.
const DefaultVolumePeriod = 20

// VolumeSMA is a plain SMA over volumes.
func VolumeSMA(volumes []float64, period int) []float64 {
	return SMA(volumes, period)
}

// VolumeRatio returns volume[i]/volumeSMA[i], NaN where the average is
// undefined or zero.
func VolumeRatio(volumes, volumeSMA []float64) []float64 {
	out := nanSeries(len(volumes))
	for i := range volumes {
		if i < len(volumeSMA) && Valid(volumeSMA[i]) && volumeSMA[i] > 0 {
			out[i] = volumes[i] / volumeSMA[i]
		}
	}
	return out
}

// VWAP returns the cumulative volume-weighted average of the typical price
// (high+low+close)/3 from the first bar. NaN while cumulative volume is zero.
func VWAP(high, low, close, volume []float64) []float64 {
	out := nanSeries(len(close))
	var pv, vol float64
	for i := range close {
		tp := (high[i] + low[i] + close[i]) / 3
		if Valid(tp) && Valid(volume[i]) {
			pv += tp * volume[i]
			vol += volume[i]
		}
		if vol != 0 {
			out[i] = pv / vol
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
