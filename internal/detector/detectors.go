// Package detector classifies transitions between two adjacent indicator
// samples into named signal tags.
//
// Every detector returns model.TagNone when any input is undefined (NaN).
// Within one detector the conditions are checked in order and the first
// match wins.
package detector

import (
	"math"

	"SignalSentinel/internal/calculator"
	"SignalSentinel/internal/model"
)

const (
	RSIOverbought = 70.0
	RSIOversold   = 30.0
	RSIMidline    = 50.0

	StochOverbought = 80.0
	StochOversold   = 20.0

	VolumeSurgeRatio  = 2.0
	VolumeDryRatio    = 0.5
	VolumeMovePercent = 1.0

	// DefaultTouchBand is the relative distance to a Bollinger band that
	// counts as touching it.
	DefaultTouchBand = 0.01
)

func valid(vs ...float64) bool {
	for _, v := range vs {
		if !calculator.Valid(v) {
			return false
		}
	}
	return true
}

// MABreakout detects price crossing a moving average.
func MABreakout(prevPrice, prevMA, price, ma float64) model.Tag {
	if !valid(prevPrice, prevMA, price, ma) {
		return model.TagNone
	}
	switch {
	case prevPrice <= prevMA && price > ma:
		return model.TagBreakoutUp
	case prevPrice >= prevMA && price < ma:
		return model.TagBreakoutDown
	}
	return model.TagNone
}

// RSI detects threshold crossings of the RSI.
func RSI(prev, cur float64) model.Tag {
	if !valid(prev, cur) {
		return model.TagNone
	}
	switch {
	case prev < RSIOverbought && cur >= RSIOverbought:
		return model.TagOverbought
	case prev > RSIOversold && cur <= RSIOversold:
		return model.TagOversold
	case prev < RSIMidline && cur >= RSIMidline:
		return model.TagBullish
	case prev > RSIMidline && cur <= RSIMidline:
		return model.TagBearish
	}
	return model.TagNone
}

// Bollinger detects band breaks and, failing that, band touches.
// touchBand is the relative proximity that counts as a touch.
func Bollinger(prevPrice, prevUpper, prevLower, price, upper, lower, touchBand float64) model.Tag {
	if !valid(prevPrice, prevUpper, prevLower, price, upper, lower) {
		return model.TagNone
	}
	switch {
	case prevPrice <= prevUpper && price > upper:
		return model.TagBreakUpper
	case prevPrice >= prevLower && price < lower:
		return model.TagBreakLower
	case upper != 0 && math.Abs(price-upper)/upper < touchBand:
		return model.TagTouchUpper
	case lower != 0 && math.Abs(price-lower)/lower < touchBand:
		return model.TagTouchLower
	}
	return model.TagNone
}

// Cross detects a short moving average crossing a long one.
func Cross(prevShort, prevLong, short, long float64) model.Tag {
	if !valid(prevShort, prevLong, short, long) {
		return model.TagNone
	}
	switch {
	case prevShort <= prevLong && short > long:
		return model.TagGoldenCross
	case prevShort >= prevLong && short < long:
		return model.TagDeadCross
	}
	return model.TagNone
}

// MACD detects signal-line crosses, then zero-line crosses.
func MACD(prevMACD, prevSignal, macd, signal float64) model.Tag {
	if !valid(prevMACD, prevSignal, macd, signal) {
		return model.TagNone
	}
	switch {
	case prevMACD <= prevSignal && macd > signal:
		return model.TagBullishCross
	case prevMACD >= prevSignal && macd < signal:
		return model.TagBearishCross
	case prevMACD <= 0 && macd > 0:
		return model.TagZeroCrossUp
	case prevMACD >= 0 && macd < 0:
		return model.TagZeroCrossDown
	}
	return model.TagNone
}

// Stochastic detects overbought/oversold zones, then %K/%D crosses. Zone
// tags repeat on every bar inside the zone.
func Stochastic(prevK, prevD, k, d float64) model.Tag {
	if !valid(prevK, prevD, k, d) {
		return model.TagNone
	}
	switch {
	case k >= StochOverbought && d >= StochOverbought:
		return model.TagOverbought
	case k <= StochOversold && d <= StochOversold:
		return model.TagOversold
	case prevK <= prevD && k > d:
		return model.TagBullishCross
	case prevK >= prevD && k < d:
		return model.TagBearishCross
	}
	return model.TagNone
}

// Volume detects volume surges accompanied by a price move, and dry volume.
func Volume(ratio, changePercent float64) model.Tag {
	if !valid(ratio, changePercent) {
		return model.TagNone
	}
	switch {
	case ratio >= VolumeSurgeRatio && changePercent > VolumeMovePercent:
		return model.TagVolumeBreakoutUp
	case ratio >= VolumeSurgeRatio && changePercent < -VolumeMovePercent:
		return model.TagVolumeBreakoutDown
	case ratio <= VolumeDryRatio:
		return model.TagLowVolume
	}
	return model.TagNone
}
