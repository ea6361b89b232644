package model

import "time"

// IndicatorSnapshot holds the latest computed technical indicators for a symbol.
// Undefined values are NaN.
type IndicatorSnapshot struct {
	Symbol       string
	AsOf         time.Time
	CurrentPrice float64
	MA           map[int]float64
	EMA12        float64
	EMA26        float64
	VWAP         float64
	RSI          float64
	BBUpper      float64
	BBMiddle     float64
	BBLower      float64
	MACD         float64
	MACDSignal   float64
	MACDHist     float64
	StochK       float64
	StochD       float64
	VolumeRatio  float64
	High52w      float64
	Low52w       float64
	Position52w  float64 // 0.0 ~ 1.0
}
