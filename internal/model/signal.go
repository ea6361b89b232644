package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Timeframe identifies the bar resolution a signal was detected on.
type Timeframe string

const (
	Timeframe1Day  Timeframe = "1day"
	Timeframe1Hour Timeframe = "1hour"
	Timeframe15Min Timeframe = "15min"
	Timeframe1Min  Timeframe = "1min"
)

// TimeframeForInterval maps a fetch interval ("1d", "15m", ...) to a Timeframe.
func TimeframeForInterval(interval string) (Timeframe, error) {
	switch interval {
	case "1d", "":
		return Timeframe1Day, nil
	case "60m", "1h":
		return Timeframe1Hour, nil
	case "15m":
		return Timeframe15Min, nil
	case "1m":
		return Timeframe1Min, nil
	default:
		return "", fmt.Errorf("unsupported interval %q", interval)
	}
}

// Truncate normalizes t to the resolution of the timeframe so that
// duplicate checks compare like with like.
func (tf Timeframe) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch tf {
	case Timeframe1Day:
		return TruncateDay(t)
	case Timeframe1Hour:
		return t.Truncate(time.Hour)
	case Timeframe15Min:
		return t.Truncate(15 * time.Minute)
	default:
		return t.Truncate(time.Minute)
	}
}

// Tag is the outcome of an edge detector. TagNone means no signal.
type Tag string

const (
	TagNone Tag = ""

	TagBreakoutUp   Tag = "breakout_up"
	TagBreakoutDown Tag = "breakout_down"

	TagOverbought Tag = "overbought"
	TagOversold   Tag = "oversold"
	TagBullish    Tag = "bullish"
	TagBearish    Tag = "bearish"

	TagBreakUpper Tag = "break_upper"
	TagBreakLower Tag = "break_lower"
	TagTouchUpper Tag = "touch_upper"
	TagTouchLower Tag = "touch_lower"

	TagGoldenCross Tag = "golden_cross"
	TagDeadCross   Tag = "dead_cross"

	TagBullishCross  Tag = "bullish_cross"
	TagBearishCross  Tag = "bearish_cross"
	TagZeroCrossUp   Tag = "zero_cross_up"
	TagZeroCrossDown Tag = "zero_cross_down"

	TagVolumeBreakoutUp   Tag = "volume_breakout_up"
	TagVolumeBreakoutDown Tag = "volume_breakout_down"
	TagLowVolume          Tag = "low_volume"
)

// Family groups detectors that share one indicator. At most one tag per
// family instance fires for a pair of samples.
type Family string

const (
	FamilyMA         Family = "MA"
	FamilyRSI        Family = "RSI"
	FamilyBollinger  Family = "BB"
	FamilyCross      Family = "CROSS"
	FamilyMACD       Family = "MACD"
	FamilyStochastic Family = "STOCH"
	FamilyVolume     Family = "VOLUME"
)

// SignalEvent is one detected technical occurrence.
type SignalEvent struct {
	ID             int64
	Symbol         string
	SignalType     string
	Timeframe      Timeframe
	TriggeredAt    time.Time
	CurrentPrice   float64
	IndicatorValue float64
	SignalStrength float64
	Volume         *int64
	CreatedAt      time.Time
}

// SignalKey identifies one logical signal occurrence.
type SignalKey struct {
	Symbol      string
	SignalType  string
	Timeframe   Timeframe
	TriggeredAt time.Time
}

// Key returns the dedup key with TriggeredAt truncated to the timeframe.
func (e *SignalEvent) Key() SignalKey {
	return SignalKey{
		Symbol:      e.Symbol,
		SignalType:  e.SignalType,
		Timeframe:   e.Timeframe,
		TriggeredAt: e.Timeframe.Truncate(e.TriggeredAt),
	}
}

// Family derives the detector family from the signal type.
func (e *SignalEvent) Family() Family {
	st := e.SignalType
	switch {
	case strings.HasPrefix(st, "MA") && !strings.HasPrefix(st, "MACD"):
		return FamilyMA
	case strings.HasPrefix(st, "RSI_"):
		return FamilyRSI
	case strings.HasPrefix(st, "BB_"):
		return FamilyBollinger
	case strings.HasPrefix(st, "MACD_"):
		return FamilyMACD
	case strings.HasPrefix(st, "STOCH_"):
		return FamilyStochastic
	case st == string(TagGoldenCross) || st == string(TagDeadCross):
		return FamilyCross
	default:
		return FamilyVolume
	}
}

// SignalContext is the bar a detector fired on.
type SignalContext struct {
	Symbol    string
	Timeframe Timeframe
	At        time.Time
	Price     float64
	Volume    *int64
}

// NewSignalEvent builds a generic event. The strength is stored as given.
func NewSignalEvent(c SignalContext, signalType string, indicatorValue, strength float64) *SignalEvent {
	return &SignalEvent{
		Symbol:         c.Symbol,
		SignalType:     signalType,
		Timeframe:      c.Timeframe,
		TriggeredAt:    c.Timeframe.Truncate(c.At),
		CurrentPrice:   round(c.Price, 4),
		IndicatorValue: round(indicatorValue, 4),
		SignalStrength: round(strength, 4),
		Volume:         c.Volume,
	}
}

// NewMABreakoutEvent builds "MA{period}_breakout_up|down".
func NewMABreakoutEvent(c SignalContext, period int, tag Tag, ma float64) *SignalEvent {
	return NewSignalEvent(c, fmt.Sprintf("MA%d_%s", period, tag), ma, pctDeviation(c.Price, ma))
}

// NewRSIEvent builds "RSI_{tag}". Strength is the distance from the threshold crossed.
func NewRSIEvent(c SignalContext, tag Tag, rsi float64) *SignalEvent {
	threshold := 50.0
	switch tag {
	case TagOverbought:
		threshold = 70
	case TagOversold:
		threshold = 30
	}
	return NewSignalEvent(c, "RSI_"+string(tag), rsi, math.Abs(rsi-threshold))
}

// NewBollingerEvent builds "BB_{tag}". band is the upper or lower band value.
func NewBollingerEvent(c SignalContext, tag Tag, band float64) *SignalEvent {
	return NewSignalEvent(c, "BB_"+string(tag), band, pctDeviation(c.Price, band))
}

// NewCrossEvent builds "golden_cross" or "dead_cross".
func NewCrossEvent(c SignalContext, tag Tag, shortMA, longMA float64) *SignalEvent {
	return NewSignalEvent(c, string(tag), longMA, pctDeviation(shortMA, longMA))
}

// NewMACDEvent builds "MACD_{tag}".
func NewMACDEvent(c SignalContext, tag Tag, macd, signal float64) *SignalEvent {
	if tag == TagZeroCrossUp || tag == TagZeroCrossDown {
		return NewSignalEvent(c, "MACD_"+string(tag), macd, math.Abs(macd))
	}
	return NewSignalEvent(c, "MACD_"+string(tag), signal, math.Abs(macd-signal))
}

// NewStochasticEvent builds "STOCH_{tag}".
func NewStochasticEvent(c SignalContext, tag Tag, k, d float64) *SignalEvent {
	return NewSignalEvent(c, "STOCH_"+string(tag), k, math.Abs(k-d))
}

// NewVolumeEvent builds a volume tag. Strength is the volume ratio.
func NewVolumeEvent(c SignalContext, tag Tag, volumeSMA, ratio float64) *SignalEvent {
	return NewSignalEvent(c, string(tag), volumeSMA, ratio)
}

func pctDeviation(value, ref float64) float64 {
	if ref == 0 {
		return 0
	}
	return math.Abs(value-ref) / math.Abs(ref) * 100
}

func round(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
