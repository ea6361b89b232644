package model

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical calendar date format used for daily bars.
const DateLayout = "2006-01-02"

// OHLCV represents a single candlestick bar as returned by a price source.
// Missing fields are reported as nil so the caller can skip incomplete bars.
// Location is the exchange's time zone; nil means UTC.
type OHLCV struct {
	Time     time.Time
	Location *time.Location
	Open     *float64
	High     *float64
	Low      *float64
	Close    *float64
	Volume   *float64
}

// TradingDay returns the bar's calendar date in the exchange time zone,
// expressed as midnight UTC.
func (o OHLCV) TradingDay() time.Time {
	loc := o.Location
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := o.Time.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Complete reports whether all four prices are present.
func (o OHLCV) Complete() bool {
	return o.Open != nil && o.High != nil && o.Low != nil && o.Close != nil
}

// PriceBar is one persisted trading day (or intraday bar) for one symbol.
type PriceBar struct {
	Symbol             string
	Date               time.Time
	Open               decimal.Decimal
	High               decimal.Decimal
	Low                decimal.Decimal
	Close              decimal.Decimal
	Volume             *int64
	PriceChange        decimal.Decimal
	PriceChangePercent decimal.Decimal
}

// Validate checks the OHLC sanity invariant: all prices positive and
// low <= open, close <= high.
func (b *PriceBar) Validate() error {
	if b.Symbol == "" {
		return NewError(ValidationFailure, "validate bar", errMissingSymbol)
	}
	for _, p := range []decimal.Decimal{b.Open, b.High, b.Low, b.Close} {
		if !p.IsPositive() {
			return NewErrorf(ValidationFailure, "validate bar", "%s %s: non-positive price %s",
				b.Symbol, b.Date.Format(DateLayout), p)
		}
	}
	if b.High.LessThan(b.Low) {
		return NewErrorf(ValidationFailure, "validate bar", "%s %s: high %s < low %s",
			b.Symbol, b.Date.Format(DateLayout), b.High, b.Low)
	}
	for _, p := range []decimal.Decimal{b.Open, b.Close} {
		if p.LessThan(b.Low) || p.GreaterThan(b.High) {
			return NewErrorf(ValidationFailure, "validate bar", "%s %s: price %s outside [%s, %s]",
				b.Symbol, b.Date.Format(DateLayout), p, b.Low, b.High)
		}
	}
	if b.Volume != nil && *b.Volume < 0 {
		return NewErrorf(ValidationFailure, "validate bar", "%s %s: negative volume",
			b.Symbol, b.Date.Format(DateLayout))
	}
	return nil
}

// ApplyPrevious derives PriceChange and PriceChangePercent from the previous
// bar's close. A nil previous bar resets both to zero.
func (b *PriceBar) ApplyPrevious(prev *PriceBar) {
	if prev == nil || prev.Close.IsZero() {
		b.PriceChange = decimal.Zero
		b.PriceChangePercent = decimal.Zero
		return
	}
	b.PriceChange = b.Close.Sub(prev.Close)
	b.PriceChangePercent = b.PriceChange.Div(prev.Close).Mul(decimal.NewFromInt(100)).Round(4)
}

// CloseFloat returns the close price as float64 for indicator math.
func (b *PriceBar) CloseFloat() float64 { return b.Close.InexactFloat64() }

// VolumeFloat returns the volume as float64, or NaN when the source did not
// report one.
func (b *PriceBar) VolumeFloat() float64 {
	if b.Volume == nil {
		return math.NaN()
	}
	return float64(*b.Volume)
}

// BarFromOHLCV converts a fetched bar into a PriceBar for the given symbol.
// Daily bars are dated by their trading day in the exchange time zone.
// Incomplete bars
// return a DataUnavailable error.
func BarFromOHLCV(symbol string, o OHLCV, daily bool) (*PriceBar, error) {
	if !o.Complete() {
		return nil, NewErrorf(DataUnavailable, "convert bar", "%s %s: missing price fields",
			symbol, o.Time.Format(time.RFC3339))
	}
	date := o.Time.UTC()
	if daily {
		date = o.TradingDay()
	}
	bar := &PriceBar{
		Symbol: symbol,
		Date:   date,
		Open:   decimal.NewFromFloat(*o.Open).Round(4),
		High:   decimal.NewFromFloat(*o.High).Round(4),
		Low:    decimal.NewFromFloat(*o.Low).Round(4),
		Close:  decimal.NewFromFloat(*o.Close).Round(4),
	}
	if o.Volume != nil {
		v := int64(*o.Volume)
		bar.Volume = &v
	}
	return bar, nil
}

// TruncateDay returns midnight UTC of t's UTC calendar date.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsWeekday reports whether t falls on Monday through Friday.
func IsWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}
