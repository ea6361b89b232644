package model

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPriceBarValidate(t *testing.T) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	neg := int64(-1)
	tests := []struct {
		name    string
		bar     PriceBar
		wantErr bool
	}{
		{"valid", PriceBar{Symbol: "AAPL", Date: day, Open: dec("10"), High: dec("11"), Low: dec("9"), Close: dec("10.5")}, false},
		{"flat bar", PriceBar{Symbol: "AAPL", Date: day, Open: dec("10"), High: dec("10"), Low: dec("10"), Close: dec("10")}, false},
		{"high below low", PriceBar{Symbol: "AAPL", Date: day, Open: dec("10"), High: dec("9"), Low: dec("11"), Close: dec("10")}, true},
		{"close above high", PriceBar{Symbol: "AAPL", Date: day, Open: dec("10"), High: dec("11"), Low: dec("9"), Close: dec("12")}, true},
		{"open below low", PriceBar{Symbol: "AAPL", Date: day, Open: dec("8"), High: dec("11"), Low: dec("9"), Close: dec("10")}, true},
		{"zero price", PriceBar{Symbol: "AAPL", Date: day, Open: dec("0"), High: dec("11"), Low: dec("9"), Close: dec("10")}, true},
		{"negative volume", PriceBar{Symbol: "AAPL", Date: day, Open: dec("10"), High: dec("11"), Low: dec("9"), Close: dec("10"), Volume: &neg}, true},
		{"missing symbol", PriceBar{Date: day, Open: dec("10"), High: dec("11"), Low: dec("9"), Close: dec("10")}, true},
	}
	for _, tt := range tests {
		err := tt.bar.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: wantErr=%v, got %v", tt.name, tt.wantErr, err)
			continue
		}
		if err != nil && !IsKind(err, ValidationFailure) {
			t.Errorf("%s: expected validation_failure, got %q", tt.name, KindOf(err))
		}
	}
}

func TestApplyPrevious(t *testing.T) {
	prev := &PriceBar{Close: dec("100")}
	bar := &PriceBar{Close: dec("103")}
	bar.ApplyPrevious(prev)
	if !bar.PriceChange.Equal(dec("3")) {
		t.Errorf("expected change 3, got %s", bar.PriceChange)
	}
	if !bar.PriceChangePercent.Equal(dec("3")) {
		t.Errorf("expected 3%%, got %s", bar.PriceChangePercent)
	}
	bar.ApplyPrevious(nil)
	if !bar.PriceChange.IsZero() || !bar.PriceChangePercent.IsZero() {
		t.Errorf("expected zero change without a previous bar, got %s / %s", bar.PriceChange, bar.PriceChangePercent)
	}
}

func TestBarFromOHLCV(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	at := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	bar, err := BarFromOHLCV("MSFT", OHLCV{Time: at, Open: f(1.123456), High: f(2), Low: f(1), Close: f(1.5), Volume: f(1200)}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bar.Date.Equal(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("daily bar not truncated: %v", bar.Date)
	}
	if !bar.Open.Equal(dec("1.1235")) {
		t.Errorf("expected open rounded to 4 places, got %s", bar.Open)
	}
	if bar.Volume == nil || *bar.Volume != 1200 {
		t.Errorf("unexpected volume %v", bar.Volume)
	}

	_, err = BarFromOHLCV("MSFT", OHLCV{Time: at, Open: f(1), High: f(2), Low: f(1)}, true)
	if !IsKind(err, DataUnavailable) {
		t.Errorf("expected data_unavailable for missing close, got %v", err)
	}
}

func TestTradingDay(t *testing.T) {
	at := time.Date(2024, 1, 7, 23, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		loc  *time.Location
		want string
	}{
		{"utc default", nil, "2024-01-07"},
		{"ahead of utc", time.FixedZone("AEDT", 11*3600), "2024-01-08"},
		{"behind utc", time.FixedZone("EST", -5*3600), "2024-01-07"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OHLCV{Time: at, Location: tt.loc}.TradingDay()
			if got.Format(DateLayout) != tt.want || got.Location() != time.UTC || got.Hour() != 0 {
				t.Errorf("TradingDay = %v, want %s at midnight UTC", got, tt.want)
			}
		})
	}
}

func TestPriceBar_VolumeFloat(t *testing.T) {
	v := int64(42)
	if got := (&PriceBar{Volume: &v}).VolumeFloat(); got != 42 {
		t.Errorf("VolumeFloat = %v, want 42", got)
	}
	if got := (&PriceBar{}).VolumeFloat(); !math.IsNaN(got) {
		t.Errorf("unknown volume = %v, want NaN", got)
	}
}

func TestSignalKeyTruncation(t *testing.T) {
	c := SignalContext{Symbol: "AAPL", Timeframe: Timeframe15Min, At: time.Date(2024, 1, 2, 10, 7, 31, 0, time.UTC), Price: 100}
	ev := NewRSIEvent(c, TagOverbought, 71.2)
	want := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	if !ev.Key().TriggeredAt.Equal(want) {
		t.Errorf("expected %v, got %v", want, ev.Key().TriggeredAt)
	}
	other := NewRSIEvent(SignalContext{Symbol: "AAPL", Timeframe: Timeframe15Min, At: want.Add(14 * time.Minute), Price: 101}, TagOverbought, 73)
	if ev.Key() != other.Key() {
		t.Errorf("events in the same 15min bucket must share a key")
	}
}

func TestSignalNamingAndFamily(t *testing.T) {
	c := SignalContext{Symbol: "AAPL", Timeframe: Timeframe1Day, At: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Price: 105}
	tests := []struct {
		ev     *SignalEvent
		name   string
		family Family
	}{
		{NewMABreakoutEvent(c, 50, TagBreakoutUp, 100), "MA50_breakout_up", FamilyMA},
		{NewRSIEvent(c, TagBearish, 48), "RSI_bearish", FamilyRSI},
		{NewBollingerEvent(c, TagTouchUpper, 106), "BB_touch_upper", FamilyBollinger},
		{NewCrossEvent(c, TagGoldenCross, 101, 100), "golden_cross", FamilyCross},
		{NewMACDEvent(c, TagBullishCross, 0.5, 0.4), "MACD_bullish_cross", FamilyMACD},
		{NewStochasticEvent(c, TagOversold, 15, 18), "STOCH_oversold", FamilyStochastic},
		{NewVolumeEvent(c, TagLowVolume, 1000, 0.4), "low_volume", FamilyVolume},
	}
	for _, tt := range tests {
		if tt.ev.SignalType != tt.name {
			t.Errorf("expected %s, got %s", tt.name, tt.ev.SignalType)
		}
		if tt.ev.Family() != tt.family {
			t.Errorf("%s: expected family %s, got %s", tt.name, tt.family, tt.ev.Family())
		}
	}
}

func TestSignalStrength(t *testing.T) {
	c := SignalContext{Symbol: "AAPL", Timeframe: Timeframe1Day, At: time.Now(), Price: 105}
	if got := NewMABreakoutEvent(c, 20, TagBreakoutUp, 100).SignalStrength; got != 5 {
		t.Errorf("MA strength: expected 5, got %v", got)
	}
	if got := NewRSIEvent(c, TagOverbought, 72.5).SignalStrength; got != 2.5 {
		t.Errorf("RSI strength: expected 2.5, got %v", got)
	}
	if got := NewRSIEvent(c, TagBullish, 51).SignalStrength; got != 1 {
		t.Errorf("RSI bullish strength: expected 1, got %v", got)
	}
}

func TestTimeframeForInterval(t *testing.T) {
	tests := map[string]Timeframe{"": Timeframe1Day, "1d": Timeframe1Day, "60m": Timeframe1Hour, "15m": Timeframe15Min, "1m": Timeframe1Min}
	for in, want := range tests {
		got, err := TimeframeForInterval(in)
		if err != nil || got != want {
			t.Errorf("%q: expected %s, got %s (%v)", in, want, got, err)
		}
	}
	if _, err := TimeframeForInterval("5d"); err == nil {
		t.Error("expected error for unsupported interval")
	}
}

func TestErrorKinds(t *testing.T) {
	base := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", NewError(PersistenceFailure, "save", base))
	if !IsKind(err, PersistenceFailure) {
		t.Errorf("expected persistence_failure, got %q", KindOf(err))
	}
	if !errors.Is(err, base) {
		t.Error("expected the cause to remain reachable")
	}
	if KindOf(base) != "" {
		t.Error("unclassified errors have no kind")
	}

	var r Result
	r.Fail(base)
	if r.Status != StatusFailed || r.Kind != PersistenceFailure || r.OK() {
		t.Errorf("unexpected result %+v", r)
	}
	r = Result{}
	r.Skip(InsufficientHistory, "only 10 bars")
	if r.Status != StatusSkipped || !r.OK() {
		t.Errorf("unexpected result %+v", r)
	}
}
