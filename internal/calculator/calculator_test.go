package calculator

import (
	"math"
	"testing"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestSMA(t *testing.T) {
	got := SMA([]float64{1, 2, 3, 4, 5}, 3)
	want := []float64{math.NaN(), math.NaN(), 2, 3, 4}
	for i := range want {
		if math.IsNaN(want[i]) {
			if Valid(got[i]) {
				t.Errorf("SMA[%d]: expected NaN, got %v", i, got[i])
			}
			continue
		}
		if !approx(got[i], want[i]) {
			t.Errorf("SMA[%d]: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestSMA_NaNWindow(t *testing.T) {
	got := SMA([]float64{1, math.NaN(), 3, 4, 5}, 2)
	if Valid(got[1]) || Valid(got[2]) {
		t.Errorf("windows touching NaN must be undefined, got %v", got)
	}
	if !approx(got[3], 3.5) || !approx(got[4], 4.5) {
		t.Errorf("unexpected SMA after NaN: %v", got)
	}
}

func TestEMA_SeededWithFirstSample(t *testing.T) {
	got := EMA([]float64{10, 20, 30}, 3) // alpha = 0.5
	want := []float64{10, 15, 22.5}
	for i := range want {
		if !approx(got[i], want[i]) {
			t.Errorf("EMA[%d]: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestMovingAverage_Kind(t *testing.T) {
	s := []float64{1, 2, 3, 4}
	if got := MovingAverage(s, 2, KindSMA); !approx(got[3], 3.5) {
		t.Errorf("SMA kind: got %v", got[3])
	}
	if got := MovingAverage(s, 2, KindEMA); !Valid(got[0]) {
		t.Errorf("EMA kind should populate index 0, got %v", got[0])
	}
}

func TestRSI(t *testing.T) {
	// deltas: +1 +1 -1 +1 ; period 2
	s := []float64{10, 11, 12, 11, 12}
	got := RSI(s, 2)
	if Valid(got[0]) || Valid(got[1]) {
		t.Errorf("RSI must be undefined for i < period: %v", got)
	}
	if got[2] != 100 {
		t.Errorf("RSI[2]: expected 100 with no losses, got %v", got[2])
	}
	// window deltas +1, -1 -> avg gain 0.5, avg loss 0.5 -> 50
	if !approx(got[3], 50) {
		t.Errorf("RSI[3]: expected 50, got %v", got[3])
	}
	if !approx(got[4], 50) {
		t.Errorf("RSI[4]: expected 50, got %v", got[4])
	}
}

func TestRSI_FlatWindowUndefined(t *testing.T) {
	got := RSI([]float64{5, 5, 5, 5}, 2)
	for i, v := range got {
		if Valid(v) {
			t.Errorf("RSI[%d]: expected NaN for flat series, got %v", i, v)
		}
	}
}

func TestRSI_Range(t *testing.T) {
	s := make([]float64, 100)
	for i := range s {
		s[i] = 100 + 10*math.Sin(float64(i)/5)
	}
	for i, v := range RSI(s, DefaultRSIPeriod) {
		if Valid(v) && (v < 0 || v > 100) {
			t.Fatalf("RSI[%d] out of range: %v", i, v)
		}
	}
}

func TestBollingerBands(t *testing.T) {
	s := []float64{1, 2, 3, 4, 5}
	b := BollingerBands(s, 3, 2)
	// window {3,4,5}: mean 4, sample std 1
	if !approx(b.Middle[4], 4) || !approx(b.Upper[4], 6) || !approx(b.Lower[4], 2) {
		t.Errorf("unexpected bands at 4: %v %v %v", b.Upper[4], b.Middle[4], b.Lower[4])
	}
	if Valid(b.Upper[1]) {
		t.Errorf("upper band must be undefined before the first window")
	}
}

func TestMACD(t *testing.T) {
	s := make([]float64, 60)
	for i := range s {
		s[i] = float64(100 + i)
	}
	m := MACD(s, DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)
	if !approx(m.MACD[0], 0) {
		t.Errorf("MACD[0] should be 0 with shared seed, got %v", m.MACD[0])
	}
	last := len(s) - 1
	if m.MACD[last] <= 0 {
		t.Errorf("rising series should have positive MACD, got %v", m.MACD[last])
	}
	if !approx(m.Histogram[last], m.MACD[last]-m.Signal[last]) {
		t.Errorf("histogram must equal macd-signal")
	}
}

func TestStochastic(t *testing.T) {
	high := []float64{10, 11, 12, 13}
	low := []float64{8, 9, 10, 11}
	closes := []float64{9, 10, 11, 12}
	st := Stochastic(high, low, closes, 2, 2)
	if Valid(st.K[0]) {
		t.Errorf("%%K[0] should be undefined")
	}
	// window [0..1]: hh=11, ll=8, close=10 -> 66.67
	if !approx(st.K[1], 200.0/3) {
		t.Errorf("%%K[1]: got %v", st.K[1])
	}
	if Valid(st.D[1]) {
		t.Errorf("%%D[1] needs two %%K samples")
	}
	if !Valid(st.D[2]) {
		t.Errorf("%%D[2] should be defined")
	}
}

func TestStochastic_ZeroRange(t *testing.T) {
	flat := []float64{5, 5, 5}
	st := Stochastic(flat, flat, flat, 2, 1)
	for i, v := range st.K {
		if Valid(v) {
			t.Errorf("%%K[%d] should be undefined on zero range, got %v", i, v)
		}
	}
}

func TestVWAP(t *testing.T) {
	high := []float64{3, 6}
	low := []float64{1, 4}
	closes := []float64{2, 5}
	vol := []float64{0, 10}
	got := VWAP(high, low, closes, vol)
	if Valid(got[0]) {
		t.Errorf("VWAP[0] must be undefined with zero cumulative volume")
	}
	if !approx(got[1], 5) {
		t.Errorf("VWAP[1]: expected 5, got %v", got[1])
	}
}

func TestVolumeRatio(t *testing.T) {
	vols := []float64{100, 100, 300}
	r := VolumeRatio(vols, VolumeSMA(vols, 2))
	if Valid(r[0]) {
		t.Errorf("ratio[0] should be undefined")
	}
	if !approx(r[2], 1.5) {
		t.Errorf("ratio[2]: expected 1.5, got %v", r[2])
	}
}

func TestRollingExtremes(t *testing.T) {
	s := []float64{3, 1, 4, 1, 5}
	hi := RollingHigh(s, 3)
	lo := RollingLow(s, 3)
	if !approx(hi[4], 5) || !approx(lo[4], 1) || !approx(hi[2], 4) {
		t.Errorf("unexpected extremes: hi=%v lo=%v", hi, lo)
	}
}

func TestCalculate52WeekPosition(t *testing.T) {
	tests := []struct {
		cur, hi, lo, want float64
	}{
		{50, 100, 0, 0.5},
		{150, 100, 0, 1},
		{-5, 100, 0, 0},
		{7, 7, 7, 0.5},
	}
	for _, tt := range tests {
		got, err := Calculate52WeekPosition(tt.cur, tt.hi, tt.lo)
		if err != nil || !approx(got, tt.want) {
			t.Errorf("position(%v,%v,%v): expected %v, got %v (%v)", tt.cur, tt.hi, tt.lo, tt.want, got, err)
		}
	}
	if _, err := Calculate52WeekPosition(1, 0, 5); err == nil {
		t.Error("expected error when high < low")
	}
}
