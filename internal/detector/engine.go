package detector

import (
	"fmt"
	"sort"

	"SignalSentinel/internal/calculator"
	"SignalSentinel/internal/model"
)

// Config selects the indicator parameters the engine evaluates.
type Config struct {
	MAPeriods    []int
	CrossShort   int
	CrossLong    int
	RSIPeriod    int
	BBPeriod     int
	BBK          float64
	MACDFast     int
	MACDSlow     int
	MACDSignal   int
	StochK       int
	StochD       int
	VolumePeriod int
	TouchBand    float64
}

// DefaultConfig returns the conventional indicator parameters.
func DefaultConfig() Config {
	return Config{
		MAPeriods:    []int{20, 50, 200},
		CrossShort:   50,
		CrossLong:    200,
		RSIPeriod:    calculator.DefaultRSIPeriod,
		BBPeriod:     calculator.DefaultBollingerPeriod,
		BBK:          calculator.DefaultBollingerK,
		MACDFast:     calculator.DefaultMACDFast,
		MACDSlow:     calculator.DefaultMACDSlow,
		MACDSignal:   calculator.DefaultMACDSignal,
		StochK:       calculator.DefaultStochK,
		StochD:       calculator.DefaultStochD,
		VolumePeriod: calculator.DefaultVolumePeriod,
		TouchBand:    DefaultTouchBand,
	}
}

// Validate checks that every period is usable.
func (c Config) Validate() error {
	for _, p := range c.MAPeriods {
		if p <= 0 {
			return fmt.Errorf("ma period must be positive, got %d", p)
		}
	}
	if c.CrossShort <= 0 || c.CrossLong <= 0 || c.CrossShort >= c.CrossLong {
		return fmt.Errorf("cross periods must satisfy 0 < short < long, got %d/%d", c.CrossShort, c.CrossLong)
	}
	if c.RSIPeriod <= 0 || c.BBPeriod < 2 || c.StochK <= 0 || c.StochD <= 0 || c.VolumePeriod <= 0 {
		return fmt.Errorf("indicator periods must be positive")
	}
	if c.MACDFast <= 0 || c.MACDSlow <= c.MACDFast || c.MACDSignal <= 0 {
		return fmt.Errorf("macd periods must satisfy 0 < fast < slow, signal > 0")
	}
	if c.TouchBand <= 0 || c.TouchBand >= 1 {
		return fmt.Errorf("touch band must be in (0, 1), got %v", c.TouchBand)
	}
	return nil
}

// Families returns the number of detector instances the config evaluates,
// which bounds the number of detections for one bar.
func (c Config) Families() int {
	return len(c.MAPeriods) + 6
}

// Series holds every indicator computed over one bar window.
type Series struct {
	Symbol    string
	Timeframe model.Timeframe
	Bars      []model.PriceBar
	Frame     calculator.Frame

	MA          map[int][]float64
	EMA12       []float64
	EMA26       []float64
	VWAP        []float64
	RSI         []float64
	Bands       calculator.Bands
	MACD        calculator.MACDResult
	Stoch       calculator.StochResult
	VolumeSMA   []float64
	VolumeRatio []float64
}

// Len returns the number of samples in the series.
func (s *Series) Len() int { return s.Frame.Len() }

// Detection is one signal found at bar Index.
type Detection struct {
	Index  int
	Family model.Family
	Tag    model.Tag
	Event  *model.SignalEvent
}

// Engine computes indicators for a bar window and runs every detector
// family over adjacent samples. It holds no state between calls.
type Engine struct {
	cfg Config
}

// NewEngine creates an Engine. An invalid config is rejected.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	periods := append([]int(nil), cfg.MAPeriods...)
	sort.Ints(periods)
	cfg.MAPeriods = periods
	return &Engine{cfg: cfg}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Compute derives all indicator series for bars (ascending by date).
func (e *Engine) Compute(symbol string, tf model.Timeframe, bars []model.PriceBar) *Series {
	f := calculator.NewFrame(bars)
	s := &Series{
		Symbol:    symbol,
		Timeframe: tf,
		Bars:      bars,
		Frame:     f,
		MA:        make(map[int][]float64),
	}
	for _, p := range e.maPeriods() {
		s.MA[p] = calculator.SMA(f.Close, p)
	}
	s.EMA12 = calculator.EMA(f.Close, 12)
	s.EMA26 = calculator.EMA(f.Close, 26)
	s.VWAP = calculator.VWAP(f.High, f.Low, f.Close, f.Volume)
	s.RSI = calculator.RSI(f.Close, e.cfg.RSIPeriod)
	s.Bands = calculator.BollingerBands(f.Close, e.cfg.BBPeriod, e.cfg.BBK)
	s.MACD = calculator.MACD(f.Close, e.cfg.MACDFast, e.cfg.MACDSlow, e.cfg.MACDSignal)
	s.Stoch = calculator.Stochastic(f.High, f.Low, f.Close, e.cfg.StochK, e.cfg.StochD)
	s.VolumeSMA = calculator.VolumeSMA(f.Volume, e.cfg.VolumePeriod)
	s.VolumeRatio = calculator.VolumeRatio(f.Volume, s.VolumeSMA)
	return s
}

// maPeriods is the union of breakout and cross periods.
func (e *Engine) maPeriods() []int {
	seen := map[int]bool{}
	var out []int
	for _, p := range append(append([]int(nil), e.cfg.MAPeriods...), e.cfg.CrossShort, e.cfg.CrossLong) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// DetectAt compares sample i-1 with sample i and returns at most one
// detection per detector instance, in a fixed family order.
func (e *Engine) DetectAt(s *Series, i int) []Detection {
	if i < 1 || i >= s.Len() {
		return nil
	}
	f := s.Frame
	ctx := model.SignalContext{
		Symbol:    s.Symbol,
		Timeframe: s.Timeframe,
		At:        f.Time[i],
		Price:     f.Close[i],
		Volume:    s.Bars[i].Volume,
	}
	price, prevPrice := f.Close[i], f.Close[i-1]
	var out []Detection
	add := func(fam model.Family, tag model.Tag, ev *model.SignalEvent) {
		out = append(out, Detection{Index: i, Family: fam, Tag: tag, Event: ev})
	}

	for _, p := range e.cfg.MAPeriods {
		ma := s.MA[p]
		if tag := MABreakout(prevPrice, ma[i-1], price, ma[i]); tag != model.TagNone {
			add(model.FamilyMA, tag, model.NewMABreakoutEvent(ctx, p, tag, ma[i]))
		}
	}

	if tag := RSI(s.RSI[i-1], s.RSI[i]); tag != model.TagNone {
		add(model.FamilyRSI, tag, model.NewRSIEvent(ctx, tag, s.RSI[i]))
	}

	b := s.Bands
	if tag := Bollinger(prevPrice, b.Upper[i-1], b.Lower[i-1], price, b.Upper[i], b.Lower[i], e.cfg.TouchBand); tag != model.TagNone {
		band := b.Upper[i]
		if tag == model.TagBreakLower || tag == model.TagTouchLower {
			band = b.Lower[i]
		}
		add(model.FamilyBollinger, tag, model.NewBollingerEvent(ctx, tag, band))
	}

	short, long := s.MA[e.cfg.CrossShort], s.MA[e.cfg.CrossLong]
	if tag := Cross(short[i-1], long[i-1], short[i], long[i]); tag != model.TagNone {
		add(model.FamilyCross, tag, model.NewCrossEvent(ctx, tag, short[i], long[i]))
	}

	m := s.MACD
	if tag := MACD(m.MACD[i-1], m.Signal[i-1], m.MACD[i], m.Signal[i]); tag != model.TagNone {
		add(model.FamilyMACD, tag, model.NewMACDEvent(ctx, tag, m.MACD[i], m.Signal[i]))
	}

	st := s.Stoch
	if tag := Stochastic(st.K[i-1], st.D[i-1], st.K[i], st.D[i]); tag != model.TagNone {
		add(model.FamilyStochastic, tag, model.NewStochasticEvent(ctx, tag, st.K[i], st.D[i]))
	}

	if calculator.Valid(s.VolumeRatio[i-1]) {
		if tag := Volume(s.VolumeRatio[i], f.ChangePct[i]); tag != model.TagNone {
			add(model.FamilyVolume, tag, model.NewVolumeEvent(ctx, tag, s.VolumeSMA[i], s.VolumeRatio[i]))
		}
	}
	return out
}

// DetectAll runs DetectAt for every adjacent pair in ascending order.
func (e *Engine) DetectAll(s *Series) []Detection {
	var out []Detection
	for i := 1; i < s.Len(); i++ {
		out = append(out, e.DetectAt(s, i)...)
	}
	return out
}

// DetectLatest compares only the last two samples.
func (e *Engine) DetectLatest(s *Series) []Detection {
	return e.DetectAt(s, s.Len()-1)
}

// Snapshot returns the last value of every indicator in s.
func (e *Engine) Snapshot(s *Series) *model.IndicatorSnapshot {
	n := s.Len()
	if n == 0 {
		return &model.IndicatorSnapshot{Symbol: s.Symbol}
	}
	last := n - 1
	snap := &model.IndicatorSnapshot{
		Symbol:       s.Symbol,
		AsOf:         s.Frame.Time[last],
		CurrentPrice: s.Frame.Close[last],
		MA:           make(map[int]float64, len(s.MA)),
		EMA12:        s.EMA12[last],
		EMA26:        s.EMA26[last],
		VWAP:         s.VWAP[last],
		RSI:          s.RSI[last],
		BBUpper:      s.Bands.Upper[last],
		BBMiddle:     s.Bands.Middle[last],
		BBLower:      s.Bands.Lower[last],
		MACD:         s.MACD.MACD[last],
		MACDSignal:   s.MACD.Signal[last],
		MACDHist:     s.MACD.Histogram[last],
		StochK:       s.Stoch.K[last],
		StochD:       s.Stoch.D[last],
		VolumeRatio:  s.VolumeRatio[last],
	}
	for p, series := range s.MA {
		snap.MA[p] = series[last]
	}
	if hi, lo, err := calculator.Calculate52WeekRange(s.Frame.High, s.Frame.Low); err == nil {
		snap.High52w, snap.Low52w = hi, lo
		if pos, err := calculator.Calculate52WeekPosition(snap.CurrentPrice, hi, lo); err == nil {
			snap.Position52w = pos
		}
	}
	return snap
}
