package collector

import (
	"context"
	"sync"
	"time"

	"SignalSentinel/internal/model"
)

// FetchCall records one MockFetcher request.
type FetchCall struct {
	Symbol     string
	Start, End time.Time
	Interval   string
}

// MockFetcher serves fixed bars for development and testing.
type MockFetcher struct {
	mu sync.Mutex

	// Bars holds the full history per symbol; requests return the slice
	// falling inside [start, end).
	Bars map[string][]model.OHLCV
	// Err, when set, is returned by every call.
	Err error
	// FailYears makes calls whose window starts in one of these years fail.
	FailYears map[int]error

	calls []FetchCall
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchOHLCV(_ context.Context, symbol string, start, end time.Time, interval string) ([]model.OHLCV, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, FetchCall{Symbol: symbol, Start: start, End: end, Interval: interval})

	if m.Err != nil {
		return nil, m.Err
	}
	if err, ok := m.FailYears[start.Year()]; ok {
		return nil, err
	}
	var out []model.OHLCV
	for _, b := range m.Bars[symbol] {
		if !b.Time.Before(start) && b.Time.Before(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

// SetBars replaces the history for symbol.
func (m *MockFetcher) SetBars(symbol string, bars []model.OHLCV) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Bars == nil {
		m.Bars = make(map[string][]model.OHLCV)
	}
	m.Bars[symbol] = bars
}

// Calls returns the requests made so far.
func (m *MockFetcher) Calls() []FetchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]FetchCall(nil), m.calls...)
}

// GenerateDaily builds one bar per weekday starting at start, with a 1%
// high/low range around each close and constant volume.
func GenerateDaily(start time.Time, closes []float64, volume float64) []model.OHLCV {
	bars := make([]model.OHLCV, 0, len(closes))
	d := model.TruncateDay(start)
	for _, c := range closes {
		for !model.IsWeekday(d) {
			d = d.AddDate(0, 0, 1)
		}
		c := c
		o, h, l, v := c, c*1.01, c*0.99, volume
		bars = append(bars, model.OHLCV{Time: d, Open: &o, High: &h, Low: &l, Close: &c, Volume: &v})
		d = d.AddDate(0, 0, 1)
	}
	return bars
}
