package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"SignalSentinel/internal/model"
)

// MemoryStore keeps everything in process memory. It backs tests and the
// "memory" driver.
type MemoryStore struct {
	mu      sync.RWMutex
	bars    map[string]map[string]model.PriceBar // symbol -> date -> bar
	signals map[model.SignalKey]model.SignalEvent
	nextID  int64
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bars:    make(map[string]map[string]model.PriceBar),
		signals: make(map[model.SignalKey]model.SignalEvent),
		now:     time.Now,
	}
}

func dayKey(t time.Time) string { return model.TruncateDay(t).Format(model.DateLayout) }

func (m *MemoryStore) UpsertBar(_ context.Context, bar *model.PriceBar) (*model.PriceBar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.insertLocked(*bar) {
		return nil, nil
	}
	out := *bar
	return &out, nil
}

func (m *MemoryStore) insertLocked(bar model.PriceBar) bool {
	bar.Date = model.TruncateDay(bar.Date)
	days, ok := m.bars[bar.Symbol]
	if !ok {
		days = make(map[string]model.PriceBar)
		m.bars[bar.Symbol] = days
	}
	k := bar.Date.Format(model.DateLayout)
	if _, exists := days[k]; exists {
		return false
	}
	days[k] = bar
	return true
}

func (m *MemoryStore) SaveBars(_ context.Context, bars []model.PriceBar) (added, skipped int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range bars {
		if m.insertLocked(b) {
			added++
		} else {
			skipped++
		}
	}
	return added, skipped, nil
}

func (m *MemoryStore) GetBar(_ context.Context, symbol string, date time.Time) (*model.PriceBar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bars[symbol][dayKey(date)]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

// sortedLocked returns a symbol's bars ascending by date.
func (m *MemoryStore) sortedLocked(symbol string) []model.PriceBar {
	days := m.bars[symbol]
	out := make([]model.PriceBar, 0, len(days))
	for _, b := range days {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (m *MemoryStore) Latest(_ context.Context, symbol string) (*model.PriceBar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bars := m.sortedLocked(symbol)
	if len(bars) == 0 {
		return nil, nil
	}
	b := bars[len(bars)-1]
	return &b, nil
}

func (m *MemoryStore) Previous(_ context.Context, symbol string, date time.Time) (*model.PriceBar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	date = model.TruncateDay(date)
	var prev *model.PriceBar
	for _, b := range m.sortedLocked(symbol) {
		if !b.Date.Before(date) {
			break
		}
		b := b
		prev = &b
	}
	return prev, nil
}

func (m *MemoryStore) Range(_ context.Context, symbol string, start, end time.Time) ([]model.PriceBar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.PriceBar
	for _, b := range m.sortedLocked(symbol) {
		if !b.Date.Before(start) && b.Date.Before(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *MemoryStore) DateRange(_ context.Context, symbol string) (min, max time.Time, ok bool, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bars := m.sortedLocked(symbol)
	if len(bars) == 0 {
		return time.Time{}, time.Time{}, false, nil
	}
	return bars[0].Date, bars[len(bars)-1].Date, true, nil
}

func (m *MemoryStore) MissingWeekdays(_ context.Context, symbol string, start, end time.Time) ([]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored := make(map[string]bool, len(m.bars[symbol]))
	for k := range m.bars[symbol] {
		stored[k] = true
	}
	return missingFrom(start, end, stored), nil
}

func (m *MemoryStore) UpdatePriceChange(_ context.Context, symbol string, date time.Time, change, pct decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := dayKey(date)
	b, ok := m.bars[symbol][k]
	if !ok {
		return persistErr("update price change", errBarNotFound)
	}
	b.PriceChange, b.PriceChangePercent = change, pct
	m.bars[symbol][k] = b
	return nil
}

func (m *MemoryStore) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff = model.TruncateDay(cutoff)
	var n int64
	for _, days := range m.bars {
		for k, b := range days {
			if b.Date.Before(cutoff) {
				delete(days, k)
				n++
			}
		}
	}
	return n, nil
}

func (m *MemoryStore) Symbols(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for s, days := range m.bars {
		if len(days) > 0 {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) SaveSignal(_ context.Context, ev *model.SignalEvent, _ InsertPolicy) (SaveOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// The map key acts as the unique index for both policies.
	key := ev.Key()
	if _, ok := m.signals[key]; ok {
		return Duplicate, nil
	}
	m.nextID++
	ev.ID = m.nextID
	ev.TriggeredAt = key.TriggeredAt
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = m.now().UTC()
	}
	m.signals[key] = *ev
	return Saved, nil
}

func (m *MemoryStore) ExistsSignal(_ context.Context, key model.SignalKey) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key.TriggeredAt = key.Timeframe.Truncate(key.TriggeredAt)
	_, ok := m.signals[key]
	return ok, nil
}

func (m *MemoryStore) ListSignals(_ context.Context, f SignalFilter) ([]model.SignalEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.SignalEvent
	for _, ev := range m.signals {
		if matchFilter(ev, f) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TriggeredAt.Equal(out[j].TriggeredAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].TriggeredAt.After(out[j].TriggeredAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matchFilter(ev model.SignalEvent, f SignalFilter) bool {
	switch {
	case f.Symbol != "" && ev.Symbol != f.Symbol:
		return false
	case f.Timeframe != "" && ev.Timeframe != f.Timeframe:
		return false
	case !f.Since.IsZero() && ev.TriggeredAt.Before(f.Since):
		return false
	case !f.Until.IsZero() && !ev.TriggeredAt.Before(f.Until):
		return false
	}
	return true
}

func (m *MemoryStore) DeleteSignals(_ context.Context, symbol string, tf model.Timeframe, from, to time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.signals {
		if k.Symbol == symbol && k.Timeframe == tf && !k.TriggeredAt.Before(from) && k.TriggeredAt.Before(to) {
			delete(m.signals, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) PruneSignalsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.signals {
		if k.TriggeredAt.Before(cutoff) {
			delete(m.signals, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Close() error { return nil }
