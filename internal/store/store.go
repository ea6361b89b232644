// Package store persists price bars and detected signals.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"SignalSentinel/internal/model"
)

// InsertPolicy selects how SaveSignal treats an existing key.
type InsertPolicy int

const (
	// SkipIfExists checks for an existing key before inserting.
	SkipIfExists InsertPolicy = iota
	// Unconditional inserts without a prior check. Used after a window
	// has been cleared with DeleteSignals.
	Unconditional
)

func (p InsertPolicy) String() string {
	if p == Unconditional {
		return "unconditional"
	}
	return "skip_if_exists"
}

// SaveOutcome reports whether a signal row was written.
type SaveOutcome int

const (
	Saved SaveOutcome = iota
	Duplicate
)

func (o SaveOutcome) String() string {
	if o == Duplicate {
		return "duplicate"
	}
	return "saved"
}

// SignalFilter narrows ListSignals. Zero values mean "any".
type SignalFilter struct {
	Symbol    string
	Timeframe model.Timeframe
	Since     time.Time
	Until     time.Time
	Limit     int
}

// PriceStore persists one bar per (symbol, date).
type PriceStore interface {
	// UpsertBar inserts bar and returns it, or returns nil without error
	// when a bar for (symbol, date) already exists.
	UpsertBar(ctx context.Context, bar *model.PriceBar) (*model.PriceBar, error)
	// SaveBars inserts bars, skipping existing dates.
	SaveBars(ctx context.Context, bars []model.PriceBar) (added, skipped int, err error)
	// GetBar returns nil without error when the bar is absent.
	GetBar(ctx context.Context, symbol string, date time.Time) (*model.PriceBar, error)
	Latest(ctx context.Context, symbol string) (*model.PriceBar, error)
	// Previous returns the latest bar strictly before date.
	Previous(ctx context.Context, symbol string, date time.Time) (*model.PriceBar, error)
	// Range returns bars in [start, end) ascending by date.
	Range(ctx context.Context, symbol string, start, end time.Time) ([]model.PriceBar, error)
	DateRange(ctx context.Context, symbol string) (min, max time.Time, ok bool, err error)
	// MissingWeekdays returns weekdays in [start, end] with no stored bar.
	MissingWeekdays(ctx context.Context, symbol string, start, end time.Time) ([]time.Time, error)
	UpdatePriceChange(ctx context.Context, symbol string, date time.Time, change, pct decimal.Decimal) error
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Symbols(ctx context.Context) ([]string, error)
}

// SignalStore persists signal events, at most one per SignalKey.
type SignalStore interface {
	SaveSignal(ctx context.Context, ev *model.SignalEvent, policy InsertPolicy) (SaveOutcome, error)
	ExistsSignal(ctx context.Context, key model.SignalKey) (bool, error)
	// ListSignals returns matching events newest first.
	ListSignals(ctx context.Context, f SignalFilter) ([]model.SignalEvent, error)
	// DeleteSignals removes events for symbol/timeframe triggered in [from, to).
	DeleteSignals(ctx context.Context, symbol string, tf model.Timeframe, from, to time.Time) (int64, error)
	PruneSignalsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store is a backend holding both tables.
type Store interface {
	PriceStore
	SignalStore
	Close() error
}

// Backend names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Options selects and configures a backend for Open.
type Options struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// Open creates the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverSQLite:
		return NewSQLiteStore(ctx, opts.SQLitePath)
	case DriverPostgres:
		return NewPostgresStore(ctx, opts.PostgresDSN)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", opts.Driver)
	}
}

// Weekdays returns every Monday-Friday date in [start, end].
func Weekdays(start, end time.Time) []time.Time {
	start, end = model.TruncateDay(start), model.TruncateDay(end)
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if model.IsWeekday(d) {
			out = append(out, d)
		}
	}
	return out
}

// missingFrom diffs the weekday calendar in [start, end] against stored.
func missingFrom(start, end time.Time, stored map[string]bool) []time.Time {
	var out []time.Time
	for _, d := range Weekdays(start, end) {
		if !stored[d.Format(model.DateLayout)] {
			out = append(out, d)
		}
	}
	return out
}

// DedupeBars keeps the first bar per date and sorts the result by date.
func DedupeBars(bars []model.PriceBar) []model.PriceBar {
	seen := make(map[string]bool, len(bars))
	out := make([]model.PriceBar, 0, len(bars))
	for _, b := range bars {
		k := b.Symbol + "|" + b.Date.Format(model.DateLayout)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

var errBarNotFound = errors.New("bar not found")

func persistErr(op string, err error) error {
	return model.NewError(model.PersistenceFailure, op, err)
}
