// Package ingest runs the ingestion orchestrators: historical backfill,
// daily incremental update, gap fill, intraday scan and retention pruning.
//
// Every operation is synchronous and holds the per-symbol lock for its
// duration. Failures of individual units (a year, a bar, a signal) are
// counted in the returned model.Result and processing continues.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"SignalSentinel/internal/collector"
	"SignalSentinel/internal/detector"
	"SignalSentinel/internal/lock"
	"SignalSentinel/internal/metrics"
	"SignalSentinel/internal/model"
	"SignalSentinel/internal/notifier"
	"SignalSentinel/internal/store"
)

const dailyInterval = "1d"

// AlertSink receives alerts for newly saved signals. Submit must not block.
type AlertSink interface {
	Submit(alert notifier.Alert)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Fetcher    collector.Fetcher
	Prices     store.PriceStore
	Signals    store.SignalStore
	Engine     *detector.Engine
	Dispatcher AlertSink // optional
	Locker     lock.Locker
	Metrics    *metrics.Metrics
	Log        zerolog.Logger
	Now        func() time.Time
}

// Options tune the orchestrator windows.
type Options struct {
	// FetchWindowDays is the trailing window requested by DailyUpdate.
	FetchWindowDays int
	// LookbackDays is the indicator window loaded before analysis.
	LookbackDays int
	// MinHistory is the minimum number of bars required for daily analysis.
	MinHistory int
	// GapFillSignals runs detection over gap-filled dates.
	GapFillSignals bool
	// RequestDelay is the pause between symbols in DailyUpdateAll. Leave it
	// zero when the fetcher is already throttled.
	RequestDelay time.Duration
	// IntradayDays is the trailing window fetched by ScanIntraday.
	IntradayDays int
	// SignalRetentionDays, when positive, lets Prune delete old signals too.
	SignalRetentionDays int
}

// DefaultOptions returns the standard windows.
func DefaultOptions() Options {
	return Options{
		FetchWindowDays: 10,
		LookbackDays:    365,
		MinHistory:      200,
		IntradayDays:    5,
	}
}

// Service runs ingestion operations for any number of symbols.
type Service struct {
	fetcher    collector.Fetcher
	prices     store.PriceStore
	signals    store.SignalStore
	engine     *detector.Engine
	dispatcher AlertSink
	locker     lock.Locker
	metrics    *metrics.Metrics
	log        zerolog.Logger
	now        func() time.Time
	opts       Options
}

// New creates a Service. Zero-valued options fall back to DefaultOptions.
func New(deps Deps, opts Options) (*Service, error) {
	if deps.Fetcher == nil || deps.Prices == nil || deps.Signals == nil || deps.Engine == nil {
		return nil, errors.New("ingest: fetcher, prices, signals and engine are required")
	}
	def := DefaultOptions()
	if opts.FetchWindowDays <= 0 {
		opts.FetchWindowDays = def.FetchWindowDays
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = def.LookbackDays
	}
	if opts.MinHistory <= 0 {
		opts.MinHistory = def.MinHistory
	}
	if opts.IntradayDays <= 0 {
		opts.IntradayDays = def.IntradayDays
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocalLocker()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		fetcher:    deps.Fetcher,
		prices:     deps.Prices,
		signals:    deps.Signals,
		engine:     deps.Engine,
		dispatcher: deps.Dispatcher,
		locker:     deps.Locker,
		metrics:    deps.Metrics,
		log:        deps.Log.With().Str("component", "ingest").Logger(),
		now:        deps.Now,
		opts:       opts,
	}, nil
}

// Options returns the effective options.
func (s *Service) Options() Options { return s.opts }

func (s *Service) withLock(ctx context.Context, symbol string, r *model.Result, fn func()) {
	release, err := s.locker.Lock(ctx, symbol)
	if err != nil {
		r.Fail(fmt.Errorf("lock %s: %w", symbol, err))
		return
	}
	defer release()
	fn()
}

// fetchDaily requests daily bars for [start, end) and converts them.
// Incomplete bars are dropped and reported as skipped.
func (s *Service) fetchDaily(ctx context.Context, symbol string, start, end time.Time) ([]model.PriceBar, int, error) {
	raw, err := s.fetcher.FetchOHLCV(ctx, symbol, start, end, dailyInterval)
	if err != nil {
		s.metrics.FetchError()
		return nil, 0, sourceErr(err)
	}
	bars := make([]model.PriceBar, 0, len(raw))
	skipped := 0
	for _, o := range raw {
		bar, err := model.BarFromOHLCV(symbol, o, true)
		if err != nil {
			skipped++
			continue
		}
		bars = append(bars, *bar)
	}
	return bars, skipped, nil
}

// persistBars dedupes, validates and bulk-saves bars, deriving price
// change from the preceding bar (the stored predecessor for the first).
// It returns the bars handed to the store.
func (s *Service) persistBars(ctx context.Context, symbol string, bars []model.PriceBar, r *model.Result) ([]model.PriceBar, error) {
	bars = store.DedupeBars(bars)
	valid := bars[:0]
	for i := range bars {
		if err := bars[i].Validate(); err != nil {
			r.Counts.Errors++
			s.metrics.Bar("invalid")
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("discarding invalid bar")
			continue
		}
		valid = append(valid, bars[i])
	}
	if len(valid) == 0 {
		return nil, nil
	}

	prev, err := s.prices.Previous(ctx, symbol, valid[0].Date)
	if err != nil {
		return nil, err
	}
	for i := range valid {
		valid[i].ApplyPrevious(prev)
		prev = &valid[i]
	}

	added, skipped, err := s.prices.SaveBars(ctx, valid)
	if err != nil {
		return nil, err
	}
	r.Counts.Added += added
	r.Counts.Skipped += skipped
	s.metrics.BarsN("added", added)
	s.metrics.BarsN("duplicate", skipped)
	return valid, nil
}

// loadWindow returns stored daily bars in [from - LookbackDays, to).
func (s *Service) loadWindow(ctx context.Context, symbol string, from, to time.Time) ([]model.PriceBar, error) {
	return s.prices.Range(ctx, symbol, from.AddDate(0, 0, -s.opts.LookbackDays), to)
}

// saveSignal persists ev under policy, updates r and optionally submits an
// alert for a newly saved event.
func (s *Service) saveSignal(ctx context.Context, ev *model.SignalEvent, policy store.InsertPolicy, r *model.Result, notify bool) {
	outcome, err := s.signals.SaveSignal(ctx, ev, policy)
	switch {
	case err != nil:
		r.Counts.Errors++
		s.metrics.Signal(ev.SignalType, "error")
		s.log.Error().Err(err).
			Str("symbol", ev.Symbol).
			Str("signal_type", ev.SignalType).
			Time("triggered_at", ev.TriggeredAt).
			Msg("save signal failed")
	case outcome == store.Duplicate:
		r.Counts.Duplicates++
		s.metrics.Signal(ev.SignalType, "duplicate")
	default:
		r.Counts.Signals++
		r.Signals = append(r.Signals, ev)
		s.metrics.Signal(ev.SignalType, "saved")
		if notify && s.dispatcher != nil {
			s.dispatcher.Submit(notifier.AlertFromSignal(ev))
		}
	}
}

// Gaps returns the weekdays missing between the first and last stored bar.
func (s *Service) Gaps(ctx context.Context, symbol string) ([]time.Time, error) {
	min, max, ok, err := s.prices.DateRange(ctx, symbol)
	if err != nil || !ok {
		return nil, err
	}
	return s.prices.MissingWeekdays(ctx, symbol, min, max)
}

// Snapshot computes the latest indicator values for symbol.
func (s *Service) Snapshot(ctx context.Context, symbol string) (*model.IndicatorSnapshot, error) {
	latest, err := s.prices.Latest(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, model.NewErrorf(model.DataUnavailable, "snapshot", "no bars stored for %s", symbol)
	}
	bars, err := s.loadWindow(ctx, symbol, latest.Date, latest.Date.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	return s.engine.Snapshot(s.engine.Compute(symbol, model.Timeframe1Day, bars)), nil
}

// RecentSignals lists stored signals matching f, newest first.
func (s *Service) RecentSignals(ctx context.Context, f store.SignalFilter) ([]model.SignalEvent, error) {
	return s.signals.ListSignals(ctx, f)
}

// Prices returns stored daily bars for symbol in [from, to).
func (s *Service) Prices(ctx context.Context, symbol string, from, to time.Time) ([]model.PriceBar, error) {
	return s.prices.Range(ctx, symbol, from, to)
}

// sourceErr classifies an unclassified price source error as DataUnavailable.
func sourceErr(err error) error {
	if model.KindOf(err) != "" {
		return err
	}
	return model.NewError(model.DataUnavailable, "fetch", err)
}

func dateSet(dates []time.Time) map[time.Time]bool {
	m := make(map[time.Time]bool, len(dates))
	for _, d := range dates {
		m[model.TruncateDay(d)] = true
	}
	return m
}

func sortByDate(bars []model.PriceBar) {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
}
