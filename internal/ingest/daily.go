package ingest

import (
	"context"
	"time"

	"SignalSentinel/internal/model"
	"SignalSentinel/internal/store"
)

// DailyUpdate stores the bar for date if it is not stored yet and runs the
// detectors on the last two samples of the trailing window. Running it twice
// for the same date is a no-op the second time.
func (s *Service) DailyUpdate(ctx context.Context, symbol string, date time.Time) model.Result {
	start := s.now()
	defer s.metrics.Since("daily_update", start)

	r := model.Result{Operation: "daily_update", Symbol: symbol, Status: model.StatusOK, BarStatus: model.BarPending}
	s.withLock(ctx, symbol, &r, func() { s.dailyUpdate(ctx, symbol, model.TruncateDay(date), &r) })
	return r
}

func (s *Service) dailyUpdate(ctx context.Context, symbol string, date time.Time, r *model.Result) {
	log := s.log.With().Str("symbol", symbol).Str("date", date.Format(model.DateLayout)).Logger()

	existing, err := s.prices.GetBar(ctx, symbol, date)
	if err != nil {
		r.BarStatus = model.BarFailed
		r.Fail(err)
		return
	}
	if existing != nil {
		r.BarStatus = model.BarSkippedDuplicate
		r.Counts.Skipped++
		r.Skip(model.DuplicateSkip, "bar already stored")
		s.metrics.Bar("duplicate")
		return
	}

	raw, err := s.fetcher.FetchOHLCV(ctx, symbol, date.AddDate(0, 0, -s.opts.FetchWindowDays), date.AddDate(0, 0, 1), dailyInterval)
	if err != nil {
		s.metrics.FetchError()
		r.BarStatus = model.BarFailed
		r.Counts.Errors++
		r.Fail(sourceErr(err))
		log.Warn().Err(err).Msg("fetch failed")
		return
	}
	r.BarStatus = model.BarFetched

	var bar *model.PriceBar
	for _, o := range raw {
		if !model.TruncateDay(o.Time).Equal(date) {
			continue
		}
		if b, err := model.BarFromOHLCV(symbol, o, true); err == nil {
			bar = b
		}
		break
	}
	if bar == nil {
		r.BarStatus = model.BarSkippedNoData
		r.Counts.Skipped++
		r.Skip(model.DataUnavailable, "no bar for date")
		s.metrics.Bar("no_data")
		log.Info().Msg("no data for date")
		return
	}

	if err := bar.Validate(); err != nil {
		r.BarStatus = model.BarFailed
		r.Counts.Errors++
		r.Fail(err)
		s.metrics.Bar("invalid")
		log.Warn().Err(err).Msg("discarding invalid bar")
		return
	}
	r.BarStatus = model.BarValidated

	prev, err := s.prices.Previous(ctx, symbol, date)
	if err != nil {
		r.BarStatus = model.BarFailed
		r.Fail(err)
		return
	}
	bar.ApplyPrevious(prev)

	saved, err := s.prices.UpsertBar(ctx, bar)
	if err != nil {
		r.BarStatus = model.BarFailed
		r.Counts.Errors++
		r.Fail(err)
		s.metrics.Bar("error")
		return
	}
	if saved == nil {
		r.BarStatus = model.BarSkippedDuplicate
		r.Counts.Skipped++
		r.Skip(model.DuplicateSkip, "bar already stored")
		s.metrics.Bar("duplicate")
		return
	}
	r.BarStatus = model.BarPersisted
	r.Counts.Added++
	s.metrics.Bar("added")

	s.analyzeLatest(ctx, symbol, date, r)
	log.Info().Int("signals", r.Counts.Signals).Int("duplicates", r.Counts.Duplicates).Msg("daily update finished")
}

// analyzeLatest detects signals on the last pair of the window ending at date.
func (s *Service) analyzeLatest(ctx context.Context, symbol string, date time.Time, r *model.Result) {
	bars, err := s.loadWindow(ctx, symbol, date, date.AddDate(0, 0, 1))
	if err != nil {
		r.Counts.Errors++
		r.Fail(err)
		return
	}
	if len(bars) < s.opts.MinHistory {
		r.InsufficientHistory = true
		s.log.Info().
			Str("symbol", symbol).
			Int("bars", len(bars)).
			Int("required", s.opts.MinHistory).
			Msg("skipping analysis, insufficient history")
		return
	}
	series := s.engine.Compute(symbol, model.Timeframe1Day, bars)
	for _, d := range s.engine.DetectLatest(series) {
		s.saveSignal(ctx, d.Event, store.SkipIfExists, r, true)
	}
}

// DailyUpdateAll runs DailyUpdate for each symbol in order, pausing
// RequestDelay between symbols. It stops early when ctx is cancelled.
func (s *Service) DailyUpdateAll(ctx context.Context, symbols []string, date time.Time) []model.Result {
	results := make([]model.Result, 0, len(symbols))
	for i, symbol := range symbols {
		if i > 0 && s.opts.RequestDelay > 0 {
			select {
			case <-ctx.Done():
				return results
			case <-time.After(s.opts.RequestDelay):
			}
		}
		if ctx.Err() != nil {
			return results
		}
		results = append(results, s.DailyUpdate(ctx, symbol, date))
	}
	return results
}
