package ingest

import (
	"context"
	"fmt"
	"time"

	"SignalSentinel/internal/model"
	"SignalSentinel/internal/store"
)

// GapFill re-fetches every run of missing weekdays between the first and
// last stored bar of symbol and repairs the price change of the bar that
// follows each run.
func (s *Service) GapFill(ctx context.Context, symbol string) model.Result {
	start := s.now()
	defer s.metrics.Since("gap_fill", start)

	r := model.Result{Operation: "gap_fill", Symbol: symbol, Status: model.StatusOK}
	s.withLock(ctx, symbol, &r, func() { s.gapFill(ctx, symbol, &r) })
	return r
}

func (s *Service) gapFill(ctx context.Context, symbol string, r *model.Result) {
	log := s.log.With().Str("symbol", symbol).Logger()

	min, max, ok, err := s.prices.DateRange(ctx, symbol)
	if err != nil {
		r.Fail(err)
		return
	}
	if !ok {
		r.Skip(model.DataUnavailable, "no stored bars")
		return
	}
	missing, err := s.prices.MissingWeekdays(ctx, symbol, min, max)
	if err != nil {
		r.Fail(err)
		return
	}
	if len(missing) == 0 {
		r.Message = "no gaps"
		return
	}

	runs := GroupRuns(missing)
	log.Info().Int("missing", len(missing)).Int("runs", len(runs)).Msg("gap fill started")

	var filled []time.Time
	for _, run := range runs {
		if err := ctx.Err(); err != nil {
			r.Fail(err)
			return
		}
		dates, err := s.fillRun(ctx, symbol, run, r)
		if err != nil {
			r.Counts.Errors++
			log.Warn().Err(err).
				Str("from", run[0].Format(model.DateLayout)).
				Str("to", run[len(run)-1].Format(model.DateLayout)).
				Msg("fill run failed")
			continue
		}
		filled = append(filled, dates...)
	}

	if s.opts.GapFillSignals && len(filled) > 0 {
		if err := s.detectFilled(ctx, symbol, min, max, filled, r); err != nil {
			r.Fail(err)
			return
		}
	}
	if len(filled) < len(missing) {
		r.Message = fmt.Sprintf("%d of %d missing weekdays filled", len(filled), len(missing))
	}
	log.Info().Int("filled", len(filled)).Int("updated", r.Counts.Updated).Msg("gap fill finished")
}

// fillRun fetches and stores one run of missing dates and returns the dates
// it stored.
func (s *Service) fillRun(ctx context.Context, symbol string, run []time.Time, r *model.Result) ([]time.Time, error) {
	first, last := run[0], run[len(run)-1]
	bars, skipped, err := s.fetchDaily(ctx, symbol, first, last.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	r.Counts.Skipped += skipped

	want := dateSet(run)
	inRun := bars[:0]
	for _, b := range bars {
		if want[b.Date] {
			inRun = append(inRun, b)
		}
	}
	saved, err := s.persistBars(ctx, symbol, inRun, r)
	if err != nil {
		return nil, err
	}
	if len(saved) == 0 {
		return nil, nil
	}

	if err := s.repairFollowing(ctx, symbol, last, r); err != nil {
		return nil, err
	}
	dates := make([]time.Time, len(saved))
	for i := range saved {
		dates[i] = saved[i].Date
	}
	return dates, nil
}

// repairFollowing recomputes the price change of the first stored bar after
// date against its current predecessor. It counts an update only when the
// stored change was stale.
func (s *Service) repairFollowing(ctx context.Context, symbol string, date time.Time, r *model.Result) error {
	from := date.AddDate(0, 0, 1)
	after, err := s.prices.Range(ctx, symbol, from, from.AddDate(0, 0, s.opts.LookbackDays))
	if err != nil || len(after) == 0 {
		return err
	}
	bar := after[0]
	prev, err := s.prices.Previous(ctx, symbol, bar.Date)
	if err != nil {
		return err
	}
	change, pct := bar.PriceChange, bar.PriceChangePercent
	bar.ApplyPrevious(prev)
	if bar.PriceChange.Equal(change) && bar.PriceChangePercent.Equal(pct) {
		return nil
	}
	if err := s.prices.UpdatePriceChange(ctx, symbol, bar.Date, bar.PriceChange, bar.PriceChangePercent); err != nil {
		return err
	}
	r.Counts.Updated++
	return nil
}

// detectFilled runs detection over the stored range and keeps detections on
// filled dates only.
func (s *Service) detectFilled(ctx context.Context, symbol string, min, max time.Time, filled []time.Time, r *model.Result) error {
	bars, err := s.loadWindow(ctx, symbol, min, max.AddDate(0, 0, 1))
	if err != nil {
		return err
	}
	want := dateSet(filled)
	series := s.engine.Compute(symbol, model.Timeframe1Day, bars)
	for _, d := range s.engine.DetectAll(series) {
		if want[d.Event.TriggeredAt] {
			s.saveSignal(ctx, d.Event, store.SkipIfExists, r, false)
		}
	}
	return nil
}

// GroupRuns splits ascending dates into runs of consecutive weekdays. A
// Friday followed by the next Monday belongs to the same run.
func GroupRuns(dates []time.Time) [][]time.Time {
	var runs [][]time.Time
	var cur []time.Time
	for _, d := range dates {
		d = model.TruncateDay(d)
		if len(cur) > 0 && !nextWeekday(cur[len(cur)-1]).Equal(d) {
			runs = append(runs, cur)
			cur = nil
		}
		cur = append(cur, d)
	}
	if len(cur) > 0 {
		runs = append(runs, cur)
	}
	return runs
}

func nextWeekday(d time.Time) time.Time {
	d = model.TruncateDay(d).AddDate(0, 0, 1)
	for !model.IsWeekday(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}
