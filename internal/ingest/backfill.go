package ingest

import (
	"context"
	"time"

	"SignalSentinel/internal/model"
	"SignalSentinel/internal/store"
)

// Backfill loads daily history for [fromYear, toYear], one year per source
// request, then regenerates every signal in the window from a clean slate.
func (s *Service) Backfill(ctx context.Context, symbol string, fromYear, toYear int) model.Result {
	start := s.now()
	defer s.metrics.Since("backfill", start)

	r := model.Result{Operation: "backfill", Symbol: symbol, Status: model.StatusOK}
	if fromYear > toYear || fromYear <= 0 {
		r.Fail(model.NewErrorf(model.ValidationFailure, "backfill", "invalid year range %d-%d", fromYear, toYear))
		return r
	}
	s.withLock(ctx, symbol, &r, func() { s.backfill(ctx, symbol, fromYear, toYear, &r) })
	return r
}

func (s *Service) backfill(ctx context.Context, symbol string, fromYear, toYear int, r *model.Result) {
	log := s.log.With().Str("symbol", symbol).Int("from", fromYear).Int("to", toYear).Logger()
	log.Info().Msg("backfill started")

	var all []model.PriceBar
	failedYears := 0
	for y := fromYear; y <= toYear; y++ {
		if err := ctx.Err(); err != nil {
			r.Fail(err)
			return
		}
		yStart := time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
		bars, skipped, err := s.fetchDaily(ctx, symbol, yStart, yStart.AddDate(1, 0, 0))
		if err != nil {
			failedYears++
			r.Counts.Errors++
			log.Warn().Err(err).Int("year", y).Msg("fetch year failed")
			continue
		}
		r.Counts.Skipped += skipped
		all = append(all, bars...)
	}
	if len(all) == 0 {
		if failedYears > 0 {
			r.Fail(model.NewErrorf(model.DataUnavailable, "backfill", "no data fetched for %s, %d years failed", symbol, failedYears))
		} else {
			r.Skip(model.DataUnavailable, "source returned no bars")
		}
		return
	}

	saved, err := s.persistBars(ctx, symbol, all, r)
	if err != nil {
		r.Fail(err)
		return
	}
	if len(saved) > 0 {
		// History loaded ahead of stored bars changes their predecessor.
		if err := s.repairFollowing(ctx, symbol, saved[len(saved)-1].Date, r); err != nil {
			r.Fail(err)
			return
		}
	}

	winStart := time.Date(fromYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	winEnd := time.Date(toYear+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	if err := s.regenerate(ctx, symbol, winStart, winEnd, r); err != nil {
		r.Fail(err)
		return
	}
	log.Info().
		Int("added", r.Counts.Added).
		Int("skipped", r.Counts.Skipped).
		Int("updated", r.Counts.Updated).
		Int("errors", r.Counts.Errors).
		Int("signals", r.Counts.Signals).
		Msg("backfill finished")
}

// regenerate clears daily signals in [from, to) and writes every detection
// in that window. Bars before from are loaded as indicator warm-up only.
func (s *Service) regenerate(ctx context.Context, symbol string, from, to time.Time, r *model.Result) error {
	bars, err := s.loadWindow(ctx, symbol, from, to)
	if err != nil {
		return err
	}
	if _, err := s.signals.DeleteSignals(ctx, symbol, model.Timeframe1Day, from, to); err != nil {
		return err
	}
	series := s.engine.Compute(symbol, model.Timeframe1Day, bars)
	for _, d := range s.engine.DetectAll(series) {
		if d.Event.TriggeredAt.Before(from) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		// The window was just cleared, so no key can already exist.
		s.saveSignal(ctx, d.Event, store.Unconditional, r, false)
	}
	return nil
}
