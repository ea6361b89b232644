package ingest

import (
	"context"
	"time"

	"SignalSentinel/internal/model"
	"SignalSentinel/internal/store"
)

// ScanIntraday fetches recent intraday bars (not persisted) and saves the
// signals of the latest bar pair under the interval's timeframe.
func (s *Service) ScanIntraday(ctx context.Context, symbol, interval string) model.Result {
	start := s.now()
	defer s.metrics.Since("intraday_scan", start)

	r := model.Result{Operation: "intraday_scan", Symbol: symbol, Status: model.StatusOK}
	tf, err := model.TimeframeForInterval(interval)
	if err != nil || tf == model.Timeframe1Day {
		r.Fail(model.NewErrorf(model.ValidationFailure, "intraday scan", "unsupported intraday interval %q", interval))
		return r
	}
	s.withLock(ctx, symbol, &r, func() { s.scanIntraday(ctx, symbol, interval, tf, &r) })
	return r
}

func (s *Service) scanIntraday(ctx context.Context, symbol, interval string, tf model.Timeframe, r *model.Result) {
	end := s.now().UTC()
	raw, err := s.fetcher.FetchOHLCV(ctx, symbol, end.AddDate(0, 0, -s.opts.IntradayDays), end, interval)
	if err != nil {
		s.metrics.FetchError()
		r.Counts.Errors++
		r.Fail(sourceErr(err))
		return
	}

	seen := make(map[time.Time]bool, len(raw))
	bars := make([]model.PriceBar, 0, len(raw))
	for _, o := range raw {
		bar, err := model.BarFromOHLCV(symbol, o, false)
		if err != nil {
			r.Counts.Skipped++
			continue
		}
		if err := bar.Validate(); err != nil {
			r.Counts.Errors++
			continue
		}
		if seen[bar.Date] {
			continue
		}
		seen[bar.Date] = true
		bars = append(bars, *bar)
	}
	sortByDate(bars)
	if len(bars) < 2 {
		r.InsufficientHistory = true
		r.Skip(model.InsufficientHistory, "not enough intraday bars")
		return
	}

	series := s.engine.Compute(symbol, tf, bars)
	for _, d := range s.engine.DetectLatest(series) {
		s.saveSignal(ctx, d.Event, store.SkipIfExists, r, true)
	}
}
