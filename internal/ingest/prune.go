package ingest

import (
	"context"

	"SignalSentinel/internal/model"
)

// Prune deletes price bars older than retentionDays. Signals are kept
// unless SignalRetentionDays is set. A non-positive retention is a no-op.
func (s *Service) Prune(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	today := model.TruncateDay(s.now())
	n, err := s.prices.PruneBefore(ctx, today.AddDate(0, 0, -retentionDays))
	if err != nil {
		return 0, err
	}
	if s.opts.SignalRetentionDays > 0 {
		m, err := s.signals.PruneSignalsBefore(ctx, today.AddDate(0, 0, -s.opts.SignalRetentionDays))
		if err != nil {
			return n, err
		}
		n += m
	}
	s.log.Info().Int64("deleted", n).Int("retention_days", retentionDays).Msg("prune finished")
	return n, nil
}
