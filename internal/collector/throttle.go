package collector

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"SignalSentinel/internal/model"
)

// Throttled spaces out calls to the wrapped Fetcher by at least the
// configured delay.
type Throttled struct {
	next    Fetcher
	limiter *rate.Limiter
}

// NewThrottled wraps f. A non-positive delay disables throttling.
func NewThrottled(f Fetcher, delay time.Duration) Fetcher {
	if delay <= 0 {
		return f
	}
	return &Throttled{next: f, limiter: rate.NewLimiter(rate.Every(delay), 1)}
}

func (t *Throttled) Name() string { return t.next.Name() }

func (t *Throttled) FetchOHLCV(ctx context.Context, symbol string, start, end time.Time, interval string) ([]model.OHLCV, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.next.FetchOHLCV(ctx, symbol, start, end, interval)
}
