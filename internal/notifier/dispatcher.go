package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"SignalSentinel/internal/metrics"
)

// Dispatcher fans alerts out to every notifier asynchronously. Delivery
// failures are logged and counted, never returned to the caller.
type Dispatcher struct {
	notifiers []Notifier
	timeout   time.Duration
	log       zerolog.Logger
	metrics   *metrics.Metrics

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. A non-positive timeout defaults to 30s.
func NewDispatcher(notifiers []Notifier, timeout time.Duration, log zerolog.Logger, m *metrics.Metrics) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		notifiers: notifiers,
		timeout:   timeout,
		log:       log.With().Str("component", "dispatcher").Logger(),
		metrics:   m,
	}
}

// Submit schedules delivery of alert and returns immediately. Alerts
// submitted after Close are dropped.
func (d *Dispatcher) Submit(alert Alert) {
	d.mu.Lock()
	if d.closed || len(d.notifiers) == 0 {
		d.mu.Unlock()
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		d.deliver(alert)
	}()
}

func (d *Dispatcher) deliver(alert Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	// A plain Group so one failing channel does not cancel the others.
	var g errgroup.Group
	for _, n := range d.notifiers {
		n := n
		g.Go(func() error {
			if err := n.Send(ctx, alert); err != nil {
				d.metrics.Alert("failed")
				d.log.Error().Err(err).
					Str("notifier", n.Name()).
					Str("symbol", alert.Symbol).
					Str("signal_type", alert.SignalType).
					Msg("alert delivery failed")
				return err
			}
			d.metrics.Alert("delivered")
			return nil
		})
	}
	_ = g.Wait()
}

// Close stops accepting alerts and waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
