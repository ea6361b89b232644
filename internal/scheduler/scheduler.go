package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"SignalSentinel/internal/ingest"
	"SignalSentinel/internal/model"
	"SignalSentinel/internal/notifier"
	"SignalSentinel/internal/store"
)

// Reporter sends operator-facing text such as job summaries.
type Reporter interface {
	SendText(ctx context.Context, text string) error
}

// Jobs holds the cron specs (with seconds). An empty spec disables the job.
type Jobs struct {
	DailyCron    string
	GapFillCron  string
	IntradayCron string
	PruneCron    string
}

// Options configure the scheduled jobs.
type Options struct {
	Symbols          []string
	IntradayInterval string
	RetentionDays    int
	Now              func() time.Time
}

// Scheduler manages all cron tasks and answers chat commands.
type Scheduler struct {
	cron     *cron.Cron
	svc      *ingest.Service
	reporter Reporter
	log      zerolog.Logger
	ctx      context.Context
	opts     Options
}

// New creates a Scheduler. reporter may be nil.
func New(ctx context.Context, svc *ingest.Service, reporter Reporter, log zerolog.Logger, opts Options) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	cl := cronLogger{log: log}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.IntradayInterval == "" {
		opts.IntradayInterval = "15m"
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		svc:      svc,
		reporter: reporter,
		log:      log,
		ctx:      ctx,
		opts:     opts,
	}
}

// Register adds every configured job.
func (s *Scheduler) Register(jobs Jobs) error {
	for _, j := range []struct {
		name string
		spec string
		fn   func()
	}{
		{"daily update", jobs.DailyCron, s.dailyTask},
		{"gap fill", jobs.GapFillCron, s.gapFillTask},
		{"intraday scan", jobs.IntradayCron, s.intradayTask},
		{"prune", jobs.PruneCron, s.pruneTask},
	} {
		if j.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(j.spec, j.fn); err != nil {
			return fmt.Errorf("register %s task: %w", j.name, err)
		}
		s.log.Info().Str("job", j.name).Str("spec", j.spec).Msg("job registered")
	}
	return nil
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// RunDailyNow executes the daily update immediately.
func (s *Scheduler) RunDailyNow() { s.dailyTask() }

func (s *Scheduler) today() time.Time { return model.TruncateDay(s.opts.Now()) }

func (s *Scheduler) dailyTask() {
	date := s.today()
	if !model.IsWeekday(date) {
		s.log.Info().Str("date", date.Format(model.DateLayout)).Msg("skipping daily update on weekend")
		return
	}
	s.log.Info().Str("date", date.Format(model.DateLayout)).Int("symbols", len(s.opts.Symbols)).Msg("running daily update")
	results := s.svc.DailyUpdateAll(s.ctx, s.opts.Symbols, date)

	var total model.Counts
	for _, r := range results {
		total.Add(r.Counts)
		if r.Status == model.StatusFailed {
			s.trySend(notifier.FormatResult(r))
		}
	}
	s.log.Info().
		Int("added", total.Added).
		Int("signals", total.Signals).
		Int("errors", total.Errors).
		Msg("daily update finished")
}

func (s *Scheduler) gapFillTask() {
	for _, symbol := range s.opts.Symbols {
		if s.ctx.Err() != nil {
			return
		}
		r := s.svc.GapFill(s.ctx, symbol)
		if r.Counts.Added > 0 || r.Status == model.StatusFailed {
			s.trySend(notifier.FormatResult(r))
		}
	}
}

func (s *Scheduler) intradayTask() {
	for _, symbol := range s.opts.Symbols {
		if s.ctx.Err() != nil {
			return
		}
		r := s.svc.ScanIntraday(s.ctx, symbol, s.opts.IntradayInterval)
		if r.Status == model.StatusFailed {
			s.log.Warn().Str("symbol", symbol).Str("kind", string(r.Kind)).Msg(r.Message)
		}
	}
}

func (s *Scheduler) pruneTask() {
	n, err := s.svc.Prune(s.ctx, s.opts.RetentionDays)
	if err != nil {
		s.log.Error().Err(err).Msg("prune failed")
		return
	}
	s.log.Info().Int64("deleted", n).Msg("prune task finished")
}

const helpText = "Available commands:\n" +
	"/signals SYMBOL - recent signals\n" +
	"/update SYMBOL [YYYY-MM-DD] - run the daily update\n" +
	"/gaps SYMBOL - missing weekdays\n" +
	"/status SYMBOL - latest indicators\n" +
	"/help - this message"

// HandleCommand processes a chat command and returns the reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	name := strings.ToLower(fields[0])
	if i := strings.IndexByte(name, '@'); i > 0 {
		name = name[:i]
	}
	var symbol string
	if len(fields) > 1 {
		symbol = strings.ToUpper(fields[1])
	}

	switch name {
	case "/signals", "/update", "/gaps", "/status":
		if symbol == "" {
			return fmt.Sprintf("usage: %s SYMBOL", name)
		}
	default:
		return helpText
	}

	switch name {
	case "/signals":
		evs, err := s.svc.RecentSignals(ctx, store.SignalFilter{Symbol: symbol, Limit: 10})
		if err != nil {
			return fmt.Sprintf("❌ list signals: %v", err)
		}
		return notifier.FormatSignalList(symbol, evs)
	case "/update":
		date := s.today()
		if len(fields) > 2 {
			d, err := time.Parse(model.DateLayout, fields[2])
			if err != nil {
				return fmt.Sprintf("invalid date %q, want YYYY-MM-DD", fields[2])
			}
			date = d
		}
		return notifier.FormatResult(s.svc.DailyUpdate(ctx, symbol, date))
	case "/gaps":
		gaps, err := s.svc.Gaps(ctx, symbol)
		if err != nil {
			return fmt.Sprintf("❌ gaps: %v", err)
		}
		return notifier.FormatGaps(symbol, gaps)
	default:
		snap, err := s.svc.Snapshot(ctx, symbol)
		if err != nil {
			return fmt.Sprintf("❌ status: %v", err)
		}
		return notifier.FormatSnapshot(snap)
	}
}

func (s *Scheduler) trySend(text string) {
	if s.reporter == nil {
		return
	}
	if err := s.reporter.SendText(s.ctx, text); err != nil {
		s.log.Error().Err(err).Msg("send report failed")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
