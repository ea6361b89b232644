package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"SignalSentinel/internal/api"
	"SignalSentinel/internal/collector"
	"SignalSentinel/internal/config"
	"SignalSentinel/internal/detector"
	"SignalSentinel/internal/ingest"
	"SignalSentinel/internal/lock"
	"SignalSentinel/internal/logging"
	"SignalSentinel/internal/metrics"
	"SignalSentinel/internal/model"
	"SignalSentinel/internal/notifier"
	"SignalSentinel/internal/scheduler"
	"SignalSentinel/internal/store"
)

func main() {
	backfill := flag.String("backfill", "", "backfill SYMBOL and exit")
	fromYear := flag.Int("from", time.Now().Year(), "first year for -backfill")
	toYear := flag.Int("to", time.Now().Year(), "last year for -backfill")
	gapfill := flag.String("gapfill", "", "fill missing weekdays of SYMBOL and exit")
	update := flag.String("update", "", "run the daily update for SYMBOL and exit")
	date := flag.String("date", "", "date for -update (YYYY-MM-DD, default today)")
	flag.Parse()

	cfg, err := config.Load(config.Path())
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config validation: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.NewWithOptions(cfg.Logging())
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	log = log.With().Str("app", cfg.App.Name).Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	var r model.Result
	oneShot := true
	switch {
	case *backfill != "":
		r = app.svc.Backfill(ctx, strings.ToUpper(*backfill), *fromYear, *toYear)
	case *gapfill != "":
		r = app.svc.GapFill(ctx, strings.ToUpper(*gapfill))
	case *update != "":
		d := time.Now().UTC()
		if *date != "" {
			if d, err = time.Parse(model.DateLayout, *date); err != nil {
				app.close()
				log.Fatal().Err(err).Msg("invalid -date")
			}
		}
		r = app.svc.DailyUpdate(ctx, strings.ToUpper(*update), d)
	default:
		oneShot = false
	}
	if oneShot {
		code := report(log, r)
		// Close waits for pending alerts before exiting.
		app.close()
		os.Exit(code)
	}

	defer app.close()
	serve(ctx, cfg, log, app)
}

type application struct {
	svc        *ingest.Service
	store      store.Store
	dispatcher *notifier.Dispatcher
	telegram   *notifier.TelegramNotifier
	registry   *prometheus.Registry
	closers    []func() error
}

func (a *application) close() {
	a.dispatcher.Close()
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

func build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*application, error) {
	app := &application{registry: prometheus.NewRegistry()}
	app.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(app.registry)

	st, err := store.Open(ctx, cfg.Store())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	app.store = st
	app.closers = append(app.closers, st.Close)
	log.Info().Str("driver", cfg.Database.Driver).Msg("store opened")

	fetcher, err := collector.New(cfg.Source())
	if err != nil {
		return nil, err
	}
	fetcher = collector.NewThrottled(fetcher, cfg.RequestDelay())
	log.Info().Str("source", fetcher.Name()).Msg("price source ready")

	engine, err := detector.NewEngine(cfg.Detector())
	if err != nil {
		return nil, fmt.Errorf("indicator engine: %w", err)
	}

	notifiers, err := buildNotifiers(cfg, log, app)
	if err != nil {
		return nil, err
	}
	app.dispatcher = notifier.NewDispatcher(notifiers, 30*time.Second, log, m)

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Redis.Addr != "" {
		client, err := lock.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		app.closers = append(app.closers, client.Close)
		locker = lock.NewRedisLocker(client, "sentinel:lock:", cfg.Redis.LockTTL, log)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis symbol locks")
	}

	app.svc, err = ingest.New(ingest.Deps{
		Fetcher:    fetcher,
		Prices:     st,
		Signals:    st,
		Engine:     engine,
		Dispatcher: app.dispatcher,
		Locker:     locker,
		Metrics:    m,
		Log:        log,
	}, ingest.Options{
		FetchWindowDays: cfg.Analysis.FetchWindowDays,
		LookbackDays:    cfg.Analysis.LookbackDays,
		MinHistory:      cfg.Analysis.MinHistory,
		GapFillSignals:  cfg.Analysis.GapFillSignals,

		SignalRetentionDays: cfg.Analysis.SignalRetention,
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

func buildNotifiers(cfg *config.Config, log zerolog.Logger, app *application) ([]notifier.Notifier, error) {
	notifiers := []notifier.Notifier{notifier.NewLogNotifier(log)}
	if cfg.Telegram.BotToken != "" {
		app.telegram = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log)
		notifiers = append(notifiers, app.telegram)
	}
	if cfg.Webhook.URL != "" {
		notifiers = append(notifiers, notifier.NewWebhookNotifier(cfg.Webhook.URL))
	}
	if ec := cfg.EmailConfig(); ec != nil {
		email, err := notifier.NewEmailNotifier(*ec)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, email)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		k, err := notifier.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, k.Close)
		notifiers = append(notifiers, k)
	}
	names := make([]string, len(notifiers))
	for i, n := range notifiers {
		names[i] = n.Name()
	}
	log.Info().Strs("notifiers", names).Msg("alert channels ready")
	return notifiers, nil
}

func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger, app *application) {
	var reporter scheduler.Reporter
	if app.telegram != nil {
		reporter = app.telegram
	}
	sched := scheduler.New(ctx, app.svc, reporter, log, scheduler.Options{
		Symbols:          cfg.DataSource.Symbols,
		IntradayInterval: cfg.Analysis.IntradayInterval,
		RetentionDays:    cfg.Analysis.RetentionDays,
	})
	if err := sched.Register(scheduler.Jobs{
		DailyCron:    cfg.Schedule.DailyCron,
		GapFillCron:  cfg.Schedule.GapFillCron,
		IntradayCron: cfg.Schedule.IntradayCron,
		PruneCron:    cfg.Schedule.PruneCron,
	}); err != nil {
		log.Fatal().Err(err).Msg("register cron tasks")
	}
	sched.Start()
	defer sched.Stop()

	if app.telegram != nil && cfg.Telegram.Polling {
		go app.telegram.StartPolling(ctx, sched.HandleCommand)
		log.Info().Msg("telegram polling started")
	}

	if os.Getenv("RUN_ON_START") == "true" {
		log.Info().Msg("RUN_ON_START enabled, running daily update now")
		go sched.RunDailyNow()
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.App.HTTPAddr,
		Handler:           api.NewRouter(app.svc, app.registry, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("status api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("status api stopped")
		}
	}()

	log.Info().Strs("symbols", cfg.DataSource.Symbols).Msg("SignalSentinel is running")
	<-ctx.Done()

	log.Info().Msg("shutdown signal received, stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
}

// report logs r and returns the process exit code.
func report(log zerolog.Logger, r model.Result) int {
	ev := log.Info()
	if r.Status == model.StatusFailed {
		ev = log.Error().Str("kind", string(r.Kind))
	}
	ev.Str("operation", r.Operation).
		Str("symbol", r.Symbol).
		Str("status", string(r.Status)).
		Str("message", r.Message).
		Int("added", r.Counts.Added).
		Int("updated", r.Counts.Updated).
		Int("skipped", r.Counts.Skipped).
		Int("errors", r.Counts.Errors).
		Int("signals", r.Counts.Signals).
		Int("duplicates", r.Counts.Duplicates).
		Msg("run finished")
	if r.Status == model.StatusFailed {
		return 1
	}
	return 0
}
