package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"SignalSentinel/internal/collector"
	"SignalSentinel/internal/detector"
	"SignalSentinel/internal/ingest"
	"SignalSentinel/internal/model"
	"SignalSentinel/internal/store"
)

type recordingReporter struct {
	mu    sync.Mutex
	texts []string
}

func (r *recordingReporter) SendText(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return nil
}

// 2024-01-03 is a Wednesday.
var testNow = time.Date(2024, 1, 3, 22, 30, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, fetcher *collector.MockFetcher) (*Scheduler, *store.MemoryStore, *recordingReporter) {
	t.Helper()
	engine, err := detector.NewEngine(detector.DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	st := store.NewMemoryStore()
	svc, err := ingest.New(ingest.Deps{
		Fetcher: fetcher,
		Prices:  st,
		Signals: st,
		Engine:  engine,
		Log:     zerolog.Nop(),
		Now:     func() time.Time { return testNow },
	}, ingest.Options{})
	if err != nil {
		t.Fatalf("ingest.New: %v", err)
	}
	rep := &recordingReporter{}
	s := New(context.Background(), svc, rep, zerolog.Nop(), Options{
		Symbols: []string{"AAA", "BBB"},
		Now:     func() time.Time { return testNow },
	})
	return s, st, rep
}

func closes(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 50 + float64(i)
	}
	return out
}

func TestRegister(t *testing.T) {
	s, _, _ := newTestScheduler(t, &collector.MockFetcher{})
	if err := s.Register(Jobs{DailyCron: "0 30 22 * * 1-5", PruneCron: "0 0 3 1 * *"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if s.Entries() != 2 {
		t.Errorf("entries = %d, want 2 (empty specs skipped)", s.Entries())
	}
	if err := s.Register(Jobs{GapFillCron: "not a cron"}); err == nil {
		t.Error("expected error for invalid spec")
	}
}

func TestRunDailyNow(t *testing.T) {
	fetcher := &collector.MockFetcher{}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fetcher.SetBars("AAA", collector.GenerateDaily(start, closes(3), 1000))
	s, st, rep := newTestScheduler(t, fetcher)

	s.RunDailyNow()

	bar, err := st.GetBar(context.Background(), "AAA", testNow)
	if err != nil || bar == nil {
		t.Fatalf("expected AAA bar for %s: %v", testNow.Format(model.DateLayout), err)
	}
	if len(rep.texts) != 0 {
		t.Errorf("unexpected reports: %v", rep.texts)
	}

	fetcher.Err = errors.New("source down")
	s.opts.Symbols = []string{"CCC"}
	s.RunDailyNow()
	if len(rep.texts) != 1 || !strings.Contains(rep.texts[0], "source down") {
		t.Errorf("failure report = %v", rep.texts)
	}
}

func TestDailySkipsWeekend(t *testing.T) {
	fetcher := &collector.MockFetcher{}
	s, _, _ := newTestScheduler(t, fetcher)
	s.opts.Now = func() time.Time { return time.Date(2024, 1, 6, 12, 0, 0, 0, time.UTC) }
	s.RunDailyNow()
	if len(fetcher.Calls()) != 0 {
		t.Errorf("fetcher called %d times on a Saturday", len(fetcher.Calls()))
	}
}

func TestHandleCommand(t *testing.T) {
	fetcher := &collector.MockFetcher{}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fetcher.SetBars("AAA", collector.GenerateDaily(start, closes(5), 1000))
	s, _, _ := newTestScheduler(t, fetcher)
	ctx := context.Background()

	tests := []struct {
		command string
		want    string
	}{
		{"/help", "Available commands"},
		{"hello", "Available commands"},
		{"/signals", "usage: /signals SYMBOL"},
		{"/update aaa 2024-01-02", "daily_update AAA</b>: ok"},
		{"/update@sentinel_bot AAA 2024-01-02", "daily_update AAA</b>: skipped"},
		{"/update AAA 02/01/2024", "invalid date"},
		{"/signals AAA", "No signals recorded for AAA."},
		{"/gaps AAA", "No gaps for AAA."},
		{"/status ZZZ", "❌ status"},
		{"/status AAA", "<b>AAA</b>"},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			got := s.HandleCommand(ctx, tt.command)
			if !strings.Contains(got, tt.want) {
				t.Errorf("HandleCommand(%q) = %q, want substring %q", tt.command, got, tt.want)
			}
		})
	}
	if got := s.HandleCommand(ctx, "   "); got != "" {
		t.Errorf("blank command reply = %q", got)
	}
}

func TestHandleCommand_Gaps(t *testing.T) {
	fetcher := &collector.MockFetcher{}
	s, st, _ := newTestScheduler(t, fetcher)
	ctx := context.Background()
	for _, d := range []time.Time{
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC),
	} {
		raw := collector.GenerateDaily(d, []float64{10}, 1)
		bar, err := model.BarFromOHLCV("AAA", raw[0], true)
		if err != nil {
			t.Fatalf("BarFromOHLCV: %v", err)
		}
		if _, err := st.UpsertBar(ctx, bar); err != nil {
			t.Fatalf("UpsertBar: %v", err)
		}
	}
	got := s.HandleCommand(ctx, "/gaps AAA")
	if !strings.Contains(got, "1 missing weekdays") || !strings.Contains(got, "2024-01-03") {
		t.Errorf("gaps reply = %q", got)
	}
}
