package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"SignalSentinel/internal/model"
)

const yahooBody = `{"chart":{"result":[{"timestamp":[1704213000,1704299400,1704385800],
"indicators":{"quote":[{"open":[10.0,null,12.0],"high":[11.0,null,13.0],"low":[9.0,null,11.0],
"close":[10.5,null,null],"volume":[1000,null,3000]}]}}],"error":null}}`

func TestYahooFetcher_NullFields(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(yahooBody))
	}))
	defer srv.Close()

	f := NewYahooFetcher("")
	f.BaseURL = srv.URL + "/"
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars, err := f.FetchOHLCV(context.Background(), "SPX", start, start.AddDate(0, 0, 7), "1d")
	if err != nil {
		t.Fatalf("FetchOHLCV: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected the all-null bar to be dropped, got %d bars", len(bars))
	}
	if !bars[0].Complete() || *bars[0].Close != 10.5 || *bars[0].Volume != 1000 {
		t.Errorf("unexpected first bar %+v", bars[0])
	}
	if bars[1].Complete() {
		t.Errorf("bar with null close must be incomplete")
	}
	if gotQuery == "" {
		t.Error("expected period query parameters")
	}
}

func TestYahooFetcher_ExchangeTradingDay(t *testing.T) {
	// 1704668400 is 2024-01-07 23:00 UTC, Monday 10:00 in Sydney.
	tests := []struct {
		name string
		meta string
	}{
		{"zone name", `{"exchangeTimezoneName":"Australia/Sydney"}`},
		{"offset only", `{"gmtoffset":39600}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"chart":{"result":[{"meta":` + tt.meta + `,"timestamp":[1704668400],
"indicators":{"quote":[{"open":[7.0],"high":[7.5],"low":[6.9],"close":[7.2],"volume":[500]}]}}],"error":null}}`
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer srv.Close()

			f := NewYahooFetcher("")
			f.BaseURL = srv.URL + "/"
			start := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
			raw, err := f.FetchOHLCV(context.Background(), "BHP.AX", start, start.AddDate(0, 0, 5), "1d")
			if err != nil {
				t.Fatalf("FetchOHLCV: %v", err)
			}
			if len(raw) != 1 {
				t.Fatalf("got %d bars, want 1", len(raw))
			}
			bar, err := model.BarFromOHLCV("BHP.AX", raw[0], true)
			if err != nil {
				t.Fatalf("BarFromOHLCV: %v", err)
			}
			if got := bar.Date.Format(model.DateLayout); got != "2024-01-08" {
				t.Errorf("stored date = %s (%s), want 2024-01-08", got, bar.Date.Weekday())
			}
		})
	}
}

func TestYahooFetcher_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
	}))
	defer srv.Close()

	f := NewYahooFetcher("")
	f.BaseURL = srv.URL + "/"
	if _, err := f.FetchOHLCV(context.Background(), "NOPE", time.Now().AddDate(0, 0, -5), time.Now(), "1d"); err == nil {
		t.Error("expected api error")
	}
}

func TestRESTFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/bars" || r.URL.Query().Get("symbol") != "AAPL" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[{"timestamp":1704299400,"open":2,"high":3,"low":1,"close":2.5,"volume":10},
			{"timestamp":1704213000,"open":1,"high":2,"low":0.5,"close":1.5,"volume":null}]`))
	}))
	defer srv.Close()

	f := NewRESTFetcher(srv.URL+"/", "secret", "")
	bars, err := f.FetchOHLCV(context.Background(), "AAPL", time.Unix(0, 0), time.Now(), "")
	if err != nil {
		t.Fatalf("FetchOHLCV: %v", err)
	}
	if len(bars) != 2 || !bars[0].Time.Before(bars[1].Time) {
		t.Fatalf("expected 2 sorted bars, got %+v", bars)
	}
	if bars[0].Volume != nil {
		t.Errorf("expected nil volume, got %v", *bars[0].Volume)
	}

	missing, err := f.FetchOHLCV(context.Background(), "ZZZ", time.Unix(0, 0), time.Now(), "1d")
	if err != nil || len(missing) != 0 {
		t.Errorf("unknown symbol should yield no bars, got %v (%v)", missing, err)
	}
}

func TestMockFetcher_Window(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) // Monday
	m := &MockFetcher{}
	m.SetBars("TEST", GenerateDaily(start, []float64{1, 2, 3, 4, 5, 6}, 100))

	bars, err := m.FetchOHLCV(context.Background(), "TEST", start.AddDate(0, 0, 1), start.AddDate(0, 0, 4), "1d")
	if err != nil {
		t.Fatalf("FetchOHLCV: %v", err)
	}
	if len(bars) != 3 || *bars[0].Close != 2 {
		t.Errorf("expected Tue..Thu, got %d bars", len(bars))
	}
	all, _ := m.FetchOHLCV(context.Background(), "TEST", start, start.AddDate(0, 0, 14), "1d")
	if len(all) != 6 || all[5].Time.Weekday() != time.Monday {
		t.Errorf("expected the sixth bar on the next Monday, got %v", all[len(all)-1].Time)
	}
	if len(m.Calls()) != 2 {
		t.Errorf("expected 2 recorded calls, got %d", len(m.Calls()))
	}

	m.FailYears = map[int]error{2024: errors.New("boom")}
	if _, err := m.FetchOHLCV(context.Background(), "TEST", start, start.AddDate(0, 0, 7), "1d"); err == nil {
		t.Error("expected failure for 2024")
	}
}

func TestThrottled(t *testing.T) {
	m := &MockFetcher{}
	f := NewThrottled(m, 20*time.Millisecond)
	ctx := context.Background()
	begin := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := f.FetchOHLCV(ctx, "X", time.Now(), time.Now(), "1d"); err != nil {
			t.Fatalf("FetchOHLCV: %v", err)
		}
	}
	if elapsed := time.Since(begin); elapsed < 35*time.Millisecond {
		t.Errorf("expected calls to be spaced out, took %v", elapsed)
	}
	if NewThrottled(m, 0) != Fetcher(m) {
		t.Error("zero delay should return the fetcher unchanged")
	}
}

func TestNew(t *testing.T) {
	if _, err := New(Source{Name: "rest"}); err == nil {
		t.Error("rest without base url should fail")
	}
	if f, err := New(Source{Name: "yahoo"}); err != nil || f.Name() != "yahoo" {
		t.Errorf("unexpected yahoo fetcher %v (%v)", f, err)
	}
	if _, err := New(Source{Name: "bloomberg"}); err == nil {
		t.Error("expected error for unknown source")
	}
}
