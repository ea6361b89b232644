package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Bar("persisted")
	m.BarsN("persisted", 2)
	m.Signal("RSI_overbought", "saved")
	m.Signal("RSI_overbought", "duplicate")
	m.FetchError()
	m.Alert("delivered")
	m.Since("daily_update", time.Now().Add(-time.Second))

	if got := testutil.ToFloat64(m.Bars.WithLabelValues("persisted")); got != 3 {
		t.Errorf("expected 3 persisted bars, got %v", got)
	}
	if got := testutil.ToFloat64(m.Signals.WithLabelValues("RSI_overbought", "duplicate")); got != 1 {
		t.Errorf("expected 1 duplicate, got %v", got)
	}
	if got := testutil.ToFloat64(m.FetchErrors); got != 1 {
		t.Errorf("expected 1 fetch error, got %v", got)
	}
	if got := testutil.CollectAndCount(m.IngestDuration); got != 1 {
		t.Errorf("expected one duration series, got %d", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Bar("persisted")
	m.Signal("x", "saved")
	m.FetchError()
	m.Alert("failed")
	m.Since("op", time.Now())
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Alert("failed")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `sentinel_alerts_total{result="failed"} 1`) {
		t.Errorf("alerts counter missing from output:\n%s", body)
	}
}
