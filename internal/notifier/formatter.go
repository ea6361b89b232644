package notifier

import (
	"fmt"
	"html"
	"math"
	"sort"
	"strings"
	"time"

	"SignalSentinel/internal/model"
)

// FormatSignalAlert formats one alert into a Telegram HTML message.
func FormatSignalAlert(a Alert) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>%s</b> | %s\n\n", signalIcon(a.SignalType), html.EscapeString(a.Symbol), html.EscapeString(a.SignalType)))
	b.WriteString(fmt.Sprintf("Price: %.2f\n", a.CurrentPrice))
	b.WriteString(fmt.Sprintf("Reference: %.4f\n", a.ReferenceValue))
	if a.SignalStrength != 0 {
		b.WriteString(fmt.Sprintf("Strength: %.2f\n", a.SignalStrength))
	}
	b.WriteString(fmt.Sprintf("Timeframe: %s\n", a.Timeframe))
	b.WriteString(fmt.Sprintf("Triggered: %s\n", a.TriggeredAt.UTC().Format("2006-01-02 15:04")))
	return b.String()
}

// FormatPlainAlert is FormatSignalAlert without HTML markup, for email bodies.
func FormatPlainAlert(a Alert) string {
	r := strings.NewReplacer("<b>", "", "</b>", "")
	return html.UnescapeString(r.Replace(FormatSignalAlert(a)))
}

func signalIcon(signalType string) string {
	switch {
	case strings.Contains(signalType, "up"), strings.Contains(signalType, "bullish"),
		strings.Contains(signalType, "golden"), strings.Contains(signalType, "oversold"):
		return "📈"
	case strings.Contains(signalType, "down"), strings.Contains(signalType, "bearish"),
		strings.Contains(signalType, "dead"), strings.Contains(signalType, "overbought"):
		return "📉"
	default:
		return "📊"
	}
}

// FormatSignalList renders recent signals for the /signals command.
func FormatSignalList(symbol string, events []model.SignalEvent) string {
	if len(events) == 0 {
		return fmt.Sprintf("No signals recorded for %s.", html.EscapeString(symbol))
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📋 <b>Recent signals: %s</b>\n\n", html.EscapeString(symbol)))
	for _, ev := range events {
		b.WriteString(fmt.Sprintf("%s  %s  %.2f\n", ev.TriggeredAt.Format(model.DateLayout), ev.SignalType, ev.CurrentPrice))
	}
	return b.String()
}

// FormatResult renders an orchestrator result as a short status message.
func FormatResult(r model.Result) string {
	var b strings.Builder
	icon := "✅"
	switch r.Status {
	case model.StatusSkipped:
		icon = "⏭"
	case model.StatusFailed:
		icon = "❌"
	}
	b.WriteString(fmt.Sprintf("%s <b>%s %s</b>: %s\n", icon, r.Operation, html.EscapeString(r.Symbol), r.Status))
	if r.Message != "" {
		b.WriteString(html.EscapeString(r.Message) + "\n")
	}
	c := r.Counts
	b.WriteString(fmt.Sprintf("added %d, skipped %d, errors %d, signals %d, duplicates %d\n",
		c.Added, c.Skipped, c.Errors, c.Signals, c.Duplicates))
	if r.InsufficientHistory {
		b.WriteString("analysis skipped: insufficient history\n")
	}
	return b.String()
}

// FormatGaps renders missing weekdays for the /gaps command.
func FormatGaps(symbol string, missing []time.Time) string {
	if len(missing) == 0 {
		return fmt.Sprintf("No gaps for %s.", html.EscapeString(symbol))
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🕳 <b>%s</b>: %d missing weekdays\n", html.EscapeString(symbol), len(missing)))
	const maxShown = 20
	for i, d := range missing {
		if i == maxShown {
			b.WriteString(fmt.Sprintf("... and %d more\n", len(missing)-maxShown))
			break
		}
		b.WriteString(d.Format(model.DateLayout) + "\n")
	}
	return b.String()
}

// FormatSnapshot renders the latest indicator values for the /status command.
func FormatSnapshot(s *model.IndicatorSnapshot) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>%s</b> | %s\n\n", html.EscapeString(s.Symbol), s.AsOf.Format(model.DateLayout)))
	b.WriteString(fmt.Sprintf("Price: %.2f\n", s.CurrentPrice))
	for _, p := range sortedPeriods(s.MA) {
		b.WriteString(fmt.Sprintf("MA%d: %s\n", p, num(s.MA[p])))
	}
	b.WriteString(fmt.Sprintf("RSI: %s\n", num(s.RSI)))
	b.WriteString(fmt.Sprintf("BB: %s / %s / %s\n", num(s.BBLower), num(s.BBMiddle), num(s.BBUpper)))
	b.WriteString(fmt.Sprintf("MACD: %s (signal %s)\n", num(s.MACD), num(s.MACDSignal)))
	b.WriteString(fmt.Sprintf("Stoch: %%K %s %%D %s\n", num(s.StochK), num(s.StochD)))
	b.WriteString(fmt.Sprintf("Volume ratio: %s\n", num(s.VolumeRatio)))
	b.WriteString(fmt.Sprintf("52w: %.2f - %.2f (%.0f%%)\n", s.Low52w, s.High52w, s.Position52w*100))
	return b.String()
}

func num(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v)
}

func sortedPeriods(m map[int]float64) []int {
	out := make([]int, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}
