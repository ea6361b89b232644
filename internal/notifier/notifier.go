// Package notifier delivers signal alerts to external channels.
package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"SignalSentinel/internal/model"
)

// Alert is one signal notification handed to the dispatcher.
type Alert struct {
	Symbol         string    `json:"symbol"`
	SignalType     string    `json:"signal_type"`
	Timeframe      string    `json:"timeframe"`
	CurrentPrice   float64   `json:"current_price"`
	ReferenceValue float64   `json:"reference_value"`
	SignalStrength float64   `json:"signal_strength"`
	TriggeredAt    time.Time `json:"triggered_at"`
}

// AlertFromSignal converts a stored signal event into an Alert.
func AlertFromSignal(ev *model.SignalEvent) Alert {
	return Alert{
		Symbol:         ev.Symbol,
		SignalType:     ev.SignalType,
		Timeframe:      string(ev.Timeframe),
		CurrentPrice:   ev.CurrentPrice,
		ReferenceValue: ev.IndicatorValue,
		SignalStrength: ev.SignalStrength,
		TriggeredAt:    ev.TriggeredAt,
	}
}

// Title is a one-line summary used as subject or log message.
func (a Alert) Title() string {
	return fmt.Sprintf("%s %s (%s)", a.Symbol, a.SignalType, a.Timeframe)
}

// Notifier is implemented by every delivery backend.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
	Name() string
}

// LogNotifier writes alerts to the logger. Useful for development.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Send(_ context.Context, alert Alert) error {
	n.log.Info().
		Str("symbol", alert.Symbol).
		Str("signal_type", alert.SignalType).
		Float64("price", alert.CurrentPrice).
		Float64("reference", alert.ReferenceValue).
		Time("triggered_at", alert.TriggeredAt).
		Msg("signal alert")
	return nil
}
