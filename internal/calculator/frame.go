package calculator

import (
	"time"

	"SignalSentinel/internal/model"
)

// Frame is a column view of a bar window used as indicator input.
type Frame struct {
	Time   []time.Time
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
	// ChangePct is the stored close-to-close change in percent.
	ChangePct []float64
}

// NewFrame extracts columns from bars, which must be in ascending date order.
// Unknown volumes become NaN.
func NewFrame(bars []model.PriceBar) Frame {
	f := Frame{
		Time:      make([]time.Time, len(bars)),
		Open:      make([]float64, len(bars)),
		High:      make([]float64, len(bars)),
		Low:       make([]float64, len(bars)),
		Close:     make([]float64, len(bars)),
		Volume:    make([]float64, len(bars)),
		ChangePct: make([]float64, len(bars)),
	}
	for i := range bars {
		b := &bars[i]
		f.Time[i] = b.Date
		f.Open[i] = b.Open.InexactFloat64()
		f.High[i] = b.High.InexactFloat64()
		f.Low[i] = b.Low.InexactFloat64()
		f.Close[i] = b.CloseFloat()
		f.Volume[i] = b.VolumeFloat()
		if i == 0 {
			f.ChangePct[i] = b.PriceChangePercent.InexactFloat64()
		} else {
			prev := f.Close[i-1]
			if prev != 0 {
				f.ChangePct[i] = (f.Close[i] - prev) / prev * 100
			}
		}
	}
	return f
}

// Len returns the number of bars in the frame.
func (f Frame) Len() int { return len(f.Close) }
