// Package api exposes a small HTTP surface for health checks, metrics,
// signal and price queries and manually triggered ingestion runs.
package api

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"SignalSentinel/internal/ingest"
	"SignalSentinel/internal/metrics"
	"SignalSentinel/internal/model"
	"SignalSentinel/internal/store"
)

const (
	defaultSignalLimit = 50
	maxSignalLimit     = 500
	defaultPriceDays   = 30
)

// Server holds the handlers' dependencies.
type Server struct {
	svc *ingest.Service
	log zerolog.Logger
	now func() time.Time
}

// NewRouter builds the gin engine. g serves /metrics.
func NewRouter(svc *ingest.Service, g prometheus.Gatherer, log zerolog.Logger) *gin.Engine {
	s := &Server{svc: svc, log: log.With().Str("component", "api").Logger(), now: time.Now}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(metrics.Handler(g)))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/signals", s.listSignals)
		v1.GET("/prices/:symbol", s.listPrices)
		v1.GET("/prices/:symbol/gaps", s.gaps)
		v1.GET("/indicators/:symbol", s.indicators)

		v1.POST("/update/:symbol", s.update)
		v1.POST("/gapfill/:symbol", s.gapFill)
		v1.POST("/backfill/:symbol", s.backfill)
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GET /api/v1/signals?symbol=&timeframe=&since=&limit=
func (s *Server) listSignals(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultSignalLimit)))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	if limit > maxSignalLimit {
		limit = maxSignalLimit
	}
	f := store.SignalFilter{
		Symbol:    strings.ToUpper(c.Query("symbol")),
		Timeframe: model.Timeframe(c.Query("timeframe")),
		Limit:     limit,
	}
	if v := c.Query("since"); v != "" {
		since, err := time.Parse(model.DateLayout, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be YYYY-MM-DD"})
			return
		}
		f.Since = since
	}

	evs, err := s.svc.RecentSignals(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]signalJSON, len(evs))
	for i := range evs {
		out[i] = toSignalJSON(&evs[i])
	}
	c.JSON(http.StatusOK, gin.H{"signals": out, "count": len(out)})
}

// GET /api/v1/prices/:symbol?from=&to=
func (s *Server) listPrices(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	to := model.TruncateDay(s.now()).AddDate(0, 0, 1)
	from := to.AddDate(0, 0, -defaultPriceDays)
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(model.DateLayout, v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD"})
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(model.DateLayout, v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be YYYY-MM-DD"})
			return
		}
	}

	bars, err := s.svc.Prices(c.Request.Context(), symbol, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]priceJSON, len(bars))
	for i := range bars {
		out[i] = toPriceJSON(&bars[i])
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "prices": out, "count": len(out)})
}

// GET /api/v1/prices/:symbol/gaps
func (s *Server) gaps(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	missing, err := s.svc.Gaps(c.Request.Context(), symbol)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	dates := make([]string, len(missing))
	for i, d := range missing {
		dates[i] = d.Format(model.DateLayout)
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "missing": dates, "count": len(dates)})
}

// GET /api/v1/indicators/:symbol
func (s *Server) indicators(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	snap, err := s.svc.Snapshot(c.Request.Context(), symbol)
	if err != nil {
		status := http.StatusInternalServerError
		if model.IsKind(err, model.DataUnavailable) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toSnapshotJSON(snap))
}

// POST /api/v1/update/:symbol?date=
func (s *Server) update(c *gin.Context) {
	date := model.TruncateDay(s.now())
	if v := c.Query("date"); v != "" {
		d, err := time.Parse(model.DateLayout, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		date = d
	}
	s.writeResult(c, s.svc.DailyUpdate(c.Request.Context(), strings.ToUpper(c.Param("symbol")), date))
}

// POST /api/v1/gapfill/:symbol
func (s *Server) gapFill(c *gin.Context) {
	s.writeResult(c, s.svc.GapFill(c.Request.Context(), strings.ToUpper(c.Param("symbol"))))
}

// POST /api/v1/backfill/:symbol?from=&to=
func (s *Server) backfill(c *gin.Context) {
	year := s.now().UTC().Year()
	from, err1 := strconv.Atoi(c.DefaultQuery("from", strconv.Itoa(year)))
	to, err2 := strconv.Atoi(c.DefaultQuery("to", strconv.Itoa(year)))
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to must be years"})
		return
	}
	s.writeResult(c, s.svc.Backfill(c.Request.Context(), strings.ToUpper(c.Param("symbol")), from, to))
}

func (s *Server) writeResult(c *gin.Context, r model.Result) {
	status := http.StatusOK
	if r.Status == model.StatusFailed {
		switch r.Kind {
		case model.ValidationFailure:
			status = http.StatusBadRequest
		case model.DataUnavailable:
			status = http.StatusBadGateway
		default:
			status = http.StatusInternalServerError
		}
	}
	c.JSON(status, r)
}

type signalJSON struct {
	ID             int64    `json:"id"`
	Symbol         string   `json:"symbol"`
	SignalType     string   `json:"signal_type"`
	Timeframe      string   `json:"timeframe"`
	TriggeredAt    string   `json:"triggered_at"`
	CurrentPrice   float64  `json:"current_price"`
	IndicatorValue *float64 `json:"indicator_value"`
	SignalStrength *float64 `json:"signal_strength"`
	Volume         *int64   `json:"volume,omitempty"`
}

func toSignalJSON(ev *model.SignalEvent) signalJSON {
	return signalJSON{
		ID:             ev.ID,
		Symbol:         ev.Symbol,
		SignalType:     ev.SignalType,
		Timeframe:      string(ev.Timeframe),
		TriggeredAt:    ev.TriggeredAt.UTC().Format(time.RFC3339),
		CurrentPrice:   ev.CurrentPrice,
		IndicatorValue: opt(ev.IndicatorValue),
		SignalStrength: opt(ev.SignalStrength),
		Volume:         ev.Volume,
	}
}

type priceJSON struct {
	Date               string `json:"date"`
	Open               string `json:"open"`
	High               string `json:"high"`
	Low                string `json:"low"`
	Close              string `json:"close"`
	Volume             *int64 `json:"volume,omitempty"`
	PriceChange        string `json:"price_change"`
	PriceChangePercent string `json:"price_change_percent"`
}

func toPriceJSON(b *model.PriceBar) priceJSON {
	return priceJSON{
		Date:               b.Date.Format(model.DateLayout),
		Open:               b.Open.StringFixed(4),
		High:               b.High.StringFixed(4),
		Low:                b.Low.StringFixed(4),
		Close:              b.Close.StringFixed(4),
		Volume:             b.Volume,
		PriceChange:        b.PriceChange.StringFixed(4),
		PriceChangePercent: b.PriceChangePercent.StringFixed(4),
	}
}

type snapshotJSON struct {
	Symbol       string              `json:"symbol"`
	AsOf         string              `json:"as_of"`
	CurrentPrice float64             `json:"current_price"`
	MA           map[string]*float64 `json:"ma"`
	EMA12        *float64            `json:"ema12"`
	EMA26        *float64            `json:"ema26"`
	VWAP         *float64            `json:"vwap"`
	RSI          *float64            `json:"rsi"`
	BBUpper      *float64            `json:"bb_upper"`
	BBMiddle     *float64            `json:"bb_middle"`
	BBLower      *float64            `json:"bb_lower"`
	MACD         *float64            `json:"macd"`
	MACDSignal   *float64            `json:"macd_signal"`
	MACDHist     *float64            `json:"macd_histogram"`
	StochK       *float64            `json:"stoch_k"`
	StochD       *float64            `json:"stoch_d"`
	VolumeRatio  *float64            `json:"volume_ratio"`
	High52w      float64             `json:"high_52w"`
	Low52w       float64             `json:"low_52w"`
	Position52w  float64             `json:"position_52w"`
}

func toSnapshotJSON(s *model.IndicatorSnapshot) snapshotJSON {
	out := snapshotJSON{
		Symbol:       s.Symbol,
		AsOf:         s.AsOf.Format(model.DateLayout),
		CurrentPrice: s.CurrentPrice,
		MA:           make(map[string]*float64, len(s.MA)),
		EMA12:        opt(s.EMA12),
		EMA26:        opt(s.EMA26),
		VWAP:         opt(s.VWAP),
		RSI:          opt(s.RSI),
		BBUpper:      opt(s.BBUpper),
		BBMiddle:     opt(s.BBMiddle),
		BBLower:      opt(s.BBLower),
		MACD:         opt(s.MACD),
		MACDSignal:   opt(s.MACDSignal),
		MACDHist:     opt(s.MACDHist),
		StochK:       opt(s.StochK),
		StochD:       opt(s.StochD),
		VolumeRatio:  opt(s.VolumeRatio),
		High52w:      s.High52w,
		Low52w:       s.Low52w,
		Position52w:  s.Position52w,
	}
	for p, v := range s.MA {
		out.MA["ma"+strconv.Itoa(p)] = opt(v)
	}
	return out
}

// opt maps undefined indicator values to JSON null.
func opt(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
