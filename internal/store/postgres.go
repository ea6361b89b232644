package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"SignalSentinel/internal/model"
)

// priceRow is the price_data table.
type priceRow struct {
	ID                 uint            `gorm:"primaryKey"`
	Symbol             string          `gorm:"size:32;not null;uniqueIndex:idx_price_symbol_date"`
	Date               time.Time       `gorm:"type:date;not null;uniqueIndex:idx_price_symbol_date"`
	Open               decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	High               decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Low                decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Close              decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Volume             *int64
	PriceChange        decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	PriceChangePercent decimal.Decimal `gorm:"type:decimal(10,4);not null;default:0"`
	CreatedAt          time.Time
}

func (priceRow) TableName() string { return "price_data" }

func newPriceRow(b *model.PriceBar) priceRow {
	return priceRow{
		Symbol:             b.Symbol,
		Date:               model.TruncateDay(b.Date),
		Open:               b.Open,
		High:               b.High,
		Low:                b.Low,
		Close:              b.Close,
		Volume:             b.Volume,
		PriceChange:        b.PriceChange,
		PriceChangePercent: b.PriceChangePercent,
	}
}

func (r priceRow) bar() model.PriceBar {
	return model.PriceBar{
		Symbol:             r.Symbol,
		Date:               model.TruncateDay(r.Date),
		Open:               r.Open,
		High:               r.High,
		Low:                r.Low,
		Close:              r.Close,
		Volume:             r.Volume,
		PriceChange:        r.PriceChange,
		PriceChangePercent: r.PriceChangePercent,
	}
}

// signalRow is the signals table. The unique index enforces one row per
// signal key.
type signalRow struct {
	ID             int64     `gorm:"primaryKey"`
	Symbol         string    `gorm:"size:32;not null;uniqueIndex:idx_signal_key"`
	SignalType     string    `gorm:"size:64;not null;uniqueIndex:idx_signal_key"`
	Timeframe      string    `gorm:"size:16;not null;uniqueIndex:idx_signal_key"`
	TriggeredAt    time.Time `gorm:"not null;uniqueIndex:idx_signal_key;index"`
	CurrentPrice   float64
	IndicatorValue float64
	SignalStrength float64
	Volume         *int64
	CreatedAt      time.Time
}

func (signalRow) TableName() string { return "signals" }

func (r signalRow) event() model.SignalEvent {
	return model.SignalEvent{
		ID:             r.ID,
		Symbol:         r.Symbol,
		SignalType:     r.SignalType,
		Timeframe:      model.Timeframe(r.Timeframe),
		TriggeredAt:    r.TriggeredAt.UTC(),
		CurrentPrice:   r.CurrentPrice,
		IndicatorValue: r.IndicatorValue,
		SignalStrength: r.SignalStrength,
		Volume:         r.Volume,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

// PostgresStore persists bars and signals to PostgreSQL through gorm.
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore connects to dsn, verifies the connection and migrates
// both tables.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return NewPostgresStoreFromDB(db)
}

// NewPostgresStoreFromDB wraps an open gorm handle and migrates the schema.
func NewPostgresStoreFromDB(db *gorm.DB) (*PostgresStore, error) {
	if err := db.AutoMigrate(&priceRow{}, &signalRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) UpsertBar(ctx context.Context, bar *model.PriceBar) (*model.PriceBar, error) {
	row := newPriceRow(bar)
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return nil, persistErr("upsert bar", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	out := row.bar()
	return &out, nil
}

func (s *PostgresStore) SaveBars(ctx context.Context, bars []model.PriceBar) (added, skipped int, err error) {
	if len(bars) == 0 {
		return 0, 0, nil
	}
	rows := make([]priceRow, len(bars))
	for i := range bars {
		rows[i] = newPriceRow(&bars[i])
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, 500)
	if res.Error != nil {
		return 0, 0, persistErr("save bars", res.Error)
	}
	added = int(res.RowsAffected)
	return added, len(bars) - added, nil
}

func (s *PostgresStore) first(ctx context.Context, op string, q func(*gorm.DB) *gorm.DB) (*model.PriceBar, error) {
	var row priceRow
	err := q(s.db.WithContext(ctx).Model(&priceRow{})).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr(op, err)
	}
	b := row.bar()
	return &b, nil
}

func (s *PostgresStore) GetBar(ctx context.Context, symbol string, date time.Time) (*model.PriceBar, error) {
	return s.first(ctx, "get bar", func(db *gorm.DB) *gorm.DB {
		return db.Where("symbol = ? AND date = ?", symbol, model.TruncateDay(date))
	})
}

func (s *PostgresStore) Latest(ctx context.Context, symbol string) (*model.PriceBar, error) {
	return s.first(ctx, "latest bar", func(db *gorm.DB) *gorm.DB {
		return db.Where("symbol = ?", symbol).Order("date DESC")
	})
}

func (s *PostgresStore) Previous(ctx context.Context, symbol string, date time.Time) (*model.PriceBar, error) {
	return s.first(ctx, "previous bar", func(db *gorm.DB) *gorm.DB {
		return db.Where("symbol = ? AND date < ?", symbol, model.TruncateDay(date)).Order("date DESC")
	})
}

func (s *PostgresStore) Range(ctx context.Context, symbol string, start, end time.Time) ([]model.PriceBar, error) {
	var rows []priceRow
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND date >= ? AND date < ?", symbol, model.TruncateDay(start), end.UTC()).
		Order("date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, persistErr("range bars", err)
	}
	out := make([]model.PriceBar, len(rows))
	for i, r := range rows {
		out[i] = r.bar()
	}
	return out, nil
}

func (s *PostgresStore) DateRange(ctx context.Context, symbol string) (min, max time.Time, ok bool, err error) {
	var agg struct {
		MinDate *time.Time
		MaxDate *time.Time
	}
	err = s.db.WithContext(ctx).Model(&priceRow{}).
		Select("MIN(date) AS min_date, MAX(date) AS max_date").
		Where("symbol = ?", symbol).
		Scan(&agg).Error
	if err != nil {
		return time.Time{}, time.Time{}, false, persistErr("date range", err)
	}
	if agg.MinDate == nil || agg.MaxDate == nil {
		return time.Time{}, time.Time{}, false, nil
	}
	return model.TruncateDay(*agg.MinDate), model.TruncateDay(*agg.MaxDate), true, nil
}

func (s *PostgresStore) MissingWeekdays(ctx context.Context, symbol string, start, end time.Time) ([]time.Time, error) {
	var dates []time.Time
	err := s.db.WithContext(ctx).Model(&priceRow{}).
		Where("symbol = ? AND date >= ? AND date <= ?", symbol, model.TruncateDay(start), model.TruncateDay(end)).
		Pluck("date", &dates).Error
	if err != nil {
		return nil, persistErr("missing weekdays", err)
	}
	stored := make(map[string]bool, len(dates))
	for _, d := range dates {
		stored[dayKey(d)] = true
	}
	return missingFrom(start, end, stored), nil
}

func (s *PostgresStore) UpdatePriceChange(ctx context.Context, symbol string, date time.Time, change, pct decimal.Decimal) error {
	res := s.db.WithContext(ctx).Model(&priceRow{}).
		Where("symbol = ? AND date = ?", symbol, model.TruncateDay(date)).
		Updates(map[string]any{"price_change": change, "price_change_percent": pct})
	if res.Error != nil {
		return persistErr("update price change", res.Error)
	}
	if res.RowsAffected == 0 {
		return persistErr("update price change", errBarNotFound)
	}
	return nil
}

func (s *PostgresStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("date < ?", model.TruncateDay(cutoff)).Delete(&priceRow{})
	if res.Error != nil {
		return 0, persistErr("prune bars", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *PostgresStore) Symbols(ctx context.Context) ([]string, error) {
	var out []string
	if err := s.db.WithContext(ctx).Model(&priceRow{}).Distinct().Order("symbol").Pluck("symbol", &out).Error; err != nil {
		return nil, persistErr("symbols", err)
	}
	return out, nil
}

func (s *PostgresStore) SaveSignal(ctx context.Context, ev *model.SignalEvent, policy InsertPolicy) (SaveOutcome, error) {
	key := ev.Key()
	if policy == SkipIfExists {
		exists, err := s.ExistsSignal(ctx, key)
		if err != nil {
			return Saved, err
		}
		if exists {
			return Duplicate, nil
		}
	}
	row := signalRow{
		Symbol:         key.Symbol,
		SignalType:     key.SignalType,
		Timeframe:      string(key.Timeframe),
		TriggeredAt:    key.TriggeredAt,
		CurrentPrice:   ev.CurrentPrice,
		IndicatorValue: ev.IndicatorValue,
		SignalStrength: ev.SignalStrength,
		Volume:         ev.Volume,
		CreatedAt:      ev.CreatedAt,
	}
	err := s.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return Duplicate, nil
	}
	if err != nil {
		return Saved, persistErr("save signal", err)
	}
	ev.ID = row.ID
	ev.TriggeredAt = key.TriggeredAt
	ev.CreatedAt = row.CreatedAt
	return Saved, nil
}

func (s *PostgresStore) ExistsSignal(ctx context.Context, key model.SignalKey) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&signalRow{}).
		Where("symbol = ? AND signal_type = ? AND timeframe = ? AND triggered_at = ?",
			key.Symbol, key.SignalType, string(key.Timeframe), key.Timeframe.Truncate(key.TriggeredAt)).
		Count(&n).Error
	if err != nil {
		return false, persistErr("exists signal", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) ListSignals(ctx context.Context, f SignalFilter) ([]model.SignalEvent, error) {
	q := s.db.WithContext(ctx).Model(&signalRow{})
	if f.Symbol != "" {
		q = q.Where("symbol = ?", f.Symbol)
	}
	if f.Timeframe != "" {
		q = q.Where("timeframe = ?", string(f.Timeframe))
	}
	if !f.Since.IsZero() {
		q = q.Where("triggered_at >= ?", f.Since)
	}
	if !f.Until.IsZero() {
		q = q.Where("triggered_at < ?", f.Until)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var rows []signalRow
	if err := q.Order("triggered_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, persistErr("list signals", err)
	}
	out := make([]model.SignalEvent, len(rows))
	for i, r := range rows {
		out[i] = r.event()
	}
	return out, nil
}

func (s *PostgresStore) DeleteSignals(ctx context.Context, symbol string, tf model.Timeframe, from, to time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ? AND triggered_at >= ? AND triggered_at < ?", symbol, string(tf), from, to).
		Delete(&signalRow{})
	if res.Error != nil {
		return 0, persistErr("delete signals", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *PostgresStore) PruneSignalsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("triggered_at < ?", cutoff).Delete(&signalRow{})
	if res.Error != nil {
		return 0, persistErr("prune signals", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
