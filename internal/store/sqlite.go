package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"SignalSentinel/internal/model"
)

// SQLiteStore persists bars and signals to a SQLite database file.
// Decimal prices are stored as TEXT, daily dates as "2006-01-02" and
// signal timestamps as unix seconds.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, errors.New("sqlite path is empty")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	// WAL mode so readers (the status API) do not block the ingest writer.
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS price_data (
			id                   INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol               TEXT NOT NULL,
			date                 TEXT NOT NULL,
			open                 TEXT NOT NULL,
			high                 TEXT NOT NULL,
			low                  TEXT NOT NULL,
			close                TEXT NOT NULL,
			volume               INTEGER,
			price_change         TEXT NOT NULL DEFAULT '0',
			price_change_percent TEXT NOT NULL DEFAULT '0'
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_price_symbol_date ON price_data(symbol, date)`,

		`CREATE TABLE IF NOT EXISTS signals (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol          TEXT NOT NULL,
			signal_type     TEXT NOT NULL,
			timeframe       TEXT NOT NULL,
			triggered_at    INTEGER NOT NULL,
			current_price   REAL,
			indicator_value REAL,
			signal_strength REAL,
			volume          INTEGER,
			created_at      INTEGER NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_signal_key ON signals(symbol, signal_type, timeframe, triggered_at)`,
		`CREATE INDEX IF NOT EXISTS idx_signal_triggered ON signals(triggered_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

const insertBarSQL = `INSERT INTO price_data
	(symbol, date, open, high, low, close, volume, price_change, price_change_percent)
	VALUES (?,?,?,?,?,?,?,?,?)
	ON CONFLICT(symbol, date) DO NOTHING`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertBar(ctx context.Context, ex execer, b *model.PriceBar) (bool, error) {
	res, err := ex.ExecContext(ctx, insertBarSQL,
		b.Symbol, dayKey(b.Date),
		b.Open.String(), b.High.String(), b.Low.String(), b.Close.String(),
		nullInt(b.Volume), b.PriceChange.String(), b.PriceChangePercent.String(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) UpsertBar(ctx context.Context, bar *model.PriceBar) (*model.PriceBar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := insertBar(ctx, s.db, bar)
	if err != nil {
		return nil, persistErr("upsert bar", err)
	}
	if !ok {
		return nil, nil
	}
	out := *bar
	out.Date = model.TruncateDay(out.Date)
	return &out, nil
}

func (s *SQLiteStore) SaveBars(ctx context.Context, bars []model.PriceBar) (added, skipped int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, persistErr("save bars", err)
	}
	defer tx.Rollback()

	for i := range bars {
		ok, err := insertBar(ctx, tx, &bars[i])
		if err != nil {
			return 0, 0, persistErr("save bars", err)
		}
		if ok {
			added++
		} else {
			skipped++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, persistErr("save bars", err)
	}
	return added, skipped, nil
}

const selectBarSQL = `SELECT symbol, date, open, high, low, close, volume, price_change, price_change_percent
	FROM price_data`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBar(row rowScanner) (*model.PriceBar, error) {
	var (
		b                              model.PriceBar
		date                           string
		open, high, low, cls, chg, pct string
		vol                            sql.NullInt64
	)
	if err := row.Scan(&b.Symbol, &date, &open, &high, &low, &cls, &vol, &chg, &pct); err != nil {
		return nil, err
	}
	var err error
	if b.Date, err = time.Parse(model.DateLayout, date); err != nil {
		return nil, fmt.Errorf("parse date %q: %w", date, err)
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{{&b.Open, open}, {&b.High, high}, {&b.Low, low}, {&b.Close, cls}, {&b.PriceChange, chg}, {&b.PriceChangePercent, pct}} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return nil, fmt.Errorf("parse decimal %q: %w", f.src, err)
		}
	}
	if vol.Valid {
		v := vol.Int64
		b.Volume = &v
	}
	return &b, nil
}

func (s *SQLiteStore) queryOne(ctx context.Context, op, where string, args ...any) (*model.PriceBar, error) {
	b, err := scanBar(s.db.QueryRowContext(ctx, selectBarSQL+" "+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr(op, err)
	}
	return b, nil
}

func (s *SQLiteStore) GetBar(ctx context.Context, symbol string, date time.Time) (*model.PriceBar, error) {
	return s.queryOne(ctx, "get bar", "WHERE symbol = ? AND date = ?", symbol, dayKey(date))
}

func (s *SQLiteStore) Latest(ctx context.Context, symbol string) (*model.PriceBar, error) {
	return s.queryOne(ctx, "latest bar", "WHERE symbol = ? ORDER BY date DESC LIMIT 1", symbol)
}

func (s *SQLiteStore) Previous(ctx context.Context, symbol string, date time.Time) (*model.PriceBar, error) {
	return s.queryOne(ctx, "previous bar", "WHERE symbol = ? AND date < ? ORDER BY date DESC LIMIT 1", symbol, dayKey(date))
}

func (s *SQLiteStore) Range(ctx context.Context, symbol string, start, end time.Time) ([]model.PriceBar, error) {
	// end is exclusive; a start-of-day end excludes that day.
	endKey := dayKey(end)
	if !model.TruncateDay(end).Equal(end.UTC()) {
		endKey = dayKey(end.AddDate(0, 0, 1))
	}
	rows, err := s.db.QueryContext(ctx, selectBarSQL+" WHERE symbol = ? AND date >= ? AND date < ? ORDER BY date ASC",
		symbol, dayKey(start), endKey)
	if err != nil {
		return nil, persistErr("range bars", err)
	}
	defer rows.Close()

	var out []model.PriceBar
	for rows.Next() {
		b, err := scanBar(rows)
		if err != nil {
			return nil, persistErr("range bars", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("range bars", err)
	}
	return out, nil
}

func (s *SQLiteStore) DateRange(ctx context.Context, symbol string) (min, max time.Time, ok bool, err error) {
	var lo, hi sql.NullString
	err = s.db.QueryRowContext(ctx, `SELECT MIN(date), MAX(date) FROM price_data WHERE symbol = ?`, symbol).Scan(&lo, &hi)
	if err != nil {
		return time.Time{}, time.Time{}, false, persistErr("date range", err)
	}
	if !lo.Valid || !hi.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	if min, err = time.Parse(model.DateLayout, lo.String); err != nil {
		return time.Time{}, time.Time{}, false, persistErr("date range", err)
	}
	if max, err = time.Parse(model.DateLayout, hi.String); err != nil {
		return time.Time{}, time.Time{}, false, persistErr("date range", err)
	}
	return min, max, true, nil
}

func (s *SQLiteStore) MissingWeekdays(ctx context.Context, symbol string, start, end time.Time) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date FROM price_data WHERE symbol = ? AND date >= ? AND date <= ?`,
		symbol, dayKey(start), dayKey(end))
	if err != nil {
		return nil, persistErr("missing weekdays", err)
	}
	defer rows.Close()

	stored := map[string]bool{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, persistErr("missing weekdays", err)
		}
		stored[d] = true
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("missing weekdays", err)
	}
	return missingFrom(start, end, stored), nil
}

func (s *SQLiteStore) UpdatePriceChange(ctx context.Context, symbol string, date time.Time, change, pct decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE price_data SET price_change = ?, price_change_percent = ? WHERE symbol = ? AND date = ?`,
		change.String(), pct.String(), symbol, dayKey(date))
	if err != nil {
		return persistErr("update price change", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return persistErr("update price change", errBarNotFound)
	}
	return nil
}

func (s *SQLiteStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM price_data WHERE date < ?`, dayKey(cutoff))
	if err != nil {
		return 0, persistErr("prune bars", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM price_data ORDER BY symbol`)
	if err != nil {
		return nil, persistErr("symbols", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, persistErr("symbols", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveSignal(ctx context.Context, ev *model.SignalEvent, policy InsertPolicy) (SaveOutcome, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO signals
		(symbol, signal_type, timeframe, triggered_at, current_price, indicator_value, signal_strength, volume, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		key.Symbol, key.SignalType, string(key.Timeframe), key.TriggeredAt.Unix(),
		ev.CurrentPrice, ev.IndicatorValue, ev.SignalStrength, nullInt(ev.Volume), createdAt.Unix(),
	)
	if isUniqueViolation(err) {
		return Duplicate, nil
	}
	if err != nil {
		return Saved, persistErr("save signal", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		ev.ID = id
	}
	ev.TriggeredAt = key.TriggeredAt
	ev.CreatedAt = createdAt
	return Saved, nil
}

func (s *SQLiteStore) ExistsSignal(ctx context.Context, key model.SignalKey) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM signals
		WHERE symbol = ? AND signal_type = ? AND timeframe = ? AND triggered_at = ?`,
		key.Symbol, key.SignalType, string(key.Timeframe), key.Timeframe.Truncate(key.TriggeredAt).Unix(),
	).Scan(&n)
	if err != nil {
		return false, persistErr("exists signal", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListSignals(ctx context.Context, f SignalFilter) ([]model.SignalEvent, error) {
	var (
		where []string
		args  []any
	)
	if f.Symbol != "" {
		where, args = append(where, "symbol = ?"), append(args, f.Symbol)
	}
	if f.Timeframe != "" {
		where, args = append(where, "timeframe = ?"), append(args, string(f.Timeframe))
	}
	if !f.Since.IsZero() {
		where, args = append(where, "triggered_at >= ?"), append(args, f.Since.Unix())
	}
	if !f.Until.IsZero() {
		where, args = append(where, "triggered_at < ?"), append(args, f.Until.Unix())
	}
	q := `SELECT id, symbol, signal_type, timeframe, triggered_at, current_price, indicator_value,
		signal_strength, volume, created_at FROM signals`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY triggered_at DESC, id DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, persistErr("list signals", err)
	}
	defer rows.Close()

	var out []model.SignalEvent
	for rows.Next() {
		var (
			ev              model.SignalEvent
			tf              string
			trig, created   int64
			price, ind, str sql.NullFloat64
			vol             sql.NullInt64
		)
		if err := rows.Scan(&ev.ID, &ev.Symbol, &ev.SignalType, &tf, &trig, &price, &ind, &str, &vol, &created); err != nil {
			return nil, persistErr("list signals", err)
		}
		ev.Timeframe = model.Timeframe(tf)
		ev.TriggeredAt = time.Unix(trig, 0).UTC()
		ev.CreatedAt = time.Unix(created, 0).UTC()
		ev.CurrentPrice, ev.IndicatorValue, ev.SignalStrength = price.Float64, ind.Float64, str.Float64
		if vol.Valid {
			v := vol.Int64
			ev.Volume = &v
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list signals", err)
	}
	return out, nil
}

func (s *SQLiteStore) DeleteSignals(ctx context.Context, symbol string, tf model.Timeframe, from, to time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM signals
		WHERE symbol = ? AND timeframe = ? AND triggered_at >= ? AND triggered_at < ?`,
		symbol, string(tf), from.Unix(), to.Unix())
	if err != nil {
		return 0, persistErr("delete signals", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) PruneSignalsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM signals WHERE triggered_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, persistErr("prune signals", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
