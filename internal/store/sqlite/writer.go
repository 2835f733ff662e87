package sqlite

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"rsi-options-engine/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

const candleSchema = `
	CREATE TABLE IF NOT EXISTS candles_1m (
		leg                TEXT    NOT NULL,
		ts                 INTEGER NOT NULL,
		open               INTEGER NOT NULL,
		high               INTEGER NOT NULL,
		low                INTEGER NOT NULL,
		close              INTEGER NOT NULL,
		volume             INTEGER,
		open_interest      INTEGER,
		implied_volatility REAL,
		ticks              INTEGER,
		PRIMARY KEY (leg, ts)
	);
	CREATE INDEX IF NOT EXISTS idx_candles_ts ON candles_1m(ts);
`

// open opens path in WAL mode and applies schema.
func open(path, schema string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrapf(err, "sqlite open %s", path)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	if schema != "" {
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "sqlite schema")
		}
	}
	return db, nil
}

// Writer records one-minute candles with transaction batching. It is the
// live feed's recorder; the backtest reads the same table back.
type Writer struct {
	db  *sql.DB
	log zerolog.Logger

	OnCommit func(n int)
}

// NewWriter opens or creates the candle database at path.
func NewWriter(path string, log zerolog.Logger) (*Writer, error) {
	db, err := open(path, candleSchema, 1)
	if err != nil {
		return nil, err
	}
	log = log.With().Str("component", "candle-writer").Logger()
	log.Info().Str("path", path).Msg("candle store opened")
	return &Writer{db: db, log: log}, nil
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// Run reads candles from candleCh and inserts them in batched transactions.
// Flushes every batchSize candles OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or candleCh is closed.
func (w *Writer) Run(ctx context.Context, candleCh <-chan model.Candle) {
	batch := make([]model.Candle, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.Insert(context.WithoutCancel(ctx), batch); err != nil {
			w.log.Error().Err(err).Int("candles", len(batch)).Msg("batch insert failed")
		} else {
			w.log.Debug().Int("candles", len(batch)).Dur("took", time.Since(start)).Msg("batch committed")
			if w.OnCommit != nil {
				w.OnCommit(len(batch))
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case c, ok := <-candleCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, c)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// Insert writes candles in a single transaction. Rows with the same leg
// and timestamp are replaced.
func (w *Writer) Insert(ctx context.Context, candles []model.Candle) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles_1m
			(leg, ts, open, high, low, close, volume, open_interest, implied_volatility, ticks)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "prepare")
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.ExecContext(ctx, c.Leg.Key(), c.TS.Unix(), c.Open, c.High, c.Low, c.Close, c.Volume, c.OI, c.IV, c.Ticks)
		if err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "insert %s at %d", c.Leg.Key(), c.TS.Unix())
		}
	}
	return errors.Wrap(tx.Commit(), "commit")
}

// LastTimestamp returns the newest stored candle time for leg, or the zero
// time when there is none.
func (w *Writer) LastTimestamp(ctx context.Context, leg model.Leg) (time.Time, error) {
	var ts sql.NullInt64
	err := w.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM candles_1m WHERE leg = ?`, leg.Key(),
	).Scan(&ts)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "last timestamp")
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64, 0).UTC(), nil
}

func (w *Writer) Close() error { return w.db.Close() }
