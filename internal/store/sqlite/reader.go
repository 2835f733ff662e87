package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"rsi-options-engine/internal/markethours"
	"rsi-options-engine/internal/model"
)

// Reader provides read-only access to recorded candles for backtests and
// paced replay.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(path string) (*Reader, error) {
	db, err := open(path, "", 2)
	if err != nil {
		return nil, err
	}
	return &Reader{db: db}, nil
}

// ReadCandles returns candles with from <= ts < to, ordered by timestamp
// then leg. A zero bound is open. Timestamps come back in exchange time.
func (r *Reader) ReadCandles(ctx context.Context, from, to time.Time) ([]model.Candle, error) {
	lo, hi := int64(0), int64(1<<62)
	if !from.IsZero() {
		lo = from.Unix()
	}
	if !to.IsZero() {
		hi = to.Unix()
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT leg, ts, open, high, low, close, volume, open_interest, implied_volatility, ticks
		FROM candles_1m
		WHERE ts >= ? AND ts < ?
		ORDER BY ts ASC, leg ASC
	`, lo, hi)
	if err != nil {
		return nil, errors.Wrap(err, "query candles_1m")
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var (
			c      model.Candle
			key    string
			tsUnix int64
			vol    sql.NullInt64
			oi     sql.NullInt64
			iv     sql.NullFloat64
			ticks  sql.NullInt64
		)
		if err := rows.Scan(&key, &tsUnix, &c.Open, &c.High, &c.Low, &c.Close, &vol, &oi, &iv, &ticks); err != nil {
			return nil, errors.Wrap(err, "scan candles_1m")
		}
		if c.Leg, err = model.ParseLeg(key); err != nil {
			return nil, errors.Wrapf(err, "row at %d", tsUnix)
		}
		c.TS = time.Unix(tsUnix, 0).In(markethours.IST)
		c.Volume, c.OI, c.IV, c.Ticks = vol.Int64, oi.Int64, iv.Float64, int(ticks.Int64)
		candles = append(candles, c)
	}
	return candles, errors.Wrap(rows.Err(), "iterate candles_1m")
}

// Legs lists the distinct legs present in the table.
func (r *Reader) Legs(ctx context.Context) ([]model.Leg, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT leg FROM candles_1m ORDER BY leg`)
	if err != nil {
		return nil, errors.Wrap(err, "query legs")
	}
	defer rows.Close()

	var legs []model.Leg
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, errors.Wrap(err, "scan leg")
		}
		leg, err := model.ParseLeg(key)
		if err != nil {
			return nil, err
		}
		legs = append(legs, leg)
	}
	return legs, errors.Wrap(rows.Err(), "iterate legs")
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
