// Package postgres stores finalized trades in PostgreSQL for reporting
// across runs and hosts.
package postgres

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"rsi-options-engine/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id               TEXT PRIMARY KEY,
	leg              TEXT        NOT NULL,
	underlying       TEXT        NOT NULL,
	option_type      TEXT        NOT NULL,
	day              DATE        NOT NULL,
	signal_ts        TIMESTAMPTZ NOT NULL,
	signal_rsi       DOUBLE PRECISION NOT NULL,
	base_price       NUMERIC     NOT NULL,
	avg_entry        NUMERIC     NOT NULL,
	exit_price       NUMERIC     NOT NULL,
	exit_reason      TEXT        NOT NULL,
	parts_filled     INTEGER     NOT NULL,
	filled_fraction  NUMERIC     NOT NULL,
	pnl_pct          NUMERIC     NOT NULL,
	pnl_money        NUMERIC     NOT NULL,
	entry_ts         TIMESTAMPTZ NOT NULL,
	exit_ts          TIMESTAMPTZ NOT NULL,
	raw              JSONB       NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_day_idx ON trades (day);

CREATE TABLE IF NOT EXISTS trade_entries (
	trade_id  TEXT        NOT NULL REFERENCES trades (id) ON DELETE CASCADE,
	tranche   INTEGER     NOT NULL,
	price     NUMERIC     NOT NULL,
	fraction  NUMERIC     NOT NULL,
	ts        TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (trade_id, tranche)
);
`

const upsertTrade = `
INSERT INTO trades (id, leg, underlying, option_type, day, signal_ts, signal_rsi, base_price,
	avg_entry, exit_price, exit_reason, parts_filled, filled_fraction, pnl_pct, pnl_money,
	entry_ts, exit_ts, raw)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
ON CONFLICT (id) DO UPDATE SET
	exit_price = EXCLUDED.exit_price,
	exit_reason = EXCLUDED.exit_reason,
	parts_filled = EXCLUDED.parts_filled,
	filled_fraction = EXCLUDED.filled_fraction,
	pnl_pct = EXCLUDED.pnl_pct,
	pnl_money = EXCLUDED.pnl_money,
	exit_ts = EXCLUDED.exit_ts,
	raw = EXCLUDED.raw`

const upsertEntry = `
INSERT INTO trade_entries (trade_id, tranche, price, fraction, ts)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (trade_id, tranche) DO UPDATE SET
	price = EXCLUDED.price,
	fraction = EXCLUDED.fraction,
	ts = EXCLUDED.ts`

// Sink is a TradeSink backed by a pgx connection pool.
type Sink struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// New connects to dsn and creates the tables if needed.
func New(ctx context.Context, dsn string, log zerolog.Logger) (*Sink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: create pool")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "postgres: ping")
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "postgres: migrate")
	}

	log = log.With().Str("component", "postgres").Logger()
	log.Info().Msg("postgres trade sink ready")
	return &Sink{pool: pool, log: log}, nil
}

// Record upserts rec and its entries in one transaction.
func (s *Sink) Record(ctx context.Context, rec model.TradeRecord) error {
	b, err := tradeBatch(rec)
	if err != nil {
		return err
	}
	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, b).Close()
	})
	return errors.Wrapf(err, "postgres: record trade %s", rec.ID)
}

// tradeBatch queues the trade row followed by one row per tranche.
func tradeBatch(rec model.TradeRecord) (*pgx.Batch, error) {
	raw, err := sonic.Marshal(rec)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: marshal trade")
	}

	b := &pgx.Batch{}
	b.Queue(upsertTrade,
		rec.ID,
		rec.Leg.Key(),
		rec.Leg.Underlying,
		string(rec.Leg.OptionType),
		rec.Day,
		rec.Signal.TS,
		rec.Signal.RSI,
		rec.Signal.BasePrice.String(),
		rec.AvgEntry.String(),
		rec.ExitPrice.String(),
		string(rec.ExitReason),
		rec.PartsFilled,
		rec.FilledFraction.String(),
		rec.PnLPct.String(),
		rec.PnLMoney.String(),
		rec.EntryTS,
		rec.ExitTS,
		raw,
	)
	for _, f := range rec.Entries {
		b.Queue(upsertEntry, rec.ID, f.Tranche, f.Price.String(), f.Fraction.String(), f.TS)
	}
	return b, nil
}

// Ping reports whether the database is reachable.
func (s *Sink) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Sink) Close() error {
	s.pool.Close()
	return nil
}
