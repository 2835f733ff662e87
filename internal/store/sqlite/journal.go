package sqlite

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"rsi-options-engine/internal/markethours"
	"rsi-options-engine/internal/model"
)

const journalSchema = `
	CREATE TABLE IF NOT EXISTS trades (
		id               TEXT PRIMARY KEY,
		leg              TEXT NOT NULL,
		underlying       TEXT NOT NULL,
		day              TEXT NOT NULL,
		signal_ts        TEXT NOT NULL,
		signal_rsi       REAL NOT NULL,
		base_price       TEXT NOT NULL,
		entries          TEXT NOT NULL,
		avg_entry        TEXT NOT NULL,
		exit_price       TEXT NOT NULL,
		exit_reason      TEXT NOT NULL,
		parts_filled     INTEGER NOT NULL,
		filled_fraction  TEXT NOT NULL,
		pnl_pct          TEXT NOT NULL,
		pnl_money        TEXT NOT NULL,
		entry_ts         TEXT NOT NULL,
		exit_ts          TEXT NOT NULL,
		created_at       DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trades_day ON trades(day);
	CREATE INDEX IF NOT EXISTS idx_trades_underlying ON trades(underlying);
`

// journalTime is fixed-width UTC so that text order is time order.
const journalTime = "2006-01-02T15:04:05.000000000Z07:00"

func stamp(t time.Time) string { return t.UTC().Format(journalTime) }

// Journal persists finalized trades to SQLite for analysis and audit.
// Re-recording a trade ID overwrites the row, so replays are idempotent.
type Journal struct {
	mu  sync.Mutex
	db  *sql.DB
	log zerolog.Logger
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(path string, log zerolog.Logger) (*Journal, error) {
	db, err := open(path, journalSchema, 1)
	if err != nil {
		return nil, err
	}
	log = log.With().Str("component", "journal").Logger()
	log.Info().Str("path", path).Msg("trade journal opened")
	return &Journal{db: db, log: log}, nil
}

// Record persists rec.
func (j *Journal) Record(ctx context.Context, rec model.TradeRecord) error {
	entries, err := sonic.MarshalString(rec.Entries)
	if err != nil {
		return errors.Wrap(err, "encode entries")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	_, err = j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO trades
			(id, leg, underlying, day, signal_ts, signal_rsi, base_price, entries,
			 avg_entry, exit_price, exit_reason, parts_filled, filled_fraction,
			 pnl_pct, pnl_money, entry_ts, exit_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Leg.Key(),
		rec.Leg.Underlying,
		rec.Day,
		stamp(rec.Signal.TS),
		rec.Signal.RSI,
		rec.Signal.BasePrice.String(),
		entries,
		rec.AvgEntry.String(),
		rec.ExitPrice.String(),
		string(rec.ExitReason),
		rec.PartsFilled,
		rec.FilledFraction.String(),
		rec.PnLPct.String(),
		rec.PnLMoney.String(),
		stamp(rec.EntryTS),
		stamp(rec.ExitTS),
	)
	return errors.Wrapf(err, "journal trade %s", rec.ID)
}

// Trades returns journaled trades for day ordered by exit time. An empty day
// returns every trade.
func (j *Journal) Trades(ctx context.Context, day string) ([]model.TradeRecord, error) {
	query := `
		SELECT id, leg, day, signal_ts, signal_rsi, base_price, entries, avg_entry,
		       exit_price, exit_reason, parts_filled, filled_fraction, pnl_pct,
		       pnl_money, entry_ts, exit_ts
		FROM trades`
	var args []any
	if day != "" {
		query += ` WHERE day = ?`
		args = append(args, day)
	}
	query += ` ORDER BY exit_ts ASC, leg ASC, entry_ts ASC, id ASC`

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query trades")
	}
	defer rows.Close()

	var out []model.TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "iterate trades")
}

func scanTrade(rows *sql.Rows) (model.TradeRecord, error) {
	var (
		rec              model.TradeRecord
		leg, reason      string
		sigTS, entryTS   string
		exitTS, entries  string
		base, avg, exit  string
		frac, pct, money string
	)
	if err := rows.Scan(&rec.ID, &leg, &rec.Day, &sigTS, &rec.Signal.RSI, &base, &entries, &avg,
		&exit, &reason, &rec.PartsFilled, &frac, &pct, &money, &entryTS, &exitTS); err != nil {
		return rec, errors.Wrap(err, "scan trade")
	}

	var err error
	if rec.Leg, err = model.ParseLeg(leg); err != nil {
		return rec, errors.Wrapf(err, "trade %s", rec.ID)
	}
	rec.ExitReason = model.ExitReason(reason)
	rec.Signal.Leg, rec.Signal.Day = rec.Leg, rec.Day

	for dst, s := range map[*time.Time]string{&rec.Signal.TS: sigTS, &rec.EntryTS: entryTS, &rec.ExitTS: exitTS} {
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return rec, errors.Wrapf(err, "trade %s timestamp", rec.ID)
		}
		*dst = ts.In(markethours.IST)
	}
	for dst, s := range map[*decimal.Decimal]string{
		&rec.Signal.BasePrice: base,
		&rec.AvgEntry:         avg,
		&rec.ExitPrice:        exit,
		&rec.FilledFraction:   frac,
		&rec.PnLPct:           pct,
		&rec.PnLMoney:         money,
	} {
		if *dst, err = decimal.NewFromString(s); err != nil {
			return rec, errors.Wrapf(err, "trade %s decimal", rec.ID)
		}
	}
	if err := sonic.UnmarshalString(entries, &rec.Entries); err != nil {
		return rec, errors.Wrapf(err, "trade %s entries", rec.ID)
	}
	return rec, nil
}

// Ping reports whether the journal database is reachable.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.db.Close()
}
