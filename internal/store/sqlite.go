package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"orbx/internal/domain"
	"orbx/internal/util"
)

// SQLiteStore mirrors finished run results into a SQLite database so
// external tooling can query trades and equity rows with plain SQL. The
// Parquet files remain the canonical outputs.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	name        TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	start_date  TEXT NOT NULL,
	end_date    TEXT NOT NULL,
	config_yaml TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS trades (
	run          TEXT NOT NULL REFERENCES runs(name),
	symbol       TEXT NOT NULL,
	date         TEXT NOT NULL,
	direction    TEXT NOT NULL,
	rank         INTEGER NOT NULL,
	rvol         REAL NOT NULL,
	atr          REAL NOT NULL,
	entry_trigger REAL NOT NULL,
	stop_price   REAL NOT NULL,
	entered      INTEGER NOT NULL,
	entry_price  REAL NOT NULL,
	entry_time   INTEGER,
	exit_price   REAL NOT NULL,
	exit_time    INTEGER,
	exit_reason  TEXT NOT NULL,
	shares       INTEGER NOT NULL,
	gross_pnl    REAL NOT NULL,
	commission   REAL NOT NULL,
	net_pnl      REAL NOT NULL,
	PRIMARY KEY (run, symbol, date)
);
CREATE TABLE IF NOT EXISTS daily_equity (
	run             TEXT NOT NULL REFERENCES runs(name),
	date            TEXT NOT NULL,
	starting_equity REAL NOT NULL,
	ending_equity   REAL NOT NULL,
	daily_pnl       REAL NOT NULL,
	trades_entered  INTEGER NOT NULL,
	wins            INTEGER NOT NULL,
	losses          INTEGER NOT NULL,
	PRIMARY KEY (run, date)
);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and applies
// the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun registers a run before simulation starts. A duplicate run name
// is an error: results are write-once per run.
func (s *SQLiteStore) CreateRun(ctx context.Context, name, startDate, endDate, configYAML string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (name, started_at, start_date, end_date, config_yaml)
		 VALUES (?, ?, ?, ?, ?)`,
		name, time.Now().UTC().Format(time.RFC3339), startDate, endDate, configYAML)
	if err != nil {
		return fmt.Errorf("creating run %q: %w", name, err)
	}
	return nil
}

// FinishRun stamps the run's completion time.
func (s *SQLiteStore) FinishRun(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ? WHERE name = ?`,
		time.Now().UTC().Format(time.RFC3339), name)
	if err != nil {
		return fmt.Errorf("finishing run %q: %w", name, err)
	}
	return nil
}

// SaveTrades inserts a run's trade ledger in one transaction.
func (s *SQLiteStore) SaveTrades(ctx context.Context, run string, trades []domain.TradeResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO trades (run, symbol, date, direction, rank, rvol, atr,
			entry_trigger, stop_price, entered, entry_price, entry_time,
			exit_price, exit_time, exit_reason, shares, gross_pnl, commission, net_pnl)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range trades {
		c := t.Signal.Candidate
		var entryTime, exitTime any
		if t.Entered {
			entryTime = t.EntryTime.UnixMilli()
			exitTime = t.ExitTime.UnixMilli()
		}
		if _, err := stmt.ExecContext(ctx,
			run, c.Symbol, util.DateKey(c.Date), string(c.Direction), c.Rank, c.RVOL, c.ATR,
			t.Signal.EntryTrigger, t.Signal.StopPrice, t.Entered, t.EntryPrice, entryTime,
			t.ExitPrice, exitTime, string(t.ExitReason), t.Shares, t.GrossPnL, t.Commission, t.NetPnL,
		); err != nil {
			return fmt.Errorf("inserting trade %s/%s: %w", c.Symbol, util.DateKey(c.Date), err)
		}
	}

	return tx.Commit()
}

// SaveDailyEquity inserts a run's daily performance rows in one transaction.
func (s *SQLiteStore) SaveDailyEquity(ctx context.Context, run string, rows []domain.DailyEquity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO daily_equity (run, date, starting_equity, ending_equity,
			daily_pnl, trades_entered, wins, losses)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			run, util.DateKey(r.Date), r.StartingEquity, r.EndingEquity,
			r.DailyPnL, r.TradesEntered, r.Wins, r.Losses,
		); err != nil {
			return fmt.Errorf("inserting daily equity %s: %w", util.DateKey(r.Date), err)
		}
	}

	return tx.Commit()
}

// ListRuns returns the names of all registered runs, most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// TradeCount returns the number of ledger rows stored for a run.
func (s *SQLiteStore) TradeCount(ctx context.Context, run string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trades WHERE run = ?`, run).Scan(&n)
	return n, err
}
