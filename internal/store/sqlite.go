package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"backlab/internal/executor"
)

// Compile-time interface check.
var _ ResultRecorder = (*SQLiteRecorder)(nil)

// SQLiteRecorder persists task results to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the database at dbPath and runs
// migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so readers can inspect results while a run is writing.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS run_results (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at     INTEGER NOT NULL,
			strategy       TEXT NOT NULL,
			range_label    TEXT NOT NULL,
			ticker         TEXT NOT NULL,
			signals        INTEGER,
			approved       INTEGER,
			attribution    TEXT,
			risk_score     REAL,
			trade_count    INTEGER,
			net_profit     REAL,
			win_loss_ratio REAL,
			accuracy       REAL,
			sharpe         REAL,
			max_drawdown   REAL,
			violations     INTEGER,
			err            TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_key ON run_results(strategy, range_label, ticker)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id       INTEGER NOT NULL REFERENCES run_results(id),
			ticker       TEXT NOT NULL,
			direction    TEXT NOT NULL,
			entry_ts     INTEGER NOT NULL,
			exit_ts      INTEGER NOT NULL,
			entry_price  REAL,
			exit_price   REAL,
			size         REAL,
			gross_profit REAL,
			total_cost   REAL,
			net_profit   REAL,
			profit_pct   REAL,
			drawdown_pct REAL,
			duration_min REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id)`,

		`CREATE TABLE IF NOT EXISTS risk_rejections (
			id     INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL REFERENCES run_results(id),
			ticker TEXT NOT NULL,
			ts     INTEGER,
			value  REAL,
			failed TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rejections_run ON risk_rejections(run_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordResult writes one task result with its trades and rejections in a
// single transaction.
func (r *SQLiteRecorder) RecordResult(ctx context.Context, res executor.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	all := res.Report.All
	row, err := tx.ExecContext(ctx, `INSERT INTO run_results
		(created_at, strategy, range_label, ticker, signals, approved,
		 attribution, risk_score, trade_count, net_profit, win_loss_ratio,
		 accuracy, sharpe, max_drawdown, violations, err)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), res.Task.Strategy, res.Task.Range.Label, res.Task.Ticker,
		res.Signals, res.Approved, res.Attribution, res.RiskScore,
		len(res.Trades), all.TotalNetProfit, num(all.WinLossRatio),
		all.Accuracy, num(res.Report.Advanced.AnnualizedSharpe),
		res.Report.Advanced.MaxDrawdown, len(res.Violations), res.Err,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	runID, err := row.LastInsertId()
	if err != nil {
		return fmt.Errorf("result id: %w", err)
	}

	for _, t := range res.Trades {
		if _, err := tx.ExecContext(ctx, `INSERT INTO trades
			(run_id, ticker, direction, entry_ts, exit_ts, entry_price, exit_price,
			 size, gross_profit, total_cost, net_profit, profit_pct, drawdown_pct, duration_min)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			runID, t.Ticker, string(t.Direction),
			t.EntryTime.Unix(), t.ExitTime.Unix(), t.EntryPrice, t.ExitPrice,
			t.Size, t.GrossProfit, t.TotalCost, t.NetProfit,
			t.ProfitPct, t.DrawdownPct, t.DurationMin,
		); err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}
	}

	for _, rej := range res.Risk.Rejections {
		if _, err := tx.ExecContext(ctx, `INSERT INTO risk_rejections
			(run_id, ticker, ts, value, failed) VALUES (?,?,?,?,?)`,
			runID, rej.Ticker, rej.Time.Unix(), rej.Value, strings.Join(rej.Failed, ","),
		); err != nil {
			return fmt.Errorf("insert rejection: %w", err)
		}
	}

	return tx.Commit()
}

// Close closes the underlying database.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}

// num maps NaN and Inf to NULL; SQLite has no representation for them.
func num(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}
