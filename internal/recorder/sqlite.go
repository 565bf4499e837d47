package recorder

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"ohlcvhub/internal/logger"
)

// SQLiteRecorder persists fetch history to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so readers can inspect history while fetches are written.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Infof("[recorder] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fetches (
			id          TEXT PRIMARY KEY,
			timestamp   INTEGER NOT NULL,
			symbol      TEXT NOT NULL,
			interval    TEXT,
			bar_limit   INTEGER,
			asset_class TEXT,
			provider    TEXT,
			bars        INTEGER,
			error_kind  TEXT,
			error       TEXT,
			duration_ms INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fetches_symbol_ts ON fetches(symbol, timestamp)`,

		`CREATE TABLE IF NOT EXISTS fetch_attempts (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			fetch_id   TEXT NOT NULL REFERENCES fetches(id),
			seq        INTEGER NOT NULL,
			provider   TEXT,
			try        INTEGER,
			outcome    TEXT,
			kind       TEXT,
			error      TEXT,
			bars       INTEGER,
			elapsed_ms INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_fetch ON fetch_attempts(fetch_id, seq)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordFetch(rec *FetchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO fetches
		(id, timestamp, symbol, interval, bar_limit, asset_class, provider, bars, error_kind, error, duration_ms)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.At.Unix(), rec.Symbol, rec.Interval, rec.Limit, rec.AssetClass,
		rec.Provider, rec.Bars, rec.ErrorKind, rec.Error, rec.Duration.Milliseconds(),
	); err != nil {
		return fmt.Errorf("insert fetch: %w", err)
	}
	for i, a := range rec.Attempts {
		if _, err := tx.Exec(`INSERT INTO fetch_attempts
			(fetch_id, seq, provider, try, outcome, kind, error, bars, elapsed_ms)
			VALUES (?,?,?,?,?,?,?,?,?)`,
			rec.ID, i, a.Provider, a.Try, a.Outcome, a.Kind, a.Error, a.Bars, a.Elapsed.Milliseconds(),
		); err != nil {
			return fmt.Errorf("insert attempt %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// RecentFetches returns up to limit fetches for symbol, newest first, with
// their attempts. An empty symbol matches every fetch.
func (r *SQLiteRecorder) RecentFetches(symbol string, limit int) ([]FetchRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`SELECT id, timestamp, symbol, interval, bar_limit, asset_class,
			provider, bars, error_kind, error, duration_ms
		FROM fetches
		WHERE ? = '' OR symbol = ?
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?`, symbol, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query fetches: %w", err)
	}
	var out []FetchRecord
	for rows.Next() {
		var (
			rec       FetchRecord
			ts, durMS int64
		)
		if err := rows.Scan(&rec.ID, &ts, &rec.Symbol, &rec.Interval, &rec.Limit, &rec.AssetClass,
			&rec.Provider, &rec.Bars, &rec.ErrorKind, &rec.Error, &durMS); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan fetch: %w", err)
		}
		rec.At = time.Unix(ts, 0)
		rec.Duration = time.Duration(durMS) * time.Millisecond
		out = append(out, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		attempts, err := r.attempts(out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Attempts = attempts
	}
	return out, nil
}

func (r *SQLiteRecorder) attempts(fetchID string) ([]AttemptRecord, error) {
	rows, err := r.db.Query(`SELECT provider, try, outcome, kind, error, bars, elapsed_ms
		FROM fetch_attempts WHERE fetch_id = ? ORDER BY seq`, fetchID)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []AttemptRecord
	for rows.Next() {
		var (
			a         AttemptRecord
			elapsedMS int64
		)
		if err := rows.Scan(&a.Provider, &a.Try, &a.Outcome, &a.Kind, &a.Error, &a.Bars, &elapsedMS); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	logger.Infof("[recorder] closing sqlite recorder")
	return r.db.Close()
}
