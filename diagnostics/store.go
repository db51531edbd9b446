package diagnostics

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/notargets/lesproj/multigrid"
	"github.com/notargets/lesproj/pressure"
)

const schema = `
CREATE TABLE IF NOT EXISTS solves (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run TEXT NOT NULL,
	seq INTEGER NOT NULL,
	started_at INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL,
	ranks INTEGER NOT NULL,
	itot INTEGER NOT NULL,
	jtot INTEGER NOT NULL,
	ktot INTEGER NOT NULL,
	status INTEGER NOT NULL,
	status_name TEXT NOT NULL,
	cycles INTEGER NOT NULL,
	initial_residual REAL NOT NULL,
	residual REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS solves_run ON solves (run, seq);
CREATE TABLE IF NOT EXISTS residuals (
	solve_id INTEGER NOT NULL REFERENCES solves (id) ON DELETE CASCADE,
	cycle INTEGER NOT NULL,
	residual REAL NOT NULL,
	PRIMARY KEY (solve_id, cycle)
);
`

// Store keeps the record of every pressure solve, with the residual after
// each cycle, in a SQLite database.
type Store struct {
	sqlDB *sql.DB
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("history database path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// RecordSolve persists one solve and its residual history in a single
// transaction.
func (s *Store) RecordSolve(ctx context.Context, rec pressure.SolveRecord) (err error) {
	if err = ctx.Err(); err != nil {
		return
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	rec.Run = strings.TrimSpace(rec.Run)
	if rec.Run == "" {
		return fmt.Errorf("run name is required")
	}
	if rec.Start.IsZero() {
		rec.Start = time.Now()
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin solve record: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	res, err := tx.ExecContext(ctx, `
INSERT INTO solves (
	run,
	seq,
	started_at,
	duration_ns,
	ranks,
	itot,
	jtot,
	ktot,
	status,
	status_name,
	cycles,
	initial_residual,
	residual
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		rec.Run,
		rec.Seq,
		rec.Start.UTC().UnixMilli(),
		int64(rec.Duration),
		rec.Ranks,
		rec.Itot,
		rec.Jtot,
		rec.Ktot,
		int(rec.Status),
		rec.Status.String(),
		rec.Cycles,
		rec.InitialResidual,
		rec.Residual,
	)
	if err != nil {
		return fmt.Errorf("record solve: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("record solve id: %w", err)
	}
	for cycle, r := range rec.History {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO residuals (solve_id, cycle, residual) VALUES (?, ?, ?)`,
			id, cycle+1, r); err != nil {
			return fmt.Errorf("record residual of cycle %d: %w", cycle+1, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit solve record: %w", err)
	}
	return nil
}

// ListSolves returns the solves of a run in order, every run when run is empty.
func (s *Store) ListSolves(ctx context.Context, run string) ([]pressure.SolveRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	id,
	run,
	seq,
	started_at,
	duration_ns,
	ranks,
	itot,
	jtot,
	ktot,
	status,
	cycles,
	initial_residual,
	residual
FROM solves
WHERE ? = '' OR run = ?
ORDER BY run, seq, id
`, run, run)
	if err != nil {
		return nil, fmt.Errorf("list solves: %w", err)
	}
	var (
		ids     []int64
		records []pressure.SolveRecord
	)
	for rows.Next() {
		var (
			rec                  pressure.SolveRecord
			id, started, durNano int64
			status               int
		)
		if err := rows.Scan(
			&id,
			&rec.Run,
			&rec.Seq,
			&started,
			&durNano,
			&rec.Ranks,
			&rec.Itot,
			&rec.Jtot,
			&rec.Ktot,
			&status,
			&rec.Cycles,
			&rec.InitialResidual,
			&rec.Residual,
		); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan solve: %w", err)
		}
		rec.Start = time.UnixMilli(started).UTC()
		rec.Duration = time.Duration(durNano)
		rec.Status = multigrid.Status(status)
		ids = append(ids, id)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate solves: %w", err)
	}
	_ = rows.Close()
	for n, id := range ids {
		if records[n].History, err = s.residuals(ctx, id); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *Store) residuals(ctx context.Context, id int64) (hist []float64, err error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT residual FROM residuals WHERE solve_id = ? ORDER BY cycle`, id)
	if err != nil {
		return nil, fmt.Errorf("list residuals: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r float64
		if err = rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("scan residual: %w", err)
		}
		hist = append(hist, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate residuals: %w", err)
	}
	return
}

var _ pressure.Recorder = (*Store)(nil)
