package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/mr1hm/go-disaster-news/internal/models"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type SQLDB struct {
	db     *sql.DB
	driver string
}

// Open connects to driver (sqlite or postgres) and migrates the schema.
func Open(driver, dsn string) (*SQLDB, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	if driver == DriverSQLite {
		// Each connection to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLDB{
		db:     db,
		driver: driver,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while migrating database: %w", err)
	}

	return s, nil
}

func NewSQLiteDB(path string) (*SQLDB, error) {
	return Open(DriverSQLite, path)
}

func (s *SQLDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS retrieval_runs (
			id TEXT PRIMARY KEY,
			started_at BIGINT NOT NULL,
			duration_ms BIGINT NOT NULL,
			status TEXT NOT NULL,
			report_count INTEGER NOT NULL,
			dropped_rows INTEGER NOT NULL,
			dropped_locations INTEGER NOT NULL,
			upstream_status INTEGER NOT NULL,
			error TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_retrieval_runs_started_at ON retrieval_runs(started_at);
		CREATE INDEX IF NOT EXISTS idx_retrieval_runs_status ON retrieval_runs(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLDB) Close() error {
	return s.db.Close()
}

func (s *SQLDB) AddRun(ctx context.Context, r *models.RetrievalRun) error {
	query := s.rebind(`
		INSERT INTO retrieval_runs (
			id, started_at, duration_ms, status, report_count,
			dropped_rows, dropped_locations, upstream_status, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		r.ID,
		r.StartedAt.UnixMilli(),
		r.Duration.Milliseconds(),
		string(r.Status),
		r.ReportCount,
		r.DroppedRows,
		r.DroppedLocations,
		r.UpstreamStatus,
		r.Error,
	)
	if err != nil {
		return fmt.Errorf("error inserting run %s: %w", r.ID, err)
	}
	return nil
}

// GetRun returns nil, nil when no run has the id.
func (s *SQLDB) GetRun(ctx context.Context, id string) (*models.RetrievalRun, error) {
	query := s.rebind(selectRuns + ` WHERE id = ?`)

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *SQLDB) ListRuns(ctx context.Context, opts Filter) ([]models.RetrievalRun, error) {
	var (
		conds []string
		args  []any
	)
	if opts.Since != nil {
		conds = append(conds, "started_at >= ?")
		args = append(args, opts.Since.UnixMilli())
	}
	if opts.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, string(*opts.Status))
	}

	query := selectRuns
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY started_at DESC, id"
	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("error listing runs: %w", err)
	}
	defer rows.Close()

	runs := make([]models.RetrievalRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

const selectRuns = `
	SELECT id, started_at, duration_ms, status, report_count,
		dropped_rows, dropped_locations, upstream_status, error
	FROM retrieval_runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*models.RetrievalRun, error) {
	var (
		run        models.RetrievalRun
		startedAt  int64
		durationMs int64
		status     string
	)
	err := sc.Scan(
		&run.ID,
		&startedAt,
		&durationMs,
		&status,
		&run.ReportCount,
		&run.DroppedRows,
		&run.DroppedLocations,
		&run.UpstreamStatus,
		&run.Error,
	)
	if err != nil {
		return nil, err
	}

	run.StartedAt = time.UnixMilli(startedAt).UTC()
	run.Duration = time.Duration(durationMs) * time.Millisecond
	run.Status = models.RunStatus(status)
	return &run, nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLDB) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
