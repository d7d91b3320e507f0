package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

var _ Store = (*SQLiteStore)(nil)

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	// every connection to :memory: opens its own empty database
	if isMemory(cfg.Path) {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// dsn appends the connection pragmas understood by modernc.org/sqlite.
func (s *SQLiteStore) dsn() string {
	params := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_time_format=sqlite",
	}
	if !isMemory(s.cfg.Path) {
		params = append(params, "_pragma=journal_mode(WAL)", "_pragma=synchronous(NORMAL)")
	}

	sep := "?"
	if strings.Contains(s.cfg.Path, "?") {
		sep = "&"
	}
	return s.cfg.Path + sep + strings.Join(params, "&")
}

// Init initializes the database connection and enables WAL mode for
// file databases.
func (s *SQLiteStore) Init(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// CreateRun creates a new run record
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	universe, err := marshalJSON(run.Universe, "[]")
	if err != nil {
		return fmt.Errorf("failed to encode universe: %w", err)
	}
	labels, err := marshalJSON(run.Labels, "{}")
	if err != nil {
		return fmt.Errorf("failed to encode labels: %w", err)
	}

	now := time.Now().UTC()
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	run.CreatedAt = now
	run.UpdatedAt = now

	query := `
		INSERT INTO runs (id, problem, strategy, source, status, universe, labels,
			core_count, total_checks, actual_checks, started_at, completed_at, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		run.ID,
		run.Problem,
		run.Strategy,
		run.Source,
		run.Status,
		universe,
		labels,
		run.CoreCount,
		run.TotalChecks,
		run.ActualChecks,
		run.StartedAt.UTC(),
		utcPtr(run.CompletedAt),
		run.Error,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// CompleteRun records the final status and counters of a run
func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, outcome RunOutcome) error {
	query := `
		UPDATE runs
		SET status = ?, core_count = ?, total_checks = ?, actual_checks = ?,
			error = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, query,
		outcome.Status,
		outcome.CoreCount,
		outcome.TotalChecks,
		outcome.ActualChecks,
		outcome.Error,
		now,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	return expectRow(result, "run", id)
}

const runColumns = `id, problem, strategy, source, status, universe, labels,
	core_count, total_checks, actual_checks, started_at, completed_at, error, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	var universe, labels string
	err := row.Scan(
		&run.ID,
		&run.Problem,
		&run.Strategy,
		&run.Source,
		&run.Status,
		&universe,
		&labels,
		&run.CoreCount,
		&run.TotalChecks,
		&run.ActualChecks,
		&run.StartedAt,
		&run.CompletedAt,
		&run.Error,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(universe), &run.Universe); err != nil {
		return nil, fmt.Errorf("failed to decode universe of run %s: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(labels), &run.Labels); err != nil {
		return nil, fmt.Errorf("failed to decode labels of run %s: %w", run.ID, err)
	}
	if len(run.Labels) == 0 {
		run.Labels = nil
	}
	return run, nil
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListRuns lists runs, most recent first
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Problem != "" {
		where = append(where, "problem = ?")
		args = append(args, filter.Problem)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY started_at DESC, created_at DESC LIMIT ? OFFSET ?`

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// DeleteRun deletes a run together with its cores and intersection
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	return expectRow(result, "run", id)
}

// AddCore records a core. Seq must be unique within the run.
func (s *SQLiteStore) AddCore(ctx context.Context, core *Core) error {
	elements, err := marshalJSON(core.Elements, "[]")
	if err != nil {
		return fmt.Errorf("failed to encode core: %w", err)
	}
	if core.FoundAt.IsZero() {
		core.FoundAt = time.Now().UTC()
	}

	query := `
		INSERT INTO cores (run_id, seq, elements, size, total_checks, actual_checks, elapsed_ns, found_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		core.RunID,
		core.Seq,
		elements,
		len(core.Elements),
		core.TotalChecks,
		core.ActualChecks,
		int64(core.Elapsed),
		core.FoundAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to add core: %w", err)
	}

	core.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get core id: %w", err)
	}

	return nil
}

// ListCores returns the cores of a run in discovery order
func (s *SQLiteStore) ListCores(ctx context.Context, runID string) ([]*Core, error) {
	query := `
		SELECT id, run_id, seq, elements, total_checks, actual_checks, elapsed_ns, found_at
		FROM cores
		WHERE run_id = ?
		ORDER BY seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cores: %w", err)
	}
	defer rows.Close()

	cores := []*Core{}
	for rows.Next() {
		core := &Core{}
		var elements string
		var elapsed int64
		err := rows.Scan(
			&core.ID,
			&core.RunID,
			&core.Seq,
			&elements,
			&core.TotalChecks,
			&core.ActualChecks,
			&elapsed,
			&core.FoundAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan core: %w", err)
		}
		if err := json.Unmarshal([]byte(elements), &core.Elements); err != nil {
			return nil, fmt.Errorf("failed to decode core %d: %w", core.ID, err)
		}
		core.Elapsed = time.Duration(elapsed)
		cores = append(cores, core)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cores: %w", err)
	}

	return cores, nil
}

// SetIntersection records the intersection of a run. It can be set once.
func (s *SQLiteStore) SetIntersection(ctx context.Context, in *Intersection) error {
	elements, err := marshalJSON(in.Elements, "[]")
	if err != nil {
		return fmt.Errorf("failed to encode intersection: %w", err)
	}
	if in.FoundAt.IsZero() {
		in.FoundAt = time.Now().UTC()
	}

	query := `
		INSERT INTO intersections (run_id, elements, total_checks, actual_checks, elapsed_ns, found_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		in.RunID,
		elements,
		in.TotalChecks,
		in.ActualChecks,
		int64(in.Elapsed),
		in.FoundAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to set intersection: %w", err)
	}

	return nil
}

// GetIntersection retrieves the intersection of a run
func (s *SQLiteStore) GetIntersection(ctx context.Context, runID string) (*Intersection, error) {
	query := `
		SELECT run_id, elements, total_checks, actual_checks, elapsed_ns, found_at
		FROM intersections
		WHERE run_id = ?
	`

	in := &Intersection{}
	var elements string
	var elapsed int64
	err := s.db.QueryRowContext(ctx, query, runID).Scan(
		&in.RunID,
		&elements,
		&in.TotalChecks,
		&in.ActualChecks,
		&elapsed,
		&in.FoundAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("intersection of run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get intersection: %w", err)
	}

	if err := json.Unmarshal([]byte(elements), &in.Elements); err != nil {
		return nil, fmt.Errorf("failed to decode intersection: %w", err)
	}
	in.Elapsed = time.Duration(elapsed)
	return in, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

func expectRow(result sql.Result, kind, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

// marshalJSON encodes v, using empty for nil slices and maps.
func marshalJSON(v interface{}, empty string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return empty, nil
	}
	return string(data), nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
