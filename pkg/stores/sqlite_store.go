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
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/openrollout/openrollout/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements engine.Sink backed by SQLite. It persists issue and
// success observations across runs so later deployments can consult earlier
// failures.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration. Zero pool values fall back to the
// defaults (25 open, 5 idle, 5 minute lifetime).
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	return &SQLiteStore{cfg: cfg}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

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

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs schema migrations from the embedded source.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// HealthCheck verifies the database is reachable.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

// RecordIssue implements engine.Sink.
func (s *SQLiteStore) RecordIssue(ctx context.Context, resourceType string, issue engine.Issue) error {
	payload, err := json.Marshal(issue)
	if err != nil {
		return fmt.Errorf("failed to encode issue: %w", err)
	}
	return s.insertObservation(ctx, "issue", resourceType, issue.Description, payload)
}

// RecordSuccess implements engine.Sink.
func (s *SQLiteStore) RecordSuccess(ctx context.Context, resourceType string, success engine.Success) error {
	payload, err := json.Marshal(success)
	if err != nil {
		return fmt.Errorf("failed to encode success: %w", err)
	}
	description := success.ConfigSummary
	if description == "" {
		description = fmt.Sprintf("%s completed in %.1fs", resourceType, success.DurationSeconds)
	}
	return s.insertObservation(ctx, "success", resourceType, description, payload)
}

func (s *SQLiteStore) insertObservation(ctx context.Context, kind, resourceType, description string, payload []byte) error {
	query := `
		INSERT INTO observations (id, kind, resource_type, description, payload, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.New().String(), kind, resourceType, description, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record %s observation: %w", kind, err)
	}
	return nil
}

// Query implements engine.Sink. The pattern is tokenized and matched against
// resource type and description; results come back newest first.
func (s *SQLiteStore) Query(ctx context.Context, pattern string) ([]engine.HistoryEntry, error) {
	tokens := strings.Fields(strings.ToLower(pattern))
	if len(tokens) == 0 {
		return nil, nil
	}

	var (
		clauses []string
		args    []any
	)
	for _, token := range tokens {
		clauses = append(clauses, "(LOWER(resource_type) LIKE ? OR LOWER(description) LIKE ?)")
		like := "%" + token + "%"
		args = append(args, like, like)
	}

	query := fmt.Sprintf(`
		SELECT id, kind, resource_type, description, recorded_at
		FROM observations
		WHERE %s
		ORDER BY recorded_at DESC
		LIMIT 20
	`, strings.Join(clauses, " OR "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	var entries []engine.HistoryEntry
	for rows.Next() {
		var e engine.HistoryEntry
		if err := rows.Scan(&e.ID, &e.Kind, &e.ResourceType, &e.Description, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SaveRun persists a run summary row plus the full result log as JSON.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *engine.RunResult) error {
	report, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}

	summary := run.Summary()
	query := `
		INSERT INTO runs (id, status, started_at, completed_at, total, deployed, failed, not_ready, optimistic, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		run.ID,
		string(run.Status()),
		run.StartedAt.UTC(),
		run.CompletedAt.UTC(),
		summary.Total,
		summary.Deployed,
		summary.Failed,
		summary.NotReady,
		summary.Optimistic,
		string(report),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// RunRecord is one persisted run summary.
type RunRecord struct {
	ID          string
	Status      string
	StartedAt   time.Time
	CompletedAt time.Time
	Summary     engine.RunSummary
}

// ListRuns returns recent run summaries, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT id, status, started_at, completed_at, total, deployed, failed, not_ready, optimistic
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.Status, &r.StartedAt, &r.CompletedAt,
			&r.Summary.Total, &r.Summary.Deployed, &r.Summary.Failed,
			&r.Summary.NotReady, &r.Summary.Optimistic); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
