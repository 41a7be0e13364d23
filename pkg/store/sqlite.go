package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store on top of a local SQLite database file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Open opens (creating if absent) the database at path, enables WAL mode,
// and runs pending migrations.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // one exclusive session per run, per the concurrency contract

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertResource(ctx context.Context, rs ResourceState) error {
	const query = `
		INSERT INTO resources (id, type, desired_state, actual_state, applied_at, applied_by, hostname, config_file, status, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			desired_state = excluded.desired_state,
			actual_state = excluded.actual_state,
			applied_at = excluded.applied_at,
			applied_by = excluded.applied_by,
			hostname = excluded.hostname,
			config_file = excluded.config_file,
			status = excluded.status,
			version = resources.version + 1
	`
	_, err := s.db.ExecContext(ctx, query,
		rs.ID, rs.Type, rs.DesiredState, rs.ActualState,
		rs.AppliedAt, rs.AppliedBy, rs.Hostname, rs.ConfigFile, rs.Status, rs.Version,
	)
	if err != nil {
		return fmt.Errorf("upsert resource %s: %w", rs.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetResource(ctx context.Context, id string) (ResourceState, error) {
	const query = `
		SELECT id, type, desired_state, actual_state, applied_at, applied_by, hostname, config_file, status, version
		FROM resources WHERE id = ?
	`
	var rs ResourceState
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rs.ID, &rs.Type, &rs.DesiredState, &rs.ActualState,
		&rs.AppliedAt, &rs.AppliedBy, &rs.Hostname, &rs.ConfigFile, &rs.Status, &rs.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ResourceState{}, fmt.Errorf("resource not found: %s", id)
	}
	if err != nil {
		return ResourceState{}, fmt.Errorf("get resource %s: %w", id, err)
	}
	return rs, nil
}

func (s *SQLiteStore) ListResources(ctx context.Context) ([]ResourceState, error) {
	return s.queryResources(ctx, `
		SELECT id, type, desired_state, actual_state, applied_at, applied_by, hostname, config_file, status, version
		FROM resources ORDER BY applied_at DESC
	`)
}

func (s *SQLiteStore) ListDrifted(ctx context.Context) ([]ResourceState, error) {
	return s.queryResources(ctx, `
		SELECT id, type, desired_state, actual_state, applied_at, applied_by, hostname, config_file, status, version
		FROM resources WHERE status = 'drift' ORDER BY applied_at DESC
	`)
}

func (s *SQLiteStore) queryResources(ctx context.Context, query string) ([]ResourceState, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	var out []ResourceState
	for rows.Next() {
		var rs ResourceState
		if err := rows.Scan(
			&rs.ID, &rs.Type, &rs.DesiredState, &rs.ActualState,
			&rs.AppliedAt, &rs.AppliedBy, &rs.Hostname, &rs.ConfigFile, &rs.Status, &rs.Version,
		); err != nil {
			return nil, fmt.Errorf("scan resource row: %w", err)
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendHistory(ctx context.Context, h HistoryEntry) error {
	const query = `
		INSERT INTO history (timestamp, resource_id, action, user, hostname, success, changes, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	if h.Timestamp.IsZero() {
		h.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query,
		h.Timestamp, h.ResourceID, h.Action, h.User, h.Hostname, h.Success, h.Changes, h.Error,
	)
	if err != nil {
		return fmt.Errorf("append history for %s: %w", h.ResourceID, err)
	}
	return nil
}

func (s *SQLiteStore) ListHistory(ctx context.Context, resourceID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, timestamp, resource_id, action, user, hostname, success, changes, error
		FROM history WHERE resource_id = ? ORDER BY timestamp DESC LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, resourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history for %s: %w", resourceID, err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.Timestamp, &h.ResourceID, &h.Action, &h.User, &h.Hostname, &h.Success, &h.Changes, &h.Error); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

var _ Store = (*SQLiteStore)(nil)
