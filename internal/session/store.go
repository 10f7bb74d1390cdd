package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"storyloom/internal/config"
)

// ErrSessionNotFound marks lookups against an unknown session id.
var ErrSessionNotFound = errors.New("session not found")

// ErrVersionConflict marks an optimistic update that lost a race with a
// concurrent writer. The caller should reload and retry.
var ErrVersionConflict = errors.New("session version conflict")

// Store manages session and checkpoint persistence backed by SQLite.
// All writes to one session go through the version column, giving
// single-writer-per-session semantics across processes.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the session database and applies
// migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.DatabasePath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Create inserts a new session record. The stored version starts at 1.
func (s *Store) Create(ctx context.Context, sess *Session) error {
	now := time.Now().UTC()
	sess.Version = 1
	sess.CreatedAt = now
	sess.UpdatedAt = now

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO sessions (
            session_id, status, mode, phase, idea, state_json, error,
            version, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.SessionID,
		string(sess.Status),
		sess.Mode,
		sess.Phase,
		sess.Idea,
		sess.StateJSON,
		sess.Error,
		sess.Version,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get loads one session by id.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT session_id, status, mode, phase, idea, state_json, error,
            version, created_at, updated_at
        FROM sessions WHERE session_id = ?`,
		sessionID,
	)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

// Update persists a session using an optimistic version check. The row is
// written only when the stored version still matches sess.Version; on
// success sess.Version is incremented to the stored value.
func (s *Store) Update(ctx context.Context, sess *Session) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE sessions SET
            status = ?, mode = ?, phase = ?, idea = ?, state_json = ?,
            error = ?, version = version + 1, updated_at = ?
        WHERE session_id = ? AND version = ?`,
		string(sess.Status),
		sess.Mode,
		sess.Phase,
		sess.Idea,
		sess.StateJSON,
		sess.Error,
		now.Format(time.RFC3339Nano),
		sess.SessionID,
		sess.Version,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.Get(ctx, sess.SessionID); errors.Is(getErr, ErrSessionNotFound) {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, sess.SessionID)
		}
		return fmt.Errorf("%w: %s at version %d", ErrVersionConflict, sess.SessionID, sess.Version)
	}
	sess.Version++
	sess.UpdatedAt = now
	return nil
}

// List returns sessions ordered most recently updated first. An empty
// status filters nothing.
func (s *Store) List(ctx context.Context, status Status, limit int) ([]*Session, error) {
	query := `SELECT session_id, status, mode, phase, idea, state_json, error,
            version, created_at, updated_at
        FROM sessions`
	args := make([]any, 0, 2)
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY updated_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// Delete removes a session and, via the foreign key cascade, its
// checkpoints.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}

// AppendCheckpoint records one step execution. Checkpoints are never
// updated or deleted individually.
func (s *Store) AppendCheckpoint(ctx context.Context, cp *Checkpoint) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO checkpoints (session_id, step_name, phase, input_json, output_json, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		cp.SessionID,
		cp.StepName,
		cp.Phase,
		cp.InputJSON,
		cp.OutputJSON,
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append checkpoint: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("checkpoint id: %w", err)
	}
	cp.ID = id
	cp.CreatedAt = now
	return nil
}

// Checkpoints returns a session's checkpoints in append order.
func (s *Store) Checkpoints(ctx context.Context, sessionID string) ([]*Checkpoint, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, session_id, step_name, phase, input_json, output_json, created_at
        FROM checkpoints WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []*Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		checkpoints = append(checkpoints, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return checkpoints, nil
}

// LastCheckpoint returns the most recent checkpoint for a session, or nil
// when none exist.
func (s *Store) LastCheckpoint(ctx context.Context, sessionID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, session_id, step_name, phase, input_json, output_json, created_at
        FROM checkpoints WHERE session_id = ? ORDER BY id DESC LIMIT 1`,
		sessionID,
	)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load last checkpoint: %w", err)
	}
	return cp, nil
}

// Stats returns session counts grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM sessions GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		parsed, err := ParseStatus(status)
		if err != nil {
			continue
		}
		stats[parsed] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}

// CheckHealth probes the database file and connection.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("session database path is unknown")
	}
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat session database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("session database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("session database connection unavailable")
	}
	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping session database: %w", err)
	}
	health.DatabaseReadable = true
	return health, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var status, createdAt, updatedAt string
	if err := row.Scan(
		&sess.SessionID,
		&status,
		&sess.Mode,
		&sess.Phase,
		&sess.Idea,
		&sess.StateJSON,
		&sess.Error,
		&sess.Version,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	parsed, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}
	sess.Status = parsed
	if sess.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if sess.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}
	return &sess, nil
}

func scanCheckpoint(row rowScanner) (*Checkpoint, error) {
	var cp Checkpoint
	var createdAt string
	if err := row.Scan(
		&cp.ID,
		&cp.SessionID,
		&cp.StepName,
		&cp.Phase,
		&cp.InputJSON,
		&cp.OutputJSON,
		&createdAt,
	); err != nil {
		return nil, err
	}
	var err error
	if cp.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	return &cp, nil
}

func parseTimestamp(value string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return ts, nil
}
