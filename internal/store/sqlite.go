// ABOUTME: SQLite implementation of the SessionStore interface using modernc.org/sqlite
// ABOUTME: Provides study session persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeFormat is fixed-width so completed_at sorts lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements SessionStore using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// busy_timeout is per connection, so it goes in the DSN for every pooled conn.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Each connection to :memory: opens a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS study_sessions (
			actor_id         TEXT NOT NULL,
			id               TEXT NOT NULL,
			duration         REAL NOT NULL,
			classes_covered  TEXT NOT NULL,
			topics_covered   TEXT NOT NULL,
			key_concepts     TEXT NOT NULL,
			confidence_score REAL NOT NULL,
			summary_text     TEXT NOT NULL,
			completed_at     TEXT NOT NULL,
			PRIMARY KEY (actor_id, id),

			CHECK (duration > 0),
			CHECK (confidence_score >= 0 AND confidence_score <= 1)
		);

		CREATE INDEX IF NOT EXISTS idx_study_sessions_actor_completed
			ON study_sessions(actor_id, completed_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		check  string // Query to check if migration is needed
		apply  string // Query to apply the migration
		column string // Column name for logging
	}{
		{
			check:  `SELECT 1 FROM pragma_table_info('study_sessions') WHERE name = 'key_concepts'`,
			apply:  `ALTER TABLE study_sessions ADD COLUMN key_concepts TEXT NOT NULL DEFAULT '[]'`,
			column: "key_concepts",
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(m.check).Scan(&exists)
		if err == nil {
			// Column already exists, skip
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to study_sessions: %w", m.column, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", "study_sessions")
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveSession inserts a study session.
// Returns ErrDuplicateSession if the actor already recorded this session ID.
func (s *SQLiteStore) SaveSession(ctx context.Context, session *StudySession) error {
	classes, err := encodeList(session.ClassesCovered)
	if err != nil {
		return fmt.Errorf("encoding classes covered: %w", err)
	}
	topics, err := encodeList(session.TopicsCovered)
	if err != nil {
		return fmt.Errorf("encoding topics covered: %w", err)
	}
	concepts, err := encodeList(session.KeyConcepts)
	if err != nil {
		return fmt.Errorf("encoding key concepts: %w", err)
	}

	query := `
		INSERT INTO study_sessions (
			actor_id, id, duration, classes_covered, topics_covered, key_concepts,
			confidence_score, summary_text, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		session.ActorID,
		session.ID,
		session.Duration,
		classes,
		topics,
		concepts,
		session.ConfidenceScore,
		session.SummaryText,
		session.CompletedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateSession
		}
		return fmt.Errorf("inserting study session: %w", err)
	}

	s.logger.Debug("saved study session", "id", session.ID, "actor", session.ActorID)
	return nil
}

// isConstraintViolation checks if the error is a SQLite UNIQUE or PRIMARY KEY constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "PRIMARY KEY constraint failed")
}

const sessionColumns = `
	actor_id, id, duration, classes_covered, topics_covered, key_concepts,
	confidence_score, summary_text, completed_at
`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*StudySession, error) {
	var sess StudySession
	var classes, topics, concepts, completedAt string

	if err := row.Scan(
		&sess.ActorID,
		&sess.ID,
		&sess.Duration,
		&classes,
		&topics,
		&concepts,
		&sess.ConfidenceScore,
		&sess.SummaryText,
		&completedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if sess.ClassesCovered, err = decodeList(classes); err != nil {
		return nil, fmt.Errorf("decoding classes covered: %w", err)
	}
	if sess.TopicsCovered, err = decodeList(topics); err != nil {
		return nil, fmt.Errorf("decoding topics covered: %w", err)
	}
	if sess.KeyConcepts, err = decodeList(concepts); err != nil {
		return nil, fmt.Errorf("decoding key concepts: %w", err)
	}
	if sess.CompletedAt, err = time.Parse(timeFormat, completedAt); err != nil {
		return nil, fmt.Errorf("parsing completed_at: %w", err)
	}
	return &sess, nil
}

// GetSession retrieves one session.
// Returns ErrNotFound if the session doesn't exist.
func (s *SQLiteStore) GetSession(ctx context.Context, actorID, id string) (*StudySession, error) {
	query := `SELECT ` + sessionColumns + ` FROM study_sessions WHERE actor_id = ? AND id = ?`

	sess, err := scanSession(s.db.QueryRowContext(ctx, query, actorID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying study session: %w", err)
	}
	return sess, nil
}

// ListSessions returns the actor's sessions, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, actorID string, limit int) ([]*StudySession, error) {
	query := `SELECT ` + sessionColumns + ` FROM study_sessions WHERE actor_id = ? ORDER BY completed_at DESC, id ASC`
	args := []any{actorID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying study sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*StudySession{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning study session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating study sessions: %w", err)
	}
	return sessions, nil
}

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeList(raw string) ([]string, error) {
	items := []string{}
	if raw == "" {
		return items, nil
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []string{}
	}
	return items, nil
}
