// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Single key/value table with automatic schema creation

package statestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	keyLastClosedTime = "lastClosedTime"
	keyPreviousToken  = "previousToken"
	keySurvey         = "survey"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path. The schema
// is created if it doesn't exist; parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "statestore")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL keeps reads cheap while the bridge writes markers
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

	logger.Info("state store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS session_state (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (s *SQLiteStore) get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM session_state WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_state (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM session_state WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// LastClosedTime returns when the previous session closed.
func (s *SQLiteStore) LastClosedTime(ctx context.Context) (time.Time, error) {
	value, err := s.get(ctx, keyLastClosedTime)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing lastClosedTime %q: %w", value, err)
	}
	return t, nil
}

// SetLastClosedTime records when the current session closed.
func (s *SQLiteStore) SetLastClosedTime(ctx context.Context, t time.Time) error {
	return s.set(ctx, keyLastClosedTime, t.Format(time.RFC3339Nano))
}

// PreviousToken returns the auth token captured from a prior session.
func (s *SQLiteStore) PreviousToken(ctx context.Context) (string, error) {
	return s.get(ctx, keyPreviousToken)
}

// SetPreviousToken records an auth token for post-session transcript access.
func (s *SQLiteStore) SetPreviousToken(ctx context.Context, token string) error {
	return s.set(ctx, keyPreviousToken, token)
}

// Survey returns the persisted survey, or ErrNotFound when none is pending.
func (s *SQLiteStore) Survey(ctx context.Context) (*Survey, error) {
	value, err := s.get(ctx, keySurvey)
	if err != nil {
		return nil, err
	}
	var survey Survey
	if err := json.Unmarshal([]byte(value), &survey); err != nil {
		return nil, fmt.Errorf("parsing survey: %w", err)
	}
	return &survey, nil
}

// SetSurvey persists the survey until it is acknowledged.
func (s *SQLiteStore) SetSurvey(ctx context.Context, survey *Survey) error {
	data, err := json.Marshal(survey)
	if err != nil {
		return fmt.Errorf("encoding survey: %w", err)
	}
	return s.set(ctx, keySurvey, string(data))
}

// ClearSurvey removes the persisted survey.
func (s *SQLiteStore) ClearSurvey(ctx context.Context) error {
	return s.delete(ctx, keySurvey)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
