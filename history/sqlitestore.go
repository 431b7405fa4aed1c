package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/petal-labs/mcpchat/core"
)

//go:embed schema.sql
var sqliteSchema string

const (
	defaultSQLiteDir = ".mcpchat"
	defaultSQLiteDB  = "history.db"

	// timeLayout is fixed width so stored times sort as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// SQLiteStoreConfig configures the SQLite transcript store.
type SQLiteStoreConfig struct {
	// DSN is the database connection string or file path.
	DSN string

	// RetentionAge deletes messages older than this duration (0 = keep forever).
	RetentionAge time.Duration

	// PruneInterval is how often to prune (default 1 hour).
	PruneInterval time.Duration
}

// SQLiteStore persists transcripts to a SQLite database in WAL mode, with
// an optional background pruner.
type SQLiteStore struct {
	db   *sql.DB
	cfg  SQLiteStoreConfig
	now  func() time.Time
	stop chan struct{}
	done chan struct{}
}

// DefaultSQLitePath returns ~/.mcpchat/history.db.
func DefaultSQLitePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("history: resolve user home: %w", err)
	}
	return filepath.Join(home, defaultSQLiteDir, defaultSQLiteDB), nil
}

// NewSQLiteStore opens (or creates) a transcript database. The parent
// directory of a plain file path is created when missing.
func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("history: sqlite dsn is required")
	}
	if cfg.PruneInterval == 0 {
		cfg.PruneInterval = time.Hour
	}
	if isFilePath(cfg.DSN) {
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("history: create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: set WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}

	s := &SQLiteStore{
		db:   db,
		cfg:  cfg,
		now:  time.Now,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if cfg.RetentionAge > 0 {
		go s.pruneLoop()
	} else {
		close(s.done)
	}
	return s, nil
}

// Record appends messages after the session's current last sequence number
// in a single transaction.
func (s *SQLiteStore) Record(ctx context.Context, sessionID string, messages []core.Message) error {
	if len(messages) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin record: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM messages WHERE session_id = ?`, sessionID,
	).Scan(&last); err != nil {
		return fmt.Errorf("history: latest seq: %w", err)
	}
	seq := int(last.Int64)

	at := s.now().UTC().Format(timeLayout)
	for _, msg := range messages {
		payload, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("history: marshal message: %w", err)
		}
		seq++
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (session_id, seq, role, time, payload) VALUES (?, ?, ?, ?, ?)`,
			sessionID, seq, string(msg.Role), at, string(payload),
		); err != nil {
			return fmt.Errorf("history: insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit record: %w", err)
	}
	return nil
}

// Sessions lists sessions, most recently updated first.
func (s *SQLiteStore) Sessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	query := `SELECT session_id, MIN(time), MAX(time), COUNT(*)
	           FROM messages GROUP BY session_id ORDER BY MAX(time) DESC, session_id ASC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list sessions: %w", err)
	}
	defer rows.Close()

	var summaries []SessionSummary
	for rows.Next() {
		var (
			summary           SessionSummary
			started, updated string
		)
		if err := rows.Scan(&summary.ID, &started, &updated, &summary.Messages); err != nil {
			return nil, fmt.Errorf("history: scan session: %w", err)
		}
		if summary.Started, err = parseTime(started); err != nil {
			return nil, err
		}
		if summary.Updated, err = parseTime(updated); err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// Transcript returns a session's messages in order.
func (s *SQLiteStore) Transcript(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, time, payload FROM messages WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("history: transcript: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry   = Entry{SessionID: sessionID}
			timeStr string
			payload string
		)
		if err := rows.Scan(&entry.Seq, &timeStr, &payload); err != nil {
			return nil, fmt.Errorf("history: scan message: %w", err)
		}
		if entry.Time, err = parseTime(timeStr); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &entry.Message); err != nil {
			return nil, fmt.Errorf("history: unmarshal message %d: %w", entry.Seq, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: transcript rows: %w", err)
	}
	if len(entries) == 0 {
		return nil, ErrSessionNotFound
	}
	return entries, nil
}

// Prune deletes messages older than RetentionAge. Exported for testing.
func (s *SQLiteStore) Prune(ctx context.Context) error {
	if s.cfg.RetentionAge <= 0 {
		return nil
	}
	cutoff := s.now().UTC().Add(-s.cfg.RetentionAge).Format(timeLayout)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE time < ?`, cutoff); err != nil {
		return fmt.Errorf("history: prune by age: %w", err)
	}
	return nil
}

// Close stops the background pruner and closes the database.
func (s *SQLiteStore) Close() error {
	select {
	case <-s.stop:
		// Already closed.
	default:
		close(s.stop)
	}
	<-s.done
	return s.db.Close()
}

func (s *SQLiteStore) pruneLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			_ = s.Prune(context.Background())
		}
	}
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("history: parse time %q: %w", value, err)
	}
	return t, nil
}

func isFilePath(dsn string) bool {
	return !strings.HasPrefix(dsn, "file:") && !strings.Contains(dsn, ":memory:")
}

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)
