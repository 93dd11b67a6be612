package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gutcheck/internal/logging"
	"gutcheck/internal/memory"
	"gutcheck/internal/types"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteStore is the LogStore and the memory.PhraseStore on a single SQLite
// database.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Open creates or opens the database at path and brings its schema up to
// date.
func Open(path string) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "store.Open")
	defer timer.Stop()

	if path == "" {
		return nil, fmt.Errorf("database path required")
	}
	logging.Store("Opening log store at: %s", path)

	if path != MemoryPath {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.StoreError("Failed to create directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.StoreError("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps :memory: a single database and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if path != MemoryPath {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		logging.StoreError("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("Log store ready")
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS log_entries (
		ref TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		intent TEXT NOT NULL,
		slots TEXT NOT NULL DEFAULT '{}',
		text TEXT NOT NULL DEFAULT '',
		logged_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_log_user_time ON log_entries(user_id, logged_at);

	CREATE TABLE IF NOT EXISTS learned_phrases (
		user_id TEXT NOT NULL,
		phrase TEXT NOT NULL,
		intent TEXT NOT NULL,
		slots TEXT NOT NULL DEFAULT '{}',
		hits INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, phrase)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// =============================================================================
// LOG ENTRIES
// =============================================================================

// Append stores row and returns its new ref.
func (s *SQLiteStore) Append(ctx context.Context, row Row) (RowRef, error) {
	if row.UserID == "" {
		return "", fmt.Errorf("user id required")
	}
	if row.LoggedAt.IsZero() {
		row.LoggedAt = time.Now()
	}
	if row.Source == "" {
		row.Source = types.SourceRules
	}
	slots, err := json.Marshal(row.Slots)
	if err != nil {
		return "", fmt.Errorf("failed to encode slots: %w", err)
	}
	ref := RowRef(uuid.NewString())

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO log_entries (ref, user_id, intent, slots, text, confidence, source, logged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, string(ref), row.UserID, string(row.Intent), string(slots), row.Text, row.Confidence, row.Source, row.LoggedAt.UnixMilli())
	if err != nil {
		logging.StoreError("Failed to append %s row for user=%s: %v", row.Intent, row.UserID, err)
		return "", fmt.Errorf("failed to append row: %w", err)
	}
	logging.StoreDebug("Appended %s row %s for user=%s", row.Intent, ref, row.UserID)
	return ref, nil
}

// Query returns the user's live rows matching f, newest first.
func (s *SQLiteStore) Query(ctx context.Context, userID string, f Filter) ([]Row, error) {
	var (
		where = []string{"user_id = ?", "undone_at IS NULL"}
		args  = []any{userID}
	)
	if len(f.Intents) > 0 {
		marks := make([]string, len(f.Intents))
		for i, in := range f.Intents {
			marks[i] = "?"
			args = append(args, string(in))
		}
		where = append(where, "intent IN ("+strings.Join(marks, ", ")+")")
	}
	if !f.Since.IsZero() {
		where = append(where, "logged_at >= ?")
		args = append(args, f.Since.UnixMilli())
	}
	if !f.Until.IsZero() {
		where = append(where, "logged_at < ?")
		args = append(args, f.Until.UnixMilli())
	}
	query := `SELECT ref, user_id, intent, slots, text, confidence, source, logged_at
		FROM log_entries WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY logged_at DESC, rowid DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r      Row
			ref    string
			intent string
			slots  string
			at     int64
		)
		if err := rows.Scan(&ref, &r.UserID, &intent, &slots, &r.Text, &r.Confidence, &r.Source, &at); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.Ref = RowRef(ref)
		r.Intent = types.Intent(intent)
		r.LoggedAt = time.UnixMilli(at)
		if err := json.Unmarshal([]byte(slots), &r.Slots); err != nil {
			logging.Get(logging.CategoryStore).Warn("Row %s has unreadable slots: %v", ref, err)
			r.Slots = types.Slots{}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Latest returns the user's newest live row.
func (s *SQLiteStore) Latest(ctx context.Context, userID string) (Row, error) {
	rows, err := s.Query(ctx, userID, Filter{Limit: 1})
	if err != nil {
		return Row{}, err
	}
	if len(rows) == 0 {
		return Row{}, ErrNotFound
	}
	return rows[0], nil
}

// Undo marks a row as undone. Undoing twice returns ErrNotFound.
func (s *SQLiteStore) Undo(ctx context.Context, ref RowRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE log_entries SET undone_at = ? WHERE ref = ? AND undone_at IS NULL`,
		time.Now().UnixMilli(), string(ref))
	if err != nil {
		return fmt.Errorf("failed to undo row: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to undo row: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	logging.Store("Undid row %s", ref)
	return nil
}

// =============================================================================
// LEARNED PHRASES
// =============================================================================

// SavePhrase upserts a learned phrase. Re-learning bumps its hit count.
func (s *SQLiteStore) SavePhrase(ctx context.Context, userID, normalized string, p memory.LearnedPhrase) error {
	if normalized == "" {
		return fmt.Errorf("phrase text required")
	}
	raw, err := json.Marshal(p.Slots)
	if err != nil {
		return fmt.Errorf("failed to encode slots: %w", err)
	}
	now := time.Now().UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO learned_phrases (user_id, phrase, intent, slots, hits, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(user_id, phrase) DO UPDATE SET
			intent = excluded.intent,
			slots = excluded.slots,
			hits = hits + 1,
			updated_at = excluded.updated_at
	`, userID, normalized, string(p.Intent), string(raw), now, now)
	if err != nil {
		logging.StoreError("Failed to save learned phrase: %v", err)
		return fmt.Errorf("failed to save phrase: %w", err)
	}
	logging.StoreDebug("Learned phrase stored: user=%s intent=%s", userID, p.Intent)
	return nil
}

// Phrase returns a learned phrase, or nil when the user never taught it.
func (s *SQLiteStore) Phrase(ctx context.Context, userID, normalized string) (*memory.LearnedPhrase, error) {
	var intent, raw string
	s.mu.RLock()
	err := s.db.QueryRowContext(ctx,
		`SELECT intent, slots FROM learned_phrases WHERE user_id = ? AND phrase = ?`,
		userID, normalized).Scan(&intent, &raw)
	s.mu.RUnlock()
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load phrase: %w", err)
	}
	p := &memory.LearnedPhrase{Intent: types.Intent(intent)}
	if err := json.Unmarshal([]byte(raw), &p.Slots); err != nil {
		return nil, fmt.Errorf("%w: %v", memory.ErrMalformedPayload, err)
	}
	return p, nil
}

// PhraseCount returns how many phrases the user has taught.
func (s *SQLiteStore) PhraseCount(ctx context.Context, userID string) (int, error) {
	var n int
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM learned_phrases WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count phrases: %w", err)
	}
	return n, nil
}
