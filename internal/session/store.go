package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Store persists finished session transcripts in a SQLite database. The
// core loop only ever appends to the in-memory Context; persistence is the
// surrounding CLI layer's concern and goes through here.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Summary describes one stored session.
type Summary struct {
	ID          string
	Created     time.Time
	Instruction string
	Entries     int
}

// OpenStore opens (creating if needed) the session database at dbPath.
func OpenStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS sessions (
  id TEXT PRIMARY KEY,
  created_at TEXT NOT NULL,
  instruction TEXT,
  entry_count INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
  session_id TEXT NOT NULL,
  seq INTEGER NOT NULL,
  payload TEXT NOT NULL,
  PRIMARY KEY (session_id, seq)
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Save writes the full transcript of a session, replacing any previous
// snapshot with the same ID.
func (s *Store) Save(ctx *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := ctx.Entries()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if _, err := tx.Exec(`INSERT OR REPLACE INTO sessions (id, created_at, instruction, entry_count) VALUES (?, ?, ?, ?)`,
		ctx.ID(), ctx.Created().UTC().Format(time.RFC3339), firstInstruction(entries), len(entries)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert session: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM entries WHERE session_id = ?`, ctx.ID()); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear entries: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO entries (session_id, seq, payload) VALUES (?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		payload, err := json.Marshal(e)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("marshal entry %d: %w", i, err)
		}
		if _, err := stmt.Exec(ctx.ID(), i, string(payload)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert entry %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LoadEntries returns the stored transcript for a session ID.
func (s *Store) LoadEntries(sessionID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT payload FROM entries WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("select entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		var e Entry
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("unmarshal entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return entries, nil
}

// List returns summaries of all stored sessions, newest first.
func (s *Store) List() ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT id, created_at, instruction, entry_count FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select sessions: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var (
			summary Summary
			created string
		)
		if err := rows.Scan(&summary.ID, &created, &summary.Instruction, &summary.Entries); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			summary.Created = t
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return summaries, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func firstInstruction(entries []Entry) string {
	for _, e := range entries {
		if e.Kind == EntryInstruction {
			return e.Instruction
		}
	}
	return ""
}
