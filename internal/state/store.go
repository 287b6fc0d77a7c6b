package state

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const DefaultSession = "default"

// Store is the per-project session history, kept in a sqlite database next
// to the working directory. Each session is an append-only log of
// user/assistant entries; only a compact summary of each applied turn is
// recorded, never raw model output.
type Store struct {
	conn *sql.DB
}

type Entry struct {
	ID         int64
	Session    string
	Role       string // "user" | "assistant"
	Content    string
	Changes    int
	Confidence float64
	CreatedAt  time.Time
}

func Open(dbPath string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if err := migrate(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Store{conn: conn}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		name TEXT PRIMARY KEY,
		created_at DATETIME
	);
	CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		changes INTEGER NOT NULL DEFAULT 0,
		confidence REAL NOT NULL DEFAULT 0,
		created_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_entries_session ON entries(session, id);
	CREATE TABLE IF NOT EXISTS active_session (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		name TEXT NOT NULL
	);`
	_, err := db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.conn.Close()
}

// ActiveSession returns the current session name, falling back to "default".
func (s *Store) ActiveSession(ctx context.Context) (string, error) {
	var name string
	err := s.conn.QueryRowContext(ctx, "SELECT name FROM active_session WHERE id = 1").Scan(&name)
	if err == sql.ErrNoRows {
		return DefaultSession, nil
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(name) == "" {
		return DefaultSession, nil
	}
	return name, nil
}

func (s *Store) SetActiveSession(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("session name is empty")
	}
	if err := s.ensureSession(ctx, name); err != nil {
		return err
	}
	_, err := s.conn.ExecContext(ctx,
		"INSERT INTO active_session (id, name) VALUES (1, ?) ON CONFLICT(id) DO UPDATE SET name = excluded.name", name)
	return err
}

func (s *Store) ensureSession(ctx context.Context, name string) error {
	_, err := s.conn.ExecContext(ctx,
		"INSERT OR IGNORE INTO sessions (name, created_at) VALUES (?, ?)", name, time.Now())
	return err
}

func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT name FROM sessions ORDER BY name ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeleteSession removes a session and its entries. Deleting the active
// session resets the active marker to the default session.
func (s *Store) DeleteSession(ctx context.Context, name string) error {
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM entries WHERE session = ?", name); err != nil {
		return err
	}
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM sessions WHERE name = ?", name); err != nil {
		return err
	}
	active, err := s.ActiveSession(ctx)
	if err != nil {
		return err
	}
	if active == name {
		return s.SetActiveSession(ctx, DefaultSession)
	}
	return nil
}

func (s *Store) RenameSession(ctx context.Context, oldName, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return fmt.Errorf("session name is empty")
	}
	var exists int
	err := s.conn.QueryRowContext(ctx, "SELECT COUNT(1) FROM sessions WHERE name = ?", oldName).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("session %q not found", oldName)
	}
	if _, err := s.conn.ExecContext(ctx, "UPDATE sessions SET name = ? WHERE name = ?", newName, oldName); err != nil {
		return err
	}
	if _, err := s.conn.ExecContext(ctx, "UPDATE entries SET session = ? WHERE session = ?", newName, oldName); err != nil {
		return err
	}
	active, err := s.ActiveSession(ctx)
	if err != nil {
		return err
	}
	if active == oldName {
		return s.SetActiveSession(ctx, newName)
	}
	return nil
}

// Add appends an entry to the active session.
func (s *Store) Add(ctx context.Context, entry Entry) error {
	session := entry.Session
	if session == "" {
		active, err := s.ActiveSession(ctx)
		if err != nil {
			return err
		}
		session = active
	}
	if err := s.ensureSession(ctx, session); err != nil {
		return err
	}
	when := entry.CreatedAt
	if when.IsZero() {
		when = time.Now()
	}
	_, err := s.conn.ExecContext(ctx,
		"INSERT INTO entries (session, role, content, changes, confidence, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		session, entry.Role, entry.Content, entry.Changes, entry.Confidence, when)
	return err
}

// History returns the newest `limit` entries of the active session, oldest
// first. A non-positive limit returns everything.
func (s *Store) History(ctx context.Context, limit int) ([]Entry, error) {
	session, err := s.ActiveSession(ctx)
	if err != nil {
		return nil, err
	}
	query := `SELECT id, session, role, content, changes, confidence, created_at FROM (
		SELECT id, session, role, content, changes, confidence, created_at
		FROM entries WHERE session = ? ORDER BY id DESC LIMIT ?
	) ORDER BY id ASC`
	effectiveLimit := limit
	if effectiveLimit <= 0 {
		effectiveLimit = -1 // sqlite: no limit
	}
	rows, err := s.conn.QueryContext(ctx, query, session, effectiveLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Session, &e.Role, &e.Content, &e.Changes, &e.Confidence, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// EntryCount reports how many entries a session holds.
func (s *Store) EntryCount(ctx context.Context, session string) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entries WHERE session = ?", session).Scan(&n)
	return n, err
}

// Inject renders the bounded transcript included in every task, newest last.
func (s *Store) Inject(ctx context.Context, limit int) (string, error) {
	entries, err := s.History(ctx, limit)
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		switch e.Role {
		case "assistant":
			line := "Assistant: " + e.Content
			if e.Changes > 0 {
				line += fmt.Sprintf(" (Applied %d changes)", e.Changes)
			}
			lines = append(lines, line)
		default:
			lines = append(lines, "User: "+e.Content)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// Clear drops all entries of the active session.
func (s *Store) Clear(ctx context.Context) error {
	session, err := s.ActiveSession(ctx)
	if err != nil {
		return err
	}
	_, err = s.conn.ExecContext(ctx, "DELETE FROM entries WHERE session = ?", session)
	return err
}

func backupName(session string) string {
	return session + "_backup"
}

// Snapshot copies the active session's entries into a backup session,
// replacing any previous snapshot.
func (s *Store) Snapshot(ctx context.Context) error {
	session, err := s.ActiveSession(ctx)
	if err != nil {
		return err
	}
	backup := backupName(session)
	if err := s.ensureSession(ctx, backup); err != nil {
		return err
	}
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM entries WHERE session = ?", backup); err != nil {
		return err
	}
	_, err = s.conn.ExecContext(ctx,
		"INSERT INTO entries (session, role, content, changes, confidence, created_at) SELECT ?, role, content, changes, confidence, created_at FROM entries WHERE session = ? ORDER BY id ASC",
		backup, session)
	return err
}

// Restore replaces the active session's entries with the snapshot, if one
// exists. Returns false when there is nothing to restore.
func (s *Store) Restore(ctx context.Context) (bool, error) {
	session, err := s.ActiveSession(ctx)
	if err != nil {
		return false, err
	}
	backup := backupName(session)
	var count int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(1) FROM entries WHERE session = ?", backup).Scan(&count); err != nil {
		return false, err
	}
	if count == 0 {
		return false, nil
	}
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM entries WHERE session = ?", session); err != nil {
		return false, err
	}
	_, err = s.conn.ExecContext(ctx,
		"INSERT INTO entries (session, role, content, changes, confidence, created_at) SELECT ?, role, content, changes, confidence, created_at FROM entries WHERE session = ? ORDER BY id ASC",
		session, backup)
	if err != nil {
		return false, err
	}
	return true, nil
}
