// Package clientstate persists the device's local session and offline queue
// in a SQLite file under the user's data directory. It holds the session
// tokens, the in-flight login session id, the last known note snapshot and
// the queue of writes made while offline.
package clientstate

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/fleetsapp/fleets/internal/convert"
	"github.com/fleetsapp/fleets/internal/model"
	"github.com/fleetsapp/fleets/internal/notebook"
)

const (
	keySessionID = "login_session_id"
	keyTokens    = "tokens"
)

// State wraps the local SQLite database.
type State struct {
	db *sql.DB
}

// Open opens (or creates) the state database in dataDir and ensures the
// schema. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*State, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "fleets.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single connection avoids "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &State{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return s, nil
}

func (s *State) Close() error { return s.db.Close() }

func (s *State) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS notes (
			id   TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			pos  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pending_ops (
			seq  INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			note TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// --- kv ---

func (s *State) getKV(key string) (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return v, err
}

func (s *State) setKV(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

func (s *State) deleteKV(key string) error {
	_, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key)
	return err
}

// --- login session id (authflow.Persistence) ---

// SessionID returns the persisted in-flight login session id, or "" when no
// handshake is in progress.
func (s *State) SessionID() (string, error) { return s.getKV(keySessionID) }

func (s *State) SetSessionID(id string) error { return s.setKV(keySessionID, id) }

func (s *State) ClearSessionID() error { return s.deleteKV(keySessionID) }

// --- tokens ---

// Tokens returns the stored session credentials; ok is false when the device
// is logged out.
func (s *State) Tokens() (t model.Tokens, ok bool, err error) {
	raw, err := s.getKV(keyTokens)
	if err != nil || raw == "" {
		return model.Tokens{}, false, err
	}
	var w convert.TokensWire
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return model.Tokens{}, false, fmt.Errorf("decoding stored tokens: %w", err)
	}
	t, err = convert.FromWireTokens(w)
	if err != nil {
		return model.Tokens{}, false, fmt.Errorf("decoding stored tokens: %w", err)
	}
	return t, true, nil
}

func (s *State) SetTokens(t model.Tokens) error {
	raw, err := json.Marshal(convert.ToWireTokens(t))
	if err != nil {
		return fmt.Errorf("encoding tokens: %w", err)
	}
	return s.setKV(keyTokens, string(raw))
}

func (s *State) ClearTokens() error { return s.deleteKV(keyTokens) }

// --- note snapshot ---

// SaveSnapshot replaces the offline note snapshot with the given list,
// preserving its order.
func (s *State) SaveSnapshot(notes []model.Note) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM notes"); err != nil {
		return err
	}
	for i, n := range notes {
		raw, err := json.Marshal(convert.ToWireNote(n))
		if err != nil {
			return fmt.Errorf("encoding note %s: %w", n.ID, err)
		}
		if _, err := tx.Exec("INSERT INTO notes (id, data, pos) VALUES (?, ?, ?)", n.ID.String(), string(raw), i); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Snapshot returns the stored notes in saved order.
func (s *State) Snapshot() ([]model.Note, error) {
	rows, err := s.db.Query("SELECT data FROM notes ORDER BY pos ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []model.Note
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var w convert.NoteWire
		if err := json.Unmarshal([]byte(raw), &w); err != nil {
			return nil, fmt.Errorf("decoding stored note: %w", err)
		}
		n, err := convert.FromWireNote(w)
		if err != nil {
			return nil, fmt.Errorf("decoding stored note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// --- pending op queue (notebook.OpQueue) ---

// Enqueue appends a write that could not reach the server yet.
func (s *State) Enqueue(op notebook.Op) error {
	raw, err := json.Marshal(convert.ToWireNote(op.Note))
	if err != nil {
		return fmt.Errorf("encoding queued op: %w", err)
	}
	_, err = s.db.Exec("INSERT INTO pending_ops (kind, note) VALUES (?, ?)", string(op.Kind), string(raw))
	return err
}

// List returns all queued ops in enqueue order.
func (s *State) List() ([]notebook.QueuedOp, error) {
	rows, err := s.db.Query("SELECT seq, kind, note FROM pending_ops ORDER BY seq ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []notebook.QueuedOp
	for rows.Next() {
		var (
			seq  int64
			kind string
			raw  string
		)
		if err := rows.Scan(&seq, &kind, &raw); err != nil {
			return nil, err
		}
		var w convert.NoteWire
		if err := json.Unmarshal([]byte(raw), &w); err != nil {
			return nil, fmt.Errorf("decoding queued op: %w", err)
		}
		n, err := convert.FromWireNote(w)
		if err != nil {
			return nil, fmt.Errorf("decoding queued op: %w", err)
		}
		ops = append(ops, notebook.QueuedOp{
			Seq: seq,
			Op:  notebook.Op{Kind: notebook.OpKind(kind), Note: n},
		})
	}
	return ops, rows.Err()
}

// Delete removes a queued op after it has been replayed.
func (s *State) Delete(seq int64) error {
	_, err := s.db.Exec("DELETE FROM pending_ops WHERE seq = ?", seq)
	return err
}
