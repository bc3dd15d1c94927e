package memory

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore is the durable NotesStore.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path
// and migrates it to the latest schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create memory dir: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("memory: store opened", "path", dbPath)
	return s, nil
}

// migrate applies the embedded migrations. The migrate instance is not
// closed since that would close the shared *sql.DB.
func (s *SQLiteStore) migrate() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	drv, err := sqlite.WithInstance(s.db.DB, &sqlite.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (s *SQLiteStore) Notes(agentID string) ([]Note, error) {
	var out []Note
	if err := s.db.Select(&out, `SELECT topic, text FROM notes WHERE agent_id = ? ORDER BY topic`, agentID); err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) PutNote(agentID, topic, text string) error {
	_, err := s.db.Exec(`INSERT INTO notes (agent_id, topic, text) VALUES (?, ?, ?)
		ON CONFLICT(agent_id, topic) DO UPDATE SET text = excluded.text, updated_at = strftime('%s','now')`,
		agentID, topic, text)
	if err != nil {
		return fmt.Errorf("put note: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteNote(agentID, topic string) error {
	if _, err := s.db.Exec(`DELETE FROM notes WHERE agent_id = ? AND topic = ?`, agentID, topic); err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecordToolUse(agentID, tool string, ok bool) error {
	failed := 0
	if !ok {
		failed = 1
	}
	_, err := s.db.Exec(`INSERT INTO tool_stats (agent_id, tool, calls, failures) VALUES (?, ?, 1, ?)
		ON CONFLICT(agent_id, tool) DO UPDATE SET calls = calls + 1, failures = failures + excluded.failures`,
		agentID, tool, failed)
	if err != nil {
		return fmt.Errorf("record tool use: %w", err)
	}
	return nil
}

func (s *SQLiteStore) TopTools(agentID string, n int) ([]ToolStat, error) {
	if n <= 0 {
		n = -1
	}
	var out []ToolStat
	err := s.db.Select(&out, `SELECT tool, calls, failures FROM tool_stats
		WHERE agent_id = ? ORDER BY calls DESC, tool ASC LIMIT ?`, agentID, n)
	if err != nil {
		return nil, fmt.Errorf("query tool stats: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
