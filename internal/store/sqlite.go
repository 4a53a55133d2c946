package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"github.com/amishk599/vacancybot/internal/model"
)

var _ model.TemplateStore = (*SQLiteStore)(nil)

// SQLiteStore keeps templates in a SQLite database, one row per user.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures the
// templates table exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Verify the connection is alive.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	createTable := `CREATE TABLE IF NOT EXISTS templates (
		user_id     TEXT PRIMARY KEY,
		template    TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	)`
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating templates table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SetTemplate upserts the user's template.
func (s *SQLiteStore) SetTemplate(userID, text, description string) error {
	_, err := s.db.Exec(`INSERT INTO templates (user_id, template, description, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			template = excluded.template,
			description = excluded.description,
			updated_at = excluded.updated_at`,
		userID, text, description)
	if err != nil {
		return fmt.Errorf("setting template for %s: %w", userID, err)
	}
	return nil
}

// UpdateDescription changes only the description. Zero affected rows means the
// user has no template, which is not an error.
func (s *SQLiteStore) UpdateDescription(userID, description string) error {
	_, err := s.db.Exec(
		"UPDATE templates SET description = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?",
		description, userID)
	if err != nil {
		return fmt.Errorf("updating description for %s: %w", userID, err)
	}
	return nil
}

// GetTemplate returns the user's template, if any.
func (s *SQLiteStore) GetTemplate(userID string) (model.Template, bool, error) {
	var t model.Template
	err := s.db.QueryRow("SELECT template, description FROM templates WHERE user_id = ?", userID).
		Scan(&t.Text, &t.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Template{}, false, nil
	}
	if err != nil {
		return model.Template{}, false, fmt.Errorf("getting template for %s: %w", userID, err)
	}
	return t, true, nil
}

// ImportJSON copies every entry of a JSON template file into the database,
// overwriting rows for the same users. It returns the number imported.
func (s *SQLiteStore) ImportJSON(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	entries := make(map[string]fileEntry)
	if err := json.Unmarshal(raw, &entries); err != nil {
		return 0, fmt.Errorf("parsing %s: %w", path, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning import: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO templates (user_id, template, description) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET template = excluded.template, description = excluded.description`)
	if err != nil {
		return 0, fmt.Errorf("preparing import: %w", err)
	}
	defer stmt.Close()

	for userID, e := range entries {
		text := e.Template
		if text == "" {
			text = e.Example
		}
		if _, err := stmt.Exec(userID, text, e.Description); err != nil {
			return 0, fmt.Errorf("importing %s: %w", userID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing import: %w", err)
	}
	return len(entries), nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
