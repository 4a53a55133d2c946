package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/amishk599/vacancybot/internal/model"
)

var _ model.TemplateStore = (*JSONStore)(nil)

// JSONStore keeps every template in one human-readable JSON file.
// The in-memory map is authoritative; each mutation rewrites the whole file
// before returning.
type JSONStore struct {
	mu     sync.Mutex
	path   string
	data   map[string]model.Template
	logger *slog.Logger
}

// fileEntry is the on-disk shape of one template. Older files used "example"
// for the template text.
type fileEntry struct {
	Template    string `json:"template"`
	Description string `json:"description"`
	Example     string `json:"example,omitempty"`
}

// NewJSONStore loads path into memory. A missing file yields an empty store.
// A corrupt file is logged and also yields an empty store; it is overwritten
// on the next successful write.
func NewJSONStore(path string, logger *slog.Logger) *JSONStore {
	s := &JSONStore{
		path:   path,
		data:   make(map[string]model.Template),
		logger: logger,
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s
	}
	if err != nil {
		logger.Error("template store unreadable, starting empty", "path", path, "error", err)
		return s
	}

	entries := make(map[string]fileEntry)
	if err := json.Unmarshal(raw, &entries); err != nil {
		logger.Error("template store corrupt, starting empty", "path", path, "error", err)
		return s
	}
	for userID, e := range entries {
		text := e.Template
		if text == "" {
			text = e.Example
		}
		s.data[userID] = model.Template{Text: text, Description: e.Description}
	}
	logger.Debug("template store loaded", "path", path, "templates", len(s.data))
	return s
}

// SetTemplate replaces the user's template wholesale and persists the store.
func (s *JSONStore) SetTemplate(userID, text, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.data[userID]
	s.data[userID] = model.Template{Text: text, Description: description}
	if err := s.persist(); err != nil {
		s.restore(userID, prev, existed)
		return fmt.Errorf("setting template for %s: %w", userID, err)
	}
	return nil
}

// UpdateDescription changes only the description. It is a no-op when the user
// has no template.
func (s *JSONStore) UpdateDescription(userID, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.data[userID]
	if !ok {
		return nil
	}
	s.data[userID] = model.Template{Text: prev.Text, Description: description}
	if err := s.persist(); err != nil {
		s.data[userID] = prev
		return fmt.Errorf("updating description for %s: %w", userID, err)
	}
	return nil
}

// GetTemplate returns the user's template, if any.
func (s *JSONStore) GetTemplate(userID string) (model.Template, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.data[userID]
	return t, ok, nil
}

// Len returns the number of stored templates.
func (s *JSONStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func (s *JSONStore) restore(userID string, prev model.Template, existed bool) {
	if existed {
		s.data[userID] = prev
	} else {
		delete(s.data, userID)
	}
}

// persist writes the whole map to a temp file and renames it over the target,
// so readers of the file never see a partial write. Caller holds s.mu.
func (s *JSONStore) persist() error {
	entries := make(map[string]fileEntry, len(s.data))
	for userID, t := range s.data {
		entries[userID] = fileEntry{Template: t.Text, Description: t.Description}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encoding template store: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing template store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing template store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing template store: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing template store: %w", err)
	}
	return nil
}
