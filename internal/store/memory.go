package store

import (
	"sync"

	"github.com/amishk599/vacancybot/internal/model"
)

var _ model.TemplateStore = (*MemoryStore)(nil)

// MemoryStore is a non-durable store used by tests, dry runs and the console
// when nothing should touch disk.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]model.Template
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]model.Template)}
}

func (s *MemoryStore) SetTemplate(userID, text, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[userID] = model.Template{Text: text, Description: description}
	return nil
}

func (s *MemoryStore) UpdateDescription(userID, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.data[userID]; ok {
		t.Description = description
		s.data[userID] = t
	}
	return nil
}

func (s *MemoryStore) GetTemplate(userID string) (model.Template, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.data[userID]
	return t, ok, nil
}
