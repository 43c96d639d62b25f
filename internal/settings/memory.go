package settings

import (
	"context"
	"sync"

	"github.com/UnknownOlympus/hermes/internal/models"
)

// MemoryStore is an in-process settings store used when no redis is
// configured and in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	stored   models.DepartureReminderSettings
	hasValue bool
}

// NewMemoryStore creates a settings store seeded with the given settings.
func NewMemoryStore(initial models.DepartureReminderSettings) *MemoryStore {
	return &MemoryStore{stored: initial.Normalize(), hasValue: true}
}

// NewEmptyMemoryStore creates a settings store that serves defaults until the
// first Put.
func NewEmptyMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(_ context.Context) (models.DepartureReminderSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasValue {
		return models.DefaultSettings(), nil
	}
	return s.stored, nil
}

func (s *MemoryStore) Put(_ context.Context, settings models.DepartureReminderSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored = settings.Normalize()
	s.hasValue = true
	return nil
}
