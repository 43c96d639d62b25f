package location

import (
	"context"
	"sync"

	"github.com/UnknownOlympus/hermes/internal/models"
)

// Static is a positioning adapter with a fixed, externally updatable
// position. The standalone service uses it when no device integration is
// wired in; tests use Move to simulate movement.
type Static struct {
	mu       sync.RWMutex
	position models.Coordinates
	hasFix   bool
	tracking bool
}

// NewStatic creates an adapter pinned to the given position.
func NewStatic(position models.Coordinates) *Static {
	return &Static{position: position, hasFix: true}
}

// NewStaticWithoutFix creates an adapter that reports ErrNoFix until Move is
// called.
func NewStaticWithoutFix() *Static {
	return &Static{}
}

// Move updates the reported position.
func (s *Static) Move(position models.Coordinates) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = position
	s.hasFix = true
}

func (s *Static) HasForegroundPermission(_ context.Context) (bool, error)     { return true, nil }
func (s *Static) HasBackgroundPermission(_ context.Context) (bool, error)     { return true, nil }
func (s *Static) RequestForegroundPermission(_ context.Context) (bool, error) { return true, nil }
func (s *Static) RequestBackgroundPermission(_ context.Context) (bool, error) { return true, nil }

func (s *Static) CurrentLocation(_ context.Context) (models.Coordinates, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasFix {
		return models.Coordinates{}, ErrNoFix
	}
	return s.position, nil
}

func (s *Static) StartTracking(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracking = true
	return nil
}

func (s *Static) StopTracking(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracking = false
	return nil
}

func (s *Static) IsTrackingActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracking
}
