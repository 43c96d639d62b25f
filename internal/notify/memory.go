package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotificationNotFound is returned when cancelling an unknown id.
var ErrNotificationNotFound = errors.New("notification not found")

// MemoryAdapter is an in-process notification adapter. The standalone service
// uses it as its scheduling surface; tests use it to observe what the engine
// scheduled.
type MemoryAdapter struct {
	mu        sync.Mutex
	scheduled map[string]Scheduled
	contents  map[string]Content
}

// NewMemoryAdapter creates an empty in-process notification adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		scheduled: make(map[string]Scheduled),
		contents:  make(map[string]Content),
	}
}

// Schedule records the notification and returns a fresh id.
func (m *MemoryAdapter) Schedule(_ context.Context, content Content, at time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.scheduled[id] = Scheduled{ID: id, At: at, Data: content.Data}
	m.contents[id] = content
	return id, nil
}

// Cancel removes a scheduled notification.
func (m *MemoryAdapter) Cancel(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.scheduled[id]; !ok {
		return ErrNotificationNotFound
	}
	delete(m.scheduled, id)
	delete(m.contents, id)
	return nil
}

// ListScheduled returns a snapshot of all scheduled notifications.
func (m *MemoryAdapter) ListScheduled(_ context.Context) ([]Scheduled, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Scheduled, 0, len(m.scheduled))
	for _, s := range m.scheduled {
		out = append(out, s)
	}
	return out, nil
}

// Content returns the stored content of a scheduled notification, for tests
// and diagnostics.
func (m *MemoryAdapter) Content(id string) (Content, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.contents[id]
	return content, ok
}
