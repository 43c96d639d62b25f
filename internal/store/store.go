// Package store holds the engine's transient reminder state. The store is the
// single source of truth for computed reminders, the last sampled location and
// the tracking flag; it lives purely in memory and is never persisted, which
// is what makes the engine's no-location-history guarantee checkable.
package store

import (
	"sync"
	"time"

	"github.com/UnknownOlympus/hermes/internal/models"
)

// EventKind describes a mutation observed through Subscribe.
type EventKind string

const (
	EventUpserted EventKind = "reminder_upserted"
	EventRemoved  EventKind = "reminder_removed"
	EventCleared  EventKind = "store_cleared"
)

// Event is broadcast to subscribers after each mutation.
type Event struct {
	Kind          EventKind
	AppointmentID string // empty for store-wide events
}

// Store is a mutex-guarded reminder map with subscribe/notify semantics.
// Mutations are synchronous; subscriber channels are buffered and events are
// dropped rather than blocking a mutation on a slow observer.
type Store struct {
	mu           sync.RWMutex
	reminders    map[string]models.DepartureReminder
	lastLocation *models.Coordinates
	tracking     bool

	subscribers map[int]chan Event
	nextSubID   int
}

// New creates an empty reminder store.
func New() *Store {
	return &Store{
		reminders:   make(map[string]models.DepartureReminder),
		subscribers: make(map[int]chan Event),
	}
}

// Subscribe registers an observer. The returned cancel function unregisters
// it and closes the channel; it is safe to call more than once.
func (s *Store) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const subscriberBuffer = 16
	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Event, subscriberBuffer)
	s.subscribers[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(existing)
		}
	}
	return ch, cancel
}

// broadcast must be called with the lock held.
func (s *Store) broadcast(event Event) {
	for _, ch := range s.subscribers {
		select {
		case ch <- event:
		default: // slow observer, drop
		}
	}
}

// Upsert creates or replaces the reminder for its appointment.
func (s *Store) Upsert(reminder models.DepartureReminder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminders[reminder.AppointmentID] = reminder
	s.broadcast(Event{Kind: EventUpserted, AppointmentID: reminder.AppointmentID})
}

// Remove deletes the reminder for the given appointment, if present.
func (s *Store) Remove(appointmentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reminders[appointmentID]; !ok {
		return
	}
	delete(s.reminders, appointmentID)
	s.broadcast(Event{Kind: EventRemoved, AppointmentID: appointmentID})
}

// Get returns the reminder for the given appointment.
func (s *Store) Get(appointmentID string) (models.DepartureReminder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reminder, ok := s.reminders[appointmentID]
	return reminder, ok
}

// ListAll returns a snapshot of all reminders.
func (s *Store) ListAll() []models.DepartureReminder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.DepartureReminder, 0, len(s.reminders))
	for _, reminder := range s.reminders {
		out = append(out, reminder)
	}
	return out
}

// Count returns the number of active reminders.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reminders)
}

// RemoveWherePast removes every reminder whose arrival time is before now and
// returns the removed reminders so the caller can cancel their notifications.
func (s *Store) RemoveWherePast(now time.Time) []models.DepartureReminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []models.DepartureReminder
	for id, reminder := range s.reminders {
		if reminder.ArrivalTime.Before(now) {
			removed = append(removed, reminder)
			delete(s.reminders, id)
			s.broadcast(Event{Kind: EventRemoved, AppointmentID: id})
		}
	}
	return removed
}

// SetLocation records the most recent location sample.
func (s *Store) SetLocation(loc models.Coordinates) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLocation = &loc
}

// Location returns the last recorded location, or nil when none is held.
func (s *Store) Location() *models.Coordinates {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastLocation == nil {
		return nil
	}
	loc := *s.lastLocation
	return &loc
}

// SetTracking flips the tracking flag. Turning tracking off also drops the
// recorded location: no raw location may be held while tracking is inactive.
func (s *Store) SetTracking(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracking = active
	if !active {
		s.lastLocation = nil
	}
}

// IsTracking reports whether location tracking is currently active.
func (s *Store) IsTracking() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracking
}

// ClearAll removes every reminder and the recorded location.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminders = make(map[string]models.DepartureReminder)
	s.lastLocation = nil
	s.broadcast(Event{Kind: EventCleared})
}

// Reset restores the store to its initial state, including the tracking flag.
// Used on logout.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminders = make(map[string]models.DepartureReminder)
	s.lastLocation = nil
	s.tracking = false
	s.broadcast(Event{Kind: EventCleared})
}
