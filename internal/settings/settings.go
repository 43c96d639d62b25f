// Package settings persists the user's departure-reminder preferences.
// Settings contain no location data, so unlike reminders they may be durable.
package settings

import (
	"context"

	"github.com/UnknownOlympus/hermes/internal/models"
)

// Store reads and writes the durable reminder settings. Get never fails on
// absence: it returns the defaults when nothing has been stored yet.
type Store interface {
	Get(ctx context.Context) (models.DepartureReminderSettings, error)
	Put(ctx context.Context, settings models.DepartureReminderSettings) error
}
