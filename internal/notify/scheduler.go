// Package notify builds templated, urgency-tiered notification text and
// schedules or cancels the underlying OS notification.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/UnknownOlympus/hermes/internal/models"
)

// Scheduler turns reminders into scheduled local notifications.
type Scheduler struct {
	adapter   Adapter
	translate TranslateFunc // optional; nil means built-in fallback text only
	log       *slog.Logger
	now       func() time.Time
}

// NewScheduler creates a notification scheduler. translate may be nil.
func NewScheduler(adapter Adapter, translate TranslateFunc, log *slog.Logger) *Scheduler {
	return &Scheduler{
		adapter:   adapter,
		translate: translate,
		log:       log,
		now:       time.Now,
	}
}

// ScheduleReminder schedules the departure notification for a single reminder
// at departureTime minus the buffer. A notify time already in the past is a
// no-op: the scheduler never schedules a notification in the past and returns
// an empty id.
func (s *Scheduler) ScheduleReminder(
	ctx context.Context,
	reminder models.DepartureReminder,
	bufferMinutes int,
) (string, error) {
	notifyAt := reminder.DepartureTime.Add(-time.Duration(bufferMinutes) * time.Minute)
	if !notifyAt.After(s.now()) {
		s.log.DebugContext(ctx, "Notify time already passed, skipping",
			"appointment", reminder.AppointmentID, "notify_at", notifyAt)
		return "", nil
	}

	id, err := s.adapter.Schedule(ctx, s.reminderContent(reminder), notifyAt)
	if err != nil {
		return "", fmt.Errorf("failed to schedule departure notification: %w", err)
	}

	s.log.DebugContext(ctx, "Departure notification scheduled",
		"appointment", reminder.AppointmentID, "notification", id, "notify_at", notifyAt)
	return id, nil
}

// ScheduleClustered schedules a single grouped notification for a venue
// cluster, with the same never-in-the-past timing rule.
func (s *Scheduler) ScheduleClustered(
	ctx context.Context,
	cluster models.VenueCluster,
	departureTime time.Time,
	bufferMinutes int,
) (string, error) {
	notifyAt := departureTime.Add(-time.Duration(bufferMinutes) * time.Minute)
	if !notifyAt.After(s.now()) {
		return "", nil
	}

	id, err := s.adapter.Schedule(ctx, s.clusterContent(cluster, departureTime), notifyAt)
	if err != nil {
		return "", fmt.Errorf("failed to schedule clustered notification: %w", err)
	}

	s.log.DebugContext(ctx, "Clustered departure notification scheduled",
		"appointments", len(cluster.AppointmentIDs), "notification", id, "notify_at", notifyAt)
	return id, nil
}

// Cancel removes one scheduled notification. An empty id is a no-op.
func (s *Scheduler) Cancel(ctx context.Context, notificationID string) error {
	if notificationID == "" {
		return nil
	}
	if err := s.adapter.Cancel(ctx, notificationID); err != nil {
		return fmt.Errorf("failed to cancel notification %s: %w", notificationID, err)
	}
	return nil
}

// CancelAllDeparture enumerates the OS-scheduled notifications and cancels
// only those carrying this engine's type discriminators, never other app
// notifications. It returns the number of cancelled notifications.
func (s *Scheduler) CancelAllDeparture(ctx context.Context) (int, error) {
	scheduled, err := s.adapter.ListScheduled(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list scheduled notifications: %w", err)
	}

	cancelled := 0
	for _, notification := range scheduled {
		kind := notification.Data[DataKeyType]
		if kind != TypeDepartureReminder && kind != TypeDepartureReminderCluster {
			continue
		}
		if err = s.adapter.Cancel(ctx, notification.ID); err != nil {
			return cancelled, fmt.Errorf("failed to cancel notification %s: %w", notification.ID, err)
		}
		cancelled++
	}

	if cancelled > 0 {
		s.log.InfoContext(ctx, "Cancelled departure notifications", "count", cancelled)
	}
	return cancelled, nil
}
