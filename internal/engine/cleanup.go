package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/UnknownOlympus/hermes/internal/location"
	"github.com/UnknownOlympus/hermes/internal/notify"
	"github.com/UnknownOlympus/hermes/internal/store"
)

// CleanupOptions controls how much state CleanupAll wipes. Reset additionally
// drops the tracking flag, which is the right shape for logout.
type CleanupOptions struct {
	Reset bool
}

// Cleaner removes expired reminders and performs full teardown when the
// feature is disabled or the user logs out. It is the single place that
// enforces the rule that no location older than the current tick survives.
type Cleaner struct {
	log       *slog.Logger
	reminders *store.Store
	scheduler *notify.Scheduler
	locator   location.Adapter
}

// NewCleaner creates a cleanup enforcer over the shared reminder store.
func NewCleaner(
	log *slog.Logger,
	reminders *store.Store,
	scheduler *notify.Scheduler,
	locator location.Adapter,
) *Cleaner {
	return &Cleaner{log: log, reminders: reminders, scheduler: scheduler, locator: locator}
}

// CleanupPastReminders removes reminders whose arrival time is already behind
// the given instant and cancels their pending notifications. It returns how
// many reminders were removed.
func (c *Cleaner) CleanupPastReminders(ctx context.Context, now time.Time) int {
	removed := c.reminders.RemoveWherePast(now)
	for _, reminder := range removed {
		if !reminder.HasNotification() {
			continue
		}
		if err := c.scheduler.Cancel(ctx, reminder.NotificationID); err != nil {
			c.log.WarnContext(ctx, "Failed to cancel notification for past reminder",
				"appointment", reminder.AppointmentID, "error", err)
		}
	}
	if len(removed) > 0 {
		c.log.DebugContext(ctx, "Removed past reminders", "count", len(removed))
	}
	return len(removed)
}

// OnAppForeground is the hook the host calls when the app returns to the
// foreground, so stale reminders disappear before the UI renders them.
func (c *Cleaner) OnAppForeground(ctx context.Context) {
	c.CleanupPastReminders(ctx, time.Now())
}

// CleanupAll cancels every departure notification, stops background tracking
// and wipes the reminder store. Errors from the platform are logged and the
// first one is returned, but teardown always runs to completion.
func (c *Cleaner) CleanupAll(ctx context.Context, opts CleanupOptions) error {
	var firstErr error

	cancelled, err := c.scheduler.CancelAllDeparture(ctx)
	if err != nil {
		firstErr = fmt.Errorf("failed to cancel departure notifications: %w", err)
		c.log.WarnContext(ctx, "Failed to cancel departure notifications", "error", err)
	}

	if err = c.locator.StopTracking(ctx); err != nil {
		if firstErr == nil {
			firstErr = fmt.Errorf("failed to stop location tracking: %w", err)
		}
		c.log.WarnContext(ctx, "Failed to stop location tracking", "error", err)
	}

	count := c.reminders.Count()
	if opts.Reset {
		c.reminders.Reset()
	} else {
		c.reminders.ClearAll()
	}
	c.reminders.SetTracking(false)

	c.log.InfoContext(ctx, "Departure reminder cleanup complete",
		"reminders_removed", count, "notifications_cancelled", cancelled)
	return firstErr
}

// VerifyNoLocationHistory reports whether the store holds no stale location:
// either no location at all, or one paired with active tracking.
func (c *Cleaner) VerifyNoLocationHistory() bool {
	if c.reminders.Location() == nil {
		return true
	}
	return c.reminders.IsTracking()
}
