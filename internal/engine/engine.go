// Package engine contains the background task orchestrator that ties
// settings, appointments, location sampling, route calculation, clustering,
// the reminder store and the notification scheduler together, plus the
// cleanup enforcer guarding the no-location-history invariant.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/UnknownOlympus/hermes/internal/appointments"
	"github.com/UnknownOlympus/hermes/internal/cluster"
	"github.com/UnknownOlympus/hermes/internal/geo"
	"github.com/UnknownOlympus/hermes/internal/location"
	"github.com/UnknownOlympus/hermes/internal/metrics"
	"github.com/UnknownOlympus/hermes/internal/models"
	"github.com/UnknownOlympus/hermes/internal/notify"
	"github.com/UnknownOlympus/hermes/internal/routing"
	"github.com/UnknownOlympus/hermes/internal/settings"
	"github.com/UnknownOlympus/hermes/internal/store"
)

const (
	// LookaheadWindow is the horizon within which appointments get reminders.
	LookaheadWindow = 6 * time.Hour
	// movementThresholdMeters is how far the user must move before an
	// already-notified reminder is recomputed.
	movementThresholdMeters = 200.0
)

// State is the orchestrator's coarse lifecycle state.
type State string

const (
	StateIdle     State = "idle"     // no tracking, no reminders expected
	StateScanning State = "scanning" // upcoming appointments exist, acquiring location
	StateTracking State = "tracking" // location tracking active, ticks running
)

// Engine is the periodic orchestrator. One tick runs to completion before the
// next is dispatched; the per-appointment loop is strictly sequential to
// respect the route calculator's single rate limiter and keep store mutations
// deterministic.
type Engine struct {
	log       *slog.Logger
	settings  settings.Store
	provider  appointments.Provider
	locator   location.Adapter
	routes    *routing.Calculator
	reminders *store.Store
	scheduler *notify.Scheduler
	cleaner   *Cleaner
	metrics   *metrics.Metrics
	interval  time.Duration
	lookahead time.Duration

	mu    sync.RWMutex
	state State

	now func() time.Time
}

// NewEngine creates the orchestrator. The tick interval is how often Run
// checks for work; the host may instead call RunCheck directly from its own
// scheduler.
func NewEngine(
	log *slog.Logger,
	settingsStore settings.Store,
	provider appointments.Provider,
	locator location.Adapter,
	routes *routing.Calculator,
	reminders *store.Store,
	scheduler *notify.Scheduler,
	cleaner *Cleaner,
	appMetrics *metrics.Metrics,
	interval time.Duration,
) *Engine {
	return &Engine{
		log:       log,
		settings:  settingsStore,
		provider:  provider,
		locator:   locator,
		routes:    routes,
		reminders: reminders,
		scheduler: scheduler,
		cleaner:   cleaner,
		metrics:   appMetrics,
		interval:  interval,
		lookahead: LookaheadWindow,
		state:     StateIdle,
		now:       time.Now,
	}
}

// State returns the orchestrator's current lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != s {
		e.log.Debug("Engine state changed", "from", e.state, "to", s)
		e.state = s
	}
}

// Run drives periodic ticks until the context is canceled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.log.InfoContext(ctx, "Departure reminder engine started...")

	for {
		select {
		case <-ctx.Done():
			e.log.InfoContext(ctx, "Departure reminder engine stopped.")
			return
		case <-ticker.C:
			if err := e.RunCheck(ctx); err != nil {
				e.log.ErrorContext(ctx, "Reminder check failed", "error", err)
			}
		}
	}
}

// RunCheck executes one orchestrator tick. Location and routing failures are
// recoverable and degrade to the fixed-estimate fallback; only settings,
// appointment-source and unexpected platform failures surface as errors.
func (e *Engine) RunCheck(ctx context.Context) error {
	started := e.now()
	defer func() {
		e.metrics.TickSeconds.Observe(time.Since(started).Seconds())
		e.metrics.ActiveReminders.Set(float64(e.reminders.Count()))
	}()

	userSettings, err := e.settings.Get(ctx)
	if err != nil {
		e.metrics.TicksTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to read reminder settings: %w", err)
	}

	if !userSettings.Enabled {
		e.metrics.TicksTotal.WithLabelValues("disabled").Inc()
		return e.handleDisabled(ctx)
	}

	userLocation, locErr := e.sampleLocation(ctx)
	if locErr != nil {
		e.log.WarnContext(ctx, "Location unavailable, running fallback path", "error", locErr)
		if err = e.runFallback(ctx, userSettings); err != nil {
			e.metrics.TicksTotal.WithLabelValues("error").Inc()
			return err
		}
		e.metrics.TicksTotal.WithLabelValues("fallback").Inc()
		return nil
	}
	e.reminders.SetLocation(userLocation)

	upcoming, err := e.provider.Upcoming(ctx, e.lookahead)
	if err != nil {
		e.metrics.TicksTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to fetch upcoming appointments: %w", err)
	}
	if len(upcoming) == 0 {
		e.stopTracking(ctx)
		e.setState(StateIdle)
		e.purgePast(ctx)
		e.metrics.TicksTotal.WithLabelValues("empty").Inc()
		return nil
	}

	byID := make(map[string]models.UpcomingAppointment, len(upcoming))
	for _, appt := range upcoming {
		byID[appt.ID] = appt
	}

	// Clustering sorts by start time, which also fixes processing order.
	clusters := cluster.ClusterNearbyVenues(upcoming, userSettings.VenueProximityMeters)
	for _, venueCluster := range clusters {
		e.processCluster(ctx, venueCluster, byID, userSettings, userLocation)
	}

	// Purge always runs after all upserts so a reminder is never both
	// computed and discarded as past within the same tick.
	e.purgePast(ctx)
	e.metrics.TicksTotal.WithLabelValues("success").Inc()
	return nil
}

// handleDisabled tears the engine down when the feature is switched off.
func (e *Engine) handleDisabled(ctx context.Context) error {
	if e.State() == StateIdle && e.reminders.Count() == 0 && !e.reminders.IsTracking() {
		return nil
	}
	e.log.InfoContext(ctx, "Departure reminders disabled, cleaning up")
	e.setState(StateIdle)
	return e.cleaner.CleanupAll(ctx, CleanupOptions{})
}

// sampleLocation acquires the current position and keeps the tracking state
// machine moving: Scanning while permissions are being acquired, Tracking
// once background tracking runs.
func (e *Engine) sampleLocation(ctx context.Context) (models.Coordinates, error) {
	granted, err := e.locator.HasForegroundPermission(ctx)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("failed to check location permission: %w", err)
	}
	if !granted {
		e.setState(StateScanning)
		granted, err = e.locator.RequestForegroundPermission(ctx)
		if err != nil {
			return models.Coordinates{}, fmt.Errorf("failed to request location permission: %w", err)
		}
		if !granted {
			return models.Coordinates{}, location.ErrPermissionDenied
		}
	}

	position, err := e.locator.CurrentLocation(ctx)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("failed to get current location: %w", err)
	}

	e.ensureTracking(ctx)
	return position, nil
}

// ensureTracking starts background tracking when the background permission is
// available. A denied background permission keeps the engine in Scanning: it
// still works off foreground fixes.
func (e *Engine) ensureTracking(ctx context.Context) {
	if e.locator.IsTrackingActive() {
		e.reminders.SetTracking(true)
		e.setState(StateTracking)
		return
	}

	granted, err := e.locator.HasBackgroundPermission(ctx)
	if err != nil {
		e.log.WarnContext(ctx, "Failed to check background permission", "error", err)
		return
	}
	if !granted {
		granted, err = e.locator.RequestBackgroundPermission(ctx)
		if err != nil || !granted {
			e.setState(StateScanning)
			return
		}
	}

	if err = e.locator.StartTracking(ctx); err != nil {
		e.log.WarnContext(ctx, "Failed to start background tracking", "error", err)
		e.setState(StateScanning)
		return
	}
	e.reminders.SetTracking(true)
	e.setState(StateTracking)
}

func (e *Engine) stopTracking(ctx context.Context) {
	if err := e.locator.StopTracking(ctx); err != nil {
		e.log.WarnContext(ctx, "Failed to stop background tracking", "error", err)
	}
	e.reminders.SetTracking(false)
}

// processCluster computes reminders for every member of a venue cluster.
// Single-member clusters get an individual notification; multi-member
// clusters get one grouped notification recorded on the earliest member.
func (e *Engine) processCluster(
	ctx context.Context,
	venueCluster models.VenueCluster,
	byID map[string]models.UpcomingAppointment,
	userSettings models.DepartureReminderSettings,
	userLocation models.Coordinates,
) {
	grouped := len(venueCluster.AppointmentIDs) > 1

	var earliest, carrier *models.DepartureReminder
	for _, id := range venueCluster.AppointmentIDs {
		appt, ok := byID[id]
		if !ok {
			continue
		}
		reminder, active := e.processAppointment(ctx, appt, userSettings, userLocation, grouped)
		if !active {
			continue
		}
		if earliest == nil || reminder.DepartureTime.Before(earliest.DepartureTime) {
			earliest = &reminder
		}
		if reminder.HasNotification() && reminder.ClusterNotification {
			carrier = &reminder
		}
	}

	if !grouped || earliest == nil {
		return
	}

	// The grouped notification is anchored on the earliest member. When an
	// earlier appointment joins, the old carrier's notification is replaced.
	if carrier != nil {
		if carrier.AppointmentID == earliest.AppointmentID {
			return
		}
		if !e.cancelNotification(ctx, *carrier) {
			return
		}
		carrier.NotificationID = ""
		carrier.NotificationScheduledAt = time.Time{}
		carrier.ClusterNotification = false
		e.reminders.Upsert(*carrier)
	}

	notificationID, err := e.scheduler.ScheduleClustered(
		ctx, venueCluster, earliest.DepartureTime, userSettings.BufferMinutes)
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to schedule clustered notification",
			"appointments", venueCluster.AppointmentIDs, "error", err)
		return
	}
	if notificationID == "" {
		return
	}

	earliest.NotificationID = notificationID
	earliest.NotificationScheduledAt = e.now()
	earliest.ClusterNotification = true
	e.reminders.Upsert(*earliest)
	e.metrics.NotificationsScheduled.WithLabelValues("cluster").Inc()
}

// processAppointment runs the per-appointment part of the tick: arrival
// suppression, the movement-skip guard, route calculation with fallback
// substitution, the store upsert and (unless grouped) notification
// scheduling. It returns the resulting reminder and whether one is active.
func (e *Engine) processAppointment(
	ctx context.Context,
	appt models.UpcomingAppointment,
	userSettings models.DepartureReminderSettings,
	userLocation models.Coordinates,
	grouped bool,
) (models.DepartureReminder, bool) {
	existing, hasExisting := e.reminders.Get(appt.ID)

	// The user has already arrived: suppress and drop any pending reminder.
	if cluster.IsNearVenue(userLocation, appt.VenueLocation, userSettings.VenueProximityMeters) {
		if hasExisting {
			e.log.DebugContext(ctx, "User arrived at venue, removing reminder", "appointment", appt.ID)
			e.cancelNotification(ctx, existing)
			e.reminders.Remove(appt.ID)
		}
		return models.DepartureReminder{}, false
	}

	// No material movement since the last computation: skip the backend but
	// still reconcile the notification kind, since cluster membership may
	// have changed without the user moving.
	if hasExisting && existing.HasNotification() &&
		geo.Distance(userLocation, existing.UserLocation) <= movementThresholdMeters {
		return e.reconcileNotification(ctx, existing, userSettings, grouped), true
	}

	targetArrival := appt.StartTime.Add(-time.Duration(userSettings.BufferMinutes) * time.Minute)
	route, err := e.routes.CalculateRoute(ctx, userLocation, appt.VenueLocation, targetArrival)
	source := "backend"
	if err != nil {
		var routeErr *routing.RouteError
		if !errors.As(err, &routeErr) {
			e.log.ErrorContext(ctx, "Unexpected route calculation failure",
				"appointment", appt.ID, "error", err)
			return models.DepartureReminder{}, false
		}
		if routeErr.Code != routing.CodeNotConfigured {
			e.metrics.RouteErrors.Inc()
		}
		e.log.DebugContext(ctx, "Route unavailable, substituting fallback estimate",
			"appointment", appt.ID, "code", routeErr.Code)
		route = routing.FallbackResult(targetArrival)
		source = "fallback"
	} else if route.IsCached {
		source = "cache"
	}
	e.metrics.RouteCalculations.WithLabelValues(source).Inc()

	reminder := models.DepartureReminder{
		AppointmentID:         appt.ID,
		UserLocation:          userLocation,
		VenueLocation:         appt.VenueLocation,
		VenueName:             appt.VenueName,
		CalculatedAt:          e.now(),
		DepartureTime:         route.DepartureTime,
		ArrivalTime:           route.ArrivalTime,
		TravelDurationMinutes: route.DurationMinutes,
		NearestStop:           route.NearestStop,
		Route:                 route.Legs,
	}
	if hasExisting && existing.HasNotification() {
		// An already-scheduled notification of the right kind stays as it is.
		reminder.NotificationID = existing.NotificationID
		reminder.NotificationScheduledAt = existing.NotificationScheduledAt
		reminder.ClusterNotification = existing.ClusterNotification
	}

	return e.reconcileNotification(ctx, reminder, userSettings, grouped), true
}

// reconcileNotification makes the reminder's scheduled notification match its
// current cluster membership: a grouped member must not keep an individual
// notification and an appointment whose cluster dissolved must not keep the
// grouped one. It upserts and returns the final reminder.
func (e *Engine) reconcileNotification(
	ctx context.Context,
	reminder models.DepartureReminder,
	userSettings models.DepartureReminderSettings,
	grouped bool,
) models.DepartureReminder {
	staleKind := reminder.HasNotification() && reminder.ClusterNotification != grouped
	if staleKind {
		if e.cancelNotification(ctx, reminder) {
			reminder.NotificationID = ""
			reminder.NotificationScheduledAt = time.Time{}
			reminder.ClusterNotification = false
		}
	}

	// Grouped members never carry an individual notification; the cluster
	// gets its single grouped one after all members are processed.
	if !grouped && !reminder.HasNotification() {
		e.scheduleNotification(ctx, &reminder, userSettings.BufferMinutes)
	}

	e.reminders.Upsert(reminder)
	return reminder
}

// scheduleNotification schedules the individual departure notification. A
// scheduling failure is logged and left for the next tick to retry.
func (e *Engine) scheduleNotification(
	ctx context.Context,
	reminder *models.DepartureReminder,
	bufferMinutes int,
) {
	notificationID, err := e.scheduler.ScheduleReminder(ctx, *reminder, bufferMinutes)
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to schedule departure notification",
			"appointment", reminder.AppointmentID, "error", err)
		return
	}
	if notificationID == "" {
		return
	}
	reminder.NotificationID = notificationID
	reminder.NotificationScheduledAt = e.now()
	e.metrics.NotificationsScheduled.WithLabelValues("single").Inc()
}

// runFallback is the whole-tick degradation path for when no location fix is
// available: every appointment still lacking a notification gets a reminder
// built from the fixed travel-time estimate, with a placeholder location.
func (e *Engine) runFallback(ctx context.Context, userSettings models.DepartureReminderSettings) error {
	upcoming, err := e.provider.Upcoming(ctx, e.lookahead)
	if err != nil {
		return fmt.Errorf("failed to fetch upcoming appointments: %w", err)
	}

	for _, appt := range upcoming {
		if existing, ok := e.reminders.Get(appt.ID); ok && existing.HasNotification() {
			continue
		}

		targetArrival := appt.StartTime.Add(-time.Duration(userSettings.BufferMinutes) * time.Minute)
		route := routing.FallbackResult(targetArrival)
		e.metrics.RouteCalculations.WithLabelValues("fallback").Inc()

		reminder := models.DepartureReminder{
			AppointmentID:         appt.ID,
			UserLocation:          models.Coordinates{}, // placeholder, no fix available
			VenueLocation:         appt.VenueLocation,
			VenueName:             appt.VenueName,
			CalculatedAt:          e.now(),
			DepartureTime:         route.DepartureTime,
			ArrivalTime:           route.ArrivalTime,
			TravelDurationMinutes: route.DurationMinutes,
			NearestStop:           route.NearestStop,
			Route:                 route.Legs,
		}
		e.scheduleNotification(ctx, &reminder, userSettings.BufferMinutes)
		e.reminders.Upsert(reminder)
	}

	e.purgePast(ctx)
	return nil
}

// purgePast drops reminders whose arrival time has passed and cancels their
// notifications.
func (e *Engine) purgePast(ctx context.Context) {
	for _, reminder := range e.reminders.RemoveWherePast(e.now()) {
		e.cancelNotification(ctx, reminder)
	}
}

func (e *Engine) cancelNotification(ctx context.Context, reminder models.DepartureReminder) bool {
	if !reminder.HasNotification() {
		return true
	}
	if err := e.scheduler.Cancel(ctx, reminder.NotificationID); err != nil {
		e.log.WarnContext(ctx, "Failed to cancel notification",
			"appointment", reminder.AppointmentID, "notification", reminder.NotificationID, "error", err)
		return false
	}
	e.metrics.NotificationsCancelled.Inc()
	return true
}
