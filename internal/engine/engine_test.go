package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/UnknownOlympus/hermes/internal/location"
	"github.com/UnknownOlympus/hermes/internal/metrics"
	"github.com/UnknownOlympus/hermes/internal/models"
	"github.com/UnknownOlympus/hermes/internal/notify"
	"github.com/UnknownOlympus/hermes/internal/routing"
	"github.com/UnknownOlympus/hermes/internal/settings"
	"github.com/UnknownOlympus/hermes/internal/store"
)

type fakeProvider struct {
	appointments []models.UpcomingAppointment
	err          error
	calls        int
}

func (f *fakeProvider) Upcoming(_ context.Context, _ time.Duration) ([]models.UpcomingAppointment, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.appointments, nil
}

type stubPlanner struct {
	calls    int
	planFunc func(origin, destination models.Coordinates, arriveBy time.Time) (*models.RouteResult, error)
}

func (p *stubPlanner) PlanTrip(
	_ context.Context,
	origin, destination models.Coordinates,
	arriveBy time.Time,
) (*models.RouteResult, error) {
	p.calls++
	return p.planFunc(origin, destination, arriveBy)
}

type testEnv struct {
	engine    *Engine
	cleaner   *Cleaner
	reminders *store.Store
	adapter   *notify.MemoryAdapter
	settings  *settings.MemoryStore
	provider  *fakeProvider
	locator   *location.Static
	planner   *stubPlanner
}

var (
	testUserLocation  = models.Coordinates{Latitude: 50.4501, Longitude: 30.5234}
	testVenueLocation = models.Coordinates{Latitude: 50.4900, Longitude: 30.5200}
)

func plannedRoute(targetArrival time.Time) *models.RouteResult {
	return &models.RouteResult{
		DurationMinutes: 34,
		DepartureTime:   targetArrival.Add(-34 * time.Minute),
		ArrivalTime:     targetArrival,
		WalkTimeMinutes: 3,
		NearestStop:     models.NearestStop{Name: "Central Station", DistanceMeters: 240, WalkTimeMinutes: 3},
		Legs: []models.RouteLeg{
			{Mode: models.ModeWalk, DepartureTime: targetArrival.Add(-34 * time.Minute)},
			{Mode: models.ModeBus, Line: "24", FromStop: "Central Station"},
		},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	planner := &stubPlanner{
		planFunc: func(_, _ models.Coordinates, arriveBy time.Time) (*models.RouteResult, error) {
			return plannedRoute(arriveBy), nil
		},
	}

	reminders := store.New()
	adapter := notify.NewMemoryAdapter()
	scheduler := notify.NewScheduler(adapter, nil, log)
	locator := location.NewStatic(testUserLocation)
	cleaner := NewCleaner(log, reminders, scheduler, locator)
	env := &testEnv{
		cleaner:   cleaner,
		reminders: reminders,
		adapter:   adapter,
		settings:  settings.NewMemoryStore(models.DefaultSettings()),
		provider:  &fakeProvider{},
		locator:   locator,
		planner:   planner,
	}
	env.engine = NewEngine(
		log,
		env.settings,
		env.provider,
		env.locator,
		routing.NewCalculatorWithLimiter(planner, rate.NewLimiter(rate.Inf, 0), log),
		reminders,
		scheduler,
		cleaner,
		metrics.NewMetrics(prometheus.NewRegistry()),
		time.Minute,
	)
	return env
}

func upcomingAppointment(id string, start time.Time) models.UpcomingAppointment {
	return models.UpcomingAppointment{
		ID:            id,
		StartTime:     start,
		VenueName:     "Clinic " + id,
		VenueLocation: testVenueLocation,
	}
}

func TestRunCheck_SchedulesReminder(t *testing.T) {
	env := newTestEnv(t)
	start := time.Now().Add(3 * time.Hour)
	env.provider.appointments = []models.UpcomingAppointment{upcomingAppointment("a1", start)}

	require.NoError(t, env.engine.RunCheck(context.Background()))

	reminder, ok := env.reminders.Get("a1")
	require.True(t, ok)
	assert.Equal(t, 34, reminder.TravelDurationMinutes)
	assert.Equal(t, "Central Station", reminder.NearestStop.Name)
	assert.Equal(t, testUserLocation, reminder.UserLocation)
	assert.True(t, reminder.HasNotification())

	scheduled, err := env.adapter.ListScheduled(context.Background())
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	// Notification fires bufferMinutes before departure.
	expectedNotify := reminder.DepartureTime.Add(-10 * time.Minute)
	assert.True(t, scheduled[0].At.Equal(expectedNotify))

	assert.Equal(t, StateTracking, env.engine.State())
	assert.True(t, env.locator.IsTrackingActive())
	assert.True(t, env.reminders.IsTracking())
}

func TestRunCheck_SecondTickIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	start := time.Now().Add(3 * time.Hour)
	env.provider.appointments = []models.UpcomingAppointment{upcomingAppointment("a1", start)}

	require.NoError(t, env.engine.RunCheck(context.Background()))
	require.NoError(t, env.engine.RunCheck(context.Background()))

	scheduled, err := env.adapter.ListScheduled(context.Background())
	require.NoError(t, err)
	assert.Len(t, scheduled, 1)
	// The user has not moved, so the backend is consulted only once.
	assert.Equal(t, 1, env.planner.calls)
}

func TestRunCheck_MovementTriggersRecalculation(t *testing.T) {
	env := newTestEnv(t)
	start := time.Now().Add(3 * time.Hour)
	env.provider.appointments = []models.UpcomingAppointment{upcomingAppointment("a1", start)}

	require.NoError(t, env.engine.RunCheck(context.Background()))
	first, ok := env.reminders.Get("a1")
	require.True(t, ok)

	// Roughly 545 m north, well past the movement threshold.
	env.locator.Move(models.Coordinates{Latitude: 50.4550, Longitude: 30.5234})
	require.NoError(t, env.engine.RunCheck(context.Background()))

	second, ok := env.reminders.Get("a1")
	require.True(t, ok)
	assert.Equal(t, 2, env.planner.calls)
	// The recomputed reminder keeps the already-scheduled notification.
	assert.Equal(t, first.NotificationID, second.NotificationID)
	scheduled, err := env.adapter.ListScheduled(context.Background())
	require.NoError(t, err)
	assert.Len(t, scheduled, 1)
}

func TestRunCheck_SmallMovementSkipsBackend(t *testing.T) {
	env := newTestEnv(t)
	start := time.Now().Add(3 * time.Hour)
	env.provider.appointments = []models.UpcomingAppointment{upcomingAppointment("a1", start)}

	require.NoError(t, env.engine.RunCheck(context.Background()))

	// About 110 m north, below the movement threshold.
	env.locator.Move(models.Coordinates{Latitude: 50.4511, Longitude: 30.5234})
	require.NoError(t, env.engine.RunCheck(context.Background()))

	assert.Equal(t, 1, env.planner.calls)
}

func TestRunCheck_ArrivalSuppressesReminder(t *testing.T) {
	env := newTestEnv(t)
	start := time.Now().Add(3 * time.Hour)
	env.provider.appointments = []models.UpcomingAppointment{upcomingAppointment("a1", start)}

	require.NoError(t, env.engine.RunCheck(context.Background()))
	require.Equal(t, 1, env.reminders.Count())

	env.locator.Move(testVenueLocation)
	require.NoError(t, env.engine.RunCheck(context.Background()))

	assert.Equal(t, 0, env.reminders.Count())
	scheduled, err := env.adapter.ListScheduled(context.Background())
	require.NoError(t, err)
	assert.Empty(t, scheduled)
}

func TestRunCheck_FallbackWhenLocationUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.locator = location.NewStaticWithoutFix()
	env.engine.locator = env.locator
	start := time.Now().Add(3 * time.Hour)
	env.provider.appointments = []models.UpcomingAppointment{upcomingAppointment("a1", start)}

	require.NoError(t, env.engine.RunCheck(context.Background()))

	reminder, ok := env.reminders.Get("a1")
	require.True(t, ok)
	assert.Equal(t, routing.FallbackTravelMinutes, reminder.TravelDurationMinutes)
	assert.Equal(t, "Unknown", reminder.NearestStop.Name)
	assert.Equal(t, models.Coordinates{}, reminder.UserLocation)
	assert.True(t, reminder.HasNotification())
	assert.Empty(t, reminder.Route)
	// The backend is never consulted without a position.
	assert.Equal(t, 0, env.planner.calls)
}

func TestRunCheck_RouteErrorSubstitutesFallback(t *testing.T) {
	env := newTestEnv(t)
	env.planner.planFunc = func(_, _ models.Coordinates, _ time.Time) (*models.RouteResult, error) {
		return nil, routing.ErrNoItineraries
	}
	start := time.Now().Add(3 * time.Hour)
	env.provider.appointments = []models.UpcomingAppointment{upcomingAppointment("a1", start)}

	require.NoError(t, env.engine.RunCheck(context.Background()))

	reminder, ok := env.reminders.Get("a1")
	require.True(t, ok)
	assert.Equal(t, routing.FallbackTravelMinutes, reminder.TravelDurationMinutes)
	expectedArrival := start.Add(-10 * time.Minute)
	assert.True(t, reminder.ArrivalTime.Equal(expectedArrival))
	assert.True(t, reminder.HasNotification())
}

func TestRunCheck_DisabledTearsEverythingDown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	start := time.Now().Add(3 * time.Hour)
	env.provider.appointments = []models.UpcomingAppointment{upcomingAppointment("a1", start)}

	require.NoError(t, env.engine.RunCheck(ctx))
	require.Equal(t, 1, env.reminders.Count())
	require.True(t, env.reminders.IsTracking())

	disabled := models.DefaultSettings()
	disabled.Enabled = false
	require.NoError(t, env.settings.Put(ctx, disabled))

	require.NoError(t, env.engine.RunCheck(ctx))

	assert.Equal(t, 0, env.reminders.Count())
	assert.False(t, env.reminders.IsTracking())
	assert.False(t, env.locator.IsTrackingActive())
	assert.Nil(t, env.reminders.Location())
	assert.Equal(t, StateIdle, env.engine.State())

	scheduled, err := env.adapter.ListScheduled(ctx)
	require.NoError(t, err)
	assert.Empty(t, scheduled)
	assert.True(t, env.cleaner.VerifyNoLocationHistory())
}

func TestRunCheck_NoAppointmentsGoesIdle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	start := time.Now().Add(3 * time.Hour)
	env.provider.appointments = []models.UpcomingAppointment{upcomingAppointment("a1", start)}

	require.NoError(t, env.engine.RunCheck(ctx))
	require.Equal(t, StateTracking, env.engine.State())

	env.provider.appointments = nil
	require.NoError(t, env.engine.RunCheck(ctx))

	assert.Equal(t, StateIdle, env.engine.State())
	assert.False(t, env.locator.IsTrackingActive())
	assert.False(t, env.reminders.IsTracking())
}

func TestRunCheck_AppointmentSourceFailure(t *testing.T) {
	env := newTestEnv(t)
	env.provider.err = errors.New("backend down")

	err := env.engine.RunCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch upcoming appointments")
}

func TestRunCheck_PurgesPastReminders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.adapter.Schedule(ctx, notify.Content{
		Title: "Time to leave",
		Data:  map[string]string{notify.DataKeyType: notify.TypeDepartureReminder},
	}, time.Now().Add(time.Minute))
	require.NoError(t, err)
	env.reminders.Upsert(models.DepartureReminder{
		AppointmentID:           "stale",
		ArrivalTime:             time.Now().Add(-time.Hour),
		NotificationID:          id,
		NotificationScheduledAt: time.Now().Add(-2 * time.Hour),
	})

	require.NoError(t, env.engine.RunCheck(ctx))

	_, ok := env.reminders.Get("stale")
	assert.False(t, ok)
	scheduled, listErr := env.adapter.ListScheduled(ctx)
	require.NoError(t, listErr)
	assert.Empty(t, scheduled)
}

func TestRunCheck_ClusteredAppointmentsGetOneNotification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Now()

	first := upcomingAppointment("a1", now.Add(3*time.Hour))
	second := upcomingAppointment("a2", now.Add(4*time.Hour))
	// About 110 m apart, well within the default proximity threshold.
	second.VenueLocation = models.Coordinates{
		Latitude:  testVenueLocation.Latitude + 0.0010,
		Longitude: testVenueLocation.Longitude,
	}
	env.provider.appointments = []models.UpcomingAppointment{first, second}

	require.NoError(t, env.engine.RunCheck(ctx))

	assert.Equal(t, 2, env.reminders.Count())
	earliest, ok := env.reminders.Get("a1")
	require.True(t, ok)
	later, ok := env.reminders.Get("a2")
	require.True(t, ok)
	assert.True(t, earliest.HasNotification())
	assert.False(t, later.HasNotification())

	scheduled, err := env.adapter.ListScheduled(ctx)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	content, ok := env.adapter.Content(scheduled[0].ID)
	require.True(t, ok)
	assert.Equal(t, notify.TypeDepartureReminderCluster, content.Data[notify.DataKeyType])
}

func TestRunCheck_ClusterFormationReplacesIndividualNotification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Now()

	later := upcomingAppointment("a2", now.Add(4*time.Hour))
	env.provider.appointments = []models.UpcomingAppointment{later}

	require.NoError(t, env.engine.RunCheck(ctx))
	single, ok := env.reminders.Get("a2")
	require.True(t, ok)
	require.True(t, single.HasNotification())
	require.False(t, single.ClusterNotification)

	// An earlier appointment at a nearby venue turns a2 into a cluster member.
	earlier := upcomingAppointment("a1", now.Add(3*time.Hour))
	earlier.VenueLocation = models.Coordinates{
		Latitude:  testVenueLocation.Latitude + 0.0010,
		Longitude: testVenueLocation.Longitude,
	}
	env.provider.appointments = []models.UpcomingAppointment{earlier, later}

	require.NoError(t, env.engine.RunCheck(ctx))

	member, ok := env.reminders.Get("a2")
	require.True(t, ok)
	assert.False(t, member.HasNotification(), "grouped member must not keep its individual notification")

	anchor, ok := env.reminders.Get("a1")
	require.True(t, ok)
	assert.True(t, anchor.HasNotification())
	assert.True(t, anchor.ClusterNotification)

	scheduled, err := env.adapter.ListScheduled(ctx)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	content, ok := env.adapter.Content(scheduled[0].ID)
	require.True(t, ok)
	assert.Equal(t, notify.TypeDepartureReminderCluster, content.Data[notify.DataKeyType])
}

func TestRunCheck_ClusterDissolutionRestoresIndividualNotification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Now()

	first := upcomingAppointment("a1", now.Add(3*time.Hour))
	second := upcomingAppointment("a2", now.Add(4*time.Hour))
	second.VenueLocation = models.Coordinates{
		Latitude:  testVenueLocation.Latitude + 0.0010,
		Longitude: testVenueLocation.Longitude,
	}
	env.provider.appointments = []models.UpcomingAppointment{first, second}

	require.NoError(t, env.engine.RunCheck(ctx))
	anchor, ok := env.reminders.Get("a1")
	require.True(t, ok)
	require.True(t, anchor.ClusterNotification)

	// The second appointment is gone, a1 stands alone again.
	env.provider.appointments = []models.UpcomingAppointment{first}

	require.NoError(t, env.engine.RunCheck(ctx))

	alone, ok := env.reminders.Get("a1")
	require.True(t, ok)
	assert.True(t, alone.HasNotification())
	assert.False(t, alone.ClusterNotification)

	scheduled, err := env.adapter.ListScheduled(ctx)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	content, ok := env.adapter.Content(scheduled[0].ID)
	require.True(t, ok)
	assert.Equal(t, notify.TypeDepartureReminder, content.Data[notify.DataKeyType])
}

func TestCleaner_OnAppForeground(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.adapter.Schedule(ctx, notify.Content{
		Title: "Time to leave",
		Data:  map[string]string{notify.DataKeyType: notify.TypeDepartureReminder},
	}, time.Now().Add(time.Minute))
	require.NoError(t, err)
	env.reminders.Upsert(models.DepartureReminder{
		AppointmentID:  "past",
		ArrivalTime:    time.Now().Add(-time.Hour),
		NotificationID: id,
	})

	env.cleaner.OnAppForeground(ctx)

	_, ok := env.reminders.Get("past")
	assert.False(t, ok)
	scheduled, listErr := env.adapter.ListScheduled(ctx)
	require.NoError(t, listErr)
	assert.Empty(t, scheduled)
}

func TestCleaner_CleanupPastReminders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Now()

	env.reminders.Upsert(models.DepartureReminder{AppointmentID: "past", ArrivalTime: now.Add(-time.Minute)})
	env.reminders.Upsert(models.DepartureReminder{AppointmentID: "future", ArrivalTime: now.Add(time.Hour)})

	removed := env.cleaner.CleanupPastReminders(ctx, now)

	assert.Equal(t, 1, removed)
	_, ok := env.reminders.Get("past")
	assert.False(t, ok)
	_, ok = env.reminders.Get("future")
	assert.True(t, ok)
}

func TestCleaner_CleanupAllLeavesNoLocationBehind(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	start := time.Now().Add(3 * time.Hour)
	env.provider.appointments = []models.UpcomingAppointment{upcomingAppointment("a1", start)}

	require.NoError(t, env.engine.RunCheck(ctx))
	require.NotNil(t, env.reminders.Location())

	require.NoError(t, env.cleaner.CleanupAll(ctx, CleanupOptions{Reset: true}))

	assert.Nil(t, env.reminders.Location())
	assert.False(t, env.reminders.IsTracking())
	assert.Equal(t, 0, env.reminders.Count())
	assert.True(t, env.cleaner.VerifyNoLocationHistory())
}

func TestCleaner_CancelsOnlyDepartureNotifications(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	start := time.Now().Add(3 * time.Hour)
	env.provider.appointments = []models.UpcomingAppointment{upcomingAppointment("a1", start)}
	require.NoError(t, env.engine.RunCheck(ctx))

	_, err := env.adapter.Schedule(ctx, notify.Content{
		Title: "Shift changed",
		Data:  map[string]string{notify.DataKeyType: "roster_update"},
	}, time.Now().Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, env.cleaner.CleanupAll(ctx, CleanupOptions{}))

	scheduled, err := env.adapter.ListScheduled(ctx)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	content, ok := env.adapter.Content(scheduled[0].ID)
	require.True(t, ok)
	assert.Equal(t, "roster_update", content.Data[notify.DataKeyType])
}
