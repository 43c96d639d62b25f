package routing_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/UnknownOlympus/hermes/internal/models"
	"github.com/UnknownOlympus/hermes/internal/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"googlemaps.github.io/maps"
)

// mockDirectionsClient is a mock implementation of DirectionsAPIClient.
type mockDirectionsClient struct {
	directionsFunc func(ctx context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error)
}

func (m *mockDirectionsClient) Directions(
	ctx context.Context,
	r *maps.DirectionsRequest,
) ([]maps.Route, []maps.GeocodedWaypoint, error) {
	return m.directionsFunc(ctx, r)
}

func TestGooglePlanner_PlanTrip(t *testing.T) {
	t.Parallel()

	origin := models.Coordinates{Latitude: 50.4501, Longitude: 30.5234}
	destination := models.Coordinates{Latitude: 50.4648, Longitude: 30.5198}
	arriveBy := time.Date(2025, time.June, 2, 9, 30, 0, 0, time.UTC)

	departure := time.Date(2025, time.June, 2, 8, 50, 0, 0, time.UTC)
	arrival := time.Date(2025, time.June, 2, 9, 28, 0, 0, time.UTC)

	sampleLeg := &maps.Leg{
		Duration:      38 * time.Minute,
		DepartureTime: departure,
		ArrivalTime:   arrival,
		Steps: []*maps.Step{
			{TravelMode: "WALKING", Duration: 5 * time.Minute},
			{
				TravelMode: "TRANSIT",
				Duration:   30 * time.Minute,
				TransitDetails: &maps.TransitDetails{
					DepartureStop: maps.TransitStop{Name: "Central Station"},
					ArrivalStop:   maps.TransitStop{Name: "Harbor"},
					DepartureTime: departure.Add(5 * time.Minute),
					ArrivalTime:   departure.Add(35 * time.Minute),
					Headsign:      "Harbor",
					Line: maps.TransitLine{
						ShortName: "M2",
						Vehicle:   maps.TransitLineVehicle{Type: "SUBWAY"},
					},
				},
			},
			{TravelMode: "WALKING", Duration: 3 * time.Minute},
		},
	}

	t.Run("successful planning", func(t *testing.T) {
		t.Parallel()
		mockClient := &mockDirectionsClient{
			directionsFunc: func(_ context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error) {
				assert.Equal(t, maps.TravelModeTransit, r.Mode)
				assert.Equal(t, "50.450100,30.523400", r.Origin)
				assert.Equal(t, "50.464800,30.519800", r.Destination)
				assert.Equal(t, "1748856600", r.ArrivalTime)
				return []maps.Route{{Legs: []*maps.Leg{sampleLeg}}}, nil, nil
			},
		}

		planner := routing.NewGooglePlanner(mockClient, slog.Default())
		result, err := planner.PlanTrip(context.Background(), origin, destination, arriveBy)

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, 38, result.DurationMinutes)
		assert.Equal(t, 8, result.WalkTimeMinutes)
		assert.Equal(t, departure, result.DepartureTime)
		assert.Equal(t, arrival, result.ArrivalTime)

		require.Len(t, result.Legs, 3)
		assert.Equal(t, models.ModeWalk, result.Legs[0].Mode)
		assert.Equal(t, models.ModeMetro, result.Legs[1].Mode)
		assert.Equal(t, "M2", result.Legs[1].Line)
		assert.Equal(t, "Harbor", result.Legs[1].Direction)
		assert.Equal(t, models.ModeWalk, result.Legs[2].Mode)
		// Walk steps carry no timestamps, so times are rebuilt cumulatively.
		assert.Equal(t, departure, result.Legs[0].DepartureTime)
		assert.Equal(t, departure.Add(5*time.Minute), result.Legs[0].ArrivalTime)

		assert.Equal(t, "Central Station", result.NearestStop.Name)
		assert.Equal(t, 5, result.NearestStop.WalkTimeMinutes)
		assert.InDelta(t, 400, result.NearestStop.DistanceMeters, 1e-9)
	})

	t.Run("api returns error", func(t *testing.T) {
		t.Parallel()
		mockClient := &mockDirectionsClient{
			directionsFunc: func(_ context.Context, _ *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error) {
				return nil, nil, assert.AnError
			},
		}

		planner := routing.NewGooglePlanner(mockClient, slog.Default())
		_, err := planner.PlanTrip(context.Background(), origin, destination, arriveBy)

		require.ErrorIs(t, err, assert.AnError)
	})

	t.Run("api returns no routes", func(t *testing.T) {
		t.Parallel()
		mockClient := &mockDirectionsClient{
			directionsFunc: func(_ context.Context, _ *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error) {
				return nil, nil, nil
			},
		}

		planner := routing.NewGooglePlanner(mockClient, slog.Default())
		_, err := planner.PlanTrip(context.Background(), origin, destination, arriveBy)

		require.ErrorIs(t, err, routing.ErrNoItineraries)
	})

	t.Run("unrecognized vehicle defaults to bus", func(t *testing.T) {
		t.Parallel()
		leg := &maps.Leg{
			Duration:      10 * time.Minute,
			DepartureTime: departure,
			ArrivalTime:   departure.Add(10 * time.Minute),
			Steps: []*maps.Step{
				{
					TravelMode: "TRANSIT",
					Duration:   10 * time.Minute,
					TransitDetails: &maps.TransitDetails{
						DepartureStop: maps.TransitStop{Name: "A"},
						ArrivalStop:   maps.TransitStop{Name: "B"},
						DepartureTime: departure,
						ArrivalTime:   departure.Add(10 * time.Minute),
						Line: maps.TransitLine{
							ShortName: "99",
							Vehicle:   maps.TransitLineVehicle{Type: "GONDOLA_LIFT"},
						},
					},
				},
			},
		}
		mockClient := &mockDirectionsClient{
			directionsFunc: func(_ context.Context, _ *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error) {
				return []maps.Route{{Legs: []*maps.Leg{leg}}}, nil, nil
			},
		}

		planner := routing.NewGooglePlanner(mockClient, slog.Default())
		result, err := planner.PlanTrip(context.Background(), origin, destination, arriveBy)

		require.NoError(t, err)
		require.Len(t, result.Legs, 1)
		assert.Equal(t, models.ModeBus, result.Legs[0].Mode)
	})
}
