package routing

import (
	"context"
	"errors"
	"time"

	"github.com/UnknownOlympus/hermes/internal/models"
)

// Planner is an interface that defines a method for planning a transit trip.
// PlanTrip takes an origin, a destination and a desired arrival time, and
// returns the best normalized route or an error if no trip could be planned.
type Planner interface {
	PlanTrip(
		ctx context.Context,
		origin, destination models.Coordinates,
		arriveBy time.Time,
	) (*models.RouteResult, error)
}

// ErrNoItineraries is returned by a planner when the trip-planning backend
// responds successfully but offers no itinerary between the two points.
var ErrNoItineraries = errors.New("trip-planning backend returned no itineraries")

// walkSpeedMetersPerMinute is the assumed average walking speed used to
// estimate the distance to the nearest stop from its walk duration.
const walkSpeedMetersPerMinute = 80.0
