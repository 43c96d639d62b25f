package routing

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/UnknownOlympus/hermes/internal/models"
	"googlemaps.github.io/maps"
)

// GooglePlanner implements the Planner interface on top of the Google Maps
// Directions API in transit mode.
type GooglePlanner struct {
	client DirectionsAPIClient // client is the Google Maps API client
	log    *slog.Logger        // log is the logger for logging operations
}

// DirectionsAPIClient is the narrow slice of the Google Maps client the
// planner needs, which keeps it mockable in tests.
type DirectionsAPIClient interface {
	Directions(ctx context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error)
}

// NewGooglePlanner initializes a planner backed by the given Directions client.
func NewGooglePlanner(client DirectionsAPIClient, log *slog.Logger) *GooglePlanner {
	return &GooglePlanner{client: client, log: log}
}

// PlanTrip requests transit directions targeting arriveBy as the desired
// arrival time and normalizes the first returned route.
func (gp *GooglePlanner) PlanTrip(
	ctx context.Context,
	origin, destination models.Coordinates,
	arriveBy time.Time,
) (*models.RouteResult, error) {
	gp.log.DebugContext(ctx, "Planning trip using Google Directions",
		"origin", origin, "destination", destination, "arrive_by", arriveBy)

	req := &maps.DirectionsRequest{
		Origin:      formatPlace(origin),
		Destination: formatPlace(destination),
		Mode:        maps.TravelModeTransit,
		ArrivalTime: strconv.FormatInt(arriveBy.Unix(), 10),
	}

	routes, _, err := gp.client.Directions(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to request directions: %w", err)
	}

	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return nil, ErrNoItineraries
	}

	return normalizeDirectionsLeg(routes[0].Legs[0]), nil
}

// normalizeDirectionsLeg flattens a Directions leg into the engine's route
// model. Walking steps carry no explicit timestamps, so their times are
// reconstructed cumulatively from the leg's departure time.
func normalizeDirectionsLeg(leg *maps.Leg) *models.RouteResult {
	legs := make([]models.RouteLeg, 0, len(leg.Steps))
	cursor := leg.DepartureTime
	walkTotal := time.Duration(0)

	for _, step := range leg.Steps {
		if step.TransitDetails == nil {
			walkTotal += step.Duration
			legs = append(legs, models.RouteLeg{
				Mode:          models.ModeWalk,
				DepartureTime: cursor,
				ArrivalTime:   cursor.Add(step.Duration),
			})
			cursor = cursor.Add(step.Duration)
			continue
		}

		details := step.TransitDetails
		line := details.Line.ShortName
		if line == "" {
			line = details.Line.Name
		}
		legs = append(legs, models.RouteLeg{
			Mode:          vehicleMode(details.Line.Vehicle.Type),
			Line:          line,
			Direction:     details.Headsign,
			DepartureTime: details.DepartureTime,
			ArrivalTime:   details.ArrivalTime,
			FromStop:      details.DepartureStop.Name,
			ToStop:        details.ArrivalStop.Name,
		})
		cursor = details.ArrivalTime
	}

	result := &models.RouteResult{
		DurationMinutes: durationMinutes(leg.Duration),
		DepartureTime:   leg.DepartureTime,
		ArrivalTime:     leg.ArrivalTime,
		WalkTimeMinutes: durationMinutes(walkTotal),
		Legs:            legs,
		NearestStop:     nearestStopFromLegs(legs, walkTotal),
	}
	return result
}

func nearestStopFromLegs(legs []models.RouteLeg, walkTotal time.Duration) models.NearestStop {
	walkMinutes := 0
	for _, leg := range legs {
		if leg.Mode != models.ModeWalk {
			return models.NearestStop{
				Name:            leg.FromStop,
				WalkTimeMinutes: walkMinutes,
				DistanceMeters:  float64(walkMinutes) * walkSpeedMetersPerMinute,
			}
		}
		walkMinutes += durationMinutes(leg.ArrivalTime.Sub(leg.DepartureTime))
	}

	minutes := durationMinutes(walkTotal)
	return models.NearestStop{
		Name:            "Unknown",
		WalkTimeMinutes: minutes,
		DistanceMeters:  float64(minutes) * walkSpeedMetersPerMinute,
	}
}

// vehicleMode maps the Directions vehicle type onto the engine's transport
// modes, defaulting unrecognized timed modes to bus.
func vehicleMode(vehicleType string) models.TransportMode {
	switch strings.ToUpper(vehicleType) {
	case "HEAVY_RAIL", "COMMUTER_TRAIN", "HIGH_SPEED_TRAIN", "LONG_DISTANCE_TRAIN", "RAIL":
		return models.ModeTrain
	case "TRAM", "CABLE_CAR", "FUNICULAR":
		return models.ModeTram
	case "SUBWAY", "METRO_RAIL", "MONORAIL":
		return models.ModeMetro
	case "FERRY":
		return models.ModeFerry
	default:
		return models.ModeBus
	}
}
