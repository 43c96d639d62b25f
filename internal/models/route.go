package models

import "time"

// TransportMode classifies a single route leg.
type TransportMode string

// Supported transport modes. Unrecognized timed modes from the trip-planning
// backend are normalized to ModeBus.
const (
	ModeWalk  TransportMode = "walk"
	ModeBus   TransportMode = "bus"
	ModeTrain TransportMode = "train"
	ModeTram  TransportMode = "tram"
	ModeMetro TransportMode = "metro"
	ModeFerry TransportMode = "ferry"
)

// RouteLeg is one continuous segment of a trip, either walking or riding a
// single transit line. Line and Direction are empty for walking legs.
type RouteLeg struct {
	Mode          TransportMode `json:"mode"`
	Line          string        `json:"line,omitempty"`
	Direction     string        `json:"direction,omitempty"`
	DepartureTime time.Time     `json:"departureTime"`
	ArrivalTime   time.Time     `json:"arrivalTime"`
	FromStop      string        `json:"fromStop"`
	ToStop        string        `json:"toStop"`
}

// NearestStop describes the first transit stop of a route relative to the
// user's current position.
type NearestStop struct {
	Name            string  `json:"name"`
	DistanceMeters  float64 `json:"distanceMeters"`
	WalkTimeMinutes int     `json:"walkTimeMinutes"`
}

// RouteResult is a normalized route produced either by the external
// trip-planning backend or by the fallback estimator.
type RouteResult struct {
	DurationMinutes int         `json:"durationMinutes"`
	DepartureTime   time.Time   `json:"departureTime"`
	ArrivalTime     time.Time   `json:"arrivalTime"`
	WalkTimeMinutes int         `json:"walkTimeMinutes"`
	NearestStop     NearestStop `json:"nearestStop"`
	Legs            []RouteLeg  `json:"legs"`
	IsCached        bool        `json:"isCached"`
	CachedAt        time.Time   `json:"cachedAt,omitempty"`
}

// FirstTransitLeg returns the first non-walking leg of the route, or nil when
// the route is walk-only.
func (r *RouteResult) FirstTransitLeg() *RouteLeg {
	for i := range r.Legs {
		if r.Legs[i].Mode != ModeWalk {
			return &r.Legs[i]
		}
	}
	return nil
}
