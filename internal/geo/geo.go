// Package geo provides pure great-circle distance and containment math used
// by the proximity checks and the route cache key.
package geo

import (
	"math"
	"time"

	"github.com/UnknownOlympus/hermes/internal/models"
)

// earthRadiusMeters is the mean Earth radius used by the haversine formula.
const earthRadiusMeters = 6371000.0

// Distance returns the haversine great-circle distance between two points,
// in meters.
func Distance(a, b models.Coordinates) float64 {
	latA := a.Latitude * math.Pi / 180
	latB := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// IsWithin reports whether the distance between a and b does not exceed
// thresholdMeters.
func IsWithin(a, b models.Coordinates, thresholdMeters float64) bool {
	return Distance(a, b) <= thresholdMeters
}

// RoundCoord rounds both components of a coordinate to the given number of
// decimal places. Three decimals correspond to roughly 110 meters, which is
// the granularity used for route cache keys.
func RoundCoord(c models.Coordinates, decimals int) models.Coordinates {
	factor := math.Pow(10, float64(decimals))
	return models.Coordinates{
		Latitude:  math.Round(c.Latitude*factor) / factor,
		Longitude: math.Round(c.Longitude*factor) / factor,
	}
}

// BucketTime floors a timestamp to the given step so that near-repeat queries
// share a cache key.
func BucketTime(t time.Time, step time.Duration) time.Time {
	return t.Truncate(step)
}
