// Package routing wraps a pluggable trip-planning backend behind a route
// calculator that owns the process-wide route cache and rate limiter.
package routing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/UnknownOlympus/hermes/internal/models"
)

// FallbackTravelMinutes is the fixed travel-time estimate used whenever no
// route can be computed.
const FallbackTravelMinutes = 45

// minCallInterval is the cooperative spacing between outbound calls to the
// trip-planning backend, matching its published quota of ~50 requests/minute.
const minCallInterval = 1200 * time.Millisecond

// Calculator computes normalized routes through the configured trip-planning
// backend. It consults its cache first, throttles outbound calls through a
// single rate limiter, and classifies every failure as a recoverable
// RouteError.
type Calculator struct {
	planner Planner // nil when no backend credential is configured
	cache   *routeCache
	limiter *rate.Limiter
	latency prometheus.Observer // optional, observes backend request duration
	log     *slog.Logger
}

// NewCalculator creates a route calculator. A nil planner is valid and means
// no backend is configured; every calculation then fails with
// CodeNotConfigured so callers use fallback estimates.
func NewCalculator(planner Planner, log *slog.Logger) *Calculator {
	return NewCalculatorWithLimiter(planner, rate.NewLimiter(rate.Every(minCallInterval), 1), log)
}

// NewCalculatorWithLimiter allows injecting a custom rate limiter.
func NewCalculatorWithLimiter(planner Planner, limiter *rate.Limiter, log *slog.Logger) *Calculator {
	return &Calculator{
		planner: planner,
		cache:   newRouteCache(),
		limiter: limiter,
		log:     log,
	}
}

// SetLatencyObserver wires a histogram observer for backend request duration.
// Cache hits and unconfigured-backend failures are not observed.
func (c *Calculator) SetLatencyObserver(observer prometheus.Observer) {
	c.latency = observer
}

// Configured reports whether a trip-planning backend is available.
func (c *Calculator) Configured() bool {
	return c.planner != nil
}

// CalculateRoute returns the best route from origin to destination arriving by
// targetArrival. Results served from cache are marked IsCached.
func (c *Calculator) CalculateRoute(
	ctx context.Context,
	origin, destination models.Coordinates,
	targetArrival time.Time,
) (*models.RouteResult, error) {
	if cached, ok := c.cache.get(origin, destination, targetArrival); ok {
		c.log.DebugContext(ctx, "Route served from cache",
			"destination", destination, "cached_at", cached.CachedAt)
		return cached, nil
	}

	if c.planner == nil {
		return nil, &RouteError{Code: CodeNotConfigured}
	}

	// Rate limit
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &RouteError{Code: CodeAPIError, Err: err}
	}

	started := time.Now()
	result, err := c.planner.PlanTrip(ctx, origin, destination, targetArrival)
	if c.latency != nil {
		c.latency.Observe(time.Since(started).Seconds())
	}
	if err != nil {
		if errors.Is(err, ErrNoItineraries) {
			return nil, &RouteError{Code: CodeNoRoute, Err: err}
		}
		return nil, &RouteError{Code: CodeAPIError, Err: err}
	}

	c.cache.put(origin, destination, targetArrival, *result)
	result.IsCached = false
	return result, nil
}

// FallbackResult builds the fixed time-based estimate used when location or
// routing is unavailable: a 45-minute trip ending at the target arrival with
// no legs and an unknown nearest stop.
func FallbackResult(targetArrival time.Time) *models.RouteResult {
	return &models.RouteResult{
		DurationMinutes: FallbackTravelMinutes,
		DepartureTime:   targetArrival.Add(-FallbackTravelMinutes * time.Minute),
		ArrivalTime:     targetArrival,
		NearestStop:     models.NearestStop{Name: "Unknown"},
	}
}
