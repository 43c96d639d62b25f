package routing

import "fmt"

// ErrorCode classifies a route calculation failure.
type ErrorCode string

const (
	// CodeNotConfigured means no trip-planning backend credential is
	// configured. Callers must treat this as "use the fallback estimate",
	// not as a hard error.
	CodeNotConfigured ErrorCode = "API_NOT_CONFIGURED"
	// CodeNoRoute means the backend found no itinerary between the points.
	CodeNoRoute ErrorCode = "NO_ROUTE"
	// CodeAPIError wraps any unexpected backend or transport failure.
	CodeAPIError ErrorCode = "API_ERROR"
)

// RouteError is the error type returned by the Calculator. Every RouteError
// is recoverable: the engine substitutes a time-based fallback estimate.
type RouteError struct {
	Code ErrorCode
	Err  error
}

func (e *RouteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("route calculation failed (%s): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("route calculation failed (%s)", e.Code)
}

func (e *RouteError) Unwrap() error {
	return e.Err
}
