// Package location abstracts the device positioning primitive. The engine
// only consumes this interface; permission handling and real positioning live
// with the host platform.
package location

import (
	"context"
	"errors"

	"github.com/UnknownOlympus/hermes/internal/models"
)

// ErrNoFix is returned when no current position is available.
var ErrNoFix = errors.New("no location fix available")

// ErrPermissionDenied is returned when a required permission is missing and
// the user declined to grant it.
var ErrPermissionDenied = errors.New("location permission denied")

// Adapter is the positioning primitive consumed by the engine.
type Adapter interface {
	HasForegroundPermission(ctx context.Context) (bool, error)
	HasBackgroundPermission(ctx context.Context) (bool, error)
	RequestForegroundPermission(ctx context.Context) (bool, error)
	RequestBackgroundPermission(ctx context.Context) (bool, error)
	// CurrentLocation returns the current position, or ErrNoFix when the
	// device cannot produce one.
	CurrentLocation(ctx context.Context) (models.Coordinates, error)
	StartTracking(ctx context.Context) error
	StopTracking(ctx context.Context) error
	IsTrackingActive() bool
}
