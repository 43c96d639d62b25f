package routing

import (
	"fmt"
	"log/slog"

	"googlemaps.github.io/maps"
)

// ProviderType represents the type of trip-planning provider.
type ProviderType string

const (
	// ProviderTypeOTP represents an OpenTripPlanner routing backend.
	ProviderTypeOTP ProviderType = "otp"
	// ProviderTypeGoogle represents the Google Maps Directions backend.
	ProviderTypeGoogle ProviderType = "google"
)

// ProviderConfig holds configuration for creating a trip-planning provider.
type ProviderConfig struct {
	Type    ProviderType // Type of provider to create
	APIKey  string       // API key (required by Google, optional for OTP)
	BaseURL string       // Router base URL (used by the OTP provider)
	Logger  *slog.Logger // Logger for the provider
}

// NewPlanner creates a trip-planning provider based on the provided
// configuration. It applies the Factory pattern to decouple provider
// instantiation from the route calculator.
//
// A missing credential is a recoverable condition, not a startup failure: in
// that case NewPlanner returns a nil Planner and no error, and the calculator
// reports CodeNotConfigured so callers fall back to time-based estimates.
func NewPlanner(config ProviderConfig) (Planner, error) {
	switch config.Type {
	case ProviderTypeOTP:
		return newOTPPlanner(config)
	case ProviderTypeGoogle:
		return newGooglePlanner(config)
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", config.Type)
	}
}

func newOTPPlanner(config ProviderConfig) (Planner, error) {
	if config.BaseURL == "" {
		config.Logger.Warn("OTP base URL is not configured, reminders will use fallback estimates")
		return nil, nil
	}
	return NewOTPPlanner(config.BaseURL, config.APIKey, config.Logger), nil
}

func newGooglePlanner(config ProviderConfig) (Planner, error) {
	if config.APIKey == "" {
		config.Logger.Warn("Google API key is not configured, reminders will use fallback estimates")
		return nil, nil
	}

	client, err := maps.NewClient(maps.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Maps client: %w", err)
	}

	return NewGooglePlanner(client, config.Logger), nil
}
