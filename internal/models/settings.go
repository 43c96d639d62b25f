package models

// DefaultVenueProximityMeters is the distance below which a user counts as
// having arrived at a venue.
const DefaultVenueProximityMeters = 500.0

// DefaultBufferMinutes is the lead time before departure at which the
// notification fires when the user has not picked one.
const DefaultBufferMinutes = 10

// allowedBuffers are the selectable notification lead times, in minutes.
var allowedBuffers = []int{5, 10, 15, 20, 30}

// DepartureReminderSettings is the durable user preference read by the engine
// on every tick.
type DepartureReminderSettings struct {
	Enabled              bool    `json:"enabled"`
	BufferMinutes        int     `json:"bufferMinutes"`
	VenueProximityMeters float64 `json:"venueProximityMeters"`
}

// DefaultSettings returns the settings used when the user has never stored any.
func DefaultSettings() DepartureReminderSettings {
	return DepartureReminderSettings{
		Enabled:              true,
		BufferMinutes:        DefaultBufferMinutes,
		VenueProximityMeters: DefaultVenueProximityMeters,
	}
}

// Normalize clamps stored values to supported ones: the buffer must be one of
// the selectable lead times and the proximity threshold must be positive.
func (s DepartureReminderSettings) Normalize() DepartureReminderSettings {
	valid := false
	for _, b := range allowedBuffers {
		if s.BufferMinutes == b {
			valid = true
			break
		}
	}
	if !valid {
		s.BufferMinutes = DefaultBufferMinutes
	}
	if s.VenueProximityMeters <= 0 {
		s.VenueProximityMeters = DefaultVenueProximityMeters
	}
	return s
}
