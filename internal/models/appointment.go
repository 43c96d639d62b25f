package models

import "time"

// UpcomingAppointment is a venue-bound appointment supplied by the external
// appointment provider. It is read-only to the reminder engine.
type UpcomingAppointment struct {
	ID            string      // ID is the unique identifier of the appointment.
	StartTime     time.Time   // StartTime is when the appointment begins.
	VenueName     string      // VenueName is the display name of the venue.
	VenueLocation Coordinates // VenueLocation is the venue's geographical position.
	VenueAddress  string      // VenueAddress is the optional street address of the venue.
}
