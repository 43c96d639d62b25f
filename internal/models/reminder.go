package models

import "time"

// DepartureReminder is the unit of engine state kept per appointment. It is
// owned exclusively by the reminder store and is never written to durable
// storage: it carries the user's sampled location, and retaining it would
// violate the engine's no-location-history guarantee.
type DepartureReminder struct {
	AppointmentID           string
	UserLocation            Coordinates
	VenueLocation           Coordinates
	VenueName               string
	CalculatedAt            time.Time
	DepartureTime           time.Time
	ArrivalTime             time.Time
	TravelDurationMinutes   int
	NearestStop             NearestStop
	Route                   []RouteLeg
	NotificationScheduledAt time.Time // zero value means no notification scheduled yet
	NotificationID          string
	ClusterNotification     bool // the scheduled notification is the grouped cluster one
}

// HasNotification reports whether a local notification has been scheduled for
// this reminder.
func (r DepartureReminder) HasNotification() bool {
	return r.NotificationID != ""
}

// VenueCluster groups appointments whose venues are mutually within the
// proximity threshold; they are notified as a single unit. Clusters are
// recomputed on every tick and never stored.
type VenueCluster struct {
	AppointmentIDs          []string
	Centroid                Coordinates
	VenueNames              []string
	EarliestAppointmentTime time.Time
}
