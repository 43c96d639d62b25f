package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/UnknownOlympus/hermes/internal/models"
)

// Upcoming retrieves the appointments starting within the given window from
// now. Only appointments with a geocoded venue are returned, ordered by start
// time ascending, so the engine processes them in appointment order.
//
// Parameters:
// - ctx: The context for the operation, allowing for cancellation and timeout.
// - within: The lookahead window measured from now.
//
// Returns:
// - A slice of models.UpcomingAppointment inside the window.
// - An error if the query fails or if there is an issue scanning the results.
func (r *Repository) Upcoming(ctx context.Context, within time.Duration) ([]models.UpcomingAppointment, error) {
	var appointments []models.UpcomingAppointment
	query := `
		SELECT id, starts_at, venue_name, venue_lat, venue_lon, COALESCE(venue_address, '')
		FROM public.appointments
		WHERE
			starts_at >= $1
			AND starts_at <= $2
			AND is_cancelled = false
			AND venue_lat IS NOT NULL
			AND venue_lon IS NOT NULL
		ORDER BY starts_at ASC;
	`

	now := time.Now()
	rows, err := r.db.Query(ctx, query, now, now.Add(within))
	if err != nil {
		return nil, fmt.Errorf("failed to query upcoming appointments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var appt models.UpcomingAppointment
		if errScan := rows.Scan(
			&appt.ID,
			&appt.StartTime,
			&appt.VenueName,
			&appt.VenueLocation.Latitude,
			&appt.VenueLocation.Longitude,
			&appt.VenueAddress,
		); errScan != nil {
			return nil, fmt.Errorf("failed to scan upcoming appointment: %w", errScan)
		}
		r.log.DebugContext(ctx, "Upcoming appointment received.",
			"ID", appt.ID, "starts_at", appt.StartTime, "venue", appt.VenueName)
		appointments = append(appointments, appt)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read row: %w", err)
	}

	return appointments, nil
}
