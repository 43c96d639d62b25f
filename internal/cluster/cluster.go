// Package cluster decides "already arrived" suppression and groups
// appointments at nearby venues into a single notification unit.
package cluster

import (
	"sort"

	"github.com/UnknownOlympus/hermes/internal/geo"
	"github.com/UnknownOlympus/hermes/internal/models"
)

// IsNearVenue reports whether the user is within thresholdMeters of the venue.
func IsNearVenue(user, venue models.Coordinates, thresholdMeters float64) bool {
	return geo.IsWithin(user, venue, thresholdMeters)
}

// ShouldNotify reports whether a departure notification still makes sense:
// once the user has physically arrived at the venue it is suppressed.
func ShouldNotify(user, venue models.Coordinates, thresholdMeters float64) bool {
	return !IsNearVenue(user, venue, thresholdMeters)
}

// ClusterNearbyVenues groups appointments whose venues sit within
// thresholdMeters of each other. The algorithm is a greedy single pass over
// appointments sorted by start time: each unclustered appointment seeds a new
// cluster, which then absorbs any other unclustered appointment within the
// threshold of ANY current member, so clusters grow transitively rather than
// only around the seed. Every appointment ends up in exactly one cluster.
func ClusterNearbyVenues(
	appointments []models.UpcomingAppointment,
	thresholdMeters float64,
) []models.VenueCluster {
	if len(appointments) == 0 {
		return nil
	}

	sorted := make([]models.UpcomingAppointment, len(appointments))
	copy(sorted, appointments)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartTime.Before(sorted[j].StartTime)
	})

	clustered := make([]bool, len(sorted))
	clusters := make([]models.VenueCluster, 0, len(sorted))

	for seed := range sorted {
		if clustered[seed] {
			continue
		}
		clustered[seed] = true
		members := []int{seed}

		// Transitive growth: every new member may pull in further
		// appointments, so rescan until the cluster stops growing.
		for grew := true; grew; {
			grew = false
			for candidate := range sorted {
				if clustered[candidate] {
					continue
				}
				for _, member := range members {
					if geo.IsWithin(
						sorted[candidate].VenueLocation,
						sorted[member].VenueLocation,
						thresholdMeters,
					) {
						clustered[candidate] = true
						members = append(members, candidate)
						grew = true
						break
					}
				}
			}
		}

		clusters = append(clusters, buildCluster(sorted, members))
	}

	return clusters
}

// buildCluster assembles the cluster value: ids and names in member order,
// the centroid as the arithmetic mean of member coordinates, and the earliest
// start time among members.
func buildCluster(appointments []models.UpcomingAppointment, members []int) models.VenueCluster {
	sort.Ints(members)

	cluster := models.VenueCluster{
		AppointmentIDs:          make([]string, 0, len(members)),
		VenueNames:              make([]string, 0, len(members)),
		EarliestAppointmentTime: appointments[members[0]].StartTime,
	}

	var sumLat, sumLon float64
	for _, idx := range members {
		appt := appointments[idx]
		cluster.AppointmentIDs = append(cluster.AppointmentIDs, appt.ID)
		cluster.VenueNames = append(cluster.VenueNames, appt.VenueName)
		sumLat += appt.VenueLocation.Latitude
		sumLon += appt.VenueLocation.Longitude
		if appt.StartTime.Before(cluster.EarliestAppointmentTime) {
			cluster.EarliestAppointmentTime = appt.StartTime
		}
	}

	cluster.Centroid = models.Coordinates{
		Latitude:  sumLat / float64(len(members)),
		Longitude: sumLon / float64(len(members)),
	}
	return cluster
}
