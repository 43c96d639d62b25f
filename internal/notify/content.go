package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/UnknownOlympus/hermes/internal/models"
)

// Notification payload discriminators and data keys. The type discriminator is
// how cancel-all recognizes its own notifications without touching unrelated
// ones.
const (
	TypeDepartureReminder        = "departure_reminder"
	TypeDepartureReminderCluster = "departure_reminder_cluster"

	DataKeyType          = "type"
	DataKeyDeepLink      = "deepLink"
	DataKeyAppointmentID = "appointmentId"

	deepLinkPrefix = "app://assignment/"
)

// TranslateFunc is the external localization hook: it resolves a key with
// parameters to a display string. Returning an empty string means the key is
// not localized and the built-in fallback text is used instead.
type TranslateFunc func(key string, params map[string]string) string

// fallbackText is the deterministic English fallback table, so notification
// content never depends on localization being initialized.
var fallbackText = map[string]string{
	"departure.leave_now":     "Leave now!",
	"departure.leave_in":      "Leave in {minutes} min",
	"departure.time_to_leave": "Time to leave",
	"departure.body":          "{venue}: leave by {time}",
	"departure.body_transit":  "{venue}: take {leg}, leave by {time}",
	"departure.cluster_title": "{count} appointments coming up",
	"departure.cluster_body":  "{venues}: leave by {time}",
	"departure.and_more":      "{venues} and {count} more",
}

// translate resolves a key through the external translation function first
// and the fallback table second.
func (s *Scheduler) translateKey(key string, params map[string]string) string {
	if s.translate != nil {
		if text := s.translate(key, params); text != "" {
			return text
		}
	}
	template, ok := fallbackText[key]
	if !ok {
		return key
	}
	return substituteParams(template, params)
}

func substituteParams(template string, params map[string]string) string {
	out := template
	for name, value := range params {
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}
	return out
}

// reminderContent renders the notification for a single reminder. The urgency
// tier is decided by the minutes until departure at construction time, not at
// fire time.
func (s *Scheduler) reminderContent(reminder models.DepartureReminder) Content {
	return Content{
		Title: s.urgencyTitle(reminder.DepartureTime),
		Body:  s.reminderBody(reminder),
		Data: map[string]string{
			DataKeyType:          TypeDepartureReminder,
			DataKeyDeepLink:      deepLinkPrefix + reminder.AppointmentID,
			DataKeyAppointmentID: reminder.AppointmentID,
		},
	}
}

func (s *Scheduler) urgencyTitle(departure time.Time) string {
	minutesUntil := int(departure.Sub(s.now()).Minutes())
	switch {
	case minutesUntil <= 0:
		return s.translateKey("departure.leave_now", nil)
	case minutesUntil <= 5:
		return s.translateKey("departure.leave_in", map[string]string{
			"minutes": strconv.Itoa(minutesUntil),
		})
	default:
		return s.translateKey("departure.time_to_leave", nil)
	}
}

func (s *Scheduler) reminderBody(reminder models.DepartureReminder) string {
	params := map[string]string{
		"venue": reminder.VenueName,
		"time":  reminder.DepartureTime.Format("15:04"),
	}

	route := models.RouteResult{Legs: reminder.Route}
	transit := route.FirstTransitLeg()
	if transit == nil {
		return s.translateKey("departure.body", params)
	}

	params["leg"] = FormatTransitLeg(*transit)
	return s.translateKey("departure.body_transit", params)
}

// clusterContent renders the grouped notification: up to three venue names
// are listed, anything beyond that is ellipsized into a count.
func (s *Scheduler) clusterContent(cluster models.VenueCluster, departureTime time.Time) Content {
	const maxListedVenues = 3

	venues := strings.Join(cluster.VenueNames, ", ")
	if len(cluster.VenueNames) > maxListedVenues {
		venues = s.translateKey("departure.and_more", map[string]string{
			"venues": strings.Join(cluster.VenueNames[:maxListedVenues], ", "),
			"count":  strconv.Itoa(len(cluster.VenueNames) - maxListedVenues),
		})
	}

	title := s.translateKey("departure.cluster_title", map[string]string{
		"count": strconv.Itoa(len(cluster.AppointmentIDs)),
	})
	body := s.translateKey("departure.cluster_body", map[string]string{
		"venues": venues,
		"time":   departureTime.Format("15:04"),
	})

	firstID := ""
	if len(cluster.AppointmentIDs) > 0 {
		firstID = cluster.AppointmentIDs[0]
	}

	return Content{
		Title: title,
		Body:  body,
		Data: map[string]string{
			DataKeyType:          TypeDepartureReminderCluster,
			DataKeyDeepLink:      deepLinkPrefix + firstID,
			DataKeyAppointmentID: firstID,
		},
	}
}

// FormatTransitLeg renders a transit leg for logs and diagnostics as
// "line from stop (→ direction)".
func FormatTransitLeg(leg models.RouteLeg) string {
	if leg.Direction == "" {
		return fmt.Sprintf("%s from %s", leg.Line, leg.FromStop)
	}
	return fmt.Sprintf("%s from %s (→ %s)", leg.Line, leg.FromStop, leg.Direction)
}
