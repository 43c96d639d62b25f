package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	TicksTotal             *prometheus.CounterVec
	TickSeconds            prometheus.Histogram
	RouteCalculations      *prometheus.CounterVec
	RouteErrors            prometheus.Counter
	NotificationsScheduled *prometheus.CounterVec
	NotificationsCancelled prometheus.Counter
	ActiveReminders        prometheus.Gauge
	ProviderSeconds        *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		TicksTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "departure_ticks_total",
			Help: "Total number of orchestrator ticks, by outcome.",
		}, []string{"status"}),
		TickSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "departure_tick_duration_seconds",
			Help:    "Duration of a single orchestrator tick.",
			Buckets: prometheus.DefBuckets,
		}),
		RouteCalculations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "departure_route_calculations_total",
			Help: "Total number of route calculations, by result source.",
		}, []string{"source"}),
		RouteErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "departure_route_errors_total",
			Help: "Total number of errors received from the trip-planning backend.",
		}),
		NotificationsScheduled: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "departure_notifications_scheduled_total",
			Help: "Total number of departure notifications scheduled, by kind.",
		}, []string{"kind"}),
		NotificationsCancelled: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "departure_notifications_cancelled_total",
			Help: "Total number of departure notifications cancelled.",
		}),
		ActiveReminders: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "departure_active_reminders",
			Help: "Current number of reminders held in the store.",
		}),
		ProviderSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "departure_provider_request_duration_seconds",
			Help:    "Duration of requests to the trip-planning backend.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
	}
}
