package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/UnknownOlympus/hermes/internal/appointments"
	"github.com/UnknownOlympus/hermes/internal/config"
	"github.com/UnknownOlympus/hermes/internal/engine"
	"github.com/UnknownOlympus/hermes/internal/location"
	"github.com/UnknownOlympus/hermes/internal/metrics"
	"github.com/UnknownOlympus/hermes/internal/models"
	"github.com/UnknownOlympus/hermes/internal/notify"
	"github.com/UnknownOlympus/hermes/internal/routing"
	"github.com/UnknownOlympus/hermes/internal/settings"
	"github.com/UnknownOlympus/hermes/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Constants for different environment types.
const (
	envLocal = "local"
	envDev   = "development"
	envProd  = "production"
)

// main is the entry point of the application.
func main() {
	// Create a context that will be canceled when an interrupt signal is received.
	// This allows for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load application configuration.
	cfg := config.MustLoad()

	// Set up the logger based on the environment.
	logger := setupLogger(cfg.Env)

	// Create a separate registry for metrics with exemplar
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(reg)

	// Initialize the appointment database connection.
	dtb, err := appointments.NewDatabase(
		ctx, cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Password, cfg.Database.Name,
	)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer dtb.Close()

	// Create the appointment source using the database connection.
	repo := appointments.NewRepository(dtb, logger)

	// The settings store is redis-backed when an address is configured and
	// in-process otherwise, so the engine runs without any redis around.
	var settingsStore settings.Store
	var redisStore *settings.RedisStore
	if cfg.Redis.Addr != "" {
		redisStore, err = settings.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisStore.Close()
		settingsStore = redisStore
	} else {
		logger.InfoContext(ctx, "No redis configured, using in-process settings store")
		settingsStore = settings.NewEmptyMemoryStore()
	}

	// Create the trip-planning provider using the factory pattern based on
	// configuration. A missing credential is tolerated: the engine degrades
	// to fixed travel-time estimates.
	providerConfig := routing.ProviderConfig{
		Type:    routing.ProviderType(cfg.ProviderType),
		APIKey:  cfg.APIKey,
		BaseURL: cfg.PlannerURL,
		Logger:  logger,
	}

	planner, err := routing.NewPlanner(providerConfig)
	if err != nil {
		log.Fatalf("Failed to create trip-planning provider: %v", err)
	}
	logger.InfoContext(ctx, "Trip-planning provider initialized",
		"type", cfg.ProviderType, "configured", planner != nil)

	calculator := routing.NewCalculator(planner, logger)
	calculator.SetLatencyObserver(appMetrics.ProviderSeconds.WithLabelValues(cfg.ProviderType))

	// The standalone binary has no device location feed, so it runs off the
	// configured static position.
	locator := location.NewStatic(models.Coordinates{Latitude: cfg.StaticLat, Longitude: cfg.StaticLon})

	reminders := store.New()
	scheduler := notify.NewScheduler(notify.NewMemoryAdapter(), nil, logger)
	cleaner := engine.NewCleaner(logger, reminders, scheduler, locator)

	reminderEngine := engine.NewEngine(
		logger,
		settingsStore,
		repo,
		locator,
		calculator,
		reminders,
		scheduler,
		cleaner,
		appMetrics,
		cfg.Interval,
	)

	// Log that the application has started.
	logger.InfoContext(ctx, "Application started. Press Ctrl+C to stop.")

	// Start the monitoring server in a goroutine to allow main to listen for signals.
	go startMonitoringServer(ctx, logger, reg, dtb, redisStore, cfg.Port)

	go logStoreEvents(ctx, logger, reminders)

	go reminderEngine.Run(ctx)

	// Wait for the context to be canceled (e.g., by Ctrl+C).
	<-ctx.Done()

	// Log that a shutdown signal has been received.
	logger.InfoContext(ctx, "Shutdown signal received. Stopping application...")

	// Log graceful shutdown completion.
	logger.InfoContext(ctx, "Application stopped gracefully.")
}

// logStoreEvents subscribes to reminder store changes and logs them, which is
// what a UI layer would do with the same subscription.
func logStoreEvents(ctx context.Context, log *slog.Logger, reminders *store.Store) {
	events, cancel := reminders.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			log.DebugContext(ctx, "Reminder store changed",
				"kind", event.Kind, "appointment", event.AppointmentID)
		}
	}
}

// startMonitoringServer starts an HTTP server that provides health check and metrics endpoints.
// It listens on the specified port and logs the server's status and any errors encountered.
//
// Parameters:
// - ctx: A context.Context for managing cancellation and timeouts.
// - log: A logger for logging server events and errors.
// - reg: A registry with Prometheus collectors.
// - dtb: A pgxpool connector for database methods (ping)
// - redisStore: The redis settings store, nil when not configured.
// - port: The port number on which the server will listen.
func startMonitoringServer(
	ctx context.Context,
	log *slog.Logger,
	reg *prometheus.Registry,
	dtb *pgxpool.Pool,
	redisStore *settings.RedisStore,
	port int,
) {
	http.HandleFunc("/healthz", func(writer http.ResponseWriter, _ *http.Request) {
		log.DebugContext(ctx, "Performing health checks...")
		status, body := http.StatusOK, "OK"
		if err := dtb.Ping(ctx); err != nil {
			status, body = http.StatusServiceUnavailable, "DB ping failed"
		}
		if redisStore != nil {
			if err := redisStore.Ping(ctx); err != nil {
				status, body = http.StatusServiceUnavailable, "Redis ping failed"
			}
		}
		writer.WriteHeader(status)
		_, err := writer.Write([]byte(body))
		if err != nil {
			log.ErrorContext(ctx, "failed to write reply", "error", err)
		}

		log.DebugContext(ctx, "Health checks completed", "status", status)
	})
	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	log.InfoContext(ctx, "Starting monitoring server", "port", port)
	readTimeout := 5
	writeTimeout := 10
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      http.DefaultServeMux,
		ReadTimeout:  time.Duration(readTimeout) * time.Second,
		WriteTimeout: time.Duration(writeTimeout) * time.Second,
	}
	if err := server.ListenAndServe(); err != nil {
		log.ErrorContext(ctx, "Monitoring server failed", "error", err)
	}
}

// setupLogger initializes and returns a logger based on the environment provided.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelDebug,
				AddSource: true,
			}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelInfo,
				AddSource: false,
			}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelWarn,
				AddSource: false,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					if a.Key == slog.TimeKey {
						return slog.Attr{}
					}
					return a
				},
			}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelError,
				AddSource: false,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					if a.Key == slog.TimeKey {
						return slog.Attr{}
					}
					return a
				},
			}),
		)

		log.Error(
			"The env parameter was not specified or was invalid. Logging will be minimal, by default.",
			slog.String("available_envs", "local, development, production"))
	}

	return log
}
