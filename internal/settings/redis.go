package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/UnknownOlympus/hermes/internal/models"
	"github.com/redis/go-redis/v9"
)

const settingsKey = "settings:departure"

// RedisStore keeps the reminder settings in redis so they survive restarts
// and can be shared with the settings UI.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisStore connects to redis and verifies the connection with a ping.
func NewRedisStore(addr, password string, db int, logger *slog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: "hermes:",
		logger: logger.With("component", "settings_store"),
	}, nil
}

// Close releases the underlying redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping reports whether the redis backend is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) key() string {
	return s.prefix + settingsKey
}

// Get returns the stored settings, normalized, or the defaults when the user
// has never stored any.
func (s *RedisStore) Get(ctx context.Context) (models.DepartureReminderSettings, error) {
	data, err := s.client.Get(ctx, s.key()).Bytes()
	if errors.Is(err, redis.Nil) {
		s.logger.Debug("no stored settings, using defaults")
		return models.DefaultSettings(), nil
	}
	if err != nil {
		return models.DepartureReminderSettings{}, fmt.Errorf("failed to read settings: %w", err)
	}

	var stored models.DepartureReminderSettings
	if err = json.Unmarshal(data, &stored); err != nil {
		return models.DepartureReminderSettings{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	return stored.Normalize(), nil
}

// Put stores the settings without expiry.
func (s *RedisStore) Put(ctx context.Context, settings models.DepartureReminderSettings) error {
	data, err := json.Marshal(settings.Normalize())
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err = s.client.Set(ctx, s.key(), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store settings: %w", err)
	}
	s.logger.Debug("settings stored", "enabled", settings.Enabled, "buffer_min", settings.BufferMinutes)
	return nil
}
