package notify

import (
	"context"
	"time"
)

// Content is the rendered notification payload handed to the OS adapter.
type Content struct {
	Title string
	Body  string
	Data  map[string]string
}

// Scheduled describes a notification currently scheduled with the OS.
type Scheduled struct {
	ID   string
	At   time.Time
	Data map[string]string
}

// Adapter is the local-notification primitive the engine consumes. Delivery
// reliability is the platform's concern, not this engine's.
type Adapter interface {
	Schedule(ctx context.Context, content Content, at time.Time) (string, error)
	Cancel(ctx context.Context, id string) error
	ListScheduled(ctx context.Context) ([]Scheduled, error)
}
