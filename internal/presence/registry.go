package presence

import (
	"context"
	"time"
)

// Registry tracks which users have live socket connections. The message
// logic only talks to this interface, so the in-memory registry can be
// swapped for the Redis-backed one without touching it.
type Registry interface {
	Register(ctx context.Context, userID, connID string) error
	Unregister(ctx context.Context, userID, connID string) error
	Connections(ctx context.Context, userID string) ([]string, error)
	IsOnline(ctx context.Context, userID string) (bool, error)
}

type Status struct {
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}
