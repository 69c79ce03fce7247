package backend

import (
	"context"

	"voxafi/internal/auth"
	"voxafi/internal/config"
	"voxafi/internal/store"
)

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// Result bundles the collaborators a backend provides.
type Result struct {
	Store store.Store
	Auth  auth.Provider
	// Ready reports whether the store is reachable.
	Ready   func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration.
type Factory interface {
	Create(ctx context.Context, cfg *config.Config) (*Result, error)
}

// pinger is implemented by stores that can check their connection.
type pinger interface {
	Ping(ctx context.Context) error
}
