// Package store defines the journal storage contract shared by every backend.
package store

import (
	"context"

	"github.com/xraph/lien/event"
)

// Store is the unified storage interface for the lien journal.
type Store interface {
	event.Store

	// Migrate creates or upgrades the journal schema.
	Migrate(ctx context.Context) error
	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases the backend.
	Close() error
}
