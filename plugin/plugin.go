// Package plugin provides an extensible plugin system for lien.
// Plugins hook into controller lifecycle events; every hook runs after the
// operation has committed and never affects its outcome.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/lien/event"
	"github.com/xraph/lien/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the controller starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, controller interface{}) error
}

// OnShutdown is called when the controller stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// OnJournalReplayed is called after the journal has been replayed on start.
type OnJournalReplayed interface {
	Plugin
	OnJournalReplayed(ctx context.Context, events int, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Invoice hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated is called with the invoice.created event.
type OnInvoiceCreated interface {
	Plugin
	OnInvoiceCreated(ctx context.Context, e *event.Event) error
}

// OnInvoiceDeposited is called with the invoice.deposited event.
type OnInvoiceDeposited interface {
	Plugin
	OnInvoiceDeposited(ctx context.Context, e *event.Event) error
}

// OnInvoiceBought is called with the invoice.bought event.
type OnInvoiceBought interface {
	Plugin
	OnInvoiceBought(ctx context.Context, e *event.Event) error
}

// ──────────────────────────────────────────────────
// Credit hooks
// ──────────────────────────────────────────────────

// OnCoinsMinted is called with every coins.minted event.
type OnCoinsMinted interface {
	Plugin
	OnCoinsMinted(ctx context.Context, e *event.Event) error
}

// ──────────────────────────────────────────────────
// Operation hooks
// ──────────────────────────────────────────────────

// OnOperationCompleted is called once per controller operation, committed or
// not. err is nil on commit.
type OnOperationCompleted interface {
	Plugin
	OnOperationCompleted(ctx context.Context, op string, caller types.Address, elapsed time.Duration, err error) error
}
