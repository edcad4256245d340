package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/lien/event"
	"github.com/xraph/lien/types"
)

// Registry manages registered plugins with type-cached dispatch.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit               []OnInit
	onShutdown           []OnShutdown
	onJournalReplayed    []OnJournalReplayed
	onInvoiceCreated     []OnInvoiceCreated
	onInvoiceDeposited   []OnInvoiceDeposited
	onInvoiceBought      []OnInvoiceBought
	onCoinsMinted        []OnCoinsMinted
	onOperationCompleted []OnOperationCompleted
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: 5 * time.Second,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout bounds how long a single hook may run.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin and caches the hooks it implements.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnJournalReplayed); ok {
		r.onJournalReplayed = append(r.onJournalReplayed, v)
	}
	if v, ok := p.(OnInvoiceCreated); ok {
		r.onInvoiceCreated = append(r.onInvoiceCreated, v)
	}
	if v, ok := p.(OnInvoiceDeposited); ok {
		r.onInvoiceDeposited = append(r.onInvoiceDeposited, v)
	}
	if v, ok := p.(OnInvoiceBought); ok {
		r.onInvoiceBought = append(r.onInvoiceBought, v)
	}
	if v, ok := p.(OnCoinsMinted); ok {
		r.onCoinsMinted = append(r.onCoinsMinted, v)
	}
	if v, ok := p.(OnOperationCompleted); ok {
		r.onOperationCompleted = append(r.onOperationCompleted, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

func implementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	check := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	check(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	check(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	check(reflect.TypeOf((*OnJournalReplayed)(nil)).Elem(), "OnJournalReplayed")
	check(reflect.TypeOf((*OnInvoiceCreated)(nil)).Elem(), "OnInvoiceCreated")
	check(reflect.TypeOf((*OnInvoiceDeposited)(nil)).Elem(), "OnInvoiceDeposited")
	check(reflect.TypeOf((*OnInvoiceBought)(nil)).Elem(), "OnInvoiceBought")
	check(reflect.TypeOf((*OnCoinsMinted)(nil)).Elem(), "OnCoinsMinted")
	check(reflect.TypeOf((*OnOperationCompleted)(nil)).Elem(), "OnOperationCompleted")

	return interfaces
}

// Get returns a plugin by name, or nil.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Emission
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, controller interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInit", func() error { return p.OnInit(ctx, controller) })
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnShutdown", func() error { return p.OnShutdown(ctx) })
	}
}

// EmitJournalReplayed reports a finished replay.
func (r *Registry) EmitJournalReplayed(ctx context.Context, events int, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onJournalReplayed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnJournalReplayed", func() error { return p.OnJournalReplayed(ctx, events, elapsed) })
	}
}

// EmitEvents routes committed events to the hooks interested in their kind.
func (r *Registry) EmitEvents(ctx context.Context, events []*event.Event) {
	r.mu.RLock()
	created, deposited, bought, minted := r.onInvoiceCreated, r.onInvoiceDeposited, r.onInvoiceBought, r.onCoinsMinted
	r.mu.RUnlock()

	for _, e := range events {
		switch e.Kind {
		case event.KindInvoiceCreated:
			for _, p := range created {
				r.dispatch(ctx, p.Name(), "OnInvoiceCreated", func() error { return p.OnInvoiceCreated(ctx, e) })
			}
		case event.KindInvoiceDeposited:
			for _, p := range deposited {
				r.dispatch(ctx, p.Name(), "OnInvoiceDeposited", func() error { return p.OnInvoiceDeposited(ctx, e) })
			}
		case event.KindInvoiceBought:
			for _, p := range bought {
				r.dispatch(ctx, p.Name(), "OnInvoiceBought", func() error { return p.OnInvoiceBought(ctx, e) })
			}
		case event.KindCoinsMinted:
			for _, p := range minted {
				r.dispatch(ctx, p.Name(), "OnCoinsMinted", func() error { return p.OnCoinsMinted(ctx, e) })
			}
		}
	}
}

// EmitOperationCompleted reports the outcome of one controller operation.
func (r *Registry) EmitOperationCompleted(ctx context.Context, op string, caller types.Address, elapsed time.Duration, opErr error) {
	r.mu.RLock()
	plugins := r.onOperationCompleted
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnOperationCompleted", func() error {
			return p.OnOperationCompleted(ctx, op, caller, elapsed, opErr)
		})
	}
}

func (r *Registry) dispatch(ctx context.Context, pluginName, hook string, fn func() error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn("plugin hook failed",
			"plugin", pluginName,
			"hook", hook,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins must never stall the controller.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
