package lien

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/bits"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/lien/credit"
	"github.com/xraph/lien/event"
	"github.com/xraph/lien/internal/undo"
	"github.com/xraph/lien/invoice"
	"github.com/xraph/lien/plugin"
	"github.com/xraph/lien/store"
	"github.com/xraph/lien/types"
)

// DefaultAddress is the controller's identity unless WithAddress is given.
const DefaultAddress types.Address = "lien:controller"

// replayPageSize bounds how many journal events are loaded per query on start.
const replayPageSize = 1000

// Controller is the marketplace engine. It is the only admin of the invoice
// registry and the only issuer of the credit ledger, and it tracks each
// holder's collateral allowance.
type Controller struct {
	mu sync.RWMutex

	// view guards the state reads see while a holder's receiver runs. An
	// operation holds it for writing from start to end and lets go only for
	// the duration of the callback, which callback marks.
	view     sync.RWMutex
	callback atomic.Bool

	address    types.Address
	originator types.Address

	registry *invoice.Registry
	ledger   *credit.Ledger
	store    store.Store
	plugins  *plugin.Registry
	logger   *slog.Logger

	allowances map[types.Address]uint64
	log        undo.Log

	// Operation state, valid only while mu is held for writing.
	pending    []*event.Event
	depositing invoice.ClaimID

	nextSeq uint64
	started bool
	stopped bool
}

// New creates a controller over reg and led, journaling to s. Before Start,
// reg's admin and led's issuer must both be handed off to the controller's
// address.
func New(reg *invoice.Registry, led *credit.Ledger, s store.Store, opts ...Option) *Controller {
	c := &Controller{
		address:    DefaultAddress,
		registry:   reg,
		ledger:     led,
		store:      s,
		plugins:    plugin.NewRegistry(),
		logger:     slog.Default(),
		allowances: make(map[types.Address]uint64),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Option configures a Controller instance.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
		c.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(c *Controller) {
		_ = c.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.plugins.WithTimeout(d)
	}
}

// WithOriginator sets the only address allowed to create invoices.
func WithOriginator(addr types.Address) Option {
	return func(c *Controller) {
		c.originator = addr
	}
}

// WithAddress sets the controller's own identity.
func WithAddress(addr types.Address) Option {
	return func(c *Controller) {
		c.address = addr
	}
}

// Address returns the controller's identity. Hand the registry admin and the
// ledger issuer roles to it before Start.
func (c *Controller) Address() types.Address { return c.address }

// Originator returns the address allowed to create invoices.
func (c *Controller) Originator() types.Address { return c.originator }

// Plugins returns the plugin registry.
func (c *Controller) Plugins() *plugin.Registry { return c.plugins }

// Start verifies the role handoff, migrates the store and rebuilds state by
// replaying the journal. A controller starts at most once; after Stop, build
// a new one over fresh resources.
func (c *Controller) Start(ctx context.Context) error {
	if c.callback.Load() {
		return ErrReentrantCall
	}
	c.mu.Lock()

	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	if c.stopped {
		c.mu.Unlock()
		return fmt.Errorf("%w: a stopped controller cannot be restarted", ErrStoreClosed)
	}
	if err := c.checkSetup(); err != nil {
		c.mu.Unlock()
		return err
	}

	if err := c.store.Migrate(ctx); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("lien: migrate: %w", err)
	}

	began := time.Now()
	c.view.Lock()
	n, err := c.replay(ctx)
	c.view.Unlock()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	elapsed := time.Since(began)

	c.registry.SetReceiver(c.address, invoice.ReceiverFunc(c.onInvoiceReceived))
	c.started = true
	c.mu.Unlock()

	c.plugins.EmitJournalReplayed(ctx, n, elapsed)
	c.plugins.EmitInit(ctx, c)

	c.logger.Info("lien controller started",
		"address", c.address,
		"originator", c.originator,
		"replayed_events", n,
		"replay_elapsed", elapsed,
		"invoices", c.registry.Len(),
		"total_supply", c.ledger.TotalSupply(),
	)

	return nil
}

func (c *Controller) checkSetup() error {
	switch {
	case c.address.IsZero():
		return fmt.Errorf("%w: controller address is empty", ErrSetupIncomplete)
	case c.originator.IsZero():
		return fmt.Errorf("%w: originator not configured", ErrSetupIncomplete)
	case c.registry.Admin() != c.address:
		return fmt.Errorf("%w: registry admin is %q, not the controller", ErrSetupIncomplete, c.registry.Admin())
	case c.ledger.Issuer() != c.address:
		return fmt.Errorf("%w: ledger issuer is %q, not the controller", ErrSetupIncomplete, c.ledger.Issuer())
	case c.registry.Len() != 0 || c.ledger.TotalSupply() != 0:
		return fmt.Errorf("%w: registry and ledger must be empty before replay", ErrSetupIncomplete)
	}
	return nil
}

// Stop shuts down the controller and closes the store. The controller cannot
// be started again.
func (c *Controller) Stop() error {
	if c.callback.Load() {
		return ErrReentrantCall
	}
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return ErrNotStarted
	}
	c.started = false
	c.stopped = true
	c.registry.SetReceiver(c.address, nil)
	c.mu.Unlock()

	c.plugins.EmitShutdown(context.Background())

	return c.store.Close()
}

// ──────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────

// Reads may be called from a receiver callback; they then observe the state
// of the operation in flight.

// GetInvoice returns a copy of the invoice.
func (c *Controller) GetInvoice(ctx context.Context, claimID invoice.ClaimID) (*invoice.Invoice, error) {
	defer c.rlock(ctx)()
	return c.registry.Get(claimID)
}

// OwnerOf returns the current holder of claimID.
func (c *Controller) OwnerOf(ctx context.Context, claimID invoice.ClaimID) (types.Address, error) {
	defer c.rlock(ctx)()
	return c.registry.OwnerOf(claimID)
}

// OnSale reports whether claimID is escrowed by the controller and can be
// bought.
func (c *Controller) OnSale(ctx context.Context, claimID invoice.ClaimID) (bool, error) {
	defer c.rlock(ctx)()
	holder, err := c.registry.OwnerOf(claimID)
	if err != nil {
		return false, err
	}
	return holder == c.address, nil
}

// CollateralAllowance returns how many coins holder may still mint.
func (c *Controller) CollateralAllowance(ctx context.Context, holder types.Address) uint64 {
	defer c.rlock(ctx)()
	return c.allowances[holder]
}

// BalanceOf returns holder's coin balance.
func (c *Controller) BalanceOf(ctx context.Context, holder types.Address) uint64 {
	defer c.rlock(ctx)()
	return c.ledger.BalanceOf(holder)
}

// TotalSupply returns the number of coins in circulation.
func (c *Controller) TotalSupply(ctx context.Context) uint64 {
	defer c.rlock(ctx)()
	return c.ledger.TotalSupply()
}

// Events queries the journal.
func (c *Controller) Events(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	return c.store.List(ctx, opts)
}

// Solvency summarizes how circulating coins and open allowances are backed.
type Solvency struct {
	// TotalSupply is the number of coins in circulation.
	TotalSupply uint64 `json:"total_supply"`
	// Allowances is the sum of every holder's unminted allowance.
	Allowances uint64 `json:"allowances"`
	// Backing is the sum of Discount(face value) over escrowed invoices.
	Backing uint64 `json:"backing"`
	// Escrowed counts the invoices held by the controller.
	Escrowed int `json:"escrowed"`
}

// Solvent reports whether every coin and allowance is backed.
func (s Solvency) Solvent() bool {
	return addSaturating(s.TotalSupply, s.Allowances) <= s.Backing
}

// Solvency reports the current backing.
func (c *Controller) Solvency(ctx context.Context) Solvency {
	defer c.rlock(ctx)()

	s := Solvency{TotalSupply: c.ledger.TotalSupply()}
	for _, a := range c.allowances {
		s.Allowances = addSaturating(s.Allowances, a)
	}
	for _, inv := range c.registry.List() {
		if inv.Holder == c.address {
			s.Backing = addSaturating(s.Backing, Discount(inv.FaceValue))
			s.Escrowed++
		}
	}
	return s
}

// addSaturating returns a+b, or math.MaxUint64 if the sum does not fit.
func addSaturating(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

// rlock returns the release of the lock a read must hold. A read made with an
// operation's own context needs none; one made while a receiver runs waits
// on view instead of mu, which the operation still holds.
func (c *Controller) rlock(ctx context.Context) func() {
	if c.inFlight(ctx) {
		return func() {}
	}
	if c.callback.Load() {
		c.view.RLock()
		return c.view.RUnlock
	}
	c.mu.RLock()
	return c.mu.RUnlock
}
