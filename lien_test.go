package lien_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/lien"
	"github.com/xraph/lien/credit"
	"github.com/xraph/lien/event"
	"github.com/xraph/lien/invoice"
	"github.com/xraph/lien/store"
	"github.com/xraph/lien/store/memory"
	"github.com/xraph/lien/types"
)

const (
	deployer   types.Address = "deployer"
	originator types.Address = "originator"
	alice      types.Address = "alice"
	bob        types.Address = "bob"
	carol      types.Address = "carol"

	maturity uint64 = 86400
)

type fixture struct {
	c     *lien.Controller
	reg   *invoice.Registry
	led   *credit.Ledger
	store store.Store
}

func newFixture(t *testing.T, s store.Store, opts ...lien.Option) *fixture {
	t.Helper()

	reg := invoice.NewRegistry(deployer)
	led := credit.NewLedger(deployer)
	opts = append([]lien.Option{lien.WithOriginator(originator)}, opts...)
	c := lien.New(reg, led, s, opts...)

	require.NoError(t, reg.TransferAdmin(deployer, c.Address()))
	require.NoError(t, led.TransferIssuer(deployer, c.Address()))
	require.NoError(t, c.Start(context.Background()))

	return &fixture{c: c, reg: reg, led: led, store: s}
}

func started(t *testing.T, opts ...lien.Option) *fixture {
	t.Helper()
	f := newFixture(t, memory.New(), opts...)
	t.Cleanup(func() { _ = f.c.Stop() })
	return f
}

// deposited creates claimID for holder and deposits it.
func (f *fixture) deposited(t *testing.T, holder types.Address, claimID invoice.ClaimID, face uint64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.c.CreateInvoice(ctx, originator, holder, claimID, face, maturity))
	require.NoError(t, f.c.ApproveInvoice(ctx, holder, claimID, f.c.Address()))
	require.NoError(t, f.c.DepositInvoice(ctx, holder, claimID))
}

func (f *fixture) journal(t *testing.T) []*event.Event {
	t.Helper()
	events, err := f.c.Events(context.Background(), event.ListOpts{})
	require.NoError(t, err)
	return events
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

func TestStartRequiresSetup(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		setup func(c *lien.Controller, reg *invoice.Registry, led *credit.Ledger)
		opts  []lien.Option
	}{
		{
			name: "no originator",
			setup: func(c *lien.Controller, reg *invoice.Registry, led *credit.Ledger) {
				_ = reg.TransferAdmin(deployer, c.Address())
				_ = led.TransferIssuer(deployer, c.Address())
			},
		},
		{
			name: "registry admin not handed off",
			setup: func(c *lien.Controller, _ *invoice.Registry, led *credit.Ledger) {
				_ = led.TransferIssuer(deployer, c.Address())
			},
			opts: []lien.Option{lien.WithOriginator(originator)},
		},
		{
			name: "ledger issuer not handed off",
			setup: func(c *lien.Controller, reg *invoice.Registry, _ *credit.Ledger) {
				_ = reg.TransferAdmin(deployer, c.Address())
			},
			opts: []lien.Option{lien.WithOriginator(originator)},
		},
		{
			name: "roles handed to someone else",
			setup: func(_ *lien.Controller, reg *invoice.Registry, led *credit.Ledger) {
				_ = reg.TransferAdmin(deployer, bob)
				_ = led.TransferIssuer(deployer, bob)
			},
			opts: []lien.Option{lien.WithOriginator(originator)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := invoice.NewRegistry(deployer)
			led := credit.NewLedger(deployer)
			c := lien.New(reg, led, memory.New(), tt.opts...)
			tt.setup(c, reg, led)

			err := c.Start(ctx)
			require.ErrorIs(t, err, lien.ErrSetupIncomplete)
			assert.True(t, lien.IsState(err))
		})
	}
}

func TestStartTwiceAndStop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New())

	assert.ErrorIs(t, f.c.Start(ctx), lien.ErrAlreadyStarted)
	require.NoError(t, f.c.Stop())
	assert.ErrorIs(t, f.c.Stop(), lien.ErrNotStarted)
	assert.ErrorIs(t, f.c.CreateInvoice(ctx, originator, alice, 1, 100, maturity), lien.ErrNotStarted)
}

func TestStoppedControllerCannotRestart(t *testing.T) {
	f := newFixture(t, memory.New())
	require.NoError(t, f.c.Stop())

	err := f.c.Start(context.Background())
	require.ErrorIs(t, err, lien.ErrStoreClosed)
	assert.True(t, lien.IsState(err))
	assert.ErrorIs(t, f.c.Stop(), lien.ErrNotStarted)
}

func TestCustomAddress(t *testing.T) {
	f := started(t, lien.WithAddress("vault"))
	assert.Equal(t, types.Address("vault"), f.c.Address())
	assert.Equal(t, types.Address("vault"), f.reg.Admin())

	f.deposited(t, alice, 1, 100)
	owner, err := f.c.OwnerOf(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, types.Address("vault"), owner)
}

// ──────────────────────────────────────────────────
// Operations
// ──────────────────────────────────────────────────

func TestCreateInvoice(t *testing.T) {
	ctx := context.Background()
	f := started(t)

	require.NoError(t, f.c.CreateInvoice(ctx, originator, alice, 1, 100, maturity))

	inv, err := f.c.GetInvoice(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, alice, inv.Holder)
	assert.Equal(t, uint64(100), inv.FaceValue)
	assert.Equal(t, maturity, inv.Maturity)
	assert.False(t, inv.Paid)

	onSale, err := f.c.OnSale(ctx, 1)
	require.NoError(t, err)
	assert.False(t, onSale)

	events := f.journal(t)
	require.Len(t, events, 1)
	assert.Equal(t, event.KindInvoiceCreated, events[0].Kind)
	assert.Equal(t, originator, events[0].Actor)
	assert.Equal(t, uint64(100), events[0].FaceValue)
	assert.Equal(t, maturity, events[0].Maturity)
}

func TestCreateInvoiceErrors(t *testing.T) {
	ctx := context.Background()
	f := started(t)
	require.NoError(t, f.c.CreateInvoice(ctx, originator, alice, 1, 100, maturity))

	tests := []struct {
		name   string
		caller types.Address
		owner  types.Address
		id     invoice.ClaimID
		face   uint64
		mat    uint64
		want   error
	}{
		{"not originator", alice, alice, 2, 100, maturity, lien.ErrNotValidMinter},
		{"zero id", originator, alice, 0, 100, maturity, lien.ErrInvalidID},
		{"zero face", originator, alice, 2, 0, maturity, lien.ErrInvalidValue},
		{"zero maturity", originator, alice, 2, 100, 0, lien.ErrInvalidMaturity},
		{"duplicate", originator, bob, 1, 100, maturity, lien.ErrDuplicateID},
		{"empty owner", originator, "", 2, 100, maturity, lien.ErrZeroAddress},
		{"empty caller", "", alice, 2, 100, maturity, lien.ErrZeroAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.c.CreateInvoice(ctx, tt.caller, tt.owner, tt.id, tt.face, tt.mat)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Len(t, f.journal(t), 1)
	owner, err := f.c.OwnerOf(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, alice, owner)
}

func TestDepositInvoice(t *testing.T) {
	ctx := context.Background()
	f := started(t)
	require.NoError(t, f.c.CreateInvoice(ctx, originator, alice, 1, 100, maturity))

	// The controller has not been authorized yet.
	err := f.c.DepositInvoice(ctx, alice, 1)
	require.ErrorIs(t, err, lien.ErrNotAuthorized)

	require.NoError(t, f.c.ApproveInvoice(ctx, alice, 1, f.c.Address()))

	// Only the holder can deposit.
	require.ErrorIs(t, f.c.DepositInvoice(ctx, bob, 1), lien.ErrNotHolder)
	require.ErrorIs(t, f.c.DepositInvoice(ctx, alice, 2), lien.ErrNotFound)

	require.NoError(t, f.c.DepositInvoice(ctx, alice, 1))

	assert.Equal(t, uint64(90), f.c.CollateralAllowance(ctx, alice))
	onSale, err := f.c.OnSale(ctx, 1)
	require.NoError(t, err)
	assert.True(t, onSale)
	assert.Equal(t, types.ZeroAddress, f.reg.Authorized(1))

	// Escrowed claims cannot be deposited again.
	require.ErrorIs(t, f.c.DepositInvoice(ctx, alice, 1), lien.ErrNotHolder)
	assert.Equal(t, uint64(90), f.c.CollateralAllowance(ctx, alice))

	events := f.journal(t)
	require.Len(t, events, 4)
	assert.Equal(t, event.KindInvoiceTransferred, events[2].Kind)
	assert.Equal(t, event.KindInvoiceDeposited, events[3].Kind)
	assert.Equal(t, alice, events[3].From)
	assert.Equal(t, uint64(90), events[3].Amount)
	assert.Equal(t, events[2].OpID, events[3].OpID)
	assert.NotEqual(t, events[1].OpID, events[2].OpID)
}

func TestMintCoins(t *testing.T) {
	ctx := context.Background()
	f := started(t)
	f.deposited(t, alice, 1, 100)

	tests := []struct {
		name   string
		caller types.Address
		user   types.Address
		amount uint64
		want   error
	}{
		{"for someone else", bob, alice, 10, lien.ErrNotValidUser},
		{"zero amount", alice, alice, 0, lien.ErrNoValidAmount},
		{"beyond allowance", alice, alice, 91, lien.ErrNotEnoughCollateral},
		{"no allowance", bob, bob, 1, lien.ErrNotEnoughCollateral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, f.c.MintCoins(ctx, tt.caller, tt.user, tt.amount), tt.want)
		})
	}

	require.NoError(t, f.c.MintCoins(ctx, alice, alice, 40))
	assert.Equal(t, uint64(50), f.c.CollateralAllowance(ctx, alice))
	assert.Equal(t, uint64(40), f.c.BalanceOf(ctx, alice))

	require.NoError(t, f.c.MintCoins(ctx, alice, alice, 50))
	assert.Equal(t, uint64(0), f.c.CollateralAllowance(ctx, alice))
	assert.Equal(t, uint64(90), f.c.TotalSupply(ctx))

	require.ErrorIs(t, f.c.MintCoins(ctx, alice, alice, 1), lien.ErrNotEnoughCollateral)
}

func TestDepositInvoiceAndMintCoins(t *testing.T) {
	ctx := context.Background()

	// Composed operation.
	composed := started(t)
	require.NoError(t, composed.c.CreateInvoice(ctx, originator, alice, 1, 250, maturity))
	require.NoError(t, composed.c.ApproveInvoice(ctx, alice, 1, composed.c.Address()))
	require.NoError(t, composed.c.DepositInvoiceAndMintCoins(ctx, alice, 1))

	// Same effect in two steps.
	stepwise := started(t)
	stepwise.deposited(t, alice, 1, 250)
	require.NoError(t, stepwise.c.MintCoins(ctx, alice, alice, stepwise.c.CollateralAllowance(ctx, alice)))

	for _, f := range []*fixture{composed, stepwise} {
		assert.Equal(t, uint64(0), f.c.CollateralAllowance(ctx, alice))
		assert.Equal(t, uint64(225), f.c.BalanceOf(ctx, alice))
		assert.Equal(t, uint64(225), f.c.TotalSupply(ctx))
		onSale, err := f.c.OnSale(ctx, 1)
		require.NoError(t, err)
		assert.True(t, onSale)
	}

	events := composed.journal(t)
	last := events[len(events)-1]
	assert.Equal(t, event.KindCoinsMinted, last.Kind)
	assert.Equal(t, events[len(events)-2].OpID, last.OpID)
}

func TestDepositInvoiceAndMintCoinsMintsWholeAllowance(t *testing.T) {
	ctx := context.Background()
	f := started(t)
	f.deposited(t, alice, 1, 100)

	require.NoError(t, f.c.CreateInvoice(ctx, originator, alice, 2, 100, maturity))
	require.NoError(t, f.c.ApproveInvoice(ctx, alice, 2, f.c.Address()))
	require.NoError(t, f.c.DepositInvoiceAndMintCoins(ctx, alice, 2))

	assert.Equal(t, uint64(0), f.c.CollateralAllowance(ctx, alice))
	assert.Equal(t, uint64(180), f.c.BalanceOf(ctx, alice))
}

func TestDepositInvoiceAndMintCoinsIsAtomic(t *testing.T) {
	ctx := context.Background()
	f := started(t)

	// Discount(1) is zero, so the mint half fails and the deposit is undone.
	require.NoError(t, f.c.CreateInvoice(ctx, originator, alice, 1, 1, maturity))
	require.NoError(t, f.c.ApproveInvoice(ctx, alice, 1, f.c.Address()))
	before := len(f.journal(t))

	err := f.c.DepositInvoiceAndMintCoins(ctx, alice, 1)
	require.ErrorIs(t, err, lien.ErrNoValidAmount)

	owner, err := f.c.OwnerOf(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, alice, owner)
	assert.Equal(t, f.c.Address(), f.reg.Authorized(1))
	assert.Equal(t, uint64(0), f.c.CollateralAllowance(ctx, alice))
	assert.Len(t, f.journal(t), before)
}

func TestBuyInvoice(t *testing.T) {
	ctx := context.Background()
	f := started(t)
	f.deposited(t, alice, 1, 100)
	require.NoError(t, f.c.MintCoins(ctx, alice, alice, 90))
	require.NoError(t, f.c.CreateInvoice(ctx, originator, carol, 2, 100, maturity))

	require.ErrorIs(t, f.c.BuyInvoice(ctx, alice, 3), lien.ErrNotFound)
	require.ErrorIs(t, f.c.BuyInvoice(ctx, bob, 1), lien.ErrNoInvoiceCoins)
	// Coins are checked before sale status.
	require.ErrorIs(t, f.c.BuyInvoice(ctx, bob, 2), lien.ErrNoInvoiceCoins)
	require.ErrorIs(t, f.c.BuyInvoice(ctx, alice, 2), lien.ErrTokenNotOnSale)

	require.NoError(t, f.c.BuyInvoice(ctx, alice, 1))

	owner, err := f.c.OwnerOf(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, alice, owner)
	assert.Equal(t, uint64(0), f.c.BalanceOf(ctx, alice))
	assert.Equal(t, uint64(0), f.c.TotalSupply(ctx))

	onSale, err := f.c.OnSale(ctx, 1)
	require.NoError(t, err)
	assert.False(t, onSale)

	events := f.journal(t)
	tail := events[len(events)-3:]
	assert.Equal(t, event.KindCoinsBurned, tail[0].Kind)
	assert.Equal(t, event.KindInvoiceTransferred, tail[1].Kind)
	assert.Equal(t, event.KindInvoiceBought, tail[2].Kind)
	assert.Equal(t, alice, tail[2].To)
	assert.Equal(t, uint64(90), tail[2].Amount)
}

func TestTransferPassThrough(t *testing.T) {
	ctx := context.Background()
	f := started(t)
	require.NoError(t, f.c.CreateInvoice(ctx, originator, alice, 1, 100, maturity))

	require.ErrorIs(t, f.c.TransferInvoice(ctx, bob, 1, alice, bob), lien.ErrNotAuthorized)
	require.NoError(t, f.c.ApproveInvoice(ctx, alice, 1, bob))
	require.NoError(t, f.c.TransferInvoice(ctx, bob, 1, alice, carol))

	owner, err := f.c.OwnerOf(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, carol, owner)

	// The authorization was consumed.
	require.ErrorIs(t, f.c.TransferInvoice(ctx, bob, 1, carol, bob), lien.ErrNotAuthorized)

	require.ErrorIs(t, f.c.TransferCoins(ctx, alice, bob, 1), lien.ErrInsufficientBalance)
	require.ErrorIs(t, f.c.TransferCoins(ctx, alice, "", 0), lien.ErrZeroAddress)
}

func TestControllerCannotBeCaller(t *testing.T) {
	ctx := context.Background()
	f := started(t)
	f.deposited(t, alice, 1, 100)

	err := f.c.TransferInvoice(ctx, f.c.Address(), 1, f.c.Address(), bob)
	require.ErrorIs(t, err, lien.ErrNotValidUser)
	assert.True(t, lien.IsAuthorization(err))

	err = f.c.RegisterReceiver(ctx, f.c.Address(), lien.ReceiverFunc(func(context.Context, types.Address, types.Address, invoice.ClaimID) error {
		return nil
	}))
	require.ErrorIs(t, err, lien.ErrNotValidUser)
}

func TestUnsolicitedTransferToController(t *testing.T) {
	ctx := context.Background()
	f := started(t)
	require.NoError(t, f.c.CreateInvoice(ctx, originator, alice, 1, 100, maturity))

	err := f.c.TransferInvoice(ctx, alice, 1, alice, f.c.Address())
	require.ErrorIs(t, err, lien.ErrUnsolicitedTransfer)
	require.ErrorIs(t, err, lien.ErrRejected)

	owner, err := f.c.OwnerOf(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, alice, owner)
	assert.Equal(t, uint64(0), f.c.CollateralAllowance(ctx, alice))
}

// ──────────────────────────────────────────────────
// Scenarios
// ──────────────────────────────────────────────────

func TestScenarioDepositMintTransferBuy(t *testing.T) {
	ctx := context.Background()
	f := started(t)

	require.NoError(t, f.c.CreateInvoice(ctx, originator, alice, 1, 100, 86400))
	require.NoError(t, f.c.ApproveInvoice(ctx, alice, 1, f.c.Address()))
	require.NoError(t, f.c.DepositInvoice(ctx, alice, 1))
	assert.Equal(t, uint64(90), f.c.CollateralAllowance(ctx, alice))

	require.NoError(t, f.c.MintCoins(ctx, alice, alice, 90))
	assert.Equal(t, uint64(90), f.c.BalanceOf(ctx, alice))
	assert.Equal(t, uint64(0), f.c.CollateralAllowance(ctx, alice))

	require.ErrorIs(t, f.c.BuyInvoice(ctx, bob, 1), lien.ErrNoInvoiceCoins)

	require.NoError(t, f.c.TransferCoins(ctx, alice, bob, 90))
	require.NoError(t, f.c.BuyInvoice(ctx, bob, 1))

	owner, err := f.c.OwnerOf(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, bob, owner)
	assert.Equal(t, uint64(0), f.c.BalanceOf(ctx, bob))
	assert.Equal(t, uint64(0), f.c.TotalSupply(ctx))

	sol := f.c.Solvency(ctx)
	assert.True(t, sol.Solvent())
	assert.Equal(t, 0, sol.Escrowed)
}

func TestZeroBalanceAttacker(t *testing.T) {
	ctx := context.Background()
	f := started(t)
	const mallory types.Address = "mallory"

	f.deposited(t, alice, 1, 100)
	require.NoError(t, f.c.CreateInvoice(ctx, originator, bob, 2, 500, maturity))
	before := f.c.Solvency(ctx)
	journaled := len(f.journal(t))

	attempts := []struct {
		name string
		call func() error
		want error
	}{
		{"create invoice", func() error { return f.c.CreateInvoice(ctx, mallory, mallory, 3, 1000, maturity) }, lien.ErrNotValidMinter},
		{"mint for alice", func() error { return f.c.MintCoins(ctx, mallory, alice, 90) }, lien.ErrNotValidUser},
		{"mint for self", func() error { return f.c.MintCoins(ctx, mallory, mallory, 1) }, lien.ErrNotEnoughCollateral},
		{"buy escrowed", func() error { return f.c.BuyInvoice(ctx, mallory, 1) }, lien.ErrNoInvoiceCoins},
		{"deposit foreign", func() error { return f.c.DepositInvoice(ctx, mallory, 2) }, lien.ErrNotHolder},
		{"steal held", func() error { return f.c.TransferInvoice(ctx, mallory, 2, bob, mallory) }, lien.ErrNotAuthorized},
		{"steal escrowed", func() error { return f.c.TransferInvoice(ctx, mallory, 1, f.c.Address(), mallory) }, lien.ErrNotAuthorized},
		{"approve foreign", func() error { return f.c.ApproveInvoice(ctx, mallory, 2, mallory) }, lien.ErrNotHolder},
		{"spend coins", func() error { return f.c.TransferCoins(ctx, mallory, alice, 1) }, lien.ErrInsufficientBalance},
		{"deposit and mint", func() error { return f.c.DepositInvoiceAndMintCoins(ctx, mallory, 2) }, lien.ErrNotHolder},
	}

	for _, a := range attempts {
		t.Run(a.name, func(t *testing.T) {
			assert.ErrorIs(t, a.call(), a.want)
		})
	}

	assert.Equal(t, before, f.c.Solvency(ctx))
	assert.Equal(t, uint64(0), f.c.BalanceOf(ctx, mallory))
	assert.Equal(t, uint64(0), f.c.CollateralAllowance(ctx, mallory))
	assert.Len(t, f.journal(t), journaled)
}

// ──────────────────────────────────────────────────
// Re-entrancy and rollback
// ──────────────────────────────────────────────────

func TestReentrantCallsAreRejected(t *testing.T) {
	ctx := context.Background()
	f := started(t)
	f.deposited(t, alice, 1, 100)
	require.NoError(t, f.c.MintCoins(ctx, alice, alice, 90))
	require.NoError(t, f.c.TransferCoins(ctx, alice, bob, 90))

	var (
		reentrant []error
		sawOwner  types.Address
		sawSupply uint64
	)
	err := f.c.RegisterReceiver(ctx, bob, lien.ReceiverFunc(func(rctx context.Context, _, _ types.Address, claimID invoice.ClaimID) error {
		sawOwner, _ = f.c.OwnerOf(rctx, claimID)
		sawSupply = f.c.TotalSupply(rctx)
		reentrant = append(reentrant,
			f.c.BuyInvoice(rctx, bob, claimID),
			f.c.MintCoins(rctx, bob, bob, 1),
			f.c.TransferCoins(rctx, bob, alice, 1),
			f.c.RegisterReceiver(rctx, bob, nil),
		)
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, f.c.BuyInvoice(ctx, bob, 1))

	require.Len(t, reentrant, 4)
	for _, err := range reentrant {
		assert.ErrorIs(t, err, lien.ErrReentrantCall)
	}
	// Reads inside the callback see the operation in flight.
	assert.Equal(t, bob, sawOwner)
	assert.Equal(t, uint64(0), sawSupply)

	owner, err := f.c.OwnerOf(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, bob, owner)
}

func TestReentrantCallsWithBackgroundContextAreRejected(t *testing.T) {
	ctx := context.Background()
	f := started(t)
	f.deposited(t, alice, 1, 100)
	require.NoError(t, f.c.MintCoins(ctx, alice, alice, 90))
	require.NoError(t, f.c.TransferCoins(ctx, alice, bob, 90))

	var (
		nested     []error
		sawOwner   types.Address
		sawSupply  uint64
		sawOnSale  bool
		sawBalance uint64
	)
	err := f.c.RegisterReceiver(ctx, bob, lien.ReceiverFunc(func(context.Context, types.Address, types.Address, invoice.ClaimID) error {
		bg := context.Background()
		sawOwner, _ = f.c.OwnerOf(bg, 1)
		sawSupply = f.c.TotalSupply(bg)
		sawOnSale, _ = f.c.OnSale(bg, 1)
		sawBalance = f.c.BalanceOf(bg, bob)
		nested = append(nested,
			f.c.MintCoins(bg, bob, bob, 1),
			f.c.TransferCoins(bg, bob, alice, 1),
			f.c.CreateInvoice(bg, originator, bob, 9, 10, maturity),
			f.c.RegisterReceiver(bg, bob, nil),
			f.c.Stop(),
		)
		return nil
	}))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- f.c.BuyInvoice(ctx, bob, 1) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("BuyInvoice did not return while its receiver called back in")
	}

	require.Len(t, nested, 5)
	for _, err := range nested {
		assert.ErrorIs(t, err, lien.ErrReentrantCall)
	}
	assert.Equal(t, bob, sawOwner)
	assert.Equal(t, uint64(0), sawSupply)
	assert.False(t, sawOnSale)
	assert.Equal(t, uint64(0), sawBalance)

	// The controller keeps serving calls afterwards.
	_, err = f.c.GetInvoice(ctx, 9)
	assert.ErrorIs(t, err, lien.ErrNotFound)
	f.deposited(t, carol, 2, 50)
	assert.Equal(t, uint64(45), f.c.CollateralAllowance(ctx, carol))
}

func TestReadsFromOtherGoroutinesDuringReceiver(t *testing.T) {
	ctx := context.Background()
	f := started(t)
	f.deposited(t, alice, 1, 100)
	require.NoError(t, f.c.MintCoins(ctx, alice, alice, 90))
	require.NoError(t, f.c.TransferCoins(ctx, alice, bob, 90))

	var seen lien.Solvency
	err := f.c.RegisterReceiver(ctx, bob, lien.ReceiverFunc(func(context.Context, types.Address, types.Address, invoice.ClaimID) error {
		got := make(chan lien.Solvency, 1)
		go func() { got <- f.c.Solvency(context.Background()) }()
		select {
		case seen = <-got:
		case <-time.After(5 * time.Second):
			return errors.New("read blocked")
		}
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, f.c.BuyInvoice(ctx, bob, 1))
	assert.Equal(t, lien.Solvency{}, seen)
	assert.Equal(t, lien.Solvency{}, f.c.Solvency(ctx))
}

func TestReceiverRejectionRollsBackBuy(t *testing.T) {
	ctx := context.Background()
	f := started(t)
	f.deposited(t, alice, 1, 100)
	require.NoError(t, f.c.MintCoins(ctx, alice, alice, 90))

	refuse := errors.New("not today")
	require.NoError(t, f.c.RegisterReceiver(ctx, alice, lien.ReceiverFunc(func(context.Context, types.Address, types.Address, invoice.ClaimID) error {
		return refuse
	})))
	journaled := len(f.journal(t))

	err := f.c.BuyInvoice(ctx, alice, 1)
	require.ErrorIs(t, err, refuse)
	require.ErrorIs(t, err, lien.ErrRejected)

	assert.Equal(t, uint64(90), f.c.BalanceOf(ctx, alice))
	assert.Equal(t, uint64(90), f.c.TotalSupply(ctx))
	onSale, err := f.c.OnSale(ctx, 1)
	require.NoError(t, err)
	assert.True(t, onSale)
	assert.Len(t, f.journal(t), journaled)

	require.NoError(t, f.c.RegisterReceiver(ctx, alice, nil))
	require.NoError(t, f.c.BuyInvoice(ctx, alice, 1))
}

type flakyStore struct {
	*memory.Store
	fail bool
}

func (s *flakyStore) Append(ctx context.Context, events []*event.Event) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.Store.Append(ctx, events)
}

func TestJournalFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	s := &flakyStore{Store: memory.New()}
	f := newFixture(t, s)
	defer f.c.Stop()

	f.deposited(t, alice, 1, 100)
	before := f.c.Solvency(ctx)

	s.fail = true
	err := f.c.MintCoins(ctx, alice, alice, 90)
	require.ErrorIs(t, err, lien.ErrJournal)
	assert.True(t, lien.IsRetryable(err))

	assert.Equal(t, before, f.c.Solvency(ctx))
	assert.Equal(t, uint64(90), f.c.CollateralAllowance(ctx, alice))
	assert.Equal(t, uint64(0), f.c.BalanceOf(ctx, alice))

	err = f.c.CreateInvoice(ctx, originator, bob, 2, 100, maturity)
	require.ErrorIs(t, err, lien.ErrJournal)
	_, err = f.c.GetInvoice(ctx, 2)
	require.ErrorIs(t, err, lien.ErrNotFound)

	s.fail = false
	require.NoError(t, f.c.MintCoins(ctx, alice, alice, 90))

	events := f.journal(t)
	for i, e := range events {
		assert.Equal(t, uint64(i+1), e.Seq)
	}
}

// ──────────────────────────────────────────────────
// Journal replay
// ──────────────────────────────────────────────────

func TestSolvencySaturatesInsteadOfOverflowing(t *testing.T) {
	ctx := context.Background()
	f := started(t)
	for i, holder := range []types.Address{alice, bob, carol} {
		f.deposited(t, holder, invoice.ClaimID(i+1), math.MaxUint64)
	}

	sol := f.c.Solvency(ctx)
	assert.Equal(t, 3, sol.Escrowed)
	assert.Equal(t, uint64(math.MaxUint64), sol.Backing)
	assert.Equal(t, uint64(math.MaxUint64), sol.Allowances)
	assert.True(t, sol.Solvent())

	assert.False(t, lien.Solvency{TotalSupply: math.MaxUint64, Allowances: 1, Backing: math.MaxUint64 - 1}.Solvent())
}

func TestReplayRebuildsState(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	first := newFixture(t, s)

	first.deposited(t, alice, 1, 100)
	first.deposited(t, bob, 2, 1000)
	require.NoError(t, first.c.MintCoins(ctx, alice, alice, 60))
	require.NoError(t, first.c.MintCoins(ctx, bob, bob, 900))
	require.NoError(t, first.c.TransferCoins(ctx, bob, carol, 95))
	require.NoError(t, first.c.BuyInvoice(ctx, carol, 1))
	require.NoError(t, first.c.CreateInvoice(ctx, originator, carol, 3, 40, maturity))
	require.NoError(t, first.c.ApproveInvoice(ctx, carol, 3, alice))

	wantInvoices := first.reg.List()
	wantSolvency := first.c.Solvency(ctx)
	wantHolders := first.led.Holders()
	wantBalances := map[types.Address]uint64{}
	wantAllowances := map[types.Address]uint64{}
	for _, a := range []types.Address{alice, bob, carol} {
		wantBalances[a] = first.c.BalanceOf(ctx, a)
		wantAllowances[a] = first.c.CollateralAllowance(ctx, a)
	}
	require.NoError(t, first.c.Stop())

	s.Reopen()
	second := newFixture(t, s)
	defer second.c.Stop()

	got := second.reg.List()
	require.Len(t, got, len(wantInvoices))
	for i := range got {
		assert.Equal(t, wantInvoices[i].ID, got[i].ID)
		assert.Equal(t, wantInvoices[i].Holder, got[i].Holder)
		assert.Equal(t, wantInvoices[i].FaceValue, got[i].FaceValue)
		assert.Equal(t, wantInvoices[i].Maturity, got[i].Maturity)
	}
	assert.Equal(t, wantSolvency, second.c.Solvency(ctx))
	assert.Equal(t, wantHolders, second.led.Holders())
	for _, a := range []types.Address{alice, bob, carol} {
		assert.Equal(t, wantBalances[a], second.c.BalanceOf(ctx, a))
		assert.Equal(t, wantAllowances[a], second.c.CollateralAllowance(ctx, a))
	}
	assert.Equal(t, alice, second.reg.Authorized(3))

	// The journal continues where it left off.
	require.NoError(t, second.c.TransferInvoice(ctx, alice, 3, carol, alice))
	events := second.journal(t)
	for i, e := range events {
		assert.Equal(t, uint64(i+1), e.Seq)
	}
}

func TestReplayRejectsCorruptJournal(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Append(ctx, []*event.Event{
		{Seq: 1, Kind: event.KindInvoiceCreated, ClaimID: 1, To: alice, FaceValue: 100, Maturity: maturity},
		{Seq: 2, Kind: event.KindCoinsMinted, To: alice, Amount: 90},
	}))

	reg := invoice.NewRegistry(deployer)
	led := credit.NewLedger(deployer)
	c := lien.New(reg, led, s, lien.WithOriginator(originator))
	require.NoError(t, reg.TransferAdmin(deployer, c.Address()))
	require.NoError(t, led.TransferIssuer(deployer, c.Address()))

	err := c.Start(ctx)
	require.ErrorIs(t, err, lien.ErrCorrupt)
}

func TestReplayRejectsSequenceGap(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Append(ctx, []*event.Event{
		{Seq: 2, Kind: event.KindInvoiceCreated, ClaimID: 1, To: alice, FaceValue: 100, Maturity: maturity},
	}))

	reg := invoice.NewRegistry(deployer)
	led := credit.NewLedger(deployer)
	c := lien.New(reg, led, s, lien.WithOriginator(originator))
	require.NoError(t, reg.TransferAdmin(deployer, c.Address()))
	require.NoError(t, led.TransferIssuer(deployer, c.Address()))

	require.ErrorIs(t, c.Start(ctx), lien.ErrCorrupt)
}

func TestEventsFilter(t *testing.T) {
	ctx := context.Background()
	f := started(t)
	f.deposited(t, alice, 1, 100)
	f.deposited(t, bob, 2, 100)

	deposits, err := f.c.Events(ctx, event.ListOpts{Kinds: []event.Kind{event.KindInvoiceDeposited}})
	require.NoError(t, err)
	assert.Len(t, deposits, 2)

	mine, err := f.c.Events(ctx, event.ListOpts{Actor: string(alice)})
	require.NoError(t, err)
	require.Len(t, mine, 3)
	for _, e := range mine {
		assert.Equal(t, alice, e.Actor)
		assert.False(t, e.ID.IsNil())
		assert.False(t, e.OpID.IsNil())
		assert.False(t, e.CreatedAt.IsZero())
	}
}

func TestErrorClassifiers(t *testing.T) {
	assert.True(t, lien.IsValidation(lien.ErrNoValidAmount))
	assert.True(t, lien.IsValidation(lien.ErrDuplicateID))
	assert.True(t, lien.IsAuthorization(lien.ErrNotValidMinter))
	assert.True(t, lien.IsAuthorization(lien.ErrReentrantCall))
	assert.True(t, lien.IsSolvency(lien.ErrNotEnoughCollateral))
	assert.True(t, lien.IsSolvency(lien.ErrInsufficientBalance))
	assert.True(t, lien.IsState(lien.ErrTokenNotOnSale))
	assert.True(t, lien.IsRetryable(lien.ErrJournal))
	assert.False(t, lien.IsRetryable(lien.ErrNotFound))
	assert.False(t, lien.IsSolvency(lien.ErrNotFound))
}
