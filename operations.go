package lien

import (
	"context"
	"fmt"
	"math"

	"github.com/xraph/lien/event"
	"github.com/xraph/lien/invoice"
	"github.com/xraph/lien/types"
)

// Operation names reported to plugins and logs.
const (
	OpCreateInvoice              = "create_invoice"
	OpDepositInvoice             = "deposit_invoice"
	OpMintCoins                  = "mint_coins"
	OpDepositInvoiceAndMintCoins = "deposit_invoice_and_mint_coins"
	OpBuyInvoice                 = "buy_invoice"
	OpApproveInvoice             = "approve_invoice"
	OpTransferInvoice            = "transfer_invoice"
	OpTransferCoins              = "transfer_coins"
)

// ──────────────────────────────────────────────────
// Marketplace
// ──────────────────────────────────────────────────

// CreateInvoice registers a new invoice held by owner. Only the originator
// may call it.
func (c *Controller) CreateInvoice(ctx context.Context, caller, owner types.Address, claimID invoice.ClaimID, faceValue, maturity uint64) error {
	return c.run(ctx, OpCreateInvoice, caller, func(_ context.Context) error {
		if caller != c.originator {
			return ErrNotValidMinter
		}
		e, err := c.registry.Create(c.address, owner, claimID, faceValue, maturity)
		if err != nil {
			return err
		}
		c.record(e)
		return nil
	})
}

// DepositInvoice moves claimID from caller into escrow and raises caller's
// allowance by Discount(face value). caller must first authorize the
// controller with ApproveInvoice.
func (c *Controller) DepositInvoice(ctx context.Context, caller types.Address, claimID invoice.ClaimID) error {
	return c.run(ctx, OpDepositInvoice, caller, func(ctx context.Context) error {
		return c.deposit(ctx, caller, claimID)
	})
}

// MintCoins converts amount of user's allowance into coins. caller must be
// user.
func (c *Controller) MintCoins(ctx context.Context, caller, user types.Address, amount uint64) error {
	return c.run(ctx, OpMintCoins, caller, func(_ context.Context) error {
		if caller != user {
			return ErrNotValidUser
		}
		return c.mint(user, amount)
	})
}

// DepositInvoiceAndMintCoins deposits claimID and mints caller's whole
// allowance in one step. Either both happen or neither does.
func (c *Controller) DepositInvoiceAndMintCoins(ctx context.Context, caller types.Address, claimID invoice.ClaimID) error {
	return c.run(ctx, OpDepositInvoiceAndMintCoins, caller, func(ctx context.Context) error {
		if err := c.deposit(ctx, caller, claimID); err != nil {
			return err
		}
		return c.mint(caller, c.allowances[caller])
	})
}

// BuyInvoice burns Discount(face value) coins from caller and releases the
// escrowed claimID to caller.
func (c *Controller) BuyInvoice(ctx context.Context, caller types.Address, claimID invoice.ClaimID) error {
	return c.run(ctx, OpBuyInvoice, caller, func(ctx context.Context) error {
		inv, err := c.registry.Get(claimID)
		if err != nil {
			return err
		}
		price := Discount(inv.FaceValue)
		if bal := c.ledger.BalanceOf(caller); bal < price {
			return fmt.Errorf("%w: have %d, need %d", ErrNoInvoiceCoins, bal, price)
		}
		if inv.Holder != c.address {
			return ErrTokenNotOnSale
		}

		burned, err := c.ledger.Burn(c.address, caller, price)
		if err != nil {
			return err
		}
		c.record(burned)

		moved, err := c.registry.Transfer(ctx, c.address, claimID, c.address, caller)
		if err != nil {
			return err
		}
		c.record(moved)

		c.record(&event.Event{
			Kind:    event.KindInvoiceBought,
			ClaimID: uint64(claimID),
			To:      caller,
			Amount:  price,
		})
		return nil
	})
}

// ──────────────────────────────────────────────────
// Holder operations
// ──────────────────────────────────────────────────

// ApproveInvoice gives spender a one-time right to transfer claimID. The
// empty address revokes.
func (c *Controller) ApproveInvoice(ctx context.Context, caller types.Address, claimID invoice.ClaimID, spender types.Address) error {
	return c.run(ctx, OpApproveInvoice, caller, func(_ context.Context) error {
		e, err := c.registry.Authorize(caller, claimID, spender)
		if err != nil {
			return err
		}
		c.record(e)
		return nil
	})
}

// TransferInvoice moves claimID from from to to on behalf of caller, who must
// be from or its authorized spender.
func (c *Controller) TransferInvoice(ctx context.Context, caller types.Address, claimID invoice.ClaimID, from, to types.Address) error {
	return c.run(ctx, OpTransferInvoice, caller, func(ctx context.Context) error {
		e, err := c.registry.Transfer(ctx, caller, claimID, from, to)
		if err != nil {
			return err
		}
		c.record(e)
		return nil
	})
}

// TransferCoins moves amount of caller's coins to to.
func (c *Controller) TransferCoins(ctx context.Context, caller, to types.Address, amount uint64) error {
	return c.run(ctx, OpTransferCoins, caller, func(_ context.Context) error {
		e, err := c.ledger.Transfer(caller, to, amount)
		if err != nil {
			return err
		}
		c.record(e)
		return nil
	})
}

// RegisterReceiver installs recv as the callback run when an invoice is
// transferred to addr. A nil recv removes it. The controller's own address
// cannot be claimed.
func (c *Controller) RegisterReceiver(ctx context.Context, addr types.Address, recv invoice.Receiver) error {
	if c.inFlight(ctx) || c.callback.Load() {
		return ErrReentrantCall
	}
	if addr.IsZero() {
		return ErrZeroAddress
	}
	if addr == c.address {
		return fmt.Errorf("%w: receiver for the controller address", ErrNotValidUser)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if recv == nil {
		c.registry.SetReceiver(addr, nil)
		return nil
	}
	c.registry.SetReceiver(addr, c.guarded(recv))
	return nil
}

// ──────────────────────────────────────────────────
// Steps shared by the operations above
// ──────────────────────────────────────────────────

func (c *Controller) deposit(ctx context.Context, caller types.Address, claimID invoice.ClaimID) error {
	inv, err := c.registry.Get(claimID)
	if err != nil {
		return err
	}

	c.depositing = claimID
	moved, err := c.registry.Transfer(ctx, c.address, claimID, caller, c.address)
	c.depositing = 0
	if err != nil {
		return err
	}
	c.record(moved)

	c.record(&event.Event{
		Kind:    event.KindInvoiceDeposited,
		ClaimID: uint64(claimID),
		From:    caller,
		Amount:  Discount(inv.FaceValue),
	})
	return nil
}

func (c *Controller) mint(user types.Address, amount uint64) error {
	if amount == 0 {
		return ErrNoValidAmount
	}
	allowance := c.allowances[user]
	if allowance < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrNotEnoughCollateral, allowance, amount)
	}

	c.setAllowance(user, allowance-amount)
	e, err := c.ledger.Mint(c.address, user, amount)
	if err != nil {
		return err
	}
	c.record(e)
	return nil
}

// onInvoiceReceived is the controller's own receiver. It accepts only the
// claim of the deposit in flight, credits the depositor's allowance and
// rejects everything else.
func (c *Controller) onInvoiceReceived(_ context.Context, operator, from types.Address, claimID invoice.ClaimID) error {
	if operator != c.address || c.depositing == 0 || c.depositing != claimID {
		return ErrUnsolicitedTransfer
	}

	inv, err := c.registry.Get(claimID)
	if err != nil {
		return err
	}
	inc := Discount(inv.FaceValue)
	if c.allowances[from] > math.MaxUint64-inc {
		return ErrOverflow
	}
	c.setAllowance(from, c.allowances[from]+inc)
	return nil
}
