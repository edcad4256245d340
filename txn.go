package lien

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/lien/event"
	"github.com/xraph/lien/id"
	"github.com/xraph/lien/invoice"
	"github.com/xraph/lien/types"
)

type inFlightKey struct{}

// inFlight reports whether ctx was handed out by an operation of c that has
// not returned yet.
func (c *Controller) inFlight(ctx context.Context) bool {
	owner, _ := ctx.Value(inFlightKey{}).(*Controller)
	return owner == c
}

// run executes fn as one all-or-nothing operation. Every mutation fn makes
// to the registry, the ledger or the allowances is reverted if fn fails or
// its events cannot be journaled. While a holder's receiver runs, every
// mutating call fails with ErrReentrantCall whatever context it carries.
func (c *Controller) run(ctx context.Context, op string, caller types.Address, fn func(ctx context.Context) error) error {
	if c.inFlight(ctx) || c.callback.Load() {
		return ErrReentrantCall
	}

	began := time.Now()
	events, err := c.commit(ctx, op, caller, fn)
	elapsed := time.Since(began)

	if err != nil {
		c.logFailure(op, caller, err)
	} else {
		c.plugins.EmitEvents(ctx, events)
	}
	c.plugins.EmitOperationCompleted(ctx, op, caller, elapsed, err)

	return err
}

func (c *Controller) commit(ctx context.Context, op string, caller types.Address, fn func(ctx context.Context) error) (events []*event.Event, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view.Lock()
	defer c.view.Unlock()

	if !c.started {
		return nil, ErrNotStarted
	}
	if caller.IsZero() {
		return nil, ErrZeroAddress
	}
	if caller == c.address {
		return nil, fmt.Errorf("%w: controller cannot be the caller", ErrNotValidUser)
	}

	c.registry.Begin()
	c.ledger.Begin()
	c.log.Begin()
	c.pending = nil

	defer func() {
		if err != nil {
			c.log.Rollback()
			c.ledger.Rollback()
			c.registry.Rollback()
			events = nil
		} else {
			c.log.Commit()
			c.ledger.Commit()
			c.registry.Commit()
		}
		c.pending = nil
	}()

	if err = fn(context.WithValue(ctx, inFlightKey{}, c)); err != nil {
		return nil, err
	}
	if err = c.persist(ctx, caller); err != nil {
		return nil, err
	}
	return c.pending, nil
}

// persist stamps the pending events and appends them to the journal.
func (c *Controller) persist(ctx context.Context, caller types.Address) error {
	if len(c.pending) == 0 {
		return nil
	}

	opID := id.NewOperationID()
	now := time.Now().UTC()
	for i, e := range c.pending {
		e.Seq = c.nextSeq + uint64(i) + 1
		e.ID = id.NewEventID()
		e.OpID = opID
		e.Actor = caller
		e.CreatedAt = now
	}

	if err := c.store.Append(ctx, c.pending); err != nil {
		return fmt.Errorf("%w: %w", ErrJournal, err)
	}
	c.nextSeq += uint64(len(c.pending))
	return nil
}

// guarded wraps a holder's receiver so that, while it runs, reads are served
// from the operation in flight and nested calls fail instead of waiting on mu.
// It is only ever invoked by a registry transfer inside commit.
func (c *Controller) guarded(recv invoice.Receiver) invoice.Receiver {
	return invoice.ReceiverFunc(func(ctx context.Context, operator, from types.Address, claimID invoice.ClaimID) error {
		c.callback.Store(true)
		c.view.Unlock()
		defer func() {
			c.view.Lock()
			c.callback.Store(false)
		}()
		return recv.OnInvoiceReceived(ctx, operator, from, claimID)
	})
}

// record queues e for the journal. Nil events are ignored.
func (c *Controller) record(e *event.Event) {
	if e != nil {
		c.pending = append(c.pending, e)
	}
}

func (c *Controller) setAllowance(holder types.Address, v uint64) {
	prev, had := c.allowances[holder]
	if v == 0 {
		delete(c.allowances, holder)
	} else {
		c.allowances[holder] = v
	}
	c.log.Push(func() {
		if had {
			c.allowances[holder] = prev
		} else {
			delete(c.allowances, holder)
		}
	})
}

func (c *Controller) logFailure(op string, caller types.Address, err error) {
	level := slog.LevelDebug
	switch {
	case errors.Is(err, ErrJournal):
		level = slog.LevelError
	case IsAuthorization(err):
		level = slog.LevelWarn
	}
	c.logger.Log(context.Background(), level, "lien operation failed",
		"op", op,
		"caller", caller,
		"error", err,
	)
}
