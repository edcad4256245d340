package lien

import (
	"context"
	"fmt"
	"math"

	"github.com/xraph/lien/event"
)

// replay rebuilds the registry, the ledger and the allowances from the
// journal. Sequence numbers must be dense and start at 1.
func (c *Controller) replay(ctx context.Context) (int, error) {
	var n int
	after := uint64(0)

	for {
		page, err := c.store.List(ctx, event.ListOpts{AfterSeq: after, Limit: replayPageSize})
		if err != nil {
			return n, fmt.Errorf("lien: replay: %w", err)
		}

		for _, e := range page {
			if e.Seq != after+1 {
				return n, fmt.Errorf("%w: expected seq %d, got %d", ErrCorrupt, after+1, e.Seq)
			}
			if err := c.restore(e); err != nil {
				return n, err
			}
			after = e.Seq
			n++
		}

		if len(page) < replayPageSize {
			break
		}
	}

	c.nextSeq = after
	return n, nil
}

func (c *Controller) restore(e *event.Event) error {
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: seq %d has unknown kind %q", ErrCorrupt, e.Seq, e.Kind)
	}
	if err := c.registry.Restore(e); err != nil {
		return err
	}
	if err := c.ledger.Restore(e); err != nil {
		return err
	}

	switch e.Kind {
	case event.KindInvoiceDeposited:
		if c.allowances[e.From] > math.MaxUint64-e.Amount {
			return fmt.Errorf("%w: seq %d overflows allowance of %s", ErrCorrupt, e.Seq, e.From)
		}
		c.setAllowance(e.From, c.allowances[e.From]+e.Amount)
	case event.KindCoinsMinted:
		if c.allowances[e.To] < e.Amount {
			return fmt.Errorf("%w: seq %d mints beyond allowance of %s", ErrCorrupt, e.Seq, e.To)
		}
		c.setAllowance(e.To, c.allowances[e.To]-e.Amount)
	}
	return nil
}
