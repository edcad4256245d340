package invoice

import (
	"context"
	"fmt"
	"sort"

	"github.com/xraph/lien/event"
	"github.com/xraph/lien/internal/undo"
	"github.com/xraph/lien/types"
)

// Registry owns every invoice and its holder.
//
// Creation is restricted to a single admin. The admin starts as the address
// passed to NewRegistry and may be handed off exactly once, normally to the
// controller. A Registry is not safe for concurrent use; the controller
// serializes all access.
type Registry struct {
	admin     types.Address
	handedOff bool

	invoices  map[ClaimID]*Invoice
	approvals map[ClaimID]types.Address
	receivers map[types.Address]Receiver

	log undo.Log
}

// NewRegistry creates an empty registry administered by admin.
func NewRegistry(admin types.Address) *Registry {
	return &Registry{
		admin:     admin,
		invoices:  make(map[ClaimID]*Invoice),
		approvals: make(map[ClaimID]types.Address),
		receivers: make(map[types.Address]Receiver),
	}
}

// Admin returns the address allowed to create invoices.
func (r *Registry) Admin() types.Address { return r.admin }

// TransferAdmin hands the admin role to next. It can happen only once.
func (r *Registry) TransferAdmin(caller, next types.Address) error {
	if caller != r.admin {
		return ErrNotAdmin
	}
	if r.handedOff {
		return ErrAdminHandedOff
	}
	if next.IsZero() {
		return types.ErrZeroAddress
	}
	r.admin = next
	r.handedOff = true
	return nil
}

// SetReceiver registers the callback run when an invoice is transferred to
// addr. A nil receiver removes the registration.
func (r *Registry) SetReceiver(addr types.Address, recv Receiver) {
	if recv == nil {
		delete(r.receivers, addr)
		return
	}
	r.receivers[addr] = recv
}

// Create registers a new invoice held by owner.
func (r *Registry) Create(caller, owner types.Address, claimID ClaimID, faceValue, maturity uint64) (*event.Event, error) {
	if caller != r.admin {
		return nil, ErrNotAdmin
	}
	switch {
	case claimID == 0:
		return nil, ErrInvalidID
	case faceValue == 0:
		return nil, ErrInvalidValue
	case maturity == 0:
		return nil, ErrInvalidMaturity
	case owner.IsZero():
		return nil, types.ErrZeroAddress
	}
	if _, exists := r.invoices[claimID]; exists {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateID, claimID)
	}

	e := &event.Event{
		Kind:      event.KindInvoiceCreated,
		ClaimID:   uint64(claimID),
		Actor:     caller,
		To:        owner,
		FaceValue: faceValue,
		Maturity:  maturity,
	}
	r.applyCreated(e)
	return e, nil
}

// Authorize grants spender a one-time right to transfer claimID. Only the
// current holder may call it. Authorizing the zero address revokes.
func (r *Registry) Authorize(caller types.Address, claimID ClaimID, spender types.Address) (*event.Event, error) {
	inv, ok := r.invoices[claimID]
	if !ok {
		return nil, ErrNotFound
	}
	if inv.Holder != caller {
		return nil, ErrNotHolder
	}

	e := &event.Event{
		Kind:    event.KindInvoiceApproved,
		ClaimID: uint64(claimID),
		Actor:   caller,
		From:    caller,
		To:      spender,
	}
	r.applyApproved(e)
	return e, nil
}

// Transfer moves claimID from from to to. caller must be from or the spender
// from authorized for this invoice. The authorization is cleared. If to has
// a Receiver it runs after the holder change; its error reverts the transfer.
func (r *Registry) Transfer(ctx context.Context, caller types.Address, claimID ClaimID, from, to types.Address) (*event.Event, error) {
	inv, ok := r.invoices[claimID]
	if !ok {
		return nil, ErrNotFound
	}
	if inv.Holder != from {
		return nil, ErrNotHolder
	}
	if caller != from && r.approvals[claimID] != caller {
		return nil, ErrNotAuthorized
	}
	if to.IsZero() {
		return nil, types.ErrZeroAddress
	}

	e := &event.Event{
		Kind:    event.KindInvoiceTransferred,
		ClaimID: uint64(claimID),
		Actor:   caller,
		From:    from,
		To:      to,
	}
	revert := r.applyTransferred(e)

	if recv, ok := r.receivers[to]; ok {
		if err := recv.OnInvoiceReceived(ctx, caller, from, claimID); err != nil {
			revert()
			return nil, fmt.Errorf("%w: %w", ErrRejected, err)
		}
	}
	r.log.Push(revert)
	return e, nil
}

// Get returns a copy of the invoice.
func (r *Registry) Get(claimID ClaimID) (*Invoice, error) {
	inv, ok := r.invoices[claimID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

// OwnerOf returns the current holder of claimID.
func (r *Registry) OwnerOf(claimID ClaimID) (types.Address, error) {
	inv, ok := r.invoices[claimID]
	if !ok {
		return types.ZeroAddress, ErrNotFound
	}
	return inv.Holder, nil
}

// Authorized returns the spender currently authorized for claimID, if any.
func (r *Registry) Authorized(claimID ClaimID) types.Address {
	return r.approvals[claimID]
}

// List returns copies of all invoices ordered by id.
func (r *Registry) List() []*Invoice {
	out := make([]*Invoice, 0, len(r.invoices))
	for _, inv := range r.invoices {
		cp := *inv
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered invoices.
func (r *Registry) Len() int { return len(r.invoices) }

// ──────────────────────────────────────────────────
// Savepoints and replay
// ──────────────────────────────────────────────────

// Begin opens a savepoint.
func (r *Registry) Begin() { r.log.Begin() }

// Commit keeps every mutation since Begin.
func (r *Registry) Commit() { r.log.Commit() }

// Rollback reverts every mutation since Begin.
func (r *Registry) Rollback() { r.log.Rollback() }

// Restore applies a committed journal event without authorization checks.
// Events of kinds the registry does not own are ignored.
func (r *Registry) Restore(e *event.Event) error {
	claimID := ClaimID(e.ClaimID)
	switch e.Kind {
	case event.KindInvoiceCreated:
		if _, exists := r.invoices[claimID]; exists || claimID == 0 {
			return fmt.Errorf("%w: seq %d creates invoice %d twice", event.ErrCorrupt, e.Seq, claimID)
		}
		r.applyCreated(e)
	case event.KindInvoiceApproved:
		inv, ok := r.invoices[claimID]
		if !ok || inv.Holder != e.From {
			return fmt.Errorf("%w: seq %d approves invoice %d from non-holder", event.ErrCorrupt, e.Seq, claimID)
		}
		r.applyApproved(e)
	case event.KindInvoiceTransferred:
		inv, ok := r.invoices[claimID]
		if !ok || inv.Holder != e.From {
			return fmt.Errorf("%w: seq %d transfers invoice %d from non-holder", event.ErrCorrupt, e.Seq, claimID)
		}
		r.log.Push(r.applyTransferred(e))
	}
	return nil
}

func (r *Registry) applyCreated(e *event.Event) {
	claimID := ClaimID(e.ClaimID)
	entity := types.NewEntity()
	if !e.CreatedAt.IsZero() {
		entity.CreatedAt, entity.UpdatedAt = e.CreatedAt, e.CreatedAt
	}
	r.invoices[claimID] = &Invoice{
		Entity:    entity,
		ID:        claimID,
		FaceValue: e.FaceValue,
		Maturity:  e.Maturity,
		Holder:    e.To,
	}
	r.log.Push(func() { delete(r.invoices, claimID) })
}

func (r *Registry) applyApproved(e *event.Event) {
	claimID := ClaimID(e.ClaimID)
	prev, had := r.approvals[claimID]
	r.setApproval(claimID, e.To)
	r.log.Push(func() {
		if had {
			r.approvals[claimID] = prev
		} else {
			delete(r.approvals, claimID)
		}
	})
}

// applyTransferred returns its inverse instead of logging it, so Transfer can
// revert a rejected transfer on its own.
func (r *Registry) applyTransferred(e *event.Event) func() {
	claimID := ClaimID(e.ClaimID)
	inv := r.invoices[claimID]
	prevHolder, prevUpdated := inv.Holder, inv.UpdatedAt
	prevSpender, hadSpender := r.approvals[claimID]

	inv.Holder = e.To
	inv.Touch()
	delete(r.approvals, claimID)

	revert := func() {
		inv.Holder, inv.UpdatedAt = prevHolder, prevUpdated
		if hadSpender {
			r.approvals[claimID] = prevSpender
		}
	}
	return revert
}

func (r *Registry) setApproval(claimID ClaimID, spender types.Address) {
	if spender.IsZero() {
		delete(r.approvals, claimID)
		return
	}
	r.approvals[claimID] = spender
}
