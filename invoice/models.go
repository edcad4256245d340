// Package invoice implements the claim registry: the set of uniquely
// identified invoices, their current holders and the per-invoice one-time
// transfer authorizations.
package invoice

import (
	"context"
	"errors"

	"github.com/xraph/lien/types"
)

// ClaimID identifies an invoice. It is chosen by the originator, must be
// non-zero and is never reused.
type ClaimID uint64

// Invoice is a registered claim. Everything but Holder and Paid is fixed at
// creation.
type Invoice struct {
	types.Entity
	ID        ClaimID       `json:"id"`
	FaceValue uint64        `json:"face_value"`
	Maturity  uint64        `json:"maturity"`
	Paid      bool          `json:"paid"`
	Holder    types.Address `json:"holder"`
}

// Sentinel errors returned by the registry.
var (
	ErrInvalidID       = errors.New("invoice: invalid id")
	ErrInvalidValue    = errors.New("invoice: invalid face value")
	ErrInvalidMaturity = errors.New("invoice: invalid maturity")
	ErrDuplicateID     = errors.New("invoice: duplicate id")
	ErrNotFound        = errors.New("invoice: not found")
	ErrNotHolder       = errors.New("invoice: not holder")
	ErrNotAuthorized   = errors.New("invoice: not authorized")
	ErrNotAdmin        = errors.New("invoice: caller is not the registry admin")
	ErrAdminHandedOff  = errors.New("invoice: admin already handed off")
	ErrRejected        = errors.New("invoice: receiver rejected transfer")
)

// Receiver is notified after an invoice has been transferred to the address
// it is registered for. Returning an error reverts the transfer.
//
// ctx must be used for any call made back into the controller: it carries
// the marker that lets the controller refuse re-entrant calls.
type Receiver interface {
	OnInvoiceReceived(ctx context.Context, operator, from types.Address, claimID ClaimID) error
}

// ReceiverFunc adapts a plain function to Receiver.
type ReceiverFunc func(ctx context.Context, operator, from types.Address, claimID ClaimID) error

// OnInvoiceReceived implements Receiver.
func (f ReceiverFunc) OnInvoiceReceived(ctx context.Context, operator, from types.Address, claimID ClaimID) error {
	return f(ctx, operator, from, claimID)
}
