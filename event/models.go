// Package event defines the journal of committed ledger mutations.
//
// Each successful controller operation appends one or more events sharing an
// operation ID. Replaying the journal in sequence order rebuilds the claim
// registry, the credit ledger and every holder's collateral allowance.
package event

import (
	"errors"
	"time"

	"github.com/xraph/lien/id"
	"github.com/xraph/lien/types"
)

// Kind names the state change an event records.
type Kind string

const (
	KindInvoiceCreated     Kind = "invoice.created"
	KindInvoiceApproved    Kind = "invoice.approved"
	KindInvoiceTransferred Kind = "invoice.transferred"
	KindInvoiceDeposited   Kind = "invoice.deposited"
	KindInvoiceBought      Kind = "invoice.bought"
	KindCoinsMinted        Kind = "coins.minted"
	KindCoinsBurned        Kind = "coins.burned"
	KindCoinsTransferred   Kind = "coins.transferred"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindInvoiceCreated, KindInvoiceApproved, KindInvoiceTransferred,
		KindInvoiceDeposited, KindInvoiceBought,
		KindCoinsMinted, KindCoinsBurned, KindCoinsTransferred:
		return true
	}
	return false
}

// Event is one committed state change.
//
// Field use per kind:
//
//	invoice.created      ClaimID, To (initial holder), FaceValue, Maturity
//	invoice.approved     ClaimID, From (holder), To (spender, zero revokes)
//	invoice.transferred  ClaimID, From, To
//	invoice.deposited    ClaimID, From (depositor), Amount (allowance increase)
//	invoice.bought       ClaimID, To (buyer), Amount (coins burned)
//	coins.minted         To, Amount
//	coins.burned         From, Amount
//	coins.transferred    From, To, Amount
//
// Actor is always the caller of the operation that produced the event.
type Event struct {
	Seq       uint64         `json:"seq"`
	ID        id.EventID     `json:"id"`
	OpID      id.OperationID `json:"op_id"`
	Kind      Kind           `json:"kind"`
	ClaimID   uint64         `json:"claim_id,omitempty"`
	Actor     types.Address  `json:"actor"`
	From      types.Address  `json:"from,omitempty"`
	To        types.Address  `json:"to,omitempty"`
	Amount    uint64         `json:"amount,omitempty"`
	FaceValue uint64         `json:"face_value,omitempty"`
	Maturity  uint64         `json:"maturity,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ErrCorrupt is returned when a journal event cannot be applied to the
// state rebuilt from the events before it.
var ErrCorrupt = errors.New("event: journal inconsistent with replayed state")
