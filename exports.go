package lien

import (
	"github.com/xraph/lien/event"
	"github.com/xraph/lien/invoice"
	"github.com/xraph/lien/types"
)

// Re-export common types for convenience so users don't have to import the
// sub-packages for everyday calls.

// Address is re-exported from types package.
type Address = types.Address

// Entity is re-exported from types package.
type Entity = types.Entity

// ClaimID is re-exported from invoice package.
type ClaimID = invoice.ClaimID

// Invoice is re-exported from invoice package.
type Invoice = invoice.Invoice

// Receiver is re-exported from invoice package.
type Receiver = invoice.Receiver

// ReceiverFunc is re-exported from invoice package.
type ReceiverFunc = invoice.ReceiverFunc

// Event is re-exported from event package.
type Event = event.Event

// ListOpts is re-exported from event package.
type ListOpts = event.ListOpts

// Re-export constructors
var (
	ParseAddress = types.ParseAddress
	NewEntity    = types.NewEntity
)
