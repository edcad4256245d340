package lien

import (
	"errors"

	"github.com/xraph/lien/credit"
	"github.com/xraph/lien/event"
	"github.com/xraph/lien/invoice"
	"github.com/xraph/lien/types"
)

// Sentinel errors for controller operations.
var (
	// Access errors
	ErrNotValidMinter      = errors.New("lien: caller is not the invoice originator")
	ErrNotValidUser        = errors.New("lien: caller may not act for this user")
	ErrReentrantCall       = errors.New("lien: re-entrant call")
	ErrUnsolicitedTransfer = errors.New("lien: unsolicited invoice transfer to controller")

	// Amount and collateral errors
	ErrNoValidAmount       = errors.New("lien: amount must be positive")
	ErrNotEnoughCollateral = errors.New("lien: not enough collateral allowance")
	ErrNoInvoiceCoins      = errors.New("lien: not enough coins to buy invoice")

	// Invoice state errors
	ErrTokenNotOnSale = errors.New("lien: invoice is not on sale")

	// Lifecycle errors
	ErrSetupIncomplete = errors.New("lien: setup incomplete")
	ErrNotStarted      = errors.New("lien: controller not started")
	ErrAlreadyStarted  = errors.New("lien: controller already started")

	// Store errors
	ErrJournal      = errors.New("lien: journal append failed")
	ErrDuplicateSeq = errors.New("lien: journal sequence already exists")
	ErrStoreClosed  = errors.New("lien: store is closed")
)

// Errors raised by the registry, the credit ledger and the journal, re-exported
// so callers only need this package for errors.Is checks.
var (
	ErrZeroAddress = types.ErrZeroAddress

	ErrInvalidID       = invoice.ErrInvalidID
	ErrInvalidValue    = invoice.ErrInvalidValue
	ErrInvalidMaturity = invoice.ErrInvalidMaturity
	ErrDuplicateID     = invoice.ErrDuplicateID
	ErrNotFound        = invoice.ErrNotFound
	ErrNotHolder       = invoice.ErrNotHolder
	ErrNotAuthorized   = invoice.ErrNotAuthorized
	ErrNotAdmin        = invoice.ErrNotAdmin
	ErrAdminHandedOff  = invoice.ErrAdminHandedOff
	ErrRejected        = invoice.ErrRejected

	ErrNotIssuer           = credit.ErrNotIssuer
	ErrIssuerHandedOff     = credit.ErrIssuerHandedOff
	ErrInsufficientBalance = credit.ErrInsufficientBalance
	ErrOverflow            = credit.ErrOverflow

	ErrCorrupt = event.ErrCorrupt
)

// IsValidation returns true if the error rejects malformed input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrZeroAddress) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidValue) ||
		errors.Is(err, ErrInvalidMaturity) ||
		errors.Is(err, ErrDuplicateID) ||
		errors.Is(err, ErrNoValidAmount)
}

// IsAuthorization returns true if the caller was not allowed to act.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrNotValidMinter) ||
		errors.Is(err, ErrNotValidUser) ||
		errors.Is(err, ErrReentrantCall) ||
		errors.Is(err, ErrUnsolicitedTransfer) ||
		errors.Is(err, ErrNotHolder) ||
		errors.Is(err, ErrNotAuthorized) ||
		errors.Is(err, ErrNotAdmin) ||
		errors.Is(err, ErrNotIssuer)
}

// IsSolvency returns true if the error protects collateral or balances.
func IsSolvency(err error) bool {
	return errors.Is(err, ErrNotEnoughCollateral) ||
		errors.Is(err, ErrNoInvoiceCoins) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrOverflow)
}

// IsState returns true if the operation does not apply to the current state.
func IsState(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrTokenNotOnSale) ||
		errors.Is(err, ErrRejected) ||
		errors.Is(err, ErrNotStarted) ||
		errors.Is(err, ErrAlreadyStarted) ||
		errors.Is(err, ErrSetupIncomplete) ||
		errors.Is(err, ErrStoreClosed)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrJournal) && !errors.Is(err, ErrDuplicateSeq)
}
