package types

import (
	"errors"
	"fmt"
	"strings"
)

// Address identifies a participant of the ledger: a holder, the originator,
// the controller itself, or any spender a holder authorizes.
//
// Addresses are opaque, case-sensitive strings. The empty Address is the
// zero address and never owns anything.
type Address string

// ZeroAddress is the empty address.
const ZeroAddress Address = ""

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool { return a == ZeroAddress }

// String implements fmt.Stringer.
func (a Address) String() string { return string(a) }

// ParseAddress trims s and rejects empty or whitespace-containing input.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ZeroAddress, fmt.Errorf("types: parse address: empty string")
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return ZeroAddress, fmt.Errorf("types: parse address %q: contains whitespace", s)
	}
	return Address(s), nil
}

// MustAddress is like ParseAddress but panics on error. Use for constants and tests.
func MustAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// ErrZeroAddress is returned when an operation names the zero address where
// a real participant is required.
var ErrZeroAddress = errors.New("types: zero address")
