// Package credit implements the fungible credit ledger minted against
// escrowed invoices.
//
// Minting and burning are restricted to a single issuer. The issuer starts as
// the address passed to NewLedger and is handed off exactly once, normally to
// the controller, after which the ledger has no administrative surface left.
package credit

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/xraph/lien/event"
	"github.com/xraph/lien/internal/undo"
	"github.com/xraph/lien/types"
)

// Sentinel errors returned by the ledger.
var (
	ErrNotIssuer           = errors.New("credit: caller is not the issuer")
	ErrIssuerHandedOff     = errors.New("credit: issuer already handed off")
	ErrInsufficientBalance = errors.New("credit: insufficient balance")
	ErrOverflow            = errors.New("credit: supply overflow")
)

// Ledger tracks balances and total supply. It is not safe for concurrent use.
type Ledger struct {
	issuer    types.Address
	handedOff bool

	balances map[types.Address]uint64
	supply   uint64

	log undo.Log
}

// NewLedger creates an empty ledger with the given issuer.
func NewLedger(issuer types.Address) *Ledger {
	return &Ledger{
		issuer:   issuer,
		balances: make(map[types.Address]uint64),
	}
}

// Issuer returns the address allowed to mint and burn.
func (l *Ledger) Issuer() types.Address { return l.issuer }

// TransferIssuer hands the issuer role to next. It can happen only once.
func (l *Ledger) TransferIssuer(caller, next types.Address) error {
	if caller != l.issuer {
		return ErrNotIssuer
	}
	if l.handedOff {
		return ErrIssuerHandedOff
	}
	if next.IsZero() {
		return types.ErrZeroAddress
	}
	l.issuer = next
	l.handedOff = true
	return nil
}

// Mint credits amount to to. A zero amount changes nothing and returns a nil
// event; rejecting zero mints is left to the caller.
func (l *Ledger) Mint(caller, to types.Address, amount uint64) (*event.Event, error) {
	if caller != l.issuer {
		return nil, ErrNotIssuer
	}
	if to.IsZero() {
		return nil, types.ErrZeroAddress
	}
	if amount == 0 {
		return nil, nil
	}
	if l.supply > math.MaxUint64-amount {
		return nil, ErrOverflow
	}

	e := &event.Event{Kind: event.KindCoinsMinted, Actor: caller, To: to, Amount: amount}
	l.applyMinted(e)
	return e, nil
}

// Burn destroys amount from from's balance.
func (l *Ledger) Burn(caller, from types.Address, amount uint64) (*event.Event, error) {
	if caller != l.issuer {
		return nil, ErrNotIssuer
	}
	if amount > l.balances[from] {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, l.balances[from], amount)
	}
	if amount == 0 {
		return nil, nil
	}

	e := &event.Event{Kind: event.KindCoinsBurned, Actor: caller, From: from, Amount: amount}
	l.applyBurned(e)
	return e, nil
}

// Transfer moves amount of caller's own balance to to.
func (l *Ledger) Transfer(caller, to types.Address, amount uint64) (*event.Event, error) {
	if to.IsZero() {
		return nil, types.ErrZeroAddress
	}
	if amount > l.balances[caller] {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, l.balances[caller], amount)
	}

	e := &event.Event{Kind: event.KindCoinsTransferred, Actor: caller, From: caller, To: to, Amount: amount}
	l.applyTransferred(e)
	return e, nil
}

// BalanceOf returns holder's balance.
func (l *Ledger) BalanceOf(holder types.Address) uint64 { return l.balances[holder] }

// TotalSupply returns the sum of all balances.
func (l *Ledger) TotalSupply() uint64 { return l.supply }

// Holders returns every address with a non-zero balance, sorted.
func (l *Ledger) Holders() []types.Address {
	out := make([]types.Address, 0, len(l.balances))
	for addr, bal := range l.balances {
		if bal > 0 {
			out = append(out, addr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Begin opens a savepoint.
func (l *Ledger) Begin() { l.log.Begin() }

// Commit keeps every mutation since Begin.
func (l *Ledger) Commit() { l.log.Commit() }

// Rollback reverts every mutation since Begin.
func (l *Ledger) Rollback() { l.log.Rollback() }

// Restore applies a committed journal event without issuer checks.
// Events of kinds the ledger does not own are ignored.
func (l *Ledger) Restore(e *event.Event) error {
	switch e.Kind {
	case event.KindCoinsMinted:
		if l.supply > math.MaxUint64-e.Amount {
			return fmt.Errorf("%w: seq %d overflows supply", event.ErrCorrupt, e.Seq)
		}
		l.applyMinted(e)
	case event.KindCoinsBurned:
		if e.Amount > l.balances[e.From] {
			return fmt.Errorf("%w: seq %d burns more than %s holds", event.ErrCorrupt, e.Seq, e.From)
		}
		l.applyBurned(e)
	case event.KindCoinsTransferred:
		if e.Amount > l.balances[e.From] {
			return fmt.Errorf("%w: seq %d moves more than %s holds", event.ErrCorrupt, e.Seq, e.From)
		}
		l.applyTransferred(e)
	}
	return nil
}

func (l *Ledger) applyMinted(e *event.Event) {
	l.set(e.To, l.balances[e.To]+e.Amount)
	l.setSupply(l.supply + e.Amount)
}

func (l *Ledger) applyBurned(e *event.Event) {
	l.set(e.From, l.balances[e.From]-e.Amount)
	l.setSupply(l.supply - e.Amount)
}

func (l *Ledger) applyTransferred(e *event.Event) {
	l.set(e.From, l.balances[e.From]-e.Amount)
	l.set(e.To, l.balances[e.To]+e.Amount)
}

func (l *Ledger) set(addr types.Address, bal uint64) {
	prev, had := l.balances[addr]
	if bal == 0 {
		delete(l.balances, addr)
	} else {
		l.balances[addr] = bal
	}
	l.log.Push(func() {
		if had {
			l.balances[addr] = prev
		} else {
			delete(l.balances, addr)
		}
	})
}

func (l *Ledger) setSupply(v uint64) {
	prev := l.supply
	l.supply = v
	l.log.Push(func() { l.supply = prev })
}
