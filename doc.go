// Package lien provides a collateralized-issuance ledger for Go applications.
//
// Holders of invoice claims lock a claim in escrow, mint a fungible credit
// ("coins") against a haircut of its face value, and other holders buy
// escrowed claims by burning coins. Lien is a library, not a service: the
// host application authenticates callers and passes their address into every
// operation.
//
//   - No claim is held by two parties or escrowed twice
//   - No coin exists without an escrowed claim backing it
//   - Every failing call leaves no partial state behind
//   - Every committed change is journaled and replayed on start
//
// # Quick Start
//
// Build the two passive resources, hand their roles to the controller and
// start it:
//
//	import (
//	    "github.com/xraph/lien"
//	    "github.com/xraph/lien/credit"
//	    "github.com/xraph/lien/invoice"
//	    "github.com/xraph/lien/store/postgres"
//	)
//
//	reg := invoice.NewRegistry(deployer)
//	led := credit.NewLedger(deployer)
//
//	c := lien.New(reg, led, postgres.New(db), lien.WithOriginator(originator))
//	_ = reg.TransferAdmin(deployer, c.Address())
//	_ = led.TransferIssuer(deployer, c.Address())
//
//	if err := c.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Stop()
//
// # Core Concepts
//
// The originator registers invoices for their first holder:
//
//	err := c.CreateInvoice(ctx, originator, alice, 1, 100, maturity)
//
// A holder authorizes the controller and deposits the invoice. Their
// collateral allowance grows by Discount(face value), which is 90% of it:
//
//	_ = c.ApproveInvoice(ctx, alice, 1, c.Address())
//	_ = c.DepositInvoice(ctx, alice, 1)
//	_ = c.MintCoins(ctx, alice, alice, 90)
//
// Anyone holding enough coins can buy an escrowed invoice; the coins are
// burned:
//
//	err := c.BuyInvoice(ctx, bob, 1)
//
// # Re-entrancy
//
// Holders may register an invoice.Receiver that runs when a claim is
// transferred to them. The receiver's context marks the operation in flight:
// reads made with it see the pending state, and any mutating call made with
// it fails with ErrReentrantCall.
//
// # Journal
//
// Every committed operation appends its events to the store in a single
// atomic write. Event and operation IDs are TypeIDs:
//
//	evt_01h2xcejqtf2nbrexx3vqjhp41  // Event ID
//	op_01h455vb4pex5vsknk084sn02q   // Operation ID
package lien
