// Package observability provides metrics and tracing plugins for the lien
// controller.
package observability

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/lien"
	"github.com/xraph/lien/event"
	"github.com/xraph/lien/plugin"
	"github.com/xraph/lien/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin               = (*MetricsExtension)(nil)
	_ plugin.OnInit               = (*MetricsExtension)(nil)
	_ plugin.OnJournalReplayed    = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceCreated     = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceDeposited   = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceBought      = (*MetricsExtension)(nil)
	_ plugin.OnCoinsMinted        = (*MetricsExtension)(nil)
	_ plugin.OnOperationCompleted = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records controller metrics.
// Register it as a lien plugin to track issuance and redemption.
type MetricsExtension struct {
	factory MetricFactory

	// Invoice metrics
	InvoiceCreated   Counter
	InvoiceDeposited Counter
	InvoiceBought    Counter
	FaceValue        Histogram

	// Credit metrics
	CoinsMinted Counter
	CoinsBurned Counter

	// Operation metrics
	OperationsCommitted Counter
	OperationsRejected  Counter
	OperationLatency    Histogram

	// Journal metrics
	JournalErrors  Counter
	ReplayedEvents Counter
	ReplayLatency  Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		InvoiceCreated:   factory.Counter("lien.invoice.created"),
		InvoiceDeposited: factory.Counter("lien.invoice.deposited"),
		InvoiceBought:    factory.Counter("lien.invoice.bought"),
		FaceValue:        factory.Histogram("lien.invoice.face_value"),

		CoinsMinted: factory.Counter("lien.coins.minted"),
		CoinsBurned: factory.Counter("lien.coins.burned"),

		OperationsCommitted: factory.Counter("lien.operation.committed"),
		OperationsRejected:  factory.Counter("lien.operation.rejected"),
		OperationLatency:    factory.Histogram("lien.operation.latency_ms"),

		JournalErrors:  factory.Counter("lien.journal.errors"),
		ReplayedEvents: factory.Counter("lien.journal.replayed"),
		ReplayLatency:  factory.Histogram("lien.journal.replay.latency_ms"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// OnJournalReplayed implements plugin.OnJournalReplayed.
func (m *MetricsExtension) OnJournalReplayed(_ context.Context, events int, elapsed time.Duration) error {
	m.ReplayedEvents.Add(float64(events))
	m.ReplayLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// OnInvoiceCreated implements plugin.OnInvoiceCreated.
func (m *MetricsExtension) OnInvoiceCreated(_ context.Context, e *event.Event) error {
	m.InvoiceCreated.Inc()
	m.FaceValue.Observe(float64(e.FaceValue))
	return nil
}

// OnInvoiceDeposited implements plugin.OnInvoiceDeposited.
func (m *MetricsExtension) OnInvoiceDeposited(_ context.Context, _ *event.Event) error {
	m.InvoiceDeposited.Inc()
	return nil
}

// OnInvoiceBought implements plugin.OnInvoiceBought.
func (m *MetricsExtension) OnInvoiceBought(_ context.Context, e *event.Event) error {
	m.InvoiceBought.Inc()
	m.CoinsBurned.Add(float64(e.Amount))
	return nil
}

// OnCoinsMinted implements plugin.OnCoinsMinted.
func (m *MetricsExtension) OnCoinsMinted(_ context.Context, e *event.Event) error {
	m.CoinsMinted.Add(float64(e.Amount))
	return nil
}

// OnOperationCompleted implements plugin.OnOperationCompleted.
func (m *MetricsExtension) OnOperationCompleted(_ context.Context, _ string, _ types.Address, elapsed time.Duration, err error) error {
	m.OperationLatency.Observe(float64(elapsed.Milliseconds()))
	switch {
	case err == nil:
		m.OperationsCommitted.Inc()
	case errors.Is(err, lien.ErrJournal):
		m.JournalErrors.Inc()
		m.OperationsRejected.Inc()
	default:
		m.OperationsRejected.Inc()
	}
	return nil
}
