// Package audithook bridges lien controller events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/xraph/lien"
	"github.com/xraph/lien/event"
	"github.com/xraph/lien/plugin"
	"github.com/xraph/lien/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin               = (*Extension)(nil)
	_ plugin.OnInit               = (*Extension)(nil)
	_ plugin.OnShutdown           = (*Extension)(nil)
	_ plugin.OnInvoiceCreated     = (*Extension)(nil)
	_ plugin.OnInvoiceDeposited   = (*Extension)(nil)
	_ plugin.OnInvoiceBought      = (*Extension)(nil)
	_ plugin.OnCoinsMinted        = (*Extension)(nil)
	_ plugin.OnOperationCompleted = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges controller events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Controller lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit implements plugin.OnInit.
func (e *Extension) OnInit(ctx context.Context, controller interface{}) error {
	var address types.Address
	if c, ok := controller.(*lien.Controller); ok {
		address = c.Address()
	}
	return e.record(ctx, ActionControllerStarted, SeverityInfo, OutcomeSuccess,
		ResourceController, address.String(), CategorySystem, nil,
	)
}

// OnShutdown implements plugin.OnShutdown.
func (e *Extension) OnShutdown(ctx context.Context) error {
	return e.record(ctx, ActionControllerStopped, SeverityInfo, OutcomeSuccess,
		ResourceController, "", CategorySystem, nil,
	)
}

// ──────────────────────────────────────────────────
// Invoice and credit hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated implements plugin.OnInvoiceCreated.
func (e *Extension) OnInvoiceCreated(ctx context.Context, evt *event.Event) error {
	return e.record(ctx, ActionInvoiceCreated, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, claimResource(evt), CategoryIssuance, nil,
		"holder", evt.To.String(),
		"face_value", evt.FaceValue,
		"maturity", evt.Maturity,
		"event_id", evt.ID.String(),
	)
}

// OnInvoiceDeposited implements plugin.OnInvoiceDeposited.
func (e *Extension) OnInvoiceDeposited(ctx context.Context, evt *event.Event) error {
	return e.record(ctx, ActionInvoiceDeposited, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, claimResource(evt), CategoryIssuance, nil,
		"holder", evt.From.String(),
		"allowance_increase", evt.Amount,
		"event_id", evt.ID.String(),
	)
}

// OnInvoiceBought implements plugin.OnInvoiceBought.
func (e *Extension) OnInvoiceBought(ctx context.Context, evt *event.Event) error {
	return e.record(ctx, ActionInvoiceBought, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, claimResource(evt), CategoryRedemption, nil,
		"buyer", evt.To.String(),
		"coins_burned", evt.Amount,
		"event_id", evt.ID.String(),
	)
}

// OnCoinsMinted implements plugin.OnCoinsMinted.
func (e *Extension) OnCoinsMinted(ctx context.Context, evt *event.Event) error {
	return e.record(ctx, ActionCoinsMinted, SeverityInfo, OutcomeSuccess,
		ResourceCoins, evt.To.String(), CategoryIssuance, nil,
		"amount", evt.Amount,
		"event_id", evt.ID.String(),
	)
}

// OnOperationCompleted implements plugin.OnOperationCompleted. Only failed
// operations are audited; committed ones are covered by the event hooks.
func (e *Extension) OnOperationCompleted(ctx context.Context, op string, caller types.Address, elapsed time.Duration, err error) error {
	switch {
	case err == nil:
		return nil
	case lien.IsAuthorization(err):
		return e.record(ctx, ActionOperationDenied, SeverityWarning, OutcomeFailure,
			ResourceOperation, op, CategoryAccess, err,
			"caller", caller.String(),
		)
	case errors.Is(err, lien.ErrJournal):
		return e.record(ctx, ActionOperationFailed, SeverityCritical, OutcomeFailure,
			ResourceOperation, op, CategorySystem, err,
			"caller", caller.String(),
			"elapsed_ms", elapsed.Milliseconds(),
		)
	}
	return nil
}

func claimResource(evt *event.Event) string {
	return strconv.FormatUint(evt.ClaimID, 10)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
