package audithook

// Action constants for audit events.
const (
	// Invoice actions
	ActionInvoiceCreated   = "invoice.created"
	ActionInvoiceDeposited = "invoice.deposited"
	ActionInvoiceBought    = "invoice.bought"

	// Credit actions
	ActionCoinsMinted = "coins.minted"

	// Operation actions
	ActionOperationDenied = "operation.denied"
	ActionOperationFailed = "operation.failed"

	// Controller actions
	ActionControllerStarted = "controller.started"
	ActionControllerStopped = "controller.stopped"
)

// Resource constants for audit events.
const (
	ResourceInvoice    = "invoice"
	ResourceCoins      = "coins"
	ResourceOperation  = "operation"
	ResourceController = "controller"
)

// Category constants for audit events.
const (
	CategoryIssuance   = "issuance"
	CategoryRedemption = "redemption"
	CategoryAccess     = "access"
	CategorySystem     = "system"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
