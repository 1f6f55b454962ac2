package audithook

// Action constants for audit events.
const (
	// Engine actions
	ActionEngineStarted = "engine.started"
	ActionEngineStopped = "engine.stopped"

	// Traversal actions
	ActionValueRolledUp    = "value.rolled_up"
	ActionTraversalSkipped = "traversal.skipped"

	// Claim actions
	ActionClaimCreated    = "claim.created"
	ActionClaimDischarged = "claim.discharged"

	// Distribution actions
	ActionDistributionCreated = "distribution.created"
	ActionRoundingAdjusted    = "distribution.rounding_adjusted"
)

// Resource constants for audit events.
const (
	ResourceEngine       = "engine"
	ResourceResource     = "resource"
	ResourceProcess      = "process"
	ResourceClaim        = "claim"
	ResourceDistribution = "distribution"
)

// Category constants for audit events.
const (
	CategoryLifecycle    = "lifecycle"
	CategoryValuation    = "valuation"
	CategoryClaims       = "claims"
	CategoryDistribution = "distribution"
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
	OutcomePartial = "partial"
)
