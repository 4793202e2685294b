package model

import "time"

const RoleAdmin = "admin"

// Principal is the verified caller behind a request.
type Principal struct {
	UserID string
	Role   string
}

func (p *Principal) IsAdmin() bool { return p != nil && p.Role == RoleAdmin }

// AuditEvent is a fire-and-forget record of a sensitive mutation.
type AuditEvent struct {
	Type    string
	ActorID string
	UserID  string
	At      time.Time
	Fields  map[string]any
}

// Audit event types.
const (
	AuditBatchGenerated     = "activation.batch_generated"
	AuditCodeRedeemed       = "activation.redeemed"
	AuditTrialConsumed      = "trial.consumed"
	AuditTrialReset         = "trial.reset"
	AuditMembershipAdjusted = "membership.adjusted"
)
