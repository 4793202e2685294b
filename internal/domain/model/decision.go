package model

import "time"

// AccessType names the entitlement source behind a decision.
type AccessType string

const (
	AccessNone       AccessType = "none"
	AccessMembership AccessType = "membership"
	AccessPurchased  AccessType = "purchased"
	AccessTrial      AccessType = "trial"
)

// Decision is the result of resolving a user's access to a product.
// A denial is a normal Decision, never an error.
type Decision struct {
	HasAccess      bool
	AccessType     AccessType
	ProductSlug    string
	CurrentLevel   Level
	RequiredLevel  Level
	ExpiresAt      *time.Time
	TrialRemaining *int
}
