package model

import (
	"time"

	"product-entitlements/internal/domain"
)

// GrantKind tells what an activation code unlocks.
type GrantKind string

const (
	GrantMembership GrantKind = "membership"
	GrantProduct    GrantKind = "product"
)

// Grant is the entitlement carried by a code: a membership level or a product.
type Grant struct {
	Kind        GrantKind
	Level       Level  // set when Kind == GrantMembership
	ProductSlug string // set when Kind == GrantProduct
}

func MembershipGrant(level Level) Grant { return Grant{Kind: GrantMembership, Level: level} }

func ProductGrant(slug string) Grant { return Grant{Kind: GrantProduct, ProductSlug: slug} }

func (g Grant) Validate() error {
	switch g.Kind {
	case GrantMembership:
		if !g.Level.Valid() || g.Level == LevelNone {
			return domain.ErrInvalidLevel
		}
	case GrantProduct:
		if g.ProductSlug == "" {
			return domain.ErrInvalidGrant
		}
	default:
		return domain.ErrInvalidGrant
	}
	return nil
}

// DefaultDurationDays is the grant length used when a batch does not override it.
func (g Grant) DefaultDurationDays() int {
	if g.Kind == GrantMembership {
		return g.Level.DurationDays()
	}
	return 0
}

// ActivationCode represents a single-use code that grants or extends an entitlement.
type ActivationCode struct {
	ID            string
	Code          string
	Grant         Grant
	DurationDays  int // 0 on a product grant means no expiry
	BatchID       string
	IssuedBy      string
	CreatedAt     time.Time
	CodeExpiresAt *time.Time // Pointer to allow for NULL
	Used          bool
	UsedBy        *string
	UsedAt        *time.Time
}

// Expired reports whether the code itself can no longer be redeemed.
func (c *ActivationCode) Expired(now time.Time) bool {
	return c.CodeExpiresAt != nil && !c.CodeExpiresAt.After(now)
}

// Batch is the set of codes issued by one generate call.
type Batch struct {
	ID        string
	Grant     Grant
	IssuedBy  string
	CreatedAt time.Time
	Codes     []*ActivationCode
}

// Redemption is the outcome of a successful code activation.
type Redemption struct {
	Code      string
	Grant     Grant
	Level     Level
	Name      string
	ExpiresAt *time.Time
	DaysAdded int
}
