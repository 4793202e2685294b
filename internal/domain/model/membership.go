package model

import (
	"strings"
	"time"

	"product-entitlements/internal/domain"
)

// Level is an ordered membership tier.
type Level string

const (
	LevelNone      Level = "none"
	LevelMonthly   Level = "monthly"
	LevelQuarterly Level = "quarterly"
	LevelYearly    Level = "yearly"
	LevelLifetime  Level = "lifetime"
)

const day = 24 * time.Hour

// MaxGrantDays bounds every day count that feeds expiry arithmetic.
const MaxGrantDays = 36500

var levelWeights = map[Level]int{
	LevelNone:      0,
	LevelMonthly:   1,
	LevelQuarterly: 2,
	LevelYearly:    3,
	LevelLifetime:  4,
}

var levelDurations = map[Level]int{
	LevelMonthly:   30,
	LevelQuarterly: 90,
	LevelYearly:    365,
}

var levelNames = map[Level]string{
	LevelNone:      "Free",
	LevelMonthly:   "Monthly Member",
	LevelQuarterly: "Quarterly Member",
	LevelYearly:    "Yearly Member",
	LevelLifetime:  "Lifetime Member",
}

// ParseLevel normalizes s and returns the matching Level.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", domain.ErrInvalidLevel
	}
	return l, nil
}

func (l Level) Valid() bool {
	_, ok := levelWeights[l]
	return ok
}

// Weight returns the tier position; unknown levels weigh -1.
func (l Level) Weight() int {
	if w, ok := levelWeights[l]; ok {
		return w
	}
	return -1
}

// DurationDays is the default grant length; 0 for none and lifetime.
func (l Level) DurationDays() int { return levelDurations[l] }

// Bounded reports whether memberships at this level carry an expiry.
func (l Level) Bounded() bool { return l != LevelNone && l != LevelLifetime }

func (l Level) Name() string {
	if n, ok := levelNames[l]; ok {
		return n
	}
	return string(l)
}

// Levels returns all tiers, lowest first.
func Levels() []Level {
	return []Level{LevelNone, LevelMonthly, LevelQuarterly, LevelYearly, LevelLifetime}
}

// Membership is the single membership row of a user.
type Membership struct {
	UserID      string
	Level       Level
	ExpiresAt   *time.Time // nil: unbounded, only for none/lifetime
	ActivatedAt *time.Time
	UpdatedAt   time.Time
}

// NoMembership is the implicit row of a user that never held a tier.
func NoMembership(userID string) *Membership {
	return &Membership{UserID: userID, Level: LevelNone}
}

// EffectiveLevel is the level after expiry is applied: an expired bounded
// membership counts as none.
func (m *Membership) EffectiveLevel(now time.Time) Level {
	if m == nil {
		return LevelNone
	}
	if m.Level.Bounded() && m.ExpiresAt != nil && !m.ExpiresAt.After(now) {
		return LevelNone
	}
	return m.Level
}

// Active reports whether the membership currently grants a tier above none.
func (m *Membership) Active(now time.Time) bool {
	return m.EffectiveLevel(now) != LevelNone
}

// HasAccess checks expiry first, then compares tier weights.
func HasAccess(userLevel, requiredLevel Level, expiresAt *time.Time, now time.Time) bool {
	if userLevel.Bounded() && expiresAt != nil && !expiresAt.After(now) {
		return false
	}
	return userLevel.Weight() >= requiredLevel.Weight()
}

// CalculateExpiry returns start plus the level duration, nil for unbounded levels.
func CalculateExpiry(level Level, start time.Time) *time.Time {
	if !level.Bounded() {
		return nil
	}
	return CalculateExpiryDays(level.DurationDays(), start)
}

// CalculateExpiryDays returns start plus days, counted as UTC calendar days.
func CalculateExpiryDays(days int, start time.Time) *time.Time {
	t := start.UTC().AddDate(0, 0, days)
	return &t
}

// ExtendExpiry extends by the level duration; see ExtendExpiryDays.
func ExtendExpiry(current *time.Time, level Level, now time.Time) *time.Time {
	if level == LevelLifetime {
		return nil
	}
	return ExtendExpiryDays(current, level.DurationDays(), now)
}

// ExtendExpiryDays adds days to current when it is still in the future,
// otherwise starts a fresh period at now. The result is never earlier than current.
func ExtendExpiryDays(current *time.Time, days int, now time.Time) *time.Time {
	if current == nil || !current.After(now) {
		return CalculateExpiryDays(days, now)
	}
	return CalculateExpiryDays(days, *current)
}

// LaterOf returns the later of two optional expiries, nil meaning unbounded.
func LaterOf(a, b *time.Time) *time.Time {
	if a == nil || b == nil {
		return nil
	}
	if a.After(*b) {
		return a
	}
	return b
}

// ApplyGrant returns the membership that results from granting level for
// days on top of m. The current expiry is never shortened: same-level grants
// extend, upgrades keep the later of the fresh period and the current expiry,
// and grants below the active tier are refused.
func ApplyGrant(m *Membership, level Level, days int, now time.Time) (*Membership, error) {
	if !level.Valid() || level == LevelNone {
		return nil, domain.ErrInvalidLevel
	}
	if m == nil || days < 0 || days > MaxGrantDays {
		return nil, domain.ErrInvalidArgument
	}
	cur := m.EffectiveLevel(now)
	next := &Membership{UserID: m.UserID, Level: level, ActivatedAt: m.ActivatedAt, UpdatedAt: now}

	switch {
	case cur == LevelLifetime:
		return nil, domain.ErrNothingToGrant
	case level == LevelLifetime:
		next.ExpiresAt = nil
		next.ActivatedAt = &now
	case cur == level:
		next.ExpiresAt = ExtendExpiryDays(m.ExpiresAt, days, now)
		if next.ActivatedAt == nil {
			next.ActivatedAt = &now
		}
	case cur.Weight() > level.Weight():
		return nil, domain.ErrDowngrade
	case cur == LevelNone:
		next.ExpiresAt = CalculateExpiryDays(days, now)
		next.ActivatedAt = &now
	default:
		fresh := CalculateExpiryDays(days, now)
		if m.ExpiresAt != nil {
			fresh = LaterOf(fresh, m.ExpiresAt)
		}
		next.ExpiresAt = fresh
		next.ActivatedAt = &now
	}
	return next, nil
}
