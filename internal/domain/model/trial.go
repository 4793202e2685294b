package model

import "time"

// TrialCounter is the remaining free uses of a product for a user.
type TrialCounter struct {
	UserID      string
	ProductSlug string
	Remaining   int
	UpdatedAt   time.Time
}

// TrialLog is an append-only record of one trial consumption.
type TrialLog struct {
	ID          string
	UserID      string
	ProductSlug string
	ConsumedAt  time.Time
	IP          string
}

// SessionEndsAt is the end of the grace window opened by this consumption.
func (l *TrialLog) SessionEndsAt(grace time.Duration) time.Time {
	return l.ConsumedAt.Add(grace)
}

// TrialStatus is the read view of a user's trial for one product.
type TrialStatus struct {
	ProductSlug   string
	Remaining     int
	InSession     bool
	SessionEndsAt *time.Time
}
