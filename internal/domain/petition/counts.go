package petition

import "time"

// CountUpdate is the row state returned by an atomic signature count update.
type CountUpdate struct {
	PetitionID                   int64
	Delta                        int
	SignatureCount               int
	State                        State
	DebateState                  DebateState
	ModerationThresholdReachedAt *time.Time
	ReferralThresholdReachedAt   *time.Time
	DebateThresholdReachedAt     *time.Time
}

// Changed reports whether the update wrote anything.
func (u *CountUpdate) Changed() bool {
	return u != nil && u.Delta != 0
}

// ModerationThresholdReached reports whether this update crossed the moderation threshold.
// Stamps are written with the update's own timestamp, so equality identifies a fresh crossing.
func (u *CountUpdate) ModerationThresholdReached(now time.Time) bool {
	return u != nil && stampedAt(u.ModerationThresholdReachedAt, now)
}

// ReferralThresholdReached reports whether this update crossed the referral threshold.
func (u *CountUpdate) ReferralThresholdReached(now time.Time) bool {
	return u != nil && stampedAt(u.ReferralThresholdReachedAt, now)
}

// DebateThresholdReached reports whether this update crossed the debate threshold.
func (u *CountUpdate) DebateThresholdReached(now time.Time) bool {
	return u != nil && stampedAt(u.DebateThresholdReachedAt, now)
}

func stampedAt(t *time.Time, now time.Time) bool {
	return t != nil && t.Equal(now)
}

// Thresholds are the site-wide values the counter engine evaluates at update time.
// Referral and debate thresholds are read from the petition row, not from here.
type Thresholds struct {
	Moderation int
}
