package risk

import (
	"time"
)

// Reason identifies which guardrail rule imposed a lockout.
type Reason string

const (
	ReasonDailyMaxLoss Reason = "daily_max_loss"
	ReasonLossStreak   Reason = "loss_streak"
	ReasonCombined     Reason = "combined"
)

// Valid reports whether r is one of the known reasons.
func (r Reason) Valid() bool {
	switch r {
	case ReasonDailyMaxLoss, ReasonLossStreak, ReasonCombined:
		return true
	}
	return false
}

const (
	DefaultCooldownMinutes = 45
	MinCooldownMinutes     = 1
	MaxCooldownMinutes     = 600

	// DefaultStreakLookback caps how many recent closed trades the streak rule reads.
	DefaultStreakLookback = 60
)

// Settings is a user's guardrail configuration together with the lockout state.
type Settings struct {
	UserID               string     `json:"userId"`
	Enabled              bool       `json:"enabled"`
	DailyMaxLoss         *float64   `json:"dailyMaxLoss"`
	MaxConsecutiveLosses *int       `json:"maxConsecutiveLosses"`
	CooldownMinutes      int        `json:"cooldownMinutes"`
	LockoutUntil         *time.Time `json:"lockoutUntil"`
	LastTriggerReason    *Reason    `json:"lastTriggerReason"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// NewDefaultSettings returns the record created on a user's first access:
// enabled, both rules off, the given cooldown, no lockout.
func NewDefaultSettings(userID string, cooldownMinutes int, now time.Time) *Settings {
	if cooldownMinutes < MinCooldownMinutes || cooldownMinutes > MaxCooldownMinutes {
		cooldownMinutes = DefaultCooldownMinutes
	}
	return &Settings{
		UserID:          userID,
		Enabled:         true,
		CooldownMinutes: cooldownMinutes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// HasLockout reports whether any lockout field is set, expired or not.
func (s *Settings) HasLockout() bool {
	return s.LockoutUntil != nil || s.LastTriggerReason != nil
}

// ClearLockout resets the lockout fields and leaves the thresholds alone.
func (s *Settings) ClearLockout() {
	s.LockoutUntil = nil
	s.LastTriggerReason = nil
}

// ApplyLockout records a lockout, replacing any earlier one.
func (s *Settings) ApplyLockout(reason Reason, until time.Time) {
	u := until
	r := reason
	s.LockoutUntil = &u
	s.LastTriggerReason = &r
}

// Clone returns a deep copy.
func (s *Settings) Clone() *Settings {
	if s == nil {
		return nil
	}
	c := *s
	if s.DailyMaxLoss != nil {
		v := *s.DailyMaxLoss
		c.DailyMaxLoss = &v
	}
	if s.MaxConsecutiveLosses != nil {
		v := *s.MaxConsecutiveLosses
		c.MaxConsecutiveLosses = &v
	}
	if s.LockoutUntil != nil {
		v := *s.LockoutUntil
		c.LockoutUntil = &v
	}
	if s.LastTriggerReason != nil {
		v := *s.LastTriggerReason
		c.LastTriggerReason = &v
	}
	return &c
}
