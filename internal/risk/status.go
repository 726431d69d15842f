package risk

import "time"

// Status is the externally visible lockout state at a given instant.
type Status struct {
	IsLocked     bool       `json:"isLocked"`
	LockoutUntil *time.Time `json:"lockoutUntil"`
	Reason       *Reason    `json:"reason"`
}

// ComputeStatus derives the lockout state from stored settings. A lockout ends at
// LockoutUntil, exclusive. Expired lockouts are reported as nulls but are not
// cleared from storage.
func ComputeStatus(s *Settings, now time.Time) Status {
	if s == nil || s.LockoutUntil == nil || !s.LockoutUntil.After(now) {
		return Status{}
	}

	until := *s.LockoutUntil
	st := Status{IsLocked: true, LockoutUntil: &until}
	if s.LastTriggerReason != nil {
		r := *s.LastTriggerReason
		st.Reason = &r
	}
	return st
}
