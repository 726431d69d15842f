package trades

import (
	"fmt"
	"time"

	"tradevera/internal/billing"
	"tradevera/internal/risk"
)

// QuotaExceededError is returned when a plan's trade cap is reached.
type QuotaExceededError struct {
	Plan  billing.SubscriptionTier
	Limit int
	Used  int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s plan trade limit reached (%d of %d)", e.Plan, e.Used, e.Limit)
}

// LockoutActiveError is returned while a guardrail lockout is in force.
type LockoutActiveError struct {
	LockoutUntil time.Time
	Reason       risk.Reason
}

func (e *LockoutActiveError) Error() string {
	return fmt.Sprintf("trading locked until %s (%s)", e.LockoutUntil.Format(time.RFC3339), e.Reason)
}
