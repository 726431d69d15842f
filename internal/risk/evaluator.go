package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Decision is the outcome of one evaluation. LockoutUntil and Reason are only
// meaningful when Triggered is true.
type Decision struct {
	Triggered    bool
	Reason       Reason
	LockoutUntil time.Time

	DailyPnL   float64
	LossStreak int
}

// MarshalJSON encodes {"triggered":false} or {"triggered":true,"reason":...,"lockoutUntil":...}.
func (d Decision) MarshalJSON() ([]byte, error) {
	if !d.Triggered {
		return []byte(`{"triggered":false}`), nil
	}
	return json.Marshal(struct {
		Triggered    bool      `json:"triggered"`
		Reason       Reason    `json:"reason"`
		LockoutUntil time.Time `json:"lockoutUntil"`
	}{true, d.Reason, d.LockoutUntil})
}

// Policy carries the evaluation parameters that are not per-user.
type Policy struct {
	DefaultCooldownMinutes int
	StreakLookback         int
	Location               *time.Location // calendar for daily loss, UTC when nil
}

// DefaultPolicy returns the stock guardrail parameters.
func DefaultPolicy() Policy {
	return Policy{
		DefaultCooldownMinutes: DefaultCooldownMinutes,
		StreakLookback:         DefaultStreakLookback,
		Location:               time.UTC,
	}
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

func (p Policy) lookback() int {
	if p.StreakLookback <= 0 {
		return DefaultStreakLookback
	}
	return p.StreakLookback
}

// Evaluator decides whether a user's closed-trade history breaches their guardrails.
type Evaluator struct {
	policy Policy
}

// NewEvaluator creates an evaluator
func NewEvaluator(policy Policy) *Evaluator {
	return &Evaluator{policy: policy}
}

// CalendarDay returns the [start, end) bounds of the calendar day containing t.
func (e *Evaluator) CalendarDay(t time.Time) (time.Time, time.Time) {
	loc := e.policy.location()
	lt := t.In(loc)
	start := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// Evaluate reads the user's history and decides on a lockout. openedAt is the
// opening time of the trade that was just recorded; settings must already be
// known to be enabled. The history must include that trade.
func (e *Evaluator) Evaluate(ctx context.Context, history TradeHistory, settings *Settings, openedAt, now time.Time) (Decision, error) {
	var (
		dailyPnL float64
		streak   int
	)

	if settings.DailyMaxLoss != nil {
		from, to := e.CalendarDay(openedAt)
		trades, err := history.ClosedTradesOpenedBetween(ctx, settings.UserID, from, to)
		if err != nil {
			return Decision{}, fmt.Errorf("load daily trades: %w", err)
		}
		dailyPnL = DailyPnL(trades, openedAt, e.policy.location())
	}

	if settings.MaxConsecutiveLosses != nil {
		recent, err := history.RecentClosedTrades(ctx, settings.UserID, e.policy.lookback())
		if err != nil {
			return Decision{}, fmt.Errorf("load recent trades: %w", err)
		}
		streak = LossStreak(recent)
	}

	return Decide(settings, dailyPnL, streak, now), nil
}

// Decide applies both rules to precomputed signals.
func Decide(settings *Settings, dailyPnL float64, lossStreak int, now time.Time) Decision {
	d := Decision{DailyPnL: dailyPnL, LossStreak: lossStreak}

	dailyTriggered := settings.DailyMaxLoss != nil && dailyPnL <= -math.Abs(*settings.DailyMaxLoss)
	streakTriggered := settings.MaxConsecutiveLosses != nil && lossStreak >= max(1, *settings.MaxConsecutiveLosses)

	switch {
	case dailyTriggered && streakTriggered:
		d.Reason = ReasonCombined
	case dailyTriggered:
		d.Reason = ReasonDailyMaxLoss
	case streakTriggered:
		d.Reason = ReasonLossStreak
	default:
		return d
	}

	d.Triggered = true
	d.LockoutUntil = now.Add(time.Duration(max(1, settings.CooldownMinutes)) * time.Minute)
	return d
}

// DailyPnL sums the PnL of trades opened on the same calendar date as day.
// Trades from other dates are ignored.
func DailyPnL(trades []ClosedTrade, day time.Time, loc *time.Location) float64 {
	y, m, dd := day.In(loc).Date()
	sum := decimal.Zero
	for _, t := range trades {
		ty, tm, td := t.OpenedAt.In(loc).Date()
		if ty != y || tm != m || td != dd {
			continue
		}
		sum = sum.Add(decimal.NewFromFloat(t.PnL))
	}
	f, _ := sum.Float64()
	return f
}

// LossStreak counts leading losing trades. trades must be newest first; a
// break-even trade ends the streak.
func LossStreak(trades []ClosedTrade) int {
	streak := 0
	for _, t := range trades {
		if t.PnL >= 0 {
			break
		}
		streak++
	}
	return streak
}
