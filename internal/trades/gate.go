package trades

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tradevera/internal/billing"
	"tradevera/internal/logging"
	"tradevera/internal/risk"
)

// Rejection reasons reported to Metrics.
const (
	RejectQuota      = "quota"
	RejectLockout    = "lockout"
	RejectValidation = "validation"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Plan   billing.SubscriptionTier
}

// Result is a successful admission.
type Result struct {
	Trade         *Trade        `json:"trade"`
	RiskTriggered risk.Decision `json:"riskTriggered"`
}

// Metrics receives admission outcomes.
type Metrics interface {
	TradeCreated(assetClass string)
	TradeRejected(reason string)
	ObserveEvaluation(d time.Duration)
}

// Gate admits new trades: quota check, lockout check, insert, evaluate.
type Gate struct {
	store   Store
	risk    *risk.Service
	plans   *billing.Plans
	newID   func() string
	metrics Metrics
	logger  *logging.Logger
}

// GateOption configures a Gate
type GateOption func(*Gate)

// WithIDGenerator overrides trade id generation.
func WithIDGenerator(fn func() string) GateOption {
	return func(g *Gate) { g.newID = fn }
}

// WithMetrics records admission outcomes.
func WithMetrics(m Metrics) GateOption {
	return func(g *Gate) { g.metrics = m }
}

// NewGate creates the trade admission gate
func NewGate(store Store, riskSvc *risk.Service, plans *billing.Plans, opts ...GateOption) *Gate {
	g := &Gate{
		store:  store,
		risk:   riskSvc,
		plans:  plans,
		newID:  uuid.NewString,
		logger: logging.WithComponent("trades"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CreateTrade runs the admission sequence in one transaction. Rejections return
// *apperr.ValidationError, *QuotaExceededError or *LockoutActiveError and leave
// no state behind.
func (g *Gate) CreateTrade(ctx context.Context, p Principal, req CreateRequest) (*Result, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return nil, risk.ErrInvalidUser
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		g.rejected(p.UserID, RejectValidation)
		return nil, err
	}

	now := g.risk.Clock().Now()
	trade := req.ToTrade(g.newID(), p.UserID, now)
	result := &Result{Trade: trade}

	err := g.store.WithinTx(ctx, func(tx Tx) error {
		// Locks the settings row for the rest of the transaction.
		settings, err := tx.GetOrCreateSettings(ctx, g.risk.Defaults(p.UserID))
		if err != nil {
			return fmt.Errorf("load risk settings: %w", err)
		}

		used, err := tx.CountTradesByUser(ctx, p.UserID)
		if err != nil {
			return fmt.Errorf("count trades: %w", err)
		}
		if g.plans.TradeQuotaReached(p.Plan, used) {
			return &QuotaExceededError{
				Plan:  p.Plan,
				Limit: g.plans.GetTierLimits(p.Plan).MaxTrades,
				Used:  used,
			}
		}

		if settings.Enabled {
			if st := risk.ComputeStatus(settings, now); st.IsLocked {
				lerr := &LockoutActiveError{LockoutUntil: *st.LockoutUntil}
				if st.Reason != nil {
					lerr.Reason = *st.Reason
				}
				return lerr
			}
		}

		if err := tx.InsertTrade(ctx, trade); err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}

		if !settings.Enabled {
			return nil
		}

		start := time.Now()
		decision, err := g.risk.Evaluator().Evaluate(ctx, tx, settings, trade.OpenedAt, now)
		if g.metrics != nil {
			g.metrics.ObserveEvaluation(time.Since(start))
		}
		if err != nil {
			return fmt.Errorf("evaluate guardrails: %w", err)
		}
		result.RiskTriggered = decision
		if !decision.Triggered {
			return nil
		}

		locked := settings.Clone()
		locked.ApplyLockout(decision.Reason, decision.LockoutUntil)
		locked.UpdatedAt = now
		if err := tx.SaveSettings(ctx, locked); err != nil {
			return fmt.Errorf("persist lockout: %w", err)
		}
		if err := tx.AppendRiskEvent(ctx, risk.TriggeredEvent(p.UserID, decision, now)); err != nil {
			return fmt.Errorf("record lockout: %w", err)
		}
		return nil
	})
	if err != nil {
		var (
			qerr *QuotaExceededError
			lerr *LockoutActiveError
		)
		switch {
		case errors.As(err, &qerr):
			g.rejected(p.UserID, RejectQuota)
		case errors.As(err, &lerr):
			g.rejected(p.UserID, RejectLockout)
		default:
			logging.FromContext(ctx).WithComponent("trades").WithError(err).Error("trade admission failed", "user_id", p.UserID)
		}
		return nil, err
	}

	if g.metrics != nil {
		g.metrics.TradeCreated(string(trade.AssetClass))
	}
	g.risk.Bus().PublishTradeCreated(p.UserID, trade.ID, trade.Symbol, trade.PnL)
	if result.RiskTriggered.Triggered {
		g.risk.LockoutApplied(ctx, p.UserID, result.RiskTriggered)
	}
	return result, nil
}

// Trade listing page bounds.
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// PageBounds returns the limit and offset ListTrades actually applies.
func PageBounds(limit, offset int) (int, int) {
	if limit <= 0 || limit > MaxPageLimit {
		limit = DefaultPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ListTrades returns a page of the user's trades.
func (g *Gate) ListTrades(ctx context.Context, userID string, limit, offset int) ([]Trade, error) {
	limit, offset = PageBounds(limit, offset)
	list, err := g.store.ListTrades(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	return list, nil
}

func (g *Gate) rejected(userID, reason string) {
	if g.metrics != nil {
		g.metrics.TradeRejected(reason)
	}
	g.risk.Bus().PublishTradeRejected(userID, reason)
	g.logger.Info("trade rejected", "user_id", userID, "reason", reason)
}
