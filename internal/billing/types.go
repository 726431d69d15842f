package billing

import "strings"

// SubscriptionTier represents the user's subscription plan
type SubscriptionTier string

const (
	TierFree    SubscriptionTier = "free"
	TierStarter SubscriptionTier = "starter"
	TierPro     SubscriptionTier = "pro"
)

// Unlimited marks a limit that does not apply.
const Unlimited = -1

// DefaultFreeTradeLimit is the journal cap for free accounts when not configured.
const DefaultFreeTradeLimit = 50

// TierLimits defines the limits for each subscription tier
type TierLimits struct {
	MaxTrades        int // lifetime journal entries, Unlimited for paid plans
	RealtimeUpdates  bool
	RiskEventHistory int
}

// ParseTier normalizes a plan name. Unknown or empty plans are treated as free.
func ParseTier(s string) SubscriptionTier {
	switch SubscriptionTier(strings.ToLower(strings.TrimSpace(s))) {
	case TierStarter:
		return TierStarter
	case TierPro:
		return TierPro
	default:
		return TierFree
	}
}

// Plans resolves tier limits with a configurable free-plan trade cap.
type Plans struct {
	FreeTradeLimit int
}

// NewPlans returns plan limits; a non-positive cap falls back to DefaultFreeTradeLimit.
func NewPlans(freeTradeLimit int) *Plans {
	if freeTradeLimit <= 0 {
		freeTradeLimit = DefaultFreeTradeLimit
	}
	return &Plans{FreeTradeLimit: freeTradeLimit}
}

// GetTierLimits returns the limits for a given tier
func (p *Plans) GetTierLimits(tier SubscriptionTier) TierLimits {
	switch tier {
	case TierStarter:
		return TierLimits{
			MaxTrades:        Unlimited,
			RealtimeUpdates:  true,
			RiskEventHistory: 100,
		}
	case TierPro:
		return TierLimits{
			MaxTrades:        Unlimited,
			RealtimeUpdates:  true,
			RiskEventHistory: 500,
		}
	default:
		return TierLimits{
			MaxTrades:        p.FreeTradeLimit,
			RealtimeUpdates:  false,
			RiskEventHistory: 20,
		}
	}
}

// TradeQuotaReached reports whether a user on tier with used trades may not add another.
func (p *Plans) TradeQuotaReached(tier SubscriptionTier, used int) bool {
	limit := p.GetTierLimits(tier).MaxTrades
	return limit != Unlimited && used >= limit
}
