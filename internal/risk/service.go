package risk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradevera/internal/clock"
	"tradevera/internal/events"
	"tradevera/internal/logging"
)

const (
	// ClearSourceManual marks a lockout cleared through unlock.
	ClearSourceManual = "manual"
	// ClearSourceDisabled marks a lockout cleared by turning guardrails off.
	ClearSourceDisabled = "disabled"
)

// ErrInvalidUser is returned for an empty user id.
var ErrInvalidUser = errors.New("risk: user id is required")

// Observer receives lockout lifecycle notifications, e.g. metrics.
type Observer interface {
	LockoutTriggered(reason Reason)
	LockoutCleared(source string)
}

// Service owns the settings lifecycle: lazy creation, patch updates and unlock.
type Service struct {
	store     TxStore
	cache     SettingsCache
	clock     clock.Clock
	policy    Policy
	evaluator *Evaluator
	bus       *events.EventBus
	observer  Observer
	logger    *logging.Logger
	fence     cacheFence
}

// Option configures a Service
type Option func(*Service)

// WithCache enables the read-through settings cache.
func WithCache(c SettingsCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithEventBus publishes settings and lockout events after commit.
func WithEventBus(bus *events.EventBus) Option {
	return func(s *Service) { s.bus = bus }
}

// WithObserver registers a lockout observer.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithLogger overrides the component logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates the settings service
func NewService(store TxStore, clk clock.Clock, policy Policy, opts ...Option) *Service {
	if clk == nil {
		clk = clock.System()
	}
	s := &Service{
		store:     store,
		clock:     clk,
		policy:    policy,
		evaluator: NewEvaluator(policy),
		logger:    logging.WithComponent("risk"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluator returns the evaluator configured with this service's policy.
func (s *Service) Evaluator() *Evaluator { return s.evaluator }

// Clock returns the injected clock.
func (s *Service) Clock() clock.Clock { return s.clock }

// Bus returns the event bus, nil when events are off.
func (s *Service) Bus() *events.EventBus { return s.bus }

// Observer returns the lockout observer, nil when unset.
func (s *Service) Observer() Observer { return s.observer }

// Defaults builds the record created on first access for userID.
func (s *Service) Defaults(userID string) *Settings {
	return NewDefaultSettings(userID, s.policy.DefaultCooldownMinutes, s.clock.Now())
}

// Status computes the lockout state of settings at the current instant.
func (s *Service) Status(settings *Settings) Status {
	return ComputeStatus(settings, s.clock.Now())
}

// Get returns the user's settings, creating defaults on first access.
func (s *Service) Get(ctx context.Context, userID string) (*Settings, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUser
	}

	var gen uint64
	if s.cache != nil {
		gen = s.fence.generation(userID)
		cached, err := s.cache.GetSettings(ctx, userID)
		if err != nil {
			s.logger.Debug("settings cache read failed", "user_id", userID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	settings, err := s.store.GetOrCreateSettings(ctx, s.Defaults(userID))
	if err != nil {
		return nil, fmt.Errorf("get risk settings: %w", err)
	}

	if s.cache != nil {
		filled := s.fence.fill(userID, gen, func() {
			if err := s.cache.SetSettings(ctx, settings); err != nil {
				s.logger.Debug("settings cache write failed", "user_id", userID, "error", err)
			}
		})
		if !filled {
			s.logger.Debug("settings changed during read, skipping cache fill", "user_id", userID)
		}
	}
	return settings, nil
}

// Update applies a partial patch. Turning guardrails off clears any lockout.
func (s *Service) Update(ctx context.Context, userID string, patch Patch) (*Settings, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUser
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var (
		updated *Settings
		cleared bool
	)
	err := s.store.WithinSettingsTx(ctx, func(tx Store) error {
		current, err := tx.GetOrCreateSettings(ctx, s.Defaults(userID))
		if err != nil {
			return err
		}
		if patch.Empty() {
			updated = current
			return nil
		}

		next := current.Clone()
		cleared = patch.Apply(next)
		next.UpdatedAt = s.clock.Now()
		if err := tx.SaveSettings(ctx, next); err != nil {
			return err
		}
		if cleared {
			if err := tx.AppendRiskEvent(ctx, &Event{
				UserID:    userID,
				Kind:      EventGuardrailsDisable,
				Reason:    current.LastTriggerReason,
				CreatedAt: s.clock.Now(),
			}); err != nil {
				return err
			}
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update risk settings: %w", err)
	}

	s.InvalidateCached(ctx, userID)
	s.bus.PublishSettingsUpdated(userID, updated)
	if cleared {
		s.lockoutCleared(userID, ClearSourceDisabled)
	}
	return updated, nil
}

// ClearLockout removes the lockout and keeps every threshold.
func (s *Service) ClearLockout(ctx context.Context, userID string) (*Settings, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUser
	}

	var (
		updated *Settings
		cleared bool
	)
	err := s.store.WithinSettingsTx(ctx, func(tx Store) error {
		current, err := tx.GetOrCreateSettings(ctx, s.Defaults(userID))
		if err != nil {
			return err
		}
		if !current.HasLockout() {
			updated = current
			return nil
		}

		next := current.Clone()
		next.ClearLockout()
		next.UpdatedAt = s.clock.Now()
		if err := tx.SaveSettings(ctx, next); err != nil {
			return err
		}
		if err := tx.AppendRiskEvent(ctx, &Event{
			UserID:       userID,
			Kind:         EventLockoutCleared,
			Reason:       current.LastTriggerReason,
			LockoutUntil: current.LockoutUntil,
			CreatedAt:    s.clock.Now(),
		}); err != nil {
			return err
		}
		updated = next
		cleared = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("clear lockout: %w", err)
	}

	if cleared {
		s.InvalidateCached(ctx, userID)
		s.lockoutCleared(userID, ClearSourceManual)
	}
	return updated, nil
}

// Events lists the newest risk events for the user.
func (s *Service) Events(ctx context.Context, userID string, limit int) ([]Event, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUser
	}
	if limit <= 0 {
		limit = 20
	}
	evs, err := s.store.ListRiskEvents(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list risk events: %w", err)
	}
	return evs, nil
}

// InvalidateCached drops the cached copy of the user's settings.
func (s *Service) InvalidateCached(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	s.fence.invalidate(userID, func() {
		if err := s.cache.InvalidateSettings(ctx, userID); err != nil {
			s.logger.Warn("settings cache invalidation failed", "user_id", userID, "error", err)
		}
	})
}

// LockoutApplied is called by the admission gate after a lockout commits.
func (s *Service) LockoutApplied(ctx context.Context, userID string, d Decision) {
	s.InvalidateCached(ctx, userID)
	if s.observer != nil {
		s.observer.LockoutTriggered(d.Reason)
	}
	s.bus.PublishLockoutTriggered(userID, string(d.Reason), d.LockoutUntil)
	logging.RiskContext(ctx, userID).Warn("risk lockout triggered",
		"reason", string(d.Reason),
		"lockout_until", d.LockoutUntil,
		"daily_pnl", d.DailyPnL,
		"loss_streak", d.LossStreak)
}

func (s *Service) lockoutCleared(userID, source string) {
	if s.observer != nil {
		s.observer.LockoutCleared(source)
	}
	s.bus.PublishLockoutCleared(userID, source)
	s.logger.Info("risk lockout cleared", "user_id", userID, "source", source)
}

// TriggeredEvent builds the log entry for a lockout decision.
func TriggeredEvent(userID string, d Decision, now time.Time) *Event {
	reason := d.Reason
	until := d.LockoutUntil
	pnl := d.DailyPnL
	streak := d.LossStreak
	return &Event{
		UserID:       userID,
		Kind:         EventLockoutTriggered,
		Reason:       &reason,
		LockoutUntil: &until,
		DailyPnL:     &pnl,
		LossStreak:   &streak,
		CreatedAt:    now,
	}
}
