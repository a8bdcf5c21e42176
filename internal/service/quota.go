// Package service contains the business logic layer.
//
// This file implements the quota manager: ledger lookup-or-create, lazy cycle
// rollover, evaluation, and atomic consumption.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/coachly/coachly/internal/domain"
	"github.com/coachly/coachly/internal/metrics"
	"github.com/coachly/coachly/internal/repository"
)

// maxConsumeAttempts bounds how often a consumption re-reads the ledger after
// losing a conditional increment to a concurrent writer.
const maxConsumeAttempts = 3

// =============================================================================
// Interface Definition
// =============================================================================

// QuotaService manages per-user quota ledgers.
//
// Every method that reads a ledger first resets it if its cycle has elapsed.
// A non-nil tierOverride moves the ledger to that tier without touching its
// usage counters.
type QuotaService interface {
	// EnsureLedger returns the user's ledger, creating it if needed.
	EnsureLedger(ctx context.Context, userID uuid.UUID, tierOverride *domain.SubscriptionTier) (*domain.QuotaLedger, error)

	// CheckQuota evaluates action without consuming anything.
	CheckQuota(ctx context.Context, userID uuid.UUID, action domain.Action, tierOverride *domain.SubscriptionTier) (*domain.QuotaEvaluation, error)

	// ConsumeQuota evaluates action and, if allowed, consumes one unit.
	// A denial is returned as a result with Allowed false, not as an error.
	ConsumeQuota(ctx context.Context, userID uuid.UUID, action domain.Action, tierOverride *domain.SubscriptionTier) (*domain.QuotaConsumption, error)

	// ConsumeQuotaWith is ConsumeQuota against q, typically a transaction.
	ConsumeQuotaWith(ctx context.Context, q repository.Querier, userID uuid.UUID, action domain.Action, tierOverride *domain.SubscriptionTier) (*domain.QuotaConsumption, error)

	// GetQuotaSnapshot returns the ledger and its tier limits for display.
	GetQuotaSnapshot(ctx context.Context, userID uuid.UUID, tierOverride *domain.SubscriptionTier) (*domain.QuotaSnapshot, error)

	// NutritionAccess reports whether the user can open their nutrition plan.
	NutritionAccess(ctx context.Context, userID uuid.UUID, tierOverride *domain.SubscriptionTier) (*domain.NutritionAccess, error)

	// StartNutritionWindow starts the nutrition access window for tiers that
	// have one. Starting an already started window is a no-op.
	StartNutritionWindow(ctx context.Context, userID uuid.UUID, tierOverride *domain.SubscriptionTier) (*domain.NutritionAccess, error)
}

// =============================================================================
// Implementation
// =============================================================================

type quotaService struct {
	store  repository.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewQuotaService creates a new QuotaService.
func NewQuotaService(store repository.Store, logger *slog.Logger) QuotaService {
	return newQuotaService(store, logger, nil)
}

func newQuotaService(store repository.Store, logger *slog.Logger, now func() time.Time) *quotaService {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &quotaService{
		store:  store,
		logger: logger,
		now:    now,
	}
}

// EnsureLedger returns the user's ledger, creating it if needed.
func (s *quotaService) EnsureLedger(ctx context.Context, userID uuid.UUID, tierOverride *domain.SubscriptionTier) (*domain.QuotaLedger, error) {
	const op = "quota.ensure_ledger"

	row, err := s.ensureLedger(ctx, s.store, userID, tierOverride)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load quota ledger")
	}
	ledger := ledgerFromRow(row)
	return &ledger, nil
}

// ensureLedger implements lookup-or-create, tier override, and lazy reset
// against q. It returns raw repository errors.
func (s *quotaService) ensureLedger(ctx context.Context, q repository.Querier, userID uuid.UUID, tierOverride *domain.SubscriptionTier) (repository.SubscriptionQuota, error) {
	now := s.now()

	row, err := q.GetSubscriptionQuota(ctx, userID)
	if repository.IsNoRows(err) {
		row, err = s.createLedger(ctx, q, userID, tierOverride, now)
	}
	if err != nil {
		return repository.SubscriptionQuota{}, err
	}

	if tierOverride != nil {
		tier := tierOverride.OrDefault()
		if domain.SubscriptionTier(row.Tier) != tier {
			row, err = s.applyTier(ctx, q, row, tier)
			if err != nil {
				return repository.SubscriptionQuota{}, err
			}
		}
	}

	if !now.Before(row.ResetAt) {
		row, err = s.resetLedger(ctx, q, userID, now)
		if err != nil {
			return repository.SubscriptionQuota{}, err
		}
	}

	return row, nil
}

func (s *quotaService) createLedger(ctx context.Context, q repository.Querier, userID uuid.UUID, tierOverride *domain.SubscriptionTier, now time.Time) (repository.SubscriptionQuota, error) {
	tier := domain.TierFreemium
	if tierOverride != nil {
		tier = tierOverride.OrDefault()
	}
	limits := domain.LimitsFor(tier)

	row, err := q.CreateSubscriptionQuota(ctx, repository.CreateSubscriptionQuotaParams{
		UserID:              userID,
		Tier:                string(tier),
		ResetAt:             domain.NextResetDate(now),
		NutritionWindowDays: domain.ToNullInt32(limits.NutritionWindowDays),
		NutritionLocked:     !limits.NutritionPersistent,
	})
	if repository.IsNoRows(err) {
		// Created concurrently by another caller.
		return q.GetSubscriptionQuota(ctx, userID)
	}
	if err != nil {
		return repository.SubscriptionQuota{}, err
	}

	s.logger.Debug("quota ledger created", "user_id", userID, "tier", tier)
	return row, nil
}

func (s *quotaService) applyTier(ctx context.Context, q repository.Querier, row repository.SubscriptionQuota, tier domain.SubscriptionTier) (repository.SubscriptionQuota, error) {
	limits := domain.LimitsFor(tier)

	updated, err := q.UpdateSubscriptionQuotaTier(ctx, repository.UpdateSubscriptionQuotaTierParams{
		UserID:              row.UserID,
		Tier:                string(tier),
		NutritionWindowDays: domain.ToNullInt32(limits.NutritionWindowDays),
		NutritionLocked:     !limits.NutritionPersistent && !row.NutritionExpiresAt.Valid,
	})
	if err != nil {
		return repository.SubscriptionQuota{}, err
	}

	s.logger.Info("quota ledger tier changed",
		"user_id", row.UserID,
		"from", row.Tier,
		"to", tier,
	)
	return updated, nil
}

func (s *quotaService) resetLedger(ctx context.Context, q repository.Querier, userID uuid.UUID, now time.Time) (repository.SubscriptionQuota, error) {
	row, err := q.ResetSubscriptionQuota(ctx, repository.ResetSubscriptionQuotaParams{
		UserID:  userID,
		ResetAt: domain.NextResetDate(now),
		Now:     now,
	})
	if repository.IsNoRows(err) {
		// Another caller already rolled the cycle over.
		return q.GetSubscriptionQuota(ctx, userID)
	}
	if err != nil {
		return repository.SubscriptionQuota{}, err
	}

	metrics.QuotaReset()
	s.logger.Info("quota cycle reset", "user_id", userID, "next_reset_at", row.ResetAt)
	return row, nil
}

// CheckQuota evaluates action without consuming anything.
func (s *quotaService) CheckQuota(ctx context.Context, userID uuid.UUID, action domain.Action, tierOverride *domain.SubscriptionTier) (*domain.QuotaEvaluation, error) {
	const op = "quota.check"

	row, err := s.ensureLedger(ctx, s.store, userID, tierOverride)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load quota ledger")
	}

	ledger := ledgerFromRow(row)
	ev := domain.Evaluate(domain.LimitsFor(ledger.Tier), ledger, action)
	s.record(userID, ledger.Tier, action, ev)
	return &ev, nil
}

// ConsumeQuota evaluates action and, if allowed, consumes one unit.
func (s *quotaService) ConsumeQuota(ctx context.Context, userID uuid.UUID, action domain.Action, tierOverride *domain.SubscriptionTier) (*domain.QuotaConsumption, error) {
	return s.ConsumeQuotaWith(ctx, s.store, userID, action, tierOverride)
}

// ConsumeQuotaWith is ConsumeQuota against q.
func (s *quotaService) ConsumeQuotaWith(ctx context.Context, q repository.Querier, userID uuid.UUID, action domain.Action, tierOverride *domain.SubscriptionTier) (*domain.QuotaConsumption, error) {
	const op = "quota.consume"

	row, err := s.ensureLedger(ctx, q, userID, tierOverride)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load quota ledger")
	}

	for attempt := 1; ; attempt++ {
		ledger := ledgerFromRow(row)
		limits := domain.LimitsFor(ledger.Tier)

		ev := domain.Evaluate(limits, ledger, action)
		s.record(userID, ledger.Tier, action, ev)
		if !ev.Allowed {
			return &domain.QuotaConsumption{Reason: ev.Reason}, nil
		}

		res, _ := domain.MatchAction[incrementResult](action, incrementer{
			ctx:    ctx,
			q:      q,
			userID: userID,
			limits: limits,
		})
		if res.err == nil {
			usage := ledgerFromRow(res.row)
			if res.skipped {
				usage = ledger
			}
			return &domain.QuotaConsumption{Allowed: true, Usage: &usage}, nil
		}
		if !repository.IsNoRows(res.err) {
			return nil, domain.Internal(res.err, op, "failed to consume quota")
		}

		// The conditional increment matched nothing: a concurrent consumer
		// took the last unit. Re-read and evaluate again.
		if attempt == maxConsumeAttempts {
			s.logger.Warn("quota consumption contended",
				"user_id", userID,
				"action", action.String(),
				"attempts", attempt,
			)
			return &domain.QuotaConsumption{Reason: ev.Reason}, nil
		}
		row, err = q.GetSubscriptionQuota(ctx, userID)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to reload quota ledger")
		}
	}
}

// record logs and counts a decision.
func (s *quotaService) record(userID uuid.UUID, tier domain.SubscriptionTier, action domain.Action, ev domain.QuotaEvaluation) {
	if ev.Allowed {
		metrics.QuotaAllowed(action.String(), ev.Warning)
		return
	}
	metrics.QuotaDenied(action.String())
	s.logger.Info("quota denied",
		"user_id", userID,
		"tier", tier,
		"action", action.String(),
		"reason", ev.Reason,
	)
}

// GetQuotaSnapshot returns the ledger and its tier limits for display.
func (s *quotaService) GetQuotaSnapshot(ctx context.Context, userID uuid.UUID, tierOverride *domain.SubscriptionTier) (*domain.QuotaSnapshot, error) {
	ledger, err := s.EnsureLedger(ctx, userID, tierOverride)
	if err != nil {
		return nil, err
	}
	snap := domain.NewQuotaSnapshot(*ledger)
	return &snap, nil
}

// NutritionAccess reports whether the user can open their nutrition plan.
func (s *quotaService) NutritionAccess(ctx context.Context, userID uuid.UUID, tierOverride *domain.SubscriptionTier) (*domain.NutritionAccess, error) {
	ledger, err := s.EnsureLedger(ctx, userID, tierOverride)
	if err != nil {
		return nil, err
	}
	access := domain.NutritionStatus(*ledger, s.now())
	return &access, nil
}

// StartNutritionWindow starts the nutrition access window.
func (s *quotaService) StartNutritionWindow(ctx context.Context, userID uuid.UUID, tierOverride *domain.SubscriptionTier) (*domain.NutritionAccess, error) {
	const op = "quota.start_nutrition_window"

	row, err := s.ensureLedger(ctx, s.store, userID, tierOverride)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load quota ledger")
	}

	now := s.now()
	tier := domain.SubscriptionTier(row.Tier).OrDefault()
	if expiresAt := domain.NutritionExpiry(tier, now); expiresAt != nil && !row.NutritionExpiresAt.Valid {
		updated, err := s.store.StartNutritionWindow(ctx, repository.StartNutritionWindowParams{
			UserID:    userID,
			ExpiresAt: *expiresAt,
		})
		switch {
		case err == nil:
			row = updated
			s.logger.Info("nutrition window started", "user_id", userID, "expires_at", *expiresAt)
		case repository.IsNoRows(err):
			if row, err = s.store.GetSubscriptionQuota(ctx, userID); err != nil {
				return nil, domain.Internal(err, op, "failed to reload quota ledger")
			}
		default:
			return nil, domain.Internal(err, op, "failed to start nutrition window")
		}
	}

	access := domain.NutritionStatus(ledgerFromRow(row), now)
	return &access, nil
}

// =============================================================================
// Consumption
// =============================================================================

type incrementResult struct {
	row     repository.SubscriptionQuota
	skipped bool // nothing to count, e.g. unlimited messages
	err     error
}

// incrementer performs the conditional increment for each action.
type incrementer struct {
	ctx    context.Context
	q      repository.Querier
	userID uuid.UUID
	limits domain.QuotaLimits
}

func (i incrementer) Message() incrementResult {
	if i.limits.Messages.Unlimited {
		return incrementResult{skipped: true}
	}
	row, err := i.q.IncrementMessagesUsed(i.ctx, repository.IncrementUsageParams{
		UserID: i.userID,
		Limit:  int32(i.limits.Messages.N),
	})
	return incrementResult{row: row, err: err}
}

func (i incrementer) Call() incrementResult {
	row, err := i.q.IncrementCallsUsed(i.ctx, repository.IncrementUsageParams{
		UserID: i.userID,
		Limit:  int32(i.limits.Calls),
	})
	return incrementResult{row: row, err: err}
}

func (i incrementer) Attachment() incrementResult {
	row, err := i.q.IncrementAttachmentsUsed(i.ctx, i.userID)
	return incrementResult{row: row, err: err}
}

var _ domain.ActionCases[incrementResult] = incrementer{}
