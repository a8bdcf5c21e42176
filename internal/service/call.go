package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/coachly/coachly/internal/domain"
	"github.com/coachly/coachly/internal/repository"
)

// CallService books video calls against the call quota.
type CallService interface {
	// BookCall consumes one call unit and records the call in one
	// transaction. A quota denial is returned in CallBooking.Denied.
	BookCall(ctx context.Context, params domain.BookCallParams) (*domain.CallBooking, error)
}

type callService struct {
	store  repository.Store
	quota  QuotaService
	logger *slog.Logger
	now    func() time.Time
}

// NewCallService creates a new CallService.
func NewCallService(store repository.Store, quota QuotaService, logger *slog.Logger) CallService {
	return &callService{
		store:  store,
		quota:  quota,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// BookCall consumes one call unit and records the call.
func (s *callService) BookCall(ctx context.Context, params domain.BookCallParams) (*domain.CallBooking, error) {
	const op = "call.book"

	if params.ScheduledAt.IsZero() || params.ScheduledAt.Before(s.now()) {
		return nil, domain.Invalid(op, "Call must be scheduled in the future")
	}

	var booking domain.CallBooking
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		if _, err := q.GetCoachUserID(ctx, params.CoachID); err != nil {
			if repository.IsNoRows(err) {
				return domain.NotFound(op, "coach", params.CoachID.String())
			}
			return domain.Internal(err, op, "failed to load coach")
		}

		user, err := q.GetUserByID(ctx, params.UserID)
		if err != nil {
			if repository.IsNoRows(err) {
				return domain.Unauthorized(op, "Unknown user")
			}
			return domain.Internal(err, op, "failed to load user")
		}
		tier := domain.SubscriptionTier(user.SubscriptionTier).OrDefault()

		consumed, err := s.quota.ConsumeQuotaWith(ctx, q, params.UserID, domain.ActionCall, &tier)
		if err != nil {
			return err
		}
		if !consumed.Allowed {
			zero := domain.Limited(0)
			booking.Denied = &domain.QuotaEvaluation{Reason: consumed.Reason, Remaining: &zero}
			return nil
		}

		row, err := q.CreateVideoCall(ctx, repository.CreateVideoCallParams{
			UserID:          params.UserID,
			CoachID:         params.CoachID,
			ScheduledAt:     params.ScheduledAt.UTC(),
			DurationMinutes: int32(domain.LimitsFor(tier).CallDuration),
		})
		if err != nil {
			return domain.Internal(err, op, "failed to create call")
		}
		booking.Call = videoCallFromRow(row)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if booking.Call != nil {
		s.logger.Info("call booked",
			"call_id", booking.Call.ID,
			"user_id", booking.Call.UserID,
			"coach_id", booking.Call.CoachID,
			"duration_minutes", booking.Call.DurationMinutes,
		)
	}
	return &booking, nil
}
