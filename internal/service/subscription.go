package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/coachly/coachly/internal/domain"
	"github.com/coachly/coachly/internal/repository"
)

// SubscriptionService applies billing outcomes to user accounts.
type SubscriptionService interface {
	// GetUser returns an active user by ID.
	// Returns domain.EUNAUTHORIZED when the user does not exist or is inactive.
	GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)

	// ApplyTier sets the user's tier and moves their quota ledger to it.
	// Usage counters are kept.
	ApplyTier(ctx context.Context, userID uuid.UUID, tier domain.SubscriptionTier) error

	// ApplyPlanForCustomer maps planCode to a tier and applies it to the user
	// owning the billing customer.
	ApplyPlanForCustomer(ctx context.Context, customerID, planCode string) error

	// LinkCustomer stores the billing customer ID on the user.
	LinkCustomer(ctx context.Context, userID uuid.UUID, customerID string) error
}

type subscriptionService struct {
	store  repository.Store
	quota  *quotaService
	logger *slog.Logger
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(store repository.Store, logger *slog.Logger) SubscriptionService {
	return newSubscriptionService(store, newQuotaService(store, logger, nil), logger)
}

func newSubscriptionService(store repository.Store, quota *quotaService, logger *slog.Logger) *subscriptionService {
	return &subscriptionService{
		store:  store,
		quota:  quota,
		logger: logger,
	}
}

// GetUser returns an active user by ID.
func (s *subscriptionService) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	const op = "subscription.get_user"

	row, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if repository.IsNoRows(err) {
			return nil, domain.Unauthorized(op, "User not found")
		}
		return nil, domain.Internal(err, op, "failed to load user")
	}
	user := userFromRow(row)
	if !user.IsActive {
		return nil, domain.Unauthorized(op, "Account is disabled")
	}
	return user, nil
}

// ApplyTier sets the user's tier and moves their quota ledger to it.
func (s *subscriptionService) ApplyTier(ctx context.Context, userID uuid.UUID, tier domain.SubscriptionTier) error {
	const op = "subscription.apply_tier"

	tier = tier.OrDefault()
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		if err := q.UpdateUserSubscriptionTier(ctx, repository.UpdateUserSubscriptionTierParams{
			ID:               userID,
			SubscriptionTier: string(tier),
		}); err != nil {
			return err
		}
		_, err := s.quota.ensureLedger(ctx, q, userID, &tier)
		return err
	})
	if err != nil {
		return domain.Internal(err, op, "failed to apply subscription tier")
	}

	s.logger.Info("subscription tier applied", "user_id", userID, "tier", tier)
	return nil
}

// ApplyPlanForCustomer applies planCode to the user owning customerID.
func (s *subscriptionService) ApplyPlanForCustomer(ctx context.Context, customerID, planCode string) error {
	const op = "subscription.apply_plan"

	row, err := s.store.GetUserByStripeCustomerID(ctx, customerID)
	if err != nil {
		if repository.IsNoRows(err) {
			return domain.NotFound(op, "customer", customerID)
		}
		return domain.Internal(err, op, "failed to look up customer")
	}
	return s.ApplyTier(ctx, row.ID, domain.MapTierFromPlan(planCode))
}

// LinkCustomer stores the billing customer ID on the user. A customer ID
// already linked to another account is rejected as invalid.
func (s *subscriptionService) LinkCustomer(ctx context.Context, userID uuid.UUID, customerID string) error {
	const op = "subscription.link_customer"

	if err := s.store.UpdateUserStripeCustomer(ctx, repository.UpdateUserStripeCustomerParams{
		ID:               userID,
		StripeCustomerID: customerID,
	}); err != nil {
		if repository.IsUniqueViolation(err) {
			s.logger.Warn("billing customer already linked to another user",
				"user_id", userID,
				"customer_id", customerID,
			)
			return domain.Invalid(op, "Billing customer is linked to another account")
		}
		return domain.Internal(err, op, "failed to link customer")
	}
	return nil
}
