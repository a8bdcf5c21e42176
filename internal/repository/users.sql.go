package repository

import (
	"context"

	"github.com/google/uuid"
)

const userColumns = `id, email, full_name, role, subscription_tier, stripe_customer_id, is_active, created_at, updated_at`

func scanUser(row rowScanner) (User, error) {
	var i User
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.FullName,
		&i.Role,
		&i.SubscriptionTier,
		&i.StripeCustomerID,
		&i.IsActive,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getUserByID = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByID, id)
	return scanUser(row)
}

const getUserByStripeCustomerID = `SELECT ` + userColumns + ` FROM users WHERE stripe_customer_id = $1`

func (q *Queries) GetUserByStripeCustomerID(ctx context.Context, stripeCustomerID string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByStripeCustomerID, stripeCustomerID)
	return scanUser(row)
}

const updateUserSubscriptionTier = `UPDATE users
SET subscription_tier = $2, updated_at = NOW()
WHERE id = $1`

type UpdateUserSubscriptionTierParams struct {
	ID               uuid.UUID
	SubscriptionTier string
}

func (q *Queries) UpdateUserSubscriptionTier(ctx context.Context, arg UpdateUserSubscriptionTierParams) error {
	_, err := q.db.ExecContext(ctx, updateUserSubscriptionTier, arg.ID, arg.SubscriptionTier)
	return err
}

const updateUserStripeCustomer = `UPDATE users
SET stripe_customer_id = $2, updated_at = NOW()
WHERE id = $1`

type UpdateUserStripeCustomerParams struct {
	ID               uuid.UUID
	StripeCustomerID string
}

func (q *Queries) UpdateUserStripeCustomer(ctx context.Context, arg UpdateUserStripeCustomerParams) error {
	_, err := q.db.ExecContext(ctx, updateUserStripeCustomer, arg.ID, arg.StripeCustomerID)
	return err
}

const getCoachUserID = `SELECT user_id FROM coaches WHERE id = $1`

func (q *Queries) GetCoachUserID(ctx context.Context, coachID uuid.UUID) (uuid.UUID, error) {
	var userID uuid.UUID
	err := q.db.QueryRowContext(ctx, getCoachUserID, coachID).Scan(&userID)
	return userID, err
}
