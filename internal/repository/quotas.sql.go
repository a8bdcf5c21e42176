package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const subscriptionQuotaColumns = `user_id, tier, messages_used, calls_used, attachments_used, reset_at,
	nutrition_window_days, nutrition_expires_at, nutrition_locked, created_at, updated_at`

func scanSubscriptionQuota(row rowScanner) (SubscriptionQuota, error) {
	var i SubscriptionQuota
	err := row.Scan(
		&i.UserID,
		&i.Tier,
		&i.MessagesUsed,
		&i.CallsUsed,
		&i.AttachmentsUsed,
		&i.ResetAt,
		&i.NutritionWindowDays,
		&i.NutritionExpiresAt,
		&i.NutritionLocked,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getSubscriptionQuota = `SELECT ` + subscriptionQuotaColumns + `
FROM subscription_quotas
WHERE user_id = $1`

func (q *Queries) GetSubscriptionQuota(ctx context.Context, userID uuid.UUID) (SubscriptionQuota, error) {
	row := q.db.QueryRowContext(ctx, getSubscriptionQuota, userID)
	return scanSubscriptionQuota(row)
}

const createSubscriptionQuota = `INSERT INTO subscription_quotas (
	user_id, tier, reset_at, nutrition_window_days, nutrition_locked
) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id) DO NOTHING
RETURNING ` + subscriptionQuotaColumns

type CreateSubscriptionQuotaParams struct {
	UserID              uuid.UUID
	Tier                string
	ResetAt             time.Time
	NutritionWindowDays sql.NullInt32
	NutritionLocked     bool
}

// CreateSubscriptionQuota inserts a ledger row. It returns sql.ErrNoRows when
// a row for the user already exists.
func (q *Queries) CreateSubscriptionQuota(ctx context.Context, arg CreateSubscriptionQuotaParams) (SubscriptionQuota, error) {
	row := q.db.QueryRowContext(ctx, createSubscriptionQuota,
		arg.UserID,
		arg.Tier,
		arg.ResetAt,
		arg.NutritionWindowDays,
		arg.NutritionLocked,
	)
	return scanSubscriptionQuota(row)
}

const updateSubscriptionQuotaTier = `UPDATE subscription_quotas
SET tier = $2,
	nutrition_window_days = $3,
	nutrition_locked = $4,
	updated_at = NOW()
WHERE user_id = $1
RETURNING ` + subscriptionQuotaColumns

type UpdateSubscriptionQuotaTierParams struct {
	UserID              uuid.UUID
	Tier                string
	NutritionWindowDays sql.NullInt32
	NutritionLocked     bool
}

func (q *Queries) UpdateSubscriptionQuotaTier(ctx context.Context, arg UpdateSubscriptionQuotaTierParams) (SubscriptionQuota, error) {
	row := q.db.QueryRowContext(ctx, updateSubscriptionQuotaTier,
		arg.UserID,
		arg.Tier,
		arg.NutritionWindowDays,
		arg.NutritionLocked,
	)
	return scanSubscriptionQuota(row)
}

const resetSubscriptionQuota = `UPDATE subscription_quotas
SET messages_used = 0,
	calls_used = 0,
	attachments_used = 0,
	reset_at = $2,
	updated_at = NOW()
WHERE user_id = $1 AND reset_at <= $3
RETURNING ` + subscriptionQuotaColumns

type ResetSubscriptionQuotaParams struct {
	UserID  uuid.UUID
	ResetAt time.Time // new cycle end
	Now     time.Time
}

// ResetSubscriptionQuota zeroes the counters of a ledger whose cycle has
// ended at Now. It returns sql.ErrNoRows when the cycle is still running,
// which includes the case where a concurrent caller already reset it.
func (q *Queries) ResetSubscriptionQuota(ctx context.Context, arg ResetSubscriptionQuotaParams) (SubscriptionQuota, error) {
	row := q.db.QueryRowContext(ctx, resetSubscriptionQuota, arg.UserID, arg.ResetAt, arg.Now)
	return scanSubscriptionQuota(row)
}

const incrementMessagesUsed = `UPDATE subscription_quotas
SET messages_used = messages_used + 1,
	updated_at = NOW()
WHERE user_id = $1 AND messages_used < $2
RETURNING ` + subscriptionQuotaColumns

// IncrementUsageParams bounds a conditional increment.
type IncrementUsageParams struct {
	UserID uuid.UUID
	Limit  int32
}

// IncrementMessagesUsed adds one message if the counter is still below Limit.
// It returns sql.ErrNoRows when the limit has been reached.
func (q *Queries) IncrementMessagesUsed(ctx context.Context, arg IncrementUsageParams) (SubscriptionQuota, error) {
	row := q.db.QueryRowContext(ctx, incrementMessagesUsed, arg.UserID, arg.Limit)
	return scanSubscriptionQuota(row)
}

const incrementCallsUsed = `UPDATE subscription_quotas
SET calls_used = calls_used + 1,
	updated_at = NOW()
WHERE user_id = $1 AND calls_used < $2
RETURNING ` + subscriptionQuotaColumns

// IncrementCallsUsed adds one call if the counter is still below Limit.
// It returns sql.ErrNoRows when the limit has been reached.
func (q *Queries) IncrementCallsUsed(ctx context.Context, arg IncrementUsageParams) (SubscriptionQuota, error) {
	row := q.db.QueryRowContext(ctx, incrementCallsUsed, arg.UserID, arg.Limit)
	return scanSubscriptionQuota(row)
}

const incrementAttachmentsUsed = `UPDATE subscription_quotas
SET attachments_used = attachments_used + 1,
	updated_at = NOW()
WHERE user_id = $1
RETURNING ` + subscriptionQuotaColumns

func (q *Queries) IncrementAttachmentsUsed(ctx context.Context, userID uuid.UUID) (SubscriptionQuota, error) {
	row := q.db.QueryRowContext(ctx, incrementAttachmentsUsed, userID)
	return scanSubscriptionQuota(row)
}

const startNutritionWindow = `UPDATE subscription_quotas
SET nutrition_expires_at = $2,
	nutrition_locked = FALSE,
	updated_at = NOW()
WHERE user_id = $1 AND nutrition_expires_at IS NULL
RETURNING ` + subscriptionQuotaColumns

type StartNutritionWindowParams struct {
	UserID    uuid.UUID
	ExpiresAt time.Time
}

// StartNutritionWindow sets the nutrition expiry once. It returns
// sql.ErrNoRows when a window was already started.
func (q *Queries) StartNutritionWindow(ctx context.Context, arg StartNutritionWindowParams) (SubscriptionQuota, error) {
	row := q.db.QueryRowContext(ctx, startNutritionWindow, arg.UserID, arg.ExpiresAt)
	return scanSubscriptionQuota(row)
}
