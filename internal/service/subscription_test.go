package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachly/coachly/internal/domain"
	"github.com/coachly/coachly/internal/repository"
	"github.com/coachly/coachly/internal/repository/memstore"
)

func TestApplyPlanForCustomer_KeepsUsage(t *testing.T) {
	store := memstore.New()
	quota := newTestQuota(store)
	subs := newSubscriptionService(store, quota, testLogger())

	user := store.AddUser(repository.User{Email: "athlete@example.com"})
	seedQuota(store, user.ID, domain.TierFreemium, 5)
	require.NoError(t, subs.LinkCustomer(context.Background(), user.ID, "cus_123"))

	require.NoError(t, subs.ApplyPlanForCustomer(context.Background(), "cus_123", "smart-premium"))

	got, err := subs.GetUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierSmartPremium, got.SubscriptionTier)
	assert.Equal(t, "cus_123", got.StripeCustomerID)

	ledger, err := quota.EnsureLedger(context.Background(), user.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TierSmartPremium, ledger.Tier)
	assert.Equal(t, 5, ledger.MessagesUsed)
	assert.False(t, ledger.NutritionLocked)
}

func TestApplyPlanForCustomer_UnknownPlanIsFreemium(t *testing.T) {
	store := memstore.New()
	subs := NewSubscriptionService(store, testLogger())

	user := store.AddUser(repository.User{Email: "athlete@example.com", SubscriptionTier: "premium"})
	require.NoError(t, subs.LinkCustomer(context.Background(), user.ID, "cus_456"))

	require.NoError(t, subs.ApplyPlanForCustomer(context.Background(), "cus_456", "gold"))

	got, err := subs.GetUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierFreemium, got.SubscriptionTier)
}

func TestLinkCustomer_AlreadyLinkedElsewhere(t *testing.T) {
	store := memstore.New()
	subs := NewSubscriptionService(store, testLogger())

	first := store.AddUser(repository.User{Email: "first@example.com"})
	second := store.AddUser(repository.User{Email: "second@example.com"})
	require.NoError(t, subs.LinkCustomer(context.Background(), first.ID, "cus_shared"))

	err := subs.LinkCustomer(context.Background(), second.ID, "cus_shared")
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	// Relinking the owner is a no-op.
	require.NoError(t, subs.LinkCustomer(context.Background(), first.ID, "cus_shared"))

	got, err := subs.GetUser(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Empty(t, got.StripeCustomerID)
}

func TestApplyPlanForCustomer_UnknownCustomer(t *testing.T) {
	subs := NewSubscriptionService(memstore.New(), testLogger())

	err := subs.ApplyPlanForCustomer(context.Background(), "cus_missing", "premium")
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestGetUser_Unknown(t *testing.T) {
	subs := NewSubscriptionService(memstore.New(), testLogger())

	_, err := subs.GetUser(context.Background(), uuid.New())
	assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err))
}
