package repository

import (
	"context"

	"github.com/google/uuid"
)

// Querier lists every statement the application runs.
type Querier interface {
	// Subscription quotas
	GetSubscriptionQuota(ctx context.Context, userID uuid.UUID) (SubscriptionQuota, error)
	CreateSubscriptionQuota(ctx context.Context, arg CreateSubscriptionQuotaParams) (SubscriptionQuota, error)
	UpdateSubscriptionQuotaTier(ctx context.Context, arg UpdateSubscriptionQuotaTierParams) (SubscriptionQuota, error)
	ResetSubscriptionQuota(ctx context.Context, arg ResetSubscriptionQuotaParams) (SubscriptionQuota, error)
	IncrementMessagesUsed(ctx context.Context, arg IncrementUsageParams) (SubscriptionQuota, error)
	IncrementCallsUsed(ctx context.Context, arg IncrementUsageParams) (SubscriptionQuota, error)
	IncrementAttachmentsUsed(ctx context.Context, userID uuid.UUID) (SubscriptionQuota, error)
	StartNutritionWindow(ctx context.Context, arg StartNutritionWindowParams) (SubscriptionQuota, error)

	// Users
	GetUserByID(ctx context.Context, id uuid.UUID) (User, error)
	GetUserByStripeCustomerID(ctx context.Context, stripeCustomerID string) (User, error)
	UpdateUserSubscriptionTier(ctx context.Context, arg UpdateUserSubscriptionTierParams) error
	UpdateUserStripeCustomer(ctx context.Context, arg UpdateUserStripeCustomerParams) error
	GetCoachUserID(ctx context.Context, coachID uuid.UUID) (uuid.UUID, error)

	// Conversations
	GetConversation(ctx context.Context, id uuid.UUID) (Conversation, error)
	GetConversationForParticipant(ctx context.Context, arg GetConversationForParticipantParams) (Conversation, error)
	ListConversationsForUser(ctx context.Context, arg ListConversationsForUserParams) ([]Conversation, error)
	UpdateConversationAfterMessage(ctx context.Context, arg UpdateConversationAfterMessageParams) error
	DecrementConversationUnread(ctx context.Context, arg ConversationReaderParams) error
	ResetConversationUnread(ctx context.Context, arg ConversationReaderParams) error

	// Messages
	CreateMessage(ctx context.Context, arg CreateMessageParams) (Message, error)
	GetMessageForReceiver(ctx context.Context, arg GetMessageForReceiverParams) (Message, error)
	MarkMessageRead(ctx context.Context, arg MarkMessageReadParams) (Message, error)
	MarkConversationRead(ctx context.Context, arg MarkConversationReadParams) (int64, error)
	ListMessages(ctx context.Context, arg ListMessagesParams) ([]Message, error)
	CountUnreadMessages(ctx context.Context, receiverID uuid.UUID) (int64, error)

	// Video calls
	CreateVideoCall(ctx context.Context, arg CreateVideoCallParams) (VideoCall, error)
}

var _ Querier = (*Queries)(nil)
var _ Store = (*SQLStore)(nil)
