package service

import (
	"github.com/coachly/coachly/internal/domain"
	"github.com/coachly/coachly/internal/repository"
)

// =============================================================================
// Repository -> domain conversions
// =============================================================================

func ledgerFromRow(row repository.SubscriptionQuota) domain.QuotaLedger {
	return domain.QuotaLedger{
		UserID:              row.UserID,
		Tier:                domain.SubscriptionTier(row.Tier).OrDefault(),
		MessagesUsed:        int(row.MessagesUsed),
		CallsUsed:           int(row.CallsUsed),
		AttachmentsUsed:     int(row.AttachmentsUsed),
		ResetAt:             row.ResetAt.UTC(),
		NutritionWindowDays: domain.NullInt32Value(row.NutritionWindowDays),
		NutritionExpiresAt:  domain.NullTimeValue(row.NutritionExpiresAt),
		NutritionLocked:     row.NutritionLocked,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
}

func userFromRow(row repository.User) *domain.User {
	return &domain.User{
		ID:               row.ID,
		Email:            row.Email,
		FullName:         row.FullName,
		Role:             domain.Role(row.Role),
		SubscriptionTier: domain.SubscriptionTier(row.SubscriptionTier).OrDefault(),
		StripeCustomerID: domain.NullStringValue(row.StripeCustomerID),
		IsActive:         row.IsActive,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
}

func conversationFromRow(row repository.Conversation) *domain.Conversation {
	return &domain.Conversation{
		ID:                 row.ID,
		UserID:             row.UserID,
		CoachID:            row.CoachID,
		CoachUserID:        row.CoachUserID,
		LastMessageContent: domain.NullStringValue(row.LastMessageContent),
		LastMessageAt:      domain.NullTimeValue(row.LastMessageAt),
		UserUnreadCount:    int(row.UserUnreadCount),
		CoachUnreadCount:   int(row.CoachUnreadCount),
		CreatedAt:          row.CreatedAt,
	}
}

func messageFromRow(row repository.Message) *domain.Message {
	return &domain.Message{
		ID:             row.ID,
		ConversationID: row.ConversationID,
		SenderID:       row.SenderID,
		ReceiverID:     row.ReceiverID,
		Content:        row.Content,
		Type:           domain.MessageType(row.Type),
		AttachmentURL:  domain.NullStringValue(row.AttachmentURL),
		AttachmentType: domain.NullStringValue(row.AttachmentType),
		IsRead:         row.IsRead,
		ReadAt:         domain.NullTimeValue(row.ReadAt),
		CreatedAt:      row.CreatedAt,
	}
}

func videoCallFromRow(row repository.VideoCall) *domain.VideoCall {
	return &domain.VideoCall{
		ID:              row.ID,
		UserID:          row.UserID,
		CoachID:         row.CoachID,
		ScheduledAt:     row.ScheduledAt,
		DurationMinutes: int(row.DurationMinutes),
		Status:          row.Status,
		CreatedAt:       row.CreatedAt,
	}
}
