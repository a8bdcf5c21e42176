package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID               uuid.UUID
	Email            string
	FullName         string
	Role             string
	SubscriptionTier string
	StripeCustomerID sql.NullString
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type SubscriptionQuota struct {
	UserID              uuid.UUID
	Tier                string
	MessagesUsed        int32
	CallsUsed           int32
	AttachmentsUsed     int32
	ResetAt             time.Time
	NutritionWindowDays sql.NullInt32
	NutritionExpiresAt  sql.NullTime
	NutritionLocked     bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Conversation is a conversations row joined with the coach's user ID.
type Conversation struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	CoachID            uuid.UUID
	CoachUserID        uuid.UUID
	LastMessageContent sql.NullString
	LastMessageAt      sql.NullTime
	UserUnreadCount    int32
	CoachUnreadCount   int32
	CreatedAt          time.Time
}

type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	ReceiverID     uuid.UUID
	Content        string
	Type           string
	AttachmentURL  sql.NullString
	AttachmentType sql.NullString
	IsRead         bool
	ReadAt         sql.NullTime
	CreatedAt      time.Time
}

type VideoCall struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	CoachID         uuid.UUID
	ScheduledAt     time.Time
	DurationMinutes int32
	Status          string
	CreatedAt       time.Time
}
