package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageType is the kind of content a chat message carries.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypePDF   MessageType = "pdf"
	MessageTypeVideo MessageType = "video"
)

// ParseMessageType validates a wire message type. An empty string means text.
func ParseMessageType(s string) (MessageType, bool) {
	switch MessageType(s) {
	case "", MessageTypeText:
		return MessageTypeText, true
	case MessageTypeImage, MessageTypePDF, MessageTypeVideo:
		return MessageType(s), true
	}
	return "", false
}

// IsAttachment returns true for every type other than text.
func (t MessageType) IsAttachment() bool {
	return t != MessageTypeText
}

// Conversation pairs one end-user with one coach.
//
// CoachID references the coaches table; CoachUserID is the user account that
// owns that coach profile, which is what connections authenticate as.
type Conversation struct {
	ID                 uuid.UUID  `json:"id"`
	UserID             uuid.UUID  `json:"userId"`
	CoachID            uuid.UUID  `json:"coachId"`
	CoachUserID        uuid.UUID  `json:"coachUserId"`
	LastMessageContent string     `json:"lastMessageContent,omitempty"`
	LastMessageAt      *time.Time `json:"lastMessageAt,omitempty"`
	UserUnreadCount    int        `json:"userUnreadCount"`
	CoachUnreadCount   int        `json:"coachUnreadCount"`
	CreatedAt          time.Time  `json:"createdAt"`
}

// IsParticipant returns true if userID is the end-user or the coach's user.
func (c *Conversation) IsParticipant(userID uuid.UUID) bool {
	return userID == c.UserID || userID == c.CoachUserID
}

// OtherParty returns the participant that is not senderID.
// ok is false when senderID is not a participant.
func (c *Conversation) OtherParty(senderID uuid.UUID) (uuid.UUID, bool) {
	switch senderID {
	case c.UserID:
		return c.CoachUserID, true
	case c.CoachUserID:
		return c.UserID, true
	}
	return uuid.Nil, false
}

// Message is a single persisted chat message.
type Message struct {
	ID             uuid.UUID   `json:"id"`
	ConversationID uuid.UUID   `json:"conversationId"`
	SenderID       uuid.UUID   `json:"senderId"`
	ReceiverID     uuid.UUID   `json:"receiverId"`
	Content        string      `json:"content"`
	Type           MessageType `json:"type"`
	AttachmentURL  string      `json:"attachmentUrl,omitempty"`
	AttachmentType string      `json:"attachmentType,omitempty"`
	IsRead         bool        `json:"isRead"`
	ReadAt         *time.Time  `json:"readAt,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// Preview returns content truncated to n runes with an ellipsis.
func Preview(content string, n int) string {
	runes := []rune(content)
	if len(runes) <= n {
		return content
	}
	return string(runes[:n]) + "..."
}

// SendMessageParams contains the validated input for sending a message.
type SendMessageParams struct {
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	Content        string
	Type           MessageType
	AttachmentURL  string
	AttachmentType string
}

// SendResult is the outcome of a send attempt. When Denied is non-nil the
// message was not persisted and no quota was consumed.
type SendResult struct {
	Message      *Message
	Conversation *Conversation
	Denied       *QuotaEvaluation
}

// ReadReceipt describes a message that was marked read.
type ReadReceipt struct {
	MessageID      uuid.UUID `json:"messageId"`
	ConversationID uuid.UUID `json:"conversationId"`
	SenderID       uuid.UUID `json:"-"`
	ReadAt         time.Time `json:"readAt"`
}

// MessagePage requests a page of history. Before, when set, is a message ID
// cursor; only older messages are returned.
type MessagePage struct {
	Before *uuid.UUID
	Limit  int
}
