package relay

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/coachly/coachly/internal/domain"
)

// Inbound events.
const (
	EventJoinConversation = "join_conversation"
	EventSendMessage      = "send_message"
	EventMarkRead         = "mark_read"
	EventTypingStart      = "typing_start"
	EventTypingStop       = "typing_stop"
)

// Outbound events.
const (
	EventNewMessage        = "new_message"
	EventNotification      = "notification"
	EventQuotaExceeded     = "quota_exceeded"
	EventError             = "error"
	EventMessageRead       = "message_read"
	EventUserTyping        = "user_typing"
	EventUserStoppedTyping = "user_stopped_typing"
)

// Envelope is the wire frame for every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// =============================================================================
// Inbound payloads
// =============================================================================

type conversationPayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
}

type sendMessagePayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
	Content        string    `json:"content"`
	Type           string    `json:"type"`
	AttachmentURL  string    `json:"attachmentUrl,omitempty"`
	AttachmentType string    `json:"attachmentType,omitempty"`
}

type markReadPayload struct {
	MessageID uuid.UUID `json:"messageId"`
}

// =============================================================================
// Outbound payloads
// =============================================================================

// NewMessage carries a persisted message to a conversation room.
type NewMessage struct {
	Message *domain.Message `json:"message"`
}

// Notification is the compact push sent to a receiver's private group.
type Notification struct {
	Type           string    `json:"type"`
	ConversationID uuid.UUID `json:"conversationId"`
	SenderID       uuid.UUID `json:"senderId"`
	Content        string    `json:"content"`
}

// QuotaExceeded tells a sender their message quota is used up.
type QuotaExceeded struct {
	Message         string `json:"message"`
	UpgradeRequired bool   `json:"upgradeRequired"`
}

// ErrorPayload reports a failed inbound event to its connection.
type ErrorPayload struct {
	Message         string `json:"message"`
	UpgradeRequired bool   `json:"upgradeRequired,omitempty"`
}

// MessageRead tells a sender their message was read.
type MessageRead struct {
	MessageID      uuid.UUID `json:"messageId"`
	ConversationID uuid.UUID `json:"conversationId"`
	ReadAt         time.Time `json:"readAt"`
}

// Typing is broadcast for typing_start and typing_stop.
type Typing struct {
	UserID         uuid.UUID `json:"userId"`
	ConversationID uuid.UUID `json:"conversationId"`
}

// notificationPreviewLength is how much message content a notification carries.
const notificationPreviewLength = 50

const quotaExceededMessage = "Message quota exceeded. Please upgrade your plan."

func encode(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
