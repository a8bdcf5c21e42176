package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/coachly/coachly/internal/domain"
	"github.com/coachly/coachly/internal/metrics"
	"github.com/coachly/coachly/internal/repository"
)

const (
	// MaxMessageLength caps the content of a single message in runes.
	MaxMessageLength = 5000

	// DefaultMessagePageSize is used when a history request sets no limit.
	DefaultMessagePageSize = 50

	// MaxMessagePageSize caps a single history request.
	MaxMessagePageSize = 100
)

// =============================================================================
// Interface Definition
// =============================================================================

// ChatService handles conversations and messages.
type ChatService interface {
	// JoinConversation returns the conversation if userID participates in it.
	// Returns domain.EFORBIDDEN otherwise.
	JoinConversation(ctx context.Context, userID, conversationID uuid.UUID) (*domain.Conversation, error)

	// SendMessage persists a message and consumes one message unit from the
	// sender's quota in a single transaction. Policy denials are returned in
	// SendResult.Denied; nothing is written in that case.
	SendMessage(ctx context.Context, params domain.SendMessageParams) (*domain.SendResult, error)

	// MarkRead marks a message read by its receiver and takes it off the
	// receiver's unread counter for the conversation. Marking a message twice
	// changes nothing. Returns domain.ENOTFOUND when userID is not the
	// message's receiver.
	MarkRead(ctx context.Context, userID, messageID uuid.UUID) (*domain.ReadReceipt, error)

	// MarkConversationRead marks everything addressed to userID in a
	// conversation read and zeroes their unread counter. It returns how many
	// messages changed.
	MarkConversationRead(ctx context.Context, userID, conversationID uuid.UUID) (int64, error)

	// ListConversations returns the user's conversations, most recent first.
	ListConversations(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Conversation, error)

	// ListMessages returns a page of a conversation's history, newest first.
	ListMessages(ctx context.Context, userID, conversationID uuid.UUID, page domain.MessagePage) ([]domain.Message, error)

	// UnreadCount returns how many messages userID has not read.
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
}

// =============================================================================
// Implementation
// =============================================================================

type chatService struct {
	store  repository.Store
	quota  QuotaService
	logger *slog.Logger
	now    func() time.Time
}

// NewChatService creates a new ChatService.
func NewChatService(store repository.Store, quota QuotaService, logger *slog.Logger) ChatService {
	return &chatService{
		store:  store,
		quota:  quota,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// JoinConversation returns the conversation if userID participates in it.
func (s *chatService) JoinConversation(ctx context.Context, userID, conversationID uuid.UUID) (*domain.Conversation, error) {
	const op = "chat.join"

	row, err := s.store.GetConversationForParticipant(ctx, repository.GetConversationForParticipantParams{
		ID:     conversationID,
		UserID: userID,
	})
	if err != nil {
		if repository.IsNoRows(err) {
			return nil, domain.Forbidden(op, "Conversation not found")
		}
		return nil, domain.Internal(err, op, "failed to load conversation")
	}
	return conversationFromRow(row), nil
}

func validateSend(params *domain.SendMessageParams) error {
	const op = "chat.send"

	msgType, ok := domain.ParseMessageType(string(params.Type))
	if !ok {
		return domain.Invalid(op, "Unsupported message type")
	}
	params.Type = msgType
	// Length is counted in NFC runes.
	params.Content = norm.NFC.String(strings.TrimSpace(params.Content))

	if msgType.IsAttachment() {
		if params.AttachmentURL == "" {
			return domain.Invalid(op, "Attachment URL is required")
		}
	} else if params.Content == "" {
		return domain.Invalid(op, "Message content is required")
	}
	if len([]rune(params.Content)) > MaxMessageLength {
		return domain.Invalid(op, "Message is too long")
	}
	return nil
}

// SendMessage persists a message and consumes quota in one transaction.
func (s *chatService) SendMessage(ctx context.Context, params domain.SendMessageParams) (*domain.SendResult, error) {
	const op = "chat.send"

	if err := validateSend(&params); err != nil {
		return nil, err
	}

	var result domain.SendResult
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		sender, err := q.GetUserByID(ctx, params.SenderID)
		if err != nil {
			if repository.IsNoRows(err) {
				return domain.Unauthorized(op, "Unknown sender")
			}
			return domain.Internal(err, op, "failed to load sender")
		}
		tier := domain.SubscriptionTier(sender.SubscriptionTier).OrDefault()

		if params.Type.IsAttachment() {
			if ev := domain.Evaluate(domain.LimitsFor(tier), domain.QuotaLedger{Tier: tier}, domain.ActionAttachment); !ev.Allowed {
				result.Denied = &ev
				return nil
			}
		}

		convRow, err := q.GetConversationForParticipant(ctx, repository.GetConversationForParticipantParams{
			ID:     params.ConversationID,
			UserID: params.SenderID,
		})
		if err != nil {
			if repository.IsNoRows(err) {
				return domain.Forbidden(op, "Conversation not found")
			}
			return domain.Internal(err, op, "failed to load conversation")
		}
		conv := conversationFromRow(convRow)
		receiverID, _ := conv.OtherParty(params.SenderID)

		consumed, err := s.quota.ConsumeQuotaWith(ctx, q, params.SenderID, domain.ActionMessage, &tier)
		if err != nil {
			return err
		}
		if !consumed.Allowed {
			zero := domain.Limited(0)
			result.Denied = &domain.QuotaEvaluation{Reason: consumed.Reason, Remaining: &zero}
			return nil
		}

		msgRow, err := q.CreateMessage(ctx, repository.CreateMessageParams{
			ConversationID: conv.ID,
			SenderID:       params.SenderID,
			ReceiverID:     receiverID,
			Content:        params.Content,
			Type:           string(params.Type),
			AttachmentURL:  domain.ToNullString(params.AttachmentURL),
			AttachmentType: domain.ToNullString(params.AttachmentType),
		})
		if err != nil {
			return domain.Internal(err, op, "failed to save message")
		}

		// Attachments are counted here, once per message that carries one.
		if params.Type.IsAttachment() {
			counted, err := s.quota.ConsumeQuotaWith(ctx, q, params.SenderID, domain.ActionAttachment, &tier)
			if err != nil {
				return err
			}
			if !counted.Allowed {
				return domain.UpgradeRequired(op, counted.Reason)
			}
		}

		if err := q.UpdateConversationAfterMessage(ctx, repository.UpdateConversationAfterMessageParams{
			ID:                 conv.ID,
			LastMessageContent: previewText(params),
			LastMessageAt:      msgRow.CreatedAt,
			ReceiverIsCoach:    receiverID == conv.CoachUserID,
		}); err != nil {
			return domain.Internal(err, op, "failed to update conversation")
		}

		result.Message = messageFromRow(msgRow)
		result.Conversation = conv
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Message != nil {
		metrics.MessageSent(string(result.Message.Type))
		s.logger.Info("message sent",
			"message_id", result.Message.ID,
			"conversation_id", result.Message.ConversationID,
			"sender_id", result.Message.SenderID,
		)
	}
	return &result, nil
}

// previewText is what the conversation list shows for the last message.
func previewText(params domain.SendMessageParams) string {
	if params.Content != "" {
		return params.Content
	}
	return "[" + string(params.Type) + "]"
}

// MarkRead marks a message read by its receiver.
func (s *chatService) MarkRead(ctx context.Context, userID, messageID uuid.UUID) (*domain.ReadReceipt, error) {
	const op = "chat.mark_read"

	var row repository.Message
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		var err error
		row, err = q.GetMessageForReceiver(ctx, repository.GetMessageForReceiverParams{
			ID:         messageID,
			ReceiverID: userID,
		})
		if err != nil {
			if repository.IsNoRows(err) {
				return domain.NotFound(op, "message", messageID.String())
			}
			return domain.Internal(err, op, "failed to load message")
		}
		if row.IsRead {
			return nil
		}

		row, err = q.MarkMessageRead(ctx, repository.MarkMessageReadParams{
			ID:         messageID,
			ReceiverID: userID,
			ReadAt:     s.now(),
		})
		if err != nil {
			return domain.Internal(err, op, "failed to mark message read")
		}

		conv, err := q.GetConversation(ctx, row.ConversationID)
		if err != nil {
			return domain.Internal(err, op, "failed to load conversation")
		}
		if err := q.DecrementConversationUnread(ctx, repository.ConversationReaderParams{
			ID:            conv.ID,
			ReaderIsCoach: userID == conv.CoachUserID,
		}); err != nil {
			return domain.Internal(err, op, "failed to update unread count")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &domain.ReadReceipt{
		MessageID:      row.ID,
		ConversationID: row.ConversationID,
		SenderID:       row.SenderID,
		ReadAt:         row.ReadAt.Time,
	}, nil
}

// MarkConversationRead clears a participant's unread messages in one
// conversation.
func (s *chatService) MarkConversationRead(ctx context.Context, userID, conversationID uuid.UUID) (int64, error) {
	const op = "chat.mark_conversation_read"

	var marked int64
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		conv, err := q.GetConversationForParticipant(ctx, repository.GetConversationForParticipantParams{
			ID:     conversationID,
			UserID: userID,
		})
		if err != nil {
			if repository.IsNoRows(err) {
				return domain.Forbidden(op, "Conversation not found")
			}
			return domain.Internal(err, op, "failed to load conversation")
		}

		marked, err = q.MarkConversationRead(ctx, repository.MarkConversationReadParams{
			ConversationID: conv.ID,
			ReceiverID:     userID,
			ReadAt:         s.now(),
		})
		if err != nil {
			return domain.Internal(err, op, "failed to mark messages read")
		}

		if err := q.ResetConversationUnread(ctx, repository.ConversationReaderParams{
			ID:            conv.ID,
			ReaderIsCoach: userID == conv.CoachUserID,
		}); err != nil {
			return domain.Internal(err, op, "failed to reset unread count")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

// ListConversations returns the user's conversations.
func (s *chatService) ListConversations(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Conversation, error) {
	const op = "chat.list_conversations"

	if limit <= 0 || limit > MaxMessagePageSize {
		limit = DefaultMessagePageSize
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.store.ListConversationsForUser(ctx, repository.ListConversationsForUserParams{
		UserID: userID,
		Limit:  int32(limit),
		Offset: int32(offset),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list conversations")
	}

	conversations := make([]domain.Conversation, 0, len(rows))
	for _, row := range rows {
		conversations = append(conversations, *conversationFromRow(row))
	}
	return conversations, nil
}

// ListMessages returns a page of a conversation's history.
func (s *chatService) ListMessages(ctx context.Context, userID, conversationID uuid.UUID, page domain.MessagePage) ([]domain.Message, error) {
	const op = "chat.list_messages"

	if _, err := s.JoinConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	limit := page.Limit
	if limit <= 0 || limit > MaxMessagePageSize {
		limit = DefaultMessagePageSize
	}
	var before uuid.NullUUID
	if page.Before != nil {
		before = uuid.NullUUID{UUID: *page.Before, Valid: true}
	}

	rows, err := s.store.ListMessages(ctx, repository.ListMessagesParams{
		ConversationID: conversationID,
		Before:         before,
		Limit:          int32(limit),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list messages")
	}

	messages := make([]domain.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, *messageFromRow(row))
	}
	return messages, nil
}

// UnreadCount returns how many messages userID has not read.
func (s *chatService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	const op = "chat.unread_count"

	n, err := s.store.CountUnreadMessages(ctx, userID)
	if err != nil {
		return 0, domain.Internal(err, op, "failed to count unread messages")
	}
	return n, nil
}
