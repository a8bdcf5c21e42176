package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachly/coachly/internal/domain"
	"github.com/coachly/coachly/internal/repository"
	"github.com/coachly/coachly/internal/repository/memstore"
)

type chatFixture struct {
	store     *memstore.Store
	quota     *quotaService
	chat      ChatService
	user      repository.User
	coachUser repository.User
	coachID   uuid.UUID
	conv      repository.Conversation
}

func newChatFixture(t *testing.T, tier domain.SubscriptionTier, messagesUsed int32) *chatFixture {
	t.Helper()
	store := memstore.New()
	quota := newTestQuota(store)

	user := store.AddUser(repository.User{Email: "athlete@example.com", SubscriptionTier: string(tier)})
	coachUser := store.AddUser(repository.User{Email: "coach@example.com", Role: "coach"})
	coachID := store.AddCoach(coachUser.ID)
	conv := store.AddConversation(user.ID, coachID)
	seedQuota(store, user.ID, tier, messagesUsed)

	return &chatFixture{
		store:     store,
		quota:     quota,
		chat:      NewChatService(store, quota, testLogger()),
		user:      user,
		coachUser: coachUser,
		coachID:   coachID,
		conv:      conv,
	}
}

func (f *chatFixture) messagesUsed(t *testing.T, userID uuid.UUID) int {
	t.Helper()
	ledger, err := f.quota.EnsureLedger(context.Background(), userID, nil)
	require.NoError(t, err)
	return ledger.MessagesUsed
}

func TestSendMessage_Success(t *testing.T) {
	f := newChatFixture(t, domain.TierFreemium, 3)

	res, err := f.chat.SendMessage(context.Background(), domain.SendMessageParams{
		ConversationID: f.conv.ID,
		SenderID:       f.user.ID,
		Content:        "Hello",
	})
	require.NoError(t, err)
	require.Nil(t, res.Denied)
	require.NotNil(t, res.Message)

	assert.Equal(t, f.user.ID, res.Message.SenderID)
	assert.Equal(t, f.coachUser.ID, res.Message.ReceiverID)
	assert.Equal(t, domain.MessageTypeText, res.Message.Type)
	assert.Equal(t, "Hello", res.Message.Content)
	assert.False(t, res.Message.IsRead)
	assert.Equal(t, 4, f.messagesUsed(t, f.user.ID))

	conv, err := f.store.GetConversation(context.Background(), f.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello", conv.LastMessageContent.String)
	assert.Equal(t, int32(1), conv.CoachUnreadCount)
	assert.Equal(t, int32(0), conv.UserUnreadCount)
}

func TestSendMessage_CoachToUserIncrementsUserUnread(t *testing.T) {
	f := newChatFixture(t, domain.TierFreemium, 0)

	res, err := f.chat.SendMessage(context.Background(), domain.SendMessageParams{
		ConversationID: f.conv.ID,
		SenderID:       f.coachUser.ID,
		Content:        "Great work today",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Message)
	assert.Equal(t, f.user.ID, res.Message.ReceiverID)

	conv, err := f.store.GetConversation(context.Background(), f.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(1), conv.UserUnreadCount)
	assert.Equal(t, int32(0), conv.CoachUnreadCount)
}

func TestSendMessage_QuotaExceeded(t *testing.T) {
	f := newChatFixture(t, domain.TierFreemium, 20)

	res, err := f.chat.SendMessage(context.Background(), domain.SendMessageParams{
		ConversationID: f.conv.ID,
		SenderID:       f.user.ID,
		Content:        "Hello",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Denied)
	assert.Equal(t, domain.ReasonMessageQuotaExceeded, res.Denied.Reason)
	assert.Nil(t, res.Message)

	assert.Equal(t, 0, f.store.MessageCount())
	assert.Equal(t, 20, f.messagesUsed(t, f.user.ID))
}

func TestSendMessage_AttachmentRequiresPremium(t *testing.T) {
	f := newChatFixture(t, domain.TierFreemium, 0)

	res, err := f.chat.SendMessage(context.Background(), domain.SendMessageParams{
		ConversationID: f.conv.ID,
		SenderID:       f.user.ID,
		Type:           domain.MessageTypeImage,
		AttachmentURL:  "https://cdn.example.com/a.png",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Denied)
	assert.Equal(t, domain.ReasonAttachmentsPremium, res.Denied.Reason)
	assert.Equal(t, 0, f.store.MessageCount())
	assert.Equal(t, 0, f.messagesUsed(t, f.user.ID))
}

func TestSendMessage_PremiumAttachment(t *testing.T) {
	f := newChatFixture(t, domain.TierPremium, 0)

	res, err := f.chat.SendMessage(context.Background(), domain.SendMessageParams{
		ConversationID: f.conv.ID,
		SenderID:       f.user.ID,
		Type:           domain.MessageTypePDF,
		AttachmentURL:  "https://cdn.example.com/plan.pdf",
		AttachmentType: "application/pdf",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Message)
	assert.Equal(t, "https://cdn.example.com/plan.pdf", res.Message.AttachmentURL)

	ledger, err := f.quota.EnsureLedger(context.Background(), f.user.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.MessagesUsed)
	assert.Equal(t, 1, ledger.AttachmentsUsed)

	conv, err := f.store.GetConversation(context.Background(), f.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "[pdf]", conv.LastMessageContent.String)
}

func TestSendMessage_CountsEachAttachmentOnce(t *testing.T) {
	f := newChatFixture(t, domain.TierPremium, 0)

	for i := 0; i < 2; i++ {
		_, err := f.chat.SendMessage(context.Background(), domain.SendMessageParams{
			ConversationID: f.conv.ID,
			SenderID:       f.user.ID,
			Type:           domain.MessageTypeImage,
			AttachmentURL:  "https://cdn.example.com/meal.jpg",
		})
		require.NoError(t, err)
	}
	f.send(t, f.user.ID, "Text only")

	ledger, err := f.quota.EnsureLedger(context.Background(), f.user.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, ledger.MessagesUsed)
	assert.Equal(t, 2, ledger.AttachmentsUsed)
}

func TestSendMessage_NonParticipantForbidden(t *testing.T) {
	f := newChatFixture(t, domain.TierFreemium, 0)
	stranger := f.store.AddUser(repository.User{Email: "stranger@example.com"})

	_, err := f.chat.SendMessage(context.Background(), domain.SendMessageParams{
		ConversationID: f.conv.ID,
		SenderID:       stranger.ID,
		Content:        "hi",
	})
	require.Error(t, err)
	assert.Equal(t, domain.EFORBIDDEN, domain.ErrorCode(err))
	assert.Equal(t, 0, f.store.MessageCount())
}

func TestSendMessage_PersistFailureKeepsQuota(t *testing.T) {
	f := newChatFixture(t, domain.TierFreemium, 3)
	f.store.FailCreateMessage = errors.New("disk full")

	_, err := f.chat.SendMessage(context.Background(), domain.SendMessageParams{
		ConversationID: f.conv.ID,
		SenderID:       f.user.ID,
		Content:        "Hello",
	})
	require.Error(t, err)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))

	f.store.FailCreateMessage = nil
	assert.Equal(t, 3, f.messagesUsed(t, f.user.ID))

	conv, err := f.store.GetConversation(context.Background(), f.conv.ID)
	require.NoError(t, err)
	assert.False(t, conv.LastMessageContent.Valid)
}

func TestSendMessage_Validation(t *testing.T) {
	f := newChatFixture(t, domain.TierPremium, 0)

	testCases := []struct {
		name   string
		params domain.SendMessageParams
	}{
		{"empty text", domain.SendMessageParams{Content: "   "}},
		{"unknown type", domain.SendMessageParams{Content: "x", Type: "sticker"}},
		{"attachment without url", domain.SendMessageParams{Type: domain.MessageTypeImage}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.params.ConversationID = f.conv.ID
			tc.params.SenderID = f.user.ID
			_, err := f.chat.SendMessage(context.Background(), tc.params)
			assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
		})
	}
	assert.Equal(t, 0, f.messagesUsed(t, f.user.ID))
}

func TestSendMessage_NormalizesContent(t *testing.T) {
	f := newChatFixture(t, domain.TierPremium, 0)

	res, err := f.chat.SendMessage(context.Background(), domain.SendMessageParams{
		ConversationID: f.conv.ID,
		SenderID:       f.user.ID,
		Content:        "  Cafe\u0301 at 7?  ",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Message)
	assert.Equal(t, "Caf\u00e9 at 7?", res.Message.Content)
}

func TestJoinConversation(t *testing.T) {
	f := newChatFixture(t, domain.TierFreemium, 0)

	conv, err := f.chat.JoinConversation(context.Background(), f.coachUser.ID, f.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, f.conv.ID, conv.ID)

	_, err = f.chat.JoinConversation(context.Background(), uuid.New(), f.conv.ID)
	assert.Equal(t, domain.EFORBIDDEN, domain.ErrorCode(err))
}

func TestMarkRead_OnlyReceiver(t *testing.T) {
	f := newChatFixture(t, domain.TierFreemium, 0)
	res, err := f.chat.SendMessage(context.Background(), domain.SendMessageParams{
		ConversationID: f.conv.ID,
		SenderID:       f.user.ID,
		Content:        "Hello",
	})
	require.NoError(t, err)

	_, err = f.chat.MarkRead(context.Background(), f.user.ID, res.Message.ID)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))

	receipt, err := f.chat.MarkRead(context.Background(), f.coachUser.ID, res.Message.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Message.ID, receipt.MessageID)
	assert.Equal(t, f.conv.ID, receipt.ConversationID)
	assert.Equal(t, f.user.ID, receipt.SenderID)
	assert.False(t, receipt.ReadAt.IsZero())

	n, err := f.chat.UnreadCount(context.Background(), f.coachUser.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func (f *chatFixture) send(t *testing.T, senderID uuid.UUID, content string) *domain.Message {
	t.Helper()
	res, err := f.chat.SendMessage(context.Background(), domain.SendMessageParams{
		ConversationID: f.conv.ID,
		SenderID:       senderID,
		Content:        content,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Message)
	return res.Message
}

func (f *chatFixture) conversationAs(t *testing.T, userID uuid.UUID) domain.Conversation {
	t.Helper()
	convs, err := f.chat.ListConversations(context.Background(), userID, 0, 0)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	return convs[0]
}

func TestMarkRead_ClearsConversationUnread(t *testing.T) {
	f := newChatFixture(t, domain.TierFreemium, 0)
	first := f.send(t, f.user.ID, "Hello")
	f.send(t, f.user.ID, "Are you there?")
	assert.Equal(t, 2, f.conversationAs(t, f.coachUser.ID).CoachUnreadCount)

	receipt, err := f.chat.MarkRead(context.Background(), f.coachUser.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.conversationAs(t, f.coachUser.ID).CoachUnreadCount)

	// A repeated read changes neither the counter nor the timestamp.
	again, err := f.chat.MarkRead(context.Background(), f.coachUser.ID, first.ID)
	require.NoError(t, err)
	assert.True(t, receipt.ReadAt.Equal(again.ReadAt))
	conv := f.conversationAs(t, f.coachUser.ID)
	assert.Equal(t, 1, conv.CoachUnreadCount)
	assert.Equal(t, 0, conv.UserUnreadCount)
}

func TestMarkConversationRead(t *testing.T) {
	f := newChatFixture(t, domain.TierFreemium, 0)
	for _, content := range []string{"one", "two", "three"} {
		f.send(t, f.user.ID, content)
	}
	f.send(t, f.coachUser.ID, "Got it")

	marked, err := f.chat.MarkConversationRead(context.Background(), f.coachUser.ID, f.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), marked)

	conv := f.conversationAs(t, f.coachUser.ID)
	assert.Equal(t, 0, conv.CoachUnreadCount)
	assert.Equal(t, 1, conv.UserUnreadCount, "the other side is untouched")

	n, err := f.chat.UnreadCount(context.Background(), f.coachUser.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	marked, err = f.chat.MarkConversationRead(context.Background(), f.coachUser.ID, f.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), marked)

	_, err = f.chat.MarkConversationRead(context.Background(), uuid.New(), f.conv.ID)
	assert.Equal(t, domain.EFORBIDDEN, domain.ErrorCode(err))
}

func TestListMessages_Paging(t *testing.T) {
	f := newChatFixture(t, domain.TierPremium, 0)

	var ids []uuid.UUID
	for _, content := range []string{"one", "two", "three"} {
		res, err := f.chat.SendMessage(context.Background(), domain.SendMessageParams{
			ConversationID: f.conv.ID,
			SenderID:       f.user.ID,
			Content:        content,
		})
		require.NoError(t, err)
		ids = append(ids, res.Message.ID)
		time.Sleep(2 * time.Millisecond)
	}

	page, err := f.chat.ListMessages(context.Background(), f.coachUser.ID, f.conv.ID, domain.MessagePage{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "three", page[0].Content)
	assert.Equal(t, "two", page[1].Content)

	older, err := f.chat.ListMessages(context.Background(), f.coachUser.ID, f.conv.ID, domain.MessagePage{Before: &ids[1], Limit: 2})
	require.NoError(t, err)
	require.Len(t, older, 1)
	assert.Equal(t, "one", older[0].Content)

	_, err = f.chat.ListMessages(context.Background(), uuid.New(), f.conv.ID, domain.MessagePage{})
	assert.Equal(t, domain.EFORBIDDEN, domain.ErrorCode(err))
}

func TestListConversations(t *testing.T) {
	f := newChatFixture(t, domain.TierFreemium, 0)

	convs, err := f.chat.ListConversations(context.Background(), f.coachUser.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, f.conv.ID, convs[0].ID)
	assert.Equal(t, f.coachUser.ID, convs[0].CoachUserID)
}
