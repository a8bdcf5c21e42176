// Package handler contains the JSON HTTP handlers of the coaching API.
//
// This file implements the HTTP side of messaging for clients without a live
// socket. Deliveries still fan out through the relay.
//
// Routes:
//   - POST /api/messages                -> Send
//   - PUT  /api/messages/{id}/read      -> MarkRead
//   - PUT  /api/conversations/{id}/read -> MarkConversationRead
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/coachly/coachly/internal/domain"
	"github.com/coachly/coachly/internal/service"
)

// MessageSender persists a message or read receipt and publishes it to
// connected clients.
type MessageSender interface {
	SendMessage(ctx context.Context, params domain.SendMessageParams) (*domain.SendResult, error)
	MarkRead(ctx context.Context, userID, messageID uuid.UUID) (*domain.ReadReceipt, error)
}

// MessageHandler handles message writes over HTTP.
type MessageHandler struct {
	sender MessageSender
	chat   service.ChatService
	quota  service.QuotaService
	logger *slog.Logger
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(sender MessageSender, chat service.ChatService, quota service.QuotaService, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{sender: sender, chat: chat, quota: quota, logger: logger}
}

// RegisterRoutes registers message routes on the provided mux. requireMessage
// runs after requireUser and rejects senders whose message quota is spent.
func (h *MessageHandler) RegisterRoutes(mux *http.ServeMux, requireUser, requireMessage func(http.Handler) http.Handler) {
	mux.Handle("POST /api/messages", requireUser(requireMessage(http.HandlerFunc(h.Send))))
	mux.Handle("PUT /api/messages/{id}/read", requireUser(http.HandlerFunc(h.MarkRead)))
	mux.Handle("PUT /api/conversations/{id}/read", requireUser(http.HandlerFunc(h.MarkConversationRead)))
}

// SendMessageRequest is the body of POST /api/messages.
type SendMessageRequest struct {
	ConversationID uuid.UUID `json:"conversationId"`
	Content        string    `json:"content"`
	Type           string    `json:"type"`
	AttachmentURL  string    `json:"attachmentUrl,omitempty"`
	AttachmentType string    `json:"attachmentType,omitempty"`
}

// SendMessageResponse carries the persisted message.
type SendMessageResponse struct {
	Success      bool                 `json:"success"`
	Message      *domain.Message      `json:"message"`
	Conversation *domain.Conversation `json:"conversation"`
}

// Send persists a message and publishes it. The quota middleware has already
// checked the sender, but the unit is only spent here, so a concurrent send
// can still exhaust it; that case answers with the same 403 body.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	const op = "message.send"

	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}

	var req SendMessageRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	msgType, ok := domain.ParseMessageType(req.Type)
	if !ok {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Invalid message type"))
		return
	}

	res, err := h.sender.SendMessage(r.Context(), domain.SendMessageParams{
		ConversationID: req.ConversationID,
		SenderID:       user.ID,
		Content:        req.Content,
		Type:           msgType,
		AttachmentURL:  req.AttachmentURL,
		AttachmentType: req.AttachmentType,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if res.Denied != nil {
		action := domain.ActionMessage
		if res.Denied.Reason == domain.ReasonAttachmentsPremium {
			action = domain.ActionAttachment
		}
		QuotaDeniedResponse(w, r, h.logger, h.quota, user, action, res.Denied.Reason)
		return
	}

	JSON(w, http.StatusCreated, SendMessageResponse{
		Success:      true,
		Message:      res.Message,
		Conversation: res.Conversation,
	})
}

// ReadResponse carries a read receipt.
type ReadResponse struct {
	Success bool                `json:"success"`
	Receipt *domain.ReadReceipt `json:"receipt"`
}

// MarkRead marks one message addressed to the caller as read.
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	const op = "message.read"

	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}

	id, err := pathUUID(r, "id", op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	receipt, err := h.sender.MarkRead(r.Context(), user.ID, id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, ReadResponse{Success: true, Receipt: receipt})
}

// ConversationReadResponse reports how many messages were marked read.
type ConversationReadResponse struct {
	Success bool  `json:"success"`
	Marked  int64 `json:"marked"`
}

// MarkConversationRead marks everything the caller has received in a
// conversation as read and clears their unread counter.
func (h *MessageHandler) MarkConversationRead(w http.ResponseWriter, r *http.Request) {
	const op = "conversation.read"

	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}

	id, err := pathUUID(r, "id", op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	marked, err := h.chat.MarkConversationRead(r.Context(), user.ID, id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, ConversationReadResponse{Success: true, Marked: marked})
}
