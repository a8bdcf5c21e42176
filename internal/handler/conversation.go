// Package handler contains the JSON HTTP handlers of the coaching API.
//
// This file implements conversation and message history reads.
//
// Routes:
//   - GET /api/conversations               -> List
//   - GET /api/conversations/{id}/messages -> Messages
//   - GET /api/messages/unread/count       -> UnreadCount
package handler

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/coachly/coachly/internal/domain"
	"github.com/coachly/coachly/internal/service"
)

// ConversationHandler serves conversation history. Live traffic goes through
// the websocket relay.
type ConversationHandler struct {
	chat   service.ChatService
	logger *slog.Logger
}

// NewConversationHandler creates a new ConversationHandler.
func NewConversationHandler(chat service.ChatService, logger *slog.Logger) *ConversationHandler {
	return &ConversationHandler{chat: chat, logger: logger}
}

// RegisterRoutes registers conversation routes on the provided mux.
func (h *ConversationHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("GET /api/conversations", requireUser(http.HandlerFunc(h.List)))
	mux.Handle("GET /api/conversations/{id}/messages", requireUser(http.HandlerFunc(h.Messages)))
	mux.Handle("GET /api/messages/unread/count", requireUser(http.HandlerFunc(h.UnreadCount)))
}

// ConversationsResponse is a page of conversations.
type ConversationsResponse struct {
	Success       bool                  `json:"success"`
	Conversations []domain.Conversation `json:"conversations"`
}

// List returns the caller's conversations, most recent first.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	const op = "conversation.list"

	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}

	limit, err := queryInt(r, "limit", op, service.DefaultMessagePageSize)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	offset, err := queryInt(r, "offset", op, 0)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	convs, err := h.chat.ListConversations(r.Context(), user.ID, clampPage(limit), offset)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	JSON(w, http.StatusOK, ConversationsResponse{Success: true, Conversations: convs})
}

// MessagesResponse is a page of history in chronological order.
type MessagesResponse struct {
	Success  bool             `json:"success"`
	Messages []domain.Message `json:"messages"`
	// NextBefore is the cursor for the next older page, empty on the last page.
	NextBefore string `json:"nextBefore,omitempty"`
}

// Messages returns a page of a conversation's history. The before query
// parameter is a message ID cursor.
func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	const op = "conversation.messages"

	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}

	conversationID, err := pathUUID(r, "id", op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	limit, err := queryInt(r, "limit", op, service.DefaultMessagePageSize)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	page := domain.MessagePage{Limit: clampPage(limit)}

	if raw := r.URL.Query().Get("before"); raw != "" {
		before, err := uuid.Parse(raw)
		if err != nil {
			ErrorResponse(w, r, h.logger, domain.Invalid(op, "Invalid before cursor"))
			return
		}
		page.Before = &before
	}

	msgs, err := h.chat.ListMessages(r.Context(), user.ID, conversationID, page)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := MessagesResponse{Success: true, Messages: make([]domain.Message, 0, len(msgs))}
	// The service pages newest first; clients render oldest first.
	for i := len(msgs) - 1; i >= 0; i-- {
		resp.Messages = append(resp.Messages, msgs[i])
	}
	if len(msgs) == page.Limit {
		resp.NextBefore = msgs[len(msgs)-1].ID.String()
	}
	JSON(w, http.StatusOK, resp)
}

// UnreadCount returns how many messages the caller has not read.
func (h *ConversationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}

	n, err := h.chat.UnreadCount(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"success": true, "count": n})
}

func clampPage(n int) int {
	switch {
	case n <= 0:
		return service.DefaultMessagePageSize
	case n > service.MaxMessagePageSize:
		return service.MaxMessagePageSize
	}
	return n
}
