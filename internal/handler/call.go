// Package handler contains the JSON HTTP handlers of the coaching API.
//
// This file implements video call booking.
//
// Routes:
//   - POST /api/calls -> Book
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/coachly/coachly/internal/domain"
	"github.com/coachly/coachly/internal/service"
)

// CallHandler books video calls with coaches.
type CallHandler struct {
	calls  service.CallService
	logger *slog.Logger
}

// NewCallHandler creates a new CallHandler.
func NewCallHandler(calls service.CallService, logger *slog.Logger) *CallHandler {
	return &CallHandler{calls: calls, logger: logger}
}

// RegisterRoutes registers call routes. guard runs after requireUser and
// typically combines the role check and the call quota check.
func (h *CallHandler) RegisterRoutes(mux *http.ServeMux, requireUser, guard func(http.Handler) http.Handler) {
	mux.Handle("POST /api/calls", requireUser(guard(http.HandlerFunc(h.Book))))
}

// BookCallRequest is the body of POST /api/calls.
type BookCallRequest struct {
	CoachID     uuid.UUID `json:"coachId"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

// CallResponse wraps a booked call.
type CallResponse struct {
	Success bool              `json:"success"`
	Call    *domain.VideoCall `json:"call"`
}

// Book consumes one call from the caller's quota and schedules the call.
func (h *CallHandler) Book(w http.ResponseWriter, r *http.Request) {
	const op = "call.book"

	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}

	var req BookCallRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if req.CoachID == uuid.Nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "coachId is required"))
		return
	}

	booking, err := h.calls.BookCall(r.Context(), domain.BookCallParams{
		UserID:      user.ID,
		CoachID:     req.CoachID,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	// Lost the race against a concurrent booking after the guard passed.
	if booking.Denied != nil {
		ErrorResponse(w, r, h.logger, domain.QuotaExceeded(op, booking.Denied.Reason))
		return
	}

	JSON(w, http.StatusCreated, CallResponse{Success: true, Call: booking.Call})
}
