// Package handler contains the JSON HTTP handlers of the coaching API.
//
// This file implements the quota endpoints and the 403 body shared by every
// quota denial.
//
// Routes:
//   - GET /api/quota              -> Snapshot
//   - GET /api/quota/check?action -> Check
package handler

import (
	"log/slog"
	"net/http"

	"github.com/coachly/coachly/internal/domain"
	"github.com/coachly/coachly/internal/service"
)

// QuotaHandler exposes the caller's quota ledger.
type QuotaHandler struct {
	quota  service.QuotaService
	logger *slog.Logger
}

// NewQuotaHandler creates a new QuotaHandler.
func NewQuotaHandler(quota service.QuotaService, logger *slog.Logger) *QuotaHandler {
	return &QuotaHandler{quota: quota, logger: logger}
}

// RegisterRoutes registers quota routes on the provided mux.
func (h *QuotaHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("GET /api/quota", requireUser(http.HandlerFunc(h.Snapshot)))
	mux.Handle("GET /api/quota/check", requireUser(http.HandlerFunc(h.Check)))
}

// SnapshotResponse wraps a quota snapshot.
type SnapshotResponse struct {
	Success bool                 `json:"success"`
	Quota   domain.QuotaSnapshot `json:"quota"`
}

// Snapshot returns the caller's usage and tier limits.
func (h *QuotaHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}

	snap, err := h.quota.GetQuotaSnapshot(r.Context(), user.ID, tierOf(user))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, SnapshotResponse{Success: true, Quota: *snap})
}

// CheckResponse is a quota preview for one action.
type CheckResponse struct {
	Success bool   `json:"success"`
	Action  string `json:"action"`
	domain.QuotaEvaluation
}

// Check previews whether an action would be allowed, without consuming it.
func (h *QuotaHandler) Check(w http.ResponseWriter, r *http.Request) {
	const op = "quota.check"

	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}

	action, ok := domain.ParseAction(r.URL.Query().Get("action"))
	if !ok {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "action must be one of message, call, attachment"))
		return
	}

	ev, err := h.quota.CheckQuota(r.Context(), user.ID, action, tierOf(user))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, CheckResponse{Success: true, Action: action.String(), QuotaEvaluation: *ev})
}

// QuotaDenial is the 403 body written when a quota check fails.
type QuotaDenial struct {
	Success         bool             `json:"success"`
	Message         string           `json:"message"`
	Quota           *domain.Quantity `json:"quota,omitempty"`
	Used            *int             `json:"used,omitempty"`
	UpgradeRequired bool             `json:"upgradeRequired"`
}

// QuotaDeniedResponse writes a 403 QuotaDenial for action. The limit and
// usage figures are informational; a failure to load them still denies.
func QuotaDeniedResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, quota service.QuotaService, user *domain.User, action domain.Action, reason string) {
	body := QuotaDenial{
		Message:         reason,
		UpgradeRequired: true,
	}

	snap, err := quota.GetQuotaSnapshot(r.Context(), user.ID, tierOf(user))
	if err != nil {
		logger.Warn("failed to load quota snapshot for denial",
			"user_id", user.ID,
			"action", action.String(),
			"error", err,
		)
	} else if f, ok := domain.MatchAction[figures](action, snapshotFigures{snap}); ok {
		body.Quota = f.quota
		body.Used = f.used
	}

	logger.Info("quota denied",
		"user_id", user.ID,
		"action", action.String(),
		"reason", reason,
		"path", r.URL.Path,
	)
	JSON(w, http.StatusForbidden, body)
}

type figures struct {
	quota *domain.Quantity
	used  *int
}

// snapshotFigures picks the limit and counter that apply to an action.
type snapshotFigures struct {
	snap *domain.QuotaSnapshot
}

func (s snapshotFigures) Message() figures {
	q, used := s.snap.Limits.Messages, s.snap.Usage.MessagesUsed
	return figures{quota: &q, used: &used}
}

func (s snapshotFigures) Call() figures {
	q, used := domain.Limited(s.snap.Limits.Calls), s.snap.Usage.CallsUsed
	return figures{quota: &q, used: &used}
}

// Attachments are capability gated, so there is no limit to report.
func (s snapshotFigures) Attachment() figures {
	return figures{}
}
