// Package handler contains the JSON HTTP handlers of the coaching API.
//
// This file implements nutrition plan access.
//
// Routes:
//   - GET  /api/nutrition/access -> Access
//   - POST /api/nutrition/plan   -> StartPlan
package handler

import (
	"log/slog"
	"net/http"

	"github.com/coachly/coachly/internal/domain"
	"github.com/coachly/coachly/internal/service"
)

// NutritionHandler reports and starts the nutrition plan access window.
type NutritionHandler struct {
	quota  service.QuotaService
	logger *slog.Logger
}

// NewNutritionHandler creates a new NutritionHandler.
func NewNutritionHandler(quota service.QuotaService, logger *slog.Logger) *NutritionHandler {
	return &NutritionHandler{quota: quota, logger: logger}
}

// RegisterRoutes registers nutrition routes on the provided mux.
func (h *NutritionHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("GET /api/nutrition/access", requireUser(http.HandlerFunc(h.Access)))
	mux.Handle("POST /api/nutrition/plan", requireUser(http.HandlerFunc(h.StartPlan)))
}

// NutritionResponse wraps the caller's nutrition access.
type NutritionResponse struct {
	Success bool `json:"success"`
	domain.NutritionAccess
}

// Access returns whether the caller can open their nutrition plan.
func (h *NutritionHandler) Access(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}

	access, err := h.quota.NutritionAccess(r.Context(), user.ID, tierOf(user))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, NutritionResponse{Success: true, NutritionAccess: *access})
}

// StartPlan opens the nutrition plan, starting the access window for tiers
// that have one. An expired window cannot be restarted.
func (h *NutritionHandler) StartPlan(w http.ResponseWriter, r *http.Request) {
	const op = "nutrition.start_plan"

	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}

	access, err := h.quota.StartNutritionWindow(r.Context(), user.ID, tierOf(user))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if access.IsExpired {
		ErrorResponse(w, r, h.logger, domain.UpgradeRequired(op, access.ExpiryMessage))
		return
	}
	JSON(w, http.StatusOK, NutritionResponse{Success: true, NutritionAccess: *access})
}
