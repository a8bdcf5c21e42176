package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/coachly/coachly/internal/auth"
	"github.com/coachly/coachly/internal/domain"
	"github.com/coachly/coachly/internal/handler"
	"github.com/coachly/coachly/internal/service"
)

const quotaContextKey contextKey = "quota"

type contextKey string

// QuotaFromContext returns the evaluation stored by RequireQuota.
func QuotaFromContext(ctx context.Context) *domain.QuotaEvaluation {
	ev, _ := ctx.Value(quotaContextKey).(*domain.QuotaEvaluation)
	return ev
}

// QuotaMiddleware guards routes that spend a quota-limited resource.
type QuotaMiddleware struct {
	quota  service.QuotaService
	logger *slog.Logger
}

// NewQuotaMiddleware creates a new QuotaMiddleware.
func NewQuotaMiddleware(quota service.QuotaService, logger *slog.Logger) *QuotaMiddleware {
	return &QuotaMiddleware{quota: quota, logger: logger}
}

// RequireQuota checks, without consuming, that the authenticated user may
// perform action. Denials respond 403 with the limit and current usage; on
// success the evaluation is available through QuotaFromContext.
//
// Use after RequireUser. The handler still consumes the unit itself, so a
// request that passes here can lose a race and be denied later.
func (m *QuotaMiddleware) RequireQuota(action domain.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := auth.GetUser(r.Context())
			if user == nil {
				handler.UnauthorizedResponse(w, r, m.logger)
				return
			}

			tier := user.SubscriptionTier
			ev, err := m.quota.CheckQuota(r.Context(), user.ID, action, &tier)
			if err != nil {
				handler.ErrorResponse(w, r, m.logger, err)
				return
			}

			if !ev.Allowed {
				handler.QuotaDeniedResponse(w, r, m.logger, m.quota, user, action, ev.Reason)
				return
			}

			ctx := context.WithValue(r.Context(), quotaContextKey, ev)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
