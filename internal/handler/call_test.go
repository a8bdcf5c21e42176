package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachly/coachly/internal/domain"
)

func newCallMux(calls *mockCallService) *http.ServeMux {
	mux := http.NewServeMux()
	NewCallHandler(calls, discardLogger()).RegisterRoutes(mux, passthrough, passthrough)
	return mux
}

func TestCallHandler_Book(t *testing.T) {
	user := testUser(domain.TierPremium)
	coachID := uuid.New()
	at := time.Date(2026, 11, 2, 15, 0, 0, 0, time.UTC)

	calls := &mockCallService{
		BookCallFunc: func(ctx context.Context, p domain.BookCallParams) (*domain.CallBooking, error) {
			assert.Equal(t, user.ID, p.UserID)
			assert.Equal(t, coachID, p.CoachID)
			assert.True(t, at.Equal(p.ScheduledAt))
			return &domain.CallBooking{Call: &domain.VideoCall{
				ID: uuid.New(), UserID: p.UserID, CoachID: p.CoachID,
				ScheduledAt: p.ScheduledAt, DurationMinutes: 25, Status: "scheduled",
			}}, nil
		},
	}

	body := `{"coachId":"` + coachID.String() + `","scheduledAt":"2026-11-02T15:00:00Z"}`
	rec := serve(newCallMux(calls), httptest.NewRequest(http.MethodPost, "/api/calls", strings.NewReader(body)), user)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"durationMinutes":25`)
}

func TestCallHandler_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		booking *domain.CallBooking
		err     error
		status  int
		upgrade bool
	}{
		{"malformed body", `{`, nil, nil, http.StatusBadRequest, false},
		{"missing coach", `{"scheduledAt":"2026-11-02T15:00:00Z"}`, nil, nil, http.StatusBadRequest, false},
		{"unknown coach", `{"coachId":"` + uuid.NewString() + `"}`, nil, domain.NotFound("call.book", "coach", "x"), http.StatusNotFound, false},
		{"lost quota race", `{"coachId":"` + uuid.NewString() + `"}`, &domain.CallBooking{Denied: &domain.QuotaEvaluation{Reason: domain.ReasonCallQuotaExceeded}}, nil, http.StatusForbidden, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := &mockCallService{
				BookCallFunc: func(ctx context.Context, p domain.BookCallParams) (*domain.CallBooking, error) {
					return tt.booking, tt.err
				},
			}
			rec := serve(newCallMux(calls), httptest.NewRequest(http.MethodPost, "/api/calls", strings.NewReader(tt.body)), testUser(domain.TierFreemium))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.upgrade, decodeError(t, rec).UpgradeRequired)
		})
	}
}
