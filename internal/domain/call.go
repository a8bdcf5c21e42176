package domain

import (
	"time"

	"github.com/google/uuid"
)

// VideoCall is a scheduled coaching session. DurationMinutes comes from the
// booking user's tier at the time of booking.
type VideoCall struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"userId"`
	CoachID         uuid.UUID `json:"coachId"`
	ScheduledAt     time.Time `json:"scheduledAt"`
	DurationMinutes int       `json:"durationMinutes"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
}

// BookCallParams contains the input for booking a call.
type BookCallParams struct {
	UserID      uuid.UUID
	CoachID     uuid.UUID
	ScheduledAt time.Time
}

// CallBooking is the outcome of a booking attempt. When Denied is non-nil no
// call was created and no quota was consumed.
type CallBooking struct {
	Call   *VideoCall
	Denied *QuotaEvaluation
}
