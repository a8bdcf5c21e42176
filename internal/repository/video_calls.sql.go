package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const createVideoCall = `INSERT INTO video_calls (user_id, coach_id, scheduled_at, duration_minutes)
VALUES ($1, $2, $3, $4)
RETURNING id, user_id, coach_id, scheduled_at, duration_minutes, status, created_at`

type CreateVideoCallParams struct {
	UserID          uuid.UUID
	CoachID         uuid.UUID
	ScheduledAt     time.Time
	DurationMinutes int32
}

func (q *Queries) CreateVideoCall(ctx context.Context, arg CreateVideoCallParams) (VideoCall, error) {
	row := q.db.QueryRowContext(ctx, createVideoCall,
		arg.UserID,
		arg.CoachID,
		arg.ScheduledAt,
		arg.DurationMinutes,
	)
	var i VideoCall
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.CoachID,
		&i.ScheduledAt,
		&i.DurationMinutes,
		&i.Status,
		&i.CreatedAt,
	)
	return i, err
}
