package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const conversationSelect = `SELECT c.id, c.user_id, c.coach_id, co.user_id AS coach_user_id,
	c.last_message_content, c.last_message_at, c.user_unread_count, c.coach_unread_count, c.created_at
FROM conversations c
JOIN coaches co ON co.id = c.coach_id`

func scanConversation(row rowScanner) (Conversation, error) {
	var i Conversation
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.CoachID,
		&i.CoachUserID,
		&i.LastMessageContent,
		&i.LastMessageAt,
		&i.UserUnreadCount,
		&i.CoachUnreadCount,
		&i.CreatedAt,
	)
	return i, err
}

const getConversation = conversationSelect + `
WHERE c.id = $1`

func (q *Queries) GetConversation(ctx context.Context, id uuid.UUID) (Conversation, error) {
	row := q.db.QueryRowContext(ctx, getConversation, id)
	return scanConversation(row)
}

const getConversationForParticipant = conversationSelect + `
WHERE c.id = $1 AND (c.user_id = $2 OR co.user_id = $2)`

type GetConversationForParticipantParams struct {
	ID     uuid.UUID
	UserID uuid.UUID
}

// GetConversationForParticipant returns the conversation only if UserID is its
// end-user or its coach's user. Otherwise it returns sql.ErrNoRows.
func (q *Queries) GetConversationForParticipant(ctx context.Context, arg GetConversationForParticipantParams) (Conversation, error) {
	row := q.db.QueryRowContext(ctx, getConversationForParticipant, arg.ID, arg.UserID)
	return scanConversation(row)
}

const listConversationsForUser = conversationSelect + `
WHERE c.user_id = $1 OR co.user_id = $1
ORDER BY c.last_message_at DESC NULLS LAST, c.created_at DESC
LIMIT $2 OFFSET $3`

type ListConversationsForUserParams struct {
	UserID uuid.UUID
	Limit  int32
	Offset int32
}

func (q *Queries) ListConversationsForUser(ctx context.Context, arg ListConversationsForUserParams) ([]Conversation, error) {
	rows, err := q.db.QueryContext(ctx, listConversationsForUser, arg.UserID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Conversation
	for rows.Next() {
		i, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateConversationAfterMessage = `UPDATE conversations
SET last_message_content = $2,
	last_message_at = $3,
	coach_unread_count = coach_unread_count + CASE WHEN $4 THEN 1 ELSE 0 END,
	user_unread_count = user_unread_count + CASE WHEN $4 THEN 0 ELSE 1 END
WHERE id = $1`

type UpdateConversationAfterMessageParams struct {
	ID                 uuid.UUID
	LastMessageContent string
	LastMessageAt      time.Time
	ReceiverIsCoach    bool
}

// UpdateConversationAfterMessage refreshes the preview and increments the
// receiver's unread counter.
func (q *Queries) UpdateConversationAfterMessage(ctx context.Context, arg UpdateConversationAfterMessageParams) error {
	_, err := q.db.ExecContext(ctx, updateConversationAfterMessage,
		arg.ID,
		arg.LastMessageContent,
		arg.LastMessageAt,
		arg.ReceiverIsCoach,
	)
	return err
}

const decrementConversationUnread = `UPDATE conversations
SET coach_unread_count = GREATEST(coach_unread_count - CASE WHEN $2 THEN 1 ELSE 0 END, 0),
	user_unread_count = GREATEST(user_unread_count - CASE WHEN $2 THEN 0 ELSE 1 END, 0)
WHERE id = $1`

type ConversationReaderParams struct {
	ID            uuid.UUID
	ReaderIsCoach bool
}

// DecrementConversationUnread takes one message off the reader's unread
// counter, never going below zero.
func (q *Queries) DecrementConversationUnread(ctx context.Context, arg ConversationReaderParams) error {
	_, err := q.db.ExecContext(ctx, decrementConversationUnread, arg.ID, arg.ReaderIsCoach)
	return err
}

const resetConversationUnread = `UPDATE conversations
SET coach_unread_count = CASE WHEN $2 THEN 0 ELSE coach_unread_count END,
	user_unread_count = CASE WHEN $2 THEN user_unread_count ELSE 0 END
WHERE id = $1`

// ResetConversationUnread zeroes the reader's unread counter.
func (q *Queries) ResetConversationUnread(ctx context.Context, arg ConversationReaderParams) error {
	_, err := q.db.ExecContext(ctx, resetConversationUnread, arg.ID, arg.ReaderIsCoach)
	return err
}
