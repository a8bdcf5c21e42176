package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const messageColumns = `id, conversation_id, sender_id, receiver_id, content, type,
	attachment_url, attachment_type, is_read, read_at, created_at`

func scanMessage(row rowScanner) (Message, error) {
	var i Message
	err := row.Scan(
		&i.ID,
		&i.ConversationID,
		&i.SenderID,
		&i.ReceiverID,
		&i.Content,
		&i.Type,
		&i.AttachmentURL,
		&i.AttachmentType,
		&i.IsRead,
		&i.ReadAt,
		&i.CreatedAt,
	)
	return i, err
}

const createMessage = `INSERT INTO messages (
	conversation_id, sender_id, receiver_id, content, type, attachment_url, attachment_type
) VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + messageColumns

type CreateMessageParams struct {
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	ReceiverID     uuid.UUID
	Content        string
	Type           string
	AttachmentURL  sql.NullString
	AttachmentType sql.NullString
}

func (q *Queries) CreateMessage(ctx context.Context, arg CreateMessageParams) (Message, error) {
	row := q.db.QueryRowContext(ctx, createMessage,
		arg.ConversationID,
		arg.SenderID,
		arg.ReceiverID,
		arg.Content,
		arg.Type,
		arg.AttachmentURL,
		arg.AttachmentType,
	)
	return scanMessage(row)
}

const getMessageForReceiver = `SELECT ` + messageColumns + `
FROM messages
WHERE id = $1 AND receiver_id = $2
FOR UPDATE`

type GetMessageForReceiverParams struct {
	ID         uuid.UUID
	ReceiverID uuid.UUID
}

// GetMessageForReceiver locks a message for its receiver. It returns
// sql.ErrNoRows when the message does not exist or ReceiverID is not its
// receiver.
func (q *Queries) GetMessageForReceiver(ctx context.Context, arg GetMessageForReceiverParams) (Message, error) {
	row := q.db.QueryRowContext(ctx, getMessageForReceiver, arg.ID, arg.ReceiverID)
	return scanMessage(row)
}

const markMessageRead = `UPDATE messages
SET is_read = TRUE, read_at = COALESCE(read_at, $3)
WHERE id = $1 AND receiver_id = $2
RETURNING ` + messageColumns

type MarkMessageReadParams struct {
	ID         uuid.UUID
	ReceiverID uuid.UUID
	ReadAt     time.Time
}

// MarkMessageRead marks a message read. It returns sql.ErrNoRows when the
// message does not exist or ReceiverID is not its receiver.
func (q *Queries) MarkMessageRead(ctx context.Context, arg MarkMessageReadParams) (Message, error) {
	row := q.db.QueryRowContext(ctx, markMessageRead, arg.ID, arg.ReceiverID, arg.ReadAt)
	return scanMessage(row)
}

const listMessages = `SELECT ` + messageColumns + `
FROM messages
WHERE conversation_id = $1
	AND ($2::uuid IS NULL OR created_at < (SELECT m.created_at FROM messages m WHERE m.id = $2))
ORDER BY created_at DESC
LIMIT $3`

type ListMessagesParams struct {
	ConversationID uuid.UUID
	Before         uuid.NullUUID
	Limit          int32
}

// ListMessages returns up to Limit messages, newest first.
func (q *Queries) ListMessages(ctx context.Context, arg ListMessagesParams) ([]Message, error) {
	rows, err := q.db.QueryContext(ctx, listMessages, arg.ConversationID, arg.Before, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Message
	for rows.Next() {
		i, err := scanMessage(rows)
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

const markConversationRead = `UPDATE messages
SET is_read = TRUE, read_at = $3
WHERE conversation_id = $1 AND receiver_id = $2 AND is_read = FALSE`

type MarkConversationReadParams struct {
	ConversationID uuid.UUID
	ReceiverID     uuid.UUID
	ReadAt         time.Time
}

// MarkConversationRead marks every unread message addressed to ReceiverID in
// a conversation and returns how many changed.
func (q *Queries) MarkConversationRead(ctx context.Context, arg MarkConversationReadParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, markConversationRead, arg.ConversationID, arg.ReceiverID, arg.ReadAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const countUnreadMessages = `SELECT COUNT(*) FROM messages WHERE receiver_id = $1 AND is_read = FALSE`

func (q *Queries) CountUnreadMessages(ctx context.Context, receiverID uuid.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countUnreadMessages, receiverID).Scan(&count)
	return count, err
}
