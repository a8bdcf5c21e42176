// Package memstore provides an in-memory repository.Store.
//
// Conditional statements behave like their SQL counterparts: a conditional
// update that matches nothing returns sql.ErrNoRows, and a duplicate billing
// customer ID fails with the same *pgconn.PgError PostgreSQL returns. Transactions are
// serialized; a transaction that fails restores the state it started from.
package memstore

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/coachly/coachly/internal/repository"
)

type state struct {
	users         map[uuid.UUID]repository.User
	coaches       map[uuid.UUID]uuid.UUID // coach id -> user id
	quotas        map[uuid.UUID]repository.SubscriptionQuota
	conversations map[uuid.UUID]repository.Conversation
	messages      map[uuid.UUID]repository.Message
	calls         map[uuid.UUID]repository.VideoCall
}

func newState() *state {
	return &state{
		users:         make(map[uuid.UUID]repository.User),
		coaches:       make(map[uuid.UUID]uuid.UUID),
		quotas:        make(map[uuid.UUID]repository.SubscriptionQuota),
		conversations: make(map[uuid.UUID]repository.Conversation),
		messages:      make(map[uuid.UUID]repository.Message),
		calls:         make(map[uuid.UUID]repository.VideoCall),
	}
}

func (st *state) clone() *state {
	c := newState()
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.coaches {
		c.coaches[k] = v
	}
	for k, v := range st.quotas {
		c.quotas[k] = v
	}
	for k, v := range st.conversations {
		c.conversations[k] = v
	}
	for k, v := range st.messages {
		c.messages[k] = v
	}
	for k, v := range st.calls {
		c.calls[k] = v
	}
	return c
}

// Store is an in-memory repository.Store. The zero value is not usable; call New.
type Store struct {
	*Queries

	txMu sync.Mutex // held for the duration of a transaction
	mu   sync.Mutex // guards st
	st   *state

	// FailCreateMessage, when set, is returned by CreateMessage.
	FailCreateMessage error
}

var _ repository.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	s := &Store{st: newState()}
	s.Queries = &Queries{s: s}
	return s
}

// ExecTx implements repository.Store.
func (s *Store) ExecTx(ctx context.Context, fn func(repository.Querier) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	if err := fn(&Queries{s: s, inTx: true}); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// AddUser seeds a user.
func (s *Store) AddUser(u repository.User) repository.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.SubscriptionTier == "" {
		u.SubscriptionTier = "freemium"
	}
	if u.Role == "" {
		u.Role = "user"
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	u.IsActive = true
	s.st.users[u.ID] = u
	return u
}

// AddCoach seeds a coach profile owned by userID and returns its ID.
func (s *Store) AddCoach(userID uuid.UUID) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.st.coaches[id] = userID
	return id
}

// AddConversation seeds a conversation between userID and coachID.
func (s *Store) AddConversation(userID, coachID uuid.UUID) repository.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := repository.Conversation{
		ID:          uuid.New(),
		UserID:      userID,
		CoachID:     coachID,
		CoachUserID: s.st.coaches[coachID],
		CreatedAt:   time.Now().UTC(),
	}
	s.st.conversations[c.ID] = c
	return c
}

// PutQuota overwrites a ledger row.
func (s *Store) PutQuota(q repository.SubscriptionQuota) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.quotas[q.UserID] = q
}

// MessageCount returns the number of stored messages.
func (s *Store) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.messages)
}

// Queries implements repository.Querier over a Store.
type Queries struct {
	s    *Store
	inTx bool
}

// lock acquires the store for one statement. Statements outside a
// transaction wait for any running transaction to finish.
func (q *Queries) lock() (*state, func()) {
	if !q.inTx {
		q.s.txMu.Lock()
	}
	q.s.mu.Lock()
	return q.s.st, func() {
		q.s.mu.Unlock()
		if !q.inTx {
			q.s.txMu.Unlock()
		}
	}
}

// =============================================================================
// Subscription quotas
// =============================================================================

func (q *Queries) GetSubscriptionQuota(ctx context.Context, userID uuid.UUID) (repository.SubscriptionQuota, error) {
	st, unlock := q.lock()
	defer unlock()
	row, ok := st.quotas[userID]
	if !ok {
		return repository.SubscriptionQuota{}, sql.ErrNoRows
	}
	return row, nil
}

func (q *Queries) CreateSubscriptionQuota(ctx context.Context, arg repository.CreateSubscriptionQuotaParams) (repository.SubscriptionQuota, error) {
	st, unlock := q.lock()
	defer unlock()
	if _, exists := st.quotas[arg.UserID]; exists {
		return repository.SubscriptionQuota{}, sql.ErrNoRows
	}
	now := time.Now().UTC()
	row := repository.SubscriptionQuota{
		UserID:              arg.UserID,
		Tier:                arg.Tier,
		ResetAt:             arg.ResetAt,
		NutritionWindowDays: arg.NutritionWindowDays,
		NutritionLocked:     arg.NutritionLocked,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	st.quotas[arg.UserID] = row
	return row, nil
}

func (q *Queries) UpdateSubscriptionQuotaTier(ctx context.Context, arg repository.UpdateSubscriptionQuotaTierParams) (repository.SubscriptionQuota, error) {
	st, unlock := q.lock()
	defer unlock()
	row, ok := st.quotas[arg.UserID]
	if !ok {
		return repository.SubscriptionQuota{}, sql.ErrNoRows
	}
	row.Tier = arg.Tier
	row.NutritionWindowDays = arg.NutritionWindowDays
	row.NutritionLocked = arg.NutritionLocked
	row.UpdatedAt = time.Now().UTC()
	st.quotas[arg.UserID] = row
	return row, nil
}

func (q *Queries) ResetSubscriptionQuota(ctx context.Context, arg repository.ResetSubscriptionQuotaParams) (repository.SubscriptionQuota, error) {
	st, unlock := q.lock()
	defer unlock()
	row, ok := st.quotas[arg.UserID]
	if !ok || row.ResetAt.After(arg.Now) {
		return repository.SubscriptionQuota{}, sql.ErrNoRows
	}
	row.MessagesUsed, row.CallsUsed, row.AttachmentsUsed = 0, 0, 0
	row.ResetAt = arg.ResetAt
	row.UpdatedAt = time.Now().UTC()
	st.quotas[arg.UserID] = row
	return row, nil
}

func (q *Queries) increment(arg repository.IncrementUsageParams, field func(*repository.SubscriptionQuota) *int32) (repository.SubscriptionQuota, error) {
	st, unlock := q.lock()
	defer unlock()
	row, ok := st.quotas[arg.UserID]
	if !ok {
		return repository.SubscriptionQuota{}, sql.ErrNoRows
	}
	counter := field(&row)
	if *counter >= arg.Limit {
		return repository.SubscriptionQuota{}, sql.ErrNoRows
	}
	*counter++
	row.UpdatedAt = time.Now().UTC()
	st.quotas[arg.UserID] = row
	return row, nil
}

func (q *Queries) IncrementMessagesUsed(ctx context.Context, arg repository.IncrementUsageParams) (repository.SubscriptionQuota, error) {
	return q.increment(arg, func(r *repository.SubscriptionQuota) *int32 { return &r.MessagesUsed })
}

func (q *Queries) IncrementCallsUsed(ctx context.Context, arg repository.IncrementUsageParams) (repository.SubscriptionQuota, error) {
	return q.increment(arg, func(r *repository.SubscriptionQuota) *int32 { return &r.CallsUsed })
}

func (q *Queries) IncrementAttachmentsUsed(ctx context.Context, userID uuid.UUID) (repository.SubscriptionQuota, error) {
	st, unlock := q.lock()
	defer unlock()
	row, ok := st.quotas[userID]
	if !ok {
		return repository.SubscriptionQuota{}, sql.ErrNoRows
	}
	row.AttachmentsUsed++
	row.UpdatedAt = time.Now().UTC()
	st.quotas[userID] = row
	return row, nil
}

func (q *Queries) StartNutritionWindow(ctx context.Context, arg repository.StartNutritionWindowParams) (repository.SubscriptionQuota, error) {
	st, unlock := q.lock()
	defer unlock()
	row, ok := st.quotas[arg.UserID]
	if !ok || row.NutritionExpiresAt.Valid {
		return repository.SubscriptionQuota{}, sql.ErrNoRows
	}
	row.NutritionExpiresAt = sql.NullTime{Time: arg.ExpiresAt, Valid: true}
	row.NutritionLocked = false
	row.UpdatedAt = time.Now().UTC()
	st.quotas[arg.UserID] = row
	return row, nil
}

// =============================================================================
// Users
// =============================================================================

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (repository.User, error) {
	st, unlock := q.lock()
	defer unlock()
	u, ok := st.users[id]
	if !ok {
		return repository.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (q *Queries) GetUserByStripeCustomerID(ctx context.Context, stripeCustomerID string) (repository.User, error) {
	st, unlock := q.lock()
	defer unlock()
	for _, u := range st.users {
		if u.StripeCustomerID.Valid && u.StripeCustomerID.String == stripeCustomerID {
			return u, nil
		}
	}
	return repository.User{}, sql.ErrNoRows
}

func (q *Queries) UpdateUserSubscriptionTier(ctx context.Context, arg repository.UpdateUserSubscriptionTierParams) error {
	st, unlock := q.lock()
	defer unlock()
	if u, ok := st.users[arg.ID]; ok {
		u.SubscriptionTier = arg.SubscriptionTier
		u.UpdatedAt = time.Now().UTC()
		st.users[arg.ID] = u
	}
	return nil
}

func (q *Queries) UpdateUserStripeCustomer(ctx context.Context, arg repository.UpdateUserStripeCustomerParams) error {
	st, unlock := q.lock()
	defer unlock()
	for id, other := range st.users {
		if id != arg.ID && other.StripeCustomerID.Valid && other.StripeCustomerID.String == arg.StripeCustomerID {
			return &pgconn.PgError{Code: "23505", ConstraintName: "users_stripe_customer_id_key"}
		}
	}
	if u, ok := st.users[arg.ID]; ok {
		u.StripeCustomerID = sql.NullString{String: arg.StripeCustomerID, Valid: true}
		u.UpdatedAt = time.Now().UTC()
		st.users[arg.ID] = u
	}
	return nil
}

func (q *Queries) GetCoachUserID(ctx context.Context, coachID uuid.UUID) (uuid.UUID, error) {
	st, unlock := q.lock()
	defer unlock()
	userID, ok := st.coaches[coachID]
	if !ok {
		return uuid.Nil, sql.ErrNoRows
	}
	return userID, nil
}

// =============================================================================
// Conversations
// =============================================================================

func (q *Queries) GetConversation(ctx context.Context, id uuid.UUID) (repository.Conversation, error) {
	st, unlock := q.lock()
	defer unlock()
	c, ok := st.conversations[id]
	if !ok {
		return repository.Conversation{}, sql.ErrNoRows
	}
	return c, nil
}

func (q *Queries) GetConversationForParticipant(ctx context.Context, arg repository.GetConversationForParticipantParams) (repository.Conversation, error) {
	st, unlock := q.lock()
	defer unlock()
	c, ok := st.conversations[arg.ID]
	if !ok || (c.UserID != arg.UserID && c.CoachUserID != arg.UserID) {
		return repository.Conversation{}, sql.ErrNoRows
	}
	return c, nil
}

func (q *Queries) ListConversationsForUser(ctx context.Context, arg repository.ListConversationsForUserParams) ([]repository.Conversation, error) {
	st, unlock := q.lock()
	defer unlock()
	var items []repository.Conversation
	for _, c := range st.conversations {
		if c.UserID == arg.UserID || c.CoachUserID == arg.UserID {
			items = append(items, c)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.LastMessageAt.Valid != b.LastMessageAt.Valid {
			return a.LastMessageAt.Valid
		}
		if a.LastMessageAt.Valid && !a.LastMessageAt.Time.Equal(b.LastMessageAt.Time) {
			return a.LastMessageAt.Time.After(b.LastMessageAt.Time)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return page(items, int(arg.Offset), int(arg.Limit)), nil
}

func (q *Queries) UpdateConversationAfterMessage(ctx context.Context, arg repository.UpdateConversationAfterMessageParams) error {
	st, unlock := q.lock()
	defer unlock()
	c, ok := st.conversations[arg.ID]
	if !ok {
		return nil
	}
	c.LastMessageContent = sql.NullString{String: arg.LastMessageContent, Valid: true}
	c.LastMessageAt = sql.NullTime{Time: arg.LastMessageAt, Valid: true}
	if arg.ReceiverIsCoach {
		c.CoachUnreadCount++
	} else {
		c.UserUnreadCount++
	}
	st.conversations[arg.ID] = c
	return nil
}

func (q *Queries) DecrementConversationUnread(ctx context.Context, arg repository.ConversationReaderParams) error {
	st, unlock := q.lock()
	defer unlock()
	c, ok := st.conversations[arg.ID]
	if !ok {
		return nil
	}
	if arg.ReaderIsCoach {
		c.CoachUnreadCount = max(c.CoachUnreadCount-1, 0)
	} else {
		c.UserUnreadCount = max(c.UserUnreadCount-1, 0)
	}
	st.conversations[arg.ID] = c
	return nil
}

func (q *Queries) ResetConversationUnread(ctx context.Context, arg repository.ConversationReaderParams) error {
	st, unlock := q.lock()
	defer unlock()
	c, ok := st.conversations[arg.ID]
	if !ok {
		return nil
	}
	if arg.ReaderIsCoach {
		c.CoachUnreadCount = 0
	} else {
		c.UserUnreadCount = 0
	}
	st.conversations[arg.ID] = c
	return nil
}

// =============================================================================
// Messages
// =============================================================================

func (q *Queries) CreateMessage(ctx context.Context, arg repository.CreateMessageParams) (repository.Message, error) {
	st, unlock := q.lock()
	defer unlock()
	if q.s.FailCreateMessage != nil {
		return repository.Message{}, q.s.FailCreateMessage
	}
	m := repository.Message{
		ID:             uuid.New(),
		ConversationID: arg.ConversationID,
		SenderID:       arg.SenderID,
		ReceiverID:     arg.ReceiverID,
		Content:        arg.Content,
		Type:           arg.Type,
		AttachmentURL:  arg.AttachmentURL,
		AttachmentType: arg.AttachmentType,
		CreatedAt:      time.Now().UTC(),
	}
	st.messages[m.ID] = m
	return m, nil
}

func (q *Queries) GetMessageForReceiver(ctx context.Context, arg repository.GetMessageForReceiverParams) (repository.Message, error) {
	st, unlock := q.lock()
	defer unlock()
	m, ok := st.messages[arg.ID]
	if !ok || m.ReceiverID != arg.ReceiverID {
		return repository.Message{}, sql.ErrNoRows
	}
	return m, nil
}

func (q *Queries) MarkMessageRead(ctx context.Context, arg repository.MarkMessageReadParams) (repository.Message, error) {
	st, unlock := q.lock()
	defer unlock()
	m, ok := st.messages[arg.ID]
	if !ok || m.ReceiverID != arg.ReceiverID {
		return repository.Message{}, sql.ErrNoRows
	}
	m.IsRead = true
	if !m.ReadAt.Valid {
		m.ReadAt = sql.NullTime{Time: arg.ReadAt, Valid: true}
	}
	st.messages[m.ID] = m
	return m, nil
}

func (q *Queries) MarkConversationRead(ctx context.Context, arg repository.MarkConversationReadParams) (int64, error) {
	st, unlock := q.lock()
	defer unlock()
	var n int64
	for id, m := range st.messages {
		if m.ConversationID != arg.ConversationID || m.ReceiverID != arg.ReceiverID || m.IsRead {
			continue
		}
		m.IsRead = true
		m.ReadAt = sql.NullTime{Time: arg.ReadAt, Valid: true}
		st.messages[id] = m
		n++
	}
	return n, nil
}

func (q *Queries) ListMessages(ctx context.Context, arg repository.ListMessagesParams) ([]repository.Message, error) {
	st, unlock := q.lock()
	defer unlock()

	var cursor *time.Time
	if arg.Before.Valid {
		if before, ok := st.messages[arg.Before.UUID]; ok {
			cursor = &before.CreatedAt
		}
	}

	var items []repository.Message
	for _, m := range st.messages {
		if m.ConversationID != arg.ConversationID {
			continue
		}
		if arg.Before.Valid && (cursor == nil || !m.CreatedAt.Before(*cursor)) {
			continue
		}
		items = append(items, m)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return page(items, 0, int(arg.Limit)), nil
}

func (q *Queries) CountUnreadMessages(ctx context.Context, receiverID uuid.UUID) (int64, error) {
	st, unlock := q.lock()
	defer unlock()
	var n int64
	for _, m := range st.messages {
		if m.ReceiverID == receiverID && !m.IsRead {
			n++
		}
	}
	return n, nil
}

// =============================================================================
// Video calls
// =============================================================================

func (q *Queries) CreateVideoCall(ctx context.Context, arg repository.CreateVideoCallParams) (repository.VideoCall, error) {
	st, unlock := q.lock()
	defer unlock()
	c := repository.VideoCall{
		ID:              uuid.New(),
		UserID:          arg.UserID,
		CoachID:         arg.CoachID,
		ScheduledAt:     arg.ScheduledAt,
		DurationMinutes: arg.DurationMinutes,
		Status:          "scheduled",
		CreatedAt:       time.Now().UTC(),
	}
	st.calls[c.ID] = c
	return c, nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
