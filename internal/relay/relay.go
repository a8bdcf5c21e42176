// Package relay implements the real-time messaging relay.
//
// A connection authenticates once, is indexed in the Registry, and joins its
// user's private group. It may then join conversation rooms it participates
// in, send messages (quota-checked and persisted before fan-out), mark
// messages read, and broadcast typing indicators.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coachly/coachly/internal/domain"
	"github.com/coachly/coachly/internal/metrics"
	"github.com/coachly/coachly/internal/service"
)

const (
	// eventTimeout bounds the store work done for a single inbound event.
	eventTimeout = 10 * time.Second

	// sendBufferSize is how many outbound frames a connection may queue
	// before it is considered too slow and dropped.
	sendBufferSize = 64

	// conversationLockStripes is the number of locks that serialize sends
	// per conversation.
	conversationLockStripes = 64
)

// Event handling outcomes, used as metric labels.
const (
	outcomeOK          = "ok"
	outcomeDenied      = "denied"
	outcomeError       = "error"
	outcomeInvalid     = "invalid"
	outcomeRateLimited = "rate_limited"
)

// EventLimiter limits inbound events per key.
type EventLimiter interface {
	Allow(key string) bool
}

// Relay routes events between connections.
type Relay struct {
	chat     service.ChatService
	registry *Registry
	limiter  EventLimiter
	logger   *slog.Logger

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}

	// convLocks keep persistence order and broadcast order identical
	// within a conversation.
	convLocks [conversationLockStripes]sync.Mutex
}

// New creates a Relay. limiter may be nil to disable event rate limiting.
func New(chat service.ChatService, registry *Registry, limiter EventLimiter, logger *slog.Logger) *Relay {
	return &Relay{
		chat:     chat,
		registry: registry,
		limiter:  limiter,
		logger:   logger,
		rooms:    make(map[string]map[*Client]struct{}),
	}
}

// Registry returns the relay's connection registry.
func (r *Relay) Registry() *Registry {
	return r.registry
}

func conversationRoom(id uuid.UUID) string { return "conversation:" + id.String() }
func userRoom(id uuid.UUID) string         { return "user:" + id.String() }

// =============================================================================
// Clients
// =============================================================================

// Client is one authenticated connection.
type Client struct {
	id   string
	user *domain.User
	send chan []byte

	mu     sync.Mutex
	closed bool
	rooms  map[string]struct{}
}

// ID returns the connection ID.
func (c *Client) ID() string { return c.id }

// User returns the authenticated user.
func (c *Client) User() *domain.User { return c.user }

// Outbound returns the channel of encoded frames queued for the connection.
// It is closed when the connection is dropped.
func (c *Client) Outbound() <-chan []byte { return c.send }

// enqueue queues a frame without blocking. It returns false when the client
// is closed or its buffer is full.
func (c *Client) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// closeSend closes the outbound channel once.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) inRoom(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[room]
	return ok
}

// Connect registers an authenticated user's connection and joins it to the
// user's private group.
func (r *Relay) Connect(user *domain.User) *Client {
	c := &Client{
		id:    uuid.NewString(),
		user:  user,
		send:  make(chan []byte, sendBufferSize),
		rooms: make(map[string]struct{}),
	}
	r.registry.Register(user.ID, c.id)
	r.join(c, userRoom(user.ID))
	metrics.RelayConnected()

	r.logger.Info("relay connection opened", "user_id", user.ID, "conn_id", c.id)
	return c
}

// Disconnect removes the connection from the registry and every room.
func (r *Relay) Disconnect(c *Client) {
	r.registry.Remove(c.user.ID, c.id)

	c.mu.Lock()
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.rooms = make(map[string]struct{})
	c.mu.Unlock()

	r.mu.Lock()
	for _, room := range rooms {
		if members, ok := r.rooms[room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(r.rooms, room)
			}
		}
	}
	r.mu.Unlock()

	c.closeSend()
	metrics.RelayDisconnected()
	r.logger.Info("relay connection closed", "user_id", c.user.ID, "conn_id", c.id)
}

func (r *Relay) join(c *Client, room string) {
	r.mu.Lock()
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		r.rooms[room] = members
	}
	members[c] = struct{}{}
	r.mu.Unlock()

	c.mu.Lock()
	c.rooms[room] = struct{}{}
	c.mu.Unlock()
}

// emit sends one event to one client.
func (r *Relay) emit(c *Client, event string, data interface{}) {
	frame, err := encode(event, data)
	if err != nil {
		r.logger.Error("failed to encode event", "event", event, "error", err)
		return
	}
	if !c.enqueue(frame) {
		r.drop(c)
	}
}

// broadcast sends one event to every member of room except skip.
func (r *Relay) broadcast(room, event string, data interface{}, skip *Client) {
	frame, err := encode(event, data)
	if err != nil {
		r.logger.Error("failed to encode event", "event", event, "error", err)
		return
	}

	var slow []*Client
	r.mu.RLock()
	for c := range r.rooms[room] {
		if c == skip {
			continue
		}
		if !c.enqueue(frame) {
			slow = append(slow, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range slow {
		r.drop(c)
	}
}

// drop closes a client that cannot keep up. Its transport notices the closed
// channel and disconnects.
func (r *Relay) drop(c *Client) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	r.logger.Warn("dropping slow relay connection", "user_id", c.user.ID, "conn_id", c.id)
	c.closeSend()
}

// Shutdown closes every connection's outbound queue. Transports send a close
// frame and disconnect; http.Server.Shutdown does not reach hijacked
// connections.
func (r *Relay) Shutdown() {
	clients := make(map[*Client]struct{})
	r.mu.RLock()
	for _, members := range r.rooms {
		for c := range members {
			clients[c] = struct{}{}
		}
	}
	r.mu.RUnlock()

	for c := range clients {
		c.closeSend()
	}
	r.logger.Info("relay shut down", "connections", len(clients))
}

func (r *Relay) convLock(id uuid.UUID) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write(id[:])
	return &r.convLocks[h.Sum32()%conversationLockStripes]
}

// =============================================================================
// Dispatch
// =============================================================================

// Handle processes one inbound frame from c. Failures are reported to c only.
func (r *Relay) Handle(ctx context.Context, c *Client, frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil || env.Event == "" {
		r.emit(c, EventError, ErrorPayload{Message: "Malformed event"})
		metrics.RelayEvent("unknown", outcomeInvalid)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("relay event handler panicked",
				"event", env.Event,
				"user_id", c.user.ID,
				"panic", fmt.Sprint(rec),
			)
			r.emit(c, EventError, ErrorPayload{Message: "Internal error"})
			metrics.RelayEvent(env.Event, outcomeError)
		}
	}()

	if r.limiter != nil && !r.limiter.Allow(c.user.ID.String()) {
		r.emit(c, EventError, ErrorPayload{Message: "Too many events. Please slow down."})
		metrics.RelayEvent(env.Event, outcomeRateLimited)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, eventTimeout)
	defer cancel()

	var outcome string
	switch env.Event {
	case EventJoinConversation:
		outcome = r.handleJoin(ctx, c, env.Data)
	case EventSendMessage:
		outcome = r.handleSend(ctx, c, env.Data)
	case EventMarkRead:
		outcome = r.handleMarkRead(ctx, c, env.Data)
	case EventTypingStart:
		outcome = r.handleTyping(c, env.Data, EventUserTyping)
	case EventTypingStop:
		outcome = r.handleTyping(c, env.Data, EventUserStoppedTyping)
	default:
		r.emit(c, EventError, ErrorPayload{Message: "Unknown event"})
		metrics.RelayEvent("unknown", outcomeInvalid)
		return
	}
	metrics.RelayEvent(env.Event, outcome)
}

func (r *Relay) decode(c *Client, data json.RawMessage, v interface{}) bool {
	if len(data) == 0 || json.Unmarshal(data, v) != nil {
		r.emit(c, EventError, ErrorPayload{Message: "Invalid payload"})
		return false
	}
	return true
}

// fail reports err to c, hiding internal details.
func (r *Relay) fail(c *Client, event string, err error, fallback string) string {
	if domain.ErrorCode(err) == domain.EINTERNAL {
		r.logger.Error("relay event failed",
			"event", event,
			"user_id", c.user.ID,
			"op", domain.ErrorOp(err),
			"error", err,
		)
		r.emit(c, EventError, ErrorPayload{Message: fallback})
		return outcomeError
	}
	r.emit(c, EventError, ErrorPayload{Message: domain.ErrorMessage(err)})
	return outcomeDenied
}

func (r *Relay) handleJoin(ctx context.Context, c *Client, data json.RawMessage) string {
	var p conversationPayload
	if !r.decode(c, data, &p) {
		return outcomeInvalid
	}

	conv, err := r.chat.JoinConversation(ctx, c.user.ID, p.ConversationID)
	if err != nil {
		return r.fail(c, EventJoinConversation, err, "Failed to join conversation")
	}

	r.join(c, conversationRoom(conv.ID))
	r.logger.Debug("joined conversation", "user_id", c.user.ID, "conversation_id", conv.ID)
	return outcomeOK
}

func (r *Relay) handleSend(ctx context.Context, c *Client, data json.RawMessage) string {
	var p sendMessagePayload
	if !r.decode(c, data, &p) {
		return outcomeInvalid
	}

	res, err := r.SendMessage(ctx, domain.SendMessageParams{
		ConversationID: p.ConversationID,
		SenderID:       c.user.ID,
		Content:        p.Content,
		Type:           domain.MessageType(p.Type),
		AttachmentURL:  p.AttachmentURL,
		AttachmentType: p.AttachmentType,
	})
	if err != nil {
		return r.fail(c, EventSendMessage, err, "Failed to send message")
	}

	if res.Denied != nil {
		if res.Denied.Reason == domain.ReasonAttachmentsPremium {
			r.emit(c, EventError, ErrorPayload{
				Message:         "Attachments are only available for Premium and Smart Premium users",
				UpgradeRequired: true,
			})
		} else {
			r.emit(c, EventQuotaExceeded, QuotaExceeded{
				Message:         quotaExceededMessage,
				UpgradeRequired: true,
			})
		}
		return outcomeDenied
	}
	return outcomeOK
}

func (r *Relay) handleMarkRead(ctx context.Context, c *Client, data json.RawMessage) string {
	var p markReadPayload
	if !r.decode(c, data, &p) {
		return outcomeInvalid
	}

	if _, err := r.MarkRead(ctx, c.user.ID, p.MessageID); err != nil {
		return r.fail(c, EventMarkRead, err, "Failed to mark message read")
	}
	return outcomeOK
}

// =============================================================================
// Publishing
// =============================================================================

// SendMessage persists a message and fans it out to the conversation room
// and the receiver's devices. Socket and REST senders both come through
// here, so broadcast order matches persistence order per conversation.
func (r *Relay) SendMessage(ctx context.Context, params domain.SendMessageParams) (*domain.SendResult, error) {
	lock := r.convLock(params.ConversationID)
	lock.Lock()
	defer lock.Unlock()

	res, err := r.chat.SendMessage(ctx, params)
	if err != nil || res.Denied != nil {
		return res, err
	}

	msg := res.Message
	r.broadcast(conversationRoom(msg.ConversationID), EventNewMessage, NewMessage{Message: msg}, nil)
	if r.registry.Online(msg.ReceiverID) {
		r.broadcast(userRoom(msg.ReceiverID), EventNotification, Notification{
			Type:           EventNewMessage,
			ConversationID: msg.ConversationID,
			SenderID:       msg.SenderID,
			Content:        domain.Preview(msg.Content, notificationPreviewLength),
		}, nil)
	}
	return res, nil
}

// MarkRead marks a message read and tells the sender's devices.
func (r *Relay) MarkRead(ctx context.Context, userID, messageID uuid.UUID) (*domain.ReadReceipt, error) {
	receipt, err := r.chat.MarkRead(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}

	if r.registry.Online(receipt.SenderID) {
		r.broadcast(userRoom(receipt.SenderID), EventMessageRead, MessageRead{
			MessageID:      receipt.MessageID,
			ConversationID: receipt.ConversationID,
			ReadAt:         receipt.ReadAt,
		}, nil)
	}
	return receipt, nil
}

func (r *Relay) handleTyping(c *Client, data json.RawMessage, event string) string {
	var p conversationPayload
	if !r.decode(c, data, &p) {
		return outcomeInvalid
	}

	room := conversationRoom(p.ConversationID)
	if !c.inRoom(room) {
		r.emit(c, EventError, ErrorPayload{Message: "Join the conversation first"})
		return outcomeDenied
	}

	r.broadcast(room, event, Typing{UserID: c.user.ID, ConversationID: p.ConversationID}, c)
	return outcomeOK
}
