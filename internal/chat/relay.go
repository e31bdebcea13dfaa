package chat

import (
	"database/sql"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shahnawazAlam3641/geekZone/internal/metrics"
)

// Relay translates inbound protocol events into store mutations and room
// broadcasts. Every failure is local to the event that caused it: the
// offending connection gets an error or a message-failed ack, everyone else
// is untouched.
type Relay struct {
	DB  *sql.DB
	Hub *Hub
}

func NewRelay(db *sql.DB, hub *Hub) *Relay {
	return &Relay{DB: db, Hub: hub}
}

// Handle decodes one inbound frame and dispatches it by type.
func (r *Relay) Handle(c *Client, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("[relay] bad frame from user=%s: %v", c.UserID, err)
		r.sendError(c, "parse_error", "invalid message format")
		return
	}
	metrics.EventsTotal.WithLabelValues(env.Type).Inc()

	switch env.Type {
	case EventUserOnline:
		r.onUserOnline(c, env.Raw)
	case EventJoinRoom:
		r.onJoinRoom(c, env.Raw)
	case EventLeaveRoom:
		r.onLeaveRoom(c, env.Raw)
	case EventSendMessage:
		r.onSendMessage(c, env.Raw)
	case EventTyping:
		r.onTyping(c, env.Raw, EventUserTyping)
	case EventStopTyping:
		r.onTyping(c, env.Raw, EventUserStopTyping)
	default:
		r.sendError(c, "unsupported_type", "unsupported event type")
	}
}

// onUserOnline registers presence. The identity always comes from the
// authenticated connection; a payload naming someone else is rejected.
func (r *Relay) onUserOnline(c *Client, raw json.RawMessage) {
	var msg UserOnlineMsg
	_ = json.Unmarshal(raw, &msg)
	if msg.UserID != "" && msg.UserID != c.UserID {
		r.sendError(c, "identity_mismatch", "cannot announce another user")
		return
	}
	r.Hub.Announce(c, c.UserID)
}

func (r *Relay) onJoinRoom(c *Client, raw json.RawMessage) {
	var msg RoomMsg
	if err := json.Unmarshal(raw, &msg); err != nil || msg.ConversationID == "" {
		r.sendError(c, "parse_error", "missing conversationId")
		return
	}
	ok, err := r.isParticipant(msg.ConversationID, c.UserID)
	if err != nil {
		log.Printf("[relay] join authorization failed conv=%s user=%s: %v", msg.ConversationID, c.UserID, err)
		r.sendError(c, "internal_error", "could not verify membership")
		return
	}
	if !ok {
		r.sendError(c, "forbidden", "not a participant of this conversation")
		return
	}
	r.Hub.Join(c, RoomName(msg.ConversationID))
}

func (r *Relay) onLeaveRoom(c *Client, raw json.RawMessage) {
	var msg RoomMsg
	if err := json.Unmarshal(raw, &msg); err != nil || msg.ConversationID == "" {
		r.sendError(c, "parse_error", "missing conversationId")
		return
	}
	r.Hub.Leave(c, RoomName(msg.ConversationID))
}

func (r *Relay) onTyping(c *Client, raw json.RawMessage, outType string) {
	var msg TypingMsg
	if err := json.Unmarshal(raw, &msg); err != nil || msg.ConversationID == "" {
		return
	}
	// Transient, never persisted; the sender never sees its own indicator.
	payload := mustJSON(UserTypingMsg{Type: outType, Username: msg.Username})
	r.Hub.BroadcastRoom(RoomName(msg.ConversationID), payload, c)
}

// onSendMessage is the persist-then-broadcast sequence: resolve or create
// the conversation, store the message, bump the conversation's last-message
// pointer, fan out to the room (sender included, so other tabs stay in
// sync), then ack the sending connection.
func (r *Relay) onSendMessage(c *Client, raw json.RawMessage) {
	started := time.Now()

	var msg SendMessageMsg
	if err := json.Unmarshal(raw, &msg); err != nil || msg.ConversationID == "" {
		r.sendError(c, "parse_error", "missing conversationId")
		return
	}
	content := strings.TrimSpace(msg.Message.Content)
	if content == "" {
		r.fail(c, msg.TempID, "empty message")
		return
	}

	ok, err := r.isParticipant(msg.ConversationID, c.UserID)
	if err == nil && !ok {
		r.fail(c, msg.TempID, "not a participant of this conversation")
		return
	}
	if err != nil {
		log.Printf("[relay] send authorization failed conv=%s user=%s: %v", msg.ConversationID, c.UserID, err)
		r.fail(c, msg.TempID, "could not verify membership")
		return
	}

	convID, err := r.resolveConversation(msg.ConversationID)
	if err != nil {
		log.Printf("[relay] conversation resolve failed conv=%s: %v", msg.ConversationID, err)
		metrics.MessagesPersisted.WithLabelValues("failed").Inc()
		r.fail(c, msg.TempID, "conversation unavailable")
		return
	}

	messageID := uuid.NewString()
	createdAt := time.Now().UTC()
	_, err = r.DB.Exec(
		`INSERT INTO messages (id, conversation_id, sender_id, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		messageID, convID, c.UserID, content, createdAt)
	if err != nil {
		log.Printf("[relay] message insert failed conv=%s: %v", convID, err)
		metrics.MessagesPersisted.WithLabelValues("failed").Inc()
		r.fail(c, msg.TempID, "message not saved")
		return
	}

	// Last-write-wins on the pointer; both racing messages stay stored.
	if _, err := r.DB.Exec(
		`UPDATE conversations SET last_message_id=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`,
		messageID, convID); err != nil {
		log.Printf("[relay] last-message update failed conv=%s: %v", convID, err)
	}
	metrics.MessagesPersisted.WithLabelValues("ok").Inc()

	var username string
	_ = r.DB.QueryRow(`SELECT username FROM users WHERE id=?`, c.UserID).Scan(&username)

	wire := mustJSON(WireMessage{
		Type:           EventReceiveMessage,
		ConversationID: msg.ConversationID,
		MessageID:      messageID,
		Sender:         c.UserID,
		SenderUsername: username,
		Content:        content,
		CreatedAt:      createdAt.Format(time.RFC3339Nano),
	})
	r.Hub.BroadcastRoom(RoomName(msg.ConversationID), wire, nil)

	r.Hub.SendDirect(c, mustJSON(AckMsg{Type: EventMessageSent, TempID: msg.TempID, MessageID: messageID}))
	metrics.SendLatency.Observe(time.Since(started).Seconds())
}

// isParticipant verifies the capability check from the hardening notes: a
// caller may touch a conversation only when its own id is in the
// participant set. For a 1:1 key the set is encoded in the key itself, so
// the check holds even before the conversation row exists.
func (r *Relay) isParticipant(wireID, userID string) (bool, error) {
	if a, b, err := SplitConversationKey(wireID); err == nil {
		return userID == a || userID == b, nil
	}
	var n int
	err := r.DB.QueryRow(
		`SELECT COUNT(1) FROM conversation_participants WHERE conversation_id=? AND user_id=?`,
		wireID, userID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// resolveConversation maps a wire conversation id onto a stored
// conversation, creating the 1:1 conversation on first contact. The unique
// index on participant_key makes the get-or-create atomic: two racing first
// sends insert at most one row and both land on it.
func (r *Relay) resolveConversation(wireID string) (string, error) {
	a, b, err := SplitConversationKey(wireID)
	if err != nil {
		// Group conversations are created explicitly over REST and
		// addressed by their stored id.
		var id string
		if err := r.DB.QueryRow(`SELECT id FROM conversations WHERE id=?`, wireID).Scan(&id); err != nil {
			return "", err
		}
		return id, nil
	}

	if _, err := r.DB.Exec(
		`INSERT INTO conversations (id, participant_key, is_group) VALUES (?, ?, 0)
		 ON CONFLICT DO NOTHING`,
		uuid.NewString(), wireID); err != nil {
		return "", err
	}

	var id string
	if err := r.DB.QueryRow(`SELECT id FROM conversations WHERE participant_key=?`, wireID).Scan(&id); err != nil {
		return "", err
	}

	if _, err := r.DB.Exec(
		`INSERT INTO conversation_participants (conversation_id, user_id) VALUES (?, ?), (?, ?)
		 ON CONFLICT DO NOTHING`,
		id, a, id, b); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Relay) sendError(c *Client, code, msg string) {
	r.Hub.SendDirect(c, mustJSON(ErrorMsg{Type: EventError, Code: code, Message: msg}))
}

func (r *Relay) fail(c *Client, tempID, reason string) {
	r.Hub.SendDirect(c, mustJSON(AckMsg{Type: EventMessageFailed, TempID: tempID, Reason: reason}))
}
