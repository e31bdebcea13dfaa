// Package chat implements the realtime messaging core: the websocket hub
// (presence registry and room multiplexer), the per-connection read/write
// pumps, and the relay that persists and rebroadcasts protocol events.
package chat

import (
	"encoding/json"
	"fmt"
)

// Client -> server event types.
const (
	EventUserOnline  = "user-online"
	EventJoinRoom    = "join-room"
	EventLeaveRoom   = "leave-room"
	EventSendMessage = "send-message"
	EventTyping      = "typing"
	EventStopTyping  = "stop-typing"
)

// Server -> client event types.
const (
	EventOnlineUsers     = "update-online-users"
	EventReceiveMessage  = "receive-message"
	EventUserTyping      = "user-typing"
	EventUserStopTyping  = "user-stop-typing"
	EventNewNotification = "new-notification"
	EventMessageSent     = "message-sent"
	EventMessageFailed   = "message-failed"
	EventError           = "error"
)

// Envelope carries the type discriminator plus the raw payload for deferred
// decoding into the concrete event struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("chat: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("chat: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// UserOnlineMsg announces the connection's identity for presence tracking.
type UserOnlineMsg struct {
	UserID string `json:"userId"`
}

// RoomMsg is shared by join-room and leave-room.
type RoomMsg struct {
	ConversationID string `json:"conversationId"`
}

// MessageBody is the client-supplied part of a send-message event. Sender is
// taken from the authenticated connection, never from this field.
type MessageBody struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// SendMessageMsg carries a message for a conversation. TempID is a
// client-generated correlation id echoed back in the ack.
type SendMessageMsg struct {
	ConversationID string      `json:"conversationId"`
	TempID         string      `json:"tempId"`
	Message        MessageBody `json:"message"`
}

// TypingMsg is shared by typing and stop-typing.
type TypingMsg struct {
	ConversationID string `json:"conversationId"`
	Username       string `json:"username"`
}

// Outbound payloads.

type OnlineUsersMsg struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

// WireMessage is the receive-message payload delivered to room members.
type WireMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Sender         string `json:"sender"`
	SenderUsername string `json:"senderUsername,omitempty"`
	Content        string `json:"content"`
	CreatedAt      string `json:"createdAt"`
}

// UserTypingMsg is relayed to room members other than the typist.
type UserTypingMsg struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

// AckMsg correlates a send-message with its outcome via the client temp id.
type AckMsg struct {
	Type      string `json:"type"`
	TempID    string `json:"tempId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// ErrorMsg reports a rejected event back to the offending connection only.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// All outbound payload types marshal cleanly; this is unreachable
		// short of a programming error.
		panic(err)
	}
	return b
}
