// Package notify delivers application notifications (likes, comments,
// friend requests) to a user's identity room, persisting each one first so
// offline recipients can pull it later.
package notify

import (
	"database/sql"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/shahnawazAlam3641/geekZone/internal/chat"
	"github.com/shahnawazAlam3641/geekZone/internal/metrics"
)

type Notification struct {
	ID        string `json:"id"`
	Type      string `json:"type"` // "like", "comment", "friend-request", "friend-accept"
	ActorID   string `json:"actorId"`
	PostID    string `json:"postId,omitempty"`
	Message   string `json:"message"`
	CreatedAt string `json:"createdAt"`
}

type Notifier struct {
	DB  *sql.DB
	Hub *chat.Hub
}

func NewNotifier(db *sql.DB, hub *chat.Hub) *Notifier {
	return &Notifier{DB: db, Hub: hub}
}

// Push stores the notification and emits new-notification to the recipient's
// room. Live delivery is best effort; the stored row is the source of truth.
func (n *Notifier) Push(recipientID string, notif Notification) error {
	notif.ID = uuid.NewString()
	notif.CreatedAt = time.Now().UTC().Format(time.RFC3339)

	_, err := n.DB.Exec(
		`INSERT INTO notifications (id, user_id, actor_id, type, post_id, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		notif.ID, recipientID, notif.ActorID, notif.Type,
		sql.NullString{String: notif.PostID, Valid: notif.PostID != ""},
		notif.Message, notif.CreatedAt)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(struct {
		Type string `json:"type"`
		Notification
	}{Type: chat.EventNewNotification, Notification: notif})
	if err != nil {
		return err
	}

	if n.Hub.SendToUser(recipientID, payload) {
		metrics.NotificationsPushed.WithLabelValues("live").Inc()
	} else {
		metrics.NotificationsPushed.WithLabelValues("stored_only").Inc()
		log.Printf("[notify] user %s offline, stored only", recipientID)
	}
	return nil
}
