package conversations

import (
	"database/sql"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/shahnawazAlam3641/geekZone/internal/auth"
	"github.com/shahnawazAlam3641/geekZone/internal/chat"
	"github.com/shahnawazAlam3641/geekZone/internal/httpx"
	"github.com/shahnawazAlam3641/geekZone/internal/utils"
)

type Service struct {
	DB *sql.DB
}

type privateReq struct {
	ParticipantID string `json:"participant_id" binding:"required"`
}

type groupReq struct {
	Name         string   `json:"name" binding:"required"`
	Participants []string `json:"participants" binding:"required,min=1"`
}

func Register(rg *gin.RouterGroup, db *sql.DB) {
	s := Service{DB: db}
	rg.POST("/conversation/create-conversation", s.createOrGetPrivate)
	rg.POST("/conversation/create-group", s.createGroup)
	rg.GET("/conversation/get-all", s.listMine)
	rg.GET("/conversation/get/:id", s.get)
	rg.POST("/conversation/:id/read", s.markRead)
}

// createOrGetPrivate is idempotent per unordered pair: the unique
// participant_key upsert returns the existing conversation when the pair
// already chatted, the same path the websocket relay takes on first send.
func (s Service) createOrGetPrivate(c *gin.Context) {
	uid := auth.MustUserID(c)
	var req privateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			httpx.Err(c, http.StatusBadRequest, utils.ValidationErr(validationErrors))
			return
		}
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.ParticipantID == uid {
		httpx.Err(c, http.StatusBadRequest, "cannot start a conversation with yourself")
		return
	}

	var exists int
	_ = s.DB.QueryRow(`SELECT COUNT(1) FROM users WHERE id=?`, req.ParticipantID).Scan(&exists)
	if exists == 0 {
		httpx.Err(c, http.StatusNotFound, "user not found")
		return
	}

	key := chat.ConversationKey(uid, req.ParticipantID)
	if _, err := s.DB.Exec(
		`INSERT INTO conversations (id, participant_key, is_group) VALUES (?, ?, 0)
		 ON CONFLICT DO NOTHING`, uuid.NewString(), key); err != nil {
		httpx.Err(c, http.StatusInternalServerError, "create conversation failed")
		return
	}

	var id string
	if err := s.DB.QueryRow(`SELECT id FROM conversations WHERE participant_key=?`, key).Scan(&id); err != nil {
		httpx.Err(c, http.StatusInternalServerError, "create conversation failed")
		return
	}

	if _, err := s.DB.Exec(
		`INSERT INTO conversation_participants (conversation_id, user_id) VALUES (?, ?), (?, ?)
		 ON CONFLICT DO NOTHING`, id, uid, id, req.ParticipantID); err != nil {
		httpx.Err(c, http.StatusInternalServerError, "create conversation failed")
		return
	}

	httpx.OK(c, gin.H{"conversation_id": id, "key": key, "is_group": false})
}

func (s Service) createGroup(c *gin.Context) {
	uid := auth.MustUserID(c)
	var req groupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			httpx.Err(c, http.StatusBadRequest, utils.ValidationErr(validationErrors))
			return
		}
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return
	}

	tx, err := s.DB.Begin()
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "db transaction failed")
		return
	}
	defer tx.Rollback()

	id := uuid.NewString()
	// Group conversations use their id as the participant key; it can never
	// collide with a sorted-pair key (UUIDs contain no underscore).
	if _, err := tx.Exec(
		`INSERT INTO conversations (id, participant_key, is_group, group_name, group_admin)
		 VALUES (?, ?, 1, ?, ?)`, id, id, req.Name, uid); err != nil {
		httpx.Err(c, http.StatusBadRequest, "create group failed")
		return
	}

	members := append([]string{uid}, req.Participants...)
	seen := make(map[string]bool, len(members))
	for _, mid := range members {
		if seen[mid] {
			continue
		}
		seen[mid] = true
		if _, err := tx.Exec(
			`INSERT INTO conversation_participants (conversation_id, user_id) VALUES (?, ?)
			 ON CONFLICT DO NOTHING`, id, mid); err != nil {
			httpx.Err(c, http.StatusBadRequest, "invalid participant")
			return
		}
	}

	if err := tx.Commit(); err != nil {
		httpx.Err(c, http.StatusInternalServerError, "commit failed")
		return
	}

	httpx.OK(c, gin.H{"conversation_id": id, "is_group": true})
}

func (s Service) listMine(c *gin.Context) {
	uid := auth.MustUserID(c)

	rows, err := s.DB.Query(`
		SELECT c.id, c.participant_key, c.is_group, COALESCE(c.group_name, ''),
		       COALESCE(m.content, ''), COALESCE(m.sender_id, ''), c.updated_at
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		LEFT JOIN messages m ON m.id = c.last_message_id
		WHERE p.user_id = ?
		ORDER BY c.updated_at DESC`, uid)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "failed to fetch conversations")
		return
	}
	defer rows.Close()

	var list []gin.H
	for rows.Next() {
		var (
			id, key, name, lastContent, lastSender string
			isGroup                                bool
			updated                                sql.NullString
		)
		if err := rows.Scan(&id, &key, &isGroup, &name, &lastContent, &lastSender, &updated); err != nil {
			log.Printf("[conversations] list scan failed: %v", err)
			continue
		}
		entry := gin.H{
			"id":       id,
			"key":      key,
			"is_group": isGroup,
			"name":     name,
		}
		if lastContent != "" {
			entry["last_message"] = gin.H{"content": lastContent, "sender": lastSender}
		}
		if updated.Valid {
			entry["updated_at"] = utils.ParseTime(updated.String).Format(time.RFC3339)
		}
		list = append(list, entry)
	}
	if err := rows.Err(); err != nil {
		httpx.Err(c, http.StatusInternalServerError, "error reading conversation list")
		return
	}

	httpx.OK(c, gin.H{"conversations": list})
}

// get returns the conversation plus its messages in creation order. The :id
// parameter accepts either a stored id or a 1:1 pair key.
func (s Service) get(c *gin.Context) {
	uid := auth.MustUserID(c)
	wireID := c.Param("id")

	var (
		id, key, name, admin string
		isGroup              bool
	)
	err := s.DB.QueryRow(`
		SELECT id, participant_key, is_group, COALESCE(group_name, ''), COALESCE(group_admin, '')
		FROM conversations WHERE id=? OR participant_key=?`, wireID, wireID).
		Scan(&id, &key, &isGroup, &name, &admin)
	if err != nil {
		httpx.Err(c, http.StatusNotFound, "conversation not found")
		return
	}

	var member int
	_ = s.DB.QueryRow(
		`SELECT COUNT(1) FROM conversation_participants WHERE conversation_id=? AND user_id=?`,
		id, uid).Scan(&member)
	if member == 0 {
		httpx.Err(c, http.StatusForbidden, "not a participant")
		return
	}

	rows, err := s.DB.Query(`
		SELECT m.id, m.sender_id, COALESCE(u.username, ''), m.content, m.is_read, m.created_at
		FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.conversation_id=?
		ORDER BY m.created_at ASC`, id)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "db error")
		return
	}
	defer rows.Close()

	var messages []gin.H
	for rows.Next() {
		var (
			mid, sender, username, content string
			read                           bool
			at                             sql.NullString
		)
		if err := rows.Scan(&mid, &sender, &username, &content, &read, &at); err != nil {
			log.Printf("[conversations] message scan failed: %v", err)
			continue
		}
		var createdAt string
		if at.Valid {
			createdAt = utils.ParseTime(at.String).Format(time.RFC3339)
		}
		messages = append(messages, gin.H{
			"id":              mid,
			"sender":          sender,
			"sender_username": username,
			"content":         content,
			"is_read":         read,
			"created_at":      createdAt,
		})
	}

	conv := gin.H{"id": id, "key": key, "is_group": isGroup}
	if isGroup {
		conv["group_name"] = name
		conv["group_admin"] = admin
	}
	httpx.OK(c, gin.H{"conversation": conv, "messages": messages})
}

// markRead flips the read flag on every message addressed to the caller.
func (s Service) markRead(c *gin.Context) {
	uid := auth.MustUserID(c)
	wireID := c.Param("id")

	res, err := s.DB.Exec(`
		UPDATE messages SET is_read=1
		WHERE sender_id<>? AND conversation_id IN
		  (SELECT c.id FROM conversations c
		   JOIN conversation_participants p ON p.conversation_id = c.id
		   WHERE (c.id=? OR c.participant_key=?) AND p.user_id=?)`,
		uid, wireID, wireID, uid)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "update failed")
		return
	}
	n, _ := res.RowsAffected()
	httpx.OK(c, gin.H{"marked": n})
}
