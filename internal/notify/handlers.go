package notify

import (
	"database/sql"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shahnawazAlam3641/geekZone/internal/auth"
	"github.com/shahnawazAlam3641/geekZone/internal/httpx"
)

type Service struct {
	DB *sql.DB
}

func Register(rg *gin.RouterGroup, db *sql.DB) {
	s := Service{DB: db}
	rg.GET("/notifications", s.list)
	rg.POST("/notifications/read", s.markAllRead)
}

func (s Service) list(c *gin.Context) {
	uid := auth.MustUserID(c)

	rows, err := s.DB.Query(`
		SELECT n.id, n.type, n.actor_id, COALESCE(u.username, ''), COALESCE(n.post_id, ''), n.message, n.is_read, n.created_at
		FROM notifications n
		LEFT JOIN users u ON u.id = n.actor_id
		WHERE n.user_id = ?
		ORDER BY n.created_at DESC LIMIT 100`, uid)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "failed to fetch notifications")
		return
	}
	defer rows.Close()

	var list []gin.H
	for rows.Next() {
		var (
			id, ntype, actor, actorName, postID, message, created string
			read                                                  bool
		)
		if err := rows.Scan(&id, &ntype, &actor, &actorName, &postID, &message, &read, &created); err != nil {
			log.Printf("[notify] list scan failed: %v", err)
			continue
		}
		list = append(list, gin.H{
			"id":             id,
			"type":           ntype,
			"actor_id":       actor,
			"actor_username": actorName,
			"post_id":        postID,
			"message":        message,
			"is_read":        read,
			"created_at":     created,
		})
	}
	if err := rows.Err(); err != nil {
		httpx.Err(c, http.StatusInternalServerError, "error reading notifications")
		return
	}

	httpx.OK(c, gin.H{"notifications": list})
}

func (s Service) markAllRead(c *gin.Context) {
	uid := auth.MustUserID(c)
	if _, err := s.DB.Exec(`UPDATE notifications SET is_read=1 WHERE user_id=?`, uid); err != nil {
		httpx.Err(c, http.StatusInternalServerError, "update failed")
		return
	}
	httpx.OK(c, gin.H{"ok": true})
}
