package users

import (
	"database/sql"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shahnawazAlam3641/geekZone/internal/auth"
	"github.com/shahnawazAlam3641/geekZone/internal/httpx"
	"github.com/shahnawazAlam3641/geekZone/internal/notify"
)

type Service struct {
	DB       *sql.DB
	Notifier *notify.Notifier
}

func Register(rg *gin.RouterGroup, db *sql.DB, notifier *notify.Notifier) {
	s := Service{DB: db, Notifier: notifier}
	rg.GET("/users/search", s.search)
	rg.GET("/users/friends", s.friends)
	rg.POST("/users/friends/request/:userId", s.sendRequest)
	rg.POST("/users/friends/accept/:userId", s.acceptRequest)
	rg.POST("/users/friends/reject/:userId", s.rejectRequest)
}

func (s Service) search(c *gin.Context) {
	uid := auth.MustUserID(c)
	query := c.Query("query")
	if query == "" {
		httpx.OK(c, gin.H{"users": []gin.H{}})
		return
	}

	rows, err := s.DB.Query(`
		SELECT id, username, email, COALESCE(profile_picture, ''), is_verified
		FROM users
		WHERE id<>? AND (username LIKE ? OR email LIKE ?)
		LIMIT 20`, uid, "%"+query+"%", "%"+query+"%")
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "search failed")
		return
	}
	defer rows.Close()

	var users []gin.H
	for rows.Next() {
		var (
			id, username, email, pic string
			verified                 bool
		)
		if err := rows.Scan(&id, &username, &email, &pic, &verified); err != nil {
			continue
		}
		users = append(users, gin.H{
			"id":              id,
			"username":        username,
			"email":           email,
			"profile_picture": pic,
			"is_verified":     verified,
		})
	}
	httpx.OK(c, gin.H{"users": users})
}

func (s Service) sendRequest(c *gin.Context) {
	uid := auth.MustUserID(c)
	target := c.Param("userId")
	if target == uid {
		httpx.Err(c, http.StatusBadRequest, "cannot friend yourself")
		return
	}

	var exists int
	_ = s.DB.QueryRow(`SELECT COUNT(1) FROM users WHERE id=?`, target).Scan(&exists)
	if exists == 0 {
		httpx.Err(c, http.StatusNotFound, "user not found")
		return
	}

	var already int
	_ = s.DB.QueryRow(`SELECT COUNT(1) FROM friends WHERE user_id=? AND friend_id=?`, uid, target).Scan(&already)
	if already > 0 {
		httpx.Err(c, http.StatusBadRequest, "already friends")
		return
	}

	res, err := s.DB.Exec(
		`INSERT INTO friend_requests (from_user, to_user) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		uid, target)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "request failed")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		httpx.Err(c, http.StatusBadRequest, "friend request already sent")
		return
	}

	var username string
	_ = s.DB.QueryRow(`SELECT username FROM users WHERE id=?`, uid).Scan(&username)
	if err := s.Notifier.Push(target, notify.Notification{
		Type:    "friend-request",
		ActorID: uid,
		Message: username + " sent you a friend request",
	}); err != nil {
		log.Printf("[users] friend-request notification failed: %v", err)
	}

	httpx.OK(c, gin.H{"message": "friend request sent"})
}

// acceptRequest makes the friendship symmetric: one row per direction, both
// inserted in the same transaction that consumes the request.
func (s Service) acceptRequest(c *gin.Context) {
	uid := auth.MustUserID(c)
	requester := c.Param("userId")

	tx, err := s.DB.Begin()
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "db transaction failed")
		return
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM friend_requests WHERE from_user=? AND to_user=?`, requester, uid)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "accept failed")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		httpx.Err(c, http.StatusBadRequest, "no friend request found")
		return
	}

	if _, err := tx.Exec(
		`INSERT INTO friends (user_id, friend_id) VALUES (?, ?), (?, ?) ON CONFLICT DO NOTHING`,
		uid, requester, requester, uid); err != nil {
		httpx.Err(c, http.StatusInternalServerError, "accept failed")
		return
	}

	if err := tx.Commit(); err != nil {
		httpx.Err(c, http.StatusInternalServerError, "commit failed")
		return
	}

	var username string
	_ = s.DB.QueryRow(`SELECT username FROM users WHERE id=?`, uid).Scan(&username)
	if err := s.Notifier.Push(requester, notify.Notification{
		Type:    "friend-accept",
		ActorID: uid,
		Message: username + " accepted your friend request",
	}); err != nil {
		log.Printf("[users] friend-accept notification failed: %v", err)
	}

	httpx.OK(c, gin.H{"message": "friend request accepted"})
}

func (s Service) rejectRequest(c *gin.Context) {
	uid := auth.MustUserID(c)
	requester := c.Param("userId")

	if _, err := s.DB.Exec(
		`DELETE FROM friend_requests WHERE from_user=? AND to_user=?`, requester, uid); err != nil {
		httpx.Err(c, http.StatusInternalServerError, "reject failed")
		return
	}
	httpx.OK(c, gin.H{"message": "friend request rejected"})
}

func (s Service) friends(c *gin.Context) {
	uid := auth.MustUserID(c)

	friends, err := s.userList(`
		SELECT u.id, u.username, u.email, COALESCE(u.profile_picture, ''), u.is_verified
		FROM friends f JOIN users u ON u.id = f.friend_id
		WHERE f.user_id = ?`, uid)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "failed to fetch friends")
		return
	}

	pending, err := s.userList(`
		SELECT u.id, u.username, u.email, COALESCE(u.profile_picture, ''), u.is_verified
		FROM friend_requests r JOIN users u ON u.id = r.from_user
		WHERE r.to_user = ?`, uid)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "failed to fetch friends")
		return
	}

	httpx.OK(c, gin.H{"friends": friends, "pending_requests": pending})
}

func (s Service) userList(query, uid string) ([]gin.H, error) {
	rows, err := s.DB.Query(query, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []gin.H{}
	for rows.Next() {
		var (
			id, username, email, pic string
			verified                 bool
		)
		if err := rows.Scan(&id, &username, &email, &pic, &verified); err != nil {
			log.Printf("[users] list scan failed: %v", err)
			continue
		}
		list = append(list, gin.H{
			"id":              id,
			"username":        username,
			"email":           email,
			"profile_picture": pic,
			"is_verified":     verified,
		})
	}
	return list, rows.Err()
}
