package posts

import (
	"database/sql"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/shahnawazAlam3641/geekZone/internal/auth"
	"github.com/shahnawazAlam3641/geekZone/internal/httpx"
	"github.com/shahnawazAlam3641/geekZone/internal/notify"
	"github.com/shahnawazAlam3641/geekZone/internal/utils"
)

const feedPageSize = 10

type Service struct {
	DB       *sql.DB
	Notifier *notify.Notifier
}

type createReq struct {
	Content string `json:"content" binding:"required,max=2000"`
	Image   string `json:"image"`
}

type commentReq struct {
	Content string `json:"content" binding:"required,max=1000"`
}

func Register(rg *gin.RouterGroup, db *sql.DB, notifier *notify.Notifier) {
	s := Service{DB: db, Notifier: notifier}
	rg.POST("/posts/create", s.create)
	rg.GET("/posts", s.feed)
	rg.POST("/posts/:id/like", s.toggleLike)
	rg.POST("/posts/:id/comments", s.comment)
}

func (s Service) create(c *gin.Context) {
	uid := auth.MustUserID(c)
	var req createReq
	if err := c.ShouldBindJSON(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			httpx.Err(c, http.StatusBadRequest, utils.ValidationErr(validationErrors))
			return
		}
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return
	}

	id := uuid.NewString()
	_, err := s.DB.Exec(
		`INSERT INTO posts (id, author_id, content, image) VALUES (?, ?, ?, ?)`,
		id, uid, req.Content,
		sql.NullString{String: req.Image, Valid: req.Image != ""})
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "create post failed")
		return
	}

	httpx.OK(c, gin.H{"post_id": id})
}

// feed returns the newest posts first, a fixed page at a time, with like and
// comment counts and whether the caller already liked each post.
func (s Service) feed(c *gin.Context) {
	uid := auth.MustUserID(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * feedPageSize

	rows, err := s.DB.Query(`
		SELECT p.id, p.author_id, COALESCE(u.username, ''), COALESCE(u.profile_picture, ''),
		       p.content, COALESCE(p.image, ''), p.created_at,
		       (SELECT COUNT(1) FROM post_likes l WHERE l.post_id=p.id),
		       (SELECT COUNT(1) FROM comments cm WHERE cm.post_id=p.id),
		       (SELECT COUNT(1) FROM post_likes l WHERE l.post_id=p.id AND l.user_id=?)
		FROM posts p
		LEFT JOIN users u ON u.id = p.author_id
		ORDER BY p.created_at DESC
		LIMIT ? OFFSET ?`, uid, feedPageSize, offset)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "failed to fetch posts")
		return
	}
	defer rows.Close()

	var list []gin.H
	for rows.Next() {
		var (
			id, author, username, pic, content, image string
			at                                        sql.NullString
			likes, comments, liked                    int
		)
		if err := rows.Scan(&id, &author, &username, &pic, &content, &image, &at, &likes, &comments, &liked); err != nil {
			log.Printf("[posts] feed scan failed: %v", err)
			continue
		}
		var createdAt string
		if at.Valid {
			createdAt = utils.ParseTime(at.String).Format(time.RFC3339)
		}
		list = append(list, gin.H{
			"id":              id,
			"author_id":       author,
			"author_username": username,
			"author_picture":  pic,
			"content":         content,
			"image":           image,
			"created_at":      createdAt,
			"like_count":      likes,
			"comment_count":   comments,
			"liked":           liked > 0,
		})
	}
	if err := rows.Err(); err != nil {
		httpx.Err(c, http.StatusInternalServerError, "error reading posts")
		return
	}

	var total int
	_ = s.DB.QueryRow(`SELECT COUNT(1) FROM posts`).Scan(&total)

	httpx.OK(c, gin.H{
		"posts":    list,
		"page":     page,
		"has_more": total > offset+len(list),
	})
}

// toggleLike likes the post or removes the caller's existing like. A fresh
// like on someone else's post pushes a notification to its author.
func (s Service) toggleLike(c *gin.Context) {
	uid := auth.MustUserID(c)
	postID := c.Param("id")

	var author string
	if err := s.DB.QueryRow(`SELECT author_id FROM posts WHERE id=?`, postID).Scan(&author); err != nil {
		httpx.Err(c, http.StatusNotFound, "post not found")
		return
	}

	res, err := s.DB.Exec(`DELETE FROM post_likes WHERE post_id=? AND user_id=?`, postID, uid)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "like failed")
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		httpx.OK(c, gin.H{"liked": false})
		return
	}

	if _, err := s.DB.Exec(
		`INSERT INTO post_likes (post_id, user_id) VALUES (?, ?)`, postID, uid); err != nil {
		httpx.Err(c, http.StatusInternalServerError, "like failed")
		return
	}

	if author != uid {
		var username string
		_ = s.DB.QueryRow(`SELECT username FROM users WHERE id=?`, uid).Scan(&username)
		if err := s.Notifier.Push(author, notify.Notification{
			Type:    "like",
			ActorID: uid,
			PostID:  postID,
			Message: username + " liked your post",
		}); err != nil {
			log.Printf("[posts] like notification failed: %v", err)
		}
	}

	httpx.OK(c, gin.H{"liked": true})
}

func (s Service) comment(c *gin.Context) {
	uid := auth.MustUserID(c)
	postID := c.Param("id")

	var req commentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			httpx.Err(c, http.StatusBadRequest, utils.ValidationErr(validationErrors))
			return
		}
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return
	}

	var author string
	if err := s.DB.QueryRow(`SELECT author_id FROM posts WHERE id=?`, postID).Scan(&author); err != nil {
		httpx.Err(c, http.StatusNotFound, "post not found")
		return
	}

	id := uuid.NewString()
	if _, err := s.DB.Exec(
		`INSERT INTO comments (id, post_id, author_id, content) VALUES (?, ?, ?, ?)`,
		id, postID, uid, req.Content); err != nil {
		httpx.Err(c, http.StatusInternalServerError, "comment failed")
		return
	}

	if author != uid {
		var username string
		_ = s.DB.QueryRow(`SELECT username FROM users WHERE id=?`, uid).Scan(&username)
		if err := s.Notifier.Push(author, notify.Notification{
			Type:    "comment",
			ActorID: uid,
			PostID:  postID,
			Message: username + " commented on your post",
		}); err != nil {
			log.Printf("[posts] comment notification failed: %v", err)
		}
	}

	httpx.OK(c, gin.H{"comment_id": id})
}
