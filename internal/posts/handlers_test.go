package posts

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/shahnawazAlam3641/geekZone/internal/auth"
	"github.com/shahnawazAlam3641/geekZone/internal/chat"
	"github.com/shahnawazAlam3641/geekZone/internal/notify"
	"github.com/shahnawazAlam3641/geekZone/internal/storage/sqlite"
)

const testSchema = `
CREATE TABLE users (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    profile_picture TEXT
);
CREATE TABLE posts (
    id TEXT PRIMARY KEY,
    author_id TEXT NOT NULL,
    content TEXT NOT NULL,
    image TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE post_likes (
    post_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    PRIMARY KEY (post_id, user_id)
);
CREATE TABLE comments (
    id TEXT PRIMARY KEY,
    post_id TEXT NOT NULL,
    author_id TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE notifications (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    actor_id TEXT NOT NULL,
    type TEXT NOT NULL,
    post_id TEXT,
    message TEXT NOT NULL,
    is_read INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

func setup(t *testing.T, callerID string) (*gin.Engine, *sql.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { store.Db.Close() })
	if _, err := store.Db.Exec(testSchema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	if _, err := store.Db.Exec(`INSERT INTO users (id, username) VALUES ('u1','alice'), ('u2','bob')`); err != nil {
		t.Fatalf("seed users: %v", err)
	}

	r := gin.New()
	rg := r.Group("/api/v1", func(c *gin.Context) { c.Set(auth.CtxUserID, callerID) })
	Register(rg, store.Db, notify.NewNotifier(store.Db, chat.NewHub()))
	return r, store.Db
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var parsed map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &parsed)
	return w, parsed
}

func TestCreateAndFeedPagination(t *testing.T) {
	r, db := setup(t, "u1")

	for i := 0; i < 12; i++ {
		w, _ := doJSON(t, r, http.MethodPost, "/api/v1/posts/create",
			fmt.Sprintf(`{"content":"post %d"}`, i))
		if w.Code != http.StatusOK {
			t.Fatalf("create %d: status %d body %s", i, w.Code, w.Body.String())
		}
	}

	var total int
	_ = db.QueryRow(`SELECT COUNT(1) FROM posts`).Scan(&total)
	if total != 12 {
		t.Fatalf("expected 12 posts, got %d", total)
	}

	w, body := doJSON(t, r, http.MethodGet, "/api/v1/posts?page=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("feed: status %d", w.Code)
	}
	page1, _ := body["posts"].([]any)
	if len(page1) != 10 {
		t.Errorf("page 1 should hold 10 posts, got %d", len(page1))
	}
	if hasMore, _ := body["has_more"].(bool); !hasMore {
		t.Error("page 1 should report more posts")
	}

	_, body = doJSON(t, r, http.MethodGet, "/api/v1/posts?page=2", "")
	page2, _ := body["posts"].([]any)
	if len(page2) != 2 {
		t.Errorf("page 2 should hold 2 posts, got %d", len(page2))
	}
	if hasMore, _ := body["has_more"].(bool); hasMore {
		t.Error("page 2 should be the last page")
	}
}

func TestLikeToggleAndNotification(t *testing.T) {
	r, db := setup(t, "u2")
	if _, err := db.Exec(`INSERT INTO posts (id, author_id, content) VALUES ('p1','u1','hello')`); err != nil {
		t.Fatalf("seed post: %v", err)
	}

	w, body := doJSON(t, r, http.MethodPost, "/api/v1/posts/p1/like", "")
	if w.Code != http.StatusOK {
		t.Fatalf("like: status %d", w.Code)
	}
	if liked, _ := body["liked"].(bool); !liked {
		t.Error("first call should like the post")
	}

	var notifs int
	_ = db.QueryRow(`SELECT COUNT(1) FROM notifications WHERE user_id='u1' AND type='like'`).Scan(&notifs)
	if notifs != 1 {
		t.Errorf("author should get a like notification, got %d", notifs)
	}

	_, body = doJSON(t, r, http.MethodPost, "/api/v1/posts/p1/like", "")
	if liked, _ := body["liked"].(bool); liked {
		t.Error("second call should remove the like")
	}
	var likes int
	_ = db.QueryRow(`SELECT COUNT(1) FROM post_likes`).Scan(&likes)
	if likes != 0 {
		t.Errorf("like row should be gone, got %d", likes)
	}
}

func TestSelfLikeDoesNotNotify(t *testing.T) {
	r, db := setup(t, "u1")
	if _, err := db.Exec(`INSERT INTO posts (id, author_id, content) VALUES ('p1','u1','hello')`); err != nil {
		t.Fatalf("seed post: %v", err)
	}

	doJSON(t, r, http.MethodPost, "/api/v1/posts/p1/like", "")

	var notifs int
	_ = db.QueryRow(`SELECT COUNT(1) FROM notifications`).Scan(&notifs)
	if notifs != 0 {
		t.Errorf("self-like must not notify, got %d", notifs)
	}
}

func TestCommentNotifiesAuthor(t *testing.T) {
	r, db := setup(t, "u2")
	if _, err := db.Exec(`INSERT INTO posts (id, author_id, content) VALUES ('p1','u1','hello')`); err != nil {
		t.Fatalf("seed post: %v", err)
	}

	w, body := doJSON(t, r, http.MethodPost, "/api/v1/posts/p1/comments", `{"content":"nice"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("comment: status %d body %s", w.Code, w.Body.String())
	}
	if body["comment_id"] == "" {
		t.Error("comment id missing")
	}

	var notifs int
	_ = db.QueryRow(`SELECT COUNT(1) FROM notifications WHERE user_id='u1' AND type='comment'`).Scan(&notifs)
	if notifs != 1 {
		t.Errorf("author should get a comment notification, got %d", notifs)
	}
}

func TestLikeMissingPost(t *testing.T) {
	r, _ := setup(t, "u1")
	w, _ := doJSON(t, r, http.MethodPost, "/api/v1/posts/nope/like", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
