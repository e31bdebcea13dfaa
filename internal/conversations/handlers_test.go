package conversations

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/shahnawazAlam3641/geekZone/internal/auth"
	"github.com/shahnawazAlam3641/geekZone/internal/chat"
	"github.com/shahnawazAlam3641/geekZone/internal/storage/sqlite"
)

const testSchema = `
CREATE TABLE users (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL UNIQUE
);
CREATE TABLE conversations (
    id TEXT PRIMARY KEY,
    participant_key TEXT NOT NULL UNIQUE,
    is_group INTEGER NOT NULL DEFAULT 0,
    group_name TEXT,
    group_admin TEXT,
    last_message_id TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE conversation_participants (
    conversation_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    PRIMARY KEY (conversation_id, user_id)
);
CREATE TABLE messages (
    id TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    sender_id TEXT NOT NULL,
    content TEXT NOT NULL,
    is_read INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { store.Db.Close() })
	if _, err := store.Db.Exec(testSchema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	if _, err := store.Db.Exec(`INSERT INTO users (id, username) VALUES ('u1','alice'), ('u2','bob'), ('u3','carol')`); err != nil {
		t.Fatalf("seed users: %v", err)
	}
	return store.Db
}

// engineFor mounts the conversation routes behind a middleware that
// fakes an authenticated caller.
func engineFor(db *sql.DB, callerID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	rg := r.Group("/api/v1", func(c *gin.Context) { c.Set(auth.CtxUserID, callerID) })
	Register(rg, db)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var parsed map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &parsed)
	return w, parsed
}

func TestCreatePrivate_IdempotentPerPair(t *testing.T) {
	db := testDB(t)
	r := engineFor(db, "u1")

	w, first := doJSON(t, r, http.MethodPost, "/api/v1/conversation/create-conversation",
		`{"participant_id":"u2"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("create: status %d body %s", w.Code, w.Body.String())
	}
	if first["key"] != chat.ConversationKey("u1", "u2") {
		t.Errorf("unexpected key: %v", first["key"])
	}

	_, second := doJSON(t, r, http.MethodPost, "/api/v1/conversation/create-conversation",
		`{"participant_id":"u2"}`)
	if first["conversation_id"] != second["conversation_id"] {
		t.Errorf("repeat create must return the same conversation: %v vs %v",
			first["conversation_id"], second["conversation_id"])
	}

	var count int
	_ = db.QueryRow(`SELECT COUNT(1) FROM conversations`).Scan(&count)
	if count != 1 {
		t.Errorf("expected a single conversation, got %d", count)
	}
}

func TestCreatePrivate_UnknownUserRejected(t *testing.T) {
	r := engineFor(testDB(t), "u1")
	w, _ := doJSON(t, r, http.MethodPost, "/api/v1/conversation/create-conversation",
		`{"participant_id":"ghost"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestGet_MembershipEnforced(t *testing.T) {
	db := testDB(t)
	asU1 := engineFor(db, "u1")
	asU3 := engineFor(db, "u3")

	doJSON(t, asU1, http.MethodPost, "/api/v1/conversation/create-conversation", `{"participant_id":"u2"}`)
	key := chat.ConversationKey("u1", "u2")

	w, _ := doJSON(t, asU3, http.MethodGet, "/api/v1/conversation/get/"+key, "")
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-participant, got %d", w.Code)
	}

	w, body := doJSON(t, asU1, http.MethodGet, "/api/v1/conversation/get/"+key, "")
	if w.Code != http.StatusOK {
		t.Errorf("participant should read the conversation, got %d", w.Code)
	}
	if body["conversation"] == nil {
		t.Error("conversation payload missing")
	}
}

func TestGetAll_OrderedByActivity(t *testing.T) {
	db := testDB(t)
	asU1 := engineFor(db, "u1")

	doJSON(t, asU1, http.MethodPost, "/api/v1/conversation/create-conversation", `{"participant_id":"u2"}`)
	doJSON(t, asU1, http.MethodPost, "/api/v1/conversation/create-conversation", `{"participant_id":"u3"}`)

	w, body := doJSON(t, asU1, http.MethodGet, "/api/v1/conversation/get-all", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get-all: status %d body %s", w.Code, w.Body.String())
	}
	convs, ok := body["conversations"].([]any)
	if !ok || len(convs) != 2 {
		t.Fatalf("expected 2 conversations, got %v", body["conversations"])
	}
}
