package chat

import (
	"encoding/json"
	"testing"
	"time"
)

func newTestClient(hub *Hub) *Client {
	c := &Client{Hub: hub, Send: make(chan []byte, 32)}
	hub.Register(c)
	return c
}

// nextEvent pops frames off the client's send queue until one of the wanted
// type arrives, or fails the test after a short wait.
func nextEvent(t *testing.T, c *Client, wantType string) json.RawMessage {
	t.Helper()
	deadline := time.After(500 * time.Millisecond)
	for {
		select {
		case payload, ok := <-c.Send:
			if !ok {
				t.Fatalf("send channel closed while waiting for %q", wantType)
			}
			var env struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(payload, &env); err != nil {
				t.Fatalf("bad payload: %v", err)
			}
			if env.Type == wantType {
				return payload
			}
		case <-deadline:
			t.Fatalf("no %q event received", wantType)
		}
	}
}

// expectSilence asserts the client receives nothing for a short window.
func expectSilence(t *testing.T, c *Client) {
	t.Helper()
	select {
	case payload := <-c.Send:
		t.Fatalf("unexpected payload: %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func onlineSet(t *testing.T, c *Client) []string {
	t.Helper()
	var msg OnlineUsersMsg
	if err := json.Unmarshal(nextEvent(t, c, EventOnlineUsers), &msg); err != nil {
		t.Fatalf("bad online-users payload: %v", err)
	}
	return msg.Users
}

func TestPresence_AnnounceAndDisconnect(t *testing.T) {
	hub := NewHub()
	c1 := newTestClient(hub)
	c2 := newTestClient(hub)

	hub.Announce(c1, "u1")
	if got := onlineSet(t, c1); len(got) != 1 || got[0] != "u1" {
		t.Errorf("expected online set [u1], got %v", got)
	}
	// c2 is connected but not yet announced; it still saw that snapshot.
	_ = onlineSet(t, c2)

	hub.Announce(c2, "u2")
	if got := onlineSet(t, c2); len(got) != 2 || got[0] != "u1" || got[1] != "u2" {
		t.Errorf("expected online set [u1 u2], got %v", got)
	}
	// c1 sees the same snapshot.
	if got := onlineSet(t, c1); len(got) != 2 {
		t.Errorf("expected 2 online users, got %v", got)
	}

	hub.Unregister(c2)
	if got := onlineSet(t, c1); len(got) != 1 || got[0] != "u1" {
		t.Errorf("after disconnect expected [u1], got %v", got)
	}
}

func TestPresence_MultiDeviceSingleEntry(t *testing.T) {
	hub := NewHub()
	c1 := newTestClient(hub)
	c2 := newTestClient(hub)

	hub.Announce(c1, "u1")
	hub.Announce(c2, "u1")

	if got := hub.Online(); len(got) != 1 || got[0] != "u1" {
		t.Errorf("two devices of one user should count once, got %v", got)
	}

	// First device leaving keeps the user online, so no broadcast fires.
	hub.Unregister(c1)
	if got := hub.Online(); len(got) != 1 {
		t.Errorf("user should stay online while a device remains, got %v", got)
	}

	hub.Unregister(c2)
	if got := hub.Online(); len(got) != 0 {
		t.Errorf("user should be offline, got %v", got)
	}
}

func TestRoomBroadcast_MembersOnly(t *testing.T) {
	hub := NewHub()
	member := newTestClient(hub)
	outsider := newTestClient(hub)

	hub.Join(member, RoomName("c1"))
	hub.BroadcastRoom(RoomName("c1"), mustJSON(UserTypingMsg{Type: EventUserTyping, Username: "u1"}), nil)

	nextEvent(t, member, EventUserTyping)
	expectSilence(t, outsider)
}

func TestRoomBroadcast_ExcludesSender(t *testing.T) {
	hub := NewHub()
	sender := newTestClient(hub)
	peer := newTestClient(hub)

	hub.Join(sender, RoomName("c1"))
	hub.Join(peer, RoomName("c1"))
	hub.BroadcastRoom(RoomName("c1"), mustJSON(UserTypingMsg{Type: EventUserTyping, Username: "u1"}), sender)

	nextEvent(t, peer, EventUserTyping)
	expectSilence(t, sender)
}

func TestLeaveRoom_StopsDelivery(t *testing.T) {
	hub := NewHub()
	c := newTestClient(hub)

	hub.Join(c, RoomName("c1"))
	hub.Leave(c, RoomName("c1"))
	hub.BroadcastRoom(RoomName("c1"), mustJSON(UserTypingMsg{Type: EventUserTyping, Username: "u1"}), nil)

	expectSilence(t, c)
}

func TestSendToUser_ReachesJoinedUnannouncedClient(t *testing.T) {
	hub := NewHub()
	c := newTestClient(hub)
	// Every connection joins its identity room on upgrade; delivery must not
	// wait for a user-online announce.
	hub.Join(c, "u2")

	if !hub.SendToUser("u2", []byte(`{"type":"new-notification"}`)) {
		t.Fatal("delivery should reach the identity room before announce")
	}
	nextEvent(t, c, EventNewNotification)
}

func TestSendToUser_OfflineIsBestEffort(t *testing.T) {
	hub := NewHub()
	if hub.SendToUser("ghost", []byte(`{"type":"new-notification"}`)) {
		t.Errorf("delivery to an offline user should report false")
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := NewHub()
	slow := &Client{Hub: hub, Send: make(chan []byte)} // no buffer, never read
	hub.Register(slow)
	hub.Announce(slow, "u1")

	// The announce broadcast cannot be queued, so the client is evicted and
	// its presence entry goes with it.
	if got := hub.Online(); len(got) != 0 {
		t.Errorf("slow client should have been dropped, online=%v", got)
	}
}

func TestSlowClientEvictionRefreshesOnlineSet(t *testing.T) {
	hub := NewHub()
	observer := newTestClient(hub)
	hub.Announce(observer, "u1")
	if got := onlineSet(t, observer); len(got) != 1 {
		t.Fatalf("expected [u1], got %v", got)
	}

	slow := &Client{Hub: hub, Send: make(chan []byte)} // no buffer, never read
	hub.Register(slow)
	hub.Announce(slow, "u2")

	// The observer first sees the snapshot with u2, then the corrected one
	// after the eviction empties u2's presence.
	if got := onlineSet(t, observer); len(got) != 2 {
		t.Errorf("expected [u1 u2], got %v", got)
	}
	if got := onlineSet(t, observer); len(got) != 1 || got[0] != "u1" {
		t.Errorf("eviction should rebroadcast [u1], got %v", got)
	}
}
