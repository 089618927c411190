package socket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper to read messages from a WebSocket connection with a timeout.
func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	var msg WSMessage
	conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	_, p, err := conn.ReadMessage()
	require.NoError(t, err, "Failed to read message from WebSocket")
	err = json.Unmarshal(p, &msg)
	require.NoError(t, err, "Failed to unmarshal WSMessage JSON")
	return msg
}

func TestHubWatchFeed(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	noteID := "note-1"
	state := UpdatePayload{Version: 3, Title: "Plan", Body: "Hello World", UpdatedAt: time.Now()}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		ServeWs(hub, w, r, userID, noteID, state)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	// Watcher 1 joins and immediately receives the committed state.
	conn1, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws?user_id=user1", nil)
	require.NoError(t, err, "Watcher 1 failed to connect")
	defer conn1.Close()

	initialMsg := readMessage(t, conn1)
	assert.Equal(t, UpdateType, initialMsg.Type)
	assert.Equal(t, noteID, initialMsg.NoteID)

	var initial UpdatePayload
	require.NoError(t, json.Unmarshal(initialMsg.Payload, &initial))
	assert.Equal(t, int64(3), initial.Version)
	assert.Equal(t, "Hello World", initial.Body)

	// Watcher 1's own join triggers a presence update with just themselves.
	selfPresence := readMessage(t, conn1)
	assert.Equal(t, PresenceUpdateType, selfPresence.Type)

	// Watcher 2 joins the same room.
	conn2, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws?user_id=user2", nil)
	require.NoError(t, err, "Watcher 2 failed to connect")
	defer conn2.Close()

	_ = readMessage(t, conn2) // watcher 2's own initial state

	// Watcher 1 sees a presence update with both users.
	presenceMsg := readMessage(t, conn1)
	assert.Equal(t, PresenceUpdateType, presenceMsg.Type)
	var statuses []UserStatus
	require.NoError(t, json.Unmarshal(presenceMsg.Payload, &statuses))
	require.Len(t, statuses, 2, "Should be two watchers in the room")
	userIDs := []string{statuses[0].UserID, statuses[1].UserID}
	assert.Contains(t, userIDs, "user1")
	assert.Contains(t, userIDs, "user2")

	// A write by user2 commits; user1 is notified, user2 is skipped.
	updatePayload, _ := json.Marshal(UpdatePayload{Version: 4, Title: "Plan", Body: "Hello World!"})
	hub.Broadcast <- WSMessage{
		Type:    UpdateType,
		NoteID:  noteID,
		UserID:  "user2",
		Payload: updatePayload,
	}

	broadcastMsg := readMessage(t, conn1)
	assert.Equal(t, UpdateType, broadcastMsg.Type)
	assert.Equal(t, "user2", broadcastMsg.UserID)

	var update UpdatePayload
	require.NoError(t, json.Unmarshal(broadcastMsg.Payload, &update))
	assert.Equal(t, int64(4), update.Version)
	assert.Equal(t, "Hello World!", update.Body)
}

func TestBroadcastEvictsStalledWatcher(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	noteID := "note-3"
	stalled := &Client{Hub: hub, NoteID: noteID, UserID: "stalled", Send: make(chan []byte)}
	hub.Register <- stalled

	payload, _ := json.Marshal(UpdatePayload{Version: 2, Title: "Plan", Body: "X"})
	msg := WSMessage{Type: UpdateType, NoteID: noteID, UserID: "writer", Payload: payload}

	// Nobody drains the stalled watcher's Send channel, so delivering this
	// message drops them from the room.
	hub.Broadcast <- msg

	// The hub must keep accepting broadcasts afterwards; SaveNote publishes
	// synchronously on every commit.
	done := make(chan struct{})
	go func() {
		hub.Broadcast <- msg
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub stopped accepting broadcasts after a stalled watcher")
	}

	// The stalled watcher was removed and its channel closed.
	select {
	case _, ok := <-stalled.Send:
		assert.False(t, ok, "stalled watcher's send channel should be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("stalled watcher's send channel was never closed")
	}

	hub.mu.Lock()
	_, roomExists := hub.Rooms[noteID]
	hub.mu.Unlock()
	assert.False(t, roomExists, "room should be torn down with its last watcher")
}

func TestRemoveNoteDisconnectsWatchers(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	noteID := "note-2"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r, "user1", noteID, UpdatePayload{Version: 1})
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = readMessage(t, conn) // initial state

	hub.RemoveNote(noteID)

	conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return // connection closed by the hub
		}
	}
}
