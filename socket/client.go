package socket

import (
	"encoding/json"
	"net/http"
	"time"

	"notesync/pkg/logger"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The browser frontend connects cross-origin during development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWs upgrades the connection and registers a watcher for one note. The
// caller has already checked ownership and read the current state; the feed is
// server-to-client only, so anything the client sends is discarded.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, userID, noteID string, state UpdatePayload) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	client := &Client{
		Hub:    hub,
		Conn:   conn,
		NoteID: noteID,
		UserID: userID,
		Send:   make(chan []byte, 256),
	}

	// Seed the watcher with the committed state so their view starts current.
	// Enqueued before registering so it is the first frame they read, ahead of
	// any presence broadcast triggered by their own join.
	payload, _ := json.Marshal(state)
	initialMsg, _ := json.Marshal(WSMessage{Type: UpdateType, NoteID: noteID, Payload: payload})
	client.Send <- initialMsg

	client.Hub.Register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	for {
		// Watchers don't push edits over the socket (writes go through the
		// versioned HTTP path); reading only detects the close.
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			break
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second) // Keepalive ping
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.Send:
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.Conn.WriteMessage(websocket.TextMessage, message)
		case <-ticker.C:
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return // Connection is dead
			}
		}
	}
}
