package socket

import (
	"encoding/json"
	"sync"
	"time"

	"notesync/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	UpdateType         = "UPDATE"          // A write committed; payload is the new state
	PresenceUpdateType = "PRESENCE_UPDATE" // A watcher joined or left
)

type WSMessage struct {
	Type    string          `json:"type"`
	NoteID  string          `json:"note_id"`
	UserID  string          `json:"user_id"`
	Payload json.RawMessage `json:"payload"`
}

// UpdatePayload is the committed state pushed to watchers. The version store
// is the single source of truth; the hub caches nothing.
type UpdatePayload struct {
	Version   int64     `json:"version"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updated_at"`
}

type UserStatus struct {
	UserID   string    `json:"user_id"`
	LastSeen time.Time `json:"last_seen"`
}

// Hub fans committed writes out to the watchers of each note. It holds no
// note content: a hub-side copy would go stale the moment a write it did not
// see committed.
type Hub struct {
	Rooms      map[string]map[*Client]bool
	Broadcast  chan WSMessage
	Register   chan *Client
	Unregister chan *Client
	Presence   map[string]map[string]UserStatus // noteID -> userID -> status
	mu         sync.Mutex
}

type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	NoteID string
	UserID string
	Send   chan []byte
}

func NewHub() *Hub {
	return &Hub{
		Rooms:      make(map[string]map[*Client]bool),
		Broadcast:  make(chan WSMessage),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Presence:   make(map[string]map[string]UserStatus),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if h.Rooms[client.NoteID] == nil {
				h.Rooms[client.NoteID] = make(map[*Client]bool)
				h.Presence[client.NoteID] = make(map[string]UserStatus)
			}
			h.Rooms[client.NoteID][client] = true
			h.Presence[client.NoteID][client.UserID] = UserStatus{UserID: client.UserID, LastSeen: time.Now()}
			h.mu.Unlock()

			h.broadcastPresenceUpdate(client.NoteID)

		case client := <-h.Unregister:
			h.dropClient(client)

		case msg := <-h.Broadcast:
			payload, err := json.Marshal(msg)
			if err != nil {
				logger.Sugar.Errorf("Error marshalling broadcast message: %v", err)
				continue
			}

			// Collect recipients under the lock, write outside it. The writer
			// already holds the committed state, so skip their own sockets.
			h.mu.Lock()
			clientsToSend := make([]*Client, 0, len(h.Rooms[msg.NoteID]))
			for client := range h.Rooms[msg.NoteID] {
				if client.UserID != msg.UserID {
					clientsToSend = append(clientsToSend, client)
				}
			}
			h.mu.Unlock()

			for _, client := range clientsToSend {
				select {
				case client.Send <- payload:
				default:
					// Evict inline. Sending to h.Unregister from here would
					// block forever: this goroutine is its only receiver.
					logger.Sugar.Warnf("Client %s's send buffer is full. Dropping watcher.", client.UserID)
					h.dropClient(client)
				}
			}
		}
	}
}

// dropClient removes a watcher from its room and closes its send channel. Safe
// to call from the hub goroutine itself; double removal is a no-op.
func (h *Hub) dropClient(client *Client) {
	h.mu.Lock()
	noteID := client.NoteID
	roomStillOpen := false
	if _, ok := h.Rooms[client.NoteID][client]; ok {
		delete(h.Rooms[client.NoteID], client)
		delete(h.Presence[client.NoteID], client.UserID)
		close(client.Send)

		if len(h.Rooms[client.NoteID]) == 0 {
			delete(h.Rooms, client.NoteID)
			delete(h.Presence, client.NoteID)
			logger.Sugar.Infof("Closed empty watch room: %s", client.NoteID)
		} else {
			roomStillOpen = true
		}
	}
	h.mu.Unlock()

	if roomStillOpen {
		h.broadcastPresenceUpdate(noteID)
	}
}

// RemoveNote disconnects all watchers of a deleted note.
func (h *Hub) RemoveNote(noteID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.Presence, noteID)
	if clients, ok := h.Rooms[noteID]; ok {
		for client := range clients {
			client.Conn.Close() // readPump exits and unregisters
		}
		delete(h.Rooms, noteID)
	}
}

func (h *Hub) broadcastPresenceUpdate(noteID string) {
	var userStatuses []UserStatus
	var clientsToSend []*Client

	h.mu.Lock()
	if _, ok := h.Presence[noteID]; ok {
		userStatuses = make([]UserStatus, 0, len(h.Presence[noteID]))
		for _, status := range h.Presence[noteID] {
			userStatuses = append(userStatuses, status)
		}
		clientsToSend = make([]*Client, 0, len(h.Rooms[noteID]))
		for client := range h.Rooms[noteID] {
			clientsToSend = append(clientsToSend, client)
		}
	}
	h.mu.Unlock()

	if len(clientsToSend) == 0 {
		return
	}

	payload, err := json.Marshal(userStatuses)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling presence broadcast: %v", err)
		return
	}
	broadcastPayload, _ := json.Marshal(WSMessage{Type: PresenceUpdateType, NoteID: noteID, Payload: payload})

	for _, client := range clientsToSend {
		select {
		case client.Send <- broadcastPayload:
		default:
			logger.Sugar.Warnf("Client %s's send buffer was full during presence update.", client.UserID)
		}
	}
}
