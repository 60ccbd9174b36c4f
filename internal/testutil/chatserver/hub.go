package chatserver

import (
	"sync"

	"github.com/gorilla/websocket"

	"go-chatty-client/internal/infrastructure/realtime"
)

// hub tracks the open sockets of each conversation room and fans frames out
// to them.
type hub struct {
	mu    sync.RWMutex
	rooms map[int64]map[*realtime.Connection]int64 // conversationID -> conn -> userID
}

func newHub() *hub {
	return &hub{rooms: make(map[int64]map[*realtime.Connection]int64)}
}

// join registers conn in the room and starts it.
func (h *hub) join(conversationID, userID int64, conn *realtime.Connection) {
	h.mu.Lock()
	room := h.rooms[conversationID]
	if room == nil {
		room = make(map[*realtime.Connection]int64)
		h.rooms[conversationID] = room
	}
	room[conn] = userID
	h.mu.Unlock()

	conn.Start()
}

func (h *hub) leave(conversationID int64, conn *realtime.Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[conversationID]
	if room == nil {
		return
	}
	delete(room, conn)
	if len(room) == 0 {
		delete(h.rooms, conversationID)
	}
}

// broadcast writes payload to every socket in the room and returns how many
// accepted it.
func (h *hub) broadcast(conversationID int64, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for conn := range h.rooms[conversationID] {
		if err := conn.Send(payload); err == nil {
			delivered++
		}
	}
	return delivered
}

func (h *hub) count(conversationID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// closeRoom drops every socket of the room with code.
func (h *hub) closeRoom(conversationID int64, code int) {
	h.mu.Lock()
	room := h.rooms[conversationID]
	delete(h.rooms, conversationID)
	h.mu.Unlock()

	for conn := range room {
		conn.Close(code, "")
	}
}

func (h *hub) close() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[int64]map[*realtime.Connection]int64)
	h.mu.Unlock()

	for _, room := range rooms {
		for conn := range room {
			conn.Close(websocket.CloseGoingAway, "server shutdown")
		}
	}
}
