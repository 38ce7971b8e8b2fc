package server

import (
	"sync"

	"github.com/gorilla/websocket"
)

// wsHandle adapts a websocket connection to the broadcast.Handle
// interface. Writes are serialized: the poller and the command echo
// path may both send on the trading socket.
type wsHandle struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSHandle(conn *websocket.Conn) *wsHandle {
	return &wsHandle{conn: conn}
}

func (h *wsHandle) Send(v interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn.WriteJSON(v)
}

func (h *wsHandle) Close() error {
	return h.conn.Close()
}
