package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// gorillaSocket adapts *websocket.Conn to the Socket interface. The hub's
// heartbeat loop and publish paths may write concurrently, and gorilla allows
// only one writer at a time, so every write goes through the mutex.
type gorillaSocket struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newGorillaSocket(conn *websocket.Conn) *gorillaSocket {
	return &gorillaSocket{conn: conn}
}

func (s *gorillaSocket) WriteJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

func (s *gorillaSocket) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (s *gorillaSocket) Close() error {
	return s.conn.Close()
}
